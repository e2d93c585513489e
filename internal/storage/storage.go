package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"mediadedup/internal/models"
)

// idChunk bounds the number of bound parameters per IN query.
const idChunk = 500

// Storage is the SQLite-backed Repository.
type Storage struct {
	db     *sql.DB
	dbPath string
}

var _ Repository = (*Storage)(nil)

// NewStorage opens (and creates, if needed) the database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers, so the reverse-edge guard in
	// insertEdges always sees the latest committed edges.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// init creates the database schema
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" || (m.column != "" && s.columnExists("media", m.column)) {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Create inserts m unless a record with the same id exists.
func (s *Storage) Create(ctx context.Context, m *models.MediaRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO media (id, source, category, readable, ignored, ignored_reason, publication_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Source, m.Category.String(), int(m.Readable), boolInt(m.Ignored), m.IgnoredReason,
		m.PublicationID, formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert media %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := saveChannels(ctx, tx, m); err != nil {
		return false, err
	}
	if err := saveEdges(ctx, tx, m); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// Save persists the mutable state of m: decode status, ignore flag,
// publication id, newly computed fingerprints and new edges.
func (s *Storage) Save(ctx context.Context, m *models.MediaRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO media (id, source, category, readable, ignored, ignored_reason, publication_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			readable = excluded.readable,
			ignored = excluded.ignored,
			ignored_reason = excluded.ignored_reason,
			publication_id = CASE WHEN excluded.publication_id != '' THEN excluded.publication_id ELSE media.publication_id END,
			updated_at = excluded.updated_at
	`, m.ID, m.Source, m.Category.String(), int(m.Readable), boolInt(m.Ignored), m.IgnoredReason,
		m.PublicationID, formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save media %s: %w", m.ID, err)
	}

	if err := saveChannels(ctx, tx, m); err != nil {
		return err
	}
	if err := saveEdges(ctx, tx, m); err != nil {
		return err
	}

	return tx.Commit()
}

func saveChannels(ctx context.Context, tx *sql.Tx, m *models.MediaRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO media_channels (media_id, channel, asset_location, content_fp, perceptual_fp, size, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_id, channel) DO UPDATE SET
			content_fp = COALESCE(media_channels.content_fp, excluded.content_fp),
			perceptual_fp = COALESCE(media_channels.perceptual_fp, excluded.perceptual_fp),
			size = CASE WHEN excluded.size > 0 THEN excluded.size ELSE media_channels.size END,
			mime_type = CASE WHEN excluded.mime_type != '' THEN excluded.mime_type ELSE media_channels.mime_type END
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range m.ActiveChannels() {
		md := m.Channels[c]
		_, err := stmt.ExecContext(ctx,
			m.ID,
			int(c),
			md.AssetLocation,
			nullString(md.ContentFingerprint),
			nullString(md.PerceptualFingerprint),
			md.Size,
			md.MIMEType,
		)
		if err != nil {
			return fmt.Errorf("failed to save channel %s of %s: %w", c, m.ID, err)
		}
	}
	return nil
}

func saveEdges(ctx context.Context, tx *sql.Tx, m *models.MediaRecord) error {
	for _, kind := range models.EdgeKinds {
		if _, err := insertEdges(ctx, tx, m.ID, kind, m.Edges(kind).Edges()); err != nil {
			return err
		}
	}
	return nil
}

// insertEdges adds edges unless the pair already exists in either kind or
// the original already points back at id with the same kind.
func insertEdges(ctx context.Context, tx *sql.Tx, id string, kind models.EdgeKind, edges []models.Edge) ([]models.Edge, error) {
	if len(edges) == 0 {
		return nil, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO media_edges (media_id, original_id, kind, score)
		SELECT ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM media_edges WHERE media_id = ? AND original_id = ? AND kind = ?
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var added []models.Edge
	for _, e := range edges {
		if e.OriginalID == id {
			continue
		}
		res, err := stmt.ExecContext(ctx, id, e.OriginalID, int(kind), e.SimilarityScore, e.OriginalID, id, int(kind))
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s edge %s -> %s: %w", kind, id, e.OriginalID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, e)
		}
	}
	return added, nil
}

// AddEdges atomically adds edges of one kind to a record.
func (s *Storage) AddEdges(ctx context.Context, id string, kind models.EdgeKind, edges []models.Edge) ([]models.Edge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM media WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up media %s: %w", id, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	added, err := insertEdges(ctx, tx, id, kind, edges)
	if err != nil {
		return nil, err
	}
	return added, tx.Commit()
}

// Edges returns the current edge sets of a record.
func (s *Storage) Edges(ctx context.Context, id string) (models.EdgeSet, models.EdgeSet, error) {
	var duplicates, variants models.EdgeSet
	edges, err := s.loadEdges(ctx, []string{id})
	if err != nil {
		return duplicates, variants, err
	}
	for _, e := range edges[id] {
		if e.kind == models.EdgeVariant {
			variants.Add(e.Edge)
		} else {
			duplicates.Add(e.Edge)
		}
	}
	return duplicates, variants, nil
}

// SetPublication records the catalog identifier of an independent publication.
func (s *Storage) SetPublication(ctx context.Context, id, publicationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE media SET publication_id = ?, updated_at = ? WHERE id = ?`,
		publicationID, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to set publication of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns one record with its channels and edges.
func (s *Storage) Get(ctx context.Context, id string) (*models.MediaRecord, error) {
	records, err := s.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return records[0], nil
}

// GetMany returns the records that exist among ids, ordered by id.
func (s *Storage) GetMany(ctx context.Context, ids []string) ([]*models.MediaRecord, error) {
	var out []*models.MediaRecord
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		records, err := s.queryMedia(ctx, selectMedia().Where(sq.Eq{"m.id": ids[start:end]}))
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	sortByID(out)
	return out, nil
}

// List returns records matching f, oldest first.
func (s *Storage) List(ctx context.Context, f Filter) ([]*models.MediaRecord, error) {
	q := withScope(selectMedia(), f.Scope)
	if f.Related {
		q = q.Where(`EXISTS (SELECT 1 FROM media_edges e WHERE e.media_id = m.id OR e.original_id = m.id)`)
	}
	if f.Ignored {
		q = q.Where(sq.Eq{"m.ignored": 1})
	}
	q = q.OrderBy("m.created_at", "m.id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			q = q.Limit(uint64(1<<62))
		}
		q = q.Offset(uint64(f.Offset))
	}
	return s.queryMedia(ctx, q)
}

// FindByContentFingerprint returns records with a channel of the given content fingerprint.
func (s *Storage) FindByContentFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error) {
	if fingerprint == "" {
		return nil, nil
	}
	q := withScope(selectMediaByChannel(), scope).Where(sq.Eq{"c.content_fp": fingerprint}).OrderBy("m.id")
	return s.queryMedia(ctx, q)
}

// FindByPerceptualFingerprint returns records with a channel of the given perceptual fingerprint.
func (s *Storage) FindByPerceptualFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error) {
	if fingerprint == "" {
		return nil, nil
	}
	q := withScope(selectMediaByChannel(), scope).Where(sq.Eq{"c.perceptual_fp": fingerprint}).OrderBy("m.id")
	return s.queryMedia(ctx, q)
}

// FindWithPerceptualFingerprint returns every record holding a perceptual fingerprint.
func (s *Storage) FindWithPerceptualFingerprint(ctx context.Context, scope models.Scope) ([]*models.MediaRecord, error) {
	q := withScope(selectMediaByChannel(), scope).Where(sq.NotEq{"c.perceptual_fp": nil}).OrderBy("m.id")
	return s.queryMedia(ctx, q)
}
