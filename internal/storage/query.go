package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"mediadedup/internal/models"
)

var mediaColumns = []string{
	"m.id", "m.source", "m.category", "m.readable", "m.ignored",
	"m.ignored_reason", "m.publication_id", "m.created_at", "m.updated_at",
}

func selectMedia() sq.SelectBuilder {
	return sq.Select(mediaColumns...).From("media m")
}

func selectMediaByChannel() sq.SelectBuilder {
	return sq.Select(mediaColumns...).Distinct().
		From("media m").
		Join("media_channels c ON c.media_id = m.id")
}

func withScope(q sq.SelectBuilder, scope models.Scope) sq.SelectBuilder {
	if scope.IsGlobal() {
		return q
	}
	return q.Where(sq.Eq{"m.source": scope.Source})
}

// queryMedia runs q and hydrates the resulting rows with channels and edges.
func (s *Storage) queryMedia(ctx context.Context, q sq.SelectBuilder) ([]*models.MediaRecord, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}

	var records []*models.MediaRecord
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.hydrate(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func scanMedia(rows *sql.Rows) (*models.MediaRecord, error) {
	var (
		m                    models.MediaRecord
		category             string
		readable, ignored    int
		createdAt, updatedAt string
	)
	err := rows.Scan(&m.ID, &m.Source, &category, &readable, &ignored,
		&m.IgnoredReason, &m.PublicationID, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan media: %w", err)
	}
	m.Category, _ = models.ParseCategory(category)
	m.Readable = models.Readable(readable)
	m.Ignored = ignored != 0
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// hydrate loads channels and edges for records in batches.
func (s *Storage) hydrate(ctx context.Context, records []*models.MediaRecord) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[string]*models.MediaRecord, len(records))
	ids := make([]string, 0, len(records))
	for _, m := range records {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	if err := s.loadChannels(ctx, ids, byID); err != nil {
		return err
	}

	edges, err := s.loadEdges(ctx, ids)
	if err != nil {
		return err
	}
	for id, list := range edges {
		m := byID[id]
		for _, e := range list {
			m.Edges(e.kind).Add(e.Edge)
		}
	}
	return nil
}

func (s *Storage) loadChannels(ctx context.Context, ids []string, byID map[string]*models.MediaRecord) error {
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		query, args, err := sq.Select("media_id", "channel", "asset_location", "content_fp", "perceptual_fp", "size", "mime_type").
			From("media_channels").
			Where(sq.Eq{"media_id": ids[start:end]}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query channels: %w", err)
		}
		for rows.Next() {
			var (
				id                    string
				channel               int
				md                    models.Metadata
				contentFP, perceptual sql.NullString
			)
			if err := rows.Scan(&id, &channel, &md.AssetLocation, &contentFP, &perceptual, &md.Size, &md.MIMEType); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan channel: %w", err)
			}
			m, ok := byID[id]
			if !ok || channel < 0 || channel >= models.ChannelCount {
				continue
			}
			md.ContentFingerprint = contentFP.String
			md.PerceptualFingerprint = perceptual.String
			m.Channels[channel] = md
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

type storedEdge struct {
	models.Edge
	kind models.EdgeKind
}

func (s *Storage) loadEdges(ctx context.Context, ids []string) (map[string][]storedEdge, error) {
	out := make(map[string][]storedEdge)
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		query, args, err := sq.Select("media_id", "original_id", "kind", "score").
			From("media_edges").
			Where(sq.Eq{"media_id": ids[start:end]}).
			OrderBy("rowid").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query edges: %w", err)
		}
		for rows.Next() {
			var (
				id   string
				kind int
				e    storedEdge
			)
			if err := rows.Scan(&id, &e.OriginalID, &kind, &e.SimilarityScore); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan edge: %w", err)
			}
			e.kind = models.EdgeKind(kind)
			out[id] = append(out[id], e)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func sortByID(records []*models.MediaRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
