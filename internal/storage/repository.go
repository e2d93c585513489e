package storage

import (
	"context"
	"errors"

	"mediadedup/internal/models"
)

// ErrNotFound is returned when a media record does not exist.
var ErrNotFound = errors.New("media not found")

// Filter narrows List results.
type Filter struct {
	Scope models.Scope
	// Related keeps only records holding at least one edge.
	Related bool
	// Ignored keeps only ignored records.
	Ignored bool
	Limit   int
	Offset  int
}

// Repository persists media records and their relationship edges.
//
// Fingerprints are write-once: Save never replaces a non-empty fingerprint.
// Edges are insert-only sets keyed by (media, original). An edge is skipped
// when its original already points back at the media with the same kind, or
// when the media already points at the original with the other kind.
type Repository interface {
	// Create inserts m unless a record with the same id exists.
	Create(ctx context.Context, m *models.MediaRecord) (bool, error)
	Get(ctx context.Context, id string) (*models.MediaRecord, error)
	// GetMany returns the records that exist among ids, in id order.
	GetMany(ctx context.Context, ids []string) ([]*models.MediaRecord, error)
	// Save persists the mutable state of m and adds its edges.
	Save(ctx context.Context, m *models.MediaRecord) error
	List(ctx context.Context, f Filter) ([]*models.MediaRecord, error)

	FindByContentFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error)
	FindByPerceptualFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error)
	FindWithPerceptualFingerprint(ctx context.Context, scope models.Scope) ([]*models.MediaRecord, error)

	// Edges returns the current edge sets of a record.
	Edges(ctx context.Context, id string) (duplicates, variants models.EdgeSet, err error)
	// AddEdges atomically adds edges of one kind and returns those added.
	AddEdges(ctx context.Context, id string, kind models.EdgeKind, edges []models.Edge) ([]models.Edge, error)
	// SetPublication records the catalog identifier of an independent publication.
	SetPublication(ctx context.Context, id, publicationID string) error

	Close() error
}
