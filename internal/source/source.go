// Package source turns upstream locations into new media records.
package source

import (
	"context"

	"github.com/google/uuid"

	"mediadedup/internal/models"
)

// Connector produces media records for one upstream source. Records come
// back unfingerprinted with only their asset locations set.
type Connector interface {
	Name() string
	Scan(ctx context.Context) ([]*models.MediaRecord, error)
}

// RecordID derives a stable record id from the primary asset location, so
// observing the same asset twice yields the same record.
func RecordID(location string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(location)).String()
}

func newRecord(source, location string, category models.Category) *models.MediaRecord {
	m := &models.MediaRecord{
		ID:       RecordID(location),
		Source:   source,
		Category: category,
	}
	m.Primary().AssetLocation = location
	return m
}
