package match

import (
	"context"
	"fmt"

	"mediadedup/internal/models"
)

// exactContent returns records sharing any content fingerprint with m.
func (g *Gatherer) exactContent(ctx context.Context, m *models.MediaRecord, scope models.Scope) ([]*models.MediaRecord, error) {
	var out []*models.MediaRecord
	for _, fp := range m.ContentFingerprints() {
		records, err := g.finder.FindByContentFingerprint(ctx, fp, scope)
		if err != nil {
			return nil, fmt.Errorf("find by content fingerprint: %w", err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// exactPerceptual returns records sharing any perceptual fingerprint with m.
func (g *Gatherer) exactPerceptual(ctx context.Context, m *models.MediaRecord, scope models.Scope) ([]*models.MediaRecord, error) {
	var out []*models.MediaRecord
	for _, fp := range m.PerceptualFingerprints() {
		records, err := g.finder.FindByPerceptualFingerprint(ctx, fp, scope)
		if err != nil {
			return nil, fmt.Errorf("find by perceptual fingerprint: %w", err)
		}
		out = append(out, records...)
	}
	return out, nil
}
