package match

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mediadedup/internal/hash"
	"mediadedup/internal/models"
)

// minChunk is the smallest slice of the snapshot handed to one goroutine.
const minChunk = 512

// Entry is one perceptual fingerprint in a snapshot.
type Entry struct {
	RecordID    string
	Channel     models.Channel
	Fingerprint hash.Fingerprint
}

// Snapshot is a frozen view of the fingerprinted population of one scope.
// It is read-only after construction and safe for concurrent scans.
type Snapshot struct {
	scope   models.Scope
	entries []Entry
}

// NewSnapshot parses the perceptual fingerprints of records. Fingerprints
// that fail to parse or have the wrong width are left out.
func NewSnapshot(scope models.Scope, records []*models.MediaRecord, width int, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Snapshot{scope: scope}
	for _, r := range records {
		for _, c := range r.ActiveChannels() {
			raw := r.Channels[c].PerceptualFingerprint
			if raw == "" {
				continue
			}
			f, err := hash.ParseFingerprint(raw)
			if err != nil || f.Bits() != width {
				logger.Warn("skipping perceptual fingerprint",
					"media_id", r.ID, "channel", c.String(), "bits", f.Bits(), "error", err)
				continue
			}
			s.entries = append(s.entries, Entry{RecordID: r.ID, Channel: c, Fingerprint: f})
		}
	}
	return s
}

// Scope returns the partition the snapshot covers.
func (s *Snapshot) Scope() models.Scope {
	return s.scope
}

// Len returns the number of fingerprints in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// near scans the snapshot for records whose fingerprint scores below the
// coarse threshold against any of m's fingerprints.
func (g *Gatherer) near(ctx context.Context, m *models.MediaRecord, snap *Snapshot) (map[string]float64, error) {
	var probes []hash.Fingerprint
	for _, raw := range m.PerceptualFingerprints() {
		f, err := hash.ParseFingerprint(raw)
		if err != nil || f.Bits() != g.scorer.Bits() {
			g.logger.Warn("unusable perceptual fingerprint", "media_id", m.ID, "error", err)
			continue
		}
		probes = append(probes, f)
	}
	if len(probes) == 0 || snap.Len() == 0 {
		return nil, nil
	}

	chunk := (snap.Len() + g.workers - 1) / g.workers
	if chunk < minChunk {
		chunk = minChunk
	}
	var parts [][]Entry
	for start := 0; start < snap.Len(); start += chunk {
		end := min(start+chunk, snap.Len())
		parts = append(parts, snap.entries[start:end])
	}

	results := make([]map[string]float64, len(parts))
	group, ctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		group.Go(func() error {
			found := make(map[string]float64)
			for n, e := range part {
				if n%minChunk == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if e.RecordID == m.ID {
					continue
				}
				for _, p := range probes {
					score, ok := g.scorer.Below(p, e.Fingerprint, g.coarse)
					if !ok {
						continue
					}
					if prev, seen := found[e.RecordID]; !seen || score < prev {
						found[e.RecordID] = score
					}
				}
			}
			results[i] = found
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]float64)
	for _, found := range results {
		for id, score := range found {
			if prev, seen := merged[id]; !seen || score < prev {
				merged[id] = score
			}
		}
	}
	return merged, nil
}

// SnapshotSource loads the fingerprinted population of a scope.
type SnapshotSource interface {
	FindWithPerceptualFingerprint(ctx context.Context, scope models.Scope) ([]*models.MediaRecord, error)
}

// LoadSnapshot builds a snapshot from the repository.
func LoadSnapshot(ctx context.Context, src SnapshotSource, scope models.Scope, width int, logger *slog.Logger) (*Snapshot, error) {
	records, err := src.FindWithPerceptualFingerprint(ctx, scope)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(scope, records, width, logger), nil
}
