package match

import (
	"context"
	"log/slog"
	"sort"

	"mediadedup/internal/hash"
	"mediadedup/internal/models"
)

// Candidate is a record that matched a media record, with its similarity score.
type Candidate struct {
	Record *models.MediaRecord
	Score  float64
}

// Finder is the repository surface candidate gathering needs.
type Finder interface {
	FindByContentFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error)
	FindByPerceptualFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error)
	GetMany(ctx context.Context, ids []string) ([]*models.MediaRecord, error)
}

// Gatherer collects candidates along the exact content, exact perceptual
// and near perceptual channels.
type Gatherer struct {
	finder  Finder
	scorer  *hash.Scorer
	coarse  float64
	workers int
	logger  *slog.Logger
}

// Option configures a Gatherer
type Option func(*Gatherer)

// WithWorkers sets the parallelism of the near channel scan
func WithWorkers(n int) Option {
	return func(g *Gatherer) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gatherer) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGatherer creates a Gatherer retaining near matches scored below coarse.
func NewGatherer(finder Finder, scorer *hash.Scorer, coarse float64, opts ...Option) *Gatherer {
	g := &Gatherer{
		finder:  finder,
		scorer:  scorer,
		coarse:  coarse,
		workers: 8,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gather merges the three match channels into one candidate set, excluding
// m itself. Exact matches score 0; a record matched on several channels
// keeps its lowest score. snap may be nil when m has no perceptual fingerprint.
func (g *Gatherer) Gather(ctx context.Context, m *models.MediaRecord, snap *Snapshot, scope models.Scope) ([]Candidate, error) {
	merged := newCandidateSet(m.ID)

	exact, err := g.exactContent(ctx, m, scope)
	if err != nil {
		return nil, err
	}
	merged.addRecords(exact, 0)

	exact, err = g.exactPerceptual(ctx, m, scope)
	if err != nil {
		return nil, err
	}
	merged.addRecords(exact, 0)

	if snap != nil {
		near, err := g.near(ctx, m, snap)
		if err != nil {
			return nil, err
		}
		var missing []string
		for id, score := range near {
			if !merged.lower(id, score) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			records, err := g.finder.GetMany(ctx, missing)
			if err != nil {
				return nil, err
			}
			for _, r := range records {
				merged.add(r, near[r.ID])
			}
		}
	}

	out := merged.sorted()
	g.logger.Debug("gathered candidates", "media_id", m.ID, "count", len(out))
	return out, nil
}

// candidateSet keeps one candidate per record id with the lowest score.
type candidateSet struct {
	self  string
	items map[string]*Candidate
}

func newCandidateSet(self string) *candidateSet {
	return &candidateSet{self: self, items: make(map[string]*Candidate)}
}

func (s *candidateSet) addRecords(records []*models.MediaRecord, score float64) {
	for _, r := range records {
		s.add(r, score)
	}
}

func (s *candidateSet) add(r *models.MediaRecord, score float64) {
	if r == nil || r.ID == s.self {
		return
	}
	if c, ok := s.items[r.ID]; ok {
		if score < c.Score {
			c.Score = score
		}
		return
	}
	s.items[r.ID] = &Candidate{Record: r, Score: score}
}

// lower updates the score of an existing candidate and reports whether it existed.
func (s *candidateSet) lower(id string, score float64) bool {
	if id == s.self {
		return true
	}
	c, ok := s.items[id]
	if !ok {
		return false
	}
	if score < c.Score {
		c.Score = score
	}
	return true
}

func (s *candidateSet) sorted() []Candidate {
	out := make([]Candidate, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out
}
