package classify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"mediadedup/internal/match"
	"mediadedup/internal/models"
)

// Thresholds bound the similarity scores considered by the classifier.
type Thresholds struct {
	// Coarse is the exclusive upper bound for a candidate to be considered at all.
	Coarse float64
	// Variant separates the duplicate zone (below) from the variant zone.
	Variant float64
}

// Validate checks 0 <= Variant <= Coarse <= 1.
func (t Thresholds) Validate() error {
	if t.Coarse < 0 || t.Coarse > 1 {
		return fmt.Errorf("coarse threshold %v outside [0,1]", t.Coarse)
	}
	if t.Variant < 0 || t.Variant > 1 {
		return fmt.Errorf("variant threshold %v outside [0,1]", t.Variant)
	}
	if t.Variant > t.Coarse {
		return errors.New("variant threshold must not exceed coarse threshold")
	}
	return nil
}

// PublicationPredicate reports whether a record has an independent
// publication of its own.
type PublicationPredicate func(*models.MediaRecord) bool

// Result tells the caller what a classification pass changed.
type Result struct {
	DuplicatesChanged bool
	VariantsChanged   bool
	// IgnoredChanged is set when the pass marked the record ignored.
	IgnoredChanged bool
	// Duplicates and Variants hold the edges added by this pass.
	Duplicates []models.Edge
	Variants   []models.Edge
}

// Changed reports whether the record must be persisted.
func (r Result) Changed() bool {
	return r.DuplicatesChanged || r.VariantsChanged || r.IgnoredChanged
}

// Classifier turns candidate matches into relationship edges.
type Classifier struct {
	thresholds Thresholds
	caps       models.Capabilities
	logger     *slog.Logger
}

// Option configures a Classifier
type Option func(*Classifier)

// WithLogger sets the logger used for decision traces
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier. Invalid thresholds are rejected here so that
// Classify itself cannot fail.
func New(t Thresholds, caps models.Capabilities, opts ...Option) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if caps == nil {
		caps = models.DefaultCapabilities()
	}
	c := &Classifier{
		thresholds: t,
		caps:       caps,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Thresholds returns the configured thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify adds duplicate and variant edges to m from candidates and
// applies the ignore side effect. hasPublication may be nil, in which case
// m.HasPublication is used.
func (c *Classifier) Classify(m *models.MediaRecord, candidates []match.Candidate, hasPublication PublicationPredicate) Result {
	if hasPublication == nil {
		hasPublication = (*models.MediaRecord).HasPublication
	}

	duplicates, variants := c.split(m, candidates)

	var res Result
	res.Duplicates = c.apply(m, models.EdgeDuplicate, duplicates)
	res.DuplicatesChanged = len(res.Duplicates) > 0
	if res.DuplicatesChanged && !hasPublication(m) {
		res.IgnoredChanged = m.Ignore(models.ReasonAlreadyPresent)
	}

	res.Variants = c.apply(m, models.EdgeVariant, variants)
	res.VariantsChanged = len(res.Variants) > 0

	if res.Changed() {
		c.logger.Debug("classified media",
			"media_id", m.ID,
			"duplicates", len(res.Duplicates),
			"variants", len(res.Variants),
			"ignored", m.Ignored)
	}
	return res
}

// split partitions the usable candidates into duplicate and variant proposals.
func (c *Classifier) split(m *models.MediaRecord, candidates []match.Candidate) (duplicates, variants []match.Candidate) {
	usable := lo.Filter(candidates, func(cand match.Candidate, _ int) bool {
		if cand.Record == nil || cand.Record.ID == m.ID {
			return false
		}
		// Exact matches score 0 and stay candidates even with a zero coarse threshold
		return cand.Score == 0 || cand.Score < c.thresholds.Coarse
	})
	if !c.caps.ConsidersVariants(m.Category) {
		return usable, nil
	}
	duplicates, variants = lo.FilterReject(usable, func(cand match.Candidate, _ int) bool {
		return cand.Score < c.thresholds.Variant
	})
	return duplicates, variants
}

// apply runs the idempotence and anti-cycle gate for one proposal set and
// returns the edges it added to m.
func (c *Classifier) apply(m *models.MediaRecord, kind models.EdgeKind, proposals []match.Candidate) []models.Edge {
	if len(proposals) == 0 {
		return nil
	}

	edges := lo.Map(proposals, func(cand match.Candidate, _ int) models.Edge {
		return models.Edge{OriginalID: cand.Record.ID, SimilarityScore: cand.Score}
	})
	set := m.Edges(kind)
	if set.ContainsAll(edges) {
		return nil
	}

	if back, found := lo.Find(proposals, func(cand match.Candidate) bool {
		return cand.Record.Edges(kind).Contains(m.ID)
	}); found {
		c.logger.Debug("skipping reverse edge",
			"media_id", m.ID, "original_id", back.Record.ID, "kind", kind.String())
		return nil
	}

	other := m.Edges(kind.Other())
	var added []models.Edge
	for _, e := range edges {
		if other.Contains(e.OriginalID) {
			continue
		}
		if set.Add(e) {
			added = append(added, e)
		}
	}
	return added
}
