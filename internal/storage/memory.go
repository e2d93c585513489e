package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mediadedup/internal/models"
)

// MemoryStore is an in-process Repository. All access goes through one
// RWMutex and callers only ever see clones.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.MediaRecord
	order   []string
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.MediaRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, m *models.MediaRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[m.ID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	stored := m.Clone()
	stored.Duplicates = models.EdgeSet{}
	stored.Variants = models.EdgeSet{}
	s.records[m.ID] = stored
	s.order = append(s.order, m.ID)
	for _, kind := range models.EdgeKinds {
		s.addEdgesLocked(stored, kind, m.Edges(kind).Edges())
	}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.MediaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) ([]*models.MediaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MediaRecord
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if m, ok := s.records[id]; ok {
			out = append(out, m.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, m *models.MediaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m.UpdatedAt = time.Now().UTC()
	stored, ok := s.records[m.ID]
	if !ok {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = m.UpdatedAt
		}
		stored = &models.MediaRecord{
			ID:        m.ID,
			Source:    m.Source,
			Category:  m.Category,
			CreatedAt: m.CreatedAt,
		}
		s.records[m.ID] = stored
		s.order = append(s.order, m.ID)
	}

	stored.Readable = m.Readable
	stored.Ignored = m.Ignored
	stored.IgnoredReason = m.IgnoredReason
	if m.PublicationID != "" {
		stored.PublicationID = m.PublicationID
	}
	stored.UpdatedAt = m.UpdatedAt

	for _, c := range m.ActiveChannels() {
		in := m.Channels[c]
		dst := stored.Metadata(c)
		if dst.AssetLocation == "" {
			dst.AssetLocation = in.AssetLocation
		}
		if dst.ContentFingerprint == "" {
			dst.ContentFingerprint = in.ContentFingerprint
		}
		if dst.PerceptualFingerprint == "" {
			dst.PerceptualFingerprint = in.PerceptualFingerprint
		}
		if in.Size > 0 {
			dst.Size = in.Size
		}
		if in.MIMEType != "" {
			dst.MIMEType = in.MIMEType
		}
	}

	for _, kind := range models.EdgeKinds {
		s.addEdgesLocked(stored, kind, m.Edges(kind).Edges())
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*models.MediaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var related map[string]bool
	if f.Related {
		related = make(map[string]bool)
		for _, m := range s.records {
			for _, kind := range models.EdgeKinds {
				for _, orig := range m.Edges(kind).OriginalIDs() {
					related[m.ID] = true
					related[orig] = true
				}
			}
		}
	}

	var out []*models.MediaRecord
	for _, id := range s.order {
		m := s.records[id]
		if !inScope(m, f.Scope) {
			continue
		}
		if f.Related && !related[id] {
			continue
		}
		if f.Ignored && !m.Ignored {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) FindByContentFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error) {
	return s.find(ctx, scope, func(md models.Metadata) bool {
		return fingerprint != "" && md.ContentFingerprint == fingerprint
	})
}

func (s *MemoryStore) FindByPerceptualFingerprint(ctx context.Context, fingerprint string, scope models.Scope) ([]*models.MediaRecord, error) {
	return s.find(ctx, scope, func(md models.Metadata) bool {
		return fingerprint != "" && md.PerceptualFingerprint == fingerprint
	})
}

func (s *MemoryStore) FindWithPerceptualFingerprint(ctx context.Context, scope models.Scope) ([]*models.MediaRecord, error) {
	return s.find(ctx, scope, func(md models.Metadata) bool {
		return md.PerceptualFingerprint != ""
	})
}

func (s *MemoryStore) find(ctx context.Context, scope models.Scope, match func(models.Metadata) bool) ([]*models.MediaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MediaRecord
	for _, m := range s.records {
		if !inScope(m, scope) {
			continue
		}
		for _, c := range m.ActiveChannels() {
			if match(m.Channels[c]) {
				out = append(out, m.Clone())
				break
			}
		}
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) Edges(ctx context.Context, id string) (models.EdgeSet, models.EdgeSet, error) {
	if err := ctx.Err(); err != nil {
		return models.EdgeSet{}, models.EdgeSet{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.records[id]
	if !ok {
		return models.EdgeSet{}, models.EdgeSet{}, nil
	}
	return m.Duplicates.Clone(), m.Variants.Clone(), nil
}

func (s *MemoryStore) AddEdges(ctx context.Context, id string, kind models.EdgeKind, edges []models.Edge) ([]models.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.addEdgesLocked(m, kind, edges), nil
}

// addEdgesLocked applies the same guards as the SQL store: no self edges,
// one edge per (media, original) pair across kinds, no same-kind reverse edge.
func (s *MemoryStore) addEdgesLocked(m *models.MediaRecord, kind models.EdgeKind, edges []models.Edge) []models.Edge {
	var added []models.Edge
	for _, e := range edges {
		if e.OriginalID == m.ID || m.Edges(kind.Other()).Contains(e.OriginalID) {
			continue
		}
		if orig, ok := s.records[e.OriginalID]; ok && orig.Edges(kind).Contains(m.ID) {
			continue
		}
		if m.Edges(kind).Add(e) {
			added = append(added, e)
		}
	}
	return added
}

func (s *MemoryStore) SetPublication(ctx context.Context, id, publicationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.PublicationID = publicationID
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func inScope(m *models.MediaRecord, scope models.Scope) bool {
	return scope.IsGlobal() || m.Source == scope.Source
}
