package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"

	"mediadedup/internal/hash"
	"mediadedup/internal/models"
)

// fakeFinder serves lookups from a fixed population.
type fakeFinder struct {
	records []*models.MediaRecord
	err     error
}

func (f *fakeFinder) find(scope models.Scope, match func(models.Metadata) bool) ([]*models.MediaRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.MediaRecord
	for _, r := range f.records {
		if !scope.IsGlobal() && r.Source != scope.Source {
			continue
		}
		for _, c := range r.ActiveChannels() {
			if match(r.Channels[c]) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeFinder) FindByContentFingerprint(_ context.Context, fp string, scope models.Scope) ([]*models.MediaRecord, error) {
	return f.find(scope, func(md models.Metadata) bool { return md.ContentFingerprint == fp })
}

func (f *fakeFinder) FindByPerceptualFingerprint(_ context.Context, fp string, scope models.Scope) ([]*models.MediaRecord, error) {
	return f.find(scope, func(md models.Metadata) bool { return md.PerceptualFingerprint == fp })
}

func (f *fakeFinder) FindWithPerceptualFingerprint(_ context.Context, scope models.Scope) ([]*models.MediaRecord, error) {
	return f.find(scope, func(md models.Metadata) bool { return md.PerceptualFingerprint != "" })
}

func (f *fakeFinder) GetMany(_ context.Context, ids []string) ([]*models.MediaRecord, error) {
	want := make(map[string]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.MediaRecord
	for _, r := range f.records {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// bitsSet returns a 256-bit fingerprint string with the low n bits set.
func bitsSet(n int) string {
	words := make([]uint64, 4)
	for i := range n {
		words[i/64] |= 1 << (i % 64)
	}
	return hash.NewFingerprint(words).String()
}

func media(id, source, content, perceptual string) *models.MediaRecord {
	m := &models.MediaRecord{ID: id, Source: source, Category: models.CategoryImage}
	*m.Primary() = models.Metadata{
		AssetLocation:         "/data/" + id,
		ContentFingerprint:    content,
		PerceptualFingerprint: perceptual,
	}
	return m
}

func newTestGatherer(t *testing.T, finder Finder, opts ...Option) *Gatherer {
	t.Helper()
	scorer, err := hash.NewScorer(hash.DefaultBits)
	if err != nil {
		t.Fatalf("NewScorer failed: %v", err)
	}
	return NewGatherer(finder, scorer, 0.10, opts...)
}

func scores(cands []Candidate) map[string]float64 {
	out := make(map[string]float64)
	for _, c := range cands {
		out[c.Record.ID] = c.Score
	}
	return out
}

func TestGather_Channels(t *testing.T) {
	m := media("m", "", "c-m", bitsSet(0))
	finder := &fakeFinder{records: []*models.MediaRecord{
		m,
		media("exact", "", "c-m", bitsSet(40)),
		media("near", "", "c-near", bitsSet(10)),
		media("mid", "", "c-mid", bitsSet(20)),
		media("far", "", "c-far", bitsSet(64)),
		media("same-phash", "", "c-sp", bitsSet(0)),
	}}
	g := newTestGatherer(t, finder)
	snap := NewSnapshot(models.Scope{}, finder.records, hash.DefaultBits, nil)

	cands, err := g.Gather(context.Background(), m, snap, models.Scope{})
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	got := scores(cands)

	want := map[string]float64{
		"exact":      0,
		"same-phash": 0,
		"near":       10.0 / 256,
		"mid":        20.0 / 256,
	}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for id, score := range want {
		if s, ok := got[id]; !ok || math.Abs(s-score) > 1e-9 {
			t.Errorf("candidate %s score = %v (present=%v), want %v", id, s, ok, score)
		}
	}
	if _, ok := got["m"]; ok {
		t.Error("media record should not be its own candidate")
	}

	// Sorted by score, then id.
	for i := 1; i < len(cands); i++ {
		a, b := cands[i-1], cands[i]
		if a.Score > b.Score || (a.Score == b.Score && a.Record.ID > b.Record.ID) {
			t.Errorf("candidates out of order at %d: %s(%v) before %s(%v)", i, a.Record.ID, a.Score, b.Record.ID, b.Score)
		}
	}
}

func TestGather_ExactWinsOverNear(t *testing.T) {
	m := media("m", "", "shared", bitsSet(0))
	other := media("o", "", "shared", bitsSet(12))
	finder := &fakeFinder{records: []*models.MediaRecord{m, other}}
	g := newTestGatherer(t, finder)
	snap := NewSnapshot(models.Scope{}, finder.records, hash.DefaultBits, nil)

	cands, err := g.Gather(context.Background(), m, snap, models.Scope{})
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(cands) != 1 || cands[0].Score != 0 {
		t.Errorf("candidates = %v, want one exact match at 0", scores(cands))
	}
}

func TestGather_FullResChannel(t *testing.T) {
	m := media("m", "", "thumb-m", "")
	m.Channels[models.ChannelFullRes] = models.Metadata{AssetLocation: "/full", ContentFingerprint: "full"}
	other := media("o", "", "full", "")
	finder := &fakeFinder{records: []*models.MediaRecord{m, other}}
	g := newTestGatherer(t, finder)

	cands, err := g.Gather(context.Background(), m, nil, models.Scope{})
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "o" {
		t.Errorf("candidates = %v, want [o]", scores(cands))
	}
}

func TestGather_Scope(t *testing.T) {
	m := media("m", "s1", "c", bitsSet(0))
	finder := &fakeFinder{records: []*models.MediaRecord{
		m,
		media("same-source", "s1", "c", ""),
		media("other-source", "s2", "c", bitsSet(3)),
	}}
	g := newTestGatherer(t, finder)
	scope := models.Scope{Source: "s1"}
	snap, err := LoadSnapshot(context.Background(), finder, scope, hash.DefaultBits, nil)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	cands, err := g.Gather(context.Background(), m, snap, scope)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "same-source" {
		t.Errorf("candidates = %v, want [same-source]", scores(cands))
	}
}

func TestGather_FinderError(t *testing.T) {
	boom := errors.New("boom")
	g := newTestGatherer(t, &fakeFinder{err: boom})
	_, err := g.Gather(context.Background(), media("m", "", "c", ""), nil, models.Scope{})
	if !errors.Is(err, boom) {
		t.Errorf("Gather error = %v, want wrapped boom", err)
	}
}

func TestGather_NoFingerprints(t *testing.T) {
	g := newTestGatherer(t, &fakeFinder{})
	cands, err := g.Gather(context.Background(), media("m", "", "", ""), nil, models.Scope{})
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("candidates = %v, want none", scores(cands))
	}
}

func TestNewSnapshot_SkipsUnusable(t *testing.T) {
	records := []*models.MediaRecord{
		media("ok", "", "", bitsSet(1)),
		media("garbage", "", "", "p:zz"),
		media("narrow", "", "", "p:00000000000000ff"),
		media("none", "", "", ""),
	}
	snap := NewSnapshot(models.Scope{}, records, hash.DefaultBits, nil)
	if snap.Len() != 1 {
		t.Errorf("snapshot size = %d, want 1", snap.Len())
	}
}

// The chunked parallel scan must agree with a brute force pass.
func TestNear_EquivalenceWithBruteForce(t *testing.T) {
	var records []*models.MediaRecord
	for i := range 3000 {
		records = append(records, media(idFor(i), "", "", bitsSet(i%40)))
	}
	m := media("probe", "", "", bitsSet(5))
	scorer, _ := hash.NewScorer(hash.DefaultBits)

	want := make(map[string]float64)
	probe, _ := hash.ParseFingerprint(m.Primary().PerceptualFingerprint)
	for _, r := range records {
		f, _ := hash.ParseFingerprint(r.Primary().PerceptualFingerprint)
		score, err := scorer.Score(probe, f)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if score < 0.10 {
			want[r.ID] = score
		}
	}

	snap := NewSnapshot(models.Scope{}, records, hash.DefaultBits, nil)
	for _, workers := range []int{1, 4, 16} {
		g := newTestGatherer(t, &fakeFinder{records: records}, WithWorkers(workers))
		got, err := g.near(context.Background(), m, snap)
		if err != nil {
			t.Fatalf("near failed: %v", err)
		}
		if len(got) != len(want) {
			t.Errorf("workers=%d: %d matches, brute force found %d", workers, len(got), len(want))
			continue
		}
		for id, score := range want {
			if got[id] != score {
				t.Errorf("workers=%d: %s score = %v, want %v", workers, id, got[id], score)
			}
		}
	}
}

func TestNear_Cancelled(t *testing.T) {
	var records []*models.MediaRecord
	for i := range 2000 {
		records = append(records, media(idFor(i), "", "", bitsSet(i%30)))
	}
	snap := NewSnapshot(models.Scope{}, records, hash.DefaultBits, nil)
	g := newTestGatherer(t, &fakeFinder{records: records})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.near(ctx, media("probe", "", "", bitsSet(0)), snap); !errors.Is(err, context.Canceled) {
		t.Errorf("near error = %v, want context.Canceled", err)
	}
}

func idFor(i int) string {
	return fmt.Sprintf("r%04d", i)
}
