package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"mediadedup/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// repositories returns every Repository implementation under test.
func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"sqlite": newTestStorage(t),
		"memory": NewMemoryStore(),
	}
}

func record(id, source, location string) *models.MediaRecord {
	m := &models.MediaRecord{ID: id, Source: source, Category: models.CategoryImage}
	m.Primary().AssetLocation = location
	return m
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed to create directories: %v", err)
	}
	defer store.Close()

	if store.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", store.Path(), dbPath)
	}
}

func TestMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	if version := store.getSchemaVersion(); version != schemaVersion {
		t.Errorf("schema version = %d, want %d", version, schemaVersion)
	}
	if !store.columnExists("media", "publication_id") {
		t.Error("publication_id column should exist after migrations")
	}
	store.Close()

	// Reopen - should not fail
	store2, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("second NewStorage failed: %v", err)
	}
	defer store2.Close()

	if version := store2.getSchemaVersion(); version != schemaVersion {
		t.Errorf("schema version after reopen = %d, want %d", version, schemaVersion)
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			m := record("a", "src", "/data/a.jpg")
			m.Channels[models.ChannelFullRes] = models.Metadata{AssetLocation: "/data/a-full.jpg", Size: 42}

			created, err := repo.Create(ctx, m)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if !created {
				t.Fatal("first Create should report created")
			}

			created, err = repo.Create(ctx, record("a", "src", "/other.jpg"))
			if err != nil {
				t.Fatalf("second Create failed: %v", err)
			}
			if created {
				t.Error("second Create with same id should be ignored")
			}

			got, err := repo.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Source != "src" || got.Category != models.CategoryImage {
				t.Errorf("got source=%q category=%s", got.Source, got.Category)
			}
			if got.Primary().AssetLocation != "/data/a.jpg" {
				t.Errorf("primary location = %q", got.Primary().AssetLocation)
			}
			full := got.Metadata(models.ChannelFullRes)
			if full.AssetLocation != "/data/a-full.jpg" || full.Size != 42 {
				t.Errorf("full_res channel = %+v", *full)
			}
			if got.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}

			if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSave_FingerprintsAreWriteOnce(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			m := record("a", "", "/data/a.jpg")
			if _, err := repo.Create(ctx, m); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			m.Primary().ContentFingerprint = "c1"
			m.Primary().PerceptualFingerprint = "p:01"
			m.Readable = models.ReadableYes
			if err := repo.Save(ctx, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			m.Primary().ContentFingerprint = "c2"
			m.Primary().PerceptualFingerprint = "p:02"
			if err := repo.Save(ctx, m); err != nil {
				t.Fatalf("second Save failed: %v", err)
			}

			got, err := repo.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Primary().ContentFingerprint != "c1" {
				t.Errorf("content fingerprint = %q, want c1", got.Primary().ContentFingerprint)
			}
			if got.Primary().PerceptualFingerprint != "p:01" {
				t.Errorf("perceptual fingerprint = %q, want p:01", got.Primary().PerceptualFingerprint)
			}
			if got.Readable != models.ReadableYes {
				t.Errorf("readable = %s, want yes", got.Readable)
			}
		})
	}
}

func TestSave_IgnoreAndPublication(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			m := record("a", "", "/data/a.jpg")
			if _, err := repo.Create(ctx, m); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			m.Ignore(models.ReasonAlreadyPresent)
			if err := repo.Save(ctx, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := repo.SetPublication(ctx, "a", "cat-1"); err != nil {
				t.Fatalf("SetPublication failed: %v", err)
			}

			// A stale copy without a publication id must not clear it.
			if err := repo.Save(ctx, m); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := repo.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !got.Ignored || got.IgnoredReason != models.ReasonAlreadyPresent {
				t.Errorf("ignored=%v reason=%q", got.Ignored, got.IgnoredReason)
			}
			if got.PublicationID != "cat-1" {
				t.Errorf("publication id = %q, want cat-1", got.PublicationID)
			}

			if err := repo.SetPublication(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
				t.Errorf("SetPublication(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAddEdges(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				if _, err := repo.Create(ctx, record(id, "", "/data/"+id)); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}

			added, err := repo.AddEdges(ctx, "b", models.EdgeDuplicate, []models.Edge{{OriginalID: "a"}})
			if err != nil {
				t.Fatalf("AddEdges failed: %v", err)
			}
			if len(added) != 1 {
				t.Fatalf("added = %v, want one edge", added)
			}

			// Same pair again is a no-op.
			added, err = repo.AddEdges(ctx, "b", models.EdgeDuplicate, []models.Edge{{OriginalID: "a", SimilarityScore: 0.5}})
			if err != nil {
				t.Fatalf("AddEdges failed: %v", err)
			}
			if len(added) != 0 {
				t.Errorf("repeated edge added = %v", added)
			}

			// Reverse edge of the same kind is refused.
			added, err = repo.AddEdges(ctx, "a", models.EdgeDuplicate, []models.Edge{{OriginalID: "b"}})
			if err != nil {
				t.Fatalf("AddEdges failed: %v", err)
			}
			if len(added) != 0 {
				t.Errorf("reverse edge added = %v", added)
			}

			// The same original cannot appear under both kinds.
			added, err = repo.AddEdges(ctx, "b", models.EdgeVariant, []models.Edge{{OriginalID: "a", SimilarityScore: 0.08}, {OriginalID: "c", SimilarityScore: 0.07}})
			if err != nil {
				t.Fatalf("AddEdges failed: %v", err)
			}
			if len(added) != 1 || added[0].OriginalID != "c" {
				t.Errorf("variant edges added = %v, want only c", added)
			}

			// Self edges are dropped.
			added, err = repo.AddEdges(ctx, "c", models.EdgeDuplicate, []models.Edge{{OriginalID: "c"}})
			if err != nil {
				t.Fatalf("AddEdges failed: %v", err)
			}
			if len(added) != 0 {
				t.Errorf("self edge added = %v", added)
			}

			dups, variants, err := repo.Edges(ctx, "b")
			if err != nil {
				t.Fatalf("Edges failed: %v", err)
			}
			if dups.Len() != 1 || !dups.Contains("a") {
				t.Errorf("duplicates = %v", dups.OriginalIDs())
			}
			if e, _ := dups.Get("a"); e.SimilarityScore != 0 {
				t.Errorf("duplicate score = %v, want first score kept", e.SimilarityScore)
			}
			if variants.Len() != 1 || !variants.Contains("c") {
				t.Errorf("variants = %v", variants.OriginalIDs())
			}

			if _, err := repo.AddEdges(ctx, "missing", models.EdgeDuplicate, []models.Edge{{OriginalID: "a"}}); !errors.Is(err, ErrNotFound) {
				t.Errorf("AddEdges(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAddEdges_ConcurrentReversePairs(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b"} {
				if _, err := repo.Create(ctx, record(id, "", "/data/"+id)); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}

			var wg sync.WaitGroup
			for range 10 {
				wg.Add(2)
				go func() {
					defer wg.Done()
					repo.AddEdges(ctx, "a", models.EdgeDuplicate, []models.Edge{{OriginalID: "b"}})
				}()
				go func() {
					defer wg.Done()
					repo.AddEdges(ctx, "b", models.EdgeDuplicate, []models.Edge{{OriginalID: "a"}})
				}()
			}
			wg.Wait()

			aDups, _, err := repo.Edges(ctx, "a")
			if err != nil {
				t.Fatalf("Edges failed: %v", err)
			}
			bDups, _, err := repo.Edges(ctx, "b")
			if err != nil {
				t.Fatalf("Edges failed: %v", err)
			}
			if aDups.Contains("b") == bDups.Contains("a") {
				t.Errorf("want exactly one direction, got a->b=%v b->a=%v", aDups.Contains("b"), bDups.Contains("a"))
			}
		})
	}
}

func TestSave_PersistsEdges(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			a := record("a", "", "/data/a")
			b := record("b", "", "/data/b")
			for _, m := range []*models.MediaRecord{a, b} {
				if _, err := repo.Create(ctx, m); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}

			b.Variants.Add(models.Edge{OriginalID: "a", SimilarityScore: 0.07})
			if err := repo.Save(ctx, b); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := repo.Get(ctx, "b")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			e, ok := got.Variants.Get("a")
			if !ok {
				t.Fatalf("variant edge missing: %v", got.Variants.OriginalIDs())
			}
			if e.SimilarityScore != 0.07 {
				t.Errorf("score = %v, want 0.07", e.SimilarityScore)
			}
			if got.Duplicates.Len() != 0 {
				t.Errorf("duplicates = %v, want none", got.Duplicates.OriginalIDs())
			}
		})
	}
}

func TestFindAndScope(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			a := record("a", "s1", "/a")
			a.Primary().ContentFingerprint = "same"
			a.Primary().PerceptualFingerprint = "p:01"
			b := record("b", "s2", "/b")
			b.Channels[models.ChannelFullRes] = models.Metadata{AssetLocation: "/b-full", ContentFingerprint: "same"}
			c := record("c", "s1", "/c")
			c.Primary().ContentFingerprint = "other"
			for _, m := range []*models.MediaRecord{a, b, c} {
				if _, err := repo.Create(ctx, m); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}

			got, err := repo.FindByContentFingerprint(ctx, "same", models.Scope{})
			if err != nil {
				t.Fatalf("FindByContentFingerprint failed: %v", err)
			}
			if ids := idsOf(got); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
				t.Errorf("global match = %v, want [a b]", ids)
			}

			got, err = repo.FindByContentFingerprint(ctx, "same", models.Scope{Source: "s2"})
			if err != nil {
				t.Fatalf("FindByContentFingerprint failed: %v", err)
			}
			if ids := idsOf(got); len(ids) != 1 || ids[0] != "b" {
				t.Errorf("scoped match = %v, want [b]", ids)
			}

			got, err = repo.FindByPerceptualFingerprint(ctx, "p:01", models.Scope{})
			if err != nil {
				t.Fatalf("FindByPerceptualFingerprint failed: %v", err)
			}
			if ids := idsOf(got); len(ids) != 1 || ids[0] != "a" {
				t.Errorf("perceptual match = %v, want [a]", ids)
			}

			got, err = repo.FindWithPerceptualFingerprint(ctx, models.Scope{})
			if err != nil {
				t.Fatalf("FindWithPerceptualFingerprint failed: %v", err)
			}
			if ids := idsOf(got); len(ids) != 1 || ids[0] != "a" {
				t.Errorf("with perceptual = %v, want [a]", ids)
			}

			got, err = repo.FindByContentFingerprint(ctx, "", models.Scope{})
			if err != nil || len(got) != 0 {
				t.Errorf("empty fingerprint = %v, %v", idsOf(got), err)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for _, m := range []*models.MediaRecord{record("a", "s1", "/a"), record("b", "s1", "/b"), record("c", "s2", "/c"), record("d", "s2", "/d")} {
				if _, err := repo.Create(ctx, m); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}
			if _, err := repo.AddEdges(ctx, "b", models.EdgeDuplicate, []models.Edge{{OriginalID: "a"}}); err != nil {
				t.Fatalf("AddEdges failed: %v", err)
			}
			d, _ := repo.Get(ctx, "d")
			d.Ignore(models.ReasonUnreadable)
			if err := repo.Save(ctx, d); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			tests := []struct {
				name   string
				filter Filter
				want   int
			}{
				{"all", Filter{}, 4},
				{"scoped", Filter{Scope: models.Scope{Source: "s2"}}, 2},
				{"related", Filter{Related: true}, 2},
				{"ignored", Filter{Ignored: true}, 1},
				{"limit", Filter{Limit: 3}, 3},
				{"offset", Filter{Offset: 3}, 1},
				{"offset past end", Filter{Offset: 10}, 0},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := repo.List(ctx, tt.filter)
					if err != nil {
						t.Fatalf("List failed: %v", err)
					}
					if len(got) != tt.want {
						t.Errorf("List(%+v) = %v, want %d records", tt.filter, idsOf(got), tt.want)
					}
				})
			}
		})
	}
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"c", "a", "b"} {
				if _, err := repo.Create(ctx, record(id, "", "/"+id)); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}
			got, err := repo.GetMany(ctx, []string{"c", "missing", "a"})
			if err != nil {
				t.Fatalf("GetMany failed: %v", err)
			}
			if ids := idsOf(got); len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
				t.Errorf("GetMany = %v, want [a c]", ids)
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Create(ctx, record("a", "", "/a")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := store.Get(ctx, "a")
	got.Duplicates.Add(models.Edge{OriginalID: "zzz"})
	got.Primary().ContentFingerprint = "mutated"

	again, _ := store.Get(ctx, "a")
	if again.Duplicates.Len() != 0 || again.Primary().ContentFingerprint != "" {
		t.Error("mutating a returned record should not affect the store")
	}
}

func idsOf(records []*models.MediaRecord) []string {
	ids := make([]string, len(records))
	for i, m := range records {
		ids[i] = m.ID
	}
	return ids
}
