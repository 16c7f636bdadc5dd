package facematch

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/geo"
)

func seedGallery(t *testing.T, store *mock.Store, entries map[string][]float32) {
	t.Helper()
	for id, emb := range entries {
		if err := store.AddEntry(context.Background(), &database.GalleryEntry{IdentityID: id, Embedding: emb}); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
}

func TestEngine_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		sim       float64
		wantMatch bool
	}{
		{"above threshold", 0.71, true},
		{"below threshold", 0.69, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDetector()
			frame := testFrame(t, 100, 100, 1)
			d.set(frame, face(withSimilarity(tt.sim), 10, 10, 50, 50))

			store := mock.NewStore()
			seedGallery(t, store, map[string][]float32{"MP-1": e(0)})

			engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{Threshold: 0.70})
			got, err := engine.Match(context.Background(), frame, nil)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if (len(got) == 1) != tt.wantMatch {
				t.Fatalf("Match() = %+v, want match = %v", got, tt.wantMatch)
			}
			if tt.wantMatch && math.Abs(got[0].Similarity-tt.sim) > 1e-6 {
				t.Errorf("Similarity = %f, want %f", got[0].Similarity, tt.sim)
			}
		})
	}
}

func TestEngine_ThresholdInclusive(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 7)
	d.set(frame, face(e(2), 10, 10, 50, 50))

	store := mock.NewStore()
	seedGallery(t, store, map[string][]float32{"MP-1": e(2)})

	engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{Threshold: 1.0})
	got, err := engine.Match(context.Background(), frame, nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("similarity equal to the threshold must match, got %+v", got)
	}
}

func TestEngine_MultiFace(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 2)
	d.set(frame,
		face(e(0), 0, 0, 10, 10),
		face(e(2), 20, 20, 30, 30), // unknown face
		face(e(1), 50, 50, 90, 90),
		face(e(0), 60, 0, 70, 10), // same identity again
	)

	store := mock.NewStore()
	seedGallery(t, store, map[string][]float32{"MP-A": e(0), "MP-B": e(1)})

	loc := &geo.Point{Lat: 18.5, Lon: 73.8}
	engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{})
	got, err := engine.Match(context.Background(), frame, loc)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	var ids []string
	for _, det := range got {
		ids = append(ids, det.IdentityID)
		if det.Location != loc {
			t.Errorf("detection lost its location")
		}
	}
	want := []string{"MP-A", "MP-B", "MP-A"}
	if len(ids) != len(want) {
		t.Fatalf("identities = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("identities = %v, want %v", ids, want)
		}
	}
}

func TestEngine_SkipsCorruptEntries(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 3)
	d.set(frame, face(e(1), 10, 10, 50, 50))

	store := mock.NewStore()
	seedGallery(t, store, map[string][]float32{
		"MP-BAD":  {1, 0},
		"MP-ZERO": {0, 0, 0, 0},
		"MP-GOOD": e(1),
	})

	engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{})
	got, err := engine.Match(context.Background(), frame, nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0].IdentityID != "MP-GOOD" {
		t.Errorf("Match() = %+v, want MP-GOOD only", got)
	}
}

func TestEngine_UsesLatestEntryAndInvalidate(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 4)
	d.set(frame, face(e(1), 10, 10, 50, 50))

	store := mock.NewStore()
	seedGallery(t, store, map[string][]float32{"MP-1": e(0)})

	engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{})
	got, _ := engine.Match(context.Background(), frame, nil)
	if len(got) != 0 {
		t.Fatalf("unexpected match before re-enrollment: %+v", got)
	}

	// re-enroll with a new signature; the cached snapshot hides it until invalidated
	seedGallery(t, store, map[string][]float32{"MP-1": e(1)})
	got, _ = engine.Match(context.Background(), frame, nil)
	if len(got) != 0 {
		t.Fatalf("expected cached snapshot to be used, got %+v", got)
	}

	engine.Invalidate()
	got, _ = engine.Match(context.Background(), frame, nil)
	if len(got) != 1 || got[0].IdentityID != "MP-1" {
		t.Errorf("Match() after Invalidate = %+v", got)
	}
}

func TestEngine_HNSWIndexAgreesWithLinear(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 5)
	d.set(frame, face(withSimilarity(0.9), 10, 10, 50, 50))

	store := mock.NewStore()
	seedGallery(t, store, map[string][]float32{"MP-1": e(0), "MP-2": e(2), "MP-3": e(3)})

	engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{Index: "HNSW", HNSWCandidate: 2})
	got, err := engine.Match(context.Background(), frame, nil)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0].IdentityID != "MP-1" {
		t.Errorf("Match() = %+v, want MP-1", got)
	}
}

func TestEngine_EmptyGalleryAndErrors(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 6)
	d.set(frame, face(e(0), 10, 10, 50, 50))

	store := mock.NewStore()
	engine := NewEngine(newReadyExtractor(t, d), store, EngineOptions{})
	got, err := engine.Match(context.Background(), frame, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("empty gallery: Match() = %+v, %v", got, err)
	}

	store.ListLatestError = errors.New("db down")
	engine.Invalidate()
	if _, err := engine.Match(context.Background(), frame, nil); err == nil {
		t.Error("expected gallery load error")
	}
}

// ctxGallery fails like a database driver when the caller's context is done.
type ctxGallery struct {
	*mock.Store
}

func (g ctxGallery) ListLatest(ctx context.Context) ([]database.GalleryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.ListLatest(ctx)
}

func TestEngine_SnapshotLoadIgnoresCallerCancellation(t *testing.T) {
	store := mock.NewStore()
	seedGallery(t, store, map[string][]float32{"MP-1": e(0)})
	engine := NewEngine(newReadyExtractor(t, newFakeDetector()), ctxGallery{store}, EngineOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	index, err := engine.snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot with cancelled caller: %v", err)
	}
	if index.Len() != 1 {
		t.Errorf("index.Len() = %d, want 1", index.Len())
	}
}
