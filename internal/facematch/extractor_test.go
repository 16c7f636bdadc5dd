package facematch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/faces"
)

func TestExtractor_LargestFaceWins(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 200, 100, 1)
	d.set(frame,
		face(e(0), 0, 0, 20, 20),     // 400
		face(e(1), 50, 10, 100, 60),  // 2500
		face(e(2), 120, 10, 170, 60), // 2500, tie keeps the earlier one
	)
	x := newReadyExtractor(t, d)

	got, err := x.Extract(context.Background(), frame)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got == nil || got.Embedding[1] != 1 {
		t.Fatalf("expected second face, got %+v", got)
	}
	want := database.BBox{X: 0.25, Y: 0.1, Width: 0.25, Height: 0.5}
	if !bboxAlmostEqual(got.BBox, want) {
		t.Errorf("BBox = %+v, want %+v", got.BBox, want)
	}
}

func TestExtractor_NoFace(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 10, 10, 2)
	x := newReadyExtractor(t, d)

	got, err := x.Extract(context.Background(), frame)
	if err != nil || got != nil {
		t.Errorf("Extract() = %+v, %v; want nil, nil", got, err)
	}
}

func TestExtractor_DropsWrongDimension(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 3)
	d.set(frame,
		face([]float32{1, 0}, 0, 0, 90, 90),
		face(e(3), 0, 0, 10, 10),
	)
	x := newReadyExtractor(t, d)

	all, err := x.ExtractAll(context.Background(), frame)
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(all) != 1 || all[0].Embedding[3] != 1 {
		t.Errorf("expected only the valid face, got %+v", all)
	}
}

func TestExtractor_DropsNonFiniteEmbedding(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 100, 100, 4)
	nan := float32(math.NaN())
	d.set(frame,
		face([]float32{nan, 0, 0, 0}, 0, 0, 90, 90),
		face([]float32{0, 0, 0, 0}, 0, 0, 80, 80),
		face(e(2), 0, 0, 10, 10),
	)
	x := newReadyExtractor(t, d)

	got, err := x.Extract(context.Background(), frame)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got == nil || got.Embedding[2] != 1 {
		t.Errorf("expected the only finite face, got %+v", got)
	}
}

func TestExtractor_DecodeError(t *testing.T) {
	d := newFakeDetector()
	x := newReadyExtractor(t, d)

	_, err := x.ExtractAll(context.Background(), []byte("not an image"))
	if !errors.Is(err, faces.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if d.calls != 0 {
		t.Errorf("detector should not be called for undecodable frames")
	}
}

func TestExtractor_Unavailable(t *testing.T) {
	d := newFakeDetector()
	frame := testFrame(t, 10, 10, 4)

	x := NewExtractor(d, ExtractorOptions{Dim: testDim})
	if _, err := x.ExtractAll(context.Background(), frame); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("extractor before Reload should be unavailable, got %v", err)
	}

	d.healthErr = faces.ErrUnavailable
	if err := x.Reload(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("Reload with failing health = %v", err)
	}

	d.healthErr = nil
	if err := x.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	d.detectErr = fmt.Errorf("%w: status 503", faces.ErrUnavailable)
	if _, err := x.ExtractAll(context.Background(), frame); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if x.Available() {
		t.Error("extractor should be marked unavailable after detector failure")
	}

	d.detectErr = nil
	calls := d.calls
	if _, err := x.ExtractAll(context.Background(), frame); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable until Reload, got %v", err)
	}
	if d.calls != calls {
		t.Error("unavailable extractor should not call the detector")
	}
}

func TestExtractor_TimeoutIsNoFace(t *testing.T) {
	d := newFakeDetector()
	d.block = true
	frame := testFrame(t, 10, 10, 5)

	x := NewExtractor(d, ExtractorOptions{Dim: testDim, Timeout: 20 * time.Millisecond})
	if err := x.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	start := time.Now()
	got, err := x.ExtractAll(context.Background(), frame)
	if err != nil || len(got) != 0 {
		t.Errorf("ExtractAll() = %v, %v; want no faces and no error", got, err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout was not enforced")
	}
	if !x.Available() {
		t.Error("a timeout must not mark the model unavailable")
	}
}
