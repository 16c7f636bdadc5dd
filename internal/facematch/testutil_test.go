package facematch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"sync"
	"testing"

	"github.com/kozaktomas/reunite/internal/faces"
)

const testDim = 4

// fakeDetector returns canned faces keyed by frame bytes.
type fakeDetector struct {
	mu        sync.Mutex
	frames    map[string][]faces.Face
	detectErr error
	healthErr error
	block     bool
	calls     int
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{frames: make(map[string][]faces.Face)}
}

func (f *fakeDetector) set(frame []byte, detected ...faces.Face) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[string(frame)] = detected
}

func (f *fakeDetector) DetectFaces(ctx context.Context, imageData []byte) ([]faces.Face, error) {
	f.mu.Lock()
	f.calls++
	block, err := f.block, f.detectErr
	detected := f.frames[string(imageData)]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return detected, nil
}

func (f *fakeDetector) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

// testFrame encodes a distinct PNG of the given size; seed varies the pixels.
func testFrame(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = seed
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return buf.Bytes()
}

// face builds a detector face with a pixel bbox.
func face(embedding []float32, x1, y1, x2, y2 float64) faces.Face {
	return faces.Face{Dim: len(embedding), Embedding: embedding, BBox: []float64{x1, y1, x2, y2}, DetScore: 0.9}
}

// withSimilarity returns a unit vector whose cosine similarity to e0 is s.
func withSimilarity(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s)), 0, 0}
}

func e(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

func newReadyExtractor(t *testing.T, d *fakeDetector) *Extractor {
	t.Helper()
	x := NewExtractor(d, ExtractorOptions{Dim: testDim})
	if err := x.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return x
}
