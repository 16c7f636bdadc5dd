package facematch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/logging"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNoImages is returned when enrollment is called without images.
	ErrNoImages = errors.New("no enrollment images")
	// ErrNoUsableImages is returned when none of the images contained a face.
	ErrNoUsableImages = errors.New("no usable enrollment images")
)

// Enrollment is the aggregated signature of one enrollment call.
type Enrollment struct {
	Embedding []float32
	Used      int
	Failed    int
}

// Provenance describes how the embedding was produced.
func (e *Enrollment) Provenance() string {
	return fmt.Sprintf("aggregated from %d of %d images", e.Used, e.Used+e.Failed)
}

// Aggregator builds one gallery signature from several reference photos.
type Aggregator struct {
	extractor   *Extractor
	concurrency int
	log         *slog.Logger
}

// NewAggregator creates an aggregator extracting up to concurrency images at once.
func NewAggregator(extractor *Extractor, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = constants.DefaultEnrollConcurrency
	}
	return &Aggregator{extractor: extractor, concurrency: concurrency, log: logging.OrDiscard(logger)}
}

// Aggregate extracts the largest face of every image and returns the
// component-wise mean of the embeddings found. Images without a face or that
// fail to decode are counted in Failed. The mean is not renormalized.
func (a *Aggregator) Aggregate(ctx context.Context, images [][]byte) (*Enrollment, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	results := make([][]float32, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, img := range images {
		g.Go(func() error {
			face, err := a.extractor.Extract(gctx, img)
			switch {
			case errors.Is(err, ErrModelUnavailable):
				return err
			case err != nil:
				a.log.Warn("enrollment image rejected", "index", i, "error", err)
				return nil
			case face == nil:
				a.log.Info("no face in enrollment image", "index", i)
				return nil
			}
			results[i] = face.Embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := a.extractor.Dim()
	sum := make([]float64, dim)
	row := make([]float64, dim)
	enrollment := &Enrollment{}
	for _, emb := range results {
		if emb == nil {
			enrollment.Failed++
			continue
		}
		for j, v := range emb {
			row[j] = float64(v)
		}
		floats.Add(sum, row)
		enrollment.Used++
	}

	if enrollment.Used == 0 {
		return nil, fmt.Errorf("%w: %d images without a face", ErrNoUsableImages, enrollment.Failed)
	}

	floats.Scale(1/float64(enrollment.Used), sum)
	enrollment.Embedding = make([]float32, dim)
	for j, v := range sum {
		enrollment.Embedding[j] = float32(v)
	}
	return enrollment, nil
}
