package saliency

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfluke/saliency/detector"
	"github.com/openfluke/saliency/nn"
)

// DefaultNoiseScale is the noise standard deviation as a fraction of the
// image's value range.
const DefaultNoiseScale = 0.2

// Smoother averages attribution maps over noisy copies of an image.
//
// Noise for every sample is drawn from Rand in sample order before any pass
// runs, and maps are summed in sample order, so a seeded Rand gives the same
// result for any Workers value.
type Smoother struct {
	// NoiseScale times (max - min) of the image is the noise std.
	NoiseScale float64
	// Rand supplies the noise. Draws happen on the calling goroutine.
	Rand *rand.Rand
	// Workers is the number of concurrent passes. 0 picks one per physical
	// core; 1 runs sequentially. Parallel runs need a Forker.
	Workers int

	mu sync.Mutex // guards Rand
}

// NewSmoother returns a sequential smoother with the default noise scale.
// A nil rng is seeded from the clock.
func NewSmoother(rng *rand.Rand) *Smoother {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Smoother{NoiseScale: DefaultNoiseScale, Rand: rng, Workers: 1}
}

// Smooth returns the element-wise mean of inner's maps over n noisy copies
// of img.
func (s *Smoother) Smooth(inner Backpropagator, img *nn.Image, n int, toLayer string) (*Map, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleCount, n)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrShapeMismatch)
	}
	lo, hi := img.Range()
	sigma := s.NoiseScale * float64(hi-lo)

	workers := s.Workers
	if workers == 0 {
		workers = detector.RecommendedWorkers()
	}
	if workers > n {
		workers = n
	}

	noisy := s.samples(img, n, sigma)

	var maps []*Map
	var err error
	if forker, ok := inner.(Forker); ok && workers > 1 {
		maps, err = s.parallel(forker, noisy, workers, toLayer)
	} else {
		maps, err = s.sequential(inner, noisy, toLayer)
	}
	if err != nil {
		return nil, err
	}
	acc := newAccumulator()
	for _, m := range maps {
		if err := acc.add(m); err != nil {
			return nil, err
		}
	}
	return acc.mean(), nil
}

func (s *Smoother) sequential(inner Backpropagator, noisy []*nn.Image, toLayer string) ([]*Map, error) {
	maps := make([]*Map, len(noisy))
	for i, img := range noisy {
		m, err := inner.Backprop(img, toLayer)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		maps[i] = m
	}
	return maps, nil
}

// parallel runs the noisy samples on at most workers forks of inner.
// Results keep sample order.
func (s *Smoother) parallel(inner Forker, noisy []*nn.Image, workers int, toLayer string) ([]*Map, error) {
	forks := make(chan Backpropagator, workers)
	for w := 0; w < workers; w++ {
		forks <- inner.Fork()
	}

	maps := make([]*Map, len(noisy))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := range noisy {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fork := <-forks
			defer func() { forks <- fork }()

			m, err := fork.Backprop(noisy[i], toLayer)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			maps[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return maps, nil
}

// samples draws all n noisy copies in order
func (s *Smoother) samples(img *nn.Image, n int, sigma float64) []*nn.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	noisy := make([]*nn.Image, n)
	for i := range noisy {
		noisy[i] = s.perturb(img, sigma)
	}
	return noisy
}

// perturb returns a copy of img with N(0, sigma) noise added to every element
func (s *Smoother) perturb(img *nn.Image, sigma float64) *nn.Image {
	out := img.Clone()
	if sigma == 0 {
		return out
	}
	for i := range out.Data {
		out.Data[i] += float32(s.Rand.NormFloat64() * sigma)
	}
	return out
}

type accumulator struct {
	layer string
	shape []int
	sum   []float64
	count int
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

func (a *accumulator) add(m *Map) error {
	if a.sum == nil {
		a.layer = m.Layer
		a.shape = append([]int(nil), m.Shape...)
		a.sum = make([]float64, len(m.Data))
	} else if !nn.ShapesEqual(a.shape, m.Shape) || len(m.Data) != len(a.sum) {
		return fmt.Errorf("%w: sample map %v differs from %v", ErrShapeMismatch, m.Shape, a.shape)
	}
	for i, v := range m.Data {
		a.sum[i] += float64(v)
	}
	a.count++
	return nil
}

func (a *accumulator) mean() *Map {
	data := make([]float32, len(a.sum))
	for i, v := range a.sum {
		data[i] = float32(v / float64(a.count))
	}
	return &Map{Layer: a.layer, Shape: a.shape, Data: data}
}
