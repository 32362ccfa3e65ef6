package saliency

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/openfluke/saliency/detector"
	"github.com/openfluke/saliency/nn"
)

// recorder is a Backpropagator that keeps the images it was given
type recorder struct {
	images []*nn.Image
	fail   int
}

func (r *recorder) Backprop(img *nn.Image, toLayer string) (*Map, error) {
	r.images = append(r.images, img)
	if r.fail > 0 && len(r.images) == r.fail {
		return nil, errors.New("boom")
	}
	return &Map{Layer: toLayer, Shape: img.Shape(), Data: append([]float32(nil), img.Data...)}, nil
}

// TestSmoothSingleSampleNoNoise verifies n=1 without noise equals Backprop
func TestSmoothSingleSampleNoNoise(t *testing.T) {
	net := testNetwork(t)
	img := testImage(20)

	s := &Smoother{NoiseScale: 0, Rand: rand.New(rand.NewSource(1)), Workers: 1}
	a := NewGuided(net, WithSmoother(s))
	if err := a.SetLayer("fc2", 2); err != nil {
		t.Fatalf("SetLayer failed: %v", err)
	}

	plain, err := a.Backprop(img, "conv1")
	if err != nil {
		t.Fatalf("Backprop failed: %v", err)
	}
	smooth, err := a.BackpropSmooth(img, 1, "conv1")
	if err != nil {
		t.Fatalf("BackpropSmooth failed: %v", err)
	}
	if !nn.ShapesEqual(plain.Shape, smooth.Shape) {
		t.Fatalf("expected shape %v, got %v", plain.Shape, smooth.Shape)
	}
	if diff := nn.MaxAbsDiff(plain.Data, smooth.Data); diff != 0 {
		t.Errorf("expected identical maps, max diff %g", diff)
	}
}

// TestSmoothShapeIndependentOfSamples verifies the sample count never changes the shape
func TestSmoothShapeIndependentOfSamples(t *testing.T) {
	net := testNetwork(t)
	img := testImage(21)
	a := NewVanilla(net, WithSmoother(NewSmoother(rand.New(rand.NewSource(5)))))
	if err := a.SetLayer("conv2_relu", 0); err != nil {
		t.Fatalf("SetLayer failed: %v", err)
	}

	for _, n := range []int{1, 2, 7} {
		m, err := a.BackpropSmooth(img, n, "pool1")
		if err != nil {
			t.Fatalf("n=%d: BackpropSmooth failed: %v", n, err)
		}
		if !nn.ShapesEqual(m.Shape, []int{4, 8, 8}) {
			t.Errorf("n=%d: expected shape [4 8 8], got %v", n, m.Shape)
		}
	}
	if n := net.HookCount(); n != 0 {
		t.Errorf("expected 0 hooks, got %d", n)
	}
}

// TestSmoothInvalidSampleCount verifies n < 1 is rejected
func TestSmoothInvalidSampleCount(t *testing.T) {
	net := testNetwork(t)
	a := NewVanilla(net)
	if err := a.SetLayer("fc2", 0); err != nil {
		t.Fatalf("SetLayer failed: %v", err)
	}
	for _, n := range []int{0, -3} {
		if _, err := a.BackpropSmooth(testImage(22), n, "conv1"); !errors.Is(err, ErrInvalidSampleCount) {
			t.Errorf("n=%d: expected ErrInvalidSampleCount, got %v", n, err)
		}
	}
}

// TestSmoothReproducibleWithSeed verifies equal seeds give equal maps
func TestSmoothReproducibleWithSeed(t *testing.T) {
	net := testNetwork(t)
	img := testImage(23)

	run := func(seed int64) *Map {
		a := NewGuided(net, WithSmoother(NewSmoother(rand.New(rand.NewSource(seed)))))
		if err := a.SetLayer("fc2", 1); err != nil {
			t.Fatalf("SetLayer failed: %v", err)
		}
		m, err := a.BackpropSmooth(img, 4, "conv1")
		if err != nil {
			t.Fatalf("BackpropSmooth failed: %v", err)
		}
		return m
	}

	first, second, other := run(9), run(9), run(10)
	if diff := nn.MaxAbsDiff(first.Data, second.Data); diff != 0 {
		t.Errorf("same seed should reproduce, max diff %g", diff)
	}
	if nn.MaxAbsDiff(first.Data, other.Data) == 0 {
		t.Error("different seeds should give different maps")
	}
}

// TestSmoothParallelMatchesSequential verifies worker count does not change the result
func TestSmoothParallelMatchesSequential(t *testing.T) {
	net := testNetwork(t)
	img := testImage(24)
	a := NewGuided(net)
	if err := a.SetLayer("fc2", 3); err != nil {
		t.Fatalf("SetLayer failed: %v", err)
	}

	seq := &Smoother{NoiseScale: 0.2, Rand: rand.New(rand.NewSource(77)), Workers: 1}
	par := &Smoother{NoiseScale: 0.2, Rand: rand.New(rand.NewSource(77)), Workers: 3}

	want, err := seq.Smooth(a, img, 7, "conv1")
	if err != nil {
		t.Fatalf("sequential Smooth failed: %v", err)
	}
	got, err := par.Smooth(a, img, 7, "conv1")
	if err != nil {
		t.Fatalf("parallel Smooth failed: %v", err)
	}
	if diff := nn.MaxAbsDiff(want.Data, got.Data); diff != 0 {
		t.Errorf("parallel result differs by %g", diff)
	}
	if n := net.HookCount(); n != 0 {
		t.Errorf("expected 0 hooks on the shared network, got %d", n)
	}
}

// TestSmoothWorkersFromDetector verifies Workers == 0 defers to the detector
func TestSmoothWorkersFromDetector(t *testing.T) {
	t.Setenv(detector.WorkersEnv, "2")
	net := testNetwork(t)
	img := testImage(25)
	a := NewVanilla(net)
	if err := a.SetLayer("fc2", 0); err != nil {
		t.Fatalf("SetLayer failed: %v", err)
	}

	auto := &Smoother{NoiseScale: 0.1, Rand: rand.New(rand.NewSource(3)), Workers: 0}
	seq := &Smoother{NoiseScale: 0.1, Rand: rand.New(rand.NewSource(3)), Workers: 1}
	got, err := auto.Smooth(a, img, 4, "conv1")
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	want, err := seq.Smooth(a, img, 4, "conv1")
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	if diff := nn.MaxAbsDiff(want.Data, got.Data); diff != 0 {
		t.Errorf("expected identical maps, max diff %g", diff)
	}
}

// TestSmoothNoiseScale verifies noise is scaled by the image range and the
// mean of the samples is returned.
func TestSmoothNoiseScale(t *testing.T) {
	img := nn.NewImage(3, 16, 16)
	for i := range img.Data {
		img.Data[i] = float32(i%2) * 2 // range [0, 2]
	}

	rec := &recorder{}
	s := &Smoother{NoiseScale: 0.1, Rand: rand.New(rand.NewSource(11)), Workers: 4}
	m, err := s.Smooth(rec, img, 3, "input")
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	if len(rec.images) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(rec.images))
	}

	for k, sample := range rec.images {
		var sum, sq float64
		for i, v := range sample.Data {
			d := float64(v - img.Data[i])
			sum += d
			sq += d * d
		}
		n := float64(len(sample.Data))
		mean := sum / n
		std := math.Sqrt(sq/n - mean*mean)
		if std < 0.17 || std > 0.23 {
			t.Errorf("sample %d: expected noise std near 0.2, got %.3f", k, std)
		}
		if math.Abs(mean) > 0.05 {
			t.Errorf("sample %d: expected zero-mean noise, got %.3f", k, mean)
		}
	}

	for i := range m.Data {
		want := (rec.images[0].Data[i] + rec.images[1].Data[i] + rec.images[2].Data[i]) / 3
		if math.Abs(float64(m.Data[i]-want)) > 1e-5 {
			t.Fatalf("element %d: expected mean %v, got %v", i, want, m.Data[i])
		}
	}
	if img.Data[1] != 2 {
		t.Error("source image must not be modified")
	}
}

// TestSmoothPropagatesSampleError verifies a failing sample fails the call
func TestSmoothPropagatesSampleError(t *testing.T) {
	rec := &recorder{fail: 2}
	s := &Smoother{NoiseScale: 0.1, Rand: rand.New(rand.NewSource(1)), Workers: 1}
	m, err := s.Smooth(rec, nn.NewImage(1, 2, 2), 4, "input")
	if err == nil {
		t.Fatal("expected an error")
	}
	if m != nil {
		t.Error("no map should be returned on failure")
	}
}

// TestSmoothUnconfiguredAttributor verifies configuration errors surface through smoothing
func TestSmoothUnconfiguredAttributor(t *testing.T) {
	net := testNetwork(t)
	a := NewVanilla(net)
	s := &Smoother{NoiseScale: 0.1, Rand: rand.New(rand.NewSource(1)), Workers: 2}
	if _, err := s.Smooth(a, testImage(26), 3, "conv1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
