package mathutil

import (
	"math"
	"math/rand"
	"testing"
)

func TestMeanAndStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Mean(xs); got != 5 {
		t.Fatalf("mean %g", got)
	}
	want := math.Sqrt(32.0 / 7.0)
	if got := SampleStdDev(xs); math.Abs(got-want) > 1e-12 {
		t.Fatalf("stddev %g, want %g", got, want)
	}
	if Mean(nil) != 0 || SampleStdDev([]float64{1}) != 0 {
		t.Fatal("degenerate inputs not zeroed")
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	cases := []struct{ p, want float64 }{
		{0, 10}, {100, 40}, {50, 25}, {25, 17.5}, {75, 32.5},
	}
	for _, c := range cases {
		if got := Percentile(sorted, c.p); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("p%g: got %g, want %g", c.p, got, c.want)
		}
	}
	if Percentile([]float64{7}, 50) != 7 {
		t.Fatal("single element percentile")
	}
	if Percentile(nil, 50) != 0 {
		t.Fatal("empty percentile")
	}
}

func TestSortedCopyLeavesInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	out := SortedCopy(xs)
	if xs[0] != 3 {
		t.Fatal("input mutated")
	}
	if out[0] != 1 || out[2] != 3 {
		t.Fatalf("not sorted: %v", out)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 1) != 1 || Clamp(-5, 0, 1) != 0 || Clamp(0.5, 0, 1) != 0.5 {
		t.Fatal("clamp")
	}
	if Clamp01(1.2) != 1 || Clamp01(-0.2) != 0 {
		t.Fatal("clamp01")
	}
}

func TestBetaSampleRangeAndMean(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		v := BetaSample(rng, 2, 5)
		if v < 0 || v > 1 {
			t.Fatalf("beta sample %g outside [0,1]", v)
		}
		sum += v
	}
	mean := sum / n
	// Beta(2,5) has mean 2/7.
	if math.Abs(mean-2.0/7.0) > 0.01 {
		t.Fatalf("beta mean %g, want about %g", mean, 2.0/7.0)
	}
}

func TestGammaSamplePositiveSmallShape(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 5000; i++ {
		if v := GammaSample(rng, 0.5); v < 0 {
			t.Fatalf("gamma sample %g negative", v)
		}
	}
}

func TestTriangularSampleRangeAndMean(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		v := TriangularSample(rng, 6, 9, 12)
		if v < 6 || v > 12 {
			t.Fatalf("triangular sample %g outside [6,12]", v)
		}
		sum += v
	}
	if mean := sum / n; math.Abs(mean-9) > 0.1 {
		t.Fatalf("triangular mean %g, want about 9", mean)
	}
}
