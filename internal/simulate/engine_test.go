package simulate

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/pattern"
)

func simPattern(kpis map[string]pattern.Distribution) pattern.Pattern {
	return pattern.Pattern{
		ID:          "SIM",
		Name:        "Simulation Pattern",
		Type:        pattern.TypeOpportunity,
		OutcomeKPIs: kpis,
	}
}

func TestSimulateTriangularStatistics(t *testing.T) {
	eng := NewEngine(0)
	p := simPattern(map[string]pattern.Distribution{
		"payoff": {Kind: pattern.KindTriangular, Min: 6, Mode: 9, Max: 12, Bounds: [2]float64{0, 20}},
	})
	out, err := eng.Simulate(p, 10000, 42)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	res := out["payoff"]
	if res.IterationCount != 10000 {
		t.Fatalf("iterations %d", res.IterationCount)
	}
	// Triangular(6,9,12) has mean 9.
	if res.Mean < 8.5 || res.Mean > 9.5 {
		t.Fatalf("mean %g outside [8.5, 9.5]", res.Mean)
	}
	if res.Percentiles[5] < 6 || res.Percentiles[5] > 7.5 {
		t.Fatalf("p5 %g implausible", res.Percentiles[5])
	}
	if res.Percentiles[95] < 10.5 || res.Percentiles[95] > 12 {
		t.Fatalf("p95 %g implausible", res.Percentiles[95])
	}
	if res.ValueAtRisk95 != res.Percentiles[5] {
		t.Fatalf("VaR95 %g != p5 %g", res.ValueAtRisk95, res.Percentiles[5])
	}
	if res.ExpectedShortfall95 > res.ValueAtRisk95 {
		t.Fatalf("ES95 %g above VaR95 %g", res.ExpectedShortfall95, res.ValueAtRisk95)
	}
	if res.ProbabilityPositive != 1 {
		t.Fatalf("prob positive %g", res.ProbabilityPositive)
	}
}

func TestSimulateDeterministicForSeed(t *testing.T) {
	eng := NewEngine(0)
	p := simPattern(map[string]pattern.Distribution{
		"a": {Kind: pattern.KindNormal, Mean: 0.2, Std: 0.1, Bounds: [2]float64{-1, 1}},
		"b": {Kind: pattern.KindBeta, Alpha: 2, Beta: 5, Bounds: [2]float64{0, 1}},
		"c": {Kind: pattern.KindLognormal, Mu: -1, Sigma: 0.4, Bounds: [2]float64{0, 5}},
	})
	first, err := eng.Simulate(p, 2000, 1234)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.Simulate(p, 2000, 1234)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same seed produced different results")
	}
	other, err := eng.Simulate(p, 2000, 4321)
	if err != nil {
		t.Fatal(err)
	}
	if first["a"].Mean == other["a"].Mean {
		t.Fatal("different seeds produced identical stream")
	}
}

func TestSimulateBoundsClipping(t *testing.T) {
	eng := NewEngine(0)
	p := simPattern(map[string]pattern.Distribution{
		"clipped": {Kind: pattern.KindNormal, Mean: 0, Std: 10, Bounds: [2]float64{-1, 1}},
	})
	out, err := eng.Simulate(p, 5000, 7)
	if err != nil {
		t.Fatal(err)
	}
	res := out["clipped"]
	if res.Percentiles[5] < -1 || res.Percentiles[95] > 1 {
		t.Fatalf("bounds not enforced: p5=%g p95=%g", res.Percentiles[5], res.Percentiles[95])
	}
}

func TestSimulateConfidenceIntervalsOrdered(t *testing.T) {
	eng := NewEngine(0)
	p := simPattern(map[string]pattern.Distribution{
		"kpi": {Kind: pattern.KindBeta, Alpha: 3, Beta: 3, Bounds: [2]float64{0, 1}},
	})
	out, err := eng.Simulate(p, 5000, 99)
	if err != nil {
		t.Fatal(err)
	}
	res := out["kpi"]
	for _, level := range ConfidenceLevels {
		ci, ok := res.ConfidenceIntervals[level]
		if !ok {
			t.Fatalf("missing %d%% interval", level)
		}
		if ci[0] > ci[1] {
			t.Fatalf("%d%% interval inverted: %v", level, ci)
		}
	}
	ci90, ci99 := res.ConfidenceIntervals[90], res.ConfidenceIntervals[99]
	if ci99[0] > ci90[0] || ci99[1] < ci90[1] {
		t.Fatalf("99%% interval %v does not contain 90%% interval %v", ci99, ci90)
	}
	for _, level := range PercentileLevels {
		if _, ok := res.Percentiles[level]; !ok {
			t.Fatalf("missing percentile %d", level)
		}
	}
}

func TestSimulateMedianMatchesP50(t *testing.T) {
	eng := NewEngine(0)
	p := simPattern(map[string]pattern.Distribution{
		"kpi": {Kind: pattern.KindTriangular, Min: 0, Mode: 0.5, Max: 1, Bounds: [2]float64{0, 1}},
	})
	out, err := eng.Simulate(p, 1000, 5)
	if err != nil {
		t.Fatal(err)
	}
	res := out["kpi"]
	if math.Abs(res.Median-res.Percentiles[50]) > 1e-12 {
		t.Fatalf("median %g != p50 %g", res.Median, res.Percentiles[50])
	}
}

func TestSimulateRejectsInvalidDistributionBeforeSampling(t *testing.T) {
	eng := NewEngine(0)
	p := simPattern(map[string]pattern.Distribution{
		"good": {Kind: pattern.KindNormal, Mean: 0, Std: 1, Bounds: [2]float64{-5, 5}},
		"bad":  {Kind: pattern.KindNormal, Mean: 0, Std: -1, Bounds: [2]float64{-5, 5}},
	})
	out, err := eng.Simulate(p, 1000, 1)
	var ce *catalog.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if out != nil {
		t.Fatalf("partial results returned: %v", out)
	}
}

func TestSimulateDefaultIterations(t *testing.T) {
	eng := NewEngine(500)
	p := simPattern(map[string]pattern.Distribution{
		"kpi": {Kind: pattern.KindBeta, Alpha: 2, Beta: 2, Bounds: [2]float64{0, 1}},
	})
	out, err := eng.Simulate(p, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out["kpi"].IterationCount != 500 {
		t.Fatalf("iterations %d, want engine default 500", out["kpi"].IterationCount)
	}
}
