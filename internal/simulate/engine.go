package simulate

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/mathutil"
	"github.com/joelkehle/stratscope/internal/pattern"
)

// PercentileLevels are the summary percentiles reported for every KPI.
var PercentileLevels = []int{5, 10, 25, 50, 75, 90, 95}

// ConfidenceLevels are the reported two-sided confidence intervals.
var ConfidenceLevels = []int{90, 95, 99}

// Result is the simulation summary for one (pattern, KPI) pair. Immutable
// once produced.
type Result struct {
	KPIName             string             `json:"kpi_name"`
	IterationCount      int                `json:"iteration_count"`
	Mean                float64            `json:"mean"`
	Median              float64            `json:"median"`
	StdDev              float64            `json:"std_dev"`
	Percentiles         map[int]float64    `json:"percentiles"`
	ConfidenceIntervals map[int][2]float64 `json:"confidence_intervals"`
	ProbabilityPositive float64            `json:"probability_positive"`
	ValueAtRisk95       float64            `json:"value_at_risk_95"`
	ExpectedShortfall95 float64            `json:"expected_shortfall_95"`
}

// Engine draws samples from a pattern's declared outcome distributions and
// summarizes them. Pure; safe for concurrent use across sessions.
type Engine struct {
	defaultIterations int
}

func NewEngine(defaultIterations int) *Engine {
	if defaultIterations <= 0 {
		defaultIterations = 1000
	}
	return &Engine{defaultIterations: defaultIterations}
}

func (e *Engine) DefaultIterations() int { return e.defaultIterations }

// Simulate runs the Monte Carlo for every KPI of the pattern. iterations <= 0
// selects the engine default. With a fixed seed the output is bit-identical
// across calls: each KPI derives its own sub-seed from the run seed and the
// KPI name, so the per-KPI goroutines cannot perturb each other's streams.
func (e *Engine) Simulate(p pattern.Pattern, iterations int, seed int64) (map[string]Result, error) {
	if iterations <= 0 {
		iterations = e.defaultIterations
	}
	// Every distribution is checked before a single sample is drawn, so a
	// bad KPI cannot leave a partially simulated result behind.
	names := make([]string, 0, len(p.OutcomeKPIs))
	for kpi, dist := range p.OutcomeKPIs {
		if err := dist.Validate(); err != nil {
			return nil, &catalog.ConfigurationError{Entity: "pattern", ID: p.ID, Reason: fmt.Sprintf("kpi %q: %v", kpi, err)}
		}
		names = append(names, kpi)
	}
	sort.Strings(names)

	out := make(map[string]Result, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, kpi := range names {
		wg.Add(1)
		go func(kpi string, dist pattern.Distribution) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(subSeed(seed, kpi)))
			samples := drawSamples(rng, dist, iterations)
			res := summarize(kpi, samples)
			mu.Lock()
			out[kpi] = res
			mu.Unlock()
		}(kpi, p.OutcomeKPIs[kpi])
	}
	wg.Wait()
	return out, nil
}

func subSeed(seed int64, kpi string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(kpi))
	return seed ^ int64(h.Sum64())
}

func drawSamples(rng *rand.Rand, d pattern.Distribution, n int) []float64 {
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = mathutil.Clamp(sampleOne(rng, d), d.Bounds[0], d.Bounds[1])
	}
	return samples
}

func sampleOne(rng *rand.Rand, d pattern.Distribution) float64 {
	switch d.Kind {
	case pattern.KindTriangular:
		return mathutil.TriangularSample(rng, d.Min, d.Mode, d.Max)
	case pattern.KindNormal:
		return rng.NormFloat64()*d.Std + d.Mean
	case pattern.KindBeta:
		return mathutil.BetaSample(rng, d.Alpha, d.Beta)
	case pattern.KindLognormal:
		return math.Exp(rng.NormFloat64()*d.Sigma + d.Mu)
	default:
		// Unreachable: kinds are validated before sampling.
		return 0
	}
}

func summarize(kpi string, samples []float64) Result {
	sorted := mathutil.SortedCopy(samples)
	res := Result{
		KPIName:             kpi,
		IterationCount:      len(samples),
		Mean:                mathutil.Mean(samples),
		Median:              mathutil.Percentile(sorted, 50),
		StdDev:              mathutil.SampleStdDev(samples),
		Percentiles:         make(map[int]float64, len(PercentileLevels)),
		ConfidenceIntervals: make(map[int][2]float64, len(ConfidenceLevels)),
	}
	for _, p := range PercentileLevels {
		res.Percentiles[p] = mathutil.Percentile(sorted, float64(p))
	}
	for _, ci := range ConfidenceLevels {
		tail := (100 - float64(ci)) / 2
		res.ConfidenceIntervals[ci] = [2]float64{
			mathutil.Percentile(sorted, tail),
			mathutil.Percentile(sorted, 100-tail),
		}
	}
	positive := 0
	for _, s := range samples {
		if s > 0 {
			positive++
		}
	}
	res.ProbabilityPositive = float64(positive) / float64(len(samples))

	p5 := res.Percentiles[5]
	res.ValueAtRisk95 = p5
	var tailSum float64
	tailCount := 0
	for _, s := range sorted {
		if s > p5 {
			break
		}
		tailSum += s
		tailCount++
	}
	if tailCount > 0 {
		res.ExpectedShortfall95 = tailSum / float64(tailCount)
	}
	return res
}
