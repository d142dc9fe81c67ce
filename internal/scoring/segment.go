package scoring

import (
	"context"
	"fmt"

	"github.com/joelkehle/stratscope/internal/catalog"
)

// SegmentEngine aggregates factor results into multi-metric segment results.
// Pure over its numeric inputs; the only external call is the pluggable
// insight generator.
type SegmentEngine struct {
	cat      *catalog.Catalog
	insights InsightGenerator
}

func NewSegmentEngine(cat *catalog.Catalog, insights InsightGenerator) *SegmentEngine {
	if insights == nil {
		insights = NoopInsightGenerator{}
	}
	return &SegmentEngine{cat: cat, insights: insights}
}

// ComputeSegments produces one SegmentResult per catalog segment, in catalog
// order. Factors without data are excluded from both the numerator and the
// denominator of every mean, not treated as 0. A segment with zero scored factors
// is flagged unavailable with an empty recommendation list; no default
// confidence is ever substituted.
func (e *SegmentEngine) ComputeSegments(ctx context.Context, factors []FactorResult, snapshot string) ([]SegmentResult, error) {
	byFactor := make(map[string]FactorResult, len(factors))
	for _, f := range factors {
		if _, ok := e.cat.FactorByID(f.FactorID); !ok {
			return nil, &ValidationError{Field: "factor_id", Reason: fmt.Sprintf("%q is not in the factor catalog", f.FactorID)}
		}
		byFactor[f.FactorID] = f
	}

	out := make([]SegmentResult, 0, len(e.cat.Segments))
	for _, seg := range e.cat.Segments {
		res := SegmentResult{
			SegmentID:       seg.ID,
			Insights:        []string{},
			Risks:           []string{},
			Opportunities:   []string{},
			Recommendations: []string{},
		}
		overall, n := confidenceWeightedMean(seg.FactorIDs, byFactor)
		res.InputFactorCount = n
		if n == 0 {
			out = append(out, res)
			continue
		}
		res.HasData = true
		res.OverallScore = overall
		res.Attractiveness, _ = confidenceWeightedMean(seg.Metrics[catalog.MetricAttractiveness], byFactor)
		res.CompetitiveIntensity, _ = confidenceWeightedMean(seg.Metrics[catalog.MetricCompetitiveIntensity], byFactor)
		res.MarketSize, _ = confidenceWeightedMean(seg.Metrics[catalog.MetricMarketSize], byFactor)
		res.GrowthPotential, _ = confidenceWeightedMean(seg.Metrics[catalog.MetricGrowthPotential], byFactor)

		narrative, err := e.insights.Generate(ctx, res, snapshot)
		if err != nil {
			return nil, fmt.Errorf("insight generation for segment %q: %w", seg.ID, err)
		}
		if narrative.Insights != nil {
			res.Insights = narrative.Insights
		}
		if narrative.Risks != nil {
			res.Risks = narrative.Risks
		}
		if narrative.Opportunities != nil {
			res.Opportunities = narrative.Opportunities
		}
		if narrative.Recommendations != nil {
			res.Recommendations = narrative.Recommendations
		}
		out = append(out, res)
	}
	return out, nil
}

// confidenceWeightedMean averages factor values weighted by their confidence,
// skipping factors with no data. When every present factor reports zero
// confidence it degrades to an unweighted mean rather than dividing by zero.
func confidenceWeightedMean(factorIDs []string, byFactor map[string]FactorResult) (float64, int) {
	var valueSum, confSum, plainSum float64
	n := 0
	for _, fid := range factorIDs {
		f, ok := byFactor[fid]
		if !ok || !f.HasData {
			continue
		}
		valueSum += f.Value * f.Confidence
		confSum += f.Confidence
		plainSum += f.Value
		n++
	}
	if n == 0 {
		return 0, 0
	}
	if confSum == 0 {
		return plainSum / float64(n), n
	}
	return valueSum / confSum, n
}
