package scoring

import "context"

// Narrative is the qualitative half of a segment result. Generators return
// text only; the segment engine copies these slices verbatim and nothing else,
// so a generator can never move a numeric score.
type Narrative struct {
	Insights        []string `json:"insights"`
	Risks           []string `json:"risks"`
	Opportunities   []string `json:"opportunities"`
	Recommendations []string `json:"recommendations"`
}

// InsightGenerator produces the qualitative outputs for one segment from its
// numeric result and the underlying content snapshot. Implementations live
// outside the engine (the oracle package provides an LLM-backed one); the
// default is a no-op so the numeric pipeline works without any generator.
type InsightGenerator interface {
	Generate(ctx context.Context, segment SegmentResult, snapshot string) (Narrative, error)
}

// NoopInsightGenerator returns empty narratives. Selected at construction
// time when no generator is configured.
type NoopInsightGenerator struct{}

func (NoopInsightGenerator) Generate(context.Context, SegmentResult, string) (Narrative, error) {
	return Narrative{}, nil
}
