package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joelkehle/stratscope/internal/scoring"
)

const narrativeSystemPrompt = "You are a strategy consultant writing the qualitative summary for one business " +
	"segment of an automated analysis. You receive the segment's computed numeric scores and the underlying web " +
	"content. You write grounded, specific text. You never state numeric scores other than the ones provided and " +
	"never invent new ones. Respond with strict JSON only."

const narrativeSchemaPrompt = `Required JSON schema:
{
  "insights": ["string (2-5 findings about this segment)"],
  "risks": ["string (1-4 risks)"],
  "opportunities": ["string (1-4 opportunities)"],
  "recommendations": ["string (1-4 recommended actions)"]
}`

// narrativeSnapshotChars caps how much of the content snapshot accompanies
// the narrative prompt; the numeric scores carry most of the signal.
const narrativeSnapshotChars = 20000

// InsightGenerator is the LLM-backed scoring.InsightGenerator. It receives
// the numeric result read-only and returns text only, so it structurally
// cannot alter a score.
type InsightGenerator struct {
	exec *Executor
}

func NewInsightGenerator(caller LLMCaller, maxAttempts int) *InsightGenerator {
	return &InsightGenerator{exec: NewExecutor(caller, maxAttempts)}
}

func (g *InsightGenerator) Generate(ctx context.Context, segment scoring.SegmentResult, snapshot string) (scoring.Narrative, error) {
	if len(snapshot) > narrativeSnapshotChars {
		snapshot = snapshot[:narrativeSnapshotChars]
	}
	numeric, err := json.MarshalIndent(struct {
		SegmentID            string  `json:"segment_id"`
		OverallScore         float64 `json:"overall_score"`
		Attractiveness       float64 `json:"attractiveness"`
		CompetitiveIntensity float64 `json:"competitive_intensity"`
		MarketSize           float64 `json:"market_size"`
		GrowthPotential      float64 `json:"growth_potential"`
	}{
		SegmentID:            segment.SegmentID,
		OverallScore:         segment.OverallScore,
		Attractiveness:       segment.Attractiveness,
		CompetitiveIntensity: segment.CompetitiveIntensity,
		MarketSize:           segment.MarketSize,
		GrowthPotential:      segment.GrowthPotential,
	}, "", "  ")
	if err != nil {
		return scoring.Narrative{}, err
	}

	prompt := fmt.Sprintf(
		"Write the qualitative outputs for this segment.\n\n%s\n\nComputed segment scores:\n%s\n\nContent snapshot:\n%s",
		narrativeSchemaPrompt,
		numeric,
		snapshot,
	)
	out := scoring.Narrative{}
	_, err = g.exec.Run(ctx, "narrative "+segment.SegmentID, narrativeSystemPrompt, prompt, &out, func() error {
		return validateNarrative(out)
	})
	if err != nil {
		return scoring.Narrative{}, err
	}
	return out, nil
}

func validateNarrative(n scoring.Narrative) error {
	if len(n.Insights) == 0 {
		return fmt.Errorf("insights required")
	}
	for _, group := range [][]string{n.Insights, n.Risks, n.Opportunities, n.Recommendations} {
		for _, s := range group {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("empty narrative string")
			}
		}
	}
	return nil
}
