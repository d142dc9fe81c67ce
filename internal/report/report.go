package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/pipeline"
)

// Reference URLs used in the report markdown.
const (
	monteCarloURL        = "https://www.investopedia.com/terms/m/montecarlosimulation.asp"
	varURL               = "https://www.investopedia.com/terms/v/var.asp"
	expectedShortfallURL = "https://www.investopedia.com/terms/e/expected-shortfall.asp"
	confidenceURL        = "https://www.investopedia.com/terms/c/confidenceinterval.asp"
	weightedAverageURL   = "https://www.investopedia.com/terms/w/weightedaverage.asp"
	percentileURL        = "https://www.investopedia.com/terms/p/percentile.asp"
)

// BuildMarkdown renders a completed (or partially completed) run as a
// self-contained markdown report.
func BuildMarkdown(run *pipeline.Run, cat *catalog.Catalog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Strategic Analysis Report\n\n")
	fmt.Fprintf(&b, "- Session: %s\n", run.SessionID)
	fmt.Fprintf(&b, "- Version: %d\n", run.Version)
	fmt.Fprintf(&b, "- State: `%s`\n", run.State)
	fmt.Fprintf(&b, "- Date: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Simulation seed: %d\n\n", run.Seed)

	if run.State == pipeline.StateFailed {
		fmt.Fprintf(&b, "> FAILED: stage `%s` did not complete (%s). Results below reflect the stages that finished.\n\n",
			sanitize(run.FailedStage), sanitize(run.FailureReason))
	}

	fmt.Fprintf(&b, "## How This Report Works\n\n")
	fmt.Fprintf(&b, "This report is an automated strategic assessment built in four passes. First, each "+
		"analytical layer of the business is scored from the source material. Layer scores roll up into "+
		"factor scores using a [weighted average](%s), factors roll up into segment scores weighted by "+
		"how confident each underlying assessment was. Second, the segment and factor scores are checked "+
		"against a library of known strategic patterns; a pattern matches only when every one of its "+
		"conditions holds. Third, each matched pattern's projected outcomes are run through a "+
		"[Monte Carlo simulation](%s) to show the range of plausible results rather than a single point "+
		"estimate. Finally, everything is assembled here.\n\n", weightedAverageURL, monteCarloURL)
	fmt.Fprintf(&b, "Scores run from 0.0 (weakest) to 1.0 (strongest). A dash means the source material "+
		"contained nothing to score, which is reported as missing rather than as a zero.\n\n")

	writeCoverage(&b, run, cat)
	writeSegments(&b, run)
	writeFactors(&b, run, cat)
	writeMatches(&b, run)
	writeSimulations(&b, run)
	writeGlossary(&b)
	return b.String()
}

func writeCoverage(b *strings.Builder, run *pipeline.Run, cat *catalog.Catalog) {
	fmt.Fprintf(b, "## Scoring Coverage\n\n")
	fmt.Fprintf(b, "- Layers scored: %d of %d\n", len(run.LayerScores), len(cat.Layers))
	fmt.Fprintf(b, "- Layers skipped: %d\n\n", len(run.SkippedLayers))
	if len(run.SkippedLayers) > 0 {
		fmt.Fprintf(b, "| Skipped Layer | Reason |\n|---------------|--------|\n")
		for _, s := range run.SkippedLayers {
			name := s.LayerID
			if layer, ok := cat.LayerByID(s.LayerID); ok {
				name = layer.DisplayName
			}
			fmt.Fprintf(b, "| %s | %s |\n", sanitizeCell(name), sanitizeCell(s.Reason))
		}
		fmt.Fprintf(b, "\n")
	}
	fmt.Fprintf(b, "---\n\n")
}

func writeSegments(b *strings.Builder, run *pipeline.Run) {
	fmt.Fprintf(b, "## Segment Assessment\n\n")
	if len(run.Segments) == 0 {
		fmt.Fprintf(b, "Segment scores are not available for this run.\n\n---\n\n")
		return
	}
	fmt.Fprintf(b, "| Segment | Overall | Attractiveness | Competitive Intensity | Market Size | Growth Potential |\n")
	fmt.Fprintf(b, "|---------|---------|----------------|-----------------------|-------------|------------------|\n")
	for _, seg := range run.Segments {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			sanitizeCell(seg.SegmentID),
			scoreCell(seg.OverallScore, seg.HasData),
			scoreCell(seg.Attractiveness, seg.HasData),
			scoreCell(seg.CompetitiveIntensity, seg.HasData),
			scoreCell(seg.MarketSize, seg.HasData),
			scoreCell(seg.GrowthPotential, seg.HasData))
	}
	fmt.Fprintf(b, "\n")
	for _, seg := range run.Segments {
		if !seg.HasData {
			continue
		}
		if len(seg.Insights)+len(seg.Risks)+len(seg.Opportunities)+len(seg.Recommendations) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s\n\n", sanitize(seg.SegmentID))
		writeList(b, "Insights", seg.Insights)
		writeList(b, "Risks", seg.Risks)
		writeList(b, "Opportunities", seg.Opportunities)
		writeList(b, "Recommendations", seg.Recommendations)
	}
	fmt.Fprintf(b, "---\n\n")
}

func writeFactors(b *strings.Builder, run *pipeline.Run, cat *catalog.Catalog) {
	if len(run.Factors) == 0 {
		return
	}
	fmt.Fprintf(b, "## Factor Detail\n\n")
	fmt.Fprintf(b, "| Factor | Segment | Score | Confidence | Layers Scored |\n")
	fmt.Fprintf(b, "|--------|---------|-------|------------|---------------|\n")
	for _, f := range run.Factors {
		segID := ""
		name := f.FactorID
		if fac, ok := cat.FactorByID(f.FactorID); ok {
			segID = fac.SegmentID
			name = fac.Name
		}
		if !f.HasData {
			fmt.Fprintf(b, "| %s | %s | — | — | 0 |\n", sanitizeCell(name), sanitizeCell(segID))
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %.2f | %.2f | %d |\n",
			sanitizeCell(name), sanitizeCell(segID), f.Value, f.Confidence, f.InputLayerCount)
	}
	fmt.Fprintf(b, "\n---\n\n")
}

func writeMatches(b *strings.Builder, run *pipeline.Run) {
	fmt.Fprintf(b, "## Matched Strategic Patterns\n\n")
	if len(run.Matches) == 0 {
		fmt.Fprintf(b, "No pattern in the library matched this analysis. That usually means the scores sit "+
			"between the well-understood strategic situations the library describes, not that the analysis failed.\n\n---\n\n")
		return
	}
	fmt.Fprintf(b, "Every condition of a pattern must hold for it to match. Confidence reflects the library's "+
		"historical evidence for the pattern, boosted when the scores clear each threshold by a wide margin.\n\n")
	fmt.Fprintf(b, "| Pattern | Type | Confidence |\n|---------|------|------------|\n")
	for _, m := range run.Matches {
		fmt.Fprintf(b, "| %s | %s | %.2f |\n", sanitizeCell(m.PatternName), sanitizeCell(string(m.PatternType)), m.Confidence)
	}
	fmt.Fprintf(b, "\n")
	for _, m := range run.Matches {
		fmt.Fprintf(b, "### %s\n\n", sanitize(m.PatternName))
		fmt.Fprintf(b, "**Recommended response**: %s\n\n", sanitize(m.StrategicResponse))
	}
	fmt.Fprintf(b, "---\n\n")
}

func writeSimulations(b *strings.Builder, run *pipeline.Run) {
	if len(run.Simulations) == 0 {
		return
	}
	fmt.Fprintf(b, "## Scenario Simulations\n\n")
	fmt.Fprintf(b, "Each matched pattern's outcome KPIs were simulated %d times with [Monte Carlo sampling](%s). "+
		"The percentile columns show the [distribution](%s) of outcomes; [VaR 95%%](%s) is the value at the 5th "+
		"percentile (19 out of 20 runs did better), and [expected shortfall](%s) is the average of the runs that "+
		"did worse than that.\n\n", run.Iterations, monteCarloURL, percentileURL, varURL, expectedShortfallURL)

	patternIDs := make([]string, 0, len(run.Simulations))
	for id := range run.Simulations {
		patternIDs = append(patternIDs, id)
	}
	sort.Strings(patternIDs)
	for _, pid := range patternIDs {
		name := pid
		for _, m := range run.Matches {
			if m.PatternID == pid {
				name = m.PatternName
				break
			}
		}
		fmt.Fprintf(b, "### %s\n\n", sanitize(name))
		fmt.Fprintf(b, "| KPI | Mean | Median | Std Dev | P5 | P95 | 90%% CI | VaR 95%% | ES 95%% | P(positive) |\n")
		fmt.Fprintf(b, "|-----|------|--------|---------|----|----|--------|---------|--------|-------------|\n")
		kpis := make([]string, 0, len(run.Simulations[pid]))
		for kpi := range run.Simulations[pid] {
			kpis = append(kpis, kpi)
		}
		sort.Strings(kpis)
		for _, kpi := range kpis {
			r := run.Simulations[pid][kpi]
			ci := r.ConfidenceIntervals[90]
			fmt.Fprintf(b, "| %s | %.3f | %.3f | %.3f | %.3f | %.3f | [%.3f, %.3f] | %.3f | %.3f | %.0f%% |\n",
				sanitizeCell(kpi), r.Mean, r.Median, r.StdDev,
				r.Percentiles[5], r.Percentiles[95], ci[0], ci[1],
				r.ValueAtRisk95, r.ExpectedShortfall95, r.ProbabilityPositive*100)
		}
		fmt.Fprintf(b, "\n")
	}
	fmt.Fprintf(b, "---\n\n")
}

func writeGlossary(b *strings.Builder) {
	fmt.Fprintf(b, "## Glossary\n\n")
	fmt.Fprintf(b, "| Term | Definition |\n|------|------------|\n")
	fmt.Fprintf(b, "| Layer | The smallest scored unit of analysis, one narrow question about the business |\n")
	fmt.Fprintf(b, "| Factor | A [weighted average](%s) of its member layer scores |\n", weightedAverageURL)
	fmt.Fprintf(b, "| Segment | A confidence-weighted roll-up of its member factors |\n")
	fmt.Fprintf(b, "| Confidence | How certain the scoring of the underlying material was, 0.0 to 1.0 |\n")
	fmt.Fprintf(b, "| [Monte Carlo simulation](%s) | Repeated random sampling to show the range of plausible outcomes |\n", monteCarloURL)
	fmt.Fprintf(b, "| [Percentile](%s) | The value below which that percentage of simulated outcomes fall |\n", percentileURL)
	fmt.Fprintf(b, "| [Confidence interval](%s) | The central range containing that percentage of simulated outcomes |\n", confidenceURL)
	fmt.Fprintf(b, "| [VaR 95%%](%s) | The 5th-percentile outcome, a standard downside marker |\n", varURL)
	fmt.Fprintf(b, "| [Expected shortfall](%s) | The average of the outcomes at or below the VaR 95%% level |\n", expectedShortfallURL)
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s**\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", sanitize(item))
	}
	fmt.Fprintf(b, "\n")
}

func scoreCell(v float64, hasData bool) string {
	if !hasData {
		return "—"
	}
	return fmt.Sprintf("%.2f", v)
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// sanitizeCell prepares text for use inside a markdown table cell.
func sanitizeCell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}
