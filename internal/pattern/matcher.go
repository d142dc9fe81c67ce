package pattern

import (
	"sort"
	"strings"

	"github.com/joelkehle/stratscope/internal/mathutil"
	"github.com/joelkehle/stratscope/internal/scoring"
)

// MatcherConfig carries the named matching constants. The reference values
// come from observed product behavior and are deliberately configuration, not
// embedded literals.
type MatcherConfig struct {
	AcceptThreshold  float64
	StrongMargin     float64
	StrongMultiplier float64
}

func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{AcceptThreshold: 0.6, StrongMargin: 0.1, StrongMultiplier: 1.2}
}

// ScoreSet is the flattened score space trigger conditions resolve against.
// Only results with data are present; a missing name makes its condition
// false, never true.
type ScoreSet struct {
	Segments map[string]float64
	Factors  map[string]float64
}

// BuildScoreSet flattens engine outputs into the matcher's namespace:
// factor IDs and "<segment_id>.<metric>" keys (including ".overall").
func BuildScoreSet(segments []scoring.SegmentResult, factors []scoring.FactorResult) ScoreSet {
	set := ScoreSet{Segments: map[string]float64{}, Factors: map[string]float64{}}
	for _, f := range factors {
		if !f.HasData {
			continue
		}
		set.Factors[f.FactorID] = f.Value
	}
	for _, s := range segments {
		if !s.HasData {
			continue
		}
		set.Segments[s.SegmentID+".overall"] = s.OverallScore
		set.Segments[s.SegmentID+".attractiveness"] = s.Attractiveness
		set.Segments[s.SegmentID+".competitive_intensity"] = s.CompetitiveIntensity
		set.Segments[s.SegmentID+".market_size"] = s.MarketSize
		set.Segments[s.SegmentID+".growth_potential"] = s.GrowthPotential
	}
	return set
}

// Lookup resolves a condition score name. Names containing a dot address
// segment metrics, everything else a factor.
func (s ScoreSet) Lookup(name string) (float64, bool) {
	if strings.Contains(name, ".") {
		v, ok := s.Segments[name]
		return v, ok
	}
	v, ok := s.Factors[name]
	return v, ok
}

// Matcher evaluates the pattern library against one run's score set. Pure and
// safe for concurrent use across sessions.
type Matcher struct {
	cfg MatcherConfig
	lib *Library
}

func NewMatcher(lib *Library, cfg MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg, lib: lib}
}

// Match returns accepted matches sorted by confidence descending, library
// order breaking ties. A pattern is a candidate only when every trigger
// condition holds; partial matches are excluded outright rather than
// down-weighted into passing.
func (m *Matcher) Match(set ScoreSet) []Match {
	out := []Match{}
	order := map[string]int{}
	for i, p := range m.lib.Patterns {
		order[p.ID] = i
		match, ok := m.evaluate(p, set)
		if !ok {
			continue
		}
		if match.Confidence < m.cfg.AcceptThreshold {
			continue
		}
		out = append(out, match)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return order[out[i].PatternID] < order[out[j].PatternID]
	})
	return out
}

func (m *Matcher) evaluate(p Pattern, set ScoreSet) (Match, bool) {
	match := Match{
		PatternID:         p.ID,
		PatternName:       p.Name,
		PatternType:       p.Type,
		StrategicResponse: p.StrategicResponse,
		SegmentScoresUsed: map[string]float64{},
		FactorScoresUsed:  map[string]float64{},
	}
	matched := 0
	strong := true
	for _, name := range sortedConditionNames(p.TriggerConditions) {
		cond := p.TriggerConditions[name]
		value, present := set.Lookup(cond.Score)
		if present {
			if strings.Contains(cond.Score, ".") {
				match.SegmentScoresUsed[cond.Score] = value
			} else {
				match.FactorScoresUsed[cond.Score] = value
			}
		}
		if !present || !cond.Operator.holds(value, cond.Threshold) {
			strong = false
			continue
		}
		matched++
		if !cond.Operator.holdsByMargin(value, cond.Threshold, m.cfg.StrongMargin) {
			strong = false
		}
	}
	match.MatchedConditionRatio = float64(matched) / float64(len(p.TriggerConditions))
	if match.MatchedConditionRatio < 1.0 {
		return Match{}, false
	}
	multiplier := 1.0
	if strong {
		multiplier = m.cfg.StrongMultiplier
	}
	match.Confidence = mathutil.Clamp01(p.BaseConfidence * multiplier)
	return match, true
}

func (op Operator) holds(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	default:
		return false
	}
}

// holdsByMargin reports whether the value clears the threshold by at least
// margin in the operator's satisfying direction.
func (op Operator) holdsByMargin(value, threshold, margin float64) bool {
	switch op {
	case OpGreater, OpGreaterEqual:
		return value >= threshold+margin
	case OpLess, OpLessEqual:
		return value <= threshold-margin
	default:
		return false
	}
}

func sortedConditionNames(conds map[string]Condition) []string {
	names := make([]string, 0, len(conds))
	for name := range conds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
