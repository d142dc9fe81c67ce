package pattern

import "fmt"

type PatternType string

const (
	TypeSuccess     PatternType = "Success"
	TypeFragility   PatternType = "Fragility"
	TypeAdaptation  PatternType = "Adaptation"
	TypeOpportunity PatternType = "Opportunity"
)

func validPatternType(t PatternType) bool {
	switch t {
	case TypeSuccess, TypeFragility, TypeAdaptation, TypeOpportunity:
		return true
	default:
		return false
	}
}

type Operator string

const (
	OpGreater      Operator = "gt"
	OpLess         Operator = "lt"
	OpGreaterEqual Operator = "gte"
	OpLessEqual    Operator = "lte"
)

func validOperator(op Operator) bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	default:
		return false
	}
}

// Condition compares one named score against a threshold. Score names are
// either a bare factor ID or "<segment_id>.<metric>" (metric may be
// "overall"); resolution happens against the ScoreSet at match time.
type Condition struct {
	Score     string   `yaml:"score" json:"score"`
	Operator  Operator `yaml:"operator" json:"operator"`
	Threshold float64  `yaml:"threshold" json:"threshold"`
}

// Distribution declares how an outcome KPI is sampled. Exactly the parameters
// for Kind are read; Bounds clip every drawn sample.
type Distribution struct {
	Kind string `yaml:"kind" json:"kind"`

	// triangular
	Min  float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Mode float64 `yaml:"mode,omitempty" json:"mode,omitempty"`
	Max  float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// normal
	Mean float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	Std  float64 `yaml:"std,omitempty" json:"std,omitempty"`

	// beta
	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Beta  float64 `yaml:"beta,omitempty" json:"beta,omitempty"`

	// lognormal
	Mu    float64 `yaml:"mu,omitempty" json:"mu,omitempty"`
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty"`

	Bounds [2]float64 `yaml:"bounds" json:"bounds"`
}

const (
	KindTriangular = "triangular"
	KindNormal     = "normal"
	KindBeta       = "beta"
	KindLognormal  = "lognormal"
)

// Validate rejects unsupported kinds and out-of-range parameters. Called at
// library load so a bad distribution never reaches the sampler.
func (d Distribution) Validate() error {
	switch d.Kind {
	case KindTriangular:
		if d.Min > d.Max {
			return fmt.Errorf("triangular: min %g > max %g", d.Min, d.Max)
		}
		if d.Mode < d.Min || d.Mode > d.Max {
			return fmt.Errorf("triangular: mode %g outside [%g,%g]", d.Mode, d.Min, d.Max)
		}
	case KindNormal:
		if d.Std <= 0 {
			return fmt.Errorf("normal: std must be > 0, got %g", d.Std)
		}
	case KindBeta:
		if d.Alpha <= 0 || d.Beta <= 0 {
			return fmt.Errorf("beta: alpha and beta must be > 0, got %g/%g", d.Alpha, d.Beta)
		}
	case KindLognormal:
		if d.Sigma <= 0 {
			return fmt.Errorf("lognormal: sigma must be > 0, got %g", d.Sigma)
		}
	default:
		return fmt.Errorf("unsupported distribution kind %q", d.Kind)
	}
	if d.Bounds[0] >= d.Bounds[1] {
		return fmt.Errorf("bounds [%g,%g] must be a non-empty interval", d.Bounds[0], d.Bounds[1])
	}
	return nil
}

// Pattern is one strategic heuristic: trigger predicates over the score space
// plus the expected-outcome distributions of its KPIs. Immutable once loaded.
type Pattern struct {
	ID                string                  `yaml:"id" json:"id"`
	Name              string                  `yaml:"name" json:"name"`
	Type              PatternType             `yaml:"type" json:"type"`
	SegmentsInvolved  []string                `yaml:"segments_involved" json:"segments_involved"`
	FactorsInvolved   []string                `yaml:"factors_involved" json:"factors_involved"`
	TriggerConditions map[string]Condition    `yaml:"trigger_conditions" json:"trigger_conditions"`
	StrategicResponse string                  `yaml:"strategic_response" json:"strategic_response"`
	OutcomeKPIs       map[string]Distribution `yaml:"outcome_kpis" json:"outcome_kpis"`
	BaseConfidence    float64                 `yaml:"base_confidence" json:"base_confidence"`
	EvidenceStrength  float64                 `yaml:"evidence_strength" json:"evidence_strength"`
}

// Match is the per-run outcome of evaluating one pattern. The score snapshots
// record exactly the inputs the trigger read, for auditability; a Match is
// never mutated after creation.
type Match struct {
	PatternID             string             `json:"pattern_id"`
	PatternName           string             `json:"pattern_name"`
	PatternType           PatternType        `json:"pattern_type"`
	Confidence            float64            `json:"confidence"`
	MatchedConditionRatio float64            `json:"matched_condition_ratio"`
	StrategicResponse     string             `json:"strategic_response"`
	SegmentScoresUsed     map[string]float64 `json:"segment_scores_used"`
	FactorScoresUsed      map[string]float64 `json:"factor_scores_used"`
}
