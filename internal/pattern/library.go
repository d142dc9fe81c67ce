package pattern

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/stratscope/internal/catalog"
)

// Library is the ordered pattern catalog, loaded once at process start.
// Catalog order is the deterministic tie-break for equal-confidence matches.
type Library struct {
	Patterns []Pattern

	byID map[string]int
}

type libraryFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// LoadLibrary reads and validates a pattern library YAML file against the
// analytical catalog. Any defect is a catalog.ConfigurationError raised
// before the pipeline starts.
func LoadLibrary(path string, cat *catalog.Catalog) (*Library, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern library: %w", err)
	}
	var file libraryFile
	if err := yaml.Unmarshal(blob, &file); err != nil {
		return nil, &catalog.ConfigurationError{Entity: "pattern library", ID: path, Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}
	return NewLibrary(file.Patterns, cat)
}

// NewLibrary builds a validated library from in-memory patterns.
func NewLibrary(patterns []Pattern, cat *catalog.Catalog) (*Library, error) {
	lib := &Library{Patterns: patterns, byID: make(map[string]int, len(patterns))}
	for i, p := range patterns {
		if err := validatePattern(p, cat); err != nil {
			return nil, err
		}
		if _, dup := lib.byID[p.ID]; dup {
			return nil, patternErr(p.ID, "duplicate id")
		}
		lib.byID[p.ID] = i
	}
	return lib, nil
}

func (l *Library) ByID(id string) (Pattern, bool) {
	i, ok := l.byID[id]
	if !ok {
		return Pattern{}, false
	}
	return l.Patterns[i], true
}

func validatePattern(p Pattern, cat *catalog.Catalog) error {
	if strings.TrimSpace(p.ID) == "" {
		return patternErr(p.ID, "id required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return patternErr(p.ID, "name required")
	}
	if !validPatternType(p.Type) {
		return patternErr(p.ID, "invalid type %q", p.Type)
	}
	if p.BaseConfidence < 0 || p.BaseConfidence > 1 {
		return patternErr(p.ID, "base_confidence %g outside [0,1]", p.BaseConfidence)
	}
	if p.EvidenceStrength < 0 || p.EvidenceStrength > 1 {
		return patternErr(p.ID, "evidence_strength %g outside [0,1]", p.EvidenceStrength)
	}
	if len(p.TriggerConditions) == 0 {
		return patternErr(p.ID, "at least one trigger condition required")
	}
	for name, c := range p.TriggerConditions {
		if !validOperator(c.Operator) {
			return patternErr(p.ID, "condition %q: invalid operator %q", name, c.Operator)
		}
		if err := validateScoreName(c.Score, cat); err != nil {
			return patternErr(p.ID, "condition %q: %v", name, err)
		}
	}
	for _, sid := range p.SegmentsInvolved {
		if _, ok := cat.SegmentByID(sid); !ok {
			return patternErr(p.ID, "unknown segment %q", sid)
		}
	}
	for _, fid := range p.FactorsInvolved {
		if _, ok := cat.FactorByID(fid); !ok {
			return patternErr(p.ID, "unknown factor %q", fid)
		}
	}
	if len(p.OutcomeKPIs) == 0 {
		return patternErr(p.ID, "at least one outcome KPI required")
	}
	for kpi, d := range p.OutcomeKPIs {
		if err := d.Validate(); err != nil {
			return patternErr(p.ID, "kpi %q: %v", kpi, err)
		}
	}
	return nil
}

func validateScoreName(name string, cat *catalog.Catalog) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("score name required")
	}
	if seg, metric, ok := splitSegmentScore(name); ok {
		if _, exists := cat.SegmentByID(seg); !exists {
			return fmt.Errorf("unknown segment %q in score %q", seg, name)
		}
		if metric != "overall" && !knownMetric(metric) {
			return fmt.Errorf("unknown metric %q in score %q", metric, name)
		}
		return nil
	}
	if _, ok := cat.FactorByID(name); !ok {
		return fmt.Errorf("score %q is neither a factor id nor a segment metric", name)
	}
	return nil
}

func splitSegmentScore(name string) (segmentID, metric string, ok bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

func knownMetric(name string) bool {
	for _, m := range catalog.MetricNames {
		if m == name {
			return true
		}
	}
	return false
}

func patternErr(id, format string, args ...any) *catalog.ConfigurationError {
	return &catalog.ConfigurationError{Entity: "pattern", ID: id, Reason: fmt.Sprintf(format, args...)}
}
