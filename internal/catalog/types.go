package catalog

// A Layer is the most granular analytical question the oracle scores. Layers
// are static catalog entries; scores against them live in the scoring package.
type Layer struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	FactorID    string `yaml:"factor_id" json:"factor_id" validate:"required"`
	DisplayName string `yaml:"display_name" json:"display_name" validate:"required"`
}

// A Factor aggregates a fixed set of layers. Weights are optional per-layer
// overrides in (0,1]; absent layers weigh 1/len(LayerIDs).
type Factor struct {
	ID        string             `yaml:"id" json:"id" validate:"required"`
	SegmentID string             `yaml:"segment_id" json:"segment_id" validate:"required"`
	Name      string             `yaml:"name" json:"name" validate:"required"`
	LayerIDs  []string           `yaml:"layers" json:"layers" validate:"required,min=1"`
	Weights   map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
}

// LayerWeight returns the aggregation weight for one member layer. The default
// is deliberately 1/len(LayerIDs), not 1/len(scored subset): when a layer has
// no score its weight is not redistributed to the others.
func (f Factor) LayerWeight(layerID string) float64 {
	if w, ok := f.Weights[layerID]; ok {
		return w
	}
	return 1.0 / float64(len(f.LayerIDs))
}

// Segment sub-metric names. The factor subset feeding each sub-metric is
// configuration on the Segment, not code.
const (
	MetricAttractiveness       = "attractiveness"
	MetricCompetitiveIntensity = "competitive_intensity"
	MetricMarketSize           = "market_size"
	MetricGrowthPotential      = "growth_potential"
)

// MetricNames lists the sub-metrics every segment must configure.
var MetricNames = []string{MetricAttractiveness, MetricCompetitiveIntensity, MetricMarketSize, MetricGrowthPotential}

// A Segment is the top-level business dimension: a fixed, non-empty set of
// factors plus the metric-to-factor mapping for the four sub-metrics.
type Segment struct {
	ID        string              `yaml:"id" json:"id" validate:"required"`
	Name      string              `yaml:"name" json:"name" validate:"required"`
	FactorIDs []string            `yaml:"factors" json:"factors" validate:"required,min=1"`
	Metrics   map[string][]string `yaml:"metrics" json:"metrics" validate:"required"`
}

// Catalog is the read-only analytical hierarchy, loaded once at process start.
type Catalog struct {
	Segments []Segment
	Factors  []Factor
	Layers   []Layer

	// Roles maps a semantic role name (e.g. "market_factor") to a factor ID.
	// Resolution happens at load time so a bad mapping is a startup error,
	// never a silent substring match at analysis time.
	Roles map[string]string

	segmentsByID map[string]int
	factorsByID  map[string]int
	layersByID   map[string]int
}

func (c *Catalog) SegmentByID(id string) (Segment, bool) {
	i, ok := c.segmentsByID[id]
	if !ok {
		return Segment{}, false
	}
	return c.Segments[i], true
}

func (c *Catalog) FactorByID(id string) (Factor, bool) {
	i, ok := c.factorsByID[id]
	if !ok {
		return Factor{}, false
	}
	return c.Factors[i], true
}

func (c *Catalog) LayerByID(id string) (Layer, bool) {
	i, ok := c.layersByID[id]
	if !ok {
		return Layer{}, false
	}
	return c.Layers[i], true
}

// FactorForRole resolves a semantic role to its catalog factor. Roles are
// validated at load, so a false return means the caller asked for a role the
// catalog never declared.
func (c *Catalog) FactorForRole(role string) (Factor, bool) {
	id, ok := c.Roles[role]
	if !ok {
		return Factor{}, false
	}
	return c.FactorByID(id)
}

// SegmentForFactor returns the owning segment of a factor.
func (c *Catalog) SegmentForFactor(factorID string) (Segment, bool) {
	f, ok := c.FactorByID(factorID)
	if !ok {
		return Segment{}, false
	}
	return c.SegmentByID(f.SegmentID)
}

func (c *Catalog) index() {
	c.segmentsByID = make(map[string]int, len(c.Segments))
	for i := range c.Segments {
		c.segmentsByID[c.Segments[i].ID] = i
	}
	c.factorsByID = make(map[string]int, len(c.Factors))
	for i := range c.Factors {
		c.factorsByID[c.Factors[i].ID] = i
	}
	c.layersByID = make(map[string]int, len(c.Layers))
	for i := range c.Layers {
		c.layersByID[c.Layers[i].ID] = i
	}
}
