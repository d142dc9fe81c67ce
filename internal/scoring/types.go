package scoring

// LayerScore is the oracle's verdict for one layer within one analysis run.
// Score and Confidence are in [0,1]; anything outside that range is an
// upstream oracle defect and rejected, never clamped.
type LayerScore struct {
	LayerID       string   `json:"layer_id"`
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	Insights      []string `json:"insights,omitempty"`
	EvidenceCount int      `json:"evidence_count"`
}

// FactorResult is the weighted aggregate of a factor's scored member layers.
// HasData distinguishes "computed as 0" from "no member layer was scored";
// Value is meaningless when HasData is false.
type FactorResult struct {
	FactorID        string  `json:"factor_id"`
	Value           float64 `json:"value"`
	Confidence      float64 `json:"confidence"`
	InputLayerCount int     `json:"input_layer_count"`
	HasData         bool    `json:"has_data"`
}

// SegmentResult is the top-level multi-metric aggregate for one business
// segment. The numeric fields are owned by the segment engine; the qualitative
// slices come from the pluggable insight generator and never feed back into
// the numbers.
type SegmentResult struct {
	SegmentID            string  `json:"segment_id"`
	OverallScore         float64 `json:"overall_score"`
	HasData              bool    `json:"has_data"`
	Attractiveness       float64 `json:"attractiveness"`
	CompetitiveIntensity float64 `json:"competitive_intensity"`
	MarketSize           float64 `json:"market_size"`
	GrowthPotential      float64 `json:"growth_potential"`
	InputFactorCount     int     `json:"input_factor_count"`

	Insights        []string `json:"insights"`
	Risks           []string `json:"risks"`
	Opportunities   []string `json:"opportunities"`
	Recommendations []string `json:"recommendations"`
}
