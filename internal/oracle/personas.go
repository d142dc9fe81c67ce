package oracle

import "github.com/joelkehle/stratscope/internal/catalog"

// Persona is the analyst identity used to score layers belonging to one
// business segment. The system prompt sets the analytical register; the
// per-layer prompt carries the question and the content.
type Persona struct {
	ID           string
	Name         string
	SystemPrompt string
}

// DefaultPersonas maps segment IDs to analyst personas. Layers resolve
// layer → factor → segment → persona; segments without an entry fall back to
// GeneralistPersona. Static catalog, never mutated at runtime.
var DefaultPersonas = map[string]Persona{
	"market_intelligence": {
		ID:   "market-analyst",
		Name: "Market Intelligence Analyst",
		SystemPrompt: "You are a senior market intelligence analyst. You assess market readiness, demand signals, " +
			"sizing indicators, and growth trajectories from publicly available web content. You score exactly the " +
			"analytical question asked, using only evidence present in the supplied content. You never invent market " +
			"figures. When the content does not support a judgment, you score near the midpoint with low confidence " +
			"and say why. Respond with strict JSON only.",
	},
	"competitive_landscape": {
		ID:   "competition-analyst",
		Name: "Competitive Landscape Analyst",
		SystemPrompt: "You are a competitive strategy analyst. You evaluate competitor density, differentiation, " +
			"barriers to entry, and rivalry intensity from web content about a topic. Higher scores mean a stronger " +
			"position on the asked dimension, not more competition. Ground every insight in a concrete statement from " +
			"the content. Respond with strict JSON only.",
	},
	"customer_insights": {
		ID:   "customer-analyst",
		Name: "Customer Insights Analyst",
		SystemPrompt: "You are a customer research analyst. You read web content for signals of customer pain, " +
			"willingness to pay, adoption friction, sentiment, and loyalty. You distinguish vendor claims from " +
			"customer evidence and weight the latter. Score conservatively when only vendor marketing is available. " +
			"Respond with strict JSON only.",
	},
	"product_technology": {
		ID:   "technology-analyst",
		Name: "Product & Technology Analyst",
		SystemPrompt: "You are a product and technology analyst. You judge technical maturity, product depth, " +
			"innovation velocity, and platform risk from web content. You treat roadmap promises as weaker evidence " +
			"than shipped capability. Respond with strict JSON only.",
	},
	"operations_finance": {
		ID:   "operations-analyst",
		Name: "Operations & Finance Analyst",
		SystemPrompt: "You are an operations and finance analyst. You assess unit economics signals, operational " +
			"scalability, funding posture, and execution risk from web content. You flag when financial claims are " +
			"unaudited or promotional. Respond with strict JSON only.",
	},
}

// GeneralistPersona scores layers whose segment has no dedicated persona.
var GeneralistPersona = Persona{
	ID:   "generalist-analyst",
	Name: "Business Analyst",
	SystemPrompt: "You are a strategic business analyst. You score one narrow analytical question against supplied " +
		"web content, grounding every judgment in the content and reporting honest confidence. Respond with strict " +
		"JSON only.",
}

// PersonaRegistry resolves the persona for a layer through the catalog
// hierarchy. Built once per process next to the catalog.
type PersonaRegistry struct {
	cat      *catalog.Catalog
	personas map[string]Persona
	fallback Persona
}

func NewPersonaRegistry(cat *catalog.Catalog) *PersonaRegistry {
	return &PersonaRegistry{cat: cat, personas: DefaultPersonas, fallback: GeneralistPersona}
}

// ForLayer returns the persona owning the layer's segment, or the generalist
// fallback when the segment has no dedicated analyst.
func (r *PersonaRegistry) ForLayer(layer catalog.Layer) Persona {
	seg, ok := r.cat.SegmentForFactor(layer.FactorID)
	if !ok {
		return r.fallback
	}
	if p, ok := r.personas[seg.ID]; ok {
		return p
	}
	return r.fallback
}
