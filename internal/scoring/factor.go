package scoring

import (
	"fmt"

	"github.com/joelkehle/stratscope/internal/catalog"
)

// FactorEngine aggregates layer scores into factor results. It is a pure
// function of its inputs and safe to share across concurrent sessions.
type FactorEngine struct {
	cat *catalog.Catalog
}

func NewFactorEngine(cat *catalog.Catalog) *FactorEngine {
	return &FactorEngine{cat: cat}
}

// ComputeFactors produces one FactorResult per catalog factor, in catalog
// order. A factor none of whose member layers were scored comes back with
// HasData false and confidence 0; it is never reported as 0.0.
func (e *FactorEngine) ComputeFactors(scores []LayerScore) ([]FactorResult, error) {
	byLayer := make(map[string]LayerScore, len(scores))
	for _, s := range scores {
		if _, ok := e.cat.LayerByID(s.LayerID); !ok {
			return nil, &ValidationError{Field: "layer_id", Reason: fmt.Sprintf("%q is not in the layer catalog", s.LayerID)}
		}
		if s.Score < 0 || s.Score > 1 {
			return nil, &ValidationError{Field: "score", Reason: fmt.Sprintf("layer %q score %g outside [0,1]", s.LayerID, s.Score)}
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			return nil, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("layer %q confidence %g outside [0,1]", s.LayerID, s.Confidence)}
		}
		if s.EvidenceCount < 0 {
			return nil, &ValidationError{Field: "evidence_count", Reason: fmt.Sprintf("layer %q evidence_count %d negative", s.LayerID, s.EvidenceCount)}
		}
		byLayer[s.LayerID] = s
	}

	out := make([]FactorResult, 0, len(e.cat.Factors))
	for _, f := range e.cat.Factors {
		res := FactorResult{FactorID: f.ID}
		var weightedSum, weightSum, confSum float64
		for _, lid := range f.LayerIDs {
			s, ok := byLayer[lid]
			if !ok {
				continue
			}
			w := f.LayerWeight(lid)
			weightedSum += s.Score * w
			weightSum += w
			confSum += s.Confidence
			res.InputLayerCount++
		}
		if res.InputLayerCount == 0 {
			out = append(out, res)
			continue
		}
		res.HasData = true
		res.Value = weightedSum / weightSum
		res.Confidence = confSum / float64(res.InputLayerCount)
		out = append(out, res)
	}
	return out, nil
}
