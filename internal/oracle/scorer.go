package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/scoring"
)

const (
	MaxContentChars = 100000
	MinContentChars = 100
)

const layerSchemaPrompt = `Required JSON schema:
{
  "score": "float in [0,1] — strength of the topic on this analytical dimension",
  "confidence": "float in [0,1] — how well the content supports the score",
  "insights": ["string (1-5 short findings grounded in the content)"],
  "evidence_count": "int >= 0 — number of distinct content statements supporting the score"
}`

// BatchConfig bounds the oracle batch: chunking keeps memory flat over large
// layer catalogs, the semaphore and limiter bound external-API pressure.
type BatchConfig struct {
	ChunkSize         int
	Concurrency       int
	RequestsPerSecond float64
	MaxAttempts       int
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// SkippedLayer records a layer the oracle could not score and why. The
// factor engine sees these layers as absent, which is exactly the no-data
// path rather than a fabricated zero.
type SkippedLayer struct {
	LayerID string `json:"layer_id"`
	Reason  string `json:"reason"`
}

type layerResponse struct {
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	Insights      []string `json:"insights"`
	EvidenceCount int      `json:"evidence_count"`
}

// BatchScorer scores layers against one content snapshot with persona
// dispatch, bounded concurrency, and rate limiting.
type BatchScorer struct {
	exec     *Executor
	personas *PersonaRegistry
	cfg      BatchConfig
	limiter  *rate.Limiter
	logger   log.Logger
}

func NewBatchScorer(caller LLMCaller, personas *PersonaRegistry, cfg BatchConfig, logger log.Logger) *BatchScorer {
	cfg = cfg.withDefaults()
	burst := cfg.Concurrency
	if burst < 1 {
		burst = 1
	}
	return &BatchScorer{
		exec:     NewExecutor(caller, cfg.MaxAttempts),
		personas: personas,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:   logger,
	}
}

// ScoreLayers scores every layer against the content snapshot. Transient
// failures (after retries) and unavailable content skip the layer into the
// returned skip list; only malformed input is an error.
func (b *BatchScorer) ScoreLayers(ctx context.Context, content string, layers []catalog.Layer) ([]scoring.LayerScore, []SkippedLayer, error) {
	if len(strings.TrimSpace(content)) < MinContentChars {
		return nil, nil, fmt.Errorf("content snapshot is insufficient for analysis")
	}
	if len(content) > MaxContentChars {
		content = content[:MaxContentChars]
	}

	scores := make([]scoring.LayerScore, 0, len(layers))
	skipped := []SkippedLayer{}
	var mu sync.Mutex

	for start := 0; start < len(layers); start += b.cfg.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := start + b.cfg.ChunkSize
		if end > len(layers) {
			end = len(layers)
		}
		chunk := layers[start:end]

		sem := make(chan struct{}, b.cfg.Concurrency)
		var wg sync.WaitGroup
		for _, layer := range chunk {
			wg.Add(1)
			sem <- struct{}{}
			go func(layer catalog.Layer) {
				defer wg.Done()
				defer func() { <-sem }()
				score, err := b.scoreOne(ctx, content, layer)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					scores = append(scores, score)
				case IsContentUnavailable(err):
					b.logger.Debug().Str("layer", layer.ID).Msg("content unavailable, skipping layer")
					skipped = append(skipped, SkippedLayer{LayerID: layer.ID, Reason: err.Error()})
				case IsTransient(err):
					b.logger.Warn().Str("layer", layer.ID).Err(err).Msg("oracle transient failure exhausted retries")
					skipped = append(skipped, SkippedLayer{LayerID: layer.ID, Reason: err.Error()})
				case ctx.Err() != nil:
					// Cancellation surfaces at the chunk boundary.
				default:
					b.logger.Warn().Str("layer", layer.ID).Err(err).Msg("oracle scoring failed")
					skipped = append(skipped, SkippedLayer{LayerID: layer.ID, Reason: err.Error()})
				}
			}(layer)
		}
		wg.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Stable output order regardless of goroutine completion order.
	ordered := make([]scoring.LayerScore, 0, len(scores))
	byID := make(map[string]scoring.LayerScore, len(scores))
	for _, s := range scores {
		byID[s.LayerID] = s
	}
	for _, layer := range layers {
		if s, ok := byID[layer.ID]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered, skipped, nil
}

func (b *BatchScorer) scoreOne(ctx context.Context, content string, layer catalog.Layer) (scoring.LayerScore, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return scoring.LayerScore{}, err
	}
	persona := b.personas.ForLayer(layer)
	prompt := fmt.Sprintf(
		"Score the following analytical dimension against the supplied content.\n\nDimension: %s\n\n%s\n\nContent:\n%s",
		layer.DisplayName,
		layerSchemaPrompt,
		content,
	)
	resp := layerResponse{}
	_, err := b.exec.Run(ctx, "layer "+layer.ID, persona.SystemPrompt, prompt, &resp, func() error {
		return validateLayerResponse(resp)
	})
	if err != nil {
		return scoring.LayerScore{}, err
	}
	return scoring.LayerScore{
		LayerID:       layer.ID,
		Score:         resp.Score,
		Confidence:    resp.Confidence,
		Insights:      resp.Insights,
		EvidenceCount: resp.EvidenceCount,
	}, nil
}

func validateLayerResponse(r layerResponse) error {
	if r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("score %g outside [0,1]", r.Score)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %g outside [0,1]", r.Confidence)
	}
	if r.EvidenceCount < 0 {
		return fmt.Errorf("evidence_count must be >= 0")
	}
	for _, ins := range r.Insights {
		if strings.TrimSpace(ins) == "" {
			return fmt.Errorf("empty insight string")
		}
	}
	return nil
}
