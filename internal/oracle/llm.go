package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureParse
	failureSchema
	failureEmpty
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// TransientError marks an oracle failure worth retrying with backoff. When
// retries are exhausted the caller records the layer as missing data rather
// than failing the run.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ContentUnavailableError means the content snapshot cannot support scoring
// this layer at all; the layer is skipped without retries.
type ContentUnavailableError struct {
	LayerID string
	Reason  string
}

func (e *ContentUnavailableError) Error() string {
	return fmt.Sprintf("content unavailable for layer %q: %s", e.LayerID, e.Reason)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsContentUnavailable(err error) bool {
	var ce *ContentUnavailableError
	return errors.As(err, &ce)
}

// LLMCaller is the transport boundary to the model. The system prompt varies
// per call because persona dispatch selects it per segment.
type LLMCaller interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

type AnthropicCaller struct {
	messages  AnthropicMessager
	model     anthropic.Model
	maxTokens int64
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCallerFromEnv(model string, maxTokens int64) (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: anthropic.Model(model), maxTokens: maxTokens}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// AttemptMetrics counts transport attempts and content-level retries for one
// scored unit, for progress reporting.
type AttemptMetrics struct {
	Attempts       int
	ContentRetries int
}

// Executor runs one JSON-producing model call with bounded retries: transport
// failures classified transient get backoff, malformed or invalid content
// gets one corrective feedback round per attempt.
type Executor struct {
	caller      LLMCaller
	maxAttempts int
}

func NewExecutor(caller LLMCaller, maxAttempts int) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Executor{caller: caller, maxAttempts: maxAttempts}
}

func (e *Executor) Run(ctx context.Context, op, system, prompt string, out any, validate func() error) (AttemptMetrics, error) {
	metrics := AttemptMetrics{}
	feedback := ""
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := e.caller.GenerateJSON(ctx, system, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < e.maxAttempts {
					select {
					case <-ctx.Done():
						return metrics, ctx.Err()
					case <-time.After(backoffDelay(attempt)):
					}
					continue
				}
				return metrics, &TransientError{Op: op, Err: err}
			}
			return metrics, fmt.Errorf("%s transport failure: %w", op, err)
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < e.maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed: empty response", op)
		}

		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < e.maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed json parse: %w", op, err)
		}
		if err := validate(); err != nil {
			if attempt < e.maxAttempts {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
				continue
			}
			return metrics, fmt.Errorf("%s failed validation: %w", op, err)
		}
		return metrics, nil
	}
	return metrics, fmt.Errorf("%s failed after retries", op)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) llmFailureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, " 5") || strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, " 4") || strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return time.Duration(attempt) * 2 * time.Second
}
