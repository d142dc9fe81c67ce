package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedCaller replays canned responses in order. An entry with err set
// simulates a transport failure for that attempt.
type scriptedCaller struct {
	responses []scriptedResponse
	calls     int
	prompts   []string
}

type scriptedResponse struct {
	text string
	err  error
}

func (c *scriptedCaller) GenerateJSON(_ context.Context, _ string, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.calls >= len(c.responses) {
		return "", errors.New("scripted caller exhausted")
	}
	r := c.responses[c.calls]
	c.calls++
	return r.text, r.err
}

type payload struct {
	Value int `json:"value"`
}

func TestExecutorSucceedsFirstAttempt(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{{text: `{"value": 7}`}}}
	exec := NewExecutor(caller, 3)
	var out payload
	m, err := exec.Run(context.Background(), "test", "sys", "do it", &out, func() error { return nil })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Value != 7 {
		t.Fatalf("value = %d, want 7", out.Value)
	}
	if m.Attempts != 1 || m.ContentRetries != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestExecutorStripsCodeFences(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{
		{text: "```json\n{\"value\": 3}\n```"},
	}}
	exec := NewExecutor(caller, 3)
	var out payload
	if _, err := exec.Run(context.Background(), "test", "sys", "p", &out, func() error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Value != 3 {
		t.Fatalf("value = %d, want 3", out.Value)
	}
}

func TestExecutorRetriesMalformedJSONWithFeedback(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{
		{text: "not json at all"},
		{text: `{"value": 9}`},
	}}
	exec := NewExecutor(caller, 3)
	var out payload
	m, err := exec.Run(context.Background(), "test", "sys", "p", &out, func() error { return nil })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Value != 9 {
		t.Fatalf("value = %d, want 9", out.Value)
	}
	if m.Attempts != 2 || m.ContentRetries != 1 {
		t.Fatalf("metrics = %+v", m)
	}
	if !strings.Contains(caller.prompts[1], "not valid JSON") {
		t.Fatalf("second prompt missing corrective feedback: %q", caller.prompts[1])
	}
}

func TestExecutorRetriesValidationFailureWithFeedback(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{
		{text: `{"value": -1}`},
		{text: `{"value": 5}`},
	}}
	exec := NewExecutor(caller, 3)
	var out payload
	_, err := exec.Run(context.Background(), "test", "sys", "p", &out, func() error {
		if out.Value < 0 {
			return errors.New("value must be non-negative")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Value != 5 {
		t.Fatalf("value = %d, want 5", out.Value)
	}
	if !strings.Contains(caller.prompts[1], "value must be non-negative") {
		t.Fatalf("feedback prompt = %q", caller.prompts[1])
	}
}

func TestExecutorEmptyResponseRetried(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{
		{text: "   "},
		{text: `{"value": 1}`},
	}}
	exec := NewExecutor(caller, 3)
	var out payload
	m, err := exec.Run(context.Background(), "test", "sys", "p", &out, func() error { return nil })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.ContentRetries != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestExecutorClientErrorNotRetried(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{
		{err: errors.New("status code: 401 unauthorized")},
	}}
	exec := NewExecutor(caller, 3)
	var out payload
	_, err := exec.Run(context.Background(), "test", "sys", "p", &out, func() error { return nil })
	if err == nil {
		t.Fatal("want error for client failure")
	}
	if IsTransient(err) {
		t.Fatalf("client error must not be transient: %v", err)
	}
	if caller.calls != 1 {
		t.Fatalf("calls = %d, want 1", caller.calls)
	}
}

func TestExecutorTransientExhaustedReturnsTransientError(t *testing.T) {
	rateLimited := scriptedResponse{err: errors.New("status code: 429 too many requests")}
	caller := &scriptedCaller{responses: []scriptedResponse{rateLimited, rateLimited}}
	exec := NewExecutor(caller, 2)
	var out payload
	_, err := exec.Run(context.Background(), "test", "sys", "p", &out, func() error { return nil })
	if !IsTransient(err) {
		t.Fatalf("want TransientError, got %v", err)
	}
	if caller.calls != 2 {
		t.Fatalf("calls = %d, want 2", caller.calls)
	}
}

func TestExecutorCancelledDuringBackoff(t *testing.T) {
	caller := &scriptedCaller{responses: []scriptedResponse{
		{err: errors.New("server error 503")},
		{text: `{"value": 1}`},
	}}
	exec := NewExecutor(caller, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out payload
	_, err := exec.Run(ctx, "test", "sys", "p", &out, func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, c := range cases {
		if got := stripCodeFences(c.in); got != c.want {
			t.Fatalf("stripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	if classifyTransportError(context.DeadlineExceeded) != failureTimeout {
		t.Fatal("deadline should classify as timeout")
	}
	if classifyTransportError(errors.New("status code: 429")) != failureRateLimit {
		t.Fatal("429 should classify as rate limit")
	}
	if classifyTransportError(errors.New("status code: 400 bad request")) != failureClient {
		t.Fatal("400 should classify as client")
	}
}
