package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/joelkehle/stratscope/internal/oracle"
	"github.com/joelkehle/stratscope/internal/pattern"
	"github.com/joelkehle/stratscope/internal/scoring"
	"github.com/joelkehle/stratscope/internal/simulate"
)

// State is the per-session pipeline position. Transitions are
// one-directional; Failed is terminal and reachable from any non-terminal
// state.
type State string

const (
	StateCreated            State = "created"
	StateLayersScored       State = "layers_scored"
	StateFactorsComputed    State = "factors_computed"
	StateSegmentsComputed   State = "segments_computed"
	StatePatternsMatched    State = "patterns_matched"
	StateScenariosSimulated State = "scenarios_simulated"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
)

func (s State) Terminal() bool { return s == StateComplete || s == StateFailed }

// next returns the state reached when the stage after s completes.
func (s State) next() (State, bool) {
	switch s {
	case StateCreated:
		return StateLayersScored, true
	case StateLayersScored:
		return StateFactorsComputed, true
	case StateFactorsComputed:
		return StateSegmentsComputed, true
	case StateSegmentsComputed:
		return StatePatternsMatched, true
	case StatePatternsMatched:
		return StateScenariosSimulated, true
	case StateScenariosSimulated:
		return StateComplete, true
	default:
		return "", false
	}
}

// StageError names the pipeline stage an error originated in, so a failed
// run can be investigated without re-running the whole pipeline.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// ErrNotFound is returned by stores when a session has no run.
var ErrNotFound = errors.New("session not found")

// Run is the aggregate root for one analysis: a content snapshot and every
// stage result produced from it, keyed by session and version. Fields are
// appended as stages complete and never retroactively edited; a re-run
// creates the next version under the same session key.
type Run struct {
	SessionID string `json:"session_id"`
	Version   int    `json:"version"`
	State     State  `json:"state"`

	ContentSnapshot string `json:"content_snapshot"`

	LayerScores   []scoring.LayerScore    `json:"layer_scores,omitempty"`
	SkippedLayers []oracle.SkippedLayer   `json:"skipped_layers,omitempty"`
	Factors       []scoring.FactorResult  `json:"factors,omitempty"`
	Segments      []scoring.SegmentResult `json:"segments,omitempty"`
	Matches       []pattern.Match         `json:"matches,omitempty"`

	// Simulations is keyed pattern ID → KPI name.
	Simulations map[string]map[string]simulate.Result `json:"simulations,omitempty"`

	Seed       int64 `json:"seed"`
	Iterations int   `json:"iterations"`

	FailedStage   string `json:"failed_stage,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// StageProgress is the read-only progress view the status API exposes.
type StageProgress struct {
	LayersScored       int    `json:"layers_scored"`
	LayersSkipped      int    `json:"layers_skipped"`
	FactorsComputed    int    `json:"factors_computed"`
	SegmentsComputed   int    `json:"segments_computed"`
	PatternsMatched    int    `json:"patterns_matched"`
	ScenariosSimulated int    `json:"scenarios_simulated"`
	FailedStage        string `json:"failed_stage,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
}

// Status is the getStatus payload.
type Status struct {
	SessionID     string        `json:"session_id"`
	Version       int           `json:"version"`
	State         State         `json:"state"`
	StageProgress StageProgress `json:"stage_progress"`
}

func (r *Run) Progress() StageProgress {
	p := StageProgress{
		LayersScored:     len(r.LayerScores),
		LayersSkipped:    len(r.SkippedLayers),
		FactorsComputed:  len(r.Factors),
		SegmentsComputed: len(r.Segments),
		PatternsMatched:  len(r.Matches),
		FailedStage:      r.FailedStage,
		FailureReason:    r.FailureReason,
	}
	for _, kpis := range r.Simulations {
		p.ScenariosSimulated += len(kpis)
	}
	return p
}

func (r *Run) Status() Status {
	return Status{SessionID: r.SessionID, Version: r.Version, State: r.State, StageProgress: r.Progress()}
}
