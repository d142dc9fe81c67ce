package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/oracle"
	"github.com/joelkehle/stratscope/internal/pattern"
	"github.com/joelkehle/stratscope/internal/scoring"
	"github.com/joelkehle/stratscope/internal/simulate"
)

// LayerScorer produces one score per catalog layer from a content snapshot.
// oracle.BatchScorer is the production implementation; tests and the -stub
// CLI mode swap in deterministic ones.
type LayerScorer interface {
	ScoreLayers(ctx context.Context, content string, layers []catalog.Layer) ([]scoring.LayerScore, []oracle.SkippedLayer, error)
}

// RunStore persists runs. Saves are whole-run upserts keyed by
// (session, version); GetRun returns the highest version for a session.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, sessionID string) (*Run, error)
	ListSessions(ctx context.Context) ([]string, error)
	Close() error
}

// ProgressFn is invoked after each committed state transition.
type ProgressFn func(sessionID string, state State)

// Orchestrator drives a session through the stage sequence, persisting the
// run after every transition so an interrupted session resumes from its
// last completed stage rather than from scratch.
type Orchestrator struct {
	cat      *catalog.Catalog
	lib      *pattern.Library
	scorer   LayerScorer
	factors  *scoring.FactorEngine
	segments *scoring.SegmentEngine
	matcher  *pattern.Matcher
	sim      *simulate.Engine
	store    RunStore
	logger   log.Logger
	tracer   trace.Tracer

	iterations int
	fixedSeed  int64 // 0 means draw a fresh seed per run
}

// Options carries the orchestrator's collaborators. Store and Scorer are
// required; nil engines are built from the catalog with defaults.
type Options struct {
	Catalog  *catalog.Catalog
	Library  *pattern.Library
	Scorer   LayerScorer
	Segments *scoring.SegmentEngine
	Matcher  *pattern.Matcher
	Sim      *simulate.Engine
	Store    RunStore
	Logger   log.Logger

	Iterations int
	Seed       int64
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		cat:        opts.Catalog,
		lib:        opts.Library,
		scorer:     opts.Scorer,
		factors:    scoring.NewFactorEngine(opts.Catalog),
		segments:   opts.Segments,
		matcher:    opts.Matcher,
		sim:        opts.Sim,
		store:      opts.Store,
		logger:     opts.Logger,
		tracer:     otel.Tracer("stratscope/pipeline"),
		iterations: opts.Iterations,
		fixedSeed:  opts.Seed,
	}
	if o.segments == nil {
		o.segments = scoring.NewSegmentEngine(opts.Catalog, nil)
	}
	if o.matcher == nil {
		o.matcher = pattern.NewMatcher(opts.Library, pattern.DefaultMatcherConfig())
	}
	if o.sim == nil {
		o.sim = simulate.NewEngine(opts.Iterations)
	}
	return o
}

// Start creates a run for sessionID and drives it to completion. If the
// session already has runs, the new run gets the next version; prior
// versions stay readable.
func (o *Orchestrator) Start(ctx context.Context, sessionID, content string, progress ProgressFn) (*Run, error) {
	version := 1
	if prev, err := o.store.GetRun(ctx, sessionID); err == nil {
		version = prev.Version + 1
	} else if err != ErrNotFound {
		return nil, fmt.Errorf("load prior run: %w", err)
	}

	seed := o.fixedSeed
	if seed == 0 {
		seed = rand.Int64()
	}
	now := time.Now().UTC()
	run := &Run{
		SessionID:       sessionID,
		Version:         version,
		State:           StateCreated,
		ContentSnapshot: content,
		Seed:            seed,
		Iterations:      o.iterations,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}
	o.logger.Info().Str("session", sessionID).Int("version", version).Int64("seed", seed).Msg("pipeline started")
	return o.drive(ctx, run, progress)
}

// Resume picks up the latest run for sessionID from its last persisted
// state. Completed runs are returned as-is; failed runs restart from the
// stage that failed, keeping earlier stage results.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, progress ProgressFn) (*Run, error) {
	run, err := o.store.GetRun(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if run.State == StateComplete {
		return run, nil
	}
	if run.State == StateFailed {
		run.State = o.lastGoodState(run)
		run.FailedStage = ""
		run.FailureReason = ""
	}
	o.logger.Info().Str("session", sessionID).Int("version", run.Version).Str("state", string(run.State)).Msg("pipeline resumed")
	return o.drive(ctx, run, progress)
}

// lastGoodState maps a failed run back to the latest state whose results
// were persisted before the failure.
func (o *Orchestrator) lastGoodState(run *Run) State {
	switch {
	case len(run.Simulations) > 0:
		return StateScenariosSimulated
	case len(run.Matches) > 0 || run.State == StatePatternsMatched:
		return StatePatternsMatched
	case len(run.Segments) > 0:
		return StateSegmentsComputed
	case len(run.Factors) > 0:
		return StateFactorsComputed
	case len(run.LayerScores) > 0:
		return StateLayersScored
	default:
		return StateCreated
	}
}

func (o *Orchestrator) drive(ctx context.Context, run *Run, progress ProgressFn) (*Run, error) {
	for !run.State.Terminal() {
		// Cancellation is honored only between stages so every persisted
		// state reflects a fully completed stage.
		if err := ctx.Err(); err != nil {
			o.logger.Warn().Str("session", run.SessionID).Str("state", string(run.State)).Msg("pipeline canceled")
			return run, err
		}
		next, ok := run.State.next()
		if !ok {
			return run, fmt.Errorf("no stage follows state %q", run.State)
		}
		if err := o.runStage(ctx, run, next); err != nil {
			run.State = StateFailed
			run.FailedStage = StageNameFromError(err)
			run.FailureReason = err.Error()
			run.UpdatedAt = time.Now().UTC()
			if saveErr := o.store.SaveRun(ctx, run); saveErr != nil {
				o.logger.Error().Err(saveErr).Str("session", run.SessionID).Msg("failed to persist failure state")
			}
			o.logger.Error().Err(err).Str("session", run.SessionID).Str("stage", run.FailedStage).Msg("pipeline failed")
			return run, err
		}
		run.State = next
		run.UpdatedAt = time.Now().UTC()
		if next == StateComplete {
			run.CompletedAt = run.UpdatedAt
		}
		if err := o.store.SaveRun(ctx, run); err != nil {
			return run, fmt.Errorf("persist state %s: %w", next, err)
		}
		if progress != nil {
			progress(run.SessionID, next)
		}
	}
	o.logger.Info().Str("session", run.SessionID).Int("version", run.Version).Msg("pipeline complete")
	return run, nil
}

func (o *Orchestrator) runStage(ctx context.Context, run *Run, target State) (err error) {
	stage := stageName(target)
	ctx, span := o.tracer.Start(ctx, "pipeline."+stage)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch target {
	case StateLayersScored:
		err = o.scoreLayers(ctx, run)
	case StateFactorsComputed:
		err = o.computeFactors(run)
	case StateSegmentsComputed:
		err = o.computeSegments(ctx, run)
	case StatePatternsMatched:
		err = o.matchPatterns(run)
	case StateScenariosSimulated:
		err = o.simulateScenarios(run)
	case StateComplete:
		err = nil
	default:
		err = fmt.Errorf("unknown target state %q", target)
	}
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func stageName(target State) string {
	switch target {
	case StateLayersScored:
		return "score_layers"
	case StateFactorsComputed:
		return "compute_factors"
	case StateSegmentsComputed:
		return "compute_segments"
	case StatePatternsMatched:
		return "match_patterns"
	case StateScenariosSimulated:
		return "simulate_scenarios"
	case StateComplete:
		return "finalize"
	default:
		return string(target)
	}
}

func (o *Orchestrator) scoreLayers(ctx context.Context, run *Run) error {
	scores, skipped, err := o.scorer.ScoreLayers(ctx, run.ContentSnapshot, o.cat.Layers)
	if err != nil {
		return err
	}
	run.LayerScores = scores
	run.SkippedLayers = skipped
	return nil
}

func (o *Orchestrator) computeFactors(run *Run) error {
	factors, err := o.factors.ComputeFactors(run.LayerScores)
	if err != nil {
		return err
	}
	run.Factors = factors
	return nil
}

func (o *Orchestrator) computeSegments(ctx context.Context, run *Run) error {
	segments, err := o.segments.ComputeSegments(ctx, run.Factors, run.ContentSnapshot)
	if err != nil {
		return err
	}
	run.Segments = segments
	return nil
}

func (o *Orchestrator) matchPatterns(run *Run) error {
	scores := pattern.BuildScoreSet(run.Segments, run.Factors)
	run.Matches = o.matcher.Match(scores)
	return nil
}

func (o *Orchestrator) simulateScenarios(run *Run) error {
	run.Simulations = make(map[string]map[string]simulate.Result, len(run.Matches))
	ids := make([]string, 0, len(run.Matches))
	for _, m := range run.Matches {
		ids = append(ids, m.PatternID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p, ok := o.lib.ByID(id)
		if !ok {
			return fmt.Errorf("matched pattern %q not in library", id)
		}
		results, err := o.sim.Simulate(p, run.Iterations, run.Seed)
		if err != nil {
			return err
		}
		run.Simulations[id] = results
	}
	return nil
}
