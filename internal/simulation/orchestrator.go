package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/riskdesk/internal/decision"
	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/explain"
	"github.com/opensource-finance/riskdesk/internal/metrics"
	"github.com/opensource-finance/riskdesk/internal/scoring"
)

var tracer = otel.Tracer("riskdesk-simulation")

// Generic failure messages, used when the scoring service gives no detail.
const (
	genericScoreFailure   = "the scoring service could not score this transaction"
	genericExplainFailure = "the scoring service could not explain this result"
	genericTimeout        = "the scoring service did not answer in time"
)

// Orchestrator runs the two-phase simulation: score, then explain.
type Orchestrator struct {
	store        *Store
	scoring      domain.ScoringService
	engine       *decision.Engine
	bus          domain.EventBus
	phaseTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. bus may be nil.
func NewOrchestrator(store *Store, scoringSvc domain.ScoringService, engine *decision.Engine, bus domain.EventBus, phaseTimeout time.Duration) *Orchestrator {
	if engine == nil {
		engine = decision.NewEngine()
	}
	return &Orchestrator{
		store:        store,
		scoring:      scoringSvc,
		engine:       engine,
		bus:          bus,
		phaseTimeout: phaseTimeout,
	}
}

// Store returns the session store.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// Run simulates features under the session's current threshold.
//
// Phase failures are not errors: they yield a *Failed outcome. Run returns an
// error only for unknown sessions, missing features, or when a newer run on
// the same session made this one obsolete (ErrSuperseded).
func (o *Orchestrator) Run(ctx context.Context, analystID, sessionID string, features map[string]float64) (Outcome, error) {
	if len(features) == 0 {
		return nil, ErrInvalidFeatures
	}

	runCtx, token, threshold, err := o.store.begin(ctx, analystID, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(runCtx, "simulation.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int64("simulation.token", int64(token)),
		attribute.Float64("simulation.threshold", threshold),
	)

	metrics.SimulationsInFlight.Inc()
	defer metrics.SimulationsInFlight.Dec()

	run := &domain.SimulationRun{
		ID:        uuid.New().String(),
		AnalystID: analystID,
		SessionID: sessionID,
		Token:     token,
		Status:    domain.StateRunning,
		Features:  copyFeatures(features),
		Threshold: threshold,
		StartedAt: time.Now().UTC(),
	}
	o.publish(ctx, domain.TopicSimulationStarted, run)

	outcome, err := o.execute(ctx, sessionID, run)
	if errors.Is(err, ErrSuperseded) {
		o.superseded(span, run)
		return nil, ErrSuperseded
	}

	if err := o.store.finish(sessionID, token, outcome); err != nil {
		o.superseded(span, run)
		return nil, err
	}

	run.FinishedAt = time.Now().UTC()
	run.Status = outcome.State()

	switch out := outcome.(type) {
	case *Succeeded:
		score := out.Result.RiskScore
		run.RiskScore = &score
		run.Decision = out.Decision
		run.Confidence = out.Confidence.String()
		run.Headline = out.Explanation.Headline
		metrics.RecordSimulation(string(domain.StateSucceeded), "")
		o.publish(ctx, domain.TopicSimulationSucceeded, run)

	case *Failed:
		run.FailedPhase = out.Phase
		run.Error = out.Detail
		span.SetStatus(codes.Error, out.Detail)
		metrics.RecordSimulation(string(domain.StateFailed), out.Phase)
		o.publish(ctx, domain.TopicSimulationFailed, run)
	}

	slog.Info("simulation finished",
		"analyst_id", analystID,
		"session_id", sessionID,
		"run_id", run.ID,
		"token", token,
		"status", run.Status,
		"failed_phase", run.FailedPhase,
	)

	return outcome, nil
}

// execute runs both phases. Phase 2 is issued only after phase 1 succeeded
// and only if the run is still current.
func (o *Orchestrator) execute(ctx context.Context, sessionID string, run *domain.SimulationRun) (Outcome, error) {
	result, perr := o.score(ctx, run)
	if !o.store.current(sessionID, run.Token) {
		return nil, ErrSuperseded
	}
	if perr != nil {
		return o.failed(run, perr), nil
	}

	exp, perr := o.explain(ctx, run, result)
	if !o.store.current(sessionID, run.Token) {
		return nil, ErrSuperseded
	}
	if perr != nil {
		return o.failed(run, perr), nil
	}

	// The decision is recomputed locally so it always matches the threshold
	// the analyst is looking at.
	assessment := o.engine.Assess(result.RiskScore, run.Threshold)

	// The service's own label wins; the local band only fills a missing one.
	confidence := assessment.Band
	if result.Confidence != "" {
		confidence = domain.ParseConfidence(result.Confidence)
	}

	return &Succeeded{
		RunID:       run.ID,
		Token:       run.Token,
		Threshold:   run.Threshold,
		Result:      *result,
		Decision:    assessment.Decision,
		Verdict:     assessment.Verdict,
		Confidence:  confidence,
		Robustness:  o.engine.Robustness(result.RiskScore),
		Explanation: explain.Render(exp),
	}, nil
}

func (o *Orchestrator) score(ctx context.Context, run *domain.SimulationRun) (*domain.SimulationResult, *PhaseError) {
	ctx, cancel := o.phaseContext(ctx)
	defer cancel()

	result, err := o.scoring.Predict(ctx, domain.SimulationRequest{
		Features:  run.Features,
		Threshold: run.Threshold,
	})
	if err != nil {
		return nil, phaseError(domain.PhaseScore, err, genericScoreFailure)
	}
	if result == nil {
		return nil, &PhaseError{Phase: domain.PhaseScore, Detail: genericScoreFailure}
	}
	return result, nil
}

func (o *Orchestrator) explain(ctx context.Context, run *domain.SimulationRun, result *domain.SimulationResult) (*domain.Explanation, *PhaseError) {
	ctx, cancel := o.phaseContext(ctx)
	defer cancel()

	exp, err := o.scoring.Explain(ctx, domain.ExplainRequest{
		Data:       run.Features,
		RiskScore:  result.RiskScore,
		Prediction: result.Prediction,
	})
	if err != nil {
		return nil, phaseError(domain.PhaseExplain, err, genericExplainFailure)
	}
	return exp, nil
}

func (o *Orchestrator) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.phaseTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.phaseTimeout)
}

func (o *Orchestrator) failed(run *domain.SimulationRun, perr *PhaseError) *Failed {
	slog.Warn("simulation phase failed",
		"session_id", run.SessionID,
		"run_id", run.ID,
		"phase", perr.Phase,
		"error", perr.Err,
	)
	return &Failed{
		RunID:     run.ID,
		Token:     run.Token,
		Threshold: run.Threshold,
		Phase:     perr.Phase,
		Detail:    perr.Detail,
	}
}

func (o *Orchestrator) superseded(span trace.Span, run *domain.SimulationRun) {
	metrics.SimulationsSuperseded.Inc()
	span.AddEvent("superseded")
	slog.Debug("simulation superseded",
		"session_id", run.SessionID,
		"run_id", run.ID,
		"token", run.Token,
	)
}

// publish sends a lifecycle event to the analyst's namespace and to the
// global namespace the recorder listens on.
func (o *Orchestrator) publish(ctx context.Context, topic string, run *domain.SimulationRun) {
	if o.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.SimulationEvent{Run: *run})
	if err != nil {
		slog.Error("failed to encode simulation event", "error", err)
		return
	}

	// Delivery must not depend on the run being cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, ns := range []string{run.AnalystID, domain.GlobalNamespace} {
		if err := o.bus.Publish(ctx, ns, topic, payload); err != nil {
			slog.Error("failed to publish simulation event",
				"topic", topic,
				"namespace", ns,
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}

func phaseError(phase string, err error, generic string) *PhaseError {
	detail := scoring.Detail(err)
	if detail == "" {
		if errors.Is(err, context.DeadlineExceeded) {
			detail = genericTimeout
		} else {
			detail = generic
		}
	}
	return &PhaseError{
		Phase:  phase,
		Detail: detail,
		Err:    fmt.Errorf("%s: %w", phase, err),
	}
}

func copyFeatures(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
