package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"workflowengine/src/agent"
	"workflowengine/src/futures"
	"workflowengine/src/gateway"
	"workflowengine/src/guard"
	"workflowengine/src/marketdata"
	"workflowengine/src/metrics"
	"workflowengine/src/model"
	"workflowengine/src/rebalance"
)

// ErrWorkflowNotFound is returned when a run is requested for an unknown
// workflow id.
var ErrWorkflowNotFound = errors.New("workflow not found")

type workflowRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Workflow, error)
	UpdateLastReviewedAt(ctx context.Context, id uint, at time.Time) error
}

type reviewResultRepository interface {
	Create(ctx context.Context, result *model.ReviewResult) error
	FindLatestByWorkflow(ctx context.Context, workflowID uint, limit int) ([]model.ReviewResult, error)
}

type rawLogRepository interface {
	Create(ctx context.Context, rawLog *model.RawLog) error
}

type limitOrderRepository interface {
	Create(ctx context.Context, order *model.LimitOrder) error
	FindOpenByWorkflow(ctx context.Context, workflowID uint) ([]model.LimitOrder, error)
	MarkCanceled(ctx context.Context, id uint, reason string) error
}

// Pipeline runs one workflow review: cleanup, snapshot, analysts, decision,
// validation, persistence, execution. Steps are strictly sequential within a
// run; concurrent runs of different workflows interleave freely.
type Pipeline struct {
	workflows   workflowRepository
	results     reviewResultRepository
	rawLogs     rawLogRepository
	limitOrders limitOrderRepository

	engine         *futures.Engine
	decisionAgent  agent.DecisionAgent
	runGuard       *guard.RunGuard
	gatewayFactory gateway.Factory
	prices         rebalance.PriceSource
	candles        marketdata.CandleSource

	instructions   string
	cleanupWorkers int
	now            func() time.Time
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Workflows   workflowRepository
	Results     reviewResultRepository
	RawLogs     rawLogRepository
	LimitOrders limitOrderRepository

	Engine         *futures.Engine
	DecisionAgent  agent.DecisionAgent
	RunGuard       *guard.RunGuard
	GatewayFactory gateway.Factory
	Prices         rebalance.PriceSource
	Candles        marketdata.CandleSource

	Instructions   string
	CleanupWorkers int
}

func New(deps Deps) *Pipeline {
	workers := deps.CleanupWorkers
	if workers <= 0 {
		workers = 3
	}

	return &Pipeline{
		workflows:      deps.Workflows,
		results:        deps.Results,
		rawLogs:        deps.RawLogs,
		limitOrders:    deps.LimitOrders,
		engine:         deps.Engine,
		decisionAgent:  deps.DecisionAgent,
		runGuard:       deps.RunGuard,
		gatewayFactory: deps.GatewayFactory,
		prices:         deps.Prices,
		candles:        deps.Candles,
		instructions:   deps.Instructions,
		cleanupWorkers: workers,
		now:            time.Now,
	}
}

// Run executes one review for the workflow. It returns
// guard.ErrAlreadyRunning when another run holds the workflow; the manual
// trigger surfaces that to its caller, scheduled ticks skip it silently.
// The guard is released on every exit path, panics included.
func (p *Pipeline) Run(ctx context.Context, workflowID uint) error {
	workflow, err := p.admit(ctx, workflowID)
	if err != nil {
		return err
	}
	return p.runAdmitted(ctx, workflow)
}

// RunAsync admits the run synchronously, so unknown workflows and runs
// already in flight are reported to the caller, then executes in the
// background detached from the caller's context.
func (p *Pipeline) RunAsync(ctx context.Context, workflowID uint) error {
	workflow, err := p.admit(ctx, workflowID)
	if err != nil {
		return err
	}

	go func() {
		if err := p.runAdmitted(context.Background(), workflow); err != nil {
			logger.WithError(err).WithField("workflow_id", workflowID).
				Error("background review failed")
		}
	}()
	return nil
}

// admit resolves the workflow and takes its run guard. The caller owns the
// guard on a nil error.
func (p *Pipeline) admit(ctx context.Context, workflowID uint) (*model.Workflow, error) {
	workflow, err := p.workflows.FindByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, ErrWorkflowNotFound)
	}

	if !p.runGuard.TryAcquire(workflowID) {
		return nil, guard.ErrAlreadyRunning
	}
	return workflow, nil
}

func (p *Pipeline) runAdmitted(ctx context.Context, workflow *model.Workflow) error {
	workflowID := workflow.ID

	metrics.ActivePipelines.Inc()
	defer func() {
		p.runGuard.Release(workflowID)
		metrics.ActivePipelines.Dec()
	}()

	log := logger.WithField("workflow_id", workflowID)
	log.Info("review pipeline started")

	runErr := p.executeGuarded(ctx, workflow, log)

	if err := p.workflows.UpdateLastReviewedAt(ctx, workflowID, p.now()); err != nil {
		log.WithError(err).Warn("failed to stamp last_reviewed_at")
	}

	if runErr != nil {
		p.recordFailure(ctx, workflow, runErr)
		metrics.Reviews.WithLabelValues("failure").Inc()
		log.WithError(runErr).Error("review pipeline failed")
		return runErr
	}

	metrics.Reviews.WithLabelValues("success").Inc()
	log.Info("review pipeline finished")
	return nil
}

// executeGuarded converts a panic anywhere in the step chain into an ordinary
// run error so the failure ReviewResult is still synthesized.
func (p *Pipeline) executeGuarded(ctx context.Context, workflow *model.Workflow, log *logger.Entry) (runErr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("review pipeline panicked: %+v", r)
			runErr = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	return p.execute(ctx, workflow, log)
}

func (p *Pipeline) execute(ctx context.Context, workflow *model.Workflow, log *logger.Entry) error {
	if workflow.AgentModel == "" {
		return ErrMissingAgentModel
	}

	gw, err := p.resolveGateway(workflow)
	if err != nil {
		return err
	}

	// Step 1: cancel leftovers from the prior run. Never aborts.
	p.cleanupOpenOrders(ctx, workflow, gw)

	// Step 2: snapshot.
	snapshot, err := p.collectSnapshot(ctx, workflow, gw)
	if err != nil {
		return err
	}
	log.WithField("step", "snapshot").Debug("snapshot collected")

	// Step 3: analysts. Degrades, never aborts.
	p.runAnalysts(ctx, workflow, snapshot)

	// Step 4: decision agent.
	resp, err := p.decisionAgent.Decide(ctx, agent.Request{
		Model:        workflow.AgentModel,
		Instructions: p.instructions,
		Snapshot:     snapshot,
	})
	if err != nil {
		return fmt.Errorf("decision agent call failed: %w", err)
	}

	// Step 5: validate against the workflow's configured universe. An
	// invalid decision is recorded, not executed; it is not a pipeline
	// failure.
	decision := resp.Decision
	var validationErr error
	if decision != nil {
		if err := p.validateDecision(workflow, decision); err != nil {
			log.WithError(err).Warn("decision rejected by validation")
			validationErr = err
			decision = nil
		}
	}

	// Step 6: persist the raw prompt/response first, then exactly one result row.
	rawLog := &model.RawLog{
		WorkflowID: workflow.ID,
		RequestID:  uuid.NewString(),
		Prompt:     resp.RawPrompt,
		Response:   resp.RawResponse,
	}
	if err := p.rawLogs.Create(ctx, rawLog); err != nil {
		return fmt.Errorf("failed to persist raw log: %w", err)
	}

	rebalanceWanted := decision != nil && !decision.Empty()

	result := &model.ReviewResult{
		WorkflowID: workflow.ID,
		Rebalance:  rebalanceWanted,
		RawLogID:   &rawLog.ID,
	}
	if decision != nil {
		result.ShortReport = decision.ShortReport
	}
	if validationErr != nil {
		result.Error = validationErr.Error()
	}
	if err := p.results.Create(ctx, result); err != nil {
		return fmt.Errorf("failed to persist review result: %w", err)
	}

	// Step 7: execution.
	if !rebalanceWanted {
		return nil
	}
	if workflow.ManualRebalance {
		log.Info("workflow is manual-rebalance only, skipping execution")
		return nil
	}

	p.executeDecision(ctx, workflow, gw, result.ID, decision, log)
	return nil
}

func (p *Pipeline) executeDecision(ctx context.Context, workflow *model.Workflow, gw gateway.Gateway, reviewResultID uint, decision *agent.Decision, log *logger.Entry) {
	if workflow.Mode == model.WorkflowModeFutures {
		result := p.engine.Execute(ctx, gw, workflow, reviewResultID, decision.Actions)
		log.WithFields(map[string]interface{}{
			"executed": result.Executed,
			"failed":   result.Failed,
			"skipped":  result.Skipped,
		}).Info("futures decision executed")
		return
	}

	spot, ok := gw.Spot()
	if !ok {
		log.Error("spot workflow on a gateway without spot capability")
		return
	}

	builder := rebalance.NewBuilder(gw.Metadata(), spot, p.prices, p.limitOrders)
	result := builder.Build(ctx, workflow, reviewResultID, decision.Orders)
	log.WithFields(map[string]interface{}{
		"placed":   result.Placed,
		"rejected": result.Rejected,
	}).Info("rebalance decision executed")
}

// validateDecision rejects decisions referencing tokens or pairs outside the
// workflow's configured set, non-positive quantities, and instructions that
// do not match the workflow's mode.
func (p *Pipeline) validateDecision(workflow *model.Workflow, decision *agent.Decision) error {
	if workflow.Mode == model.WorkflowModeSpot && len(decision.Actions) > 0 {
		return fmt.Errorf("decision contains futures actions for a spot workflow")
	}
	if workflow.Mode == model.WorkflowModeFutures && len(decision.Orders) > 0 {
		return fmt.Errorf("decision contains spot orders for a futures workflow")
	}

	allowedPairs := make(map[string]bool, len(workflow.Tokens))
	for i := range workflow.Tokens {
		allowedPairs[workflow.Tokens[i].Token+workflow.CashToken] = true
	}

	for i := range decision.Orders {
		order := &decision.Orders[i]
		if !allowedPairs[order.Pair] {
			return fmt.Errorf("order %d references pair %s outside the workflow set", i, order.Pair)
		}
		if !workflow.AllowsToken(order.Token) {
			return fmt.Errorf("order %d references token %s outside the workflow set", i, order.Token)
		}
		if order.Amount <= 0 {
			return fmt.Errorf("order %d has non-positive amount", i)
		}
	}

	for i := range decision.Actions {
		action := &decision.Actions[i]
		if !allowedPairs[action.Symbol] {
			return fmt.Errorf("action %d references symbol %s outside the workflow set", i, action.Symbol)
		}
		if action.Kind != model.FuturesActionHold && action.Quantity <= 0 {
			return fmt.Errorf("action %d has non-positive quantity", i)
		}
	}

	return nil
}

// recordFailure synthesizes the single failure ReviewResult for a
// short-circuited run.
func (p *Pipeline) recordFailure(ctx context.Context, workflow *model.Workflow, runErr error) {
	result := &model.ReviewResult{
		WorkflowID: workflow.ID,
		Rebalance:  false,
		Error:      runErr.Error(),
	}

	if err := p.results.Create(ctx, result); err != nil {
		logger.WithError(err).WithField("workflow_id", workflow.ID).
			Error("failed to persist failure review result")
	}
}
