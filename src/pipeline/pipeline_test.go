package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workflowengine/src/agent"
	"workflowengine/src/futures"
	"workflowengine/src/gateway"
	"workflowengine/src/guard"
	"workflowengine/src/model"
	"workflowengine/src/security"
)

type stubWorkflows struct {
	workflow *model.Workflow
	stamped  int
}

func (s *stubWorkflows) FindByID(_ context.Context, _ uint) (*model.Workflow, error) {
	return s.workflow, nil
}

func (s *stubWorkflows) UpdateLastReviewedAt(_ context.Context, _ uint, _ time.Time) error {
	s.stamped++
	return nil
}

type stubResults struct {
	created []*model.ReviewResult
}

func (s *stubResults) Create(_ context.Context, result *model.ReviewResult) error {
	s.created = append(s.created, result)
	return nil
}

func (s *stubResults) FindLatestByWorkflow(_ context.Context, _ uint, _ int) ([]model.ReviewResult, error) {
	return nil, nil
}

type stubRawLogs struct {
	created []*model.RawLog
}

func (s *stubRawLogs) Create(_ context.Context, rawLog *model.RawLog) error {
	rawLog.ID = uint(len(s.created) + 1)
	s.created = append(s.created, rawLog)
	return nil
}

type stubLimitOrders struct {
	created []*model.LimitOrder
}

func (s *stubLimitOrders) Create(_ context.Context, order *model.LimitOrder) error {
	s.created = append(s.created, order)
	return nil
}

func (s *stubLimitOrders) FindOpenByWorkflow(_ context.Context, _ uint) ([]model.LimitOrder, error) {
	return nil, nil
}

func (s *stubLimitOrders) MarkCanceled(_ context.Context, _ uint, _ string) error { return nil }

type stubFuturesOrders struct{}

func (s *stubFuturesOrders) Create(_ context.Context, _ *model.FuturesOrder) error { return nil }

type stubAgent struct {
	resp   *agent.Response
	err    error
	panics bool
}

func (s *stubAgent) Decide(_ context.Context, _ agent.Request) (*agent.Response, error) {
	if s.panics {
		panic("agent exploded")
	}
	return s.resp, s.err
}

type stubMetadata struct{}

func (stubMetadata) FetchMarket(_ context.Context, symbol string) (*gateway.Market, error) {
	return &gateway.Market{
		Symbol:            symbol,
		BaseAsset:         "BTC",
		QuoteAsset:        "USDT",
		PricePrecision:    2,
		QuantityPrecision: 4,
		MinNotional:       10,
	}, nil
}

func (stubMetadata) FetchTicker(_ context.Context, symbol string) (*gateway.Ticker, error) {
	return &gateway.Ticker{Symbol: symbol, Last: 100}, nil
}

type stubSpot struct {
	placed []gateway.PlaceLimitOrderParams
}

func (s *stubSpot) FetchBalances(_ context.Context) ([]gateway.Balance, error) {
	return []gateway.Balance{{Token: "BTC", Free: 2}, {Token: "USDT", Free: 5000}}, nil
}

func (s *stubSpot) PlaceLimitOrder(_ context.Context, params gateway.PlaceLimitOrderParams) (string, error) {
	s.placed = append(s.placed, params)
	return "ex-1", nil
}

func (s *stubSpot) CancelOrder(_ context.Context, _, _ string) error { return nil }

func (s *stubSpot) FetchOpenOrders(_ context.Context, _ string) ([]gateway.OrderSnapshot, error) {
	return nil, nil
}

func (s *stubSpot) FetchOrder(_ context.Context, _, _ string) (*gateway.OrderSnapshot, error) {
	return nil, nil
}

type stubGateway struct {
	spot *stubSpot
}

func (g *stubGateway) Name() string                            { return "stub" }
func (g *stubGateway) Metadata() gateway.MetadataService       { return stubMetadata{} }
func (g *stubGateway) Spot() (gateway.SpotService, bool)       { return g.spot, true }
func (g *stubGateway) Futures() (gateway.FuturesService, bool) { return nil, false }

type stubPrices struct{}

func (stubPrices) Get(_ string) (float64, bool) { return 100, true }

type fixture struct {
	pipeline    *Pipeline
	workflows   *stubWorkflows
	results     *stubResults
	rawLogs     *stubRawLogs
	limitOrders *stubLimitOrders
	spot        *stubSpot
	guard       *guard.RunGuard
}

func encrypted(t *testing.T, plaintext string) string {
	t.Helper()
	out, err := security.EncryptString(plaintext)
	require.NoError(t, err)
	return out
}

func spotWorkflow(t *testing.T) *model.Workflow {
	return &model.Workflow{
		ID:            1,
		UserID:        2,
		Mode:          model.WorkflowModeSpot,
		Status:        model.WorkflowStatusActive,
		CashToken:     "USDT",
		AgentModel:    "gpt-4o",
		APIKeyHash:    encrypted(t, "key"),
		APISecretHash: encrypted(t, "secret"),
		Tokens:        []model.WorkflowToken{{Token: "BTC"}},
	}
}

func newFixture(t *testing.T, workflow *model.Workflow, decisionAgent agent.DecisionAgent) *fixture {
	t.Helper()

	f := &fixture{
		workflows:   &stubWorkflows{workflow: workflow},
		results:     &stubResults{},
		rawLogs:     &stubRawLogs{},
		limitOrders: &stubLimitOrders{},
		spot:        &stubSpot{},
		guard:       guard.NewRunGuard(),
	}

	f.pipeline = New(Deps{
		Workflows:   f.workflows,
		Results:     f.results,
		RawLogs:     f.rawLogs,
		LimitOrders: f.limitOrders,

		Engine:        futures.NewEngine(&stubFuturesOrders{}),
		DecisionAgent: decisionAgent,
		RunGuard:      f.guard,
		GatewayFactory: func(_, _ string) gateway.Gateway {
			return &stubGateway{spot: f.spot}
		},
		Prices: stubPrices{},
	})

	return f
}

func decisionResponse(decision *agent.Decision) *agent.Response {
	return &agent.Response{
		Decision:    decision,
		RawPrompt:   `[{"role":"system","content":"..."}]`,
		RawResponse: `{"short_report":"..."}`,
	}
}

func TestRunReturnsAlreadyRunningWhenGuardHeld(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{resp: decisionResponse(&agent.Decision{})})

	require.True(t, f.guard.TryAcquire(1))

	err := f.pipeline.Run(context.Background(), 1)
	require.ErrorIs(t, err, guard.ErrAlreadyRunning)
	require.Empty(t, f.results.created, "a rejected run must not write anything")
}

func TestRunUnknownWorkflow(t *testing.T) {
	f := newFixture(t, nil, &stubAgent{})

	err := f.pipeline.Run(context.Background(), 42)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	require.False(t, f.guard.Held(42))
}

func TestRunAgentFailureSynthesizesFailureResult(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{err: errors.New("agent timeout")})

	err := f.pipeline.Run(context.Background(), 1)
	require.Error(t, err)

	require.Len(t, f.results.created, 1)
	result := f.results.created[0]
	require.False(t, result.Rebalance)
	require.Contains(t, result.Error, "agent timeout")

	require.False(t, f.guard.Held(1), "guard must be released after a failed run")
	require.Equal(t, 1, f.workflows.stamped)
}

func TestRunPanicReleasesGuardAndRecordsFailure(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{panics: true})

	err := f.pipeline.Run(context.Background(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "panic")

	require.False(t, f.guard.Held(1), "guard must be released even on panic")
	require.Len(t, f.results.created, 1)
	require.False(t, f.results.created[0].Rebalance)
}

func TestRunMissingCredentialsFails(t *testing.T) {
	workflow := spotWorkflow(t)
	workflow.APIKeyHash = ""
	workflow.APISecretHash = ""

	f := newFixture(t, workflow, &stubAgent{})

	err := f.pipeline.Run(context.Background(), 1)
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Len(t, f.results.created, 1)
}

func TestRunMissingAgentModelFails(t *testing.T) {
	workflow := spotWorkflow(t)
	workflow.AgentModel = ""

	f := newFixture(t, workflow, &stubAgent{})

	err := f.pipeline.Run(context.Background(), 1)
	require.ErrorIs(t, err, ErrMissingAgentModel)
}

func TestRunEmptyDecisionRecordsNoRebalance(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{
		resp: decisionResponse(&agent.Decision{ShortReport: "hold everything"}),
	})

	require.NoError(t, f.pipeline.Run(context.Background(), 1))

	require.Len(t, f.results.created, 1)
	result := f.results.created[0]
	require.False(t, result.Rebalance)
	require.Empty(t, result.Error)
	require.Equal(t, "hold everything", result.ShortReport)
	require.NotNil(t, result.RawLogID)

	require.Len(t, f.rawLogs.created, 1)
	require.Empty(t, f.spot.placed)
}

func TestRunExecutesSpotDecision(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{
		resp: decisionResponse(&agent.Decision{
			ShortReport: "rotate into BTC",
			Orders: []agent.OrderIntent{
				{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 1},
			},
		}),
	})

	require.NoError(t, f.pipeline.Run(context.Background(), 1))

	require.Len(t, f.results.created, 1)
	require.True(t, f.results.created[0].Rebalance)

	require.Len(t, f.spot.placed, 1)
	require.Len(t, f.limitOrders.created, 1)
}

func TestRunManualRebalanceSkipsExecution(t *testing.T) {
	workflow := spotWorkflow(t)
	workflow.ManualRebalance = true

	f := newFixture(t, workflow, &stubAgent{
		resp: decisionResponse(&agent.Decision{
			Orders: []agent.OrderIntent{
				{Pair: "BTCUSDT", Token: "BTC", Side: gateway.SideBuy, Amount: 1},
			},
		}),
	})

	require.NoError(t, f.pipeline.Run(context.Background(), 1))

	require.Len(t, f.results.created, 1)
	require.True(t, f.results.created[0].Rebalance, "the decision is still recorded")
	require.Empty(t, f.spot.placed, "manual-rebalance workflows never auto-execute")
}

func TestRunInvalidDecisionIsRecordedNotExecuted(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{
		resp: decisionResponse(&agent.Decision{
			Orders: []agent.OrderIntent{
				{Pair: "DOGEUSDT", Token: "DOGE", Side: gateway.SideBuy, Amount: 1},
			},
		}),
	})

	require.NoError(t, f.pipeline.Run(context.Background(), 1),
		"an invalid decision is not a pipeline failure")

	require.Len(t, f.results.created, 1)
	result := f.results.created[0]
	require.False(t, result.Rebalance)
	require.Contains(t, result.Error, "outside the workflow set")
	require.Empty(t, f.spot.placed)
}

func TestRunModeMismatchedDecisionIsRejected(t *testing.T) {
	f := newFixture(t, spotWorkflow(t), &stubAgent{
		resp: decisionResponse(&agent.Decision{
			Actions: []agent.FuturesAction{
				{Symbol: "BTCUSDT", Kind: model.FuturesActionOpen, Quantity: 1},
			},
		}),
	})

	require.NoError(t, f.pipeline.Run(context.Background(), 1))

	result := f.results.created[0]
	require.False(t, result.Rebalance)
	require.Contains(t, result.Error, "spot workflow")
}

func TestRunAsyncAdmissionIsSynchronous(t *testing.T) {
	f := newFixture(t, nil, &stubAgent{})

	err := f.pipeline.RunAsync(context.Background(), 42)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}
