package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"workflowengine/src/agent"
	"workflowengine/src/database"
	"workflowengine/src/futures"
	"workflowengine/src/gateway"
	"workflowengine/src/guard"
	"workflowengine/src/marketdata"
	"workflowengine/src/model"
	"workflowengine/src/pipeline"
	"workflowengine/src/reconciler"
	"workflowengine/src/repository"
	"workflowengine/src/scheduler"
	"workflowengine/src/security"
	"workflowengine/src/server"
)

// Engine is the long-running service: review scheduler, reconciler and the
// HTTP surface, all in one process.
type Engine struct{}

func (e *Engine) Start() error {
	config := GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	workflows := repository.NewWorkflowRepository()
	results := repository.NewReviewResultRepository()
	rawLogs := repository.NewRawLogRepository()
	limitOrders := repository.NewLimitOrderRepository()
	futuresOrders := repository.NewFuturesOrderRepository()

	prices := marketdata.NewPriceCache(config.PriceCacheTTL)

	if config.StreamEnabled {
		if err := startTickerStream(ctx, workflows, prices); err != nil {
			logrus.WithError(err).Warn("ticker stream not started, pipelines fall back to REST tickers")
		}
	}

	p := pipeline.New(pipeline.Deps{
		Workflows:   workflows,
		Results:     results,
		RawLogs:     rawLogs,
		LimitOrders: limitOrders,

		Engine:         futures.NewEngine(futuresOrders),
		DecisionAgent:  agent.NewOpenAIAgent(),
		RunGuard:       guard.NewRunGuard(),
		GatewayFactory: gateway.BinanceFactory,
		Prices:         prices,
		Candles:        marketdata.NewGoexCandleSource(),

		Instructions:   config.AgentInstructions,
		CleanupWorkers: config.CleanupWorkers,
	})

	rec := reconciler.NewReconciler(limitOrders, workflows, ResolveGateway, config.ReconcileWorkers)

	sched := scheduler.New(workflows, p, rec, scheduler.GetConfig())
	go sched.Start(ctx)

	// Blocks until SIGINT/SIGTERM.
	server.StartServer(server.GetConfig().Port, sched)
	return nil
}

// ResolveGateway decrypts a workflow's stored credentials and builds its
// exchange gateway. Shared by the reconciler and the one-shot reconcile
// command.
func ResolveGateway(workflow *model.Workflow) (gateway.Gateway, error) {
	if workflow.APIKeyHash == "" || workflow.APISecretHash == "" {
		return nil, fmt.Errorf("workflow %d has no exchange credentials", workflow.ID)
	}

	apiKey, err := security.DecryptString(workflow.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API key: %w", err)
	}
	apiSecret, err := security.DecryptString(workflow.APISecretHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API secret: %w", err)
	}

	return gateway.BinanceFactory(apiKey, apiSecret), nil
}

// startTickerStream subscribes the advisory price cache to the websocket feed
// for every symbol the active workflows can trade.
func startTickerStream(ctx context.Context, workflows *repository.WorkflowRepository, prices *marketdata.PriceCache) error {
	active, err := workflows.FindActive(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	symbols := make([]string, 0)
	for i := range active {
		for j := range active[i].Tokens {
			symbol := active[i].Tokens[j].Token + active[i].CashToken
			if !seen[symbol] {
				seen[symbol] = true
				symbols = append(symbols, symbol)
			}
		}
	}
	if len(symbols) == 0 {
		logrus.Info("no active symbols, ticker stream idle")
		return nil
	}

	stream := gateway.NewTickerStream(symbols, prices)
	go stream.Run(ctx)

	logrus.WithField("symbols", len(symbols)).Info("ticker stream started")
	return nil
}
