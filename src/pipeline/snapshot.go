package pipeline

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"workflowengine/src/gateway"
	"workflowengine/src/model"
	"workflowengine/src/security"
)

// Credential errors abort the run before any exchange call.
var (
	ErrMissingCredentials = errors.New("workflow has no exchange credentials")
	ErrMissingAgentModel  = errors.New("workflow has no decision model configured")
)

// Snapshot is the payload handed to the decision agent: portfolio state,
// market prices and recent run history, plus the analyst enrichment.
type Snapshot struct {
	WorkflowID  uint               `json:"workflow_id"`
	Mode        string             `json:"mode"`
	CashToken   string             `json:"cash_token"`
	Tokens      []TokenState       `json:"tokens"`
	CashBalance float64            `json:"cash_balance"`
	Prices      map[string]float64 `json:"prices"`
	Recent      []RecentReview     `json:"recent_reviews"`
	Analysis    map[string]string  `json:"analysis,omitempty"`
}

// TokenState is one workflow token with its balance and allocation floor.
type TokenState struct {
	Token         string  `json:"token"`
	Balance       float64 `json:"balance"`
	MinAllocation float64 `json:"min_allocation"`
}

// RecentReview is a compact view of a prior run.
type RecentReview struct {
	CreatedAt   string `json:"created_at"`
	Rebalance   bool   `json:"rebalance"`
	ShortReport string `json:"short_report,omitempty"`
	Error       string `json:"error,omitempty"`
}

// resolveGateway decrypts the workflow's credentials and builds its gateway.
func (p *Pipeline) resolveGateway(workflow *model.Workflow) (gateway.Gateway, error) {
	if workflow.APIKeyHash == "" || workflow.APISecretHash == "" {
		return nil, ErrMissingCredentials
	}

	apiKey, err := security.DecryptString(workflow.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API key: %w", err)
	}
	apiSecret, err := security.DecryptString(workflow.APISecretHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API secret: %w", err)
	}

	return p.gatewayFactory(apiKey, apiSecret), nil
}

// collectSnapshot gathers balances, prices and recent history. A missing
// credential or model has already aborted the run before this point.
func (p *Pipeline) collectSnapshot(ctx context.Context, workflow *model.Workflow, gw gateway.Gateway) (*Snapshot, error) {
	snapshot := &Snapshot{
		WorkflowID: workflow.ID,
		Mode:       workflow.Mode,
		CashToken:  workflow.CashToken,
		Prices:     make(map[string]float64),
	}

	balances, err := p.fetchBalances(ctx, workflow, gw)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}

	byToken := make(map[string]float64, len(balances))
	for _, b := range balances {
		byToken[b.Token] = b.Free
	}
	snapshot.CashBalance = byToken[workflow.CashToken]

	for i := range workflow.Tokens {
		token := workflow.Tokens[i]
		snapshot.Tokens = append(snapshot.Tokens, TokenState{
			Token:         token.Token,
			Balance:       byToken[token.Token],
			MinAllocation: token.MinAllocation,
		})

		symbol := token.Token + workflow.CashToken
		price, err := p.marketPrice(ctx, gw, symbol)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"workflow_id": workflow.ID,
				"symbol":      symbol,
			}).Warn("failed to fetch price for snapshot")
			continue
		}
		snapshot.Prices[symbol] = price
	}

	recent, err := p.results.FindLatestByWorkflow(ctx, workflow.ID, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent reviews: %w", err)
	}
	for i := range recent {
		snapshot.Recent = append(snapshot.Recent, RecentReview{
			CreatedAt:   recent[i].CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Rebalance:   recent[i].Rebalance,
			ShortReport: recent[i].ShortReport,
			Error:       recent[i].Error,
		})
	}

	return snapshot, nil
}

func (p *Pipeline) fetchBalances(ctx context.Context, workflow *model.Workflow, gw gateway.Gateway) ([]gateway.Balance, error) {
	if workflow.Mode == model.WorkflowModeFutures {
		futuresAPI, ok := gw.Futures()
		if !ok {
			// A futures workflow on a spot-only exchange still reviews;
			// the execution engine records the capability gap per action.
			return nil, nil
		}
		return futuresAPI.FetchWallet(ctx)
	}

	spot, ok := gw.Spot()
	if !ok {
		return nil, fmt.Errorf("gateway %s lacks spot capability", gw.Name())
	}
	return spot.FetchBalances(ctx)
}

func (p *Pipeline) marketPrice(ctx context.Context, gw gateway.Gateway, symbol string) (float64, error) {
	if p.prices != nil {
		if last, ok := p.prices.Get(symbol); ok {
			return last, nil
		}
	}

	ticker, err := gw.Metadata().FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return ticker.Last, nil
}
