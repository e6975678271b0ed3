package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"workflowengine/src/model"
)

const analystFallback = "analysis unavailable"

// runAnalysts enriches the snapshot with sentiment and technical summaries.
// The analysts run in parallel; a failing analyst degrades to a fallback
// line and never aborts the run.
func (p *Pipeline) runAnalysts(ctx context.Context, workflow *model.Workflow, snapshot *Snapshot) {
	analysis := make(map[string]string, 2)

	var mu sync.Mutex
	var wg sync.WaitGroup

	run := func(name string, fn func() (string, error)) {
		defer wg.Done()

		text, err := fn()
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"workflow_id": workflow.ID,
				"analyst":     name,
			}).Warn("analyst failed, using fallback")
			text = analystFallback
		}

		mu.Lock()
		analysis[name] = text
		mu.Unlock()
	}

	wg.Add(2)
	go run("technical", func() (string, error) { return p.technicalAnalysis(workflow) })
	go run("sentiment", func() (string, error) { return p.sentimentAnalysis(workflow) })
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	snapshot.Analysis = analysis
}

// technicalAnalysis summarizes each token's recent trend from hourly candles:
// last close versus a simple moving average over the fetched window.
func (p *Pipeline) technicalAnalysis(workflow *model.Workflow) (string, error) {
	if p.candles == nil {
		return "", fmt.Errorf("no candle source configured")
	}

	summary := ""
	for i := range workflow.Tokens {
		symbol := workflow.Tokens[i].Token + workflow.CashToken

		candles, err := p.candles.RecentCandles(symbol, 24)
		if err != nil {
			return "", err
		}
		if len(candles) == 0 {
			continue
		}

		sma := decimal.Zero
		for j := range candles {
			sma = sma.Add(candles[j].Close)
		}
		sma = sma.Div(decimal.NewFromInt(int64(len(candles))))

		last := candles[len(candles)-1].Close
		trend := "below"
		if last.GreaterThanOrEqual(sma) {
			trend = "above"
		}

		summary += fmt.Sprintf("%s: last %s, %s 24h SMA %s. ", symbol, last.StringFixed(2), trend, sma.StringFixed(2))
	}

	if summary == "" {
		return "", fmt.Errorf("no candle data for any token")
	}
	return summary, nil
}

// sentimentAnalysis derives a coarse momentum read from the 24h candle
// window. It stands in for a news-driven sentiment feed and degrades the
// same way.
func (p *Pipeline) sentimentAnalysis(workflow *model.Workflow) (string, error) {
	if p.candles == nil {
		return "", fmt.Errorf("no candle source configured")
	}

	summary := ""
	for i := range workflow.Tokens {
		symbol := workflow.Tokens[i].Token + workflow.CashToken

		candles, err := p.candles.RecentCandles(symbol, 24)
		if err != nil {
			return "", err
		}
		if len(candles) < 2 {
			continue
		}

		first := candles[0].Close
		last := candles[len(candles)-1].Close
		if first.IsZero() {
			continue
		}

		change := last.Sub(first).Div(first).Mul(decimal.NewFromInt(100))
		mood := "neutral"
		switch {
		case change.GreaterThan(decimal.NewFromInt(2)):
			mood = "bullish"
		case change.LessThan(decimal.NewFromInt(-2)):
			mood = "bearish"
		}

		summary += fmt.Sprintf("%s: %s (%s%% over 24h). ", symbol, mood, change.StringFixed(2))
	}

	if summary == "" {
		return "", fmt.Errorf("no candle data for any token")
	}
	return summary, nil
}
