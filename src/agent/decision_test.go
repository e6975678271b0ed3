package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDecisionValid(t *testing.T) {
	raw := []byte(`{
		"short_report": "rotate into BTC",
		"orders": [
			{"pair": "BTCUSDT", "token": "BTC", "side": "buy", "amount": 0.5}
		]
	}`)

	decision, err := DecodeDecision(raw)
	require.NoError(t, err)
	require.Equal(t, "rotate into BTC", decision.ShortReport)
	require.Len(t, decision.Orders, 1)
	require.Equal(t, "BUY", decision.Orders[0].Side, "side is normalized to upper case")
	require.False(t, decision.Empty())
}

func TestDecodeDecisionRejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"short_report": "x", "confidence": 0.9}`)

	_, err := DecodeDecision(raw)
	require.Error(t, err)
}

func TestDecodeDecisionRejectsInvalidSide(t *testing.T) {
	raw := []byte(`{"orders": [{"pair": "BTCUSDT", "token": "BTC", "side": "LONG", "amount": 1}]}`)

	_, err := DecodeDecision(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid side")
}

func TestDecodeDecisionRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []string{"0", "-1"} {
		raw := []byte(`{"orders": [{"pair": "BTCUSDT", "token": "BTC", "side": "BUY", "amount": ` + amount + `}]}`)
		_, err := DecodeDecision(raw)
		require.Error(t, err, "amount %s must be rejected", amount)
	}
}

func TestDecodeDecisionRejectsMissingPair(t *testing.T) {
	raw := []byte(`{"orders": [{"token": "BTC", "side": "BUY", "amount": 1}]}`)

	_, err := DecodeDecision(raw)
	require.Error(t, err)
}

func TestDecodeDecisionNormalizesActionKind(t *testing.T) {
	raw := []byte(`{"actions": [{"symbol": "BTCUSDT", "position_side": "LONG", "kind": "open", "quantity": 1}]}`)

	decision, err := DecodeDecision(raw)
	require.NoError(t, err)
	require.Equal(t, "OPEN", decision.Actions[0].Kind)
}

func TestDecodeDecisionRejectsUnknownActionKind(t *testing.T) {
	raw := []byte(`{"actions": [{"symbol": "BTCUSDT", "kind": "FLIP", "quantity": 1}]}`)

	_, err := DecodeDecision(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid kind")
}

func TestDecodeDecisionEmptyObjectIsEmptyDecision(t *testing.T) {
	decision, err := DecodeDecision([]byte(`{}`))
	require.NoError(t, err)
	require.True(t, decision.Empty())
}

func TestDecodeDecisionFreeTextFails(t *testing.T) {
	_, err := DecodeDecision([]byte(`I think you should buy BTC`))
	require.Error(t, err)
}
