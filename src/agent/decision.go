package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Decision is the schema the agent must return. A response that fails to
// decode or validate against this schema is treated as "no decision", never
// as free text to parse heuristically.
type Decision struct {
	ShortReport string          `json:"short_report"`
	Orders      []OrderIntent   `json:"orders,omitempty"`
	Actions     []FuturesAction `json:"actions,omitempty"`
}

// OrderIntent is one abstract spot rebalance instruction. Amount is
// denominated in Token, which must be the base or quote asset of Pair.
type OrderIntent struct {
	Pair               string   `json:"pair"`
	Token              string   `json:"token"`
	Side               string   `json:"side"`
	Amount             float64  `json:"amount"`
	LimitPrice         *float64 `json:"limit_price,omitempty"`
	MaxPriceDivergence *float64 `json:"max_price_divergence,omitempty"`
}

// FuturesAction is one sequenced futures instruction.
type FuturesAction struct {
	Symbol       string   `json:"symbol"`
	PositionSide string   `json:"position_side"`
	Kind         string   `json:"kind"`
	OrderType    string   `json:"order_type,omitempty"`
	Quantity     float64  `json:"quantity"`
	Price        *float64 `json:"price,omitempty"`
	Leverage     *int     `json:"leverage,omitempty"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
}

// Empty reports whether the decision carries no orders and no actions.
func (d *Decision) Empty() bool {
	return len(d.Orders) == 0 && len(d.Actions) == 0
}

// DecodeDecision strictly decodes raw JSON into a Decision and validates its
// shape. Any failure means "no decision".
func DecodeDecision(raw []byte) (*Decision, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var decision Decision
	if err := dec.Decode(&decision); err != nil {
		return nil, fmt.Errorf("decision failed schema decode: %w", err)
	}

	if err := decision.validateShape(); err != nil {
		return nil, err
	}

	return &decision, nil
}

func (d *Decision) validateShape() error {
	for i := range d.Orders {
		o := &d.Orders[i]
		if o.Pair == "" || o.Token == "" {
			return fmt.Errorf("order %d: pair and token are required", i)
		}
		side := strings.ToUpper(o.Side)
		if side != "BUY" && side != "SELL" {
			return fmt.Errorf("order %d: invalid side %q", i, o.Side)
		}
		o.Side = side
		if !isFinitePositive(o.Amount) {
			return fmt.Errorf("order %d: amount must be a finite positive number", i)
		}
	}

	for i := range d.Actions {
		a := &d.Actions[i]
		kind := strings.ToUpper(a.Kind)
		switch kind {
		case "OPEN", "CLOSE", "SCALE", "HOLD":
		default:
			return fmt.Errorf("action %d: invalid kind %q", i, a.Kind)
		}
		a.Kind = kind
	}

	return nil
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
