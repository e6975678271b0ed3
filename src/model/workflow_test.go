package model

import (
	"testing"
	"time"
)

func TestWorkflowIsDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reviewed := now.Add(-2 * time.Hour)

	tests := []struct {
		name     string
		workflow Workflow
		want     bool
	}{
		{
			name:     "never reviewed",
			workflow: Workflow{Status: WorkflowStatusActive, ReviewInterval: time.Hour},
			want:     true,
		},
		{
			name:     "interval elapsed",
			workflow: Workflow{Status: WorkflowStatusActive, ReviewInterval: time.Hour, LastReviewedAt: &reviewed},
			want:     true,
		},
		{
			name:     "interval not elapsed",
			workflow: Workflow{Status: WorkflowStatusActive, ReviewInterval: 3 * time.Hour, LastReviewedAt: &reviewed},
			want:     false,
		},
		{
			name:     "inactive never due",
			workflow: Workflow{Status: WorkflowStatusInactive, ReviewInterval: time.Hour},
			want:     false,
		},
		{
			name:     "draft never due",
			workflow: Workflow{Status: WorkflowStatusDraft, ReviewInterval: time.Hour},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.workflow.IsDue(now); got != tt.want {
				t.Fatalf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkflowAllowsToken(t *testing.T) {
	workflow := Workflow{
		CashToken: "USDT",
		Tokens:    []WorkflowToken{{Token: "BTC"}, {Token: "ETH"}},
	}

	if !workflow.AllowsToken("BTC") || !workflow.AllowsToken("ETH") {
		t.Fatalf("configured tokens must be allowed")
	}
	if !workflow.AllowsToken("USDT") {
		t.Fatalf("the cash token is always allowed")
	}
	if workflow.AllowsToken("DOGE") {
		t.Fatalf("unconfigured token must be rejected")
	}
}

func TestLimitOrderTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		LimitOrderStatusOpen:     false,
		LimitOrderStatusFilled:   true,
		LimitOrderStatusCanceled: true,
	} {
		order := LimitOrder{Status: status}
		if order.Terminal() != want {
			t.Fatalf("Terminal() for %q = %v, want %v", status, order.Terminal(), want)
		}
	}
}
