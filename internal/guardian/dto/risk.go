package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stop-loss-guardian/internal/entity"
)

// RiskAssessment is the evaluator's view of a single position at one instant.
type RiskAssessment struct {
	HasStop      bool             `json:"has_stop"`
	DrawdownPct  float64          `json:"drawdown_pct"`
	Severity     entity.Severity  `json:"severity"`
	AlertType    entity.AlertType `json:"alert_type,omitempty"`
	StopBreached bool             `json:"stop_breached"`
	PriceStale   bool             `json:"price_stale"`
	EarningsSoon bool             `json:"earnings_soon"`
}

type DecisionAction string

const (
	// ActionNone leaves escalation state untouched.
	ActionNone DecisionAction = "none"
	// ActionSuppressed means the position is acknowledged and the risk has not worsened.
	ActionSuppressed DecisionAction = "suppressed"
	// ActionDispatch sends an alert at NewLevel.
	ActionDispatch DecisionAction = "dispatch"
	// ActionResolve ends the episode because a stop is now configured.
	ActionResolve DecisionAction = "resolve"
)

// EscalationDecision is the policy output for one position.
type EscalationDecision struct {
	Action         DecisionAction         `json:"action"`
	ShouldDispatch bool                   `json:"should_dispatch"`
	NewLevel       entity.EscalationLevel `json:"new_level"`
	Channel        entity.AlertChannel    `json:"channel,omitempty"`
	// Rearm is set when an acknowledged position starts a fresh, strictly worse episode.
	Rearm  bool   `json:"rearm,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// DeliveryResult is what the dispatcher hands back for persistence.
type DeliveryResult struct {
	Delivered bool
	Attempts  int
	// Position carries the state fields to persist. It is unchanged when delivery failed.
	Position entity.PositionRisk
	Alert    *entity.UrgentAlert
	Err      error
}

// AlertMessage is the channel-independent content of an alert.
type AlertMessage struct {
	Symbol          string                 `json:"symbol"`
	PositionID      int64                  `json:"position_id"`
	Side            entity.PositionSide    `json:"side"`
	AlertType       entity.AlertType       `json:"alert_type"`
	Severity        entity.Severity        `json:"severity"`
	Level           entity.EscalationLevel `json:"level"`
	EntryPrice      decimal.Decimal        `json:"entry_price"`
	Quantity        decimal.Decimal        `json:"quantity"`
	CurrentPrice    *decimal.Decimal       `json:"current_price,omitempty"`
	DrawdownPct     *float64               `json:"drawdown_pct,omitempty"`
	StopLossPrice   *decimal.Decimal       `json:"stop_loss_price,omitempty"`
	SuggestedStop   *decimal.Decimal       `json:"suggested_stop,omitempty"`
	EarningsDate    *time.Time             `json:"earnings_date,omitempty"`
	Headline        string                 `json:"headline"`
	SuggestedAction string                 `json:"suggested_action"`
}

// PositionOutcome summarises what happened to one position during a tick.
type PositionOutcome struct {
	Symbol     string
	PositionID int64
	Severity   entity.Severity
	Action     DecisionAction
	Delivered  bool
	Skipped    bool
	Err        error
}

// TickReport summarises one monitor tick.
type TickReport struct {
	StartedAt   time.Time
	Duration    time.Duration
	Skipped     bool
	Evaluated   int
	Dispatched  int
	Failed      int
	Unprotected int
	Outcomes    []PositionOutcome
	Err         error
}
