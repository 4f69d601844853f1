package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/pkg/utils"
)

// PositionTarget selects positions by id, or by symbol when ID is zero.
type PositionTarget struct {
	ID     uint
	Symbol string
}

type AcknowledgeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type SetStopLossRequest struct {
	StopPrice float64 `json:"stop_price" validate:"required,gt=0"`
	StopType  string  `json:"stop_type" default:"manual" validate:"oneof=manual atr percentage support"`
}

type PositionSizeRequest struct {
	Symbol      string  `json:"symbol" validate:"required,max=16"`
	EntryPrice  float64 `json:"entry_price" validate:"required,gt=0"`
	StopPrice   float64 `json:"stop_price" validate:"required,gt=0"`
	TargetPrice float64 `json:"target_price" validate:"gte=0"`
	// AccountValue overrides the broker buying power when set.
	AccountValue float64 `json:"account_value" validate:"gte=0"`
}

type GetAlertsQuery struct {
	Symbol string `query:"symbol" validate:"max=16"`
	Limit  int    `query:"limit" default:"50" validate:"min=1,max=500"`
}

// PositionSizeResult is the recommended size for a planned trade.
type PositionSizeResult struct {
	Symbol          string           `json:"symbol"`
	EntryPrice      decimal.Decimal  `json:"entry_price" swaggertype:"string"`
	StopPrice       decimal.Decimal  `json:"stop_price" swaggertype:"string"`
	TargetPrice     *decimal.Decimal `json:"target_price,omitempty" swaggertype:"string"`
	AccountValue    decimal.Decimal  `json:"account_value" swaggertype:"string"`
	RiskPerShare    decimal.Decimal  `json:"risk_per_share" swaggertype:"string"`
	StopDistancePct float64          `json:"stop_distance_pct"`
	MaxShares       int64            `json:"max_shares"`
	PositionValue   decimal.Decimal  `json:"position_value" swaggertype:"string"`
	PositionPct     float64          `json:"position_pct"`
	TotalRisk       decimal.Decimal  `json:"total_risk" swaggertype:"string"`
	RiskPct         float64          `json:"risk_pct"`
	RiskRewardRatio *float64         `json:"risk_reward_ratio,omitempty"`
	IsValid         bool             `json:"is_valid"`
	BlockedReason   string           `json:"blocked_reason,omitempty"`
	Warnings        []string         `json:"warnings"`
}

type PositionRiskResponse struct {
	ID                 uint       `json:"id"`
	Symbol             string     `json:"symbol"`
	PositionID         int64      `json:"position_id"`
	Side               string     `json:"side"`
	EntryPrice         string     `json:"entry_price"`
	Quantity           string     `json:"quantity"`
	StopLossPrice      *string    `json:"stop_loss_price,omitempty"`
	StopLossType       *string    `json:"stop_loss_type,omitempty"`
	CurrentPrice       *string    `json:"current_price,omitempty"`
	CurrentDrawdownPct *string    `json:"current_drawdown_pct,omitempty"`
	PriceUpdatedAt     *time.Time `json:"price_updated_at,omitempty"`
	NextEarningsDate   *time.Time `json:"next_earnings_date,omitempty"`
	Severity           string     `json:"severity"`
	EscalationLevel    string     `json:"escalation_level"`
	AlertCount         int        `json:"alert_count"`
	LastAlertSent      *time.Time `json:"last_alert_sent,omitempty"`
	Acknowledged       bool       `json:"acknowledged"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedReason *string    `json:"acknowledged_reason,omitempty"`
}

type UrgentAlertResponse struct {
	ID              uint       `json:"id"`
	Symbol          string     `json:"symbol"`
	PositionID      int64      `json:"position_id"`
	AlertType       string     `json:"alert_type"`
	Severity        string     `json:"severity"`
	EscalationLevel int        `json:"escalation_level"`
	Channel         string     `json:"channel"`
	Message         string     `json:"message"`
	DeliveryStatus  string     `json:"delivery_status"`
	Attempts        int        `json:"attempts"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	Acknowledged    bool       `json:"acknowledged"`
	ResponseAction  *string    `json:"response_action,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewPositionRiskResponse(p entity.PositionRisk) PositionRiskResponse {
	resp := PositionRiskResponse{
		ID:                 p.ID,
		Symbol:             p.Symbol,
		PositionID:         p.PositionID,
		Side:               string(p.Side),
		EntryPrice:         p.EntryPrice.String(),
		Quantity:           p.Quantity.String(),
		StopLossPrice:      nullDecimalString(p.StopLossPrice),
		CurrentPrice:       nullDecimalString(p.CurrentPrice),
		CurrentDrawdownPct: nullDecimalString(p.CurrentDrawdownPct),
		PriceUpdatedAt:     p.PriceUpdatedAt,
		NextEarningsDate:   p.NextEarningsDate,
		Severity:           p.CurrentSeverity.String(),
		EscalationLevel:    p.EscalationLevel.String(),
		AlertCount:         p.AlertCount,
		LastAlertSent:      p.LastAlertSent,
		Acknowledged:       p.Acknowledged,
		AcknowledgedAt:     p.AcknowledgedAt,
		AcknowledgedReason: p.AcknowledgedReason,
	}
	if p.StopLossType != nil {
		resp.StopLossType = utils.ToPointer(string(*p.StopLossType))
	}
	return resp
}

func NewUrgentAlertResponse(a entity.UrgentAlert) UrgentAlertResponse {
	return UrgentAlertResponse{
		ID:              a.ID,
		Symbol:          a.Symbol,
		PositionID:      a.PositionID,
		AlertType:       string(a.AlertType),
		Severity:        a.Severity,
		EscalationLevel: a.EscalationLevel,
		Channel:         string(a.Channel),
		Message:         a.Message,
		DeliveryStatus:  string(a.DeliveryStatus),
		Attempts:        a.Attempts,
		ErrorMessage:    a.ErrorMessage,
		DeliveredAt:     a.DeliveredAt,
		Acknowledged:    a.Acknowledged,
		ResponseAction:  a.ResponseAction,
		CreatedAt:       a.CreatedAt,
	}
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
