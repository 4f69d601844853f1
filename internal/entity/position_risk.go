package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// StopLossType records how a stop was chosen.
type StopLossType string

const (
	StopLossManual     StopLossType = "manual"
	StopLossATR        StopLossType = "atr"
	StopLossPercentage StopLossType = "percentage"
	StopLossSupport    StopLossType = "support"
	// StopLossBroker marks a stop synced from a live broker stop order.
	StopLossBroker StopLossType = "broker"
)

func (t StopLossType) Valid() bool {
	switch t {
	case StopLossManual, StopLossATR, StopLossPercentage, StopLossSupport, StopLossBroker:
		return true
	}
	return false
}

// PositionRisk is the guardian's tracked state for one open position.
type PositionRisk struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Symbol     string       `gorm:"type:varchar(16);not null;uniqueIndex:idx_stop_loss_tracking_symbol_position" json:"symbol"`
	PositionID int64        `gorm:"not null;uniqueIndex:idx_stop_loss_tracking_symbol_position" json:"position_id"`
	Side       PositionSide `gorm:"type:varchar(8);not null" json:"side"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"quantity"`

	StopLossPrice decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"stop_loss_price"`
	StopLossType  *StopLossType       `gorm:"type:varchar(16)" json:"stop_loss_type,omitempty"`
	StopLossPct   decimal.NullDecimal `gorm:"type:numeric(10,4)" json:"stop_loss_pct"`
	StopLossSetAt *time.Time          `json:"stop_loss_set_at,omitempty"`

	CurrentPrice       decimal.NullDecimal `gorm:"type:numeric(20,6)" json:"current_price"`
	CurrentDrawdownPct decimal.NullDecimal `gorm:"type:numeric(10,4)" json:"current_drawdown_pct"`
	PriceUpdatedAt     *time.Time          `json:"price_updated_at,omitempty"`
	NextEarningsDate   *time.Time          `gorm:"type:date" json:"next_earnings_date,omitempty"`

	CurrentSeverity      Severity        `gorm:"type:varchar(16);not null" json:"current_severity"`
	EscalationLevel      EscalationLevel `gorm:"column:alert_escalation_level;type:varchar(16);not null" json:"escalation_level"`
	MissingStopAlertSent bool            `gorm:"not null" json:"missing_stop_alert_sent"`
	AlertCount           int             `gorm:"not null" json:"alert_count"`
	LastAlertSent        *time.Time      `json:"last_alert_sent,omitempty"`
	EpisodeStartedAt     *time.Time      `json:"episode_started_at,omitempty"`
	EpisodeSeverity      Severity        `gorm:"type:varchar(16);not null" json:"episode_severity"`

	Acknowledged         bool       `gorm:"not null" json:"acknowledged"`
	AcknowledgedAt       *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedReason   *string    `gorm:"type:text" json:"acknowledged_reason,omitempty"`
	AcknowledgedSeverity Severity   `gorm:"type:varchar(16);not null" json:"acknowledged_severity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PositionRisk) TableName() string {
	return "stop_loss_tracking"
}

// HasStopLoss reports whether a usable stop price is configured.
func (p PositionRisk) HasStopLoss() bool {
	return p.StopLossPrice.Valid && p.StopLossPrice.Decimal.IsPositive()
}

// IsShort reports whether the position profits from falling prices.
func (p PositionRisk) IsShort() bool {
	return p.Side == SideShort
}

// LockKey identifies the position for in-process serialization.
func (p PositionRisk) LockKey() string {
	return PositionLockKey(p.Symbol, p.PositionID)
}
