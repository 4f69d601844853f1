package entity

import (
	"time"

	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertTypeMissingStopLoss     AlertType = "missing_stop_loss"
	AlertTypeStopLossBreached    AlertType = "stop_loss_breached"
	AlertTypeDrawdownWarning     AlertType = "drawdown_warning"
	AlertTypeDrawdownEmergency   AlertType = "drawdown_emergency"
	AlertTypeEarningsUnprotected AlertType = "earnings_unprotected"
)

type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

const (
	ResponseAcknowledged = "acknowledged"
	ResponseStopLossSet  = "stop_loss_set"
)

// UrgentAlert is one dispatch attempt. Rows are append-only apart from acknowledgment.
type UrgentAlert struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	PositionRiskID  uint           `gorm:"column:stop_loss_tracking_id;not null;index" json:"position_risk_id"`
	Symbol          string         `gorm:"type:varchar(16);not null" json:"symbol"`
	PositionID      int64          `gorm:"not null" json:"position_id"`
	AlertType       AlertType      `gorm:"type:varchar(32);not null" json:"alert_type"`
	Severity        string         `gorm:"type:varchar(16);not null" json:"severity"`
	EscalationLevel int            `gorm:"not null" json:"escalation_level"`
	Message         string         `gorm:"type:text;not null" json:"message"`
	Details         datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	Channel         AlertChannel   `gorm:"type:varchar(16);not null" json:"channel"`
	ProviderRef     *string        `gorm:"type:varchar(64)" json:"provider_ref,omitempty"`
	DeliveryStatus  DeliveryStatus `gorm:"type:varchar(16);not null" json:"delivery_status"`
	Attempts        int            `gorm:"not null" json:"attempts"`
	ErrorMessage    *string        `gorm:"type:text" json:"error_message,omitempty"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	Acknowledged    bool           `gorm:"not null" json:"acknowledged"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	ResponseAction  *string        `gorm:"type:varchar(32)" json:"response_action,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (UrgentAlert) TableName() string {
	return "urgent_alerts"
}
