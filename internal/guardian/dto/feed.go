package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stop-loss-guardian/internal/entity"
)

// BrokerPosition is one entry of the broker-sync positions hash.
type BrokerPosition struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	Equity        decimal.Decimal `json:"equity"`
	AverageCost   decimal.Decimal `json:"average_buy_price"`
	PercentChange decimal.Decimal `json:"percent_change"`
	UpdatedAt     *time.Time      `json:"updated_at"`
}

// CurrentPrice derives the mark from equity / quantity.
func (b BrokerPosition) CurrentPrice() (decimal.Decimal, bool) {
	if !b.Quantity.IsPositive() || !b.Equity.IsPositive() {
		return decimal.Zero, false
	}
	return b.Equity.Div(b.Quantity.Abs()), true
}

// BrokerStopOrder is one entry of the broker-sync stop orders hash.
type BrokerStopOrder struct {
	Symbol    string          `json:"symbol"`
	StopPrice decimal.Decimal `json:"stop_price"`
	UpdatedAt *time.Time      `json:"updated_at"`
}

// FeedSnapshot is the price feed as read once per tick.
type FeedSnapshot struct {
	Available  bool
	FetchedAt  time.Time
	Positions  map[string]BrokerPosition
	StopOrders map[string]BrokerStopOrder
	Earnings   map[string]time.Time
}

// AccountState is the broker account summary used for sizing.
type AccountState struct {
	BuyingPower decimal.Decimal `json:"buying_power"`
	Cash        decimal.Decimal `json:"cash"`
	TotalEquity decimal.Decimal `json:"total_equity"`
	UpdatedAt   *time.Time      `json:"updated_at"`
}

// PositionSync is the per-tick upsert input for one tracked position.
type PositionSync struct {
	Symbol           string
	PositionID       int64
	Side             entity.PositionSide
	EntryPrice       decimal.Decimal
	Quantity         decimal.Decimal
	CurrentPrice     decimal.NullDecimal
	PriceUpdatedAt   *time.Time
	NextEarningsDate *time.Time
	// BrokerStop is set when the broker holds a live stop order for the symbol.
	BrokerStop *decimal.Decimal
	// FeedAvailable gates clearing of broker-synced stops that disappeared from the feed.
	FeedAvailable bool
	SyncedAt      time.Time
}

// StopLossUpdate is an operator stop-loss change.
type StopLossUpdate struct {
	Price decimal.Decimal
	Type  entity.StopLossType
	Pct   decimal.NullDecimal
}

type GetUrgentAlertsParam struct {
	Symbol string
	Limit  int
}
