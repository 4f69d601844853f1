package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/pkg/utils"
)

var hundred = decimal.NewFromInt(100)

// RiskEvaluator classifies a position's exposure. It has no side effects.
type RiskEvaluator interface {
	Evaluate(position entity.PositionRisk, now time.Time) (dto.RiskAssessment, error)
}

type riskEvaluator struct {
	cfg config.Guardian
}

func NewRiskEvaluator(cfg config.Guardian) RiskEvaluator {
	return &riskEvaluator{cfg: cfg}
}

func (e *riskEvaluator) Evaluate(p entity.PositionRisk, now time.Time) (dto.RiskAssessment, error) {
	if !p.EntryPrice.IsPositive() {
		return dto.RiskAssessment{}, fmt.Errorf("%w: %s entry_price must be positive, got %s", ErrInvalidInput, p.Symbol, p.EntryPrice)
	}
	if !p.Quantity.IsPositive() {
		return dto.RiskAssessment{}, fmt.Errorf("%w: %s quantity must be positive, got %s", ErrInvalidInput, p.Symbol, p.Quantity)
	}
	if p.Side != "" && p.Side != entity.SideLong && p.Side != entity.SideShort {
		return dto.RiskAssessment{}, fmt.Errorf("%w: %s unknown side %q", ErrInvalidInput, p.Symbol, p.Side)
	}

	a := dto.RiskAssessment{
		HasStop:    p.HasStopLoss(),
		PriceStale: e.isPriceStale(p, now),
	}

	if !a.PriceStale {
		a.DrawdownPct = DrawdownPct(p.Side, p.EntryPrice, p.CurrentPrice.Decimal)
		a.StopBreached = a.HasStop && stopBreached(p, p.CurrentPrice.Decimal)
	}
	a.EarningsSoon = e.earningsSoon(p, now)
	a.Severity, a.AlertType = e.classify(p, a, now)
	return a, nil
}

func (e *riskEvaluator) classify(p entity.PositionRisk, a dto.RiskAssessment, now time.Time) (entity.Severity, entity.AlertType) {
	if !a.HasStop {
		switch {
		case !a.PriceStale && a.DrawdownPct > e.cfg.EmergencyDrawdownPct:
			return entity.SeverityEmergency, entity.AlertTypeDrawdownEmergency
		case a.EarningsSoon:
			return entity.SeverityEmergency, entity.AlertTypeEarningsUnprotected
		default:
			return entity.SeverityCritical, entity.AlertTypeMissingStopLoss
		}
	}

	if a.StopBreached {
		// a stop that was just placed through the market still has time to fill
		if p.StopLossSetAt != nil && now.Sub(*p.StopLossSetAt) < e.cfg.StopTriggerGrace {
			return entity.SeverityWarning, entity.AlertTypeStopLossBreached
		}
		return entity.SeverityCritical, entity.AlertTypeStopLossBreached
	}

	if !a.PriceStale && a.DrawdownPct > e.cfg.WarningDrawdownPct {
		return entity.SeverityWarning, entity.AlertTypeDrawdownWarning
	}
	return entity.SeverityNone, ""
}

func (e *riskEvaluator) isPriceStale(p entity.PositionRisk, now time.Time) bool {
	if !p.CurrentPrice.Valid || !p.CurrentPrice.Decimal.IsPositive() || p.PriceUpdatedAt == nil {
		return true
	}
	return now.Sub(*p.PriceUpdatedAt) > e.cfg.PriceStaleness
}

// earningsSoon is true when earnings fall within the horizon. With EarningsEmergencyPersists,
// an episode that began before a past earnings date keeps the flag until it is resolved.
func (e *riskEvaluator) earningsSoon(p entity.PositionRisk, now time.Time) bool {
	if p.NextEarningsDate == nil {
		return false
	}
	earnings := *p.NextEarningsDate
	today := utils.StartOfDay(now.In(earnings.Location()))

	if !earnings.Before(today) {
		return earnings.Before(now.Add(e.cfg.EarningsHorizon))
	}
	if e.cfg.EarningsEmergencyPersists && p.EpisodeStartedAt != nil {
		return !p.EpisodeStartedAt.After(earnings.Add(24 * time.Hour))
	}
	return false
}

// DrawdownPct is the percentage loss from entry, positive when the position is losing.
// Longs lose as price falls and shorts lose as it rises.
func DrawdownPct(side entity.PositionSide, entry, current decimal.Decimal) float64 {
	if !entry.IsPositive() {
		return 0
	}
	diff := entry.Sub(current)
	if side == entity.SideShort {
		diff = current.Sub(entry)
	}
	return diff.Div(entry).Mul(hundred).Round(4).InexactFloat64()
}

func stopBreached(p entity.PositionRisk, current decimal.Decimal) bool {
	stop := p.StopLossPrice.Decimal
	if p.IsShort() {
		return current.GreaterThanOrEqual(stop)
	}
	return current.LessThanOrEqual(stop)
}
