package service

import (
	"fmt"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
)

func buildAlertMessage(p entity.PositionRisk, a dto.RiskAssessment, d dto.EscalationDecision, sizer PositionSizer) dto.AlertMessage {
	m := dto.AlertMessage{
		Symbol:       p.Symbol,
		PositionID:   p.PositionID,
		Side:         sideOrLong(p.Side),
		AlertType:    a.AlertType,
		Severity:     a.Severity,
		Level:        d.NewLevel,
		EntryPrice:   p.EntryPrice,
		Quantity:     p.Quantity,
		EarningsDate: p.NextEarningsDate,
	}

	// stale prices are left out so nobody acts on them
	if !a.PriceStale {
		price := p.CurrentPrice.Decimal
		drawdown := a.DrawdownPct
		m.CurrentPrice = &price
		m.DrawdownPct = &drawdown
	}
	if a.HasStop {
		stop := p.StopLossPrice.Decimal
		m.StopLossPrice = &stop
	} else if sizer != nil {
		suggested := sizer.SuggestStopLoss(m.Side, p.EntryPrice, nil)
		if suggested.IsPositive() {
			m.SuggestedStop = &suggested
		}
	}

	switch a.AlertType {
	case entity.AlertTypeDrawdownEmergency:
		m.Headline = fmt.Sprintf("No stop loss and down %.1f%%", a.DrawdownPct)
		m.SuggestedAction = "Cut or protect this position now."
	case entity.AlertTypeEarningsUnprotected:
		m.Headline = "Earnings ahead with no stop loss"
		m.SuggestedAction = "Set a stop loss before earnings."
	case entity.AlertTypeStopLossBreached:
		m.Headline = "Price is through the stop loss but the position is still open"
		m.SuggestedAction = "Check the stop order with your broker and exit manually if needed."
	default:
		m.Headline = "Position has no stop loss"
		m.SuggestedAction = "Set a stop loss now."
	}
	if a.PriceStale {
		m.Headline += " (price data stale)"
	}
	if d.Rearm {
		m.Headline += ". Risk worsened since acknowledgment"
	}
	return m
}

func sideOrLong(s entity.PositionSide) entity.PositionSide {
	if s == "" {
		return entity.SideLong
	}
	return s
}
