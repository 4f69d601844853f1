package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
)

// PositionSizer sizes new trades so no single trade risks more than the configured share of
// the account, and suggests stops for unprotected positions.
type PositionSizer interface {
	Calculate(symbol string, entry, stop decimal.Decimal, account decimal.Decimal, target *decimal.Decimal) dto.PositionSizeResult
	SuggestStopLoss(side entity.PositionSide, entry decimal.Decimal, atr *decimal.Decimal) decimal.Decimal
}

type positionSizer struct {
	maxRiskPct      decimal.Decimal
	maxPositionPct  decimal.Decimal
	defaultStopPct  decimal.Decimal
	atrMultiplier   decimal.Decimal
	tightStopPct    float64
	wideStopPct     float64
	minRewardToRisk float64
}

func NewPositionSizer(cfg config.Guardian) PositionSizer {
	return &positionSizer{
		maxRiskPct:      decimal.NewFromFloat(cfg.MaxRiskPerTradePct),
		maxPositionPct:  decimal.NewFromFloat(cfg.MaxPositionPct),
		defaultStopPct:  decimal.NewFromFloat(cfg.DefaultStopLossPct),
		atrMultiplier:   decimal.NewFromFloat(cfg.ATRMultiplier),
		tightStopPct:    3,
		wideStopPct:     15,
		minRewardToRisk: 2,
	}
}

func (s *positionSizer) Calculate(symbol string, entry, stop decimal.Decimal, account decimal.Decimal, target *decimal.Decimal) dto.PositionSizeResult {
	result := dto.PositionSizeResult{
		Symbol:       symbol,
		EntryPrice:   entry,
		StopPrice:    stop,
		TargetPrice:  target,
		AccountValue: account,
		Warnings:     []string{},
	}

	switch {
	case !entry.IsPositive():
		result.BlockedReason = "Entry price must be positive"
		return result
	case !stop.IsPositive():
		result.BlockedReason = "Stop price must be positive"
		return result
	case stop.GreaterThanOrEqual(entry):
		result.BlockedReason = "Stop price must be below entry price for long positions"
		return result
	case !account.IsPositive():
		result.BlockedReason = "Account value must be positive"
		return result
	}

	riskPerShare := entry.Sub(stop)
	result.RiskPerShare = riskPerShare
	result.StopDistancePct = riskPerShare.Div(entry).Mul(hundred).Round(2).InexactFloat64()

	maxDollarRisk := account.Mul(s.maxRiskPct).Div(hundred)
	maxPositionValue := account.Mul(s.maxPositionPct).Div(hundred)

	sharesByRisk := maxDollarRisk.Div(riskPerShare).Floor().IntPart()
	sharesByPosition := maxPositionValue.Div(entry).Floor().IntPart()
	result.MaxShares = min(sharesByRisk, sharesByPosition)

	result.IsValid = true
	if result.MaxShares > 0 {
		shares := decimal.NewFromInt(result.MaxShares)
		result.PositionValue = shares.Mul(entry)
		result.TotalRisk = shares.Mul(riskPerShare)
		result.RiskPct = result.TotalRisk.Div(account).Mul(hundred).Round(2).InexactFloat64()
		result.PositionPct = result.PositionValue.Div(account).Mul(hundred).Round(2).InexactFloat64()
	}

	if result.MaxShares == 0 {
		result.IsValid = false
		result.BlockedReason = fmt.Sprintf("Stock too expensive for account size at entry $%s", entry.StringFixed(2))
	} else if result.MaxShares < 2 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Can only buy %d share(s), limited diversification", result.MaxShares))
	}

	if result.StopDistancePct < s.tightStopPct {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Very tight stop (%.1f%%), may get stopped out by noise", result.StopDistancePct))
	} else if result.StopDistancePct > s.wideStopPct {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Wide stop (%.1f%%), consider tighter risk management", result.StopDistancePct))
	}

	if target != nil && target.GreaterThan(entry) {
		rr := target.Sub(entry).Div(riskPerShare).Round(2).InexactFloat64()
		result.RiskRewardRatio = &rr
		if rr < s.minRewardToRisk {
			result.Warnings = append(result.Warnings, fmt.Sprintf("R:R ratio %.1f:1 is below recommended %.0f:1", rr, s.minRewardToRisk))
		}
	}

	return result
}

// SuggestStopLoss offsets entry by ATR times the multiplier when atr is known, otherwise by
// the default percentage. Shorts get the stop above entry.
func (s *positionSizer) SuggestStopLoss(side entity.PositionSide, entry decimal.Decimal, atr *decimal.Decimal) decimal.Decimal {
	offset := entry.Mul(s.defaultStopPct).Div(hundred)
	if atr != nil && atr.IsPositive() {
		offset = atr.Mul(s.atrMultiplier)
	}

	if side == entity.SideShort {
		return entry.Add(offset).Round(2)
	}
	stop := entry.Sub(offset)
	if !stop.IsPositive() {
		return decimal.Zero
	}
	return stop.Round(2)
}
