package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
)

const maxMessageLen = 4090

func severityIcon(s entity.Severity) string {
	switch s {
	case entity.SeverityEmergency:
		return "🚨"
	case entity.SeverityCritical:
		return "🔴"
	case entity.SeverityWarning:
		return "🟡"
	default:
		return "ℹ️"
	}
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// FormatRiskAlertForTelegram formats an escalation alert as Markdown.
func FormatRiskAlertForTelegram(m dto.AlertMessage) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s *%s: %s*\n", severityIcon(m.Severity), strings.ToUpper(m.Severity.String()), escape(m.Symbol)))
	sb.WriteString(fmt.Sprintf("%s\n\n", escape(m.Headline)))

	sb.WriteString(fmt.Sprintf("📌 *Position:* %s %s @ $%s\n", m.Side, m.Quantity.String(), m.EntryPrice.StringFixed(2)))
	if m.CurrentPrice != nil {
		sb.WriteString(fmt.Sprintf("💵 *Current:* $%s\n", m.CurrentPrice.StringFixed(2)))
	} else {
		sb.WriteString("💵 *Current:* price unavailable\n")
	}
	if m.DrawdownPct != nil {
		sb.WriteString(fmt.Sprintf("📉 *Drawdown:* %.2f%%\n", *m.DrawdownPct))
	}
	if m.StopLossPrice != nil {
		sb.WriteString(fmt.Sprintf("🛑 *Stop:* $%s\n", m.StopLossPrice.StringFixed(2)))
	} else {
		sb.WriteString("🛑 *Stop:* NONE\n")
	}
	if m.EarningsDate != nil {
		sb.WriteString(fmt.Sprintf("📅 *Earnings:* %s\n", m.EarningsDate.Format("2006-01-02")))
	}
	if m.SuggestedStop != nil {
		sb.WriteString(fmt.Sprintf("💡 *Suggested stop:* $%s\n", m.SuggestedStop.StringFixed(2)))
	}

	sb.WriteString(fmt.Sprintf("\n👉 %s\n", escape(m.SuggestedAction)))
	sb.WriteString(fmt.Sprintf("_Escalation: %s_", escape(m.Level.String())))
	return sb.String()
}

// FormatStopLossConfirmationForTelegram confirms an operator stop-loss change.
func FormatStopLossConfirmationForTelegram(p entity.PositionRisk) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ *Stop loss set: %s*\n\n", escape(p.Symbol)))
	sb.WriteString(fmt.Sprintf("📌 *Entry:* $%s\n", p.EntryPrice.StringFixed(2)))
	if p.StopLossPrice.Valid {
		sb.WriteString(fmt.Sprintf("🛑 *Stop:* $%s", p.StopLossPrice.Decimal.StringFixed(2)))
		if p.StopLossPct.Valid {
			sb.WriteString(fmt.Sprintf(" (%s%%)", p.StopLossPct.Decimal.StringFixed(2)))
		}
		sb.WriteString("\n")
	}
	if p.StopLossType != nil {
		sb.WriteString(fmt.Sprintf("🔧 *Type:* %s\n", escape(string(*p.StopLossType))))
	}
	sb.WriteString("\nEscalation reset. You're protected.")
	return sb.String()
}

// FormatUnprotectedDigestForTelegram lists positions still at risk. Output is capped to one message.
func FormatUnprotectedDigestForTelegram(positions []entity.PositionRisk, at time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛡️ *Stop Loss Guardian digest* (%s)\n\n", at.Format("2006-01-02 15:04 MST")))

	if len(positions) == 0 {
		sb.WriteString("All open positions are protected.")
		return sb.String()
	}

	for i, p := range positions {
		var line strings.Builder
		line.WriteString(fmt.Sprintf("%s *%s* #%d, %s", severityIcon(p.CurrentSeverity), escape(p.Symbol), p.PositionID, p.CurrentSeverity))
		if p.CurrentDrawdownPct.Valid {
			line.WriteString(fmt.Sprintf(", drawdown %s%%", p.CurrentDrawdownPct.Decimal.StringFixed(2)))
		}
		if !p.HasStopLoss() {
			line.WriteString(", no stop")
		}
		if p.Acknowledged {
			line.WriteString(", acknowledged")
		}
		line.WriteString("\n")

		if sb.Len()+line.Len() > maxMessageLen-40 {
			sb.WriteString(fmt.Sprintf("...and %d more\n", len(positions)-i))
			break
		}
		sb.WriteString(line.String())
	}
	return sb.String()
}

// FormatDegradedServiceForTelegram reports that the monitor keeps failing.
func FormatDegradedServiceForTelegram(failures int, lastErr error) string {
	reason := "unknown error"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return fmt.Sprintf("⚠️ *Stop Loss Guardian degraded*\n\n%d consecutive monitor ticks failed.\nLast error: %s\n\nPositions are NOT being monitored until this recovers.",
		failures, escape(reason))
}
