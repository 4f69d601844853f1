package repository

import (
	"fmt"
	"strings"

	"stop-loss-guardian/internal/guardian/dto"
)

// FormatAlertSMS renders an alert as plain text for SMS.
func FormatAlertSMS(m dto.AlertMessage) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s: %s\n", strings.ToUpper(m.Severity.String()), m.Symbol, m.Headline))
	sb.WriteString(fmt.Sprintf("Entry $%s", m.EntryPrice.StringFixed(2)))
	if m.CurrentPrice != nil {
		sb.WriteString(fmt.Sprintf(", now $%s", m.CurrentPrice.StringFixed(2)))
	}
	if m.DrawdownPct != nil {
		sb.WriteString(fmt.Sprintf(" (%.1f%% down)", *m.DrawdownPct))
	}
	sb.WriteString("\n")
	if m.SuggestedStop != nil {
		sb.WriteString(fmt.Sprintf("Suggested stop $%s\n", m.SuggestedStop.StringFixed(2)))
	}
	sb.WriteString(m.SuggestedAction)
	return sb.String()
}

// FormatAlertSpoken renders a short sentence for a voice call.
func FormatAlertSpoken(m dto.AlertMessage) string {
	msg := fmt.Sprintf("%s. %s", spellSymbol(m.Symbol), m.Headline)
	if m.DrawdownPct != nil {
		msg += fmt.Sprintf(" Down %.0f percent.", *m.DrawdownPct)
	}
	return msg + " " + m.SuggestedAction
}

// spellSymbol spaces out ticker letters so text-to-speech reads them individually.
func spellSymbol(symbol string) string {
	return strings.Join(strings.Split(symbol, ""), " ")
}
