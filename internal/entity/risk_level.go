package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Severity classifies a position's current risk exposure. Values are ordered.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityEmergency
)

var severityNames = [...]string{"none", "warning", "critical", "emergency"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeverityEmergency {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// AlertLabel is the severity written to urgent_alerts, where "none" reads as "info".
func (s Severity) AlertLabel() string {
	if s == SeverityNone {
		return "info"
	}
	return s.String()
}

func ParseSeverity(v string) (Severity, error) {
	for i, name := range severityNames {
		if name == v {
			return Severity(i), nil
		}
	}
	if v == "info" || v == "" {
		return SeverityNone, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", v)
}

func (s Severity) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s *Severity) Scan(src interface{}) error {
	parsed, err := ParseSeverity(scanString(src))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseSeverity(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AlertChannel is an outbound notification channel.
type AlertChannel string

const (
	ChannelTelegram  AlertChannel = "telegram"
	ChannelSMS       AlertChannel = "sms"
	ChannelPhoneCall AlertChannel = "phone_call"
)

// EscalationLevel is the urgency rung of the alert ladder. Values are ordered and a
// position only ever moves one rung at a time.
type EscalationLevel int

const (
	EscalationNone EscalationLevel = iota
	EscalationTelegram
	EscalationSMS
	EscalationPhoneCall
)

var escalationNames = [...]string{"none", "telegram", "sms", "phone_call"}

func (l EscalationLevel) String() string {
	if l < EscalationNone || l > EscalationPhoneCall {
		return fmt.Sprintf("escalation(%d)", int(l))
	}
	return escalationNames[l]
}

// Next returns the following rung, staying at phone_call once reached.
func (l EscalationLevel) Next() EscalationLevel {
	if l >= EscalationPhoneCall {
		return EscalationPhoneCall
	}
	return l + 1
}

// Channel maps a rung to the channel that delivers it. EscalationNone has no channel.
func (l EscalationLevel) Channel() AlertChannel {
	switch l {
	case EscalationTelegram:
		return ChannelTelegram
	case EscalationSMS:
		return ChannelSMS
	case EscalationPhoneCall:
		return ChannelPhoneCall
	default:
		return ""
	}
}

func ParseEscalationLevel(v string) (EscalationLevel, error) {
	if v == "" {
		return EscalationNone, nil
	}
	for i, name := range escalationNames {
		if name == v {
			return EscalationLevel(i), nil
		}
	}
	return EscalationNone, fmt.Errorf("unknown escalation level %q", v)
}

func (l EscalationLevel) Value() (driver.Value, error) {
	return l.String(), nil
}

func (l *EscalationLevel) Scan(src interface{}) error {
	parsed, err := ParseEscalationLevel(scanString(src))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l EscalationLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *EscalationLevel) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseEscalationLevel(v)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func scanString(src interface{}) string {
	switch v := src.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
