package service

import (
	"time"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
)

// EscalationPolicy is the per-position alert ladder. Both methods are pure.
type EscalationPolicy interface {
	Decide(assessment dto.RiskAssessment, state entity.PositionRisk, now time.Time) dto.EscalationDecision
	// Apply returns state with the decision's non-delivery transitions applied. Delivery
	// bookkeeping is added by the dispatcher only once an alert actually went out.
	Apply(state entity.PositionRisk, assessment dto.RiskAssessment, decision dto.EscalationDecision) entity.PositionRisk
}

type escalationPolicy struct {
	cfg config.Guardian
}

func NewEscalationPolicy(cfg config.Guardian) EscalationPolicy {
	return &escalationPolicy{cfg: cfg}
}

func (p *escalationPolicy) Decide(a dto.RiskAssessment, state entity.PositionRisk, now time.Time) dto.EscalationDecision {
	hold := dto.EscalationDecision{Action: dto.ActionNone, NewLevel: state.EscalationLevel}

	if a.Severity < entity.SeverityCritical {
		if p.stopResolvesEpisode(a, state) {
			return dto.EscalationDecision{
				Action:   dto.ActionResolve,
				NewLevel: entity.EscalationNone,
				Reason:   "stop loss configured",
			}
		}
		if state.Acknowledged {
			hold.Action = dto.ActionSuppressed
			hold.Reason = "acknowledged"
			return hold
		}
		// a bounce does not downgrade an open episode
		hold.Reason = "below critical"
		return hold
	}

	if state.Acknowledged {
		if a.Severity <= state.AcknowledgedSeverity {
			hold.Action = dto.ActionSuppressed
			hold.Reason = "acknowledged"
			return hold
		}
		d := p.firstAlert(a)
		d.Rearm = true
		d.Reason = "worse than acknowledged " + state.AcknowledgedSeverity.String()
		return d
	}

	if state.EscalationLevel == entity.EscalationNone {
		return p.firstAlert(a)
	}

	if state.LastAlertSent != nil && now.Sub(*state.LastAlertSent) <= p.cooldown(state.EscalationLevel) {
		hold.Reason = "cooldown"
		return hold
	}

	next := state.EscalationLevel.Next()
	reason := "promoted"
	if next == state.EscalationLevel {
		reason = "repeat at top level"
	}
	return dto.EscalationDecision{
		Action:         dto.ActionDispatch,
		ShouldDispatch: true,
		NewLevel:       next,
		Channel:        next.Channel(),
		Reason:         reason,
	}
}

func (p *escalationPolicy) Apply(state entity.PositionRisk, a dto.RiskAssessment, d dto.EscalationDecision) entity.PositionRisk {
	next := state
	next.CurrentSeverity = a.Severity

	if d.Action == dto.ActionResolve || d.Rearm {
		next.EscalationLevel = entity.EscalationNone
		next.MissingStopAlertSent = false
		next.EpisodeStartedAt = nil
		next.EpisodeSeverity = entity.SeverityNone
		next.Acknowledged = false
		next.AcknowledgedSeverity = entity.SeverityNone
	}
	return next
}

// stopResolvesEpisode is true when a stop now exists for an episode that was raised without
// one, or the stop was configured after the episode began.
func (p *escalationPolicy) stopResolvesEpisode(a dto.RiskAssessment, state entity.PositionRisk) bool {
	if !a.HasStop {
		return false
	}
	if state.MissingStopAlertSent {
		return true
	}
	return state.EpisodeStartedAt != nil && state.StopLossSetAt != nil && state.StopLossSetAt.After(*state.EpisodeStartedAt)
}

func (p *escalationPolicy) firstAlert(a dto.RiskAssessment) dto.EscalationDecision {
	level := entity.EscalationTelegram
	if a.Severity >= entity.SeverityEmergency {
		level = entity.EscalationSMS
	}
	return dto.EscalationDecision{
		Action:         dto.ActionDispatch,
		ShouldDispatch: true,
		NewLevel:       level,
		Channel:        level.Channel(),
		Reason:         "first alert",
	}
}

// cooldown is how long a level must hold before the next dispatch.
func (p *escalationPolicy) cooldown(level entity.EscalationLevel) time.Duration {
	switch level {
	case entity.EscalationTelegram:
		return p.cfg.TelegramToSMSCooldown
	case entity.EscalationSMS:
		return p.cfg.SMSToPhoneCooldown
	default:
		return p.cfg.PhoneCallRepeatInterval
	}
}
