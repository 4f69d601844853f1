package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
)

var policyNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func critical() dto.RiskAssessment {
	return dto.RiskAssessment{Severity: entity.SeverityCritical, AlertType: entity.AlertTypeMissingStopLoss, DrawdownPct: 15}
}

func emergency() dto.RiskAssessment {
	return dto.RiskAssessment{Severity: entity.SeverityEmergency, AlertType: entity.AlertTypeDrawdownEmergency, DrawdownPct: 25}
}

func alertedAt(level entity.EscalationLevel, ago time.Duration) entity.PositionRisk {
	sent := policyNow.Add(-ago)
	return entity.PositionRisk{
		EscalationLevel:      level,
		LastAlertSent:        &sent,
		EpisodeStartedAt:     &sent,
		MissingStopAlertSent: true,
		AlertCount:           int(level),
		CurrentSeverity:      entity.SeverityCritical,
	}
}

func TestEscalationPolicy_FirstAlert(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	got := p.Decide(critical(), entity.PositionRisk{}, policyNow)
	assert.True(t, got.ShouldDispatch)
	assert.Equal(t, dto.ActionDispatch, got.Action)
	assert.Equal(t, entity.EscalationTelegram, got.NewLevel)
	assert.Equal(t, entity.ChannelTelegram, got.Channel)

	got = p.Decide(emergency(), entity.PositionRisk{}, policyNow)
	assert.True(t, got.ShouldDispatch)
	assert.Equal(t, entity.EscalationSMS, got.NewLevel)
	assert.Equal(t, entity.ChannelSMS, got.Channel)
}

func TestEscalationPolicy_BelowCriticalNeverDispatches(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	for _, sev := range []entity.Severity{entity.SeverityNone, entity.SeverityWarning} {
		got := p.Decide(dto.RiskAssessment{Severity: sev, HasStop: true}, entity.PositionRisk{}, policyNow)
		assert.False(t, got.ShouldDispatch)
		assert.Equal(t, dto.ActionNone, got.Action)
		assert.Equal(t, entity.EscalationNone, got.NewLevel)
	}
}

func TestEscalationPolicy_CooldownHoldsTelegram(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	for _, ago := range []time.Duration{0, time.Minute, 4*time.Minute + 59*time.Second, 5 * time.Minute} {
		got := p.Decide(critical(), alertedAt(entity.EscalationTelegram, ago), policyNow)
		assert.False(t, got.ShouldDispatch, "ago=%s", ago)
		assert.Equal(t, entity.EscalationTelegram, got.NewLevel, "ago=%s", ago)
	}
}

func TestEscalationPolicy_PromotesExactlyOneLevel(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	tests := []struct {
		name string
		from entity.EscalationLevel
		ago  time.Duration
		sev  dto.RiskAssessment
		want entity.EscalationLevel
	}{
		{"telegram to sms", entity.EscalationTelegram, 6 * time.Minute, critical(), entity.EscalationSMS},
		{"telegram to sms long after", entity.EscalationTelegram, 3 * time.Hour, critical(), entity.EscalationSMS},
		{"telegram to sms on emergency", entity.EscalationTelegram, 6 * time.Minute, emergency(), entity.EscalationSMS},
		{"sms to phone", entity.EscalationSMS, 16 * time.Minute, critical(), entity.EscalationPhoneCall},
		{"phone repeats at top", entity.EscalationPhoneCall, 31 * time.Minute, critical(), entity.EscalationPhoneCall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Decide(tt.sev, alertedAt(tt.from, tt.ago), policyNow)
			assert.True(t, got.ShouldDispatch)
			assert.Equal(t, tt.want, got.NewLevel)
			assert.Equal(t, tt.want.Channel(), got.Channel)
		})
	}
}

func TestEscalationPolicy_HoldsInsideLevelCooldowns(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	got := p.Decide(critical(), alertedAt(entity.EscalationSMS, 10*time.Minute), policyNow)
	assert.False(t, got.ShouldDispatch)
	assert.Equal(t, entity.EscalationSMS, got.NewLevel)

	got = p.Decide(critical(), alertedAt(entity.EscalationPhoneCall, 20*time.Minute), policyNow)
	assert.False(t, got.ShouldDispatch)
	assert.Equal(t, entity.EscalationPhoneCall, got.NewLevel)
}

func TestEscalationPolicy_MonotonicWhileUnacknowledged(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	levels := []entity.EscalationLevel{entity.EscalationNone, entity.EscalationTelegram, entity.EscalationSMS, entity.EscalationPhoneCall}
	assessments := []dto.RiskAssessment{
		{Severity: entity.SeverityNone, HasStop: true},
		{Severity: entity.SeverityWarning, HasStop: true, StopBreached: true},
		critical(),
		emergency(),
	}
	elapsed := []time.Duration{0, time.Minute, 10 * time.Minute, time.Hour, 24 * time.Hour}

	for _, level := range levels {
		for _, a := range assessments {
			for _, ago := range elapsed {
				state := alertedAt(level, ago)
				// a breach episode: the stop predates the episode, so nothing resolves it
				state.MissingStopAlertSent = false
				got := p.Decide(a, state, policyNow)
				assert.GreaterOrEqual(t, got.NewLevel, level, "level=%s sev=%s ago=%s", level, a.Severity, ago)
				if got.ShouldDispatch {
					assert.LessOrEqual(t, int(got.NewLevel)-int(level), 1+boolInt(level == entity.EscalationNone), "skipped a level")
				}
			}
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestEscalationPolicy_AcknowledgedSuppresses(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	state := alertedAt(entity.EscalationSMS, time.Hour)
	state.Acknowledged = true
	state.AcknowledgedAt = &policyNow
	state.AcknowledgedSeverity = entity.SeverityCritical

	got := p.Decide(critical(), state, policyNow.Add(6*time.Hour))
	assert.False(t, got.ShouldDispatch)
	assert.Equal(t, dto.ActionSuppressed, got.Action)
	assert.Equal(t, entity.EscalationSMS, got.NewLevel)
}

func TestEscalationPolicy_RearmsWhenStrictlyWorse(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	state := alertedAt(entity.EscalationPhoneCall, time.Hour)
	state.Acknowledged = true
	state.AcknowledgedAt = &policyNow
	state.AcknowledgedSeverity = entity.SeverityCritical
	state.EpisodeSeverity = entity.SeverityCritical

	got := p.Decide(emergency(), state, policyNow)
	assert.True(t, got.ShouldDispatch)
	assert.True(t, got.Rearm)
	assert.Equal(t, entity.EscalationSMS, got.NewLevel)

	next := p.Apply(state, emergency(), got)
	assert.Equal(t, entity.EscalationNone, next.EscalationLevel)
	assert.False(t, next.Acknowledged)
	assert.False(t, next.MissingStopAlertSent)
	assert.Nil(t, next.EpisodeStartedAt)
	assert.Equal(t, entity.SeverityNone, next.EpisodeSeverity)
	assert.Equal(t, entity.SeverityEmergency, next.CurrentSeverity)
}

func TestEscalationPolicy_StopResolvesEpisode(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	state := alertedAt(entity.EscalationSMS, 2*time.Minute)
	state.EpisodeSeverity = entity.SeverityCritical
	a := dto.RiskAssessment{Severity: entity.SeverityWarning, HasStop: true, DrawdownPct: 15}

	got := p.Decide(a, state, policyNow)
	assert.Equal(t, dto.ActionResolve, got.Action)
	assert.False(t, got.ShouldDispatch)
	assert.Equal(t, entity.EscalationNone, got.NewLevel)

	next := p.Apply(state, a, got)
	assert.Equal(t, entity.EscalationNone, next.EscalationLevel)
	assert.False(t, next.MissingStopAlertSent)
	assert.Nil(t, next.EpisodeStartedAt)
	assert.Equal(t, entity.SeverityNone, next.EpisodeSeverity)
	assert.Equal(t, state.AlertCount, next.AlertCount)
}

func TestEscalationPolicy_BounceDoesNotDowngrade(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	state := alertedAt(entity.EscalationSMS, 20*time.Minute)
	state.MissingStopAlertSent = false
	setAt := policyNow.Add(-48 * time.Hour)
	state.StopLossSetAt = &setAt

	got := p.Decide(dto.RiskAssessment{Severity: entity.SeverityNone, HasStop: true}, state, policyNow)
	assert.Equal(t, dto.ActionNone, got.Action)
	assert.Equal(t, entity.EscalationSMS, got.NewLevel)

	// back through the stop: the ladder resumes where it was
	got = p.Decide(dto.RiskAssessment{Severity: entity.SeverityCritical, HasStop: true, StopBreached: true}, state, policyNow)
	assert.True(t, got.ShouldDispatch)
	assert.Equal(t, entity.EscalationPhoneCall, got.NewLevel)
}

func TestEscalationPolicy_Idempotent(t *testing.T) {
	p := NewEscalationPolicy(config.DefaultGuardian())

	states := []entity.PositionRisk{
		{},
		alertedAt(entity.EscalationTelegram, time.Minute),
		alertedAt(entity.EscalationTelegram, time.Hour),
	}
	for _, s := range states {
		first := p.Decide(critical(), s, policyNow)
		second := p.Decide(critical(), s, policyNow)
		assert.Equal(t, first, second)
	}
}

func TestEscalationPolicy_CustomCooldowns(t *testing.T) {
	cfg := config.DefaultGuardian()
	cfg.TelegramToSMSCooldown = time.Minute
	p := NewEscalationPolicy(cfg)

	got := p.Decide(critical(), alertedAt(entity.EscalationTelegram, 90*time.Second), policyNow)
	assert.True(t, got.ShouldDispatch)
	assert.Equal(t, entity.EscalationSMS, got.NewLevel)
}
