package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/pkg/logger"
)

func dispatcherConfig() config.Guardian {
	cfg := config.DefaultGuardian()
	cfg.DeliveryInitialBackoff = time.Millisecond
	cfg.DeliveryMaxBackoff = 2 * time.Millisecond
	cfg.DeliveryTimeout = time.Second
	return cfg
}

func newTestDispatcher(cfg config.Guardian, clk clock.Clock, senders ...*scriptedSender) AlertDispatcher {
	channels := make([]Channel, 0, len(senders))
	for _, s := range senders {
		channels = append(channels, Channel{Sender: s, Recipient: "+15550100"})
	}
	return NewAlertDispatcher(cfg, logger.NewNop(), clk, channels, NewPositionSizer(cfg), nil)
}

func firstTelegramDecision() dto.EscalationDecision {
	return dto.EscalationDecision{
		Action:         dto.ActionDispatch,
		ShouldDispatch: true,
		NewLevel:       entity.EscalationTelegram,
		Channel:        entity.ChannelTelegram,
	}
}

func TestAlertDispatcher_Delivered(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(evalNow)
	sender := &scriptedSender{channel: entity.ChannelTelegram}
	d := newTestDispatcher(dispatcherConfig(), clk, sender)

	position := riskAt(100, 85, nil)
	result := d.Dispatch(context.Background(), position, critical(), firstTelegramDecision())

	require.NoError(t, result.Err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, result.Attempts)

	assert.Equal(t, entity.EscalationTelegram, result.Position.EscalationLevel)
	assert.Equal(t, 1, result.Position.AlertCount)
	assert.True(t, result.Position.MissingStopAlertSent)
	require.NotNil(t, result.Position.LastAlertSent)
	assert.True(t, result.Position.LastAlertSent.Equal(evalNow))
	require.NotNil(t, result.Position.EpisodeStartedAt)
	assert.Equal(t, entity.SeverityCritical, result.Position.EpisodeSeverity)

	require.NotNil(t, result.Alert)
	assert.Equal(t, entity.DeliveryDelivered, result.Alert.DeliveryStatus)
	assert.Equal(t, entity.ChannelTelegram, result.Alert.Channel)
	assert.Equal(t, "critical", result.Alert.Severity)
	assert.Equal(t, int(entity.EscalationTelegram), result.Alert.EscalationLevel)
	assert.Equal(t, entity.AlertTypeMissingStopLoss, result.Alert.AlertType)
	require.NotNil(t, result.Alert.ProviderRef)
	assert.Equal(t, "ref-1", *result.Alert.ProviderRef)

	var details map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(result.Alert.Details, &details))
	assert.Contains(t, details, "message")
	assert.Contains(t, details, "decision")
}

func TestAlertDispatcher_KeepsEpisodeStart(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(evalNow)
	d := newTestDispatcher(dispatcherConfig(), clk, &scriptedSender{channel: entity.ChannelSMS})

	position := riskAt(100, 85, nil)
	started := evalNow.Add(-20 * time.Minute)
	position.EpisodeStartedAt = &started
	position.EscalationLevel = entity.EscalationTelegram
	position.AlertCount = 1

	decision := dto.EscalationDecision{Action: dto.ActionDispatch, ShouldDispatch: true, NewLevel: entity.EscalationSMS, Channel: entity.ChannelSMS}
	result := d.Dispatch(context.Background(), position, critical(), decision)

	require.True(t, result.Delivered)
	assert.Equal(t, 2, result.Position.AlertCount)
	assert.Equal(t, entity.EscalationSMS, result.Position.EscalationLevel)
	assert.True(t, result.Position.EpisodeStartedAt.Equal(started))
}

func TestAlertDispatcher_BreachLeavesMissingStopFlag(t *testing.T) {
	clk := clock.NewMock()
	d := newTestDispatcher(dispatcherConfig(), clk, &scriptedSender{channel: entity.ChannelTelegram})

	position := riskAt(100, 85, ptr(90.0))
	a := dto.RiskAssessment{Severity: entity.SeverityCritical, AlertType: entity.AlertTypeStopLossBreached, HasStop: true, StopBreached: true}
	result := d.Dispatch(context.Background(), position, a, firstTelegramDecision())

	require.True(t, result.Delivered)
	assert.False(t, result.Position.MissingStopAlertSent)
}

func TestAlertDispatcher_RetriesThenDelivers(t *testing.T) {
	sender := &scriptedSender{
		channel: entity.ChannelTelegram,
		errs:    []error{errors.New("502"), errors.New("502")},
	}
	d := newTestDispatcher(dispatcherConfig(), clock.NewMock(), sender)

	result := d.Dispatch(context.Background(), riskAt(100, 85, nil), critical(), firstTelegramDecision())

	require.NoError(t, result.Err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, sender.callCount())
	assert.Equal(t, 3, result.Alert.Attempts)
}

func TestAlertDispatcher_AllAttemptsFail(t *testing.T) {
	boom := errors.New("twilio: 503")
	sender := &scriptedSender{channel: entity.ChannelTelegram, errs: []error{boom, boom, boom, boom}}
	d := newTestDispatcher(dispatcherConfig(), clock.NewMock(), sender)

	position := riskAt(100, 85, nil)
	result := d.Dispatch(context.Background(), position, critical(), firstTelegramDecision())

	assert.False(t, result.Delivered)
	assert.True(t, errors.Is(result.Err, ErrDeliveryFailure))
	assert.Equal(t, 3, sender.callCount())

	// only the episode severity moves when nothing was delivered
	expected := position
	expected.EpisodeSeverity = entity.SeverityCritical
	assert.Equal(t, expected, result.Position)

	require.NotNil(t, result.Alert)
	assert.Equal(t, entity.DeliveryFailed, result.Alert.DeliveryStatus)
	require.NotNil(t, result.Alert.ErrorMessage)
	assert.Contains(t, *result.Alert.ErrorMessage, "503")
	assert.Nil(t, result.Alert.DeliveredAt)
}

func TestAlertDispatcher_StuckSenderTimesOut(t *testing.T) {
	cfg := dispatcherConfig()
	cfg.DeliveryTimeout = 20 * time.Millisecond
	cfg.DeliveryMaxAttempts = 2

	release := make(chan struct{})
	defer close(release)
	sender := &scriptedSender{channel: entity.ChannelTelegram, block: release}
	d := newTestDispatcher(cfg, clock.NewMock(), sender)

	start := time.Now()
	result := d.Dispatch(context.Background(), riskAt(100, 85, nil), critical(), firstTelegramDecision())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, result.Delivered)
	assert.True(t, errors.Is(result.Err, ErrDeliveryFailure))
	assert.Contains(t, result.Err.Error(), "timed out")
	assert.Equal(t, 2, result.Attempts)
}

func TestAlertDispatcher_MissingChannel(t *testing.T) {
	d := newTestDispatcher(dispatcherConfig(), clock.NewMock(), &scriptedSender{channel: entity.ChannelTelegram})

	decision := dto.EscalationDecision{Action: dto.ActionDispatch, ShouldDispatch: true, NewLevel: entity.EscalationPhoneCall, Channel: entity.ChannelPhoneCall}
	result := d.Dispatch(context.Background(), riskAt(100, 85, nil), critical(), decision)

	assert.False(t, result.Delivered)
	assert.True(t, errors.Is(result.Err, ErrDeliveryFailure))
	assert.Equal(t, 0, result.Attempts)
	assert.Equal(t, entity.DeliveryFailed, result.Alert.DeliveryStatus)
}

func TestBuildAlertMessage(t *testing.T) {
	sizer := NewPositionSizer(config.DefaultGuardian())

	m := buildAlertMessage(riskAt(100, 85, nil), critical(), firstTelegramDecision(), sizer)
	assert.Equal(t, "AAPL", m.Symbol)
	assert.Equal(t, entity.SideLong, m.Side)
	require.NotNil(t, m.CurrentPrice)
	assert.True(t, m.CurrentPrice.Equal(dec(85)))
	require.NotNil(t, m.SuggestedStop)
	assert.True(t, m.SuggestedStop.Equal(dec(90)))
	assert.Nil(t, m.StopLossPrice)
	assert.Equal(t, "Position has no stop loss", m.Headline)

	stale := critical()
	stale.PriceStale = true
	m = buildAlertMessage(riskAt(100, 85, nil), stale, firstTelegramDecision(), sizer)
	assert.Nil(t, m.CurrentPrice)
	assert.Nil(t, m.DrawdownPct)
	assert.Contains(t, m.Headline, "stale")

	rearm := firstTelegramDecision()
	rearm.Rearm = true
	m = buildAlertMessage(riskAt(100, 75, nil), emergency(), rearm, sizer)
	assert.Contains(t, m.Headline, "Risk worsened since acknowledgment")
}

func TestValidateChannels(t *testing.T) {
	telegram := Channel{Sender: &scriptedSender{channel: entity.ChannelTelegram}}
	sms := Channel{Sender: &scriptedSender{channel: entity.ChannelSMS}, Recipient: "+15550100"}
	call := Channel{Sender: &scriptedSender{channel: entity.ChannelPhoneCall}, Recipient: "+15550100"}

	tests := []struct {
		name     string
		channels []Channel
		missing  []string
	}{
		{"full ladder", []Channel{telegram, sms, call}, nil},
		{"twilio only", []Channel{sms, call}, []string{"telegram"}},
		{"telegram only", []Channel{telegram}, []string{"sms", "phone_call"}},
		{"no phone number", []Channel{telegram, {Sender: sms.Sender}, {Sender: call.Sender}}, []string{"sms recipient", "phone_call recipient"}},
		{"nothing", nil, []string{"telegram", "sms", "phone_call"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannels(tt.channels)
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, m := range tt.missing {
				assert.Contains(t, err.Error(), m)
			}
		})
	}
}

func TestAlertDispatcher_IncompleteLadderNeverEscalates(t *testing.T) {
	cfg := dispatcherConfig()
	sms := &scriptedSender{channel: entity.ChannelSMS}
	call := &scriptedSender{channel: entity.ChannelPhoneCall}
	d := newTestDispatcher(cfg, clock.NewMock(), sms, call)
	policy := NewEscalationPolicy(cfg)

	position := riskAt(100, 85, nil)
	for i := 0; i < 5; i++ {
		decision := policy.Decide(critical(), position, evalNow.Add(time.Duration(i)*time.Hour))
		result := d.Dispatch(context.Background(), position, critical(), decision)
		require.False(t, result.Delivered)
		position = result.Position
	}

	assert.Equal(t, entity.EscalationNone, position.EscalationLevel)
	assert.Zero(t, sms.callCount())
	assert.Zero(t, call.callCount())
	assert.Error(t, ValidateChannels([]Channel{{Sender: sms, Recipient: "+15550100"}, {Sender: call, Recipient: "+15550100"}}))
}
