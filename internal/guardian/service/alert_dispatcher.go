package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"gorm.io/datatypes"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/internal/guardian/repository"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/metrics"
	"stop-loss-guardian/pkg/utils"
)

// AlertDispatcher delivers one alert and reports the state to persist.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, position entity.PositionRisk, assessment dto.RiskAssessment, decision dto.EscalationDecision) dto.DeliveryResult
}

// Channel binds a sender to its recipient.
type Channel struct {
	Sender    repository.NotificationRepository
	Recipient string
}

// ladderChannels are the rungs a position climbs, in order. None may be skipped.
var ladderChannels = []entity.AlertChannel{entity.ChannelTelegram, entity.ChannelSMS, entity.ChannelPhoneCall}

// ValidateChannels reports every ladder rung that has no sender, or no recipient for the
// Twilio rungs.
func ValidateChannels(channels []Channel) error {
	configured := make(map[entity.AlertChannel]Channel, len(channels))
	for _, c := range channels {
		configured[c.Sender.Channel()] = c
	}

	var missing []string
	for _, ch := range ladderChannels {
		c, ok := configured[ch]
		switch {
		case !ok:
			missing = append(missing, string(ch))
		case ch != entity.ChannelTelegram && c.Recipient == "":
			missing = append(missing, string(ch)+" recipient")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("escalation ladder is incomplete, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type alertDispatcher struct {
	cfg      config.Guardian
	log      *logger.Logger
	clock    clock.Clock
	channels map[entity.AlertChannel]Channel
	sizer    PositionSizer
	recorder *metrics.Recorder
}

func NewAlertDispatcher(
	cfg config.Guardian,
	log *logger.Logger,
	clk clock.Clock,
	channels []Channel,
	sizer PositionSizer,
	recorder *metrics.Recorder,
) AlertDispatcher {
	byChannel := make(map[entity.AlertChannel]Channel, len(channels))
	for _, c := range channels {
		byChannel[c.Sender.Channel()] = c
	}
	return &alertDispatcher{
		cfg:      cfg,
		log:      log,
		clock:    clk,
		channels: byChannel,
		sizer:    sizer,
		recorder: recorder,
	}
}

func (d *alertDispatcher) Dispatch(ctx context.Context, position entity.PositionRisk, assessment dto.RiskAssessment, decision dto.EscalationDecision) dto.DeliveryResult {
	msg := buildAlertMessage(position, assessment, decision, d.sizer)
	text := msg.Headline + ". " + msg.SuggestedAction

	alert := &entity.UrgentAlert{
		PositionRiskID:  position.ID,
		Symbol:          position.Symbol,
		PositionID:      position.PositionID,
		AlertType:       assessment.AlertType,
		Severity:        assessment.Severity.AlertLabel(),
		EscalationLevel: int(decision.NewLevel),
		Message:         text,
		Details:         alertDetails(msg, decision),
		Channel:         decision.Channel,
	}

	ref, attempts, err := d.send(ctx, decision.Channel, msg)
	now := d.clock.Now()
	alert.Attempts = attempts
	alert.CreatedAt = now

	log := d.log.With(
		logger.StringField("symbol", position.Symbol),
		logger.Field("position_id", position.PositionID),
		logger.Field("position_risk_id", position.ID),
		logger.StringField("channel", string(decision.Channel)),
		logger.StringField("level", decision.NewLevel.String()),
		logger.IntField("attempts", attempts),
	)

	// a failed attempt still leaves an alert row the operator can acknowledge
	attempted := position
	attempted.EpisodeSeverity = max(position.EpisodeSeverity, assessment.Severity)

	if err != nil {
		alert.DeliveryStatus = entity.DeliveryFailed
		alert.ErrorMessage = utils.ToPointer(err.Error())
		d.recordDispatch(decision.Channel, entity.DeliveryFailed)
		log.Error("Alert delivery failed", logger.ErrorField(err))
		return dto.DeliveryResult{
			Delivered: false,
			Attempts:  attempts,
			Position:  attempted,
			Alert:     alert,
			Err:       fmt.Errorf("%w: %s via %s: %v", ErrDeliveryFailure, position.Symbol, decision.Channel, err),
		}
	}

	if ref != "" {
		alert.ProviderRef = utils.ToPointer(ref)
	}
	alert.DeliveryStatus = entity.DeliveryDelivered
	alert.DeliveredAt = &now
	d.recordDispatch(decision.Channel, entity.DeliveryDelivered)

	updated := attempted
	updated.AlertCount++
	updated.LastAlertSent = &now
	updated.EscalationLevel = decision.NewLevel
	if !assessment.HasStop {
		updated.MissingStopAlertSent = true
	}
	if updated.EpisodeStartedAt == nil {
		updated.EpisodeStartedAt = &now
	}

	log.Info("Alert delivered", logger.StringField("severity", assessment.Severity.String()))
	return dto.DeliveryResult{
		Delivered: true,
		Attempts:  attempts,
		Position:  updated,
		Alert:     alert,
	}
}

// send retries with exponential backoff. Each attempt is bounded by DeliveryTimeout, and a
// sender that ignores its context is abandoned when the timeout fires.
func (d *alertDispatcher) send(ctx context.Context, channel entity.AlertChannel, msg dto.AlertMessage) (string, int, error) {
	target, ok := d.channels[channel]
	if !ok {
		return "", 0, fmt.Errorf("no sender configured for channel %q", channel)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.cfg.DeliveryInitialBackoff
	expo.MaxInterval = d.cfg.DeliveryMaxBackoff
	expo.MaxElapsedTime = 0
	expo.Reset()

	maxRetries := d.cfg.DeliveryMaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxRetries)), ctx)

	var (
		ref      string
		attempts int
	)
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		defer cancel()

		r, err := utils.RunWithContext(attemptCtx, func() (string, error) {
			return target.Sender.Send(attemptCtx, msg, target.Recipient)
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("attempt timed out after %s", d.cfg.DeliveryTimeout)
			}
			return err
		}
		ref = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		d.log.Warn("Alert delivery attempt failed, retrying",
			logger.StringField("symbol", msg.Symbol),
			logger.StringField("channel", string(channel)),
			logger.IntField("attempt", attempts),
			logger.DurationField("retry_in", wait),
			logger.ErrorField(err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", attempts, err
	}
	return ref, attempts, nil
}

func (d *alertDispatcher) recordDispatch(channel entity.AlertChannel, status entity.DeliveryStatus) {
	if d.recorder != nil {
		d.recorder.RecordDispatch(string(channel), string(status))
	}
}

func alertDetails(msg dto.AlertMessage, decision dto.EscalationDecision) datatypes.JSON {
	raw, err := json.Marshal(map[string]interface{}{
		"message":  msg,
		"decision": decision,
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
