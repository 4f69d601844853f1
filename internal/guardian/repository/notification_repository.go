package repository

import (
	"context"
	"fmt"
	"strconv"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/telegram"
	"stop-loss-guardian/pkg/twilio"
)

// NotificationRepository delivers an alert over one channel and returns the provider reference.
type NotificationRepository interface {
	Channel() entity.AlertChannel
	Send(ctx context.Context, message dto.AlertMessage, recipient string) (string, error)
}

type telegramNotificationRepository struct {
	notifier telegram.Notifier
}

func NewTelegramNotificationRepository(notifier telegram.Notifier) NotificationRepository {
	return &telegramNotificationRepository{notifier: notifier}
}

func (r *telegramNotificationRepository) Channel() entity.AlertChannel {
	return entity.ChannelTelegram
}

// Send posts to recipient, a chat id. An empty recipient uses the notifier's default chat.
func (r *telegramNotificationRepository) Send(ctx context.Context, message dto.AlertMessage, recipient string) (string, error) {
	var chatID int64
	if recipient != "" {
		id, err := strconv.ParseInt(recipient, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid telegram chat id %q: %w", recipient, err)
		}
		chatID = id
	}

	msgID, err := r.notifier.SendMessageToChat(ctx, chatID, telegram.FormatRiskAlertForTelegram(message))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msgID), nil
}

type smsNotificationRepository struct {
	client twilio.Client
}

func NewSMSNotificationRepository(client twilio.Client) NotificationRepository {
	return &smsNotificationRepository{client: client}
}

func (r *smsNotificationRepository) Channel() entity.AlertChannel {
	return entity.ChannelSMS
}

func (r *smsNotificationRepository) Send(ctx context.Context, message dto.AlertMessage, recipient string) (string, error) {
	return r.client.SendSMS(ctx, recipient, FormatAlertSMS(message))
}

type voiceNotificationRepository struct {
	client twilio.Client
	log    *logger.Logger
}

func NewVoiceNotificationRepository(client twilio.Client, log *logger.Logger) NotificationRepository {
	return &voiceNotificationRepository{client: client, log: log}
}

func (r *voiceNotificationRepository) Channel() entity.AlertChannel {
	return entity.ChannelPhoneCall
}

// Send places the call, then sends the full text as an SMS backup. Only the call decides success.
func (r *voiceNotificationRepository) Send(ctx context.Context, message dto.AlertMessage, recipient string) (string, error) {
	sid, err := r.client.MakeCall(ctx, recipient, FormatAlertSpoken(message))
	if err != nil {
		return "", err
	}

	if _, err := r.client.SendSMS(ctx, recipient, FormatAlertSMS(message)); err != nil {
		r.log.Warn("Backup SMS after phone call failed",
			logger.StringField("symbol", message.Symbol),
			logger.ErrorField(err),
		)
	}
	return sid, nil
}
