package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stop-loss-guardian/pkg/utils"
)

// Notifier defines the interface for a Telegram notifier.
type Notifier interface {
	// SendMessage sends a message to the configured operator chat.
	SendMessage(text string) error
	// SendMessageToChat sends a message to chatID and returns the Telegram message id.
	SendMessageToChat(ctx context.Context, chatID int64, text string) (int, error)
}

// client is an implementation of Notifier.
type client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewClient creates a new Telegram notifier client.
func NewClient(botToken string, chatID int64) (Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &client{
		bot:    bot,
		chatID: chatID,
	}, nil
}

// SendMessage sends a message to the configured Telegram chat.
func (c *client) SendMessage(text string) error {
	_, err := c.send(c.chatID, text)
	return err
}

// SendMessageToChat sends a message and gives up waiting once ctx is done.
func (c *client) SendMessageToChat(ctx context.Context, chatID int64, text string) (int, error) {
	if chatID == 0 {
		chatID = c.chatID
	}
	return utils.RunWithContext(ctx, func() (int, error) {
		return c.send(chatID, text)
	})
}

func (c *client) send(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}
