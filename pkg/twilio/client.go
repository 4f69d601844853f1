package twilio

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"stop-loss-guardian/pkg/utils"
)

const (
	// MaxSMSLength keeps a message inside Twilio's concatenated-SMS limit.
	MaxSMSLength = 1500
	// MaxSpokenLength caps the text read out on a voice call.
	MaxSpokenLength = 200
)

var ErrNotConfigured = errors.New("twilio is not configured")

// Config holds Twilio credentials.
type Config struct {
	AccountSID          string
	AuthToken           string
	FromNumber          string
	MaxRequestPerMinute int
}

// Client sends text messages and places voice calls.
type Client interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
	MakeCall(ctx context.Context, to, message string) (string, error)
}

type client struct {
	rest    *twilio.RestClient
	from    string
	limiter *rate.Limiter
}

// NewClient creates a Twilio client. Requests are throttled to MaxRequestPerMinute.
func NewClient(cfg Config) (Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, ErrNotConfigured
	}
	perMinute := cfg.MaxRequestPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &client{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		from:    cfg.FromNumber,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}, nil
}

func (c *client) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(TruncateSMS(body))

	return utils.RunWithContext(ctx, func() (string, error) {
		resp, err := c.rest.Api.CreateMessage(params)
		if err != nil {
			return "", fmt.Errorf("twilio create message: %w", err)
		}
		if resp.Sid == nil {
			return "", nil
		}
		return *resp.Sid, nil
	})
}

func (c *client) MakeCall(ctx context.Context, to, message string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetTwiml(BuildTwiML(message))

	return utils.RunWithContext(ctx, func() (string, error) {
		resp, err := c.rest.Api.CreateCall(params)
		if err != nil {
			return "", fmt.Errorf("twilio create call: %w", err)
		}
		if resp.Sid == nil {
			return "", nil
		}
		return *resp.Sid, nil
	})
}

// TruncateSMS shortens body to MaxSMSLength, marking the cut.
func TruncateSMS(body string) string {
	return truncate(body, MaxSMSLength)
}

// BuildTwiML renders the spoken alert. The message is read twice.
func BuildTwiML(message string) string {
	spoken := html.EscapeString(truncate(message, MaxSpokenLength))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response>`)
	b.WriteString(`<Say voice="alice">Urgent trading alert. ` + spoken + `</Say>`)
	b.WriteString(`<Pause length="1"/>`)
	b.WriteString(`<Say voice="alice">Repeating. ` + spoken + `</Say>`)
	b.WriteString(`</Response>`)
	return b.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
