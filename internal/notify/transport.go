package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cryptotrack-alerts/internal/telegram"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotConfigured is returned by a transport that lacks credentials for delivery.
	ErrNotConfigured = errors.New("notification transport not configured")
	// ErrInvalidAddress is returned when the address cannot be delivered to on any attempt.
	ErrInvalidAddress = errors.New("invalid notification address")
)

const resendBaseURL = "https://api.resend.com"

// Transport hands a rendered message to an outbound channel.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

// StatusError is a non-2xx answer from an HTTP transport.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying cannot help.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// ResendTransport sends email through the Resend HTTP API.
type ResendTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewResendTransport(baseURL, apiKey string, client *http.Client) *ResendTransport {
	if baseURL == "" {
		baseURL = resendBaseURL
	}
	return &ResendTransport{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (t *ResendTransport) Deliver(ctx context.Context, m Message) error {
	if t.apiKey == "" {
		return errors.Wrap(ErrNotConfigured, "resend api key is empty")
	}

	body, err := json.Marshal(resendRequest{
		From:    m.From,
		To:      []string{m.To},
		Subject: m.Subject,
		HTML:    m.HTML,
	})
	if err != nil {
		return errors.Wrap(err, "could not encode email")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "could not build email request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "could not reach resend")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	log.Debugf("📧 email sent to %s: %s", m.To, m.Subject)
	return nil
}

// MessageSender is implemented by telegram.Bot.
type MessageSender interface {
	SendMessage(m telegram.Message) error
}

// TelegramTransport delivers to "tg:<chat id>" addresses.
type TelegramTransport struct {
	sender MessageSender
}

func NewTelegramTransport(sender MessageSender) *TelegramTransport {
	return &TelegramTransport{sender: sender}
}

func (t *TelegramTransport) Deliver(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := telegram.ParseChatID(m.To)
	if err != nil {
		return errors.Wrapf(ErrInvalidAddress, "%v", err)
	}

	return t.sender.SendMessage(telegram.Message{ChatID: chatID, Text: m.Text})
}

// Router picks a transport by the shape of the address.
type Router struct {
	Email    Transport
	Telegram Transport
}

func (r Router) Deliver(ctx context.Context, m Message) error {
	target := r.Email
	if telegram.IsAddress(m.To) {
		target = r.Telegram
	}

	if target == nil {
		return errors.Wrapf(ErrNotConfigured, "no transport for %q", m.To)
	}

	return target.Deliver(ctx, m)
}
