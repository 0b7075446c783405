package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cryptotrack-alerts/internal/telegram"
	"cryptotrack-alerts/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyTransport struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	last     Message
}

func (f *flakyTransport) Deliver(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.last = m
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func priceAlert() types.Alert {
	return types.Alert{
		ID:            "a1",
		UserID:        "u1",
		Asset:         "bitcoin",
		Condition:     types.PriceCondition{Direction: types.Above, Threshold: types.Float(50000)},
		NotifyByEmail: true,
		Active:        true,
	}
}

func fastOptions() Options {
	return Options{From: "CryptoTrack <alerts@cryptotrack.com>", Attempts: 3, BaseDelay: time.Millisecond}
}

func TestRenderPriceAlert(t *testing.T) {
	m := Render("from@x", "user@example.com", priceAlert(), types.Snapshot{CurrentPrice: 50100})

	assert.Equal(t, "BITCOIN Alert Triggered", m.Subject)
	assert.Equal(t, "from@x", m.From)
	assert.Equal(t, "user@example.com", m.To)
	assert.Contains(t, m.HTML, "<h2>Crypto Alert Triggered</h2>")
	assert.Contains(t, m.HTML, "Your price alert for BITCOIN has been triggered.")
	assert.Contains(t, m.HTML, "Current price: $50,100.00<br>Target price: $50,000.00")
	assert.Contains(t, m.Text, `$50,100\.00`)
}

func TestRenderPercentAndVolume(t *testing.T) {
	pct := priceAlert()
	pct.Condition = types.PercentChangeCondition{Direction: types.Below, Threshold: types.Float(-5)}
	m := Render("", "x", pct, types.Snapshot{PercentChange24h: -5.014})
	assert.Contains(t, m.HTML, "24h Price Change: -5.01%<br>Target Change: -5.00%")
	assert.Contains(t, m.HTML, "Your percentage alert")

	vol := priceAlert()
	vol.Condition = types.VolumeCondition{Threshold: types.Float(1000000)}
	m = Render("", "x", vol, types.Snapshot{TotalVolume24h: 1200000})
	assert.Contains(t, m.HTML, "24h Volume: $1,200,000<br>Volume Threshold: $1,000,000")
}

func TestRenderEscapesAsset(t *testing.T) {
	a := priceAlert()
	a.Asset = "<b>coin"
	m := Render("", "x", a, types.Snapshot{})
	assert.NotContains(t, m.HTML, "<B>COIN")
	assert.Contains(t, m.HTML, "&lt;B&gt;COIN")
}

func TestNotifierRetriesThenSucceeds(t *testing.T) {
	transport := &flakyTransport{failures: 2, err: errors.New("connection reset")}
	n := NewNotifier(transport, fastOptions())

	err := n.Send(context.Background(), "user@example.com", priceAlert(), types.Snapshot{CurrentPrice: 50100})
	require.NoError(t, err)
	assert.Equal(t, 3, transport.calls)
	assert.Equal(t, "BITCOIN Alert Triggered", transport.last.Subject)
}

func TestNotifierGivesUp(t *testing.T) {
	transport := &flakyTransport{failures: 10, err: errors.New("connection reset")}
	n := NewNotifier(transport, fastOptions())

	err := n.Send(context.Background(), "user@example.com", priceAlert(), types.Snapshot{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotificationFailed))
	assert.Equal(t, 3, transport.calls)
}

func TestNotifierDoesNotRetryPermanentErrors(t *testing.T) {
	transport := &flakyTransport{failures: 10, err: &StatusError{Code: http.StatusUnprocessableEntity}}
	n := NewNotifier(transport, fastOptions())

	err := n.Send(context.Background(), "user@example.com", priceAlert(), types.Snapshot{})
	assert.True(t, errors.Is(err, types.ErrNotificationFailed))
	assert.Equal(t, 1, transport.calls)

	transport = &flakyTransport{failures: 10, err: &StatusError{Code: http.StatusTooManyRequests}}
	n = NewNotifier(transport, fastOptions())
	_ = n.Send(context.Background(), "user@example.com", priceAlert(), types.Snapshot{})
	assert.Equal(t, 3, transport.calls)
}

func TestNotifierStopsOnCancelledContext(t *testing.T) {
	transport := &flakyTransport{failures: 10, err: errors.New("down")}
	n := NewNotifier(transport, Options{Attempts: 3, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Send(ctx, "user@example.com", priceAlert(), types.Snapshot{})
	assert.True(t, errors.Is(err, types.ErrNotificationFailed))
	assert.Equal(t, 1, transport.calls)
}

func TestResendTransport(t *testing.T) {
	var got resendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	transport := NewResendTransport(server.URL, "re_test", server.Client())
	err := transport.Deliver(context.Background(), Message{From: "f", To: "user@example.com", Subject: "s", HTML: "<p>h</p>"})
	require.NoError(t, err)

	assert.Equal(t, "f", got.From)
	assert.Equal(t, []string{"user@example.com"}, got.To)
	assert.Equal(t, "s", got.Subject)
	assert.Equal(t, "<p>h</p>", got.HTML)
}

func TestResendTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	err := NewResendTransport(server.URL, "re_test", server.Client()).Deliver(context.Background(), Message{To: "x"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.False(t, statusErr.Permanent())

	err = NewResendTransport(server.URL, "", server.Client()).Deliver(context.Background(), Message{To: "x"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

type recordingSender struct {
	sent []telegram.Message
}

func (r *recordingSender) SendMessage(m telegram.Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func TestRouter(t *testing.T) {
	email := &flakyTransport{}
	sender := &recordingSender{}
	router := Router{Email: email, Telegram: NewTelegramTransport(sender)}

	require.NoError(t, router.Deliver(context.Background(), Message{To: "user@example.com"}))
	assert.Equal(t, 1, email.calls)

	require.NoError(t, router.Deliver(context.Background(), Message{To: "tg:777", Text: "hi"}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(777), sender.sent[0].ChatID)
	assert.Equal(t, "hi", sender.sent[0].Text)

	err := Router{Email: email}.Deliver(context.Background(), Message{To: "tg:1"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

type countingTransport struct {
	next  Transport
	calls int
}

func (c *countingTransport) Deliver(ctx context.Context, m Message) error {
	c.calls++
	return c.next.Deliver(ctx, m)
}

func TestNotifierDoesNotRetryMalformedTelegramAddress(t *testing.T) {
	sender := &recordingSender{}
	transport := &countingTransport{next: Router{Telegram: NewTelegramTransport(sender)}}
	n := NewNotifier(transport, Options{Attempts: 3, BaseDelay: time.Hour})

	err := n.Send(context.Background(), "tg:not-a-chat", priceAlert(), types.Snapshot{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotificationFailed))
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, sender.sent)

	err = NewTelegramTransport(sender).Deliver(context.Background(), Message{To: "tg:abc"})
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}
