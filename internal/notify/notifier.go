package notify

import (
	"context"
	"time"

	"cryptotrack-alerts/internal/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
)

// Options tune delivery retries.
type Options struct {
	From      string
	Attempts  int
	BaseDelay time.Duration
}

// Notifier renders triggered alerts and delivers them with bounded exponential retry.
type Notifier struct {
	transport Transport
	from      string
	attempts  int
	baseDelay time.Duration
}

func NewNotifier(transport Transport, opts Options) *Notifier {
	if opts.Attempts < 1 {
		opts.Attempts = defaultAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}

	return &Notifier{
		transport: transport,
		from:      opts.From,
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
	}
}

// Send delivers one notification for a triggered alert. After the last failed
// attempt the returned error wraps types.ErrNotificationFailed.
func (n *Notifier) Send(ctx context.Context, address string, a types.Alert, snapshot types.Snapshot) error {
	msg := Render(n.from, address, a, snapshot)

	attempt := 0
	operation := func() error {
		attempt++
		err := n.transport.Deliver(ctx, msg)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	onRetry := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"alert_id": a.ID,
			"attempt":  attempt,
			"wait":     wait,
		}).Warnf("⚠️ notification attempt failed: %v", err)
	}

	if err := backoff.RetryNotify(operation, n.policy(ctx), onRetry); err != nil {
		return errors.Wrapf(types.ErrNotificationFailed, "alert %s after %d attempt(s): %v", a.ID, attempt, err)
	}

	log.Infof("📨 notification for alert %s delivered to %s", a.ID, address)
	return nil
}

func (n *Notifier) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = n.baseDelay << uint(n.attempts)
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(n.attempts-1)), ctx)
}

func isPermanent(err error) bool {
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrInvalidAddress) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Permanent()
	}

	return false
}
