package alert

import (
	"context"
	"strings"

	"cryptotrack-alerts/internal/price"
	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidKind      = errors.New("alert type must be price, percentage or volume")
	ErrInvalidDirection = errors.New("condition must be above or below")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrMissingField     = errors.New("missing required field")
)

// NewAlert is user input for a new alert, as typed.
type NewAlert struct {
	UserID        string
	Asset         string
	Kind          string
	Direction     string
	Threshold     string
	NotifyByEmail bool
}

// Inserter stores new alerts.
type Inserter interface {
	InsertAlert(ctx context.Context, a *types.Alert) error
}

// BuildAlert validates input and returns an active, untriggered alert.
// Price and volume thresholds must be greater than zero; a percentage may be any number.
func BuildAlert(in NewAlert) (types.Alert, error) {
	userID := strings.TrimSpace(in.UserID)
	asset := price.NormalizeAsset(in.Asset)
	if userID == "" {
		return types.Alert{}, errors.Wrap(ErrMissingField, "user")
	}
	if asset == "" {
		return types.Alert{}, errors.Wrap(ErrMissingField, "asset")
	}

	kind := types.Kind(strings.ToLower(strings.TrimSpace(in.Kind)))
	direction := types.ParseDirection(in.Direction)
	if kind == types.KindVolume && strings.TrimSpace(in.Direction) == "" {
		direction = types.Above
	}
	if direction != types.Above && direction != types.Below {
		return types.Alert{}, errors.Wrapf(ErrInvalidDirection, "got %q", in.Direction)
	}

	threshold, err := decimal.NewFromString(strings.TrimSpace(in.Threshold))
	if err != nil {
		return types.Alert{}, errors.Wrapf(ErrInvalidThreshold, "%q is not a number", in.Threshold)
	}
	value := threshold.InexactFloat64()

	var condition types.Condition
	switch kind {
	case types.KindPrice:
		if !threshold.IsPositive() {
			return types.Alert{}, errors.Wrap(ErrInvalidThreshold, "target price must be greater than 0")
		}
		condition = types.PriceCondition{Direction: direction, Threshold: &value}
	case types.KindPercentChange:
		condition = types.PercentChangeCondition{Direction: direction, Threshold: &value}
	case types.KindVolume:
		if !threshold.IsPositive() {
			return types.Alert{}, errors.Wrap(ErrInvalidThreshold, "volume threshold must be greater than 0")
		}
		condition = types.VolumeCondition{Threshold: &value}
	default:
		return types.Alert{}, errors.Wrapf(ErrInvalidKind, "got %q", in.Kind)
	}

	return types.Alert{
		UserID:        userID,
		Asset:         asset,
		Condition:     condition,
		NotifyByEmail: in.NotifyByEmail,
		Active:        true,
	}, nil
}

// CreateAlert validates and stores a new alert. The current price is recorded as the
// creation snapshot when market data is available; its absence does not block creation.
func CreateAlert(ctx context.Context, store Inserter, fetcher price.Fetcher, in NewAlert) (types.Alert, error) {
	a, err := BuildAlert(in)
	if err != nil {
		return types.Alert{}, err
	}

	if fetcher != nil {
		snapshot, err := fetcher.Fetch(ctx, a.Asset)
		if err != nil {
			log.Warnf("⚠️ Could not fetch current price for %s, creating alert without it: %v", a.Asset, err)
		} else {
			a.CreationSnapshotPrice = types.Float(snapshot.CurrentPrice)
		}
	}

	if err := store.InsertAlert(ctx, &a); err != nil {
		return types.Alert{}, errors.Wrap(err, "could not save alert")
	}

	return a, nil
}
