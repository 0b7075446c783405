package types

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrDataUnavailable is returned when every market data provider failed for an asset.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrStoreUnavailable is returned when the alert store cannot be read or written.
	ErrStoreUnavailable = errors.New("alert store unavailable")
	// ErrNotificationFailed is returned once notification retries are exhausted.
	ErrNotificationFailed = errors.New("notification failed")
)

// Kind discriminates which snapshot field an alert compares.
type Kind string

const (
	KindPrice         Kind = "price"
	KindPercentChange Kind = "percentage"
	KindVolume        Kind = "volume"
)

// Direction of a price or percent comparison.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// ParseDirection accepts "above"/"below" and the comparator forms ">=", ">", "<=", "<".
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", ">=", ">":
		return Above
	case "below", "<=", "<":
		return Below
	default:
		return Direction(s)
	}
}

// Condition is the kind specific part of an alert. The set of implementations is closed.
type Condition interface {
	Kind() Kind
	isCondition()
}

// PriceCondition fires when the current price crosses Threshold in Direction.
type PriceCondition struct {
	Direction Direction
	Threshold *float64
}

// PercentChangeCondition fires when the 24h change crosses Threshold (in percent) in Direction.
type PercentChangeCondition struct {
	Direction Direction
	Threshold *float64
}

// VolumeCondition fires when the 24h volume reaches Threshold.
type VolumeCondition struct {
	Threshold *float64
}

// UnknownCondition holds an alert_type the engine does not understand. It never fires.
type UnknownCondition struct {
	Name string
}

func (PriceCondition) Kind() Kind         { return KindPrice }
func (PercentChangeCondition) Kind() Kind { return KindPercentChange }
func (VolumeCondition) Kind() Kind        { return KindVolume }
func (c UnknownCondition) Kind() Kind     { return Kind(c.Name) }

func (PriceCondition) isCondition()         {}
func (PercentChangeCondition) isCondition() {}
func (VolumeCondition) isCondition()        {}
func (UnknownCondition) isCondition()       {}

// NewCondition builds a Condition from the stored columns of an alert row.
// Only the threshold column that belongs to the kind is used.
func NewCondition(kind, direction string, targetPrice, percentageChange, volumeThreshold *float64) Condition {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindPrice:
		return PriceCondition{Direction: ParseDirection(direction), Threshold: targetPrice}
	case KindPercentChange:
		return PercentChangeCondition{Direction: ParseDirection(direction), Threshold: percentageChange}
	case KindVolume:
		return VolumeCondition{Threshold: volumeThreshold}
	default:
		return UnknownCondition{Name: kind}
	}
}

// Columns is the inverse of NewCondition.
func Columns(c Condition) (kind, direction string, targetPrice, percentageChange, volumeThreshold *float64) {
	switch c := c.(type) {
	case PriceCondition:
		return string(KindPrice), string(c.Direction), c.Threshold, nil, nil
	case PercentChangeCondition:
		return string(KindPercentChange), string(c.Direction), nil, c.Threshold, nil
	case VolumeCondition:
		return string(KindVolume), string(Above), nil, nil, c.Threshold
	case UnknownCondition:
		return c.Name, "", nil, nil, nil
	}
	return "", "", nil, nil, nil
}

// Threshold returns the threshold of any condition, or nil.
func Threshold(c Condition) *float64 {
	_, _, p, pc, v := Columns(c)
	switch {
	case p != nil:
		return p
	case pc != nil:
		return pc
	default:
		return v
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Alert is a user's standing instruction to be notified when a market condition holds.
type Alert struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Asset                 string     `json:"cryptocurrency"`
	Condition             Condition  `json:"-"`
	CreationSnapshotPrice *float64   `json:"creation_price,omitempty"`
	NotifyByEmail         bool       `json:"email_notification"`
	Active                bool       `json:"is_active"`
	TriggeredAt           *time.Time `json:"triggered_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Snapshot is a point in time read of one asset's market state, in USD.
type Snapshot struct {
	CurrentPrice     float64 `json:"current_price"`
	PercentChange24h float64 `json:"price_change_percentage_24h"`
	TotalVolume24h   float64 `json:"total_volume"`
}

// User is the owner of alerts, as far as notification is concerned.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SweepError records why one alert could not be processed.
type SweepError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SweepSummary is the result of one pass over all active alerts.
type SweepSummary struct {
	Processed    []string     `json:"processed"`
	Errors       []SweepError `json:"errors"`
	TotalChecked int          `json:"totalChecked"`
	// NotificationErrors lists triggered alerts whose notification was not delivered.
	// Those alerts are still in Processed.
	NotificationErrors []SweepError `json:"notificationErrors,omitempty"`
}
