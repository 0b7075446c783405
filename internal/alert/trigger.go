package alert

import (
	"cryptotrack-alerts/internal/types"
)

// IsTriggered reports whether the alert's condition holds for snapshot.
// Comparisons are inclusive. A missing threshold or an unknown kind never triggers.
func IsTriggered(a types.Alert, snapshot types.Snapshot) bool {
	switch c := a.Condition.(type) {
	case types.PriceCondition:
		if c.Threshold == nil {
			return false
		}
		return crosses(c.Direction, snapshot.CurrentPrice, *c.Threshold)
	case types.PercentChangeCondition:
		if c.Threshold == nil {
			return false
		}
		return crosses(c.Direction, snapshot.PercentChange24h, *c.Threshold)
	case types.VolumeCondition:
		if c.Threshold == nil {
			return false
		}
		return snapshot.TotalVolume24h >= *c.Threshold
	default:
		return false
	}
}

func crosses(direction types.Direction, value, threshold float64) bool {
	switch direction {
	case types.Above:
		return value >= threshold
	case types.Below:
		return value <= threshold
	default:
		return false
	}
}

// Observed returns the snapshot field the alert's condition compares against.
func Observed(c types.Condition, snapshot types.Snapshot) float64 {
	switch c.(type) {
	case types.PercentChangeCondition:
		return snapshot.PercentChange24h
	case types.VolumeCondition:
		return snapshot.TotalVolume24h
	default:
		return snapshot.CurrentPrice
	}
}
