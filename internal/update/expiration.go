package update

import (
	"fmt"
	"time"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/types"
)

const (
	millisPerMinute = int64(time.Minute / time.Millisecond)
	millisPerHour   = 60 * millisPerMinute
	millisPerDay    = 24 * millisPerHour
	millisPerWeek   = 7 * millisPerDay
	// A month is counted as 30 days for reminder periods.
	millisPerMonth = 30 * millisPerDay
)

// ToMilliseconds converts an expiration to a reminder period in milliseconds.
func ToMilliseconds(e manifest.Expiration) (int64, error) {
	age := int64(e.MaximumAge)
	switch e.UnitOfTime {
	case types.UnitMinutes:
		return age * millisPerMinute, nil
	case types.UnitHours:
		return age * millisPerHour, nil
	case types.UnitDays:
		return age * millisPerDay, nil
	case types.UnitWeeks:
		return age * millisPerWeek, nil
	case types.UnitMonths:
		return age * millisPerMonth, nil
	default:
		return 0, fmt.Errorf("invalid unit of time '%s'", e.UnitOfTime)
	}
}

// Interval converts an expiration to a time.Duration.
func Interval(e manifest.Expiration) (time.Duration, error) {
	ms, err := ToMilliseconds(e)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// IsExpired reports whether the expiration period has elapsed since the given instant.
// A zero instant is always expired. Months are counted as calendar months.
func IsExpired(since time.Time, e manifest.Expiration, now time.Time) bool {
	if since.IsZero() {
		return true
	}

	if e.UnitOfTime == types.UnitMonths {
		since, now = since.UTC(), now.UTC()
		months := (now.Year()-since.Year())*12 + int(now.Month()) - int(since.Month())
		return months >= int(e.MaximumAge)
	}

	period, err := Interval(e)
	if err != nil {
		return false
	}
	return now.Sub(since) >= period
}

// IsUpdateExpired reports whether the last check recorded in info is older than the expiration.
func IsUpdateExpired(info *manifest.UpdateQueryInfo, e manifest.Expiration, now time.Time) bool {
	if info == nil {
		return true
	}
	return IsExpired(info.LastChecked, e, now)
}
