package housekeeper

import "time"

const (
	minPeriodSeconds = int64(time.Hour / time.Second)
	maxPeriodSeconds = 24 * minPeriodSeconds
)

// ComputePeriod converts the time slept since the previous wake-up into the
// housekeeping period used to cap one cycle's backlog, clamped to [1h, 24h].
func ComputePeriod(timeSlept time.Duration) int64 {
	seconds := int64(timeSlept / time.Second)
	switch {
	case seconds < minPeriodSeconds:
		return minPeriodSeconds
	case seconds > maxPeriodSeconds:
		return maxPeriodSeconds
	default:
		return seconds
	}
}
