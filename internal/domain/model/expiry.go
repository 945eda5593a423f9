package model

import "time"

type ExpiryStatus string

const (
	ExpiryActive       ExpiryStatus = "active"
	ExpiryExpiringSoon ExpiryStatus = "expiring_soon"
	ExpiryExpired      ExpiryStatus = "expired"
)

// Classify partitions (expiresAt, now): remaining < 0 is Expired,
// 0 <= remaining <= window is ExpiringSoon, anything later is Active.
func Classify(expiresAt, now time.Time, window time.Duration) ExpiryStatus {
	remaining := expiresAt.Sub(now)
	switch {
	case remaining < 0:
		return ExpiryExpired
	case remaining <= window:
		return ExpiryExpiringSoon
	default:
		return ExpiryActive
	}
}

// DaysRemaining floors the remaining time to whole days (negative once expired).
func DaysRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining < 0 && remaining%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// HoursRemaining is the fractional hour count used by the watcher threshold.
func HoursRemaining(expiresAt, now time.Time) float64 {
	return expiresAt.Sub(now).Hours()
}
