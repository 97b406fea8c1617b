package notifications

import "time"

// MatchesDaily reports whether a subscriber's daily digest is due at the
// given local hour and minute. Only the exact minute matches; a missed minute
// is not caught up later.
func MatchesDaily(sub Subscriber, hour, minute int) bool {
	return sub.DailyEnabled && sub.DailyHour == hour && sub.DailyMinute == minute
}

// Greeting returns the digest salutation for a local hour.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "🌅 Good morning!"
	case hour >= 12 && hour < 18:
		return "🌤 Good afternoon!"
	case hour >= 18 && hour < 23:
		return "🌆 Good evening!"
	default:
		return "🌙 Good night!"
	}
}

// untilNextMinute returns how long to wait from now until the next
// wall-clock minute boundary.
func untilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}
