// Package notifications decides which subscribers receive which air-quality
// message on every scheduler tick, and delivers them.
//
// Two independent cycles share one measurement cache:
//   - digest: every wall-clock minute, subscribers whose daily time matches
//     get the current reading;
//   - alerts: on a fixed interval, the reading is force-refreshed and each
//     alert subscriber's band state machine decides between warning,
//     improvement notice, or nothing.
//
// Deliveries fan out to a bounded worker pool; one recipient's failure never
// affects another's delivery or band update.
package notifications

import (
	"fmt"
	"time"

	"github.com/albapepper/almaty-air/internal/airquality"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultAlertInterval  = 15 * time.Minute
	DefaultAlertThreshold = 101
	defaultWorkers        = 8
	persistTimeout        = 10 * time.Second
	recordTimeout         = 5 * time.Second
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Subscriber is the notification-relevant view of a user.
type Subscriber struct {
	ID             int64 // Telegram chat id
	DailyEnabled   bool
	DailyHour      int // 0-23, scheduler timezone
	DailyMinute    int // 0-59
	AlertEnabled   bool
	AlertThreshold int
	LastBand       airquality.Band // BandUnknown until first evaluation
}

// Decision is the outcome of evaluating one subscriber against a reading.
type Decision int

const (
	NoAction Decision = iota
	Warn
	Improved
)

func (d Decision) String() string {
	switch d {
	case Warn:
		return "warn"
	case Improved:
		return "improved"
	default:
		return "no_action"
	}
}

// Evaluation pairs a decision with the band to persist for the subscriber.
type Evaluation struct {
	Decision Decision
	Band     airquality.Band
}

// Kind tags an outbound message.
type Kind string

const (
	KindDigest   Kind = "digest"
	KindWarning  Kind = "warning"
	KindImproved Kind = "improved"
)

// Delivery is one send attempt, recorded for auditing.
type Delivery struct {
	SubscriberID int64
	Kind         Kind
	AQI          int
	Band         airquality.Band
	Error        string // empty on success
	AttemptedAt  time.Time
}

// CycleResult tracks the outcome of one digest or alert cycle.
type CycleResult struct {
	CycleID       string        `json:"cycle_id"`
	Kind          string        `json:"kind"`
	StartedAt     time.Time     `json:"started_at"`
	AQI           int           `json:"aqi,omitempty"`
	Candidates    int           `json:"candidates"`
	Matched       int           `json:"matched"`
	Sent          int           `json:"sent"`
	Failed        int           `json:"failed"`
	Warned        int           `json:"warned"`
	Improved      int           `json:"improved"`
	Persisted     int           `json:"persisted"`
	PersistFailed int           `json:"persist_failed"`
	Skipped       string        `json:"skipped,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// Summary returns a human-readable summary.
func (r *CycleResult) Summary() string {
	if r.Skipped != "" {
		return fmt.Sprintf("%s skipped: %s", r.Kind, r.Skipped)
	}
	return fmt.Sprintf(
		"%s aqi=%d candidates=%d matched=%d sent=%d failed=%d warned=%d improved=%d persisted=%d persist_failed=%d dur=%s",
		r.Kind, r.AQI, r.Candidates, r.Matched, r.Sent, r.Failed,
		r.Warned, r.Improved, r.Persisted, r.PersistFailed,
		r.Duration.Round(time.Millisecond))
}
