package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/almaty-air/internal/airquality"
)

// Store is the subscriber persistence the pipeline depends on.
type Store interface {
	ListDueForDigest(ctx context.Context, hour, minute int) ([]Subscriber, error)
	ListAlertEnabled(ctx context.Context) ([]Subscriber, error)
	PersistLastBand(ctx context.Context, subscriberID int64, band airquality.Band) error
	RecordDelivery(ctx context.Context, d Delivery) error
}

// PgStore implements Store on the prepared statements registered by
// internal/db.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps a connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// ListDueForDigest returns daily-enabled subscribers scheduled at hour:minute.
func (s *PgStore) ListDueForDigest(ctx context.Context, hour, minute int) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx, "subscribers_due_for_digest", hour, minute)
	if err != nil {
		return nil, fmt.Errorf("list due for digest: %w", err)
	}
	return scanSubscribers(rows)
}

// ListAlertEnabled returns all subscribers with alerts switched on.
func (s *PgStore) ListAlertEnabled(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx, "subscribers_alert_enabled")
	if err != nil {
		return nil, fmt.Errorf("list alert enabled: %w", err)
	}
	return scanSubscribers(rows)
}

// PersistLastBand stores the band observed at the latest evaluation.
func (s *PgStore) PersistLastBand(ctx context.Context, subscriberID int64, band airquality.Band) error {
	var value *string
	if band != airquality.BandUnknown {
		name := band.String()
		value = &name
	}
	tag, err := s.pool.Exec(ctx, "subscriber_set_last_band", subscriberID, value)
	if err != nil {
		return fmt.Errorf("persist last band for %d: %w", subscriberID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("persist last band: subscriber %d not found", subscriberID)
	}
	return nil
}

// RecordDelivery appends a send attempt to the delivery log.
func (s *PgStore) RecordDelivery(ctx context.Context, d Delivery) error {
	status := "sent"
	var lastErr *string
	if d.Error != "" {
		status = "failed"
		lastErr = &d.Error
	}
	attempted := d.AttemptedAt
	if attempted.IsZero() {
		attempted = time.Now()
	}
	_, err := s.pool.Exec(ctx, "delivery_insert",
		d.SubscriberID, string(d.Kind), d.AQI, d.Band.String(), status, lastErr, attempted)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

func scanSubscribers(rows pgx.Rows) ([]Subscriber, error) {
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var (
			sub      Subscriber
			lastBand *string
		)
		if err := rows.Scan(
			&sub.ID, &sub.DailyEnabled, &sub.DailyHour, &sub.DailyMinute,
			&sub.AlertEnabled, &sub.AlertThreshold, &lastBand,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if lastBand != nil {
			band, err := airquality.ParseBand(*lastBand)
			if err != nil {
				// An unreadable band behaves like a fresh subscriber.
				band = airquality.BandUnknown
			}
			sub.LastBand = band
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
