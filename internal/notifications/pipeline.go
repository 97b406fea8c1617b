package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/almaty-air/internal/airquality"
)

// ReadingSource is the measurement cache as seen by the pipeline.
type ReadingSource interface {
	Get(ctx context.Context, forceRefresh bool) (*airquality.Reading, error)
}

// PipelineConfig carries presentation and fan-out settings.
type PipelineConfig struct {
	LocationName string
	Timezone     *time.Location
	Workers      int
}

// Pipeline runs single digest and alert cycles. It holds no per-cycle state,
// so the two cycles may run concurrently.
type Pipeline struct {
	store    Store
	sender   Sender
	readings ReadingSource
	location string
	tz       *time.Location
	workers  int
	logger   *slog.Logger
}

// NewPipeline wires the cycle dependencies.
func NewPipeline(store Store, sender Sender, readings ReadingSource, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		sender:   sender,
		readings: readings,
		location: cfg.LocationName,
		tz:       cfg.Timezone,
		workers:  cfg.Workers,
		logger:   logger,
	}
}

// RunDigest delivers the daily digest to every subscriber due at now's local
// hour and minute. The cycle is skipped when no reading can be served.
func (p *Pipeline) RunDigest(ctx context.Context, now time.Time) CycleResult {
	start := time.Now()
	result := CycleResult{CycleID: uuid.NewString(), Kind: "digest", StartedAt: start}
	logger := p.logger.With("cycle", "digest", "cycle_id", result.CycleID)

	local := now.In(p.tz)
	hour, minute := local.Hour(), local.Minute()
	logger.Debug("Checking daily digests", "hour", hour, "minute", minute)

	reading, err := p.readings.Get(ctx, false)
	if err != nil {
		logger.Warn("Could not get air quality for daily digests", "error", err)
		result.Skipped = "reading unavailable"
		result.Duration = time.Since(start)
		return result
	}
	result.AQI = reading.AQI

	subs, err := p.store.ListDueForDigest(ctx, hour, minute)
	if err != nil {
		logger.Error("List digest subscribers failed", "error", err)
		result.Skipped = "store unavailable"
		result.Duration = time.Since(start)
		return result
	}
	result.Candidates = len(subs)

	var due []Subscriber
	for _, sub := range subs {
		if MatchesDaily(sub, hour, minute) {
			due = append(due, sub)
		}
	}
	result.Matched = len(due)
	if len(due) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	text := "<b>" + Greeting(hour) + "</b>\n\n" + airquality.FormatMessage(reading, p.location)

	outcomes := fanOut(ctx, due, p.workers, func(ctx context.Context, sub Subscriber) outcome {
		o := outcome{subscriberID: sub.ID}
		if err := p.deliver(ctx, sub.ID, KindDigest, reading, text); err != nil {
			logger.Error("Failed to send daily digest", "subscriber_id", sub.ID, "error", err)
			o.sendErr = err
		} else {
			logger.Info("Sent daily digest", "subscriber_id", sub.ID)
			o.sent = true
		}
		return o
	})
	result.add(outcomes)
	result.Duration = time.Since(start)

	logger.Info("Daily digest cycle complete", "summary", result.Summary())
	return result
}

// RunAlerts force-refreshes the reading, evaluates every alert subscriber,
// sends warnings and improvement notices, and persists each subscriber's new
// band whether or not a message went out.
func (p *Pipeline) RunAlerts(ctx context.Context) CycleResult {
	start := time.Now()
	result := CycleResult{CycleID: uuid.NewString(), Kind: "alerts", StartedAt: start}
	logger := p.logger.With("cycle", "alerts", "cycle_id", result.CycleID)

	reading, err := p.readings.Get(ctx, true)
	if err != nil {
		logger.Warn("Could not get air quality for alerts", "error", err)
		result.Skipped = "reading unavailable"
		result.Duration = time.Since(start)
		return result
	}
	result.AQI = reading.AQI
	logger.Debug("Current AQI", "aqi", reading.AQI, "band", reading.Band().String())

	subs, err := p.store.ListAlertEnabled(ctx)
	if err != nil {
		logger.Error("List alert subscribers failed", "error", err)
		result.Skipped = "store unavailable"
		result.Duration = time.Since(start)
		return result
	}
	result.Candidates = len(subs)
	result.Matched = len(subs)
	if len(subs) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	body := airquality.FormatMessage(reading, p.location)

	outcomes := fanOut(ctx, subs, p.workers, func(ctx context.Context, sub Subscriber) outcome {
		return p.alertOne(ctx, logger, sub, reading, body)
	})
	result.add(outcomes)
	result.Duration = time.Since(start)

	logger.Info("Alert cycle complete", "summary", result.Summary())
	return result
}

// alertOne is the evaluate → send → persist unit for one subscriber.
func (p *Pipeline) alertOne(ctx context.Context, logger *slog.Logger, sub Subscriber, reading *airquality.Reading, body string) outcome {
	ev := Evaluate(sub, reading)
	o := outcome{subscriberID: sub.ID, decision: ev.Decision}

	if ev.Decision != NoAction {
		kind, text := alertMessage(ev.Decision, body)
		if err := p.deliver(ctx, sub.ID, kind, reading, text); err != nil {
			logger.Error("Failed to send alert",
				"subscriber_id", sub.ID, "type", string(kind), "error", err)
			o.sendErr = err
		} else {
			logger.Info("Sent alert", "subscriber_id", sub.ID, "type", string(kind),
				"aqi", reading.AQI, "band", ev.Band.String())
			o.sent = true
		}
	}

	// The band write must survive a send failure and a shutdown mid-cycle.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.store.PersistLastBand(persistCtx, sub.ID, ev.Band); err != nil {
		logger.Error("Failed to persist last band",
			"subscriber_id", sub.ID, "band", ev.Band.String(), "error", err)
		o.persistErr = err
	} else {
		o.persisted = true
	}
	return o
}

func alertMessage(d Decision, body string) (Kind, string) {
	if d == Improved {
		return KindImproved, "✅ <b>Air quality has improved!</b>\n\n" + body
	}
	return KindWarning, "⚠️ <b>Warning! Air quality has worsened</b>\n\n" + body
}

// deliver sends one message and records the attempt. Recording is
// best-effort and never turns a successful send into a failure.
func (p *Pipeline) deliver(ctx context.Context, chatID int64, kind Kind, reading *airquality.Reading, text string) error {
	sendErr := p.sender.Send(ctx, chatID, text)

	d := Delivery{
		SubscriberID: chatID,
		Kind:         kind,
		AQI:          reading.AQI,
		Band:         reading.Band(),
		AttemptedAt:  time.Now(),
	}
	if sendErr != nil {
		d.Error = sendErr.Error()
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.store.RecordDelivery(recordCtx, d); err != nil {
		p.logger.Warn("Failed to record delivery", "subscriber_id", chatID, "error", err)
	}
	return sendErr
}

// --------------------------------------------------------------------------
// Fan-out
// --------------------------------------------------------------------------

// outcome is the per-subscriber result sent back from a fan-out worker.
type outcome struct {
	subscriberID int64
	decision     Decision
	sent         bool
	sendErr      error
	persisted    bool
	persistErr   error
}

// fanOut runs fn for every item on a bounded worker pool and collects one
// outcome per item. A failing item never cancels its siblings.
func fanOut[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) outcome) []outcome {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	work := make(chan T, len(items))
	for _, item := range items {
		work <- item
	}
	close(work)

	results := make(chan outcome, len(items))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				results <- fn(ctx, item)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]outcome, 0, len(items))
	for o := range results {
		collected = append(collected, o)
	}
	return collected
}

func (r *CycleResult) add(outcomes []outcome) {
	for _, o := range outcomes {
		switch {
		case o.sent:
			r.Sent++
		case o.sendErr != nil:
			r.Failed++
		}
		if o.sent {
			switch o.decision {
			case Warn:
				r.Warned++
			case Improved:
				r.Improved++
			}
		}
		if o.persisted {
			r.Persisted++
		}
		if o.persistErr != nil {
			r.PersistFailed++
		}
	}
}
