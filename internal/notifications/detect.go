package notifications

import "github.com/albapepper/almaty-air/internal/airquality"

// Evaluate runs one step of a subscriber's alert state machine.
//
// The state is the subscriber's last observed band (BandUnknown before the
// first evaluation). A reading at or above the threshold warns only when its
// band differs from the last one, so each distinct over-threshold band warns
// once. Dropping below the threshold after a bad band reports an improvement
// once. The returned band is always the reading's band and must be persisted
// whatever the decision.
func Evaluate(sub Subscriber, r *airquality.Reading) Evaluation {
	current := airquality.Classify(r.AQI)
	ev := Evaluation{Decision: NoAction, Band: current}

	switch {
	case r.AQI >= sub.AlertThreshold:
		if current != sub.LastBand {
			ev.Decision = Warn
		}
	case sub.LastBand.IsBad():
		ev.Decision = Improved
	}
	return ev
}
