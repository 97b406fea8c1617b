// Package airquality holds the measurement value types shared by the cache,
// the provider client and the notification pipeline.
//
// A Reading is immutable once built; callers share it by pointer.
// A Band is always derived from Reading.AQI via Classify.
package airquality

import (
	"fmt"
	"time"
)

// Weather is the optional weather snapshot returned alongside a reading.
type Weather struct {
	Temperature int     `json:"temperature"` // Celsius
	Humidity    int     `json:"humidity"`    // %
	WindSpeed   float64 `json:"wind_speed"`  // m/s
	Pressure    int     `json:"pressure"`    // hPa
}

// Line renders the weather snapshot as a single message line.
func (w Weather) Line() string {
	return fmt.Sprintf("🌡 %d°C  💧 %d%%  💨 %.1f m/s", w.Temperature, w.Humidity, w.WindSpeed)
}

// Reading is one upstream air-quality measurement snapshot.
type Reading struct {
	AQI           int       `json:"aqi"`
	MainPollutant string    `json:"main_pollutant"`
	Weather       *Weather  `json:"weather,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
}

// Band classifies the reading's index.
func (r *Reading) Band() Band {
	return Classify(r.AQI)
}

// Pollutant display names keyed by IQAir pollutant code.
var pollutantNames = map[string]string{
	"p2": "PM2.5 (fine particles)",
	"p1": "PM10 (coarse particles)",
	"o3": "Ozone (O₃)",
	"n2": "Nitrogen dioxide (NO₂)",
	"s2": "Sulfur dioxide (SO₂)",
	"co": "Carbon monoxide (CO)",
}

// PollutantName returns the display name for a pollutant code, or the code
// itself when unknown.
func PollutantName(code string) string {
	if name, ok := pollutantNames[code]; ok {
		return name
	}
	return code
}
