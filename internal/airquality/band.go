package airquality

import "fmt"

// Band is a severity band of the US AQI scale, ordered by increasing severity.
// The zero value BandUnknown means "not yet evaluated" and is never returned
// by Classify.
type Band int

const (
	BandUnknown Band = iota
	BandGood
	BandModerate
	BandUnhealthySensitive
	BandUnhealthy
	BandVeryUnhealthy
	BandHazardous
)

// Upper AQI breakpoints (inclusive) of each band below hazardous.
const (
	goodMax               = 50
	moderateMax           = 100
	unhealthySensitiveMax = 150
	unhealthyMax          = 200
	veryUnhealthyMax      = 300
)

// Classify maps an AQI value to its band. Total over all ints: negative input
// classifies as good.
func Classify(aqi int) Band {
	switch {
	case aqi <= goodMax:
		return BandGood
	case aqi <= moderateMax:
		return BandModerate
	case aqi <= unhealthySensitiveMax:
		return BandUnhealthySensitive
	case aqi <= unhealthyMax:
		return BandUnhealthy
	case aqi <= veryUnhealthyMax:
		return BandVeryUnhealthy
	default:
		return BandHazardous
	}
}

type bandInfo struct {
	name           string
	emoji          string
	title          string
	recommendation string
}

var bands = map[Band]bandInfo{
	BandGood: {
		name:           "good",
		emoji:          "🟢",
		title:          "Good",
		recommendation: "Air quality is excellent. Enjoy walks and outdoor sports.",
	},
	BandModerate: {
		name:           "moderate",
		emoji:          "🟡",
		title:          "Moderate",
		recommendation: "Air quality is acceptable. Unusually sensitive people should limit prolonged time outdoors.",
	},
	BandUnhealthySensitive: {
		name:           "unhealthy_sensitive",
		emoji:          "🟠",
		title:          "Unhealthy for sensitive groups",
		recommendation: "People with respiratory conditions, the elderly and children should limit time outdoors.",
	},
	BandUnhealthy: {
		name:           "unhealthy",
		emoji:          "🔴",
		title:          "Unhealthy",
		recommendation: "Everyone should limit time outdoors, especially physical activity.",
	},
	BandVeryUnhealthy: {
		name:           "very_unhealthy",
		emoji:          "🟣",
		title:          "Very unhealthy",
		recommendation: "Avoid all outdoor activity. Use masks and air purifiers.",
	},
	BandHazardous: {
		name:           "hazardous",
		emoji:          "🟤",
		title:          "Hazardous",
		recommendation: "Stay indoors! The air is dangerous to health.",
	},
}

// String returns the persisted name of the band ("" for BandUnknown).
func (b Band) String() string {
	return bands[b].name
}

// Emoji returns the colored marker used in messages.
func (b Band) Emoji() string {
	if info, ok := bands[b]; ok {
		return info.emoji
	}
	return "⚪"
}

// Title returns the human-readable band name.
func (b Band) Title() string {
	if info, ok := bands[b]; ok {
		return info.title
	}
	return "Unknown"
}

// Recommendation returns the health advice for the band.
func (b Band) Recommendation() string {
	return bands[b].recommendation
}

// IsBad reports whether the band is unhealthy for sensitive groups or worse.
func (b Band) IsBad() bool {
	return b >= BandUnhealthySensitive
}

// ParseBand converts a persisted band name back to a Band. The empty string
// maps to BandUnknown.
func ParseBand(s string) (Band, error) {
	if s == "" {
		return BandUnknown, nil
	}
	for b, info := range bands {
		if info.name == s {
			return b, nil
		}
	}
	return BandUnknown, fmt.Errorf("unknown band %q", s)
}
