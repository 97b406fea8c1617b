package airquality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Breakpoints(t *testing.T) {
	cases := []struct {
		aqi  int
		want Band
	}{
		{-5, BandGood},
		{0, BandGood},
		{50, BandGood},
		{51, BandModerate},
		{100, BandModerate},
		{101, BandUnhealthySensitive},
		{150, BandUnhealthySensitive},
		{151, BandUnhealthy},
		{200, BandUnhealthy},
		{201, BandVeryUnhealthy},
		{300, BandVeryUnhealthy},
		{301, BandHazardous},
		{999, BandHazardous},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.aqi), "aqi=%d", tc.aqi)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	prev := Classify(-100)
	for aqi := -99; aqi <= 600; aqi++ {
		got := Classify(aqi)
		require.GreaterOrEqual(t, int(got), int(prev), "aqi=%d", aqi)
		require.NotEqual(t, BandUnknown, got)
		prev = got
	}
}

func TestBand_IsBad(t *testing.T) {
	assert.False(t, BandUnknown.IsBad())
	assert.False(t, BandGood.IsBad())
	assert.False(t, BandModerate.IsBad())
	assert.True(t, BandUnhealthySensitive.IsBad())
	assert.True(t, BandUnhealthy.IsBad())
	assert.True(t, BandVeryUnhealthy.IsBad())
	assert.True(t, BandHazardous.IsBad())
}

func TestParseBand_RoundTrip(t *testing.T) {
	for b := BandGood; b <= BandHazardous; b++ {
		parsed, err := ParseBand(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, parsed)
	}

	unknown, err := ParseBand("")
	require.NoError(t, err)
	assert.Equal(t, BandUnknown, unknown)

	_, err = ParseBand("smoky")
	assert.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	r := &Reading{
		AQI:           162,
		MainPollutant: "p2",
		Weather:       &Weather{Temperature: -4, Humidity: 80, WindSpeed: 1.5, Pressure: 1030},
		CapturedAt:    time.Now(),
	}

	msg := FormatMessage(r, "Almaty")

	assert.Contains(t, msg, "🔴 <b>Air quality in Almaty</b>")
	assert.Contains(t, msg, "<b>AQI:</b> 162")
	assert.Contains(t, msg, "Unhealthy")
	assert.Contains(t, msg, "PM2.5 (fine particles)")
	assert.Contains(t, msg, "-4°C")
}

func TestFormatMessage_NoWeatherUnknownPollutant(t *testing.T) {
	r := &Reading{AQI: 12, MainPollutant: "xx"}

	msg := FormatMessage(r, "Almaty")

	assert.Contains(t, msg, "🟢")
	assert.Contains(t, msg, "<b>Main pollutant:</b> xx")
	assert.NotContains(t, msg, "°C")
}
