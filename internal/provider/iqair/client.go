// Package iqair provides the HTTP client for the IQAir (AirVisual) API.
//
// IQAir uses query-parameter key auth. The free plan allows a handful of
// calls per minute, so requests go through a token bucket limiter.
package iqair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/albapepper/almaty-air/internal/airquality"
	"github.com/albapepper/almaty-air/internal/config"
	"github.com/albapepper/almaty-air/internal/provider"
)

const defaultTimeout = 30 * time.Second

// ErrUpstream marks responses the API answered but did not succeed on.
var ErrUpstream = errors.New("iqair upstream error")

// Client fetches the current reading for one configured city.
type Client struct {
	http     *resty.Client
	apiKey   string
	location config.Location
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewClient creates an IQAir client with rate limiting. Retries are left to
// the caller's next tick.
func NewClient(baseURL, apiKey string, location config.Location, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
		apiKey:   apiKey,
		location: location,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		logger:   logger,
		now:      time.Now,
	}
}

// cityResponse is the subset of GET /city the service consumes.
type cityResponse struct {
	Status string `json:"status"`
	Data   struct {
		Message string `json:"message"`
		Current *struct {
			Pollution *struct {
				AQIUS  *int   `json:"aqius"`
				MainUS string `json:"mainus"`
			} `json:"pollution"`
			Weather map[string]any `json:"weather"`
		} `json:"current"`
	} `json:"data"`
}

// FetchCurrentReading performs one rate-limited GET /city round trip.
// Errors cover transport failures, non-200 statuses, API-level failures and
// malformed bodies.
func (c *Client) FetchCurrentReading(ctx context.Context) (*airquality.Reading, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"city":    c.location.City,
			"state":   c.location.State,
			"country": c.location.Country,
			"key":     c.apiKey,
		}).
		Get("/city")
	if err != nil {
		return nil, fmt.Errorf("http request /city: %w", err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: /city returned %d: %s", ErrUpstream, resp.StatusCode(), truncate(body, 200))
	}

	var parsed cityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("%w: status=%q message=%q", ErrUpstream, parsed.Status, parsed.Data.Message)
	}

	current := parsed.Data.Current
	if current == nil || current.Pollution == nil || current.Pollution.AQIUS == nil {
		return nil, fmt.Errorf("decode response: missing current pollution: %s", truncate(body, 200))
	}
	if *current.Pollution.AQIUS < 0 {
		return nil, fmt.Errorf("decode response: negative aqius %d", *current.Pollution.AQIUS)
	}

	reading := &airquality.Reading{
		AQI:           *current.Pollution.AQIUS,
		MainPollutant: current.Pollution.MainUS,
		CapturedAt:    c.now(),
	}
	if current.Weather != nil {
		w := current.Weather
		windSpeed, _ := provider.Number(w["ws"])
		reading.Weather = &airquality.Weather{
			Temperature: provider.Int(w["tp"], 0),
			Humidity:    provider.Int(w["hu"], 0),
			WindSpeed:   windSpeed,
			Pressure:    provider.Int(w["pr"], 0),
		}
	}

	c.logger.Debug("IQAir reading fetched",
		"aqi", reading.AQI, "pollutant", reading.MainPollutant)
	return reading, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
