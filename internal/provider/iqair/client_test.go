package iqair

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/almaty-air/internal/config"
)

var almaty = config.Location{City: "Almaty", State: "Almaty Oblysy", Country: "Kazakhstan", Name: "Almaty"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// High rate so tests never wait on the limiter.
	return NewClient(srv.URL, "secret", almaty, 6000, nil)
}

func TestFetchCurrentReading_Success(t *testing.T) {
	fixed := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/city", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Almaty", q.Get("city"))
		assert.Equal(t, "Almaty Oblysy", q.Get("state"))
		assert.Equal(t, "Kazakhstan", q.Get("country"))
		assert.Equal(t, "secret", q.Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {
				"city": "Almaty",
				"current": {
					"pollution": {"ts": "2026-01-10T08:00:00.000Z", "aqius": 168, "mainus": "p2"},
					"weather": {"tp": -7, "hu": 85, "ws": 1.2, "pr": 1031}
				}
			}
		}`))
	})
	c.now = func() time.Time { return fixed }

	r, err := c.FetchCurrentReading(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 168, r.AQI)
	assert.Equal(t, "p2", r.MainPollutant)
	assert.Equal(t, fixed, r.CapturedAt)
	require.NotNil(t, r.Weather)
	assert.Equal(t, -7, r.Weather.Temperature)
	assert.Equal(t, 85, r.Weather.Humidity)
	assert.InDelta(t, 1.2, r.Weather.WindSpeed, 1e-9)
	assert.Equal(t, 1031, r.Weather.Pressure)
}

func TestFetchCurrentReading_NoWeather(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"current":{"pollution":{"aqius":42,"mainus":"o3"}}}}`))
	})

	r, err := c.FetchCurrentReading(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, r.AQI)
	assert.Nil(t, r.Weather)
}

func TestFetchCurrentReading_Failures(t *testing.T) {
	cases := map[string]struct {
		status   int
		body     string
		upstream bool
	}{
		"server error":       {http.StatusInternalServerError, `oops`, true},
		"api failure status": {http.StatusOK, `{"status":"fail","data":{"message":"city_not_found"}}`, true},
		"malformed json":     {http.StatusOK, `{"status":`, false},
		"missing pollution":  {http.StatusOK, `{"status":"success","data":{"current":{}}}`, false},
		"negative aqi":       {http.StatusOK, `{"status":"success","data":{"current":{"pollution":{"aqius":-3}}}}`, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			r, err := c.FetchCurrentReading(context.Background())
			require.Error(t, err)
			assert.Nil(t, r)
			assert.Equal(t, tc.upstream, errors.Is(err, ErrUpstream))
		})
	}
}

func TestFetchCurrentReading_ContextTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchCurrentReading(ctx)
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate([]byte("abc"), 5))
	assert.Equal(t, "ab...", truncate([]byte("abcdef"), 2))
}
