package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/almaty-air/internal/airquality"
	"github.com/albapepper/almaty-air/internal/api/handler"
	"github.com/albapepper/almaty-air/internal/cache"
)

// hangingProvider blocks every fetch until its context expires.
type hangingProvider struct {
	calls atomic.Int32
}

func (p *hangingProvider) FetchCurrentReading(ctx context.Context) (*airquality.Reading, error) {
	p.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCurrentAir_StaleCacheNeverFetchesUpstream(t *testing.T) {
	const fetchTimeout = 200 * time.Millisecond
	p := &hangingProvider{}
	readings := cache.New(p, time.Minute, fetchTimeout, nil)
	require.True(t, readings.Warm(&airquality.Reading{
		AQI:        88,
		CapturedAt: time.Now().Add(-time.Hour),
	}))

	cfg := testConfig()
	h := NewRouter(handler.New(fakeDB{}, readings, fakeScheduler{}, cfg), cfg)

	var wg sync.WaitGroup
	codes := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- do(t, h, "/api/v1/air/current").Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, int32(0), p.calls.Load())

	// A scheduler refresh is bounded by one fetch timeout, not queued
	// behind API traffic.
	start := time.Now()
	r, err := readings.Get(context.Background(), true)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 88, r.AQI)
	assert.Less(t, elapsed, 2*fetchTimeout)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCurrentAir_EmptyCacheIsUnavailable(t *testing.T) {
	p := &hangingProvider{}
	readings := cache.New(p, time.Minute, time.Second, nil)
	cfg := testConfig()
	h := NewRouter(handler.New(fakeDB{}, readings, fakeScheduler{}, cfg), cfg)

	rec := do(t, h, "/api/v1/air/current")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(0), p.calls.Load())
}
