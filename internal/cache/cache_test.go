package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/almaty-air/internal/airquality"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	next     *airquality.Reading
	err      error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (p *fakeProvider) FetchCurrentReading(ctx context.Context) (*airquality.Reading, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	p.mu.Lock()
	p.calls++
	next, err, delay := p.next, p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	// Hand out a fresh instance per fetch, as a real client would.
	r := *next
	return &r, nil
}

func (p *fakeProvider) set(r *airquality.Reading, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next, p.err = r, err
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(p *fakeProvider, opts ...Option) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(p, 10*time.Minute, time.Second, nil, opts...), clock
}

func TestGet_ReusesFreshReadingWithinTTL(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	c, clock := newTestCache(p)

	first, err := c.Get(context.Background(), false)
	require.NoError(t, err)

	clock.advance(9*time.Minute + 59*time.Second)
	second, err := c.Get(context.Background(), false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, p.callCount())
}

func TestGet_RefetchesAfterTTL(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	c, clock := newTestCache(p)

	first, err := c.Get(context.Background(), false)
	require.NoError(t, err)

	clock.advance(10 * time.Minute)
	p.set(&airquality.Reading{AQI: 120}, nil)
	second, err := c.Get(context.Background(), false)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 120, second.AQI)
	assert.Equal(t, 2, p.callCount())
}

func TestGet_ForceRefreshAlwaysFetches(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	c, _ := newTestCache(p)

	_, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, p.callCount())
}

func TestGet_ServesStaleOnFailure(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	c, clock := newTestCache(p)

	first, err := c.Get(context.Background(), false)
	require.NoError(t, err)

	p.set(nil, errors.New("boom"))
	clock.advance(time.Hour)

	stale, err := c.Get(context.Background(), true)
	require.NoError(t, err)
	assert.Same(t, first, stale)

	// A failed fetch does not age the entry out either.
	stale, err = c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, first, stale)
	assert.Equal(t, 3, p.callCount())

	stats := c.Stats()
	assert.Equal(t, 2, stats["failures"])
	assert.Equal(t, "boom", stats["last_error"])
}

func TestGet_UnavailableWithoutPriorReading(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	c, _ := newTestCache(p)

	r, err := c.Get(context.Background(), false)

	assert.Nil(t, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGet_FetchTimeoutCountsAsFailure(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}, delay: time.Minute}
	c := New(p, time.Minute, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := c.Get(context.Background(), true)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGet_SerializesConcurrentRefreshes(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}, delay: 5 * time.Millisecond}
	c, _ := newTestCache(p)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The first caller fills the slot; the rest see a fresh reading.
	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, int32(1), p.maxSeen.Load())
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []int
}

func (o *recordingObserver) ObserveReading(_ context.Context, r *airquality.Reading) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, r.AQI)
}

func (o *recordingObserver) observed() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.seen...)
}

type blockingObserver struct {
	release chan struct{}
	done    chan int
}

func (o *blockingObserver) ObserveReading(_ context.Context, r *airquality.Reading) {
	<-o.release
	o.done <- r.AQI
}

func TestGet_NotifiesObserversOnlyOnFreshFetch(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	obs := &recordingObserver{}
	c, _ := newTestCache(p, WithObserver(obs))

	_, _ = c.Get(context.Background(), false)
	_, _ = c.Get(context.Background(), false) // cache hit
	p.set(nil, errors.New("down"))
	_, _ = c.Get(context.Background(), true) // stale

	require.Eventually(t, func() bool { return len(obs.observed()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int{80}, obs.observed())
}

func TestGet_SlowObserverDoesNotDelayCaller(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	obs := &blockingObserver{release: make(chan struct{}), done: make(chan int, 1)}
	c, _ := newTestCache(p, WithObserver(obs))

	returned := make(chan struct{})
	go func() {
		_, _ = c.Get(context.Background(), false)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Get blocked on a slow observer")
	}

	close(obs.release)
	select {
	case aqi := <-obs.done:
		assert.Equal(t, 80, aqi)
	case <-time.After(time.Second):
		t.Fatal("observer never ran")
	}
}

func TestGet_ObserversSkipOlderReadings(t *testing.T) {
	obs := &recordingObserver{}
	c := New(&fakeProvider{}, time.Minute, time.Second, nil, WithObserver(obs))
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	c.notify(context.Background(), &airquality.Reading{AQI: 90, CapturedAt: base.Add(time.Minute)})
	c.notify(context.Background(), &airquality.Reading{AQI: 70, CapturedAt: base})

	assert.Equal(t, []int{90}, obs.observed())
}

func TestPeek_NeverFetches(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	c, clock := newTestCache(p)

	_, err := c.Peek()
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Get(context.Background(), false)
	require.NoError(t, err)

	clock.advance(time.Hour)
	got, err := c.Peek()
	require.NoError(t, err)
	assert.Equal(t, 80, got.AQI)
	assert.Equal(t, 1, p.callCount())
}

func TestPeek_EmptyAfterFailureCarriesCause(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	c, _ := newTestCache(p)

	_, _ = c.Get(context.Background(), false)
	_, err := c.Peek()

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, p.callCount())
}

func TestWarm(t *testing.T) {
	p := &fakeProvider{next: &airquality.Reading{AQI: 80}}
	c, clock := newTestCache(p)

	snap := &airquality.Reading{AQI: 55, CapturedAt: clock.now().Add(-2 * time.Minute)}
	require.True(t, c.Warm(snap))
	assert.False(t, c.Warm(&airquality.Reading{AQI: 1}))

	got, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, snap, got)
	assert.Equal(t, 0, p.callCount())

	// The warmed entry ages from its capture time.
	clock.advance(8 * time.Minute)
	got, err = c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 80, got.AQI)
	assert.Equal(t, 1, p.callCount())
}
