package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock はテスト用の決定的な時計です（Sleepで時間が進みます）
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(rate float64, burst int) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	return NewRateLimiterWithClock(rate, burst, clock.Now, clock.Sleep), clock
}

func TestRateLimiterInitialBurst(t *testing.T) {
	limiter, clock := newTestLimiter(10, 10)
	start := clock.Now()

	// バースト分は待ち時間なしで取得できる
	for i := 0; i < 10; i++ {
		require.True(t, limiter.Acquire(5*time.Second), "acquire %d", i)
	}
	assert.Equal(t, start, clock.Now(), "バースト消費中は時間が進まないはず")
}

func TestRateLimiterBlocksWhenDepleted(t *testing.T) {
	limiter, clock := newTestLimiter(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Acquire(5*time.Second))
	}

	// バースト枯渇後の1件は 1/rate 以上の待ちが発生する
	start := clock.Now()
	require.True(t, limiter.Acquire(5*time.Second))
	waited := clock.Now().Sub(start)

	assert.GreaterOrEqual(t, waited, 100*time.Millisecond)
	assert.Less(t, waited, 300*time.Millisecond)
}

func TestRateLimiterTimeout(t *testing.T) {
	// 補充レート0では絶対にトークンが回復しない
	limiter, clock := newTestLimiter(0, 1)
	require.True(t, limiter.Acquire(time.Second))

	start := clock.Now()
	assert.False(t, limiter.Acquire(100*time.Millisecond))
	assert.GreaterOrEqual(t, clock.Now().Sub(start), 100*time.Millisecond)
}

func TestRateLimiterReplenishment(t *testing.T) {
	limiter, clock := newTestLimiter(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Acquire(time.Second))
	}

	// 0.5秒経過で5トークン回復する
	clock.Advance(500 * time.Millisecond)
	start := clock.Now()
	for i := 0; i < 5; i++ {
		require.True(t, limiter.Acquire(time.Second), "acquire %d", i)
	}
	assert.Equal(t, start, clock.Now())

	// 6件目は回復待ちでタイムアウトする
	assert.False(t, limiter.Acquire(50*time.Millisecond))
}

func TestRateLimiterCapsAtBurst(t *testing.T) {
	limiter, clock := newTestLimiter(10, 5)

	require.True(t, limiter.Acquire(time.Second))

	// 長時間放置してもバースト数を超えて貯まらない
	clock.Advance(100 * time.Second)
	for i := 0; i < 5; i++ {
		require.True(t, limiter.Acquire(time.Second), "acquire %d", i)
	}
	assert.False(t, limiter.Acquire(50*time.Millisecond))
}

func TestRateLimiterStatus(t *testing.T) {
	limiter, _ := newTestLimiter(10, 10)

	status := limiter.Status()
	assert.Equal(t, float64(10), status.AvailableTokens)
	assert.Equal(t, 10, status.MaxTokens)
	assert.Equal(t, float64(10), status.RatePerSecond)
	assert.Equal(t, float64(0), status.UtilizationPercent)

	require.True(t, limiter.Acquire(time.Second))
	status = limiter.Status()
	assert.InDelta(t, 9.0, status.AvailableTokens, 0.01)
	assert.InDelta(t, 10.0, status.UtilizationPercent, 0.5)
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	// 実時間で並行取得してもトークン計算が壊れないこと
	limiter := NewRateLimiter(1000, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Acquire(5 * time.Second) {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, acquired)
	status := limiter.Status()
	assert.GreaterOrEqual(t, status.AvailableTokens, float64(0))
}
