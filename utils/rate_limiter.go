package utils

import (
	"sync"
	"time"
)

// pollInterval はトークン待機時の再チェック間隔です
const pollInterval = 10 * time.Millisecond

// RateLimiter はトークンバケット方式のレートリミッターです
//
// トークンは毎秒rate個の割合で補充され、リクエストごとに1個消費されます。
// 補充はAcquire呼び出し時に経過時間から遅延計算されるため、
// アイドル時のコストはゼロです。複数goroutineから安全に使用できます。
type RateLimiter struct {
	rate  float64
	burst int

	mu     sync.Mutex
	tokens float64
	last   time.Time

	// テストで決定的な時計を注入するためのフック
	now   func() time.Time
	sleep func(time.Duration)
}

// NewRateLimiter は新しいレートリミッターを作成します
// （毎秒requestsPerSecond件、バーストは最大burst件まで）
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return NewRateLimiterWithClock(requestsPerSecond, burst, time.Now, time.Sleep)
}

// NewRateLimiterWithClock は時計とスリープ関数を指定してレートリミッターを作成します
func NewRateLimiterWithClock(requestsPerSecond float64, burst int, now func() time.Time, sleep func(time.Duration)) *RateLimiter {
	r := &RateLimiter{
		rate:   requestsPerSecond,
		burst:  burst,
		tokens: float64(burst),
		now:    now,
		sleep:  sleep,
	}
	r.last = now()
	return r
}

// Acquire はリクエスト実行の許可を取得します
//
// トークンが利用可能になるまでブロックし、1個消費してtrueを返します。
// timeoutまでに取得できなかった場合はfalseを返します。
func (r *RateLimiter) Acquire(timeout time.Duration) bool {
	deadline := r.now().Add(timeout)

	for r.now().Before(deadline) {
		r.mu.Lock()
		current := r.now()
		// 経過時間に応じてトークンを補充（上限はバースト数）
		elapsed := current.Sub(r.last).Seconds()
		r.tokens = min(float64(r.burst), r.tokens+elapsed*r.rate)
		r.last = current

		if r.tokens >= 1.0 {
			r.tokens -= 1.0
			r.mu.Unlock()
			return true
		}
		r.mu.Unlock()

		r.sleep(pollInterval)
	}

	return false // タイムアウト
}

// RateLimiterStatus はレートリミッターの現在の状態を表します
type RateLimiterStatus struct {
	AvailableTokens    float64
	MaxTokens          int
	RatePerSecond      float64
	UtilizationPercent float64
}

// Status はデバッグ用に現在の状態を返します
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimiterStatus{
		AvailableTokens:    r.tokens,
		MaxTokens:          r.burst,
		RatePerSecond:      r.rate,
		UtilizationPercent: (1 - r.tokens/float64(r.burst)) * 100,
	}
}
