package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"candle-signals/internal/logging"
)

// RequestPriority decides how much of the weight budget a request may use.
// Higher priority requests get more lenient thresholds.
type RequestPriority int

const (
	// PriorityNormal - interactive analysis and one-off scans, up to 80%
	PriorityNormal RequestPriority = iota

	// PriorityHigh - requests that must go through, up to 95%
	PriorityHigh

	// PriorityLow - background refresh scans, up to 50%; throttled first
	PriorityLow
)

// String returns a human-readable priority name
func (p RequestPriority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

func (p RequestPriority) threshold() float64 {
	switch p {
	case PriorityHigh:
		return 0.95
	case PriorityLow:
		return 0.50
	default:
		return 0.80
	}
}

// AcquireResult represents the result of a non-blocking TryAcquire attempt
type AcquireResult struct {
	Acquired     bool          // Whether the slot was successfully acquired
	WaitTime     time.Duration // Suggested wait time if not acquired
	Reason       string        // Explanation for denial (empty if acquired)
	WeightBudget int           // Remaining weight budget after this request
}

// DefaultWeightPerMinute is the spot API request weight budget
const DefaultWeightPerMinute = 1200

// Endpoint weights for the spot API
var endpointWeights = map[string]int{
	klinesEndpoint:         2,
	"/api/v3/exchangeInfo": 20,
	"/api/v3/ticker/price": 2,
}

func getEndpointWeight(endpoint string) int {
	if w, ok := endpointWeights[endpoint]; ok {
		return w
	}
	return 1
}

// RateLimiter tracks request weight per one-minute window and backs off
// after the exchange answers 429 or 418
type RateLimiter struct {
	mu sync.Mutex

	maxWeight     int
	currentWeight int
	weightResetAt time.Time

	circuitOpen       bool
	banUntil          time.Time
	consecutiveErrors int

	now func() time.Time
	log *logging.Logger
}

// NewRateLimiter creates a limiter with the given per-minute weight budget
func NewRateLimiter(maxWeight int) *RateLimiter {
	if maxWeight <= 0 {
		maxWeight = DefaultWeightPerMinute
	}
	r := &RateLimiter{
		maxWeight: maxWeight,
		now:       time.Now,
		log:       logging.WithComponent("rate-limiter"),
	}
	r.weightResetAt = r.now().Add(time.Minute)
	return r
}

// TryAcquire atomically checks the budget and records the request weight
func (r *RateLimiter) TryAcquire(endpoint string, priority RequestPriority) AcquireResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if now.After(r.weightResetAt) {
		r.currentWeight = 0
		r.weightResetAt = now.Add(time.Minute)
	}

	if r.circuitOpen {
		if now.Before(r.banUntil) {
			return AcquireResult{
				WaitTime: r.banUntil.Sub(now),
				Reason:   "circuit_breaker_open",
			}
		}
		r.circuitOpen = false
		r.log.Info("Circuit breaker closed (ban expired)")
	}

	weight := getEndpointWeight(endpoint)
	threshold := int(float64(r.maxWeight) * priority.threshold())

	if r.currentWeight+weight > threshold {
		wait := r.weightResetAt.Sub(now)
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		return AcquireResult{
			WaitTime:     wait,
			Reason:       fmt.Sprintf("weight_limit_exceeded_for_%s_priority", priority),
			WeightBudget: threshold - r.currentWeight,
		}
	}

	r.currentWeight += weight
	r.consecutiveErrors = 0

	return AcquireResult{
		Acquired:     true,
		WeightBudget: threshold - r.currentWeight,
	}
}

// Wait blocks until a slot is acquired or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, endpoint string, priority RequestPriority) error {
	for {
		res := r.TryAcquire(endpoint, priority)
		if res.Acquired {
			return nil
		}

		r.log.Debug("Waiting for rate limit slot", "endpoint", endpoint, "reason", res.Reason, "wait", res.WaitTime.String())

		timer := time.NewTimer(res.WaitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RecordRateLimitHit opens the circuit for the given duration, or an
// exponential backoff capped at 30 minutes when none is given
func (r *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++

	if retryAfter <= 0 {
		retryAfter = time.Duration(1<<uint(r.consecutiveErrors)) * time.Minute
		if retryAfter > 30*time.Minute {
			retryAfter = 30 * time.Minute
		}
	}

	r.circuitOpen = true
	r.banUntil = r.now().Add(retryAfter)

	r.log.Warn("Circuit breaker open", "ban_until", r.banUntil.Format(time.RFC3339), "consecutive_errors", r.consecutiveErrors)
}

// IsCircuitOpen reports whether requests are currently blocked
func (r *RateLimiter) IsCircuitOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.circuitOpen && r.now().Before(r.banUntil)
}

// GetStatus returns the current limiter state
func (r *RateLimiter) GetStatus() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	resetIn := r.weightResetAt.Sub(r.now())
	if resetIn < 0 {
		resetIn = 0
	}

	status := map[string]interface{}{
		"circuit_open":       r.circuitOpen,
		"current_weight":     r.currentWeight,
		"max_weight":         r.maxWeight,
		"weight_usage_pct":   float64(r.currentWeight) / float64(r.maxWeight) * 100,
		"consecutive_errors": r.consecutiveErrors,
		"reset_in_seconds":   int(resetIn.Seconds()),
	}
	if r.circuitOpen {
		status["ban_until"] = r.banUntil.Format(time.RFC3339)
	}
	return status
}
