package chatconn

import (
	"fmt"
	"math"
	"time"
)

// RetryPolicy bounds reconnection. It is configuration and never mutated at runtime.
type RetryPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MinInterval time.Duration
}

// DefaultRetryPolicy returns the stock policy: three retries starting at 5s,
// attempts at least one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseDelay:   5 * time.Second,
		MinInterval: time.Second,
	}
}

// Validate checks that the policy is usable.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive: %s", p.BaseDelay)
	}
	if p.MinInterval < 0 {
		return fmt.Errorf("min interval cannot be negative: %s", p.MinInterval)
	}
	return nil
}

// Delay returns the wait before retry number retryCount (0-based):
// BaseDelay * 2^retryCount, saturating at the largest Duration.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.BaseDelay
	}
	if retryCount > 62 {
		retryCount = 62
	}
	factor := time.Duration(1) << uint(retryCount)
	if p.BaseDelay > math.MaxInt64/factor {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay * factor
}
