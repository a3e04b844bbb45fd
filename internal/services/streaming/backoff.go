package streamingsvc

import (
	"math"
	"math/rand"
	"time"
)

type BackoffType string

const (
	BackoffExp       BackoffType = "exp"
	BackoffExpJitter BackoffType = "exp-jitter"
	BackoffFixed     BackoffType = "fixed"
	BackoffNone      BackoffType = "none"
)

// RetryPolicy paces bounded retry loops such as reconnection attempts.
type RetryPolicy struct {
	Type        BackoffType
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts uint32
}

func defaultReconnectPolicy(base time.Duration, attempts int) RetryPolicy {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if attempts <= 0 {
		attempts = 3
	}
	return RetryPolicy{Type: BackoffExpJitter, Base: base, Cap: 5 * time.Second, Factor: 2.0, MaxAttempts: uint32(attempts)}
}

// computeBackoff returns the pause before retry number attempts (1-based).
func computeBackoff(pol RetryPolicy, attempts uint32) time.Duration {
	switch pol.Type {
	case BackoffNone:
		return 0
	case BackoffFixed:
		if pol.Base <= 0 {
			return 0
		}
		if pol.Cap > 0 && pol.Base > pol.Cap {
			return pol.Cap
		}
		return pol.Base
	case BackoffExp, BackoffExpJitter:
		base := pol.Base
		if base <= 0 {
			base = 200 * time.Millisecond
		}
		factor := pol.Factor
		if factor <= 0 {
			factor = 2.0
		}
		delay := float64(base) * math.Pow(factor, float64(attempts-1))
		d := time.Duration(delay)
		if pol.Cap > 0 && d > pol.Cap {
			d = pol.Cap
		}
		if pol.Type == BackoffExpJitter {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(d)))
		}
		return d
	default:
		return 0
	}
}
