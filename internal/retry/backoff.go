// Package retry computes the delays between attempts of a failed run.
//
// Delays grow exponentially from InitialInterval by Multiplier and are capped
// at MaxInterval. With jitter enabled the delay is drawn uniformly from
// [0, capped delay] ("full jitter"). Randomness is supplied by the caller so
// that Temporal workflows can record it through a side effect and replay
// deterministically.
package retry

import (
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-promptloop/internal/configuration"
)

// minInterval keeps a misconfigured policy from hot looping.
const minInterval = time.Millisecond

// Base returns the un-jittered delay before retry number n (1-based: the
// delay after the first failed attempt is Base(cfg, 1)).
func Base(cfg configuration.RetryConfig, n int) time.Duration {
	d := cfg.InitialInterval
	if d < minInterval {
		d = minInterval
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}

	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if cfg.MaxInterval > 0 && d >= cfg.MaxInterval {
			return cfg.MaxInterval
		}
	}
	if cfg.MaxInterval > 0 && d > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return d
}

// Delay applies jitter to Base. fraction must lie in [0, 1); it is ignored
// when the policy disables jitter.
func Delay(cfg configuration.RetryConfig, n int, fraction float64) time.Duration {
	base := Base(cfg, n)
	if !cfg.UseJitter {
		return base
	}
	switch {
	case fraction < 0:
		fraction = 0
	case fraction >= 1:
		fraction = 1
	}
	// Millisecond granularity, inclusive of the cap.
	ms := int64(fraction * float64(base.Milliseconds()+1))
	if ms > base.Milliseconds() {
		ms = base.Milliseconds()
	}
	return time.Duration(ms) * time.Millisecond
}

// Fraction draws a jitter fraction in [0, 1).
func Fraction() float64 {
	return rand.Float64() // #nosec G404 -- non-cryptographic jitter is appropriate here
}

// Remaining reports whether another attempt is allowed after attempt
// (1-based) has failed.
func Remaining(cfg configuration.RetryConfig, attempt int) bool {
	return attempt < cfg.MaxAttempts
}
