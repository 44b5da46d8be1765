package responder

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbusdns/beacon/internal/security"
)

// Option is a functional option for configuring a Responder.
//
// This pattern allows flexible configuration without breaking API compatibility.
//
// T044: Implement functional options pattern
type Option func(*Responder) error

// WithHostname sets a custom hostname for the responder.
//
// If not provided, the system hostname will be used.
//
// Parameters:
//   - hostname: Custom hostname (e.g., "myhost.local")
//
// Returns:
//   - Option: Configuration function
//
// Example:
//
//	r, err := New(ctx, WithHostname("mydevice.local"))
//
// T044: WithHostname option
func WithHostname(hostname string) Option {
	return func(r *Responder) error {
		r.hostname = hostname
		return nil
	}
}

// WithLogger sets the structured logger used for the responder's send
// failures, decode failures, and repository warnings. Defaults to a
// disabled logger, so a library consumer pays nothing unless they opt in.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Responder) error {
		r.logger = logger
		return nil
	}
}

// WithRateLimit configures the per-source-IP query rate limit applied to
// inbound packets before they reach the Record Repository. threshold is
// queries/second; cooldown is how long a source stays blocked after
// exceeding it.
func WithRateLimit(threshold int, cooldown time.Duration) Option {
	return func(r *Responder) error {
		r.rateLimiter = security.NewRateLimiter(threshold, cooldown, 10000)
		return nil
	}
}
