// Package circuitbreaker stops the gateway from hammering a backend that
// keeps failing at the transport level.
//
// A breaker has three states:
//
//   - CLOSED: requests pass through
//   - OPEN: requests are refused until the cooldown elapses
//   - HALF-OPEN: a single trial request decides whether to close again
//
// Only transport failures count. A backend that answers, even with a 5xx,
// is reachable and resets the breaker.
package circuitbreaker
