package forecast

import "errors"

// Error taxonomy shared by the data sources, the scenario engine and the
// refresh loop. Callers classify failures with errors.Is and decide whether
// a retry can help:
//
//   - ErrValidation          bad caller input, never retried
//   - ErrDataUnavailable     no matching rows upstream, retried on the next tick
//   - ErrDataIntegrity       upstream data violates an invariant, not retried
//   - ErrAuth                credential failure, fatal until credentials change
//   - ErrRateLimited         transient, retried with backoff
//   - ErrUpstreamUnavailable transient, retried with backoff
//   - ErrInsufficientOverlap timelines do not overlap enough, not retried
var (
	ErrValidation          = errors.New("validation failed")
	ErrDataUnavailable     = errors.New("data unavailable")
	ErrDataIntegrity       = errors.New("data integrity violation")
	ErrAuth                = errors.New("authentication failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInsufficientOverlap = errors.New("insufficient timeline overlap")
)

// Transient reports whether err is worth retrying with backoff.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable)
}
