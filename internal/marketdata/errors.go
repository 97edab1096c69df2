package marketdata

import "errors"

// Resolution failure taxonomy. NotFound and upstream errors are per-pair;
// RateLimited must reach the scheduler so it can pause the loop.
var (
	// ErrNotFound means no source produced a usable pair for the token.
	ErrNotFound = errors.New("no matching pair found")

	// ErrRateLimited means an upstream answered with HTTP 429. It is
	// never swallowed or retried here.
	ErrRateLimited = errors.New("upstream rate limited")
)
