package marketdata

import (
	"context"

	"dexwatch/internal/domain"
)

// Source is one attempt in the ordered resolution chain. Fetch returns
// ErrNotFound when the source has no usable pair for the token,
// ErrRateLimited when the upstream throttled the call, and any other
// error for upstream or parse failures.
//
// Snapshots follow one fixed convention regardless of source: BaseToken
// is always the monitored token, QuoteToken the other side.
type Source interface {
	Name() string
	Fetch(ctx context.Context, token domain.MonitoredToken) (*domain.MarketSnapshot, error)
}
