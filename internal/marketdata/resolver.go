package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"dexwatch/internal/domain"
	"dexwatch/internal/observability"
)

// discrepancyWarnPct triggers a warning when on-chain liquidity diverges
// from the upstream-reported value by more than this share of it.
const discrepancyWarnPct = 5.0

// Resolver runs the ordered source chain and on-chain verification to
// produce one MarketSnapshot per monitored token.
type Resolver struct {
	sources  []Source
	verifier *OnChainVerifier
	logger   *log.Logger
}

// ResolverOptions configures Resolver.
type ResolverOptions struct {
	// Sources are attempted in order; the first usable snapshot wins.
	Sources []Source
	// Verifier recomputes liquidity from reserves. Nil disables
	// verification.
	Verifier *OnChainVerifier
	Logger   *log.Logger
}

// NewResolver creates a resolver over the given source chain.
func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		sources:  opts.Sources,
		verifier: opts.Verifier,
		logger:   logger,
	}
}

// Resolve produces a fresh snapshot for the token. ErrRateLimited
// propagates untouched so the scheduler can pause; ErrNotFound means the
// whole chain came up empty; any other error is an upstream failure.
func (r *Resolver) Resolve(ctx context.Context, token domain.MonitoredToken) (*domain.MarketSnapshot, error) {
	var (
		snap    *domain.MarketSnapshot
		lastErr error
	)

	for _, source := range r.sources {
		s, err := source.Fetch(ctx, token)
		if err == nil {
			r.logger.Printf("resolved %s via %s source", token.Symbol, source.Name())
			observability.RecordResolution(source.Name())
			snap = s
			break
		}
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		r.logger.Printf("WARN: %s source failed for %s: %v", source.Name(), token.Symbol, err)
		lastErr = err
	}

	if snap == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("resolve %s: %w", token.Symbol, lastErr)
		}
		return nil, ErrNotFound
	}

	r.verifyLiquidity(ctx, snap)
	return snap, nil
}

// verifyLiquidity overrides the reported liquidity with the on-chain
// value when it can be derived; verification failures keep the reported
// value and only warn.
func (r *Resolver) verifyLiquidity(ctx context.Context, snap *domain.MarketSnapshot) {
	if r.verifier == nil {
		return
	}

	onChain, err := r.verifier.Liquidity(ctx, snap)
	if err != nil {
		if errors.Is(err, ErrUnsupportedQuote) {
			r.logger.Printf("WARN: skipping on-chain liquidity for %s: %v", snap.PairName, err)
		} else {
			r.logger.Printf("WARN: on-chain liquidity verification failed for %s, keeping reported value: %v", snap.PairName, err)
		}
		return
	}

	reported := snap.CurrentLiquidity
	if reported > 0 {
		diffPct := math.Abs(onChain-reported) / reported * 100
		if diffPct > discrepancyWarnPct {
			r.logger.Printf("WARN: liquidity discrepancy for %s: reported $%.2f, on-chain $%.2f (%.2f%%)",
				snap.PairName, reported, onChain, diffPct)
		}
	}
	snap.CurrentLiquidity = onChain
}
