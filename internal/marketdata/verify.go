package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
)

// ErrUnsupportedQuote means the pair's quote token is neither the USD
// stable nor the native-wrapped asset, so on-chain USD liquidity cannot
// be derived.
var ErrUnsupportedQuote = errors.New("unsupported quote token for on-chain liquidity")

// pairReader is the contract-read surface the verifier needs.
type pairReader interface {
	GetReserves(ctx context.Context, pairAddress string) (*evm.Reserves, error)
	Token0(ctx context.Context, pairAddress string) (string, error)
	TokenDecimals(ctx context.Context, tokenAddress string) (int, error)
}

// OnChainVerifier recomputes a pair's USD liquidity from its reserves.
// Reserves are the on-chain source of truth; upstream-reported values are
// only kept when verification is impossible.
type OnChainVerifier struct {
	reader       pairReader
	stableSymbol string
	nativeSymbol string
	// refPairAddress is a known stable/native pool used to price the
	// native asset in USD.
	refPairAddress string
	nativeAddress  string
	logger         *log.Logger
}

// OnChainVerifierOptions configures OnChainVerifier.
type OnChainVerifierOptions struct {
	Reader         pairReader
	StableSymbol   string // USD-pegged quote, e.g. BUSD
	NativeSymbol   string // native-wrapped quote, e.g. WBNB
	RefPairAddress string // stable/native reference pool
	NativeAddress  string // native-wrapped token contract
	Logger         *log.Logger
}

// NewOnChainVerifier creates a reserve-based liquidity verifier.
func NewOnChainVerifier(opts OnChainVerifierOptions) *OnChainVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &OnChainVerifier{
		reader:         opts.Reader,
		stableSymbol:   strings.ToUpper(opts.StableSymbol),
		nativeSymbol:   strings.ToUpper(opts.NativeSymbol),
		refPairAddress: strings.ToLower(opts.RefPairAddress),
		nativeAddress:  strings.ToLower(opts.NativeAddress),
		logger:         logger,
	}
}

// Liquidity reads the pair's reserves and derives USD liquidity. For a
// stable quote this is twice the quote-side reserve; for a native-wrapped
// quote, twice the native-side reserve priced through the reference pair.
// Any other quote returns ErrUnsupportedQuote.
func (v *OnChainVerifier) Liquidity(ctx context.Context, snap *domain.MarketSnapshot) (float64, error) {
	quoteSymbol := strings.ToUpper(snap.QuoteToken.Symbol)
	if quoteSymbol != v.stableSymbol && quoteSymbol != v.nativeSymbol {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedQuote, snap.QuoteToken.Symbol)
	}

	reserves, err := v.reader.GetReserves(ctx, snap.PairAddress)
	if err != nil {
		return 0, fmt.Errorf("read reserves of %s: %w", snap.PairAddress, err)
	}
	token0, err := v.reader.Token0(ctx, snap.PairAddress)
	if err != nil {
		return 0, fmt.Errorf("read token0 of %s: %w", snap.PairAddress, err)
	}

	quoteIsToken0 := strings.EqualFold(token0, snap.QuoteToken.Address)

	quoteDecimals, err := v.resolveDecimals(ctx, snap.QuoteToken)
	if err != nil {
		return 0, err
	}

	quoteReserve := reserves.Reserve1
	if quoteIsToken0 {
		quoteReserve = reserves.Reserve0
	}
	quoteUnits := evm.ReserveToFloat(quoteReserve, quoteDecimals)

	if quoteSymbol == v.stableSymbol {
		return quoteUnits * 2, nil
	}

	nativePrice, err := v.nativePriceUSD(ctx)
	if err != nil {
		return 0, fmt.Errorf("price native asset: %w", err)
	}
	return quoteUnits * nativePrice * 2, nil
}

// resolveDecimals prefers decimals already known from the upstream
// sources, fetching on-chain only when missing.
func (v *OnChainVerifier) resolveDecimals(ctx context.Context, side domain.TokenSide) (int, error) {
	if side.Decimals > 0 {
		return side.Decimals, nil
	}
	decimals, err := v.reader.TokenDecimals(ctx, side.Address)
	if err != nil {
		return 0, fmt.Errorf("fetch decimals of %s: %w", side.Address, err)
	}
	return decimals, nil
}

// nativePriceUSD derives the native/USD rate from the reference pair's
// reserves. Both sides of the reference pool are 18-decimal assets.
func (v *OnChainVerifier) nativePriceUSD(ctx context.Context) (float64, error) {
	reserves, err := v.reader.GetReserves(ctx, v.refPairAddress)
	if err != nil {
		return 0, fmt.Errorf("read reference pair reserves: %w", err)
	}
	token0, err := v.reader.Token0(ctx, v.refPairAddress)
	if err != nil {
		return 0, fmt.Errorf("read reference pair token0: %w", err)
	}

	native := evm.ReserveToFloat(reserves.Reserve0, 18)
	stable := evm.ReserveToFloat(reserves.Reserve1, 18)
	if !strings.EqualFold(token0, v.nativeAddress) {
		native, stable = stable, native
	}
	if native == 0 {
		return 0, fmt.Errorf("reference pair has zero native reserve")
	}
	return stable / native, nil
}
