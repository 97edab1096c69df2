package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dexwatch/internal/domain"
)

// DefaultSearchTimeout bounds one search API round trip.
const DefaultSearchTimeout = 15 * time.Second

// SearchSource resolves pairs through a keyword search API
// (Dexscreener-style). It is the fallback source and the only one subject
// to aggressive upstream throttling, so every call is followed by a
// configurable delay.
type SearchSource struct {
	baseURL      string
	venueID      string
	chainID      string
	quoteSymbols []string
	callDelay    time.Duration
	client       *http.Client
	logger       *log.Logger
}

// SearchSourceOptions configures SearchSource.
type SearchSourceOptions struct {
	BaseURL string
	// VenueID filters results to one DEX (substring match on the
	// reported venue identifier).
	VenueID string
	ChainID string
	// QuoteSymbols lists the preferred quote-token symbols, highest
	// priority first. Iteration stops at the first symbol with a match.
	QuoteSymbols []string
	// CallDelay is applied after every search call regardless of
	// outcome. Zero disables it.
	CallDelay  time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewSearchSource creates the keyword search source.
func NewSearchSource(opts SearchSourceOptions) *SearchSource {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultSearchTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	symbols := make([]string, len(opts.QuoteSymbols))
	for i, s := range opts.QuoteSymbols {
		symbols[i] = strings.ToUpper(s)
	}

	return &SearchSource{
		baseURL:      opts.BaseURL,
		venueID:      strings.ToLower(opts.VenueID),
		chainID:      strings.ToLower(opts.ChainID),
		quoteSymbols: symbols,
		callDelay:    opts.CallDelay,
		client:       client,
		logger:       logger,
	}
}

var _ Source = (*SearchSource)(nil)

func (s *SearchSource) Name() string { return "search" }

// Search API wire shapes.
type searchResponse struct {
	Pairs []searchPair `json:"pairs"`
}

type searchPair struct {
	ChainID     string          `json:"chainId"`
	DexID       string          `json:"dexId"`
	PairAddress string          `json:"pairAddress"`
	BaseToken   searchToken     `json:"baseToken"`
	QuoteToken  searchToken     `json:"quoteToken"`
	PriceUSD    string          `json:"priceUsd"`
	Volume      searchVolume    `json:"volume"`
	Liquidity   searchLiquidity `json:"liquidity"`
}

type searchToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type searchVolume struct {
	H24 float64 `json:"h24"`
}

type searchLiquidity struct {
	USD float64 `json:"usd"`
}

// Fetch iterates the preferred quote symbols in priority order, stopping
// at the first one that yields a usable pair. A 429 from the upstream
// propagates as ErrRateLimited immediately.
func (s *SearchSource) Fetch(ctx context.Context, token domain.MonitoredToken) (*domain.MarketSnapshot, error) {
	var lastErr error

	for _, quoteSymbol := range s.quoteSymbols {
		pair, err := s.searchQuote(ctx, token, quoteSymbol)

		// Throttle before acting on the outcome: the upstream counts
		// failed calls too.
		if delayErr := s.delay(ctx); delayErr != nil {
			return nil, delayErr
		}

		if err != nil {
			if err == ErrRateLimited {
				return nil, err
			}
			s.logger.Printf("WARN: search %s/%s failed: %v", token.Symbol, quoteSymbol, err)
			lastErr = err
			continue
		}
		if pair == nil {
			continue
		}

		return s.snapshotFromPair(token, *pair), nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("search: all quote symbols failed: %w", lastErr)
	}
	return nil, ErrNotFound
}

// searchQuote issues one search call for "{SYMBOL}/{QUOTE}" and picks the
// highest-liquidity match, or nil when nothing qualifies.
func (s *SearchSource) searchQuote(ctx context.Context, token domain.MonitoredToken, quoteSymbol string) (*searchPair, error) {
	query := fmt.Sprintf("%s/%s", token.Symbol, quoteSymbol)
	reqURL := fmt.Sprintf("%s?q=%s", s.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var searchResp searchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	targetAddr := strings.ToLower(token.Address)
	var best *searchPair
	for i := range searchResp.Pairs {
		pair := &searchResp.Pairs[i]
		if !s.matches(pair, targetAddr, quoteSymbol) {
			continue
		}
		if best == nil || pair.Liquidity.USD > best.Liquidity.USD {
			best = pair
		}
	}
	return best, nil
}

// matches applies the venue, chain, token, quote-symbol and liquidity
// filters to one search result.
func (s *SearchSource) matches(pair *searchPair, targetAddr, quoteSymbol string) bool {
	if !strings.Contains(strings.ToLower(pair.DexID), s.venueID) {
		return false
	}
	if strings.ToLower(pair.ChainID) != s.chainID {
		return false
	}

	baseAddr := strings.ToLower(pair.BaseToken.Address)
	quoteAddr := strings.ToLower(pair.QuoteToken.Address)
	if baseAddr != targetAddr && quoteAddr != targetAddr {
		return false
	}

	// The side that is not the target must carry the quote symbol.
	var otherSymbol string
	if baseAddr == targetAddr {
		otherSymbol = pair.QuoteToken.Symbol
	} else {
		otherSymbol = pair.BaseToken.Symbol
	}
	if !strings.EqualFold(otherSymbol, quoteSymbol) {
		return false
	}

	return pair.Liquidity.USD > 0
}

func (s *SearchSource) snapshotFromPair(token domain.MonitoredToken, pair searchPair) *domain.MarketSnapshot {
	targetAddr := strings.ToLower(token.Address)

	var baseRaw, quoteRaw searchToken
	if strings.ToLower(pair.BaseToken.Address) == targetAddr {
		baseRaw, quoteRaw = pair.BaseToken, pair.QuoteToken
	} else {
		baseRaw, quoteRaw = pair.QuoteToken, pair.BaseToken
	}

	price, err := strconv.ParseFloat(pair.PriceUSD, 64)
	if err != nil {
		price = 0
	}

	return &domain.MarketSnapshot{
		PairAddress:      strings.ToLower(pair.PairAddress),
		ChainID:          strings.ToLower(pair.ChainID),
		PairName:         fmt.Sprintf("%s/%s", baseRaw.Symbol, quoteRaw.Symbol),
		BaseToken:        tokenSideFromSearch(baseRaw),
		QuoteToken:       tokenSideFromSearch(quoteRaw),
		CurrentPrice:     price,
		CurrentVolume:    pair.Volume.H24,
		CurrentLiquidity: pair.Liquidity.USD,
	}
}

func tokenSideFromSearch(t searchToken) domain.TokenSide {
	return domain.TokenSide{
		Address: strings.ToLower(t.Address),
		Symbol:  t.Symbol,
		Name:    t.Name,
		// The search API does not report decimals; the on-chain
		// verifier fetches them on demand.
		Decimals: 0,
	}
}

func (s *SearchSource) delay(ctx context.Context) error {
	if s.callDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.callDelay):
		return nil
	}
}
