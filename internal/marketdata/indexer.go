package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dexwatch/internal/domain"
)

// DefaultIndexerTimeout bounds one GraphQL round trip.
const DefaultIndexerTimeout = 15 * time.Second

// pairQuery selects the deepest pool joining the target token with any of
// the preferred quote tokens.
const pairQuery = `
query GetTokenPairData($tokenAddress: Bytes!, $quoteAddresses: [Bytes!]) {
  pairs(
    first: 1,
    where: {
      and: [
        { or: [{ token0: $tokenAddress }, { token1: $tokenAddress }] },
        { or: [{ token0_in: $quoteAddresses }, { token1_in: $quoteAddresses }] }
      ]
    },
    orderBy: reserveUSD,
    orderDirection: desc
  ) {
    id
    token0 { id symbol name decimals }
    token1 { id symbol name decimals }
    reserve0
    reserve1
    reserveUSD
    volumeUSD
    token0Price
    token1Price
  }
}`

// IndexerSource resolves pairs through a GraphQL venue indexer
// (subgraph). It is the primary source: structured, and free of the
// search API's rate limits.
type IndexerSource struct {
	url            string
	chainID        string
	quoteAddresses []string
	client         *http.Client
	logger         *log.Logger
}

// IndexerSourceOptions configures IndexerSource.
type IndexerSourceOptions struct {
	URL     string
	ChainID string
	// QuoteAddresses lists the preferred quote-token addresses, highest
	// priority first.
	QuoteAddresses []string
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// NewIndexerSource creates the GraphQL indexer source.
func NewIndexerSource(opts IndexerSourceOptions) *IndexerSource {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultIndexerTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	quotes := make([]string, len(opts.QuoteAddresses))
	for i, a := range opts.QuoteAddresses {
		quotes[i] = strings.ToLower(a)
	}

	return &IndexerSource{
		url:            opts.URL,
		chainID:        opts.ChainID,
		quoteAddresses: quotes,
		client:         client,
		logger:         logger,
	}
}

var _ Source = (*IndexerSource)(nil)

func (s *IndexerSource) Name() string { return "indexer" }

// graphQL wire shapes. Subgraph numerics arrive as decimal strings.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data   *pairQueryData `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type pairQueryData struct {
	Pairs []indexedPair `json:"pairs"`
}

type indexedPair struct {
	ID          string       `json:"id"`
	Token0      indexedToken `json:"token0"`
	Token1      indexedToken `json:"token1"`
	Reserve0    string       `json:"reserve0"`
	Reserve1    string       `json:"reserve1"`
	ReserveUSD  string       `json:"reserveUSD"`
	VolumeUSD   string       `json:"volumeUSD"`
	Token0Price string       `json:"token0Price"`
	Token1Price string       `json:"token1Price"`
}

type indexedToken struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals string `json:"decimals"`
}

// Fetch queries the indexer for the token's deepest preferred-quote pair.
func (s *IndexerSource) Fetch(ctx context.Context, token domain.MonitoredToken) (*domain.MarketSnapshot, error) {
	if len(s.quoteAddresses) == 0 {
		return nil, fmt.Errorf("indexer: no preferred quote addresses configured")
	}

	reqBody, err := json.Marshal(graphQLRequest{
		Query: pairQuery,
		Variables: map[string]interface{}{
			"tokenAddress":   strings.ToLower(token.Address),
			"quoteAddresses": s.quoteAddresses,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("indexer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexer: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("indexer: unmarshal response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("indexer: graphql error: %s", gqlResp.Errors[0].Message)
	}
	if gqlResp.Data == nil || len(gqlResp.Data.Pairs) == 0 {
		return nil, ErrNotFound
	}

	return s.snapshotFromPair(token, gqlResp.Data.Pairs[0])
}

func (s *IndexerSource) snapshotFromPair(token domain.MonitoredToken, pair indexedPair) (*domain.MarketSnapshot, error) {
	target := strings.ToLower(token.Address)
	targetIsToken0 := strings.ToLower(pair.Token0.ID) == target

	var baseRaw, quoteRaw indexedToken
	if targetIsToken0 {
		baseRaw, quoteRaw = pair.Token0, pair.Token1
	} else {
		baseRaw, quoteRaw = pair.Token1, pair.Token0
	}

	// The quoted rate prices token0 in token1 units or vice versa; fall
	// back to the raw reserve ratio when the rate is absent or
	// non-positive.
	var price float64
	if targetIsToken0 {
		price = parseGraphFloat(pair.Token1Price)
	} else {
		price = parseGraphFloat(pair.Token0Price)
	}
	if price <= 0 {
		reserve0 := parseGraphFloat(pair.Reserve0)
		reserve1 := parseGraphFloat(pair.Reserve1)
		if reserve0 > 0 && reserve1 > 0 {
			if targetIsToken0 {
				price = reserve1 / reserve0
			} else {
				price = reserve0 / reserve1
			}
		} else {
			s.logger.Printf("WARN: indexer pair %s has no usable price for %s", pair.ID, token.Symbol)
		}
	}

	return &domain.MarketSnapshot{
		PairAddress:      strings.ToLower(pair.ID),
		ChainID:          s.chainID,
		PairName:         fmt.Sprintf("%s/%s", baseRaw.Symbol, quoteRaw.Symbol),
		BaseToken:        tokenSideFromIndexed(baseRaw),
		QuoteToken:       tokenSideFromIndexed(quoteRaw),
		CurrentPrice:     price,
		CurrentVolume:    parseGraphFloat(pair.VolumeUSD),
		CurrentLiquidity: parseGraphFloat(pair.ReserveUSD),
	}, nil
}

func tokenSideFromIndexed(t indexedToken) domain.TokenSide {
	decimals, err := strconv.Atoi(t.Decimals)
	if err != nil {
		decimals = 0
	}
	return domain.TokenSide{
		Address:  strings.ToLower(t.ID),
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: decimals,
	}
}

func parseGraphFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
