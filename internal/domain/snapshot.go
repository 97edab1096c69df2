package domain

// MarketSnapshot is the canonical per-tick market view of one monitored
// token. Produced fresh by the resolver each tick, folded into the pair
// record, never persisted itself.
//
// Convention: BaseToken is always the monitored token, QuoteToken the
// token it is priced in, regardless of which side the upstream source
// listed first.
type MarketSnapshot struct {
	PairAddress string
	ChainID     string
	PairName    string // "BASE/QUOTE"
	BaseToken   TokenSide
	QuoteToken  TokenSide

	CurrentPrice     float64 // base priced in quote, >= 0
	CurrentVolume    float64 // trailing-24h volume in USD, >= 0
	CurrentLiquidity float64 // total pool liquidity in USD, >= 0
}
