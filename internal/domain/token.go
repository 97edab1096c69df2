package domain

// MonitoredToken is one entry of the configured watch list.
type MonitoredToken struct {
	Address string // token contract address (hex, lowercase preferred)
	Symbol  string // ticker symbol, e.g. "CAKE"
	Name    string // human-readable name
}

// TokenSide describes one side of a liquidity pair.
type TokenSide struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int // 0 means unknown; resolved on demand from chain
}
