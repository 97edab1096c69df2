package domain

import "time"

// SeriesKind selects one of the three bounded history series of a pair.
type SeriesKind string

const (
	SeriesPrice     SeriesKind = "price"
	SeriesVolume    SeriesKind = "volume"
	SeriesLiquidity SeriesKind = "liquidity"
)

// IsValid checks if the kind is a known series.
func (k SeriesKind) IsValid() bool {
	return k == SeriesPrice || k == SeriesVolume || k == SeriesLiquidity
}

// SamplePoint is one element of a history series.
type SamplePoint struct {
	Value     float64 // >= 0
	Timestamp time.Time
}

// PairMetadata holds the overwritable descriptive fields of a pair record.
type PairMetadata struct {
	ChainID    string
	PairName   string
	BaseToken  TokenSide
	QuoteToken TokenSide
}

// PairRecord is the persistent document for one monitored pair, keyed by
// pair address. Metadata fields are overwritten on every resolution; the
// three histories only grow by append and are pruned FIFO to the store's
// retention limit.
type PairRecord struct {
	PairAddress string // unique key
	Metadata    PairMetadata

	PriceHistory     []SamplePoint // oldest first
	VolumeHistory    []SamplePoint
	LiquidityHistory []SamplePoint

	LastUpdated time.Time
}
