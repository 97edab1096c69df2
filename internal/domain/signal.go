package domain

import "time"

// Signal is the per-pair trading decision for one tick.
type Signal string

const (
	SignalBuy   Signal = "Buy"
	SignalHold  Signal = "Hold"
	SignalError Signal = "Error"
)

// String returns the string representation of Signal.
func (s Signal) String() string {
	return string(s)
}

// IsValid checks if the signal is a valid value.
func (s Signal) IsValid() bool {
	return s == SignalBuy || s == SignalHold || s == SignalError
}

// ConditionResult is the pass/fail outcome of one buy condition together
// with its human-readable explanation. Every evaluation emits one entry
// per condition regardless of outcome.
type ConditionResult struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
	Pass   bool   `json:"pass"`
}

// IndicatorValues carries the formatted indicator readouts of one
// evaluation. Values that could not be computed for lack of history are
// "N/A".
type IndicatorValues struct {
	RSI              string `json:"rsi"`
	MACD             string `json:"macd"`
	MACDSignal       string `json:"macdSignal"`
	MACDHistogram    string `json:"macdHistogram"`
	PriceChangeShort string `json:"priceChangeShort"` // percent
	VolumeIncrease   string `json:"volumeIncrease"`   // percent
	LiquidityStatus  string `json:"liquidityStatus"`  // "Strong" | "Low"
	PumpedRecently   string `json:"pumpedRecently"`   // "Yes" | "No"
}

// BuyMemo records the last moment a pair signalled Buy. Process lifetime
// only; lost on restart.
type BuyMemo struct {
	Timestamp time.Time `json:"timestamp"`
	Price     string    `json:"price"` // formatted, 8 decimal places
}

// SignalResult is the published outcome for one pair in one tick.
type SignalResult struct {
	PairName string `json:"pairName"`
	Signal   Signal `json:"signal"`

	CurrentPrice     string `json:"currentPrice"`
	CurrentVolume    string `json:"currentVolume,omitempty"`
	CurrentLiquidity string `json:"currentLiquidity,omitempty"`

	Indicators IndicatorValues   `json:"indicators"`
	Conditions []ConditionResult `json:"conditions"`

	LastBuy *BuyMemo `json:"lastBuySignal,omitempty"`
}
