// Package config loads the service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token identifies one monitored token.
type Token struct {
	Address string `mapstructure:"address"`
	Symbol  string `mapstructure:"symbol"`
	Name    string `mapstructure:"name"`
}

// SignalConfig holds the signal engine thresholds. Percentage thresholds
// are in percent (1.5 means 1.5%).
type SignalConfig struct {
	RSIPeriod            int     `mapstructure:"rsiPeriod"`
	RSIOversoldThreshold float64 `mapstructure:"rsiOversoldThreshold"`

	MACDFastPeriod   int `mapstructure:"macdFastPeriod"`
	MACDSlowPeriod   int `mapstructure:"macdSlowPeriod"`
	MACDSignalPeriod int `mapstructure:"macdSignalPeriod"`

	ShortLookbackMinutes int     `mapstructure:"shortLookbackMinutes"`
	ShortThresholdPct    float64 `mapstructure:"shortThresholdPct"`

	VolumeLookbackMinutes int     `mapstructure:"volumeLookbackMinutes"`
	VolumeIncreaseFactor  float64 `mapstructure:"volumeIncreaseFactor"`

	LiquidityFloorUSD float64 `mapstructure:"liquidityFloorUsd"`

	PumpLookbackHours int     `mapstructure:"pumpLookbackHours"`
	PumpThresholdPct  float64 `mapstructure:"pumpThresholdPct"`
}

// Config is the full startup configuration surface.
type Config struct {
	MonitoredTokens    []Token `mapstructure:"monitoredTokens"`
	BaseCurrencySymbol string  `mapstructure:"baseCurrencySymbol"`

	ChainID    string `mapstructure:"chainId"`
	VenueID    string `mapstructure:"venueId"`
	IndexerURL string `mapstructure:"indexerUrl"`
	SearchURL  string `mapstructure:"searchUrl"`

	// PreferredQuoteSymbols is ordered, highest priority first; every
	// entry must have an address in QuoteTokenMap.
	PreferredQuoteSymbols []string          `mapstructure:"preferredQuoteSymbols"`
	QuoteTokenMap         map[string]string `mapstructure:"quoteTokenMap"`
	StableQuoteSymbol     string            `mapstructure:"stableQuoteSymbol"`
	NativeWrappedSymbol   string            `mapstructure:"nativeWrappedSymbol"`
	ReferencePairAddress  string            `mapstructure:"referencePairAddress"`

	RefreshInterval   time.Duration `mapstructure:"refreshInterval"`
	HistoryRetention  int           `mapstructure:"historyRetention"`
	RateLimitCooldown time.Duration `mapstructure:"rateLimitCooldown"`
	SearchCallDelay   time.Duration `mapstructure:"searchCallDelay"`

	Signal SignalConfig `mapstructure:"signal"`
}

// Load reads the YAML config file at path and applies env overrides
// (DEXWATCH_ prefix, dots become underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DEXWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("baseCurrencySymbol", "BUSD")
	v.SetDefault("chainId", "bsc")
	v.SetDefault("venueId", "pancakeswap")
	v.SetDefault("stableQuoteSymbol", "BUSD")
	v.SetDefault("nativeWrappedSymbol", "WBNB")

	v.SetDefault("refreshInterval", "60s")
	v.SetDefault("historyRetention", 100)
	v.SetDefault("rateLimitCooldown", "5m")
	v.SetDefault("searchCallDelay", "0s")

	v.SetDefault("signal.rsiPeriod", 14)
	v.SetDefault("signal.rsiOversoldThreshold", 30)
	v.SetDefault("signal.macdFastPeriod", 12)
	v.SetDefault("signal.macdSlowPeriod", 26)
	v.SetDefault("signal.macdSignalPeriod", 9)
	v.SetDefault("signal.shortLookbackMinutes", 5)
	v.SetDefault("signal.shortThresholdPct", 1.0)
	v.SetDefault("signal.volumeLookbackMinutes", 60)
	v.SetDefault("signal.volumeIncreaseFactor", 0.2)
	v.SetDefault("signal.liquidityFloorUsd", 50000)
	v.SetDefault("signal.pumpLookbackHours", 24)
	v.SetDefault("signal.pumpThresholdPct", 15)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.MonitoredTokens) == 0 {
		return fmt.Errorf("monitoredTokens must not be empty")
	}
	for i, t := range c.MonitoredTokens {
		if t.Address == "" || t.Symbol == "" {
			return fmt.Errorf("monitoredTokens[%d]: address and symbol are required", i)
		}
	}

	if c.IndexerURL == "" {
		return fmt.Errorf("indexerUrl is required")
	}
	if c.SearchURL == "" {
		return fmt.Errorf("searchUrl is required")
	}

	if len(c.PreferredQuoteSymbols) == 0 {
		return fmt.Errorf("preferredQuoteSymbols must not be empty")
	}
	for _, sym := range c.PreferredQuoteSymbols {
		if _, ok := c.lookupQuote(sym); !ok {
			return fmt.Errorf("preferred quote symbol %s has no address in quoteTokenMap", sym)
		}
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refreshInterval must be positive")
	}
	if c.HistoryRetention <= 0 {
		return fmt.Errorf("historyRetention must be positive")
	}
	if c.RateLimitCooldown <= 0 {
		return fmt.Errorf("rateLimitCooldown must be positive")
	}

	s := c.Signal
	if s.RSIPeriod < 2 {
		return fmt.Errorf("signal.rsiPeriod must be at least 2")
	}
	if s.MACDFastPeriod < 1 || s.MACDSlowPeriod <= s.MACDFastPeriod || s.MACDSignalPeriod < 1 {
		return fmt.Errorf("signal MACD periods must satisfy 1 <= fast < slow, signal >= 1")
	}
	if s.ShortLookbackMinutes <= 0 || s.VolumeLookbackMinutes <= 0 || s.PumpLookbackHours <= 0 {
		return fmt.Errorf("signal lookbacks must be positive")
	}
	if s.LiquidityFloorUSD < 0 {
		return fmt.Errorf("signal.liquidityFloorUsd must not be negative")
	}

	return nil
}

// QuoteAddresses returns the preferred quote-token addresses in priority
// order.
func (c *Config) QuoteAddresses() []string {
	out := make([]string, 0, len(c.PreferredQuoteSymbols))
	for _, sym := range c.PreferredQuoteSymbols {
		if addr, ok := c.lookupQuote(sym); ok {
			out = append(out, addr)
		}
	}
	return out
}

// NativeWrappedAddress returns the configured address of the
// native-wrapped asset, or empty when unmapped.
func (c *Config) NativeWrappedAddress() string {
	addr, _ := c.lookupQuote(c.NativeWrappedSymbol)
	return addr
}

func (c *Config) lookupQuote(symbol string) (string, bool) {
	for k, v := range c.QuoteTokenMap {
		if strings.EqualFold(k, symbol) {
			return v, true
		}
	}
	return "", false
}
