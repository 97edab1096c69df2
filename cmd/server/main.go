// Package main provides the unified monitoring service:
// - Scheduler (periodic): resolve pairs, update history, evaluate signals
// - Read API: /signals, /ws, /health, /status, /metrics
package main

import (
	"context"
	"flag"
	"log"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"dexwatch/internal/api"
	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/marketdata"
	"dexwatch/internal/scheduler"
	sig "dexwatch/internal/signal"
	"dexwatch/internal/storage"
	chstore "dexwatch/internal/storage/clickhouse"
	"dexwatch/internal/storage/memory"
	"dexwatch/internal/storage/migrations"
	pgstore "dexwatch/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", envOr("DEXWATCH_CONFIG", "config.yaml"), "Path to YAML config file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional signal archive)")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("RPC_ENDPOINT"), "EVM JSON-RPC HTTP endpoint for on-chain verification")
	apiAddr := flag.String("api-addr", envOr("API_ADDR", ":8080"), "Read API listen address")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	logger.Printf("Monitoring %d tokens on %s every %s", len(cfg.MonitoredTokens), cfg.ChainID, cfg.RefreshInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage (startup failure is fatal: the service must not run blind)
	pairStore, closeStores := setupPairStore(ctx, logger, *useMemory, *postgresDSN, cfg.HistoryRetention)
	defer closeStores()

	archive := setupArchive(ctx, logger, *clickhouseDSN)

	resolver := setupResolver(cfg, *rpcEndpoint, logger)

	tokens := make([]domain.MonitoredToken, len(cfg.MonitoredTokens))
	for i, t := range cfg.MonitoredTokens {
		tokens[i] = domain.MonitoredToken{Address: t.Address, Symbol: t.Symbol, Name: t.Name}
	}

	var apiServer *api.Server
	ctrl := scheduler.New(scheduler.Options{
		Resolver:           resolver,
		Store:              pairStore,
		Archive:            archive,
		Tokens:             tokens,
		BaseCurrencySymbol: cfg.BaseCurrencySymbol,
		Signal:             signalConfig(cfg),
		Interval:           cfg.RefreshInterval,
		Cooldown:           cfg.RateLimitCooldown,
		OnPublish: func(results []domain.SignalResult) {
			apiServer.Publish(results)
		},
		Logger: log.New(os.Stdout, "[scheduler] ", log.LstdFlags|log.Lshortfile),
	})

	apiServer = api.New(api.Options{
		Source: ctrl,
		Logger: log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
	})
	go apiServer.Start(*apiAddr)

	ctrl.Start(ctx)
	logger.Printf("Service started (api on %s)", *apiAddr)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Println("Shutting down...")
	ctrl.Stop()
	cancel()
	apiServer.Close()
	logger.Println("Shutdown complete")
}

// setupPairStore connects the history store. Returns the store and a
// cleanup closure.
func setupPairStore(ctx context.Context, logger *log.Logger, useMemory bool, dsn string, retention int) (storage.PairStore, func()) {
	if useMemory {
		logger.Println("Using in-memory pair store")
		return memory.NewPairStore(retention), func() {}
	}

	if dsn == "" {
		logger.Fatal("--postgres-dsn is required (or pass --use-memory)")
	}
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		logger.Fatalf("Failed to run PostgreSQL migrations: %v", err)
	}
	logger.Println("Connected to PostgreSQL")
	return pgstore.NewPairStore(pool, retention), pool.Close
}

// setupArchive connects the optional ClickHouse signal archive. The
// archive is best-effort: connection failure only disables it.
func setupArchive(ctx context.Context, logger *log.Logger, dsn string) storage.SignalArchiveStore {
	if dsn == "" {
		return nil
	}
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		logger.Printf("WARN: ClickHouse unavailable, signal archive disabled: %v", err)
		return nil
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		logger.Printf("WARN: ClickHouse migrations failed, signal archive disabled: %v", err)
		conn.Close()
		return nil
	}
	logger.Println("Connected to ClickHouse signal archive")
	return chstore.NewSignalArchiveStore(conn)
}

// setupResolver wires the market data source chain and the optional
// on-chain liquidity verifier.
func setupResolver(cfg *config.Config, rpcEndpoint string, logger *log.Logger) *marketdata.Resolver {
	var sources []marketdata.Source
	if cfg.IndexerURL != "" {
		sources = append(sources, marketdata.NewIndexerSource(marketdata.IndexerSourceOptions{
			URL:            cfg.IndexerURL,
			ChainID:        cfg.ChainID,
			QuoteAddresses: cfg.QuoteAddresses(),
			Logger:         log.New(os.Stdout, "[indexer] ", log.LstdFlags|log.Lshortfile),
		}))
	}
	if cfg.SearchURL != "" {
		sources = append(sources, marketdata.NewSearchSource(marketdata.SearchSourceOptions{
			BaseURL:      cfg.SearchURL,
			VenueID:      cfg.VenueID,
			ChainID:      cfg.ChainID,
			QuoteSymbols: cfg.PreferredQuoteSymbols,
			CallDelay:    cfg.SearchCallDelay,
			Logger:       log.New(os.Stdout, "[search] ", log.LstdFlags|log.Lshortfile),
		}))
	}
	if len(sources) == 0 {
		logger.Fatal("No market data sources configured (set indexerUrl or searchUrl)")
	}

	var verifier *marketdata.OnChainVerifier
	if rpcEndpoint != "" {
		client := evm.NewHTTPClient(rpcEndpoint)
		verifier = marketdata.NewOnChainVerifier(marketdata.OnChainVerifierOptions{
			Reader:         evm.NewPairReader(client),
			StableSymbol:   cfg.StableQuoteSymbol,
			NativeSymbol:   cfg.NativeWrappedSymbol,
			RefPairAddress: cfg.ReferencePairAddress,
			NativeAddress:  cfg.NativeWrappedAddress(),
			Logger:         log.New(os.Stdout, "[verify] ", log.LstdFlags|log.Lshortfile),
		})
	} else {
		logger.Println("WARN: no --rpc-endpoint, on-chain liquidity verification disabled")
	}

	return marketdata.NewResolver(marketdata.ResolverOptions{
		Sources:  sources,
		Verifier: verifier,
		Logger:   log.New(os.Stdout, "[resolver] ", log.LstdFlags|log.Lshortfile),
	})
}

// signalConfig converts the loaded configuration into engine settings.
func signalConfig(cfg *config.Config) sig.Config {
	return sig.Config{
		RSIPeriod:            cfg.Signal.RSIPeriod,
		RSIOversoldThreshold: cfg.Signal.RSIOversoldThreshold,
		MACDFastPeriod:       cfg.Signal.MACDFastPeriod,
		MACDSlowPeriod:       cfg.Signal.MACDSlowPeriod,
		MACDSignalPeriod:     cfg.Signal.MACDSignalPeriod,
		ShortLookback:        time.Duration(cfg.Signal.ShortLookbackMinutes) * time.Minute,
		ShortThresholdPct:    cfg.Signal.ShortThresholdPct,
		VolumeLookback:       time.Duration(cfg.Signal.VolumeLookbackMinutes) * time.Minute,
		VolumeIncreaseFactor: cfg.Signal.VolumeIncreaseFactor,
		LiquidityFloorUSD:    cfg.Signal.LiquidityFloorUSD,
		PumpLookback:         time.Duration(cfg.Signal.PumpLookbackHours) * time.Hour,
		PumpThresholdPct:     cfg.Signal.PumpThresholdPct,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
