// Package scheduler drives the periodic evaluation loop: resolve every
// monitored token, fold the snapshot into storage, run the signal
// engine, and publish the aggregate result set. Ticks are single-flight
// and the loop pauses itself after an upstream rate limit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dexwatch/internal/domain"
	"dexwatch/internal/marketdata"
	"dexwatch/internal/observability"
	"dexwatch/internal/signal"
	"dexwatch/internal/storage"
)

// Phase is the loop controller state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Resolver produces a market snapshot for one monitored token.
type Resolver interface {
	Resolve(ctx context.Context, token domain.MonitoredToken) (*domain.MarketSnapshot, error)
}

const (
	// DefaultInterval between periodic ticks.
	DefaultInterval = 60 * time.Second
	// DefaultCooldown before resuming after a rate-limit pause.
	DefaultCooldown = 5 * time.Minute
)

// Controller runs the evaluation loop. Exactly one of the periodic
// ticker and the one-shot resume timer is armed at any time; whichever
// is being armed cancels the other first.
type Controller struct {
	resolver  Resolver
	store     storage.PairStore
	archive   storage.SignalArchiveStore
	tokens    []domain.MonitoredToken
	base      string
	signalCfg signal.Config
	interval  time.Duration
	cooldown  time.Duration
	onPublish func([]domain.SignalResult)
	logger    *log.Logger
	now       func() time.Time

	mu          sync.Mutex
	phase       Phase
	inFlight    bool
	stop        chan struct{}
	resumeTimer *time.Timer
	ctx         context.Context

	results   []domain.SignalResult
	published bool
	memos     map[string]domain.BuyMemo

	ticks    uint64
	skipped  uint64
	lastTick time.Time
}

// Options for creating a Controller.
type Options struct {
	// Required.
	Resolver Resolver
	Store    storage.PairStore
	Tokens   []domain.MonitoredToken

	// Archive receives every published result set when set. Best-effort;
	// failures are logged and never affect the tick.
	Archive storage.SignalArchiveStore

	// BaseCurrencySymbol names the quote side of error results, e.g.
	// "BUSD" in "CAKE/BUSD".
	BaseCurrencySymbol string

	Signal signal.Config

	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// Cooldown before resuming after a rate-limit pause. Defaults to
	// DefaultCooldown.
	Cooldown time.Duration

	// OnPublish is called with each published result set, outside the
	// controller lock.
	OnPublish func([]domain.SignalResult)

	Logger *log.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a Controller in the Idle phase. Start arms the loop.
func New(opts Options) *Controller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		resolver:  opts.Resolver,
		store:     opts.Store,
		archive:   opts.Archive,
		tokens:    opts.Tokens,
		base:      opts.BaseCurrencySymbol,
		signalCfg: opts.Signal,
		interval:  interval,
		cooldown:  cooldown,
		onPublish: opts.OnPublish,
		logger:    logger,
		now:       now,
		memos:     make(map[string]domain.BuyMemo),
	}
}

// Start arms the periodic ticker and runs one tick immediately. Calling
// Start while a resume timer is pending cancels that timer; calling it
// while a ticker is already armed replaces the ticker.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.ctx = ctx
	if c.phase == PhasePaused {
		c.setPhaseLocked(PhaseIdle)
	}
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				c.Tick(ctx)
			}
		}
	}()
}

// Stop cancels both timers and returns the loop to Idle. An in-flight
// tick is not interrupted; it completes and publishes normally.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
	if !c.inFlight {
		c.setPhaseLocked(PhaseIdle)
	}
}

// Tick runs one full evaluation cycle. If a cycle is already in flight
// the tick is skipped entirely.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.inFlight {
		c.skipped++
		c.mu.Unlock()
		c.logger.Printf("WARN: tick skipped: previous cycle still running")
		observability.RecordTickSkipped()
		return
	}
	c.inFlight = true
	c.setPhaseLocked(PhaseRunning)
	c.mu.Unlock()

	rateLimited := c.runCycle(ctx)

	c.mu.Lock()
	c.inFlight = false
	if rateLimited {
		c.pauseLocked()
	} else if c.phase == PhaseRunning {
		c.setPhaseLocked(PhaseIdle)
	}
	c.mu.Unlock()
}

// runCycle processes every token sequentially and publishes the result
// set. Returns true when a rate limit was detected during the cycle.
func (c *Controller) runCycle(ctx context.Context) bool {
	start := c.now()

	if err := c.store.Ping(ctx); err != nil {
		c.logger.Printf("WARN: store unreachable, aborting tick: %v", err)
		observability.RecordStoreError("ping")
		observability.RecordTick("store_unavailable", time.Since(start).Seconds())
		return false
	}

	results := make([]domain.SignalResult, 0, len(c.tokens))
	rateLimited := false

	for _, token := range c.tokens {
		res, limited := c.processToken(ctx, token)
		if limited {
			rateLimited = true
		}
		results = append(results, res)
	}

	c.publish(ctx, start, results, rateLimited)
	return rateLimited
}

// processToken resolves one token, updates its history and evaluates the
// signal. Any failure degrades to an Error-kind result; the second
// return reports whether the failure was a rate limit.
func (c *Controller) processToken(ctx context.Context, token domain.MonitoredToken) (domain.SignalResult, bool) {
	pairName := fmt.Sprintf("%s/%s", token.Symbol, c.base)

	snap, err := c.resolver.Resolve(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, marketdata.ErrRateLimited):
			c.logger.Printf("WARN: rate limited while resolving %s, will pause after tick: %v", token.Symbol, err)
			observability.RecordResolutionError("rate_limited")
			return errorResult(pairName, err), true
		case errors.Is(err, marketdata.ErrNotFound):
			c.logger.Printf("WARN: no pair found for %s: %v", token.Symbol, err)
			observability.RecordResolutionError("not_found")
		default:
			c.logger.Printf("WARN: resolution failed for %s: %v", token.Symbol, err)
			observability.RecordResolutionError("upstream")
		}
		return errorResult(pairName, err), false
	}

	ts := c.now()
	meta := domain.PairMetadata{
		ChainID:    snap.ChainID,
		PairName:   snap.PairName,
		BaseToken:  snap.BaseToken,
		QuoteToken: snap.QuoteToken,
	}
	if err := c.store.UpsertMetadata(ctx, snap.PairAddress, meta); err != nil {
		c.logger.Printf("WARN: metadata upsert failed for %s: %v", snap.PairName, err)
		observability.RecordStoreError("upsert_metadata")
		return errorResult(snap.PairName, err), false
	}
	if err := c.store.AppendSample(ctx, snap.PairAddress, snap.CurrentPrice, snap.CurrentVolume, snap.CurrentLiquidity, ts); err != nil {
		c.logger.Printf("WARN: sample append failed for %s: %v", snap.PairName, err)
		observability.RecordStoreError("append_sample")
		return errorResult(snap.PairName, err), false
	}

	priceSeries, err := c.store.GetSeries(ctx, snap.PairAddress, domain.SeriesPrice)
	if err != nil {
		c.logger.Printf("WARN: price series read failed for %s: %v", snap.PairName, err)
		observability.RecordStoreError("get_series")
		return errorResult(snap.PairName, err), false
	}
	volumeSeries, err := c.store.GetSeries(ctx, snap.PairAddress, domain.SeriesVolume)
	if err != nil {
		c.logger.Printf("WARN: volume series read failed for %s: %v", snap.PairName, err)
		observability.RecordStoreError("get_series")
		return errorResult(snap.PairName, err), false
	}

	res := signal.Evaluate(c.signalCfg, *snap, priceSeries, volumeSeries, ts)

	c.mu.Lock()
	if res.Signal == domain.SignalBuy {
		c.memos[res.PairName] = domain.BuyMemo{Timestamp: ts, Price: res.CurrentPrice}
	}
	if memo, ok := c.memos[res.PairName]; ok {
		m := memo
		res.LastBuy = &m
	}
	c.mu.Unlock()

	c.logger.Printf("%s: %s (price %s, liquidity %s)", res.PairName, res.Signal, res.CurrentPrice, res.CurrentLiquidity)
	return res, false
}

// publish atomically replaces the published result set and fans it out
// to subscribers and the archive.
func (c *Controller) publish(ctx context.Context, start time.Time, results []domain.SignalResult, rateLimited bool) {
	c.mu.Lock()
	c.results = results
	c.published = true
	c.ticks++
	c.lastTick = start
	c.mu.Unlock()

	var buy, hold, errored int
	for _, r := range results {
		switch r.Signal {
		case domain.SignalBuy:
			buy++
		case domain.SignalHold:
			hold++
		default:
			errored++
		}
	}
	observability.RecordPublishedSignals(buy, hold, errored)
	observability.DefaultMetrics.LastSuccessfulTick.Set(float64(c.now().Unix()))

	outcome := "ok"
	if rateLimited {
		outcome = "rate_limited"
	}
	observability.RecordTick(outcome, time.Since(start).Seconds())
	c.logger.Printf("tick complete: %d pairs (%d buy, %d hold, %d error) in %s",
		len(results), buy, hold, errored, time.Since(start).Round(time.Millisecond))

	if c.onPublish != nil {
		c.onPublish(results)
	}
	if c.archive != nil {
		if err := c.archive.InsertBatch(ctx, start, results); err != nil {
			c.logger.Printf("WARN: signal archive write failed: %v", err)
			observability.RecordStoreError("archive_insert")
		} else {
			observability.RecordArchiveBatch()
		}
	}
}

// pauseLocked stops the ticker, enters Paused and arms the one-shot
// resume timer. Caller holds c.mu.
func (c *Controller) pauseLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.setPhaseLocked(PhasePaused)
	observability.RecordRateLimitPause()
	c.logger.Printf("rate limited: pausing for %s", c.cooldown)

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	c.resumeTimer = time.AfterFunc(c.cooldown, func() {
		c.logger.Printf("cooldown elapsed, resuming")
		c.Start(ctx)
	})
}

func (c *Controller) setPhaseLocked(p Phase) {
	c.phase = p
	observability.SetSchedulerPhase(int(p))
}

// Results returns a copy of the most recently published result set and
// whether any set has been published yet.
func (c *Controller) Results() ([]domain.SignalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.published {
		return nil, false
	}
	out := make([]domain.SignalResult, len(c.results))
	copy(out, c.results)
	return out, true
}

// Status is a point-in-time view of the loop for the status endpoint.
type Status struct {
	Phase        string    `json:"phase"`
	TicksRun     uint64    `json:"ticksRun"`
	TicksSkipped uint64    `json:"ticksSkipped"`
	LastTick     time.Time `json:"lastTick,omitzero"`
	Pairs        int       `json:"pairs"`
}

// Status reports the current loop state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Phase:        c.phase.String(),
		TicksRun:     c.ticks,
		TicksSkipped: c.skipped,
		LastTick:     c.lastTick,
		Pairs:        len(c.tokens),
	}
}

// Generating reports whether a tick is currently in flight.
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// errorResult is the degraded per-pair output when resolution or storage
// fails for that pair during a tick.
func errorResult(pairName string, err error) domain.SignalResult {
	const na = "N/A"
	return domain.SignalResult{
		PairName:     pairName,
		Signal:       domain.SignalError,
		CurrentPrice: na,
		Indicators: domain.IndicatorValues{
			RSI:              na,
			MACD:             na,
			MACDSignal:       na,
			MACDHistogram:    na,
			PriceChangeShort: na,
			VolumeIncrease:   na,
		},
		Conditions: []domain.ConditionResult{
			{Name: "Resolution", Detail: err.Error(), Pass: false},
		},
	}
}
