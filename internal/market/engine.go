package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// bootstrapLookback places the initial lastEventAt far enough back that the
// first tick is eligible to fire an event under the default cooldown.
const bootstrapLookback = 5 * time.Minute

// Store is the persistence the engine needs.
type Store interface {
	ListInstruments(ctx context.Context) ([]Instrument, error)
	UpdateInstrumentPrice(ctx context.Context, id int64, price float64) error
	AppendPricePoint(ctx context.Context, instrumentID int64, price float64, at time.Time) error
	CreateInstrument(ctx context.Context, in NewInstrument) (Instrument, error)
	AppendMarketEvent(ctx context.Context, ev NewMarketEvent) (MarketEvent, error)
	ListRecentMarketEvents(ctx context.Context, limit int) ([]MarketEvent, error)
	// LatestMarketEventTime reports false when no event was ever recorded.
	LatestMarketEventTime(ctx context.Context) (time.Time, bool, error)
	SeedInstruments(ctx context.Context, seeds []Seed) (int, error)
}

// Publisher is a fire-and-forget sink for priceTick and marketEvent payloads.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, any) error { return nil }

type Config struct {
	Cooldown       time.Duration
	RecentWindow   int
	PersistWorkers int
	SeedOnEmpty    bool
}

func DefaultConfig() Config {
	return Config{
		Cooldown:       3 * time.Minute,
		RecentWindow:   10,
		PersistWorkers: 4,
		SeedOnEmpty:    true,
	}
}

type Option func(*Engine)

func WithRand(r Rand) Option {
	return func(e *Engine) { e.rand = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	store Store
	pub   Publisher
	cat   Catalog
	cfg   Config
	log   *slog.Logger
	rand  Rand
	now   func() time.Time

	// running serializes ticks; a second caller gets ErrTickInProgress.
	running sync.Mutex

	mu       sync.RWMutex
	state    State
	universe []Instrument
	booted   bool
}

func NewEngine(store Store, pub Publisher, cat Catalog, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = discardPublisher{}
	}
	def := DefaultConfig()
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.PersistWorkers <= 0 {
		cfg.PersistWorkers = def.PersistWorkers
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = def.Cooldown
	}
	e := &Engine{
		store: store,
		pub:   pub,
		cat:   cat,
		cfg:   cfg,
		log:   logger,
		rand:  NewTimeSeededRand(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TickReport summarizes one tick for logs and tests.
type TickReport struct {
	ID      string
	Updated int
	Failed  int
	// Event is empty when nothing fired.
	Event      EventType
	EventNoop  bool
	Instrument int
}

// Bootstrap seeds an empty universe and restores lastEventAt from the event
// log. Tick calls it on first use.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.running.Lock()
	defer e.running.Unlock()
	return e.bootstrap(ctx)
}

func (e *Engine) bootstrap(ctx context.Context) error {
	instruments, err := e.store.ListInstruments(ctx)
	if err != nil {
		return fmt.Errorf("list instruments: %w", err)
	}
	if len(instruments) == 0 && e.cfg.SeedOnEmpty {
		n, err := e.store.SeedInstruments(ctx, e.cat.Starter)
		if err != nil {
			return fmt.Errorf("seed instruments: %w", err)
		}
		e.log.Info("seeded starter instruments", "count", n)
		instruments, err = e.store.ListInstruments(ctx)
		if err != nil {
			return fmt.Errorf("list instruments: %w", err)
		}
	}

	now := e.now()
	last, ok, err := e.store.LatestMarketEventTime(ctx)
	if err != nil {
		e.log.Warn("latest market event lookup failed", "err", err)
		ok = false
	}
	if !ok {
		last = now.Add(-bootstrapLookback)
	}

	e.mu.Lock()
	e.universe = instruments
	e.state = NewState(last)
	e.booted = true
	e.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the market state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Instruments returns the cached universe as of the last completed tick.
func (e *Engine) Instruments() []Instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Instrument, len(e.universe))
	copy(out, e.universe)
	return out
}

// RunTick is the scheduler entry point. Errors are logged, never returned.
func (e *Engine) RunTick(ctx context.Context) {
	if _, err := e.Tick(ctx); err != nil {
		if errors.Is(err, ErrTickInProgress) {
			e.log.Warn("tick skipped", "err", err)
			return
		}
		e.log.Error("tick failed", "err", err)
	}
}

// Tick advances every instrument one step, persists and broadcasts the
// batch, maybe fires one market event, then decays the market state.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	if !e.running.TryLock() {
		return TickReport{}, ErrTickInProgress
	}
	defer e.running.Unlock()

	e.mu.RLock()
	booted := e.booted
	e.mu.RUnlock()
	if !booted {
		if err := e.bootstrap(ctx); err != nil {
			return TickReport{}, err
		}
	}

	report := TickReport{ID: uuid.NewString()}
	log := e.log.With("tick_id", report.ID)
	now := e.now()

	e.mu.RLock()
	universe := make([]Instrument, len(e.universe))
	copy(universe, e.universe)
	st := e.state
	e.mu.RUnlock()
	report.Instrument = len(universe)

	// Draws stay sequential so a seeded Rand replays the same tick.
	next := make([]float64, len(universe))
	for i, in := range universe {
		next[i] = NextPrice(e.rand, in.Price, in.Volatility, st)
	}

	priced, stored := e.persistPrices(ctx, log, universe, next, now)
	quotes := make([]Quote, 0, len(universe))
	for i := range universe {
		if priced[i] {
			universe[i].Price = next[i]
			universe[i].UpdatedAt = now
		}
		if stored[i] {
			quotes = append(quotes, Quote{InstrumentID: universe[i].ID, Symbol: universe[i].Symbol, Price: next[i]})
		}
	}
	report.Updated = len(quotes)
	report.Failed = len(universe) - len(quotes)
	if len(quotes) > 0 {
		if err := e.pub.Publish(ctx, TopicPriceTick, quotes); err != nil {
			log.Warn("price tick broadcast failed", "err", err)
		}
	}

	et, noop := e.maybeFireEvent(ctx, log, universe, now)
	report.Event = et
	report.EventNoop = noop

	e.mu.Lock()
	e.state.Decay()
	e.mu.Unlock()

	fresh, err := e.store.ListInstruments(ctx)
	if err != nil {
		log.Warn("instrument reload failed, keeping cached universe", "err", err)
		fresh = universe
	}
	e.mu.Lock()
	e.universe = fresh
	e.mu.Unlock()

	log.Info("market tick complete",
		"instruments", report.Instrument,
		"updated", report.Updated,
		"failed", report.Failed,
		"event", string(report.Event),
	)
	return report, nil
}

// persistPrices writes each price and its history point. priced[i] means the
// instrument row holds next[i]; stored[i] means both writes succeeded.
func (e *Engine) persistPrices(ctx context.Context, log *slog.Logger, universe []Instrument, next []float64, at time.Time) (priced, stored []bool) {
	priced = make([]bool, len(universe))
	stored = make([]bool, len(universe))

	var g errgroup.Group
	g.SetLimit(e.cfg.PersistWorkers)
	for i, in := range universe {
		i, in := i, in
		g.Go(func() error {
			if err := e.store.UpdateInstrumentPrice(ctx, in.ID, next[i]); err != nil {
				log.Warn("price update failed", "symbol", in.Symbol, "err", err)
				return fmt.Errorf("update %s: %w", in.Symbol, err)
			}
			priced[i] = true
			if err := e.store.AppendPricePoint(ctx, in.ID, next[i], at); err != nil {
				log.Warn("price point append failed", "symbol", in.Symbol, "err", err)
				return fmt.Errorf("append %s: %w", in.Symbol, err)
			}
			stored[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("price persistence incomplete", "err", err)
	}
	return priced, stored
}

// updatePrices rewrites instrument rows without adding history points; the
// tick already recorded one point per instrument.
func (e *Engine) updatePrices(ctx context.Context, log *slog.Logger, targets []Instrument, prices []float64) []bool {
	priced := make([]bool, len(targets))

	var g errgroup.Group
	g.SetLimit(e.cfg.PersistWorkers)
	for i, in := range targets {
		i, in := i, in
		g.Go(func() error {
			if err := e.store.UpdateInstrumentPrice(ctx, in.ID, prices[i]); err != nil {
				log.Warn("event price update failed", "symbol", in.Symbol, "err", err)
				return fmt.Errorf("update %s: %w", in.Symbol, err)
			}
			priced[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("event prices incomplete", "err", err)
	}
	return priced
}

// maybeFireEvent runs the trigger selector and, when it fires, the applier.
// The slot is consumed once a type is picked, even if the applier fails or
// has nothing to do. universe prices are updated in place.
func (e *Engine) maybeFireEvent(ctx context.Context, log *slog.Logger, universe []Instrument, now time.Time) (EventType, bool) {
	e.mu.RLock()
	last := e.state.LastEventAt
	e.mu.RUnlock()
	if !CooldownElapsed(last, now, e.cfg.Cooldown) {
		return "", false
	}

	recent, err := e.store.ListRecentMarketEvents(ctx, e.cfg.RecentWindow)
	if err != nil {
		log.Warn("recent events read failed, skipping event", "err", err)
		return "", false
	}
	probs := AdjustedProbabilities(e.cat.Probabilities, recent)
	et := PickEventType(probs, e.rand.Float64())
	eff := PlanEvent(e.rand, e.cat, et, universe)

	e.mu.Lock()
	e.state.LastEventAt = now
	e.mu.Unlock()

	if eff.Noop() {
		log.Info("ipo skipped, no candidates left")
		return et, true
	}

	if len(eff.Prices) > 0 {
		idx := make(map[int64]int, len(universe))
		for i, in := range universe {
			idx[in.ID] = i
		}
		targets := make([]Instrument, 0, len(eff.Prices))
		prices := make([]float64, 0, len(eff.Prices))
		for _, in := range universe {
			if p, ok := eff.Prices[in.ID]; ok {
				targets = append(targets, in)
				prices = append(prices, p)
			}
		}
		priced := e.updatePrices(ctx, log, targets, prices)
		for j, in := range targets {
			if priced[j] {
				universe[idx[in.ID]].Price = prices[j]
			}
		}
	}

	var instrumentID *int64
	if eff.Listing != nil {
		created, err := e.store.CreateInstrument(ctx, *eff.Listing)
		if err != nil {
			if errors.Is(err, ErrDuplicateSymbol) {
				log.Info("ipo skipped, symbol already listed", "symbol", eff.Listing.Symbol)
				return et, true
			}
			log.Warn("ipo listing failed", "symbol", eff.Listing.Symbol, "err", err)
			return et, false
		}
		instrumentID = &created.ID
		eff.Notice.Stock = &created
	}

	if _, err := e.store.AppendMarketEvent(ctx, NewMarketEvent{
		Type:         eff.Type,
		Description:  eff.Message,
		InstrumentID: instrumentID,
	}); err != nil {
		log.Warn("market event append failed", "type", string(eff.Type), "err", err)
	}

	if eff.Push != nil {
		e.mu.Lock()
		e.state.Push(eff.Push.Sentiment, eff.Push.VolatilityIndex)
		e.mu.Unlock()
	}

	if err := e.pub.Publish(ctx, TopicMarketEvent, eff.Notice); err != nil {
		log.Warn("market event broadcast failed", "err", err)
	}
	log.Info("market event fired", "type", string(eff.Type), "message", eff.Message)
	return et, false
}
