package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
)

const (
	// DefaultPollInterval is the data fetch cadence
	DefaultPollInterval = 10 * time.Second

	// DefaultSetupRefresh is the minimum age before setup is fetched again
	DefaultSetupRefresh = 120 * time.Second
)

// State is the coordinator's position in its cycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CycleOutcome summarizes the fetches attempted in one cycle.
type CycleOutcome int

const (
	// OutcomeNone means no cycle has completed yet
	OutcomeNone CycleOutcome = iota
	// OutcomeSuccess means every attempted fetch succeeded
	OutcomeSuccess
	// OutcomePartialFailure means some but not all attempted fetches failed
	OutcomePartialFailure
	// OutcomeTotalFailure means every attempted fetch failed
	OutcomeTotalFailure
)

func (o CycleOutcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial_failure"
	case OutcomeTotalFailure:
		return "total_failure"
	default:
		return fmt.Sprintf("CycleOutcome(%d)", int(o))
	}
}

// Fetcher reads one resource from a device. *device.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, kind snapshot.Kind) (snapshot.Resource, error)
}

// Config is the per-device polling configuration.
type Config struct {
	Host         string
	PollInterval time.Duration
	SetupRefresh time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SetupRefresh == 0 {
		c.SetupRefresh = DefaultSetupRefresh
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.SetupRefresh < 0 {
		return fmt.Errorf("setup refresh must be positive, got %v", c.SetupRefresh)
	}
	return nil
}

// Update is delivered to subscribers after every published snapshot.
type Update struct {
	Snapshot snapshot.Snapshot
	Outcome  CycleOutcome
	Forced   bool
	// Fetched lists the resources attempted in this cycle.
	Fetched []snapshot.Kind
	// Err is an *UpdateFailedError when the data fetch failed.
	Err error
}

// UpdateFunc receives updates on the coordinator goroutine and must not block.
type UpdateFunc func(Update)

// OfferLatest puts u on ch without blocking, replacing any update still
// pending there. Subscribers that hand updates to a slower goroutine use it
// with a one-slot channel.
func OfferLatest(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock, for tests.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// Coordinator polls one device and owns its snapshot.
//
// All fetches run on a single goroutine: the scheduled cycle on every tick,
// and forced data-only refreshes in between. Refresh requests made while a
// fetch is in flight collapse into one follow-up refresh.
type Coordinator struct {
	cfg     Config
	fetcher Fetcher
	cache   *snapshot.Cache
	clock   Clock
	logger  *zap.Logger

	refresh  chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	state   State
	outcome CycleOutcome
	started bool
	closed  bool
	cancel  context.CancelFunc
	subs    map[uint64]UpdateFunc
	nextSub uint64
	waiters []chan error

	setupExpired atomic.Bool
}

// New creates a coordinator for one device. Call Start to begin polling.
func New(cfg Config, fetcher Fetcher, opts ...Option) (*Coordinator, error) {
	if fetcher == nil {
		return nil, errors.New("coordinator: nil fetcher")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	c := &Coordinator{
		cfg:     cfg.withDefaults(),
		fetcher: fetcher,
		cache:   snapshot.NewCache(),
		clock:   realClock{},
		logger:  logging.GetLogger(),
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
		subs:    make(map[uint64]UpdateFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("host", c.cfg.Host))
	return c, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Snapshot returns the latest published snapshot without blocking.
func (c *Coordinator) Snapshot() snapshot.Snapshot {
	return c.cache.Load()
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome returns the outcome of the most recent cycle.
func (c *Coordinator) LastOutcome() CycleOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Done is closed once the polling goroutine has exited, or by Shutdown if
// polling never started.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// OnUpdate registers fn for every published snapshot and returns a function
// that removes it.
func (c *Coordinator) OnUpdate(fn UpdateFunc) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Start launches the polling goroutine. The first cycle runs immediately.
// Polling stops when ctx is canceled or Shutdown is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	c.logger.Info("Starting coordinator",
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Duration("setup_refresh", c.cfg.SetupRefresh),
	)

	go c.run(loopCtx)
	return nil
}

// RequestRefresh schedules a data-only refresh and returns immediately. It
// reports false once the coordinator has shut down.
func (c *Coordinator) RequestRefresh() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	select {
	case c.refresh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
	return true
}

// RefreshAndWait requests a refresh and blocks until it has been published.
// It returns the refresh's *UpdateFailedError, ErrClosed if the coordinator
// shuts down first, or ctx's error.
func (c *Coordinator) RefreshAndWait(ctx context.Context) error {
	ch := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	c.RequestRefresh()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpireSetup makes the next scheduled cycle fetch setup regardless of age.
func (c *Coordinator) ExpireSetup() {
	c.setupExpired.Store(true)
}

// Shutdown stops polling, cancels any in-flight request and waits for the
// goroutine to exit or ctx to end. Pending and later refresh requests are
// dropped. Shutdown is idempotent.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	first := !c.closed
	c.closed = true
	started := c.started
	cancel := c.cancel
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- ErrClosed
	}

	if !started {
		c.setState(StateStopped)
		c.closeDone()
		return nil
	}
	if first {
		c.logger.Info("Stopping coordinator")
		cancel()
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.closeDone()
	defer c.setState(StateStopped)
	defer c.failWaiters(ErrClosed)

	ticker := c.clock.Ticker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.cycle(ctx, false)

	for {
		select {
		case <-ctx.Done():
			c.markClosed()
			return
		case <-ticker.Chan():
			c.cycle(ctx, false)
		case <-c.refresh:
			c.cycle(ctx, true)
		}
	}
}

type fetchResult struct {
	kind snapshot.Kind
	res  snapshot.Resource
	err  error
}

func (c *Coordinator) cycle(ctx context.Context, forced bool) {
	var waiters []chan error
	if forced {
		waiters = c.takeWaiters()
	}

	start := c.clock.Now()
	c.setState(StateFetching)
	defer c.setState(StateIdle)

	kinds, expired := c.due(c.cache.Load(), start, forced)

	results := make([]fetchResult, 0, len(kinds))
	for _, kind := range kinds {
		res, err := c.fetcher.Fetch(ctx, kind)
		results = append(results, fetchResult{kind: kind, res: res, err: err})
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		// Torn down mid-cycle: publish nothing.
		c.logger.Debug("Discarding interrupted cycle", zap.Bool("forced", forced))
		for _, ch := range waiters {
			ch <- ErrClosed
		}
		return
	}

	batch := c.cache.Begin(start)
	defer batch.Discard()
	var dataErr error
	failed := 0
	for _, r := range results {
		batch.Apply(r.kind, r.res, r.err)
		if r.err == nil {
			continue
		}
		failed++
		switch r.kind {
		case snapshot.KindData:
			dataErr = r.err
		case snapshot.KindSetup:
			if expired {
				c.setupExpired.Store(true)
			}
			fallthrough
		default:
			c.logger.Info("Secondary resource fetch failed, retrying next cycle",
				zap.Stringer("resource", r.kind),
				zap.Error(r.err),
			)
		}
	}
	snap := batch.Commit()

	outcome := OutcomeSuccess
	switch {
	case failed == len(results):
		outcome = OutcomeTotalFailure
	case failed > 0:
		outcome = OutcomePartialFailure
	}

	upd := Update{
		Snapshot: snap,
		Outcome:  outcome,
		Forced:   forced,
		Fetched:  kinds,
	}
	if dataErr != nil {
		upd.Err = &UpdateFailedError{Host: c.cfg.Host, Cycle: snap.Cycle, Forced: forced, Err: dataErr}
	}

	c.mu.Lock()
	c.outcome = outcome
	c.mu.Unlock()

	logging.LogCycle(c.logger, c.cfg.Host, snap.Cycle, outcome.String(), forced, c.clock.Now().Sub(start), upd.Err)

	c.notify(upd)
	for _, ch := range waiters {
		ch <- upd.Err
	}
}

// due returns the resources to fetch this cycle. expired reports whether
// setup was included only because ExpireSetup was called.
func (c *Coordinator) due(prev snapshot.Snapshot, now time.Time, forced bool) (kinds []snapshot.Kind, expired bool) {
	kinds = []snapshot.Kind{snapshot.KindData}
	if forced {
		return kinds, false
	}

	if prev.Info == nil {
		kinds = append(kinds, snapshot.KindInfo)
	}

	expired = c.setupExpired.Swap(false)
	if prev.Setup == nil || expired || now.Sub(prev.SetupFetchedAt) > c.cfg.SetupRefresh {
		kinds = append(kinds, snapshot.KindSetup)
	}
	return kinds, expired
}

func (c *Coordinator) notify(upd Update) {
	c.mu.Lock()
	fns := make([]UpdateFunc, 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		c.deliver(fn, upd)
	}
}

func (c *Coordinator) deliver(fn UpdateFunc, upd Update) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Update subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(upd)
}

func (c *Coordinator) takeWaiters() []chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.waiters
	c.waiters = nil
	return w
}

func (c *Coordinator) failWaiters(err error) {
	for _, ch := range c.takeWaiters() {
		ch <- err
	}
}

func (c *Coordinator) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
