package weather

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the coordinator lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRefreshing
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateShutDown:
		return "shut_down"
	default:
		return "invalid"
	}
}

// DefaultCallTimeout bounds every individual upstream call.
const DefaultCallTimeout = 10 * time.Second

// Coordinator owns the fetch-map-publish cycle for one configured location.
// Readers never block on a refresh: the published snapshot is swapped with a
// single atomic store.
type Coordinator struct {
	id     string
	params ConnectionParams
	client Client

	logger      zerolog.Logger
	observer    RefreshObserver
	callTimeout time.Duration
	now         func() time.Time

	state    atomic.Int32
	inFlight atomic.Bool

	// Held across the shut-down check and the store of a new snapshot, and
	// by Shutdown while it flips the state.
	publishMu sync.Mutex

	station    atomic.Pointer[StationData]
	snapshot   atomic.Pointer[Snapshot]
	lastUpdate atomic.Pointer[time.Time]
	lastErr    atomic.Pointer[error]

	// Cancelled by Shutdown to abandon in-flight calls.
	life     context.Context
	stopLife context.CancelFunc

	subMu  sync.Mutex
	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(Update)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithObserver reports cycle outcomes to o.
func WithObserver(o RefreshObserver) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithCallTimeout bounds each upstream call. Non-positive values are ignored.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator in the Uninitialized state. params must
// already be validated.
func NewCoordinator(id string, params ConnectionParams, client Client, opts ...Option) *Coordinator {
	life, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		id:          id,
		params:      params,
		client:      client,
		logger:      zerolog.Nop(),
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
		life:        life,
		stopLife:    stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("entry", id).Logger()
	return c
}

func (c *Coordinator) ID() string               { return c.id }
func (c *Coordinator) Params() ConnectionParams { return c.params }
func (c *Coordinator) State() State             { return State(c.state.Load()) }

// DeviceIdentity groups every entity of this location.
func (c *Coordinator) DeviceIdentity() string {
	return DeviceIdentity(c.params.Latitude, c.params.Longitude)
}

// Snapshot returns the last published snapshot. ok is false until the first
// successful refresh.
func (c *Coordinator) Snapshot() (*Snapshot, bool) {
	s := c.snapshot.Load()
	return s, s != nil
}

// Station returns the cached station metadata.
func (c *Coordinator) Station() (StationData, bool) {
	s := c.station.Load()
	if s == nil {
		return StationData{}, false
	}
	return *s, true
}

// LastUpdate is the time of the last successful publish.
func (c *Coordinator) LastUpdate() (time.Time, bool) {
	t := c.lastUpdate.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// LastError is the error of the most recent cycle, nil after a success.
func (c *Coordinator) LastError() error {
	e := c.lastErr.Load()
	if e == nil {
		return nil
	}
	return *e
}

// Subscribe registers fn for every completed cycle. Callbacks run on the
// refreshing goroutine in registration order and must not call Refresh.
func (c *Coordinator) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Start performs the mandatory first fetch. On failure the coordinator goes
// back to Uninitialized and the returned error wraps ErrInitialization and
// the cause.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		if c.State() == StateShutDown {
			return ErrShutDown
		}
		return fmt.Errorf("%w: coordinator already started", ErrInitialization)
	}

	if _, err := c.refresh(ctx); err != nil {
		c.state.CompareAndSwap(int32(StateInitializing), int32(StateUninitialized))
		return errors.Join(ErrInitialization, err)
	}

	if !c.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		return ErrShutDown
	}
	c.logger.Info().Msg("coordinator ready")
	return nil
}

// Refresh runs one cycle. A concurrent call returns ErrRefreshSkipped without
// touching anything. On failure the previous snapshot stays published.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	switch c.State() {
	case StateShutDown:
		return nil, ErrShutDown
	case StateUninitialized, StateInitializing:
		return nil, fmt.Errorf("%w: coordinator not started", ErrInitialization)
	}

	if !c.state.CompareAndSwap(int32(StateReady), int32(StateRefreshing)) {
		c.observe(OutcomeSkipped, 0)
		return nil, ErrRefreshSkipped
	}
	defer c.state.CompareAndSwap(int32(StateRefreshing), int32(StateReady))

	return c.refresh(ctx)
}

func (c *Coordinator) refresh(ctx context.Context) (*Snapshot, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.observe(OutcomeSkipped, 0)
		return nil, ErrRefreshSkipped
	}
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	cycle := uuid.NewString()
	log := c.logger.With().Str("cycle", cycle).Logger()
	start := c.now()

	snap, err := c.fetch(ctx)
	if err == nil {
		err = c.publish(snap)
	}
	elapsed := c.now().Sub(start)
	c.observe(KindOf(err), elapsed)

	if err != nil {
		c.lastErr.Store(&err)
		switch {
		case errors.Is(err, ErrAuth):
			log.Error().Err(err).Msg("refresh unauthorized")
		case errors.Is(err, ErrShutDown):
			log.Debug().Msg("refresh abandoned after shutdown")
		default:
			log.Warn().Err(err).Dur("elapsed", elapsed).Msg("refresh failed; keeping last snapshot")
		}
		c.notify(Update{EntryID: c.id, Err: err})
		return nil, err
	}

	log.Debug().
		Int("forecast_days", len(snap.Daily)).
		Int("alerts", len(snap.Alerts)).
		Dur("elapsed", elapsed).
		Msg("snapshot published")
	c.notify(Update{EntryID: c.id, Snapshot: snap})
	return snap, nil
}

// publish stores snap unless the coordinator has been shut down.
func (c *Coordinator) publish(snap *Snapshot) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if c.State() == StateShutDown {
		return ErrShutDown
	}
	c.snapshot.Store(snap)
	now := c.now().UTC()
	c.lastUpdate.Store(&now)
	c.lastErr.Store(nil)
	return nil
}

// fetch runs station (once), forecast, observation and alerts in that order.
func (c *Coordinator) fetch(ctx context.Context) (*Snapshot, error) {
	station := c.station.Load()
	if station == nil {
		s, err := callWithTimeout(ctx, c.callTimeout, c.client.FetchStation)
		if err != nil {
			return nil, classify("station", err)
		}
		station = &s
		c.station.Store(station)
	}

	daily, err := callWithTimeout(ctx, c.callTimeout, c.client.FetchForecast)
	if err != nil {
		return nil, classify("forecast", err)
	}
	if len(daily) == 0 {
		return nil, fmt.Errorf("forecast: %w", ErrEmptyResult)
	}

	current, err := callWithTimeout(ctx, c.callTimeout, c.client.FetchCurrentObservation)
	if err != nil {
		return nil, classify("observation", err)
	}

	alerts, err := callWithTimeout(ctx, c.callTimeout, c.client.FetchAlerts)
	if err != nil {
		return nil, classify("alerts", err)
	}

	return buildSnapshot(*station, current, daily, alerts), nil
}

// buildSnapshot copies its inputs so the published snapshot shares no
// backing arrays with the client.
func buildSnapshot(station StationData, current Observation, daily []ForecastDay, alerts []Alert) *Snapshot {
	days := slices.Clone(daily)
	slices.SortStableFunc(days, func(a, b ForecastDay) int {
		return a.Date.Compare(b.Date)
	})

	out := make([]Alert, len(alerts))
	for i, a := range alerts {
		a.Regions = slices.Clone(a.Regions)
		out[i] = a
	}

	return &Snapshot{
		Station: station,
		Current: current,
		Daily:   days,
		Alerts:  out,
	}
}

func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// classify maps anything that is not already one of the known kinds to
// ErrNetwork so only classified errors leave the coordinator.
func classify(op string, err error) error {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrEmptyResult) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
}

func (c *Coordinator) notify(u Update) {
	c.subMu.Lock()
	subs := slices.Clone(c.subs)
	c.subMu.Unlock()

	for _, s := range subs {
		s.fn(u)
	}
}

func (c *Coordinator) observe(outcome string, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRefresh(c.id, outcome, d)
	}
}

// Shutdown stops the coordinator for good. Any in-flight call is cancelled
// and nothing is published afterwards. Safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.publishMu.Lock()
	prev := State(c.state.Swap(int32(StateShutDown)))
	c.publishMu.Unlock()
	if prev == StateShutDown {
		return
	}
	c.stopLife()
	c.logger.Info().Msg("coordinator shut down")
}
