package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weatherbit-service/internal/config"
	"github.com/i474232898/weatherbit-service/internal/presentation"
	"github.com/i474232898/weatherbit-service/internal/scheduler"
	"github.com/i474232898/weatherbit-service/internal/store"
	"github.com/i474232898/weatherbit-service/internal/weather"
)

// ErrNotReady is returned by SetupEntry when the first fetch failed for a
// recoverable reason. A setup retry has been scheduled.
var ErrNotReady = errors.New("entry not ready; setup will be retried")

// ClientFactory builds the Weatherbit client for one entry.
type ClientFactory func(params weather.ConnectionParams) weather.Client

// Runtime is everything that exists for a loaded entry.
type Runtime struct {
	Entry       config.Entry
	Coordinator *weather.Coordinator
	Entities    presentation.Entities
}

// entryState tracks an entry across setup attempts.
type entryState struct {
	entry      config.Entry
	halted     atomic.Bool
	settingUp  atomic.Bool
	setupError atomic.Pointer[error]
}

// EntryStatus is the externally visible state of one entry.
type EntryStatus struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	DeviceIdentity string     `json:"deviceIdentity"`
	State          string     `json:"state"`
	Loaded         bool       `json:"loaded"`
	Halted         bool       `json:"halted"`
	LastUpdate     *time.Time `json:"lastUpdate,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
}

// Manager owns the coordinators: it sets entries up, schedules their
// refreshes and tears them down.
type Manager struct {
	registry  *store.Registry[*Runtime]
	scheduler *scheduler.Scheduler
	newClient ClientFactory

	logger      zerolog.Logger
	observer    weather.RefreshObserver
	callTimeout time.Duration
	setupLimit  int

	mu      sync.Mutex
	entries map[string]*entryState
}

// Option customises a Manager.
type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithObserver(o weather.RefreshObserver) Option {
	return func(m *Manager) { m.observer = o }
}

func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) { m.callTimeout = d }
}

// WithSetupLimit bounds how many entries SetupAll sets up at once.
func WithSetupLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.setupLimit = n
		}
	}
}

func NewManager(reg *store.Registry[*Runtime], sched *scheduler.Scheduler, newClient ClientFactory, opts ...Option) *Manager {
	m := &Manager{
		registry:    reg,
		scheduler:   sched,
		newClient:   newClient,
		logger:      zerolog.Nop(),
		callTimeout: weather.DefaultCallTimeout,
		setupLimit:  4,
		entries:     make(map[string]*entryState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func refreshTag(id string) string { return "refresh:" + id }
func setupTag(id string) string   { return "setup:" + id }

// SetupEntry builds the client and coordinator for entry, runs the first
// fetch and schedules polling. An auth failure is final. Any other failure
// schedules a setup retry at the sensor interval and returns ErrNotReady.
func (m *Manager) SetupEntry(ctx context.Context, entry config.Entry) error {
	m.mu.Lock()
	if _, ok := m.entries[entry.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("setup %s: %w", entry.ID, store.ErrAlreadyRegistered)
	}
	st := &entryState{entry: entry}
	m.entries[entry.ID] = st
	m.mu.Unlock()

	err := m.setup(ctx, st)
	if err == nil {
		return nil
	}
	if errors.Is(err, weather.ErrAuth) {
		return fmt.Errorf("setup %s: %w", entry.ID, err)
	}

	if schedErr := m.scheduler.Add(setupTag(entry.ID), entry.Params.SensorPeriod(), func() {
		m.retrySetup(entry.ID)
	}); schedErr != nil {
		return errors.Join(fmt.Errorf("setup %s: %w", entry.ID, err), schedErr)
	}
	m.logger.Warn().Err(err).Str("entry", entry.ID).Dur("retry_in", entry.Params.SensorPeriod()).Msg("entry not ready; setup retry scheduled")
	return errors.Join(ErrNotReady, fmt.Errorf("setup %s: %w", entry.ID, err))
}

func (m *Manager) setup(ctx context.Context, st *entryState) error {
	if !st.settingUp.CompareAndSwap(false, true) {
		return weather.ErrRefreshSkipped
	}
	defer st.settingUp.Store(false)

	entry := st.entry
	log := m.logger.With().Str("entry", entry.ID).Str("name", entry.Name).Logger()

	coord := weather.NewCoordinator(entry.ID, entry.Params, m.newClient(entry.Params),
		weather.WithLogger(log),
		weather.WithObserver(m.observer),
		weather.WithCallTimeout(m.callTimeout),
	)

	if err := coord.Start(ctx); err != nil {
		coord.Shutdown()
		st.setupError.Store(&err)
		if errors.Is(err, weather.ErrAuth) {
			st.halted.Store(true)
			log.Error().Err(err).Msg("api key rejected; entry will not be set up")
		}
		return err
	}

	// Unloaded while the first fetch was running.
	if cur, ok := m.state(entry.ID); !ok || cur != st {
		coord.Shutdown()
		return store.ErrNotFound
	}

	rt := &Runtime{
		Entry:       entry,
		Coordinator: coord,
		Entities:    presentation.NewEntities(coord),
	}
	if err := m.registry.Register(entry.ID, rt); err != nil {
		coord.Shutdown()
		return err
	}
	st.setupError.Store(nil)
	st.halted.Store(false)

	if err := m.schedule(entry); err != nil {
		_, _ = m.registry.Unregister(entry.ID)
		coord.Shutdown()
		return err
	}

	log.Info().
		Str("device", coord.DeviceIdentity()).
		Dur("interval", entry.Params.SensorPeriod()).
		Msg("entry set up")
	return nil
}

func (m *Manager) schedule(entry config.Entry) error {
	return m.scheduler.Add(refreshTag(entry.ID), entry.Params.SensorPeriod(), func() {
		m.runRefresh(entry.ID)
	})
}

func (m *Manager) retrySetup(id string) {
	st, ok := m.state(id)
	if !ok {
		return
	}

	err := m.setup(context.Background(), st)
	switch {
	case err == nil:
		_ = m.scheduler.Remove(setupTag(id))
	case errors.Is(err, weather.ErrAuth):
		_ = m.scheduler.Remove(setupTag(id))
	case errors.Is(err, weather.ErrRefreshSkipped):
	default:
		m.logger.Warn().Err(err).Str("entry", id).Msg("setup retry failed")
	}
}

func (m *Manager) runRefresh(id string) {
	if _, err := m.Refresh(context.Background(), id); err != nil {
		switch {
		case errors.Is(err, weather.ErrRefreshSkipped):
			m.logger.Debug().Str("entry", id).Msg("refresh skipped; previous cycle still running")
		case errors.Is(err, weather.ErrAuth), errors.Is(err, weather.ErrShutDown):
		default:
			m.logger.Warn().Err(err).Str("entry", id).Msg("scheduled refresh failed")
		}
	}
}

// Refresh runs one cycle for id. An auth failure halts the entry's polling;
// the next successful refresh resumes it.
func (m *Manager) Refresh(ctx context.Context, id string) (*weather.Snapshot, error) {
	rt, err := m.registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	snap, err := rt.Coordinator.Refresh(ctx)
	switch {
	case err == nil:
		m.resume(rt.Entry)
	case errors.Is(err, weather.ErrAuth):
		m.halt(id, err)
	}
	return snap, err
}

func (m *Manager) resume(entry config.Entry) {
	st, ok := m.state(entry.ID)
	if !ok || !st.halted.CompareAndSwap(true, false) {
		return
	}
	if err := m.schedule(entry); err != nil && !errors.Is(err, scheduler.ErrDuplicateTag) {
		m.logger.Error().Err(err).Str("entry", entry.ID).Msg("resume polling")
		return
	}
	m.logger.Info().Str("entry", entry.ID).Msg("api key accepted again; polling resumed")
}

func (m *Manager) halt(id string, cause error) {
	if err := m.scheduler.Remove(refreshTag(id)); err != nil {
		m.logger.Error().Err(err).Str("entry", id).Msg("remove refresh job")
	}
	if st, ok := m.state(id); ok && !st.halted.Swap(true) {
		m.logger.Error().Err(cause).Str("entry", id).Msg("api key rejected; polling halted")
	}
}

// UnloadEntry stops polling, shuts the coordinator down and forgets the entry.
func (m *Manager) UnloadEntry(id string) error {
	m.mu.Lock()
	_, known := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	var errs []error
	for _, tag := range []string{setupTag(id), refreshTag(id)} {
		if err := m.scheduler.Remove(tag); err != nil {
			errs = append(errs, err)
		}
	}

	rt, err := m.registry.Unregister(id)
	switch {
	case err == nil:
		rt.Coordinator.Shutdown()
	case !known:
		return err
	}

	m.logger.Info().Str("entry", id).Msg("entry unloaded")
	return errors.Join(errs...)
}

// ReloadEntry unloads id and sets it up again with the same configuration.
func (m *Manager) ReloadEntry(ctx context.Context, id string) error {
	st, ok := m.state(id)
	if !ok {
		return store.ErrNotFound
	}
	if err := m.UnloadEntry(id); err != nil {
		return err
	}
	return m.SetupEntry(ctx, st.entry)
}

// SetupAll sets every entry up concurrently and joins the failures.
func (m *Manager) SetupAll(ctx context.Context, entries []config.Entry) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(m.setupLimit)

	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := m.SetupEntry(ctx, e); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Shutdown unloads every entry.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.UnloadEntry(id); err != nil {
			m.logger.Warn().Err(err).Str("entry", id).Msg("unload failed")
		}
	}
}

// Lookup returns the runtime of a loaded entry.
func (m *Manager) Lookup(id string) (*Runtime, error) {
	return m.registry.Lookup(id)
}

// Known reports whether id is configured, loaded or not.
func (m *Manager) Known(id string) bool {
	_, ok := m.state(id)
	return ok
}

// Status reports every configured entry ordered by id.
func (m *Manager) Status() []EntryStatus {
	m.mu.Lock()
	states := make([]*entryState, 0, len(m.entries))
	for _, st := range m.entries {
		states = append(states, st)
	}
	m.mu.Unlock()

	sort.Slice(states, func(i, j int) bool { return states[i].entry.ID < states[j].entry.ID })

	out := make([]EntryStatus, 0, len(states))
	for _, st := range states {
		out = append(out, m.status(st))
	}
	return out
}

func (m *Manager) status(st *entryState) EntryStatus {
	e := st.entry
	s := EntryStatus{
		ID:             e.ID,
		Name:           e.Name,
		DeviceIdentity: weather.DeviceIdentity(e.Params.Latitude, e.Params.Longitude),
		State:          "setup_retry",
		Halted:         st.halted.Load(),
	}
	if errp := st.setupError.Load(); errp != nil {
		s.LastError = (*errp).Error()
		if s.Halted {
			s.State = "setup_failed"
		}
	}
	if st.settingUp.Load() {
		s.State = weather.StateInitializing.String()
	}

	rt, err := m.registry.Lookup(e.ID)
	if err != nil {
		return s
	}
	s.Loaded = true
	s.State = rt.Coordinator.State().String()
	if t, ok := rt.Coordinator.LastUpdate(); ok {
		s.LastUpdate = &t
	}
	if err := rt.Coordinator.LastError(); err != nil {
		s.LastError = err.Error()
	} else {
		s.LastError = ""
	}
	return s
}

func (m *Manager) state(id string) (*entryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.entries[id]
	return st, ok
}
