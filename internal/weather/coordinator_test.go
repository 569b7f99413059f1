package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockFailure = errors.New("mock failure")

func ptr[T any](v T) *T { return &v }

// mockClient implements Client with overridable function fields. Nil fields
// return fixture data.
type mockClient struct {
	StationFn  func(ctx context.Context) (StationData, error)
	ForecastFn func(ctx context.Context) ([]ForecastDay, error)
	CurrentFn  func(ctx context.Context) (Observation, error)
	AlertsFn   func(ctx context.Context) ([]Alert, error)

	stationCalls  atomic.Int32
	forecastCalls atomic.Int32
}

func fixtureStation() StationData {
	return StationData{CityName: "Philadelphia", Timezone: "America/New_York", Latitude: 40, Longitude: -75}
}

func fixtureForecast() []ForecastDay {
	base := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	days := make([]ForecastDay, 0, 7)
	for i := 0; i < 7; i++ {
		days = append(days, ForecastDay{
			Date:           base.AddDate(0, 0, i),
			MaxTemperature: ptr(20.0 + float64(i)),
			MinTemperature: ptr(10.0 + float64(i)),
			ConditionCode:  ptr(800),
		})
	}
	return days
}

func fixtureObservation() Observation {
	return Observation{
		Time:          time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		Temperature:   ptr(18.5),
		WindSpeed:     ptr(5.0),
		ConditionCode: ptr(800),
		IsDay:         true,
	}
}

func (m *mockClient) FetchStation(ctx context.Context) (StationData, error) {
	m.stationCalls.Add(1)
	if m.StationFn != nil {
		return m.StationFn(ctx)
	}
	return fixtureStation(), nil
}

func (m *mockClient) FetchForecast(ctx context.Context) ([]ForecastDay, error) {
	m.forecastCalls.Add(1)
	if m.ForecastFn != nil {
		return m.ForecastFn(ctx)
	}
	return fixtureForecast(), nil
}

func (m *mockClient) FetchCurrentObservation(ctx context.Context) (Observation, error) {
	if m.CurrentFn != nil {
		return m.CurrentFn(ctx)
	}
	return fixtureObservation(), nil
}

func (m *mockClient) FetchAlerts(ctx context.Context) ([]Alert, error) {
	if m.AlertsFn != nil {
		return m.AlertsFn(ctx)
	}
	return []Alert{}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveRefresh(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func testParams() ConnectionParams {
	return ConnectionParams{
		APIKey:           "secret",
		Latitude:         40.0,
		Longitude:        -75.0,
		Units:            UnitImperial,
		WindUnit:         WindMetersPerSecond,
		Language:         "en",
		SensorInterval:   5,
		ForecastInterval: 30,
	}
}

func newStarted(t *testing.T, mc *mockClient, opts ...Option) *Coordinator {
	t.Helper()
	c := NewCoordinator("entry-1", testParams(), mc, opts...)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestCoordinator_StartPublishesSnapshot(t *testing.T) {
	mc := &mockClient{}
	c := NewCoordinator("entry-1", testParams(), mc)
	assert.Equal(t, StateUninitialized, c.State())

	_, ok := c.Snapshot()
	assert.False(t, ok)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateReady, c.State())

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "Philadelphia", snap.Station.CityName)
	assert.Len(t, snap.Daily, 7)
	assert.Equal(t, 18.5, *snap.Current.Temperature)
	assert.NotNil(t, snap.Alerts)

	_, ok = c.LastUpdate()
	assert.True(t, ok)
	assert.NoError(t, c.LastError())
	assert.Equal(t, "40.0_-75.0", c.DeviceIdentity())
}

func TestCoordinator_StationFetchedOnce(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)

	for i := 0; i < 3; i++ {
		_, err := c.Refresh(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), mc.stationCalls.Load())
	assert.Equal(t, int32(4), mc.forecastCalls.Load())

	station, ok := c.Station()
	require.True(t, ok)
	assert.Equal(t, fixtureStation(), station)
}

func TestCoordinator_AuthErrorDuringStartNeverReady(t *testing.T) {
	mc := &mockClient{
		ForecastFn: func(_ context.Context) ([]ForecastDay, error) {
			return nil, ErrAuth
		},
	}
	c := NewCoordinator("entry-1", testParams(), mc)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, ErrAuth)
	assert.NotEqual(t, StateReady, c.State())
	assert.Equal(t, StateUninitialized, c.State())

	_, ok := c.Snapshot()
	assert.False(t, ok)

	_, err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestCoordinator_StartTwiceFails(t *testing.T) {
	c := newStarted(t, &mockClient{})
	assert.ErrorIs(t, c.Start(context.Background()), ErrInitialization)
	assert.Equal(t, StateReady, c.State())
}

func TestCoordinator_NetworkErrorKeepsPreviousSnapshot(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)
	before, _ := c.Snapshot()

	mc.CurrentFn = func(_ context.Context) (Observation, error) {
		return Observation{}, ErrNetwork
	}

	snap, err := c.Refresh(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, StateReady, c.State())

	after, ok := c.Snapshot()
	require.True(t, ok)
	assert.Same(t, before, after)
	assert.ErrorIs(t, c.LastError(), ErrNetwork)
}

func TestCoordinator_ForecastEmptyResultFailsWholeCycle(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)
	before, _ := c.Snapshot()

	observed := false
	mc.ForecastFn = func(_ context.Context) ([]ForecastDay, error) {
		return nil, ErrEmptyResult
	}
	mc.CurrentFn = func(_ context.Context) (Observation, error) {
		observed = true
		obs := fixtureObservation()
		obs.Temperature = ptr(30.0)
		return obs, nil
	}

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.False(t, observed)

	after, _ := c.Snapshot()
	assert.Same(t, before, after)
	assert.Equal(t, 18.5, *after.Current.Temperature)
}

func TestCoordinator_EmptyForecastSliceIsEmptyResult(t *testing.T) {
	mc := &mockClient{
		ForecastFn: func(_ context.Context) ([]ForecastDay, error) {
			return []ForecastDay{}, nil
		},
	}
	c := NewCoordinator("entry-1", testParams(), mc)
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestCoordinator_UnclassifiedErrorBecomesNetwork(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)
	mc.AlertsFn = func(_ context.Context) ([]Alert, error) {
		return nil, errMockFailure
	}

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, errMockFailure)
	assert.Equal(t, OutcomeNetwork, KindOf(err))
}

func TestCoordinator_AuthErrorDuringRefreshSurfaced(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)
	mc.CurrentFn = func(_ context.Context) (Observation, error) {
		return Observation{}, ErrAuth
	}

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, StateReady, c.State())
}

func TestCoordinator_IdempotentRefresh(t *testing.T) {
	mc := &mockClient{}
	calls := 0
	mc.CurrentFn = func(_ context.Context) (Observation, error) {
		calls++
		obs := fixtureObservation()
		obs.Time = obs.Time.Add(time.Duration(calls) * time.Minute)
		return obs, nil
	}
	c := newStarted(t, mc)

	first, err := c.Refresh(context.Background())
	require.NoError(t, err)
	second, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Current.Time, second.Current.Time)

	a, b := *first, *second
	a.Current.Time, b.Current.Time = time.Time{}, time.Time{}
	assert.Equal(t, a, b)
}

func TestCoordinator_ForecastSortedAscending(t *testing.T) {
	mc := &mockClient{
		ForecastFn: func(_ context.Context) ([]ForecastDay, error) {
			days := fixtureForecast()
			days[0], days[3] = days[3], days[0]
			return days, nil
		},
	}
	c := newStarted(t, mc)
	snap, _ := c.Snapshot()

	for i := 1; i < len(snap.Daily); i++ {
		assert.True(t, snap.Daily[i-1].Date.Before(snap.Daily[i].Date))
	}
	today, ok := snap.Today()
	require.True(t, ok)
	assert.Equal(t, 15, today.Date.Day())
}

func TestCoordinator_SnapshotDoesNotShareClientSlices(t *testing.T) {
	shared := fixtureForecast()
	mc := &mockClient{
		ForecastFn: func(_ context.Context) ([]ForecastDay, error) { return shared, nil },
	}
	c := newStarted(t, mc)

	shared[0].MaxTemperature = ptr(99.0)
	snap, _ := c.Snapshot()
	assert.Equal(t, 20.0, *snap.Daily[0].MaxTemperature)
}

func TestCoordinator_ConcurrentRefreshIsSkipped(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)

	started := make(chan struct{})
	release := make(chan struct{})
	mc.ForecastFn = func(_ context.Context) ([]ForecastDay, error) {
		close(started)
		<-release
		return fixtureForecast(), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()

	<-started
	assert.Equal(t, StateRefreshing, c.State())

	snap, err := c.Refresh(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrRefreshSkipped)

	// Readers still see the previous complete snapshot.
	prev, ok := c.Snapshot()
	require.True(t, ok)
	assert.Len(t, prev.Daily, 7)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, int32(2), mc.forecastCalls.Load())
}

func TestCoordinator_CallTimeoutIsRecoverable(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc, WithCallTimeout(20*time.Millisecond))

	mc.CurrentFn = func(ctx context.Context) (Observation, error) {
		<-ctx.Done()
		return Observation{}, ctx.Err()
	}

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateReady, c.State())
}

func TestCoordinator_ShutdownCancelsInFlight(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)
	before, _ := c.Snapshot()

	started := make(chan struct{})
	mc.ForecastFn = func(ctx context.Context) ([]ForecastDay, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()

	<-started
	c.Shutdown()
	c.Shutdown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight refresh was not cancelled")
	}

	assert.Equal(t, StateShutDown, c.State())
	after, _ := c.Snapshot()
	assert.Same(t, before, after)

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrShutDown)
	assert.ErrorIs(t, c.Start(context.Background()), ErrShutDown)
}

func TestCoordinator_ShutdownDuringLastCallPublishesNothing(t *testing.T) {
	mc := &mockClient{}
	c := newStarted(t, mc)
	before, _ := c.Snapshot()
	updatedBefore, _ := c.LastUpdate()

	mc.AlertsFn = func(context.Context) ([]Alert, error) {
		c.Shutdown()
		return []Alert{}, nil
	}

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrShutDown)

	after, _ := c.Snapshot()
	assert.Same(t, before, after)
	updatedAfter, _ := c.LastUpdate()
	assert.Equal(t, updatedBefore, updatedAfter)
}

func TestCoordinator_NoPublishAfterShutdownReturns(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := newStarted(t, &mockClient{})

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = c.Refresh(context.Background())
		}()

		c.Shutdown()
		atShutdown, _ := c.Snapshot()
		<-done
		final, _ := c.Snapshot()
		require.Same(t, atShutdown, final, "iteration %d", i)
	}
}

func TestCoordinator_SubscribersNotified(t *testing.T) {
	mc := &mockClient{}
	c := NewCoordinator("entry-1", testParams(), mc)

	var updates []Update
	unsubscribe := c.Subscribe(func(u Update) { updates = append(updates, u) })

	require.NoError(t, c.Start(context.Background()))
	require.Len(t, updates, 1)
	assert.NotNil(t, updates[0].Snapshot)
	assert.NoError(t, updates[0].Err)
	assert.Equal(t, "entry-1", updates[0].EntryID)

	mc.ForecastFn = func(_ context.Context) ([]ForecastDay, error) { return nil, ErrNetwork }
	_, _ = c.Refresh(context.Background())
	require.Len(t, updates, 2)
	assert.Nil(t, updates[1].Snapshot)
	assert.ErrorIs(t, updates[1].Err, ErrNetwork)

	unsubscribe()
	_, _ = c.Refresh(context.Background())
	assert.Len(t, updates, 2)
}

func TestCoordinator_ObserverSeesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	mc := &mockClient{}
	c := newStarted(t, mc, WithObserver(obs))

	mc.ForecastFn = func(_ context.Context) ([]ForecastDay, error) { return nil, ErrEmptyResult }
	_, _ = c.Refresh(context.Background())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{OutcomeOK, OutcomeEmpty}, obs.outcomes)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, OutcomeOK, KindOf(nil))
	assert.Equal(t, OutcomeAuth, KindOf(errors.Join(ErrInitialization, ErrAuth)))
	assert.Equal(t, OutcomeSkipped, KindOf(ErrRefreshSkipped))
	assert.Equal(t, OutcomeShutdown, KindOf(ErrShutDown))
	assert.Equal(t, OutcomeOther, KindOf(errMockFailure))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "shut_down", StateShutDown.String())
}
