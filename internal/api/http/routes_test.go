package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weatherbit-service/internal/config"
	"github.com/i474232898/weatherbit-service/internal/integration"
	"github.com/i474232898/weatherbit-service/internal/metrics"
	"github.com/i474232898/weatherbit-service/internal/scheduler"
	"github.com/i474232898/weatherbit-service/internal/store"
	"github.com/i474232898/weatherbit-service/internal/weather"
)

// stubClient serves fixed data. While err is set every forecast call fails;
// while block is set forecast calls wait on it.
type stubClient struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	started chan struct{}
}

func (c *stubClient) set(err error, block chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err, c.block = err, block
	c.started = make(chan struct{}, 1)
}

func (c *stubClient) FetchStation(context.Context) (weather.StationData, error) {
	return weather.StationData{CityName: "Philadelphia"}, nil
}

func (c *stubClient) FetchForecast(context.Context) ([]weather.ForecastDay, error) {
	c.mu.Lock()
	err, block, started := c.err, c.block, c.started
	c.mu.Unlock()

	if block != nil {
		started <- struct{}{}
		<-block
	}
	if err != nil {
		return nil, err
	}

	days := make([]weather.ForecastDay, 0, 3)
	for i := 0; i < 3; i++ {
		code, high := 800, 20.0+float64(i)
		days = append(days, weather.ForecastDay{
			Date:           time.Date(2026, 10, 15+i, 0, 0, 0, 0, time.UTC),
			ConditionCode:  &code,
			MaxTemperature: &high,
		})
	}
	return days, nil
}

func (c *stubClient) FetchCurrentObservation(context.Context) (weather.Observation, error) {
	temp, code := 20.0, 800
	return weather.Observation{
		Time:          time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		Temperature:   &temp,
		ConditionCode: &code,
		IsDay:         true,
	}, nil
}

func (c *stubClient) FetchAlerts(context.Context) ([]weather.Alert, error) {
	return []weather.Alert{{Title: "Wind Advisory", Regions: []string{"Philadelphia"}}}, nil
}

type testEnv struct {
	app     *fiber.App
	manager *integration.Manager
	clients map[string]*stubClient
}

func newTestEnv(t *testing.T, failing map[string]error) *testEnv {
	t.Helper()

	env := &testEnv{clients: map[string]*stubClient{}}
	for _, id := range []string{"home", "cabin", "bad-key"} {
		c := &stubClient{}
		c.set(failing[id], nil)
		env.clients["key-"+id] = c
	}

	env.manager = integration.NewManager(
		store.NewRegistry[*integration.Runtime](),
		scheduler.New(zerolog.Nop()),
		func(p weather.ConnectionParams) weather.Client { return env.clients[p.APIKey] },
	)
	t.Cleanup(env.manager.Shutdown)

	for i, id := range []string{"home", "cabin", "bad-key"} {
		_ = env.manager.SetupEntry(context.Background(), config.Entry{
			ID:   id,
			Name: id,
			Params: weather.ConnectionParams{
				APIKey:           "key-" + id,
				Latitude:         40 + float64(i),
				Longitude:        -75,
				Units:            weather.UnitImperial,
				WindUnit:         weather.WindMetersPerSecond,
				Language:         "en",
				SensorInterval:   5,
				ForecastInterval: 30,
			},
		})
	}

	env.app = NewApp(env.manager, metrics.New(true), false)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string) (int, []byte) {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"ok"`)

	code, body = env.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "weatherbit_refresh_total")
	assert.Contains(t, string(body), `weatherbit_http_requests_total{route="/health",status="2xx"} 1`)
}

func TestListLocations(t *testing.T) {
	env := newTestEnv(t, map[string]error{"bad-key": weather.ErrAuth, "cabin": weather.ErrNetwork})

	code, body := env.do(t, http.MethodGet, "/api/v1/locations")
	require.Equal(t, http.StatusOK, code)

	var status []integration.EntryStatus
	require.NoError(t, json.Unmarshal(body, &status))
	require.Len(t, status, 3)

	byID := map[string]integration.EntryStatus{}
	for _, s := range status {
		byID[s.ID] = s
	}
	assert.Equal(t, "ready", byID["home"].State)
	assert.Equal(t, "setup_retry", byID["cabin"].State)
	assert.Equal(t, "setup_failed", byID["bad-key"].State)
	assert.True(t, byID["bad-key"].Halted)
}

func TestWeatherEndpoint(t *testing.T) {
	env := newTestEnv(t, map[string]error{"cabin": weather.ErrNetwork})

	code, body := env.do(t, http.MethodGet, "/api/v1/locations/home/weather")
	require.Equal(t, http.StatusOK, code)

	var view struct {
		Available   bool             `json:"available"`
		Condition   string           `json:"condition"`
		Temperature float64          `json:"temperature"`
		Units       map[string]any   `json:"units"`
		Forecast    []map[string]any `json:"forecast"`
		Attribution string           `json:"attribution"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	assert.True(t, view.Available)
	assert.Equal(t, "sunny", view.Condition)
	assert.Equal(t, 68.0, view.Temperature)
	assert.Equal(t, "°F", view.Units["temperature"])
	assert.Len(t, view.Forecast, 3)
	assert.Equal(t, "Powered by Weatherbit.io", view.Attribution)

	code, body = env.do(t, http.MethodGet, "/api/v1/locations/home/weather?days=1")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Len(t, view.Forecast, 1)

	code, _ = env.do(t, http.MethodGet, "/api/v1/locations/home/weather?days=0")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodGet, "/api/v1/locations/home/weather?days=17")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/locations/nowhere/weather")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/locations/cabin/weather")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestSensorEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, http.MethodGet, "/api/v1/locations/home/sensors")
	require.Equal(t, http.StatusOK, code)
	var all []sensorView
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 19)

	code, body = env.do(t, http.MethodGet, "/api/v1/locations/home/sensors/temp")
	require.Equal(t, http.StatusOK, code)
	var one sensorView
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, "40.0_-75.0_temp", one.UniqueID)
	assert.Equal(t, "Weatherbit Temperature", one.Name)
	assert.Equal(t, 68.0, one.Reading.Value)
	assert.Equal(t, "°F", one.Reading.Unit)
	assert.True(t, one.Reading.Available)

	code, _ = env.do(t, http.MethodGet, "/api/v1/locations/home/sensors/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAlertsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, http.MethodGet, "/api/v1/locations/home/alerts")
	require.Equal(t, http.StatusOK, code)

	var resp struct {
		Count  int             `json:"count"`
		Alerts []weather.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Wind Advisory", resp.Alerts[0].Title)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	stub := env.clients["key-home"]

	code, _ := env.do(t, http.MethodPost, "/api/v1/locations/home/refresh")
	assert.Equal(t, http.StatusOK, code)

	stub.set(weather.ErrNetwork, nil)
	code, _ = env.do(t, http.MethodPost, "/api/v1/locations/home/refresh")
	assert.Equal(t, http.StatusBadGateway, code)

	// The last good data is still served.
	code, _ = env.do(t, http.MethodGet, "/api/v1/locations/home/weather")
	assert.Equal(t, http.StatusOK, code)

	stub.set(weather.ErrAuth, nil)
	code, _ = env.do(t, http.MethodPost, "/api/v1/locations/home/refresh")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/locations/nowhere/refresh")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRefreshEndpoint_ConflictWhileInFlight(t *testing.T) {
	env := newTestEnv(t, nil)
	stub := env.clients["key-home"]

	release := make(chan struct{})
	stub.set(nil, release)
	started := stub.started

	done := make(chan error, 1)
	go func() {
		_, err := env.manager.Refresh(context.Background(), "home")
		done <- err
	}()
	<-started

	code, _ := env.do(t, http.MethodPost, "/api/v1/locations/home/refresh")
	assert.Equal(t, http.StatusConflict, code)

	close(release)
	require.NoError(t, <-done)
}
