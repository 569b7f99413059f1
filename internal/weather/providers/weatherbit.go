package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weatherbit-service/internal/weather"
)

// DefaultBaseURL is the Weatherbit v2.0 API root.
const DefaultBaseURL = "https://api.weatherbit.io/v2.0"

// DefaultForecastDays is how many daily entries are requested.
const DefaultForecastDays = 7

// Endpoint names used for cache keys and metrics.
const (
	EndpointStation  = "station"
	EndpointForecast = "forecast"
	EndpointCurrent  = "current"
	EndpointAlerts   = "alerts"
)

// FetchObserver receives per-request outcomes and cache lookups.
type FetchObserver interface {
	ObserveFetch(endpoint, outcome string, d time.Duration)
	ObserveCache(endpoint string, hit bool)
}

// WeatherbitClient implements weather.Client for one location.
type WeatherbitClient struct {
	name         string
	apiKey       string
	baseURL      string
	lat, lon     float64
	language     string
	forecastDays int
	forecastTTL  time.Duration

	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	cache    ResponseCache
	observer FetchObserver
	logger   zerolog.Logger
}

// Option customises a WeatherbitClient.
type Option func(*WeatherbitClient)

func WithBaseURL(u string) Option {
	return func(c *WeatherbitClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithForecastDays(n int) Option {
	return func(c *WeatherbitClient) {
		if n > 0 {
			c.forecastDays = n
		}
	}
}

func WithCache(rc ResponseCache) Option {
	return func(c *WeatherbitClient) {
		if rc != nil {
			c.cache = rc
		}
	}
}

func WithFetchObserver(o FetchObserver) Option {
	return func(c *WeatherbitClient) { c.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *WeatherbitClient) { c.logger = l }
}

// NewWeatherbitClient builds a client for params. Upstream data is always
// requested in metric units; conversion happens on the read path.
func NewWeatherbitClient(client *http.Client, params weather.ConnectionParams, opts ...Option) *WeatherbitClient {
	name := "weatherbit:" + weather.DeviceIdentity(params.Latitude, params.Longitude)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	c := &WeatherbitClient{
		name:         name,
		apiKey:       params.APIKey,
		baseURL:      DefaultBaseURL,
		lat:          params.Latitude,
		lon:          params.Longitude,
		language:     params.Language,
		forecastDays: DefaultForecastDays,
		forecastTTL:  params.ForecastPeriod(),
		httpCfg:      HTTPClientConfig{Client: client},
		circuit:      cb,
		cache:        noopCache{},
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WeatherbitClient) Name() string {
	return c.name
}

// FetchStation reads the location metadata carried by the current endpoint.
func (c *WeatherbitClient) FetchStation(ctx context.Context) (weather.StationData, error) {
	var payload currentPayload
	if err := c.get(ctx, EndpointStation, "/current", nil, 0, &payload); err != nil {
		return weather.StationData{}, err
	}
	if len(payload.Data) == 0 {
		return weather.StationData{}, fmt.Errorf("station: %w", weather.ErrEmptyResult)
	}
	return payload.Data[0].station(), nil
}

// FetchForecast returns the daily forecast, served from cache within the
// forecast interval.
func (c *WeatherbitClient) FetchForecast(ctx context.Context) ([]weather.ForecastDay, error) {
	extra := url.Values{}
	extra.Set("days", strconv.Itoa(c.forecastDays))

	var payload forecastPayload
	if err := c.get(ctx, EndpointForecast, "/forecast/daily", extra, c.forecastTTL, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("forecast: %w", weather.ErrEmptyResult)
	}

	days := make([]weather.ForecastDay, 0, len(payload.Data))
	for _, d := range payload.Data {
		day, err := d.forecastDay()
		if err != nil {
			return nil, fmt.Errorf("forecast: %w: %w", weather.ErrNetwork, err)
		}
		days = append(days, day)
	}
	return days, nil
}

// FetchCurrentObservation returns the latest observation.
func (c *WeatherbitClient) FetchCurrentObservation(ctx context.Context) (weather.Observation, error) {
	var payload currentPayload
	if err := c.get(ctx, EndpointCurrent, "/current", nil, 0, &payload); err != nil {
		return weather.Observation{}, err
	}
	if len(payload.Data) == 0 {
		return weather.Observation{}, fmt.Errorf("current: %w", weather.ErrEmptyResult)
	}
	return payload.Data[0].observation(), nil
}

// FetchAlerts returns active alerts. No alerts is a valid, empty result.
func (c *WeatherbitClient) FetchAlerts(ctx context.Context) ([]weather.Alert, error) {
	var payload alertsPayload
	err := c.get(ctx, EndpointAlerts, "/alerts", nil, 0, &payload)
	if err != nil {
		return nil, err
	}

	alerts := make([]weather.Alert, 0, len(payload.Alerts))
	for _, a := range payload.Alerts {
		alerts = append(alerts, a.alert())
	}
	return alerts, nil
}

// get fetches path, consulting the cache when ttl is positive, and decodes
// the body into out.
func (c *WeatherbitClient) get(ctx context.Context, endpoint, path string, extra url.Values, ttl time.Duration, out any) (err error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(c.lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(c.lon, 'f', -1, 64))
	values.Set("lang", c.language)
	values.Set("units", "M")
	for k, vs := range extra {
		for _, v := range vs {
			values.Add(k, v)
		}
	}

	cacheKey := path + "?" + values.Encode()
	if ttl > 0 {
		if body, ok := c.cache.Get(cacheKey); ok {
			c.observeCache(endpoint, true)
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
		} else {
			c.observeCache(endpoint, false)
		}
	}

	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveFetch(endpoint, weather.KindOf(err), time.Since(start))
		}
	}()

	values.Set("key", c.apiKey)
	u := c.baseURL + path + "?" + values.Encode()

	body, err := doRequest(ctx, c.httpCfg, c.circuit, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("weatherbit request failed")
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	if err := decodeBody(body, out); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	if ttl > 0 {
		if err := c.cache.Set(cacheKey, body, ttl); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("response not cached")
		}
	}
	return nil
}

func (c *WeatherbitClient) observeCache(endpoint string, hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(endpoint, hit)
	}
}

// decodeBody unmarshals a 2xx body. Weatherbit sometimes answers 200 with
// an {"error": ...} object instead of data.
func decodeBody(body []byte, out any) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		if isKeyError(apiErr.Error) {
			return fmt.Errorf("%w: %s", weather.ErrAuth, apiErr.Error)
		}
		return fmt.Errorf("%w: %s", weather.ErrNetwork, apiErr.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode payload: %w", weather.ErrNetwork, err)
	}
	return nil
}
