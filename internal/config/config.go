package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"
	"github.com/spf13/viper"

	"github.com/i474232898/weatherbit-service/internal/common"
	"github.com/i474232898/weatherbit-service/internal/weather"
)

// Languages accepted by the Weatherbit "lang" parameter.
var Languages = []string{
	"ar", "az", "be", "bg", "bs", "ca", "cz", "da", "de", "el", "en", "es", "et",
	"fi", "fr", "hr", "hu", "id", "is", "it", "iw", "ja", "kw", "lt", "nb", "nl",
	"pl", "pt", "ro", "ru", "sk", "sl", "sr", "sv", "tr", "uk", "zh", "zh-tw",
}

var (
	ErrDuplicateEntry = errors.New("duplicate location")
	ErrNoCoordinates  = errors.New("location needs latitude/longitude or city/country")
	ErrNoGeocoder     = errors.New("geocoding requires GEOCODER_API_KEY")
)

// Entry is one configured location.
type Entry struct {
	ID      string                   `json:"id" validate:"required"`
	Name    string                   `json:"name" validate:"required"`
	City    string                   `json:"city,omitempty"`
	Country string                   `json:"country,omitempty"`
	Params  weather.ConnectionParams `json:"params"`
}

type AppConfig struct {
	Port      string `validate:"required"`
	LogLevel  string
	LogFormat string `validate:"oneof=json console"`

	// Upstream client settings, shared by every entry.
	BaseURL      string        `validate:"omitempty,url"`
	HTTPTimeout  time.Duration `validate:"gt=0"`
	ForecastDays int           `validate:"gte=1,lte=16"`
	CacheSizeMB  int           `validate:"gte=0"`

	MetricsEnabled   bool
	SetupConcurrency int `validate:"gte=1"`

	// DotEnvLoaded reports whether a .env file was found.
	DotEnvLoaded bool

	Entries []Entry `validate:"required,min=1,dive"`
}

// Geocoder resolves a city and country to coordinates.
type Geocoder interface {
	Geocode(city, country string) (lat, lon float64, err error)
}

// GoogleGeocoder resolves addresses through the Google Geocoding API.
type GoogleGeocoder struct {
	APIKey string
}

// kelvins/geocoder keeps the key in a package variable.
var geocoderMu sync.Mutex

func (g GoogleGeocoder) Geocode(city, country string) (float64, float64, error) {
	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = g.APIKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s, %s: %w", city, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}

// Option customises Load.
type Option func(*loader)

// WithGeocoder replaces the Google geocoder.
func WithGeocoder(g Geocoder) Option {
	return func(l *loader) { l.geocoder = g }
}

// WithConfigFile reads path instead of $WEATHERBIT_CONFIG.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.file = path }
}

type loader struct {
	v        *viper.Viper
	geocoder Geocoder
	file     string
}

// rawEntry is the shape of one item of the YAML "locations" list and of the
// top-level keys.
type rawEntry struct {
	ID               string   `mapstructure:"id"`
	Name             string   `mapstructure:"name"`
	APIKey           string   `mapstructure:"api_key"`
	Latitude         *float64 `mapstructure:"latitude"`
	Longitude        *float64 `mapstructure:"longitude"`
	City             string   `mapstructure:"city"`
	Country          string   `mapstructure:"country"`
	Units            string   `mapstructure:"units"`
	WindUnit         string   `mapstructure:"wind_unit"`
	Language         string   `mapstructure:"language"`
	SensorInterval   int      `mapstructure:"sensor_interval"`
	ForecastInterval int      `mapstructure:"forecast_interval"`
}

// Load reads .env, WEATHERBIT_* environment variables and the optional YAML
// file named by WEATHERBIT_CONFIG, then validates the result.
func Load(opts ...Option) (*AppConfig, error) {
	dotenv := godotenv.Load() == nil

	l := &loader{v: viper.New(), file: os.Getenv("WEATHERBIT_CONFIG")}
	for _, opt := range opts {
		opt(l)
	}
	setDefaults(l.v)

	if l.file != "" {
		l.v.SetConfigFile(l.file)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.file, err)
		}
	}

	if l.geocoder == nil {
		if key := l.v.GetString("geocoder_api_key"); key != "" {
			l.geocoder = GoogleGeocoder{APIKey: key}
		}
	}

	cfg := &AppConfig{
		Port:             l.v.GetString("port"),
		LogLevel:         l.v.GetString("log_level"),
		LogFormat:        strings.ToLower(l.v.GetString("log_format")),
		BaseURL:          l.v.GetString("base_url"),
		HTTPTimeout:      l.v.GetDuration("http_timeout"),
		ForecastDays:     l.v.GetInt("forecast_days"),
		CacheSizeMB:      l.v.GetInt("cache_size_mb"),
		MetricsEnabled:   l.v.GetBool("metrics_enabled"),
		SetupConcurrency: l.v.GetInt("setup_concurrency"),
		DotEnvLoaded:     dotenv,
	}

	entries, err := l.entries()
	if err != nil {
		return nil, err
	}
	cfg.Entries = entries

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix("WEATHERBIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("log_format", "LOG_FORMAT")
	_ = v.BindEnv("geocoder_api_key", "GEOCODER_API_KEY")

	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("forecast_days", 7)
	v.SetDefault("cache_size_mb", 32)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("setup_concurrency", 4)

	v.SetDefault("name", "Weatherbit")
	v.SetDefault("units", string(weather.UnitMetric))
	v.SetDefault("wind_unit", string(weather.WindMetersPerSecond))
	v.SetDefault("language", "en")
	v.SetDefault("sensor_interval", 5)
	v.SetDefault("forecast_interval", 30)
}

func (l *loader) topLevel() rawEntry {
	v := l.v
	top := rawEntry{
		ID:               v.GetString("id"),
		Name:             v.GetString("name"),
		APIKey:           v.GetString("api_key"),
		City:             v.GetString("city"),
		Country:          v.GetString("country"),
		Units:            strings.ToLower(v.GetString("units")),
		WindUnit:         strings.ToLower(v.GetString("wind_unit")),
		Language:         strings.ToLower(v.GetString("language")),
		SensorInterval:   v.GetInt("sensor_interval"),
		ForecastInterval: v.GetInt("forecast_interval"),
	}
	if v.IsSet("latitude") {
		lat := v.GetFloat64("latitude")
		top.Latitude = &lat
	}
	if v.IsSet("longitude") {
		lon := v.GetFloat64("longitude")
		top.Longitude = &lon
	}
	return top
}

func (l *loader) entries() ([]Entry, error) {
	top := l.topLevel()

	var locations []rawEntry
	if l.v.IsSet("locations") {
		if err := l.v.UnmarshalKey("locations", &locations); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
	}

	if len(locations) == 0 {
		e, err := l.build(rawEntry{}, top)
		if err != nil {
			return nil, err
		}
		return []Entry{e}, nil
	}

	entries := make([]Entry, 0, len(locations))
	for i, loc := range locations {
		// Only the single-entry form inherits the top-level id.
		inherited := top
		inherited.ID = ""
		if loc.City != "" || loc.Country != "" {
			inherited.Latitude, inherited.Longitude = nil, nil
		}
		e, err := l.build(inherited, loc)
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// build merges loc over top and resolves coordinates.
func (l *loader) build(top, loc rawEntry) (Entry, error) {
	city := common.FirstNonEmpty(loc.City, top.City)
	country := common.FirstNonEmpty(loc.Country, top.Country)

	lat, lon := loc.Latitude, loc.Longitude
	if lat == nil {
		lat = top.Latitude
	}
	if lon == nil {
		lon = top.Longitude
	}

	if lat == nil || lon == nil {
		if city == "" {
			return Entry{}, ErrNoCoordinates
		}
		if l.geocoder == nil {
			return Entry{}, ErrNoGeocoder
		}
		gLat, gLon, err := l.geocoder.Geocode(city, country)
		if err != nil {
			return Entry{}, err
		}
		lat, lon = &gLat, &gLon
	}

	params := weather.ConnectionParams{
		APIKey:           common.FirstNonEmpty(loc.APIKey, top.APIKey),
		Latitude:         *lat,
		Longitude:        *lon,
		Units:            weather.UnitSystem(strings.ToLower(common.FirstNonEmpty(loc.Units, top.Units))),
		WindUnit:         weather.WindUnit(strings.ToLower(common.FirstNonEmpty(loc.WindUnit, top.WindUnit))),
		Language:         strings.ToLower(common.FirstNonEmpty(loc.Language, top.Language)),
		SensorInterval:   firstPositive(loc.SensorInterval, top.SensorInterval),
		ForecastInterval: firstPositive(loc.ForecastInterval, top.ForecastInterval),
	}

	identity := weather.DeviceIdentity(params.Latitude, params.Longitude)
	return Entry{
		ID:      common.FirstNonEmpty(loc.ID, top.ID, EntryID(identity)),
		Name:    common.FirstNonEmpty(loc.Name, city, top.Name),
		City:    city,
		Country: country,
		Params:  params,
	}, nil
}

// EntryID derives a stable id from a device identity.
func EntryID(identity string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("weatherbit:"+identity)).String()
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// NewValidator returns a validator that knows the weatherbit_lang rule.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("weatherbit_lang", func(fl validator.FieldLevel) bool {
		return slices.Contains(Languages, fl.Field().String())
	})
	return v
}

// Validate checks field constraints and rejects duplicate ids, names and
// locations.
func Validate(cfg *AppConfig) error {
	if err := NewValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ids := make(map[string]bool, len(cfg.Entries))
	names := make(map[string]bool, len(cfg.Entries))
	devices := make(map[string]bool, len(cfg.Entries))
	for _, e := range cfg.Entries {
		device := weather.DeviceIdentity(e.Params.Latitude, e.Params.Longitude)
		switch {
		case ids[e.ID]:
			return fmt.Errorf("%w: id %q", ErrDuplicateEntry, e.ID)
		case names[e.Name]:
			return fmt.Errorf("%w: name %q", ErrDuplicateEntry, e.Name)
		case devices[device]:
			return fmt.Errorf("%w: coordinates %s", ErrDuplicateEntry, device)
		}
		ids[e.ID], names[e.Name], devices[device] = true, true, true
	}
	return nil
}
