package weather

import (
	"strconv"
	"strings"
	"time"
)

// UnitSystem selects how values are presented. Storage is always metric.
type UnitSystem string

const (
	UnitMetric   UnitSystem = "metric"
	UnitImperial UnitSystem = "imperial"
)

// WindUnit selects the metric wind speed unit.
type WindUnit string

const (
	WindMetersPerSecond WindUnit = "m/s"
	WindKilometersHour  WindUnit = "km/h"
)

// ConnectionParams is everything a coordinator needs to talk to Weatherbit
// for one configured location. The config layer validates it before use.
type ConnectionParams struct {
	APIKey    string     `json:"-" validate:"required"`
	Latitude  float64    `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64    `json:"longitude" validate:"gte=-180,lte=180"`
	Units     UnitSystem `json:"units" validate:"oneof=metric imperial"`
	WindUnit  WindUnit   `json:"windUnit" validate:"oneof=m/s km/h"`
	Language  string     `json:"language" validate:"required,weatherbit_lang"`

	// Poll intervals in minutes.
	SensorInterval   int `json:"sensorInterval" validate:"gte=1"`
	ForecastInterval int `json:"forecastInterval" validate:"gte=1"`
}

// SensorPeriod is the coordinator tick interval.
func (p ConnectionParams) SensorPeriod() time.Duration {
	return time.Duration(p.SensorInterval) * time.Minute
}

// ForecastPeriod is how long a forecast payload stays fresh.
func (p ConnectionParams) ForecastPeriod() time.Duration {
	return time.Duration(p.ForecastInterval) * time.Minute
}

// DeviceIdentity groups every entity of one location under one logical device.
// Whole numbers are rendered with a trailing ".0" ("40.0_-75.0").
func DeviceIdentity(lat, lon float64) string {
	return formatCoordinate(lat) + "_" + formatCoordinate(lon)
}

func formatCoordinate(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// StationData is static metadata about the queried location.
type StationData struct {
	CityName    string  `json:"cityName"`
	Timezone    string  `json:"timezone"`
	StationID   string  `json:"station,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	StateCode   string  `json:"stateCode,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Observation holds instantaneous weather fields. Nil means the provider
// did not report the value.
type Observation struct {
	Time time.Time `json:"time"` // always UTC

	Temperature         *float64 `json:"temperatureC,omitempty"`
	ApparentTemperature *float64 `json:"apparentTemperatureC,omitempty"`
	DewPoint            *float64 `json:"dewPointC,omitempty"`
	Humidity            *float64 `json:"humidityPercent,omitempty"`
	Pressure            *float64 `json:"pressureHpa,omitempty"`
	SeaLevelPressure    *float64 `json:"seaLevelPressureHpa,omitempty"`
	WindSpeed           *float64 `json:"windSpeedMs,omitempty"`
	WindGust            *float64 `json:"windGustMs,omitempty"`
	WindBearing         *float64 `json:"windBearing,omitempty"`
	WindCardinal        string   `json:"windCardinal,omitempty"`
	Visibility          *float64 `json:"visibilityKm,omitempty"`
	UVIndex             *float64 `json:"uvIndex,omitempty"`
	AirQuality          *float64 `json:"aqi,omitempty"`
	Precipitation       *float64 `json:"precipMm,omitempty"`
	Snow                *float64 `json:"snowMm,omitempty"`
	CloudCover          *float64 `json:"cloudCoverPercent,omitempty"`
	SolarRadiation      *float64 `json:"solarRadiationWm2,omitempty"`

	ConditionCode *int   `json:"conditionCode,omitempty"`
	Description   string `json:"description,omitempty"`
	Icon          string `json:"icon,omitempty"`
	IsDay         bool   `json:"isDay"`
	Sunrise       string `json:"sunrise,omitempty"`
	Sunset        string `json:"sunset,omitempty"`
}

// Condition resolves the observation's condition code.
func (o Observation) Condition() Condition {
	if o.ConditionCode == nil {
		return ConditionUnknown
	}
	return MapCondition(*o.ConditionCode, o.IsDay)
}

// ForecastDay is one entry of the daily forecast.
type ForecastDay struct {
	Date time.Time `json:"date"` // midnight UTC of valid_date

	Temperature              *float64 `json:"temperatureC,omitempty"`
	MaxTemperature           *float64 `json:"maxTemperatureC,omitempty"`
	MinTemperature           *float64 `json:"minTemperatureC,omitempty"`
	ApparentMaxTemperature   *float64 `json:"apparentMaxTemperatureC,omitempty"`
	ApparentMinTemperature   *float64 `json:"apparentMinTemperatureC,omitempty"`
	Precipitation            *float64 `json:"precipMm,omitempty"`
	PrecipitationProbability *float64 `json:"precipProbability,omitempty"`
	Snow                     *float64 `json:"snowMm,omitempty"`
	SnowDepth                *float64 `json:"snowDepthMm,omitempty"`
	WindSpeed                *float64 `json:"windSpeedMs,omitempty"`
	WindGust                 *float64 `json:"windGustMs,omitempty"`
	WindBearing              *float64 `json:"windBearing,omitempty"`
	WindCardinal             string   `json:"windCardinal,omitempty"`
	CloudCover               *float64 `json:"cloudCoverPercent,omitempty"`
	Humidity                 *float64 `json:"humidityPercent,omitempty"`
	Pressure                 *float64 `json:"pressureHpa,omitempty"`
	UVIndex                  *float64 `json:"uvIndex,omitempty"`
	Ozone                    *float64 `json:"ozone,omitempty"`
	Visibility               *float64 `json:"visibilityKm,omitempty"`

	ConditionCode *int   `json:"conditionCode,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Condition resolves the day's condition code. Forecast days are always
// presented with their daytime variant.
func (f ForecastDay) Condition() Condition {
	if f.ConditionCode == nil {
		return ConditionUnknown
	}
	return MapCondition(*f.ConditionCode, true)
}

// Alert is an active severe weather alert, kept in provider order.
type Alert struct {
	Title       string    `json:"title"`
	Severity    string    `json:"severity"`
	Effective   time.Time `json:"effective"`
	Onset       time.Time `json:"onset"`
	Expires     time.Time `json:"expires"`
	Ends        time.Time `json:"ends"`
	Description string    `json:"description"`
	Regions     []string  `json:"regions"`
	URI         string    `json:"uri,omitempty"`
}

// Snapshot is the immutable result of one successful refresh cycle.
// It is never modified after publication.
type Snapshot struct {
	Station StationData   `json:"station"`
	Current Observation   `json:"current"`
	Daily   []ForecastDay `json:"daily"`
	Alerts  []Alert       `json:"alerts"`
}

// Today returns the first forecast entry.
func (s *Snapshot) Today() (ForecastDay, bool) {
	if s == nil || len(s.Daily) == 0 {
		return ForecastDay{}, false
	}
	return s.Daily[0], true
}
