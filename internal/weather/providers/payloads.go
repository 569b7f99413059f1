package providers

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weatherbit-service/internal/weather"
)

// flexFloat accepts both JSON numbers and numeric strings; Weatherbit is not
// consistent about lat/lon across endpoints.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", b, err)
	}
	*f = flexFloat(v)
	return nil
}

type weatherDescription struct {
	Icon        string `json:"icon"`
	Code        *int   `json:"code"`
	Description string `json:"description"`
}

type currentPayload struct {
	Count int             `json:"count"`
	Data  []currentRecord `json:"data"`
}

type currentRecord struct {
	CityName    string    `json:"city_name"`
	Timezone    string    `json:"timezone"`
	Station     string    `json:"station"`
	CountryCode string    `json:"country_code"`
	StateCode   string    `json:"state_code"`
	Lat         flexFloat `json:"lat"`
	Lon         flexFloat `json:"lon"`

	ObTime string `json:"ob_time"`
	Ts     int64  `json:"ts"`

	Temp     *float64           `json:"temp"`
	AppTemp  *float64           `json:"app_temp"`
	DewPt    *float64           `json:"dewpt"`
	RH       *float64           `json:"rh"`
	Pres     *float64           `json:"pres"`
	SLP      *float64           `json:"slp"`
	WindSpd  *float64           `json:"wind_spd"`
	Gust     *float64           `json:"gust"`
	WindDir  *float64           `json:"wind_dir"`
	WindCdir string             `json:"wind_cdir"`
	Vis      *float64           `json:"vis"`
	UV       *float64           `json:"uv"`
	AQI      *float64           `json:"aqi"`
	Precip   *float64           `json:"precip"`
	Snow     *float64           `json:"snow"`
	Clouds   *float64           `json:"clouds"`
	SolarRad *float64           `json:"solar_rad"`
	Weather  weatherDescription `json:"weather"`
	Pod      string             `json:"pod"`
	Sunrise  string             `json:"sunrise"`
	Sunset   string             `json:"sunset"`
}

func (r currentRecord) station() weather.StationData {
	return weather.StationData{
		CityName:    r.CityName,
		Timezone:    r.Timezone,
		StationID:   r.Station,
		CountryCode: r.CountryCode,
		StateCode:   r.StateCode,
		Latitude:    float64(r.Lat),
		Longitude:   float64(r.Lon),
	}
}

func (r currentRecord) observation() weather.Observation {
	return weather.Observation{
		Time:                r.observedAt(),
		Temperature:         r.Temp,
		ApparentTemperature: r.AppTemp,
		DewPoint:            r.DewPt,
		Humidity:            r.RH,
		Pressure:            r.Pres,
		SeaLevelPressure:    r.SLP,
		WindSpeed:           r.WindSpd,
		WindGust:            r.Gust,
		WindBearing:         r.WindDir,
		WindCardinal:        r.WindCdir,
		Visibility:          r.Vis,
		UVIndex:             r.UV,
		AirQuality:          r.AQI,
		Precipitation:       r.Precip,
		Snow:                r.Snow,
		CloudCover:          r.Clouds,
		SolarRadiation:      r.SolarRad,
		ConditionCode:       r.Weather.Code,
		Description:         r.Weather.Description,
		Icon:                r.Weather.Icon,
		IsDay:               r.isDay(),
		Sunrise:             r.Sunrise,
		Sunset:              r.Sunset,
	}
}

// isDay prefers the part-of-day flag and falls back to the icon suffix.
func (r currentRecord) isDay() bool {
	switch r.Pod {
	case "d":
		return true
	case "n":
		return false
	}
	return !strings.HasSuffix(r.Weather.Icon, "n")
}

func (r currentRecord) observedAt() time.Time {
	if r.Ts > 0 {
		return time.Unix(r.Ts, 0).UTC()
	}
	if ts, err := time.Parse("2006-01-02 15:04", r.ObTime); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}

type forecastPayload struct {
	CityName string           `json:"city_name"`
	Timezone string           `json:"timezone"`
	Data     []forecastRecord `json:"data"`
}

type forecastRecord struct {
	ValidDate   string             `json:"valid_date"`
	Temp        *float64           `json:"temp"`
	MaxTemp     *float64           `json:"max_temp"`
	MinTemp     *float64           `json:"min_temp"`
	AppMaxTemp  *float64           `json:"app_max_temp"`
	AppMinTemp  *float64           `json:"app_min_temp"`
	Precip      *float64           `json:"precip"`
	Pop         *float64           `json:"pop"`
	Snow        *float64           `json:"snow"`
	SnowDepth   *float64           `json:"snow_depth"`
	WindSpd     *float64           `json:"wind_spd"`
	WindGustSpd *float64           `json:"wind_gust_spd"`
	WindDir     *float64           `json:"wind_dir"`
	WindCdir    string             `json:"wind_cdir"`
	Clouds      *float64           `json:"clouds"`
	RH          *float64           `json:"rh"`
	Pres        *float64           `json:"pres"`
	UV          *float64           `json:"uv"`
	Ozone       *float64           `json:"ozone"`
	Vis         *float64           `json:"vis"`
	Weather     weatherDescription `json:"weather"`
}

func (r forecastRecord) forecastDay() (weather.ForecastDay, error) {
	date, err := time.Parse(time.DateOnly, r.ValidDate)
	if err != nil {
		return weather.ForecastDay{}, fmt.Errorf("invalid valid_date %q: %w", r.ValidDate, err)
	}
	return weather.ForecastDay{
		Date:                     date.UTC(),
		Temperature:              r.Temp,
		MaxTemperature:           r.MaxTemp,
		MinTemperature:           r.MinTemp,
		ApparentMaxTemperature:   r.AppMaxTemp,
		ApparentMinTemperature:   r.AppMinTemp,
		Precipitation:            r.Precip,
		PrecipitationProbability: r.Pop,
		Snow:                     r.Snow,
		SnowDepth:                r.SnowDepth,
		WindSpeed:                r.WindSpd,
		WindGust:                 r.WindGustSpd,
		WindBearing:              r.WindDir,
		WindCardinal:             r.WindCdir,
		CloudCover:               r.Clouds,
		Humidity:                 r.RH,
		Pressure:                 r.Pres,
		UVIndex:                  r.UV,
		Ozone:                    r.Ozone,
		Visibility:               r.Vis,
		ConditionCode:            r.Weather.Code,
		Description:              r.Weather.Description,
	}, nil
}

type alertsPayload struct {
	CityName string        `json:"city_name"`
	Alerts   []alertRecord `json:"alerts"`
}

type alertRecord struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Severity     string   `json:"severity"`
	EffectiveUTC string   `json:"effective_utc"`
	OnsetUTC     string   `json:"onset_utc"`
	ExpiresUTC   string   `json:"expires_utc"`
	EndsUTC      string   `json:"ends_utc"`
	URI          string   `json:"uri"`
	Regions      []string `json:"regions"`
}

func (r alertRecord) alert() weather.Alert {
	return weather.Alert{
		Title:       r.Title,
		Severity:    r.Severity,
		Effective:   parseAlertTime(r.EffectiveUTC),
		Onset:       parseAlertTime(r.OnsetUTC),
		Expires:     parseAlertTime(r.ExpiresUTC),
		Ends:        parseAlertTime(r.EndsUTC),
		Description: r.Description,
		Regions:     r.Regions,
		URI:         r.URI,
	}
}

// parseAlertTime reads the zone-less UTC timestamps of the alerts endpoint.
// Unparseable values yield the zero time.
func parseAlertTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
