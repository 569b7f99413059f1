package presentation

import (
	"time"

	"github.com/i474232898/weatherbit-service/internal/weather"
)

// Weather is the aggregate weather entity of one location.
type Weather struct {
	binding
}

// WeatherView is the presented state of a Weather entity.
type WeatherView struct {
	UniqueID    string            `json:"uniqueId"`
	Device      DeviceInfo        `json:"device"`
	Available   bool              `json:"available"`
	Attribution string            `json:"attribution"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
	Condition   weather.Condition `json:"condition,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Description string            `json:"description,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
	WindBearing *float64 `json:"windBearing,omitempty"`
	Visibility  *float64 `json:"visibility,omitempty"`
	Ozone       *float64 `json:"ozone,omitempty"`

	Units    Units          `json:"units"`
	Forecast []ForecastView `json:"forecast"`
}

// Units names the unit of every converted WeatherView field.
type Units struct {
	Temperature   string `json:"temperature"`
	Pressure      string `json:"pressure"`
	WindSpeed     string `json:"windSpeed"`
	Visibility    string `json:"visibility"`
	Precipitation string `json:"precipitation"`
}

// ForecastView is one presented forecast day.
type ForecastView struct {
	Date                     time.Time         `json:"date"`
	Condition                weather.Condition `json:"condition"`
	TemperatureHigh          *float64          `json:"temperatureHigh,omitempty"`
	TemperatureLow           *float64          `json:"temperatureLow,omitempty"`
	Precipitation            *float64          `json:"precipitation,omitempty"`
	PrecipitationProbability *float64          `json:"precipitationProbability,omitempty"`
	WindSpeed                *float64          `json:"windSpeed,omitempty"`
	WindBearing              *float64          `json:"windBearing,omitempty"`
}

func (w *Weather) UniqueID() string { return w.src.DeviceIdentity() }
func (w *Weather) Name() string     { return "Weatherbit" }

// Condition is the current condition, or unknown before the first snapshot.
func (w *Weather) Condition() weather.Condition {
	snap, ok := w.snapshot()
	if !ok {
		return weather.ConditionUnknown
	}
	return snap.Current.Condition()
}

// View renders the current snapshot.
func (w *Weather) View() WeatherView {
	v := WeatherView{
		UniqueID:    w.UniqueID(),
		Device:      w.DeviceInfo(),
		Attribution: Attribution,
		Units: Units{
			Temperature:   w.unit(weather.QuantityTemperature),
			Pressure:      w.unit(weather.QuantityPressure),
			WindSpeed:     w.unit(weather.QuantityWindSpeed),
			Visibility:    w.unit(weather.QuantityDistance),
			Precipitation: w.unit(weather.QuantityPrecipitation),
		},
		Forecast: []ForecastView{},
	}

	snap, ok := w.snapshot()
	if !ok {
		return v
	}
	if t, ok := w.src.LastUpdate(); ok {
		v.UpdatedAt = &t
	}

	cur := snap.Current
	v.Available = true
	v.Condition = cur.Condition()
	v.Icon = weather.ConditionIcon(v.Condition)
	v.Description = cur.Description
	v.Temperature = w.presentPtr(weather.QuantityTemperature, cur.Temperature)
	v.Humidity = w.presentPtr(weather.QuantityPercent, cur.Humidity)
	v.Pressure = w.presentPtr(weather.QuantityPressure, cur.Pressure)
	v.WindSpeed = w.presentPtr(weather.QuantityWindSpeed, cur.WindSpeed)
	v.WindBearing = w.presentPtr(weather.QuantityBearing, cur.WindBearing)
	v.Visibility = w.presentPtr(weather.QuantityDistance, cur.Visibility)

	if today, ok := snap.Today(); ok {
		v.Ozone = copyFloat(today.Ozone)
	}

	v.Forecast = make([]ForecastView, 0, len(snap.Daily))
	for _, d := range snap.Daily {
		v.Forecast = append(v.Forecast, ForecastView{
			Date:                     d.Date,
			Condition:                d.Condition(),
			TemperatureHigh:          w.presentPtr(weather.QuantityTemperature, d.MaxTemperature),
			TemperatureLow:           w.presentPtr(weather.QuantityTemperature, d.MinTemperature),
			Precipitation:            w.presentPtr(weather.QuantityPrecipitation, d.Precipitation),
			PrecipitationProbability: copyFloat(d.PrecipitationProbability),
			WindSpeed:                w.presentPtr(weather.QuantityWindSpeed, d.WindSpeed),
			WindBearing:              copyFloat(d.WindBearing),
		})
	}
	return v
}
