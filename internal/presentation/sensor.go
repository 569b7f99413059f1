package presentation

import (
	"time"

	"github.com/i474232898/weatherbit-service/internal/weather"
)

// SensorKind is one of the closed set of sensors exposed per location.
type SensorKind int

const (
	SensorTemperature SensorKind = iota
	SensorApparentTemperature
	SensorWindSpeed
	SensorWindGust
	SensorHumidity
	SensorPressure
	SensorSeaLevelPressure
	SensorCloudCover
	SensorSolarRadiation
	SensorWindCardinal
	SensorWindBearing
	SensorDewPoint
	SensorVisibility
	SensorPrecipitation
	SensorSnow
	SensorUVIndex
	SensorAirQuality
	SensorBeaufort
	SensorAlerts
)

// SensorDescription is the static metadata of a sensor kind.
type SensorDescription struct {
	Key      string
	Name     string
	Quantity weather.Quantity
	Icon     string
}

var sensorKinds = []SensorKind{
	SensorTemperature,
	SensorApparentTemperature,
	SensorWindSpeed,
	SensorWindGust,
	SensorHumidity,
	SensorPressure,
	SensorSeaLevelPressure,
	SensorCloudCover,
	SensorSolarRadiation,
	SensorWindCardinal,
	SensorWindBearing,
	SensorDewPoint,
	SensorVisibility,
	SensorPrecipitation,
	SensorSnow,
	SensorUVIndex,
	SensorAirQuality,
	SensorBeaufort,
	SensorAlerts,
}

var sensorDescriptions = map[SensorKind]SensorDescription{
	SensorTemperature:         {"temp", "Temperature", weather.QuantityTemperature, "mdi:thermometer"},
	SensorApparentTemperature: {"app_temp", "Temperature Feels Like", weather.QuantityTemperature, "mdi:thermometer"},
	SensorWindSpeed:           {"wind_spd", "Wind Speed", weather.QuantityWindSpeed, "mdi:weather-windy"},
	SensorWindGust:            {"gust", "Wind Gust", weather.QuantityWindSpeed, "mdi:weather-windy-variant"},
	SensorHumidity:            {"humidity", "Humidity", weather.QuantityPercent, "mdi:water-percent"},
	SensorPressure:            {"pres", "Pressure", weather.QuantityPressure, "mdi:gauge"},
	SensorSeaLevelPressure:    {"slp", "Sea Level Pressure", weather.QuantityPressure, "mdi:gauge"},
	SensorCloudCover:          {"clouds", "Cloud Coverage", weather.QuantityPercent, "mdi:cloud-outline"},
	SensorSolarRadiation:      {"solar_rad", "Solar Radiation", weather.QuantityIrradiance, "mdi:weather-sunny"},
	SensorWindCardinal:        {"wind_cdir", "Wind Direction", weather.QuantityNone, "mdi:compass-outline"},
	SensorWindBearing:         {"wind_dir", "Wind Bearing", weather.QuantityBearing, "mdi:compass-outline"},
	SensorDewPoint:            {"dewpt", "Dew Point", weather.QuantityTemperature, "mdi:thermometer-lines"},
	SensorVisibility:          {"vis", "Visibility", weather.QuantityDistance, "mdi:eye-outline"},
	SensorPrecipitation:       {"precip", "Precipitation", weather.QuantityPrecipitation, "mdi:weather-rainy"},
	SensorSnow:                {"snow", "Snow", weather.QuantityPrecipitation, "mdi:weather-snowy"},
	SensorUVIndex:             {"uv", "UV Index", weather.QuantityUV, "mdi:sunglasses"},
	SensorAirQuality:          {"aqi", "Air Quality", weather.QuantityAQI, "mdi:hvac"},
	SensorBeaufort:            {"beaufort", "Beaufort", weather.QuantityCount, "mdi:windsock"},
	SensorAlerts:              {"alerts", "Weather Alerts", weather.QuantityCount, "mdi:alert"},
}

// SensorKinds lists every kind in display order.
func SensorKinds() []SensorKind {
	out := make([]SensorKind, len(sensorKinds))
	copy(out, sensorKinds)
	return out
}

// KindByKey finds a kind by its key.
func KindByKey(key string) (SensorKind, bool) {
	for _, k := range sensorKinds {
		if sensorDescriptions[k].Key == key {
			return k, true
		}
	}
	return 0, false
}

func (k SensorKind) Description() SensorDescription {
	return sensorDescriptions[k]
}

func (k SensorKind) String() string {
	return sensorDescriptions[k].Key
}

// Read extracts the canonical (metric) value from s. The value is a float64
// for every kind except SensorWindCardinal, which yields a string. ok is false
// when the provider did not report the field.
func (k SensorKind) Read(s *weather.Snapshot) (any, bool) {
	if s == nil {
		return nil, false
	}
	cur := s.Current
	switch k {
	case SensorTemperature:
		return deref(cur.Temperature)
	case SensorApparentTemperature:
		return deref(cur.ApparentTemperature)
	case SensorWindSpeed:
		return deref(cur.WindSpeed)
	case SensorWindGust:
		return deref(cur.WindGust)
	case SensorHumidity:
		return deref(cur.Humidity)
	case SensorPressure:
		return deref(cur.Pressure)
	case SensorSeaLevelPressure:
		return deref(cur.SeaLevelPressure)
	case SensorCloudCover:
		return deref(cur.CloudCover)
	case SensorSolarRadiation:
		return deref(cur.SolarRadiation)
	case SensorWindCardinal:
		if cur.WindCardinal != "" {
			return cur.WindCardinal, true
		}
		if cur.WindBearing != nil {
			return weather.Cardinal(*cur.WindBearing), true
		}
		return nil, false
	case SensorWindBearing:
		return deref(cur.WindBearing)
	case SensorDewPoint:
		return deref(cur.DewPoint)
	case SensorVisibility:
		return deref(cur.Visibility)
	case SensorPrecipitation:
		return deref(cur.Precipitation)
	case SensorSnow:
		return deref(cur.Snow)
	case SensorUVIndex:
		return deref(cur.UVIndex)
	case SensorAirQuality:
		return deref(cur.AirQuality)
	case SensorBeaufort:
		if cur.WindSpeed == nil {
			return nil, false
		}
		return float64(weather.Beaufort(*cur.WindSpeed)), true
	case SensorAlerts:
		return float64(len(s.Alerts)), true
	default:
		return nil, false
	}
}

func deref(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// Reading is the presented state of a sensor.
type Reading struct {
	Value      any            `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
}

// Sensor renders one SensorKind for one location.
type Sensor struct {
	binding
	kind SensorKind
}

func (s *Sensor) Kind() SensorKind { return s.kind }
func (s *Sensor) Key() string      { return s.kind.Description().Key }
func (s *Sensor) Icon() string     { return s.kind.Description().Icon }

func (s *Sensor) UniqueID() string {
	return s.src.DeviceIdentity() + "_" + s.Key()
}

func (s *Sensor) Name() string {
	return "Weatherbit " + s.kind.Description().Name
}

func (s *Sensor) Unit() string {
	return s.unit(s.kind.Description().Quantity)
}

// State reads the current snapshot and converts the value to the configured
// unit system.
func (s *Sensor) State() Reading {
	r := Reading{
		Unit:       s.Unit(),
		Attributes: map[string]any{"attribution": Attribution},
	}

	snap, ok := s.snapshot()
	if !ok {
		return r
	}
	r.Available = true
	if !snap.Current.Time.IsZero() {
		r.Attributes["updated"] = snap.Current.Time.Format(time.RFC3339)
	}
	if s.kind == SensorAlerts {
		r.Attributes["alerts"] = cloneAlerts(snap.Alerts)
	}

	raw, ok := s.kind.Read(snap)
	if !ok {
		return r
	}
	if v, isFloat := raw.(float64); isFloat {
		r.Value = s.present(s.kind.Description().Quantity, v)
	} else {
		r.Value = raw
	}
	return r
}
