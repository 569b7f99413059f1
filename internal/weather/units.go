package weather

import "math"

// Conversion factors. Storage is metric; these apply on the read path only.
const (
	MsToMph    = 2.23693629
	MsToKmh    = 3.6
	HpaToInHg  = 0.0295299830714
	MmPerInch  = 25.4
	KmPerMile  = 1.609344
	fahrenheit = 9.0 / 5.0
)

// Quantity identifies the physical kind of a presented value.
type Quantity int

const (
	QuantityNone Quantity = iota
	QuantityTemperature
	QuantityWindSpeed
	QuantityPressure
	QuantityPrecipitation
	QuantityDistance
	QuantityPercent
	QuantityUV
	QuantityAQI
	QuantityBearing
	QuantityIrradiance
	QuantityCount
)

func MetersPerSecondToMph(v float64) float64 { return v * MsToMph }
func MphToMetersPerSecond(v float64) float64 { return v / MsToMph }
func MetersPerSecondToKmh(v float64) float64 { return v * MsToKmh }
func KmhToMetersPerSecond(v float64) float64 { return v / MsToKmh }
func HpaToInchesHg(v float64) float64        { return v * HpaToInHg }
func InchesHgToHpa(v float64) float64        { return v / HpaToInHg }
func MillimetersToInches(v float64) float64  { return v / MmPerInch }
func InchesToMillimeters(v float64) float64  { return v * MmPerInch }
func KilometersToMiles(v float64) float64    { return v / KmPerMile }
func MilesToKilometers(v float64) float64    { return v * KmPerMile }
func CelsiusToFahrenheit(v float64) float64  { return v*fahrenheit + 32 }
func FahrenheitToCelsius(v float64) float64  { return (v - 32) / fahrenheit }

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Precision returns the number of decimals a quantity is presented with.
func Precision(q Quantity, us UnitSystem) int {
	switch q {
	case QuantityWindSpeed, QuantityPressure, QuantityPrecipitation:
		if us == UnitImperial {
			return 2
		}
		return 1
	case QuantityTemperature, QuantityDistance, QuantityUV, QuantityIrradiance:
		return 1
	default:
		return 0
	}
}

// Present converts a canonical metric value into the configured unit system
// and rounds it to the quantity's precision.
func Present(q Quantity, v float64, us UnitSystem, wind WindUnit) float64 {
	if us == UnitImperial {
		switch q {
		case QuantityTemperature:
			v = CelsiusToFahrenheit(v)
		case QuantityWindSpeed:
			v = MetersPerSecondToMph(v)
		case QuantityPressure:
			v = HpaToInchesHg(v)
		case QuantityPrecipitation:
			v = MillimetersToInches(v)
		case QuantityDistance:
			v = KilometersToMiles(v)
		}
	} else if q == QuantityWindSpeed && wind == WindKilometersHour {
		v = MetersPerSecondToKmh(v)
	}
	return Round(v, Precision(q, us))
}

// Canonical is the inverse of Present: it turns a presented value back into
// its metric storage form, rounded to the metric precision.
func Canonical(q Quantity, v float64, us UnitSystem, wind WindUnit) float64 {
	if us == UnitImperial {
		switch q {
		case QuantityTemperature:
			v = FahrenheitToCelsius(v)
		case QuantityWindSpeed:
			v = MphToMetersPerSecond(v)
		case QuantityPressure:
			v = InchesHgToHpa(v)
		case QuantityPrecipitation:
			v = InchesToMillimeters(v)
		case QuantityDistance:
			v = MilesToKilometers(v)
		}
	} else if q == QuantityWindSpeed && wind == WindKilometersHour {
		v = KmhToMetersPerSecond(v)
	}
	return Round(v, Precision(q, UnitMetric))
}

// UnitOf returns the display unit label for a quantity.
func UnitOf(q Quantity, us UnitSystem, wind WindUnit) string {
	imperial := us == UnitImperial
	switch q {
	case QuantityTemperature:
		if imperial {
			return "°F"
		}
		return "°C"
	case QuantityWindSpeed:
		if imperial {
			return "mph"
		}
		if wind == WindKilometersHour {
			return "km/h"
		}
		return "m/s"
	case QuantityPressure:
		if imperial {
			return "inHg"
		}
		return "hPa"
	case QuantityPrecipitation:
		if imperial {
			return "in"
		}
		return "mm"
	case QuantityDistance:
		if imperial {
			return "mi"
		}
		return "km"
	case QuantityPercent:
		return "%"
	case QuantityUV:
		return "UVI"
	case QuantityAQI:
		return "AQI"
	case QuantityBearing:
		return "°"
	case QuantityIrradiance:
		return "W/m²"
	default:
		return ""
	}
}

var beaufortLimits = []float64{0.3, 1.6, 3.4, 5.5, 8.0, 10.8, 13.9, 17.2, 20.8, 24.5, 28.5, 32.7}

// Beaufort returns the Beaufort force for a wind speed in m/s.
func Beaufort(ms float64) int {
	for force, limit := range beaufortLimits {
		if ms < limit {
			return force
		}
	}
	return len(beaufortLimits)
}

var cardinalPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Cardinal converts a bearing in degrees to a 16-point compass direction.
func Cardinal(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(math.Floor(deg/22.5+0.5)) % len(cardinalPoints)
	return cardinalPoints[idx]
}
