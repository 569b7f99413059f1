package weather

// Condition is a normalized weather condition category.
type Condition string

const (
	ConditionUnknown           Condition = "unknown"
	ConditionClearNight        Condition = "clear-night"
	ConditionCloudy            Condition = "cloudy"
	ConditionExceptional       Condition = "exceptional"
	ConditionFog               Condition = "fog"
	ConditionHail              Condition = "hail"
	ConditionLightning         Condition = "lightning"
	ConditionLightningRainy    Condition = "lightning-rainy"
	ConditionPartlyCloudyDay   Condition = "partlycloudy-day"
	ConditionPartlyCloudyNight Condition = "partlycloudy-night"
	ConditionPouring           Condition = "pouring"
	ConditionRainy             Condition = "rainy"
	ConditionSnowy             Condition = "snowy"
	ConditionSnowyRainy        Condition = "snowy-rainy"
	ConditionSunny             Condition = "sunny"
	ConditionWindy             Condition = "windy"
	ConditionWindyVariant      Condition = "windy-variant"
)

// Conditions lists the closed set MapCondition can return.
var Conditions = []Condition{
	ConditionUnknown,
	ConditionClearNight,
	ConditionCloudy,
	ConditionExceptional,
	ConditionFog,
	ConditionHail,
	ConditionLightning,
	ConditionLightningRainy,
	ConditionPartlyCloudyDay,
	ConditionPartlyCloudyNight,
	ConditionPouring,
	ConditionRainy,
	ConditionSnowy,
	ConditionSnowyRainy,
	ConditionSunny,
	ConditionWindy,
	ConditionWindyVariant,
}

// conditionClass binds a set of provider codes to a category. Night is only
// set for categories that render differently after sunset.
type conditionClass struct {
	day   Condition
	night Condition
	codes []int
}

// Order matters: 623 is both hail and snowy, hail wins.
var conditionTable = []conditionClass{
	{day: ConditionPartlyCloudyDay, night: ConditionPartlyCloudyNight, codes: []int{801, 802}},
	{day: ConditionSunny, night: ConditionClearNight, codes: []int{800}},
	{day: ConditionCloudy, codes: []int{803, 804}},
	{day: ConditionExceptional},
	{day: ConditionFog, codes: []int{741}},
	{day: ConditionHail, codes: []int{623}},
	{day: ConditionLightning, codes: []int{230, 231}},
	{day: ConditionLightningRainy, codes: []int{200, 201, 202}},
	{day: ConditionPouring, codes: []int{502, 522}},
	{day: ConditionRainy, codes: []int{300, 301, 302, 500, 501, 511, 520, 521}},
	{day: ConditionSnowy, codes: []int{600, 601, 602, 621, 622, 623}},
	{day: ConditionSnowyRainy, codes: []int{610, 611, 612}},
	{day: ConditionWindy},
	{day: ConditionWindyVariant},
}

// nightCodeFactor is how Weatherbit night variants are encoded (800 -> 8000).
const nightCodeFactor = 10

// MapCondition resolves a Weatherbit weather code. Codes in the night-encoded
// range are decoded first and forced to their night variant.
func MapCondition(code int, isDay bool) Condition {
	if code >= 800*nightCodeFactor {
		if code%nightCodeFactor != 0 {
			return ConditionUnknown
		}
		code /= nightCodeFactor
		isDay = false
	}

	for _, class := range conditionTable {
		for _, c := range class.codes {
			if c != code {
				continue
			}
			if !isDay && class.night != "" {
				return class.night
			}
			return class.day
		}
	}
	return ConditionUnknown
}

var conditionIcons = map[Condition]string{
	ConditionPartlyCloudyNight: "weather-night-partly-cloudy",
	ConditionClearNight:        "weather-night",
	ConditionCloudy:            "weather-cloudy",
	ConditionExceptional:       "alert-circle-outline",
	ConditionFog:               "weather-fog",
	ConditionHail:              "weather-hail",
	ConditionLightning:         "weather-lightning",
	ConditionLightningRainy:    "weather-lightning-rainy",
	ConditionPartlyCloudyDay:   "weather-partly-cloudy",
	ConditionPouring:           "weather-pouring",
	ConditionRainy:             "weather-rainy",
	ConditionSnowy:             "weather-snowy",
	ConditionSnowyRainy:        "weather-snowy-rainy",
	ConditionSunny:             "weather-sunny",
	ConditionWindy:             "weather-windy",
	ConditionWindyVariant:      "weather-windy-variant",
}

// ConditionIcon returns the Material Design icon name for a condition.
func ConditionIcon(c Condition) string {
	if icon, ok := conditionIcons[c]; ok {
		return icon
	}
	return "weather-cloudy-alert"
}
