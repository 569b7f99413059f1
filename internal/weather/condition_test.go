package weather

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapCondition_KnownCodes(t *testing.T) {
	cases := []struct {
		code  int
		isDay bool
		want  Condition
	}{
		{800, true, ConditionSunny},
		{800, false, ConditionClearNight},
		{8000, true, ConditionClearNight},
		{801, true, ConditionPartlyCloudyDay},
		{802, false, ConditionPartlyCloudyNight},
		{8010, true, ConditionPartlyCloudyNight},
		{8020, true, ConditionPartlyCloudyNight},
		{803, false, ConditionCloudy},
		{741, true, ConditionFog},
		{623, true, ConditionHail},
		{230, true, ConditionLightning},
		{201, false, ConditionLightningRainy},
		{502, true, ConditionPouring},
		{500, true, ConditionRainy},
		{601, true, ConditionSnowy},
		{611, true, ConditionSnowyRainy},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MapCondition(tc.code, tc.isDay), "code %d isDay %v", tc.code, tc.isDay)
	}
}

func TestMapCondition_UnknownCodes(t *testing.T) {
	for _, code := range []int{9999, 0, -1, 900, 8015, 100000} {
		assert.Equal(t, ConditionUnknown, MapCondition(code, true), "code %d", code)
	}
}

func TestMapCondition_DayNightOnlyForClearAndPartlyCloudy(t *testing.T) {
	for _, code := range []int{803, 741, 623, 500, 601, 610} {
		assert.Equal(t, MapCondition(code, true), MapCondition(code, false), "code %d", code)
	}
}

func TestMapCondition_AlwaysInClosedSet(t *testing.T) {
	for code := -10; code < 10000; code++ {
		for _, isDay := range []bool{true, false} {
			got := MapCondition(code, isDay)
			if !slices.Contains(Conditions, got) {
				t.Fatalf("code %d mapped outside the closed set: %q", code, got)
			}
		}
	}
}

func TestConditionIcon(t *testing.T) {
	assert.Equal(t, "weather-sunny", ConditionIcon(ConditionSunny))
	assert.Equal(t, "weather-night-partly-cloudy", ConditionIcon(ConditionPartlyCloudyNight))
	assert.Equal(t, "weather-cloudy-alert", ConditionIcon(ConditionUnknown))
}

func TestObservationCondition(t *testing.T) {
	code := 800
	assert.Equal(t, ConditionClearNight, Observation{ConditionCode: &code, IsDay: false}.Condition())
	assert.Equal(t, ConditionUnknown, Observation{}.Condition())
	assert.Equal(t, ConditionSunny, ForecastDay{ConditionCode: &code}.Condition())
}
