package presentation

import (
	"slices"
	"time"

	"github.com/i474232898/weatherbit-service/internal/weather"
)

const (
	Attribution  = "Powered by Weatherbit.io"
	Manufacturer = "Weatherbit.io"
	Model        = "Current and Forecast Weather Data"
)

// Source is the read side of a coordinator. *weather.Coordinator satisfies it.
type Source interface {
	ID() string
	Params() weather.ConnectionParams
	DeviceIdentity() string
	Snapshot() (*weather.Snapshot, bool)
	LastUpdate() (time.Time, bool)
}

// DeviceInfo groups every entity of one location.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// HasDeviceIdentity is implemented by every entity bound to a location.
type HasDeviceIdentity interface {
	UniqueID() string
	DeviceInfo() DeviceInfo
}

// ReadsSnapshot is implemented by every entity that renders coordinator data.
type ReadsSnapshot interface {
	Available() bool
	Attribution() string
}

// binding is embedded by entities to share device identity, availability and
// unit conversion.
type binding struct {
	src Source
}

func (b binding) DeviceInfo() DeviceInfo {
	id := b.src.DeviceIdentity()
	return DeviceInfo{
		Identifier:   id,
		Name:         "Weatherbit " + id,
		Manufacturer: Manufacturer,
		Model:        Model,
	}
}

func (b binding) Attribution() string { return Attribution }

// Available is false until the first snapshot is published. A failed
// refresh afterwards does not change it.
func (b binding) Available() bool {
	_, ok := b.src.Snapshot()
	return ok
}

func (b binding) snapshot() (*weather.Snapshot, bool) {
	return b.src.Snapshot()
}

func (b binding) present(q weather.Quantity, v float64) float64 {
	p := b.src.Params()
	return weather.Present(q, v, p.Units, p.WindUnit)
}

func (b binding) presentPtr(q weather.Quantity, v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := b.present(q, *v)
	return &out
}

// copyFloat detaches a value from the published snapshot.
func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneAlerts(alerts []weather.Alert) []weather.Alert {
	out := slices.Clone(alerts)
	for i := range out {
		out[i].Regions = slices.Clone(out[i].Regions)
	}
	return out
}

func (b binding) unit(q weather.Quantity) string {
	p := b.src.Params()
	return weather.UnitOf(q, p.Units, p.WindUnit)
}

// Entities is the full entity set of one location.
type Entities struct {
	Weather *Weather
	Sensors []*Sensor
}

// NewEntities builds the weather entity and one sensor per kind.
func NewEntities(src Source) Entities {
	b := binding{src: src}
	sensors := make([]*Sensor, 0, len(sensorKinds))
	for _, k := range sensorKinds {
		sensors = append(sensors, &Sensor{binding: b, kind: k})
	}
	return Entities{
		Weather: &Weather{binding: b},
		Sensors: sensors,
	}
}

// Sensor returns the sensor with the given key.
func (e Entities) Sensor(key string) (*Sensor, bool) {
	for _, s := range e.Sensors {
		if s.Key() == key {
			return s, true
		}
	}
	return nil, false
}

var (
	_ HasDeviceIdentity = (*Sensor)(nil)
	_ HasDeviceIdentity = (*Weather)(nil)
	_ ReadsSnapshot     = (*Sensor)(nil)
	_ ReadsSnapshot     = (*Weather)(nil)
)
