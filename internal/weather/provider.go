package weather

import (
	"context"
	"time"
)

// Client abstracts the Weatherbit API for one configured location.
// Implementations return errors wrapping ErrAuth, ErrNetwork or ErrEmptyResult.
type Client interface {
	FetchStation(ctx context.Context) (StationData, error)
	FetchForecast(ctx context.Context) ([]ForecastDay, error)
	FetchCurrentObservation(ctx context.Context) (Observation, error)
	FetchAlerts(ctx context.Context) ([]Alert, error)
}

// RefreshObserver receives the outcome of every coordinator cycle.
type RefreshObserver interface {
	ObserveRefresh(entryID, outcome string, d time.Duration)
}

// Update is delivered to subscribers after every completed refresh. Exactly
// one of Snapshot and Err is set.
type Update struct {
	EntryID  string
	Snapshot *Snapshot
	Err      error
}
