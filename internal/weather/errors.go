package weather

import "errors"

var (
	// ErrAuth means Weatherbit rejected the API key. Polling must not
	// continue silently after it.
	ErrAuth = errors.New("weatherbit: invalid or rejected api key")

	// ErrNetwork covers timeouts, transport failures and malformed responses.
	// The next scheduled tick retries unmodified.
	ErrNetwork = errors.New("weatherbit: request failed")

	// ErrEmptyResult means the payload was valid but carried no data.
	ErrEmptyResult = errors.New("weatherbit: empty result")

	// ErrInitialization wraps any failure of the mandatory first fetch.
	ErrInitialization = errors.New("coordinator: initialization failed")

	// ErrRefreshSkipped is returned when a refresh is already in flight.
	ErrRefreshSkipped = errors.New("coordinator: refresh already in progress")

	// ErrShutDown is returned by a coordinator that has been torn down.
	ErrShutDown = errors.New("coordinator: shut down")
)

// Outcome labels used in logs and metrics.
const (
	OutcomeOK       = "ok"
	OutcomeAuth     = "auth"
	OutcomeNetwork  = "network"
	OutcomeEmpty    = "empty"
	OutcomeSkipped  = "skipped"
	OutcomeShutdown = "shutdown"
	OutcomeOther    = "error"
)

// KindOf classifies an error returned by a client or a coordinator.
func KindOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrAuth):
		return OutcomeAuth
	case errors.Is(err, ErrEmptyResult):
		return OutcomeEmpty
	case errors.Is(err, ErrNetwork):
		return OutcomeNetwork
	case errors.Is(err, ErrRefreshSkipped):
		return OutcomeSkipped
	case errors.Is(err, ErrShutDown):
		return OutcomeShutdown
	default:
		return OutcomeOther
	}
}

// IsRecoverable reports whether the next tick should simply try again.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrEmptyResult)
}
