package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weatherbit-service/internal/common"
	"github.com/i474232898/weatherbit-service/internal/weather"
)

// HTTPClientConfig holds the shared outbound HTTP client.
type HTTPClientConfig struct {
	Client *http.Client
}

// maxBodyBytes caps how much of a response is read into memory.
const maxBodyBytes = 4 << 20

var (
	errNoHTTPClient = errors.New("http client not configured")
	errCircuitOpen  = errors.New("circuit breaker open")
)

// statusError carries a non-2xx response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// doRequest executes one request through the circuit breaker and returns the
// response body. There are no retries: the poll interval is the retry delay.
// Errors come back already classified as weather.ErrAuth, weather.ErrNetwork
// or weather.ErrEmptyResult.
func doRequest(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: %w", weather.ErrNetwork, errNoHTTPClient)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", weather.ErrNetwork, err)
	}

	req, err := buildRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", weather.ErrNetwork, err)
	}

	// Client errors (4xx other than 429) do not count against the breaker:
	// they say nothing about upstream health.
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return nil, readErr
		}

		raw := &rawResponse{code: resp.StatusCode, body: body}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, raw.statusError()
		}
		return raw, nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	raw, ok := result.(*rawResponse)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", weather.ErrNetwork)
	}
	if raw.code < 200 || raw.code >= 300 {
		return nil, classifyError(raw.statusError())
	}
	if raw.code == http.StatusNoContent || len(bytes.TrimSpace(raw.body)) == 0 {
		return nil, weather.ErrEmptyResult
	}
	return raw.body, nil
}

type rawResponse struct {
	code int
	body []byte
}

func (r *rawResponse) statusError() *statusError {
	return &statusError{Code: r.code, Body: strings.TrimSpace(string(r.body))}
}

func classifyError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w: %v", weather.ErrNetwork, errCircuitOpen, err)
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %w", weather.ErrAuth, err)
		case se.Code == http.StatusBadRequest && isKeyError(se.Body):
			return fmt.Errorf("%w: %w", weather.ErrAuth, err)
		}
	}
	return fmt.Errorf("%w: %w", weather.ErrNetwork, err)
}

// isKeyError recognizes Weatherbit's JSON error body for bad keys.
func isKeyError(body string) bool {
	return common.HasAny(strings.ToLower(body), "api key", "key not valid")
}
