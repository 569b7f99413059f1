package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/weatherbit-service/internal/integration"
	"github.com/i474232898/weatherbit-service/internal/metrics"
	"github.com/i474232898/weatherbit-service/internal/presentation"
	"github.com/i474232898/weatherbit-service/internal/store"
	"github.com/i474232898/weatherbit-service/internal/weather"
)

var validate = validator.New()

// NewApp builds the Fiber app with middleware, health, metrics and the API
// routes.
func NewApp(mgr *integration.Manager, rec metrics.Recorder, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "weatherbit-service",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	app.Use(metricsMiddleware(rec))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weatherbit-service",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(rec.Handler()))

	RegisterRoutes(app, mgr)
	return app
}

func metricsMiddleware(rec metrics.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				status = e.Code
			}
		}
		route := c.Route().Path
		rec.IncHTTPRequests(route, status)
		rec.ObserveHTTPDuration(route, time.Since(start))
		return err
	}
}

// RegisterRoutes wires the location handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, mgr *integration.Manager) {
	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		return c.JSON(mgr.Status())
	})

	loc := v1.Group("/locations/:id")

	loc.Get("/weather", func(c *fiber.Ctx) error {
		var req weatherQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rt, err := lookup(mgr, req.ID)
		if err != nil {
			return err
		}
		return weatherResponse(c, rt, req.Days)
	})

	loc.Get("/sensors", func(c *fiber.Ctx) error {
		id, err := parseEntryID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rt, err := lookup(mgr, id)
		if err != nil {
			return err
		}

		out := make([]sensorView, 0, len(rt.Entities.Sensors))
		for _, s := range rt.Entities.Sensors {
			out = append(out, newSensorView(s))
		}
		return c.JSON(out)
	})

	loc.Get("/sensors/:key", func(c *fiber.Ctx) error {
		req := sensorRequest{ID: c.Params("id"), Key: c.Params("key")}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rt, err := lookup(mgr, req.ID)
		if err != nil {
			return err
		}

		s, ok := rt.Entities.Sensor(req.Key)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown sensor "+req.Key)
		}
		return c.JSON(newSensorView(s))
	})

	loc.Get("/alerts", func(c *fiber.Ctx) error {
		id, err := parseEntryID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rt, err := lookup(mgr, id)
		if err != nil {
			return err
		}

		snap, ok := rt.Coordinator.Snapshot()
		if !ok {
			return fiber.NewError(fiber.StatusServiceUnavailable, "no weather data yet")
		}
		return c.JSON(fiber.Map{
			"count":       len(snap.Alerts),
			"alerts":      snap.Alerts,
			"attribution": presentation.Attribution,
		})
	})

	loc.Post("/refresh", func(c *fiber.Ctx) error {
		id, err := parseEntryID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		rt, err := lookup(mgr, id)
		if err != nil {
			return err
		}

		if _, err := mgr.Refresh(c.UserContext(), id); err != nil {
			return refreshError(err)
		}
		return weatherResponse(c, rt, 0)
	})
}

// lookup maps registry misses to 404 for unknown ids and 503 for entries
// that are configured but not loaded yet.
func lookup(mgr *integration.Manager, id string) (*integration.Runtime, error) {
	rt, err := mgr.Lookup(id)
	if err == nil {
		return rt, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		if mgr.Known(id) {
			return nil, fiber.NewError(fiber.StatusServiceUnavailable, "location is not ready")
		}
		return nil, fiber.NewError(fiber.StatusNotFound, "unknown location")
	}
	return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to look up location")
}

func refreshError(err error) error {
	switch {
	case errors.Is(err, weather.ErrRefreshSkipped):
		return fiber.NewError(fiber.StatusConflict, "refresh already in progress")
	case errors.Is(err, weather.ErrAuth):
		return fiber.NewError(fiber.StatusUnauthorized, "weatherbit rejected the api key")
	case weather.IsRecoverable(err):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrShutDown), errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusServiceUnavailable, "location is shutting down")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "refresh failed")
	}
}

func weatherResponse(c *fiber.Ctx, rt *integration.Runtime, days int) error {
	view := rt.Entities.Weather.View()
	if !view.Available {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no weather data yet")
	}
	if days > 0 && days < len(view.Forecast) {
		view.Forecast = view.Forecast[:days]
	}
	return c.JSON(view)
}

type sensorView struct {
	Key      string               `json:"key"`
	UniqueID string               `json:"uniqueId"`
	Name     string               `json:"name"`
	Icon     string               `json:"icon"`
	Reading  presentation.Reading `json:"reading"`
}

func newSensorView(s *presentation.Sensor) sensorView {
	return sensorView{
		Key:      s.Key(),
		UniqueID: s.UniqueID(),
		Name:     s.Name(),
		Icon:     s.Icon(),
		Reading:  s.State(),
	}
}

type entryRequest struct {
	ID string `validate:"required,max=64"`
}

func parseEntryID(c *fiber.Ctx) (string, error) {
	req := entryRequest{ID: c.Params("id")}
	if err := validate.Struct(req); err != nil {
		return "", err
	}
	return req.ID, nil
}

type sensorRequest struct {
	ID  string `validate:"required,max=64"`
	Key string `validate:"required,max=32"`
}

// weatherQuery holds the parameters of the weather endpoint.
type weatherQuery struct {
	ID   string `validate:"required,max=64"`
	Days int    `validate:"omitempty,gte=1,lte=16"`
}

func (q *weatherQuery) bind(c *fiber.Ctx) error {
	q.ID = c.Params("id")
	if raw := c.Query("days"); raw != "" {
		days := c.QueryInt("days", -1)
		if days <= 0 {
			return errors.New("days must be a positive integer")
		}
		q.Days = days
	}
	return validate.Struct(q)
}
