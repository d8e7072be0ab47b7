package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/observability"
	"github.com/Additional-Code/comanda/internal/presentation/http/response"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// NewEcho configures the Echo router with basic middleware.
func NewEcho(cfg config.Config, obs *observability.Manager, conns *database.Connections, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", readiness(conns))

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// readiness reports whether the order store can be reached.
func readiness(conns *database.Connections) echo.HandlerFunc {
	return func(c echo.Context) error {
		if conns != nil {
			if err := conns.Ping(c.Request().Context()); err != nil {
				return response.New(c).WithError(errorbank.Unavailable("database unreachable", errorbank.WithCause(err))).Build()
			}
		}
		return response.New(c).WithData(map[string]string{"status": "ready"}).Build()
	}
}

// ErrorHandler renders errors escaping handlers (unknown routes, panics,
// binder failures) with the same envelope the order handlers use.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			err = fromHTTPError(httpErr)
		}
		appErr := errorbank.From(err)
		if appErr.Kind() == errorbank.KindInternal {
			logger.Error("http request failed",
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
			)
		}
		if buildErr := response.New(c).WithError(appErr).Build(); buildErr != nil {
			logger.Warn("failed to write error response", zap.Error(buildErr))
		}
	}
}

func fromHTTPError(err *echo.HTTPError) error {
	message := http.StatusText(err.Code)
	if m, ok := err.Message.(string); ok && m != "" {
		message = m
	}
	switch err.Code {
	case http.StatusBadRequest:
		return errorbank.BadRequest(message, errorbank.WithCause(err))
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return errorbank.NotFound(message, errorbank.WithCause(err))
	case http.StatusConflict:
		return errorbank.Conflict(message, errorbank.WithCause(err))
	case http.StatusUnprocessableEntity:
		return errorbank.Unprocessable(message, errorbank.WithCause(err))
	default:
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
