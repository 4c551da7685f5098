package httpapi

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// quietPaths are logged at debug rather than info level: /ws carries one
// log line per upgrade already (from wsserver), and /health is polled.
// Both share this Echo instance with the REST routes, so without this they
// would dominate the request log.
var quietPaths = map[string]bool{
	"/ws":     true,
	"/health": true,
}

// requestLogger returns Echo middleware that logs each HTTP request via slog.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path
			fields := []any{
				"method", req.Method,
				"path", path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			}

			if quietPaths[path] {
				slog.Debug("http request", fields...)
			} else {
				slog.Info("http request", append(fields, "remote", c.RealIP())...)
			}
			return nil
		}
	}
}
