// Package httpapi exposes the REST surface that sits alongside the
// websocket listener: health, version, and point-in-time stats.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/haverford/chatcore/internal/session"
	"github.com/haverford/chatcore/internal/store"
)

// Version is set by main at startup from main.Version; left as a plain var
// so a release build can also override it with -ldflags.
var Version = "dev"

// Server is the Echo application serving the REST surface.
type Server struct {
	echo     *echo.Echo
	store    *store.Store
	sessions *session.Registry
}

// New constructs an Echo app with the REST routes registered.
func New(st *store.Store, sessions *session.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, store: st, sessions: sessions}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance, e.g. so wsserver.Server can
// register the /ws route on the same app.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/version", s.handleVersion)
	s.echo.GET("/api/stats", s.handleStats)
}

// Run starts Echo and blocks until ctx is cancelled or startup fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:         "ok",
		ActiveSessions: s.sessions.Count(),
	})
}

type versionResponse struct {
	Version string `json:"version"`
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, versionResponse{Version: Version})
}

type statsResponse struct {
	ActiveSessions int   `json:"active_sessions"`
	Users          int64 `json:"users"`
	Groups         int64 `json:"groups"`
	Messages       int64 `json:"messages"`
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.CountStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load stats")
	}
	return c.JSON(http.StatusOK, statsResponse{
		ActiveSessions: s.sessions.Count(),
		Users:          stats.Users,
		Groups:         stats.Groups,
		Messages:       stats.Messages,
	})
}
