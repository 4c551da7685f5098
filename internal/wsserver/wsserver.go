// Package wsserver upgrades HTTP requests to websocket connections and
// drives the read/write pumps, handing each decoded frame to
// internal/router.
package wsserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/haverford/chatcore/internal/router"
)

const (
	writeTimeout   = 5 * time.Second
	readLimitBytes = 1 << 20
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
)

// Config bounds the resource limits enforced before an upgrade completes and
// the per-connection inbound frame rate.
type Config struct {
	MaxConnections int           // 0 = unlimited
	PerIPLimit     int           // 0 = unlimited
	RateLimit      rate.Limit    // frames/sec sustained per connection, 0 = unlimited
	RateBurst      int           // burst allowance for RateLimit
	IdleTimeout    time.Duration // 0 = use pongWait default
}

// Server owns websocket transport: upgrade, connection accounting, and the
// per-connection read/write pumps that feed internal/router.
type Server struct {
	router   *router.Router
	cfg      Config
	upgrader websocket.Upgrader

	mu    sync.Mutex
	total int
	perIP map[string]int
}

// New builds a Server bound to rt, enforcing cfg's connection limits.
func New(rt *router.Router, cfg Config) *Server {
	return &Server{
		router: rt,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		perIP: make(map[string]int),
	}
}

// Register binds the websocket route on an Echo router.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// HandleWebSocket upgrades one request and serves it until disconnect.
func (s *Server) HandleWebSocket(c echo.Context) error {
	remoteAddr := c.RealIP()

	if !s.admit(remoteAddr) {
		slog.Warn("wsserver: connection rejected, over limit", "remote", remoteAddr)
		return c.NoContent(http.StatusServiceUnavailable)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.release(remoteAddr)
		slog.Error("wsserver: upgrade failed", "remote", remoteAddr, "err", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	go s.serveConn(conn, remoteAddr)
	return nil
}

// admit enforces Config.MaxConnections/PerIPLimit before an upgrade
// completes.
func (s *Server) admit(remoteAddr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxConnections > 0 && s.total >= s.cfg.MaxConnections {
		return false
	}
	if s.cfg.PerIPLimit > 0 && s.perIP[remoteAddr] >= s.cfg.PerIPLimit {
		return false
	}
	s.total++
	s.perIP[remoteAddr]++
	return true
}

func (s *Server) release(remoteAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total--
	s.perIP[remoteAddr]--
	if s.perIP[remoteAddr] <= 0 {
		delete(s.perIP, remoteAddr)
	}
}

// serveConn runs the full lifetime of one websocket connection: a write
// pump goroutine feeding gorilla's single-writer requirement, and a
// blocking read loop handing each frame to the router.
func (s *Server) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("wsserver: recovered panic in connection", "remote", remoteAddr, "panic", r)
		}
	}()
	defer conn.Close()
	defer s.release(remoteAddr)

	idle := s.cfg.IdleTimeout
	if idle <= 0 {
		idle = pongWait
	}
	conn.SetReadLimit(readLimitBytes)
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	c := newWSTransport()
	rconn := router.NewConnection(c)

	go s.writePump(conn, c)

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(s.cfg.RateLimit, burst)
	}

	slog.Info("wsserver: connected", "remote", remoteAddr)
	defer slog.Info("wsserver: disconnected", "remote", remoteAddr)
	defer s.router.Disconnect(rconn)
	defer c.stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("wsserver: unexpected close", "remote", remoteAddr, "err", err)
			}
			return
		}
		if limiter != nil && !limiter.Allow() {
			slog.Debug("wsserver: rate limit exceeded", "remote", remoteAddr)
			continue
		}
		s.router.HandleFrame(context.Background(), rconn, raw)
	}
}

// writePump is the sole writer of conn, draining c.out and interleaving
// periodic pings, since gorilla/websocket forbids concurrent writers on one
// connection.
func (s *Server) writePump(conn *websocket.Conn, c *wsTransport) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case v, ok := <-c.out:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(v); err != nil {
				slog.Debug("wsserver: write error", "err", err)
				c.stop()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}
