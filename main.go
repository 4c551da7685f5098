package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/haverford/chatcore/internal/auth"
	"github.com/haverford/chatcore/internal/httpapi"
	"github.com/haverford/chatcore/internal/room"
	"github.com/haverford/chatcore/internal/router"
	"github.com/haverford/chatcore/internal/session"
	"github.com/haverford/chatcore/internal/store"
	"github.com/haverford/chatcore/internal/wsserver"
)

// Version is overridable at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:], defaultDBPath) {
			return
		}
	}

	addr := flag.String("addr", "localhost:8765", "WebSocket + REST listen address")
	dbPath := flag.String("db", defaultDBPath, "SQLite database path")
	iterations := flag.Int("pbkdf2-iterations", auth.DefaultIterations, "PBKDF2 iteration count for password hashing")
	idleTimeout := flag.Duration("idle-timeout", 60*time.Second, "connection idle timeout before the server assumes it's dead")
	maxConnections := flag.Int("max-connections", 500, "maximum total WebSocket connections (0 = unlimited)")
	perIPLimit := flag.Int("per-ip-limit", 20, "maximum connections per IP address (0 = unlimited)")
	rateLimit := flag.Float64("rate-limit", 20, "maximum inbound frames per second per connection (0 = unlimited)")
	rateBurst := flag.Int("rate-burst", 10, "burst allowance for -rate-limit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	metricsInterval := flag.Duration("metrics-interval", 30*time.Second, "interval between periodic metrics log lines (0 to disable)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	})))
	httpapi.Version = Version

	st, err := store.New(*dbPath)
	if err != nil {
		slog.Error("open store", "path", *dbPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	hasher := &auth.Hasher{Iterations: *iterations}
	sessions := session.NewRegistry()
	rooms := room.NewRegistry()
	rt := router.New(st, hasher, sessions, rooms)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		broadcastShutdown(sessions)
		cancel()
	}()

	if *metricsInterval > 0 {
		go runMetrics(ctx, sessions, rooms, *metricsInterval)
	}

	api := httpapi.New(st, sessions)
	ws := wsserver.New(rt, wsserver.Config{
		MaxConnections: *maxConnections,
		PerIPLimit:     *perIPLimit,
		RateLimit:      rate.Limit(*rateLimit),
		RateBurst:      *rateBurst,
		IdleTimeout:    *idleTimeout,
	})
	ws.Register(api.Echo())

	slog.Info("server starting", "addr", *addr, "db", *dbPath)
	if err := api.Run(ctx, *addr); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

const defaultDBPath = "chatcore.db"

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// broadcastShutdown notifies every live session the server is going away
// before the listener stops accepting frames.
func broadcastShutdown(sessions *session.Registry) {
	for _, conn := range sessions.Snapshot() {
		_ = conn.Send(map[string]any{"type": "error", "status": "error", "message": "server shutting down"})
	}
}
