package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matst80/zebra-signal/internal/events"
	"github.com/matst80/zebra-signal/internal/generator"
	"github.com/matst80/zebra-signal/internal/obs"
	"github.com/matst80/zebra-signal/internal/ratelimit"
	"github.com/matst80/zebra-signal/internal/session"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdle          = 10 * time.Minute
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		obs.Error("server.exit", obs.Fields{"err": err.Error()})
		obs.Sync()
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	obs.Setup("info", cfg.LogFormat)
	obs.EnableDebug(cfg.Debug)
	defer obs.Sync()

	obs.Info("server.start", obs.Fields{
		"address":         cfg.Address,
		"metrics":         cfg.MetricsAddr,
		"session_timeout": cfg.SessionTimeout.String(),
		"socket_timeout":  cfg.SocketTimeout.String(),
		"generator":       cfg.Generator,
	})

	gen, err := generator.New(cfg.Generator)
	if err != nil {
		return err
	}
	if cfg.Generator == generator.KindCounter {
		obs.Warn("generator.counter", obs.Fields{"msg": "predictable tokens, debugging only"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := events.Nop()
	if cfg.RedisAddr != "" {
		rs, err := events.NewRedisSink(ctx, events.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			return err
		}
		obs.Info("events.backend", obs.Fields{"type": "redis", "addr": cfg.RedisAddr, "channel": cfg.RedisChannel})
		sink = rs
	}

	mgr := session.New(gen, session.Config{
		SessionTimeout: cfg.SessionTimeout,
		SocketTimeout:  cfg.SocketTimeout,
	}, session.WithEvents(sink))
	limiter := ratelimit.NewLimiter(cfg.GlobalRateLimit, cfg.RateLimit, cfg.RateBurst)

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		obs.Error("listen.public", obs.Fields{"err": err.Error(), "addr": cfg.Address})
		return err
	}
	srv := &http.Server{
		Handler:           newMux(&handlers{sessions: mgr, limiter: limiter, cfg: &cfg}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	started := time.Now()
	rd := &readiness{}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsMux(mgr, rd, started),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				obs.Error("metrics.server", obs.Fields{"err": err.Error(), "addr": cfg.MetricsAddr})
			}
		}()
	}

	go runSweepLoop(ctx, limiter, limiterSweepInterval, limiterIdle)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	rd.ready.Store(true)
	obs.Info("server.ready", obs.Fields{"address": ln.Addr().String()})

	var result error
	select {
	case <-ctx.Done():
		obs.Info("server.shutdown.signal", obs.Fields{})
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = err
		}
	}

	rd.closing.Store(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Error("server.shutdown.http", obs.Fields{"err": err.Error()})
	}
	// Hijacked websockets are not tracked by http.Server; the manager owns them.
	mgr.Close()
	if err := sink.Close(shutdownCtx); err != nil {
		obs.Error("server.shutdown.events", obs.Fields{"err": err.Error()})
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	obs.Info("server.shutdown.complete", obs.Fields{})
	return result
}

func runSweepLoop(ctx context.Context, l *ratelimit.Limiter, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(idle); n > 0 {
				obs.Debug("ratelimit.sweep", obs.Fields{"removed": n})
			}
		}
	}
}
