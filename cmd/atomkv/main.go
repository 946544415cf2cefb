// Command atomkv runs the AtomKV server: a TCP text-protocol key-value
// store with TTL, LRU eviction, and an append-only durable command log.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Krishna8167/atomkv/internal/aof"
	"github.com/Krishna8167/atomkv/internal/config"
	"github.com/Krishna8167/atomkv/internal/engine"
	"github.com/Krishna8167/atomkv/internal/eviction"
	"github.com/Krishna8167/atomkv/internal/httpapi"
	"github.com/Krishna8167/atomkv/internal/logging"
	"github.com/Krishna8167/atomkv/internal/server"
)

func main() {
	os.Exit(run())
}

// run wires the process together and returns the process exit code: 0 on
// a clean signal-driven shutdown, 1 if startup fails (spec.md §7) or a
// server stops with an error, such as failing to bind its address.
func run() int {
	bootLog := logrus.New()
	bootLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(bootLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return 1
	}

	log, err := logging.Setup(cfg.DataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logging:", err)
		return 1
	}
	root := logrus.NewEntry(log)

	sweepInterval, err := time.ParseDuration(config.SweepInterval)
	if err != nil {
		root.WithError(err).Fatal("invalid compiled-in sweep interval")
	}

	dcl, err := aof.Open(cfg.AOFPath, root.WithField("component", "aof"))
	if err != nil {
		root.WithError(err).Error("failed to open durable command log")
		return 1
	}

	policy := eviction.New(cfg.Capacity)
	eng := engine.New(cfg.Capacity, policy, dcl, root.WithField("component", "engine"), sweepInterval)

	replayLog := root.WithField("component", "aof-replay")
	if err := aof.Replay(cfg.AOFPath, eng.ApplyReplay, replayLog); err != nil {
		root.WithError(err).Error("failed to replay durable command log")
		return 1
	}
	root.WithField("path", cfg.AOFPath).Info("durable command log replay complete")

	tcpSrv := server.New(cfg.TCPAddr, eng, root.WithField("component", "tcp"))
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(eng, root.WithField("component", "http")),
	}

	errCh := make(chan error, 2)
	go func() {
		if err := tcpSrv.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("tcp server: %w", err)
		}
	}()
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	root.WithField("tcp_addr", cfg.TCPAddr).WithField("http_addr", cfg.HTTPAddr).Info("AtomKV ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	select {
	case <-ctx.Done():
		root.Info("received interrupt; shutting down")
	case err := <-errCh:
		root.WithError(err).Error("server error; shutting down")
		exitCode = 1
	}

	// spec.md §5 shutdown sequence: stop accepting connections, close
	// client sockets, stop the sweeper, drain the DCL queue and close it.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		root.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	tcpSrv.Shutdown()
	eng.Close()
	if err := dcl.Close(time.Second); err != nil {
		root.WithError(err).Warn("durable command log did not close cleanly")
	}

	root.Info("AtomKV stopped")
	return exitCode
}
