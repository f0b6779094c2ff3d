// Command scriptrunner serves the script execution API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	scriptrunner "github.com/MaksGolikov/ScriptRunner"
	"github.com/MaksGolikov/ScriptRunner/api"

	_ "github.com/MaksGolikov/ScriptRunner/internal/sandbox/docker"
	_ "github.com/MaksGolikov/ScriptRunner/internal/sandbox/local"
	// firecracker is imported in providers_linux.go (Linux only)
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	provider := flag.String("provider", "docker", "Sandbox provider (docker, local, firecracker)")
	workers := flag.Int("workers", 100, "Maximum concurrent evaluations")
	timeout := flag.Duration("timeout", 5*time.Minute, "Per-script execution timeout")
	cleanupEvery := flag.Duration("cleanup-interval", time.Hour, "How often settled records are evicted")
	language := flag.String("lang", "JavaScript", "Default language when detection fails")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	skipValidate := flag.Bool("skip-validate", false, "Skip the provider availability check at startup")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "scriptrunner",
	})
	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", *logLevel)
	}

	runner, err := scriptrunner.New(
		scriptrunner.WithProvider(*provider),
		scriptrunner.WithMaxWorkers(*workers),
		scriptrunner.WithTimeout(*timeout),
		scriptrunner.WithCleanupInterval(*cleanupEvery),
		scriptrunner.WithDefaultLanguage(*language),
		scriptrunner.WithLogger(charmLogger{logger}),
	)
	if err != nil {
		logger.Fatal("failed to start runner", "error", err)
	}

	if !*skipValidate {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := runner.Validate(ctx)
		cancel()
		if err != nil {
			runner.Close()
			logger.Fatal("provider not available", "provider", *provider, "error", err)
		}
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: api.New(runner).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *addr, "provider", *provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
		cancel()
	}

	if err := runner.Close(); err != nil {
		logger.Error("closing runner", "error", err)
		os.Exit(1)
	}
}

// charmLogger adapts charmbracelet/log to the runner's Logger interface.
type charmLogger struct {
	l *log.Logger
}

func (c charmLogger) Debug(msg string, keysAndValues ...any) { c.l.Debug(msg, keysAndValues...) }
func (c charmLogger) Info(msg string, keysAndValues ...any)  { c.l.Info(msg, keysAndValues...) }
func (c charmLogger) Warn(msg string, keysAndValues ...any)  { c.l.Warn(msg, keysAndValues...) }
func (c charmLogger) Error(msg string, keysAndValues ...any) { c.l.Error(msg, keysAndValues...) }

var _ scriptrunner.Logger = charmLogger{}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `scriptrunner - script execution lifecycle service

Usage:
  scriptrunner [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Endpoints:
  POST   /scripts/execute    submit {"script": "...", "blocking": true|false}
  GET    /scripts            list, with ?status= and ?orderBy=id|time
  GET    /scripts/{id}       current record, including partial output
  POST   /scripts/{id}/stop  interrupt a running script
  DELETE /scripts/{id}       remove a settled record
`)
	}
}
