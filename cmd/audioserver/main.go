package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Configure(log.Config{})
		fallback := log.WithComponent("main")
		fallback.Fatal().Err(err).Msg("config error")
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: cfg.LogService})
	logger := log.WithComponent("main")

	handlers, shutdownHandlers, err := server.NewHandlers(cfg, server.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	appSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.AppHTTPPort),
		Handler:           handlers.App,
		ReadHeaderTimeout: 5 * time.Second,
	}
	msSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.MSHTTPPort),
		Handler:           handlers.MS,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		logger.Info().Str("listener", name).Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}
	go serve("app", appSrv)
	go serve("miniserver", msSrv)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("listener failed")
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := appSrv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("app listener shutdown")
	}
	if err := msSrv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("miniserver listener shutdown")
	}
	if err := shutdownHandlers(ctx); err != nil {
		logger.Warn().Err(err).Msg("component shutdown")
	}
	cancel()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
