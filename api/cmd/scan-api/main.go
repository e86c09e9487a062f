package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gradescan/api/internal/app"
	"gradescan/api/internal/config"
	"gradescan/api/internal/handle"
	"gradescan/api/internal/httpserver"
	"gradescan/api/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "scan-api"})
	if err := cfg.RequireGemini(); err != nil {
		log.Warn().Err(err).Msg("scans will return manual-entry stubs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	router := httpserver.NewRouter(handle.New(a.HandleDeps()), httpserver.Options{
		RequestTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Log:            log,
	})

	err = httpserver.Run(ctx, httpserver.ServerConfig{
		Addr:            "0.0.0.0:" + cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, log)
	if err != nil {
		log.Error().Err(err).Msg("server error")
	}
}
