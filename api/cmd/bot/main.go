package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"gradescan/api/internal/app"
	"gradescan/api/internal/config"
	"gradescan/api/internal/handle"
	"gradescan/api/internal/httpserver"
	"gradescan/api/internal/logger"
	"gradescan/api/internal/telegram"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "bot"})
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:         bot,
		Pipeline:    a.Pipeline,
		Saver:       a.Saver,
		History:     a.Store,
		Status:      a.Scanner,
		Log:         log.With().Str("component", "telegram").Logger(),
		Debounce:    cfg.Telegram.AlbumDebounce,
		ScanTimeout: cfg.Scan.MultiTimeout * 3,
	}

	// the bot also serves the API, so healthz and the endpoints stay reachable
	router := httpserver.NewRouter(handle.New(a.HandleDeps()), httpserver.Options{
		RequestTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Log:            log,
	})
	srvCfg := httpserver.ServerConfig{
		Addr:            "0.0.0.0:" + cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	if webhookURL := strings.TrimSpace(cfg.Telegram.WebhookURL); webhookURL != "" {
		if err := startWebhookMode(ctx, bot, r, router, webhookURL, srvCfg, log); err != nil {
			log.Error().Err(err).Msg("webhook mode")
		}
		return
	}
	startPollingMode(ctx, bot, r, router, srvCfg, log)
}

func startWebhookMode(ctx context.Context, bot *tgbotapi.BotAPI, r *telegram.Router, router chi.Router, baseURL string, srvCfg httpserver.ServerConfig, log zerolog.Logger) error {
	path := telegram.WebhookPath(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	router.Post(path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			log.Warn().Err(err).Msg("bad webhook update")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		go r.HandleUpdate(ctx, *upd)
	})

	log.Info().Str("path", path).Msg("webhook registered")
	return httpserver.Run(ctx, srvCfg, router, log)
}

func startPollingMode(ctx context.Context, bot *tgbotapi.BotAPI, r *telegram.Router, router chi.Router, srvCfg httpserver.ServerConfig, log zerolog.Logger) {
	go func() {
		if err := httpserver.Run(ctx, srvCfg, router, log); err != nil {
			log.Error().Err(err).Msg("http server")
		}
	}()

	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn().Err(err).Msg("delete webhook")
	}
	log.Info().Msg("polling for updates")
	telegram.Poll(ctx, bot, log, func(upd tgbotapi.Update) {
		r.HandleUpdate(ctx, upd)
	})
}
