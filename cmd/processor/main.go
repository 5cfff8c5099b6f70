package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"signal_bot/internal/config"
	"signal_bot/internal/credential"
	"signal_bot/internal/generator"
	"signal_bot/internal/metrics"
	"signal_bot/internal/notify"
	"signal_bot/internal/pacing"
	"signal_bot/internal/platform"
	"signal_bot/internal/processor"
	"signal_bot/internal/scheduler"
	"signal_bot/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single tick and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	httpClient := platform.DefaultHTTPClient()
	client := platform.New(httpClient, platform.Options{
		APIURL:    cfg.RedditAPIURL,
		PublicURL: cfg.RedditPublicURL,
		UserAgent: cfg.UserAgent,
		RPS:       cfg.PlatformRPS,
	})

	creds := credential.New(store, credential.Options{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		TokenURL:     cfg.RedditTokenURL,
		UserAgent:    cfg.UserAgent,
		HTTPClient:   httpClient,
	}, log)

	gen := generator.NewOpenAI(generator.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})

	proc := processor.New(processor.Deps{
		Store:       store,
		Source:      client,
		Generator:   gen,
		Publisher:   client,
		Credentials: creds,
		Rand:        pacing.NewRand(),
		Sleeper:     pacing.TimerSleeper{},
		Log:         log,
		FetchLimit:  cfg.FetchLimit,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	opts := scheduler.Options{
		Tick:                   cfg.TickInterval,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		Metrics:                m,
	}

	if cfg.ReportsEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramReportChatID, store, log)
		if err != nil {
			log.Error("create telegram reporter", "error", err)
			os.Exit(1)
		}
		opts.Reporter = tg
		if !*once {
			go tg.Run(ctx)
		}
	}

	sched := scheduler.New(store, proc, log, opts)

	if *once {
		res := sched.Tick(ctx)
		log.Info("single tick done", "processed", res.Processed, "published", res.SuccessfulPublishes, "errors", res.Errors)
		return
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("starting processor", "tick", cfg.TickInterval)

	sched.Run(ctx)

	log.Info("processor stopped")
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
