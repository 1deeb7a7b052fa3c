package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micro-ha/srun-guard/internal/config"
	"github.com/micro-ha/srun-guard/internal/configsync"
	httpapi "github.com/micro-ha/srun-guard/internal/http"
	"github.com/micro-ha/srun-guard/internal/http/handlers"
	"github.com/micro-ha/srun-guard/internal/logging"
	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/monitor"
	"github.com/micro-ha/srun-guard/internal/secret"
	"github.com/micro-ha/srun-guard/internal/srun"
	"github.com/micro-ha/srun-guard/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		logger.Error("failed to create db directory", "err", err)
		os.Exit(1)
	}

	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	sealer, err := secret.NewSealer(cfg.SecretSaltPath, cfg.SecretPassphrase)
	if err != nil {
		logger.Error("failed to initialize secret sealer", "err", err)
		os.Exit(1)
	}

	creds, err := storage.NewCredentialStore(ctx, repo, sealer, logger)
	if err != nil {
		logger.Error("failed to load settings", "err", err)
		os.Exit(1)
	}

	catalog, err := config.LoadCatalog(cfg.ProfilesFile)
	if err != nil {
		logger.Warn("profiles file not loaded, using presets", "err", err, "path", cfg.ProfilesFile)
		catalog = config.NewCatalog()
	}
	profile, ok := catalog.Lookup(cfg.Profile)
	if !ok {
		logger.Error("unknown endpoint profile", "profile", cfg.Profile, "known", catalog.Names())
		os.Exit(1)
	}

	client := srun.NewClient(srun.NewHTTPTransport(), profile, srun.WithLogger(logger))
	cfgManager := configsync.NewManager(configsync.NewClient(cfg.Profile, cfg.ProfilesFile), client, logger)
	if _, err := cfgManager.Refresh(ctx); err != nil {
		logger.Warn("initial profile refresh failed", "err", err)
	}

	statusMonitor := monitor.New(client, creds, logger, monitor.WithInterval(cfg.PollInterval))

	recorderEvents, cancelRecorder := statusMonitor.Subscribe()
	defer cancelRecorder()
	recorder := storage.NewRecorder(repo, creds, cfg.HistoryLimit, logger)
	go recorder.Run(ctx, recorderEvents)

	hub := handlers.NewHub(logger)
	hubEvents, cancelHub := statusMonitor.Subscribe()
	defer cancelHub()
	go hub.Run(ctx, hubEvents)

	logEvents, cancelLog := statusMonitor.Subscribe()
	defer cancelLog()
	go logNotifications(ctx, logEvents, logger)

	if cfg.ProfilesFile != "" {
		go runProfileRefresh(ctx, cfgManager, statusMonitor, cfg.ProfileRefreshInterval, logger)
	}

	go statusMonitor.Run(ctx)
	defer statusMonitor.Stop()

	api := handlers.New(statusMonitor, creds, repo, client, catalog.Names(), hub, logger)
	httpServer := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(api))

	logger.Info("server starting", "addr", httpServer.Addr, "profile", profile.Name)
	if err := httpapi.RunServer(ctx, httpServer, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func runProfileRefresh(ctx context.Context, cfg *configsync.Manager, mon *monitor.Monitor, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			changed, err := cfg.Refresh(refreshCtx)
			cancel()
			if err != nil {
				logger.Warn("periodic profile refresh failed", "err", err)
				continue
			}
			if changed {
				mon.Refresh()
			}
		}
	}
}

// logNotifications surfaces the events the desktop clients showed as
// notifications.
func logNotifications(ctx context.Context, events <-chan model.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case model.EventAuthFailed:
				logger.Warn("gateway rejected login", "message", ev.Outcome.Message, "code", ev.Outcome.Code)
			case model.EventLogin, model.EventLogout:
				if ev.Outcome.IsSuccess() {
					logger.Info("gateway "+string(ev.Type)+" succeeded", "result", ev.Outcome.Result, "message", ev.Outcome.Message)
				}
			}
		}
	}
}
