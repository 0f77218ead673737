package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdowner/chime/internal/backup"
	"github.com/jdowner/chime/internal/channel"
	"github.com/jdowner/chime/internal/config"
	"github.com/jdowner/chime/internal/database"
	"github.com/jdowner/chime/internal/dispatch"
	"github.com/jdowner/chime/internal/logging"
	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/reminder"
	"github.com/jdowner/chime/internal/server"
	"github.com/jdowner/chime/internal/store"
	ws "github.com/jdowner/chime/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	notificationStore := store.NewNotificationStore(db)
	eventStore := store.NewEventStore(db)
	preferenceStore := store.NewPreferenceStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)

	hub := ws.NewHub(logger.With("component", "hub"))

	// Channel senders are registered only when configured; in-app
	// delivery over the websocket hub is always available.
	mux := channel.NewMux(logger.With("component", "channel"))
	mux.Register(model.ChannelInApp, channel.NewInApp(hub))
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		mux.Register(model.ChannelPush, channel.NewWebPush(
			cfg.Push.VAPIDPublicKey,
			cfg.Push.VAPIDPrivateKey,
			cfg.Push.Subscriber,
			subscriptionStore,
			logger.With("component", "webpush"),
		))
	}
	if cfg.Email.SMTPHost != "" {
		mux.Register(model.ChannelEmail, channel.NewEmail(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.Username,
			cfg.Email.Password,
			cfg.Email.From,
			preferenceStore,
		))
	}
	if cfg.SMS.GatewayURL != "" {
		mux.Register(model.ChannelSMS, channel.NewSMS(
			cfg.SMS.GatewayURL,
			cfg.SMS.Token,
			preferenceStore,
		))
	}

	dispatcher := dispatch.NewDispatcher(notificationStore, mux, cfg.Dispatch.SendTimeout, logger.With("component", "dispatch"))
	scheduler := dispatch.NewScheduler(dispatcher, cfg.Dispatch.Interval, logger.With("component", "scheduler"))
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	backupMgr := backup.NewManager(backup.Config{
		Endpoint:   cfg.Backup.Endpoint,
		Bucket:     cfg.Backup.Bucket,
		Region:     cfg.Backup.Region,
		AccessKey:  cfg.Backup.AccessKey,
		SecretKey:  cfg.Backup.SecretKey,
		Passphrase: cfg.Backup.Passphrase,
		Interval:   cfg.Backup.Interval,
		DBPath:     cfg.Database.Path,
	}, db, logger.With("component", "backup"))
	backupMgr.Start(context.Background())
	defer backupMgr.Stop()

	generator := reminder.NewGenerator(eventStore, preferenceStore, notificationStore, logger.With("component", "reminder"))

	srv := server.New(db, hub, generator, server.Config{
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
		SnoozeDelay:    time.Duration(cfg.Dispatch.SnoozeMinutes) * time.Minute,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("chime starting", "addr", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
