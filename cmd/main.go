package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"companioncare/config"
	"companioncare/pkg/api"
	"companioncare/pkg/dispatch"
	"companioncare/pkg/geocode"
	"companioncare/pkg/logger"
	"companioncare/pkg/notify"
	"companioncare/service"
	"companioncare/storage/postgres"
	"companioncare/storage/redisstore"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	pgStore, err := postgres.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pgStore.Close()

	var dismissals dispatch.DismissalStore
	redisDismissals, err := redisstore.NewDismissals(context.Background(), cfg, log)
	if err != nil {
		log.Warning("redis unavailable, dismissals will not survive restarts", logger.Error(err))
		dismissals = dispatch.NewMemoryDismissals()
	} else {
		defer redisDismissals.Close()
		dismissals = redisDismissals
	}

	var notifier notify.Notifier
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, log)
		if err != nil {
			log.Error("failed to initialize telegram notifier", logger.Error(err))
			os.Exit(1)
		}
		go tg.Start()
		defer tg.Stop()
		notifier = tg
	} else {
		log.Warning("TG_BOT_TOKEN not set, notifications go to the log only")
		notifier = notify.NewLogNotifier(log)
	}

	svc := service.New(cfg, pgStore, dismissals, notifier, geocode.NewNominatim(log), log)
	defer svc.Shutdown()

	go func() {
		log.Info("http server starting", logger.Int("port", cfg.AppPort))
		if err := api.RunServer(svc, cfg.AppPort); err != nil {
			log.Error("http server stopped", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down")
}
