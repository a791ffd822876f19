package main

import (
	"context"
	"log"
	"time"

	"roomchat/internal/auth"
	"roomchat/internal/relay"
	"roomchat/internal/room"
	"roomchat/internal/server"
	"roomchat/internal/storage"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	srvCfg := server.EnvConfig{}
	if err := env.Parse(&srvCfg); err != nil {
		sugar.Fatalf("Cannot parse server env config: %v", err)
	}

	storeCfg := storage.Config{}
	if err := env.Parse(&storeCfg); err != nil {
		sugar.Fatalf("Cannot parse storage env config: %v", err)
	}

	relayCfg := relay.Config{}
	if err := env.Parse(&relayCfg); err != nil {
		sugar.Fatalf("Cannot parse relay env config: %v", err)
	}

	store, err := storage.New(sugar, storeCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier room.Notifier = room.NoopNotifier{}
	if relayCfg.Enabled() {
		tg, err := relay.New(sugar, relayCfg)
		if err != nil {
			sugar.Fatalf("Cannot create Telegram relay: %v", err)
		}
		go tg.Run(ctx)
		notifier = tg
	} else {
		sugar.Info("Telegram relay is not configured, notifications are disabled")
	}

	rm := room.New(sugar, store, notifier)

	go func() {
		if err := store.Listen(ctx, rm); err != nil && ctx.Err() == nil {
			sugar.Errorf("Event listener stopped: %v", err)
		}
	}()

	creds := auth.NewService(sugar, store)

	serverOpts := []server.Option{
		server.WithEnvConfig(srvCfg),
		server.ReadTimeout(5 * time.Second),
		server.RegisterAfterShutdown(cancel),
		server.RegisterAfterShutdown(store.Close),
	}

	srv, err := server.NewServer(sugar, creds, rm, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
