package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "cadenza/internal/commands"

	"cadenza/internal/config"
	"cadenza/internal/discord"
	"cadenza/internal/lavalink"
	"cadenza/internal/logx"
	"cadenza/internal/orchestrator"
	"cadenza/internal/search"
	"cadenza/internal/storage"
	"cadenza/pkg/backoff"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	log := logx.New(logx.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	log.Info().Msg("starting cadenza")

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	nodeAddrs, err := cfg.Nodes()
	if err != nil {
		return err
	}
	endpoints := make([]lavalink.Endpoint, 0, len(nodeAddrs))
	for _, n := range nodeAddrs {
		endpoints = append(endpoints, lavalink.Endpoint{
			Name:     n.Name,
			Host:     n.Host,
			Port:     n.Port,
			Password: n.Password,
			Secure:   cfg.LavalinkSecure,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := lavalink.NewManager(ctx, endpoints, lavalink.Config{
		Reconnect: backoff.Policy{
			MaxAttempts:  cfg.ReconnectMaxAttempts,
			InitialDelay: time.Second,
			MaxDelay:     cfg.ReconnectMaxDelay,
		},
	}, log)

	bot, err := discord.NewBot(cfg, store, mgr, log)
	if err != nil {
		return err
	}

	resolver := search.NewNodeResolver(mgr, log)
	orch := orchestrator.New(ctx, orchestrator.Config{
		DefaultVolume: cfg.DefaultVolume,
		IdleTimeout:   cfg.IdleTimeout,
	}, orchestrator.ManagerSource{Mgr: mgr}, resolver, bot, bot, log)

	bot.SetOrchestrator(orch)
	mgr.SetFailoverHooks(orch.HandleNodeDown, orch.HandleNodeUp, orch.HandleNodeLost)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info().Msg("signal received, shutting down")
		cancel()
	}()

	err = bot.Run(ctx)

	orch.Shutdown()
	mgr.Shutdown()
	return err
}
