package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"remindbot/internal/config"
	"remindbot/internal/logging"
	"remindbot/internal/platform/discord"
	"remindbot/internal/services/dispatch"
	"remindbot/internal/services/janitor"
	"remindbot/internal/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath, zerolog.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Console: cfg.Logging.Console})
	mgr.SetLogger(log.With().Str("component", "config").Logger())

	storeCfg, err := cfg.StorageConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(storeCfg, log.With().Str("component", "storage").Logger())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	client, err := discord.New(cfg.Discord.Token)
	if err != nil {
		return err
	}

	dispatchCfg, err := cfg.DispatchConfig()
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(dispatchCfg, store, client, log.With().Str("component", "dispatch").Logger())

	janitorCfg, err := cfg.JanitorConfig()
	if err != nil {
		return err
	}
	sweeper := janitor.New(janitorCfg, store, log.With().Str("component", "janitor").Logger())

	dispatcher.Start(ctx)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}

	// hot reload: the manager validates before publishing, so every
	// update arriving here is safe to apply
	sub := mgr.Subscribe()
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("config watch stopped")
		}
	}()
	go func() {
		for cfg := range sub {
			logging.Apply(logging.Config{Level: cfg.Logging.Level, Console: cfg.Logging.Console})
			if dc, err := cfg.DispatchConfig(); err == nil {
				dispatcher.Apply(dc)
			}
			if jc, err := cfg.JanitorConfig(); err == nil {
				sweeper.Apply(jc)
			}
		}
	}()

	notifyReady(ctx, log)
	log.Info().Str("config", cfgPath).Msg("remindbot running")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	dispatcher.Stop(stopCtx)
	sweeper.Stop(stopCtx)
	mgr.Unsubscribe(sub)
	log.Info().Msg("remindbot stopped")
	return nil
}

// notifyReady tells systemd we are up and keeps the watchdog fed when
// one is configured. A no-op outside systemd.
func notifyReady(ctx context.Context, log zerolog.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug().Err(err).Msg("sd_notify unavailable")
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
