// Command wablast runs the bulk-operation orchestrator as a long-lived
// service: scheduled campaigns, run history, ops notifications, and a
// hot-reloadable config file.
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

	"wablast/internal/bulk"
	"wablast/internal/campaign"
	"wablast/internal/config"
	"wablast/internal/eventbus"
	"wablast/internal/notify"
	"wablast/internal/storage"
	"wablast/internal/wa"
	"wablast/pkg/logx"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file (json or yaml)")
	flag.Parse()

	boot := logx.NewConsole("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error("loading config failed", logx.String("path", *configPath), logx.Err(err))
		os.Exit(1)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging))
	defer logSvc.Close()

	if err := run(cfg, *configPath, logSvc, log); err != nil {
		log.Error("wablast exited with error", logx.Err(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, configPath string, logSvc *logx.Service, log logx.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("wablast starting",
		logx.String("config", configPath),
		logx.String("session_driver", cfg.Session.Driver),
		logx.Int("campaigns", len(cfg.Campaigns)))

	bus := eventbus.New()

	store, err := openStorage(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	session, err := openSession(cfg.Session, log)
	if err != nil {
		return err
	}

	runner := bulk.New(bulk.Config{
		RatePerSec: cfg.Bulk.RatePerSec,
		UserServer: cfg.Session.UserServer,
		Seed:       cfg.Bulk.Seed,
	}, session, log, bus, store)

	var notifier *notify.Service
	if cfg.Notify != nil && cfg.Notify.Enabled {
		notifier, err = notify.New(notify.Config{
			Token:      cfg.Notify.Token,
			ChatID:     cfg.Notify.ChatID,
			ThreadID:   cfg.Notify.ThreadID,
			RatePerSec: cfg.Notify.RatePerSec,
		}, log)
		if err != nil {
			return err
		}
		notifier.Start(ctx, bus)
		defer notifier.Stop()
	}

	campaigns := campaign.New(runner, log)
	for _, cc := range cfg.Campaigns {
		c, err := campaignFromConfig(cc, cfg.Bulk)
		if err != nil {
			return fmt.Errorf("campaign %q: %w", cc.Name, err)
		}
		if err := campaigns.Add(c); err != nil {
			return fmt.Errorf("campaign %q: %w", cc.Name, err)
		}
	}
	campaigns.Start(ctx)
	defer campaigns.Stop()

	// Hot reload: only logging is safe to swap live; everything else takes
	// effect on restart.
	manager := config.NewManager(configPath, cfg, log, func(next config.Config) {
		logSvc.Apply(logConfig(next.Logging))
	})
	go func() {
		if err := manager.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("wablast ready")

	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("wablast shutting down")
	return nil
}

func logConfig(lc config.LoggingConfig) logx.Config {
	console := true
	if lc.Console != nil {
		console = *lc.Console
	}
	return logx.Config{
		Level:   lc.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
	}
}

func openStorage(sc *config.StorageConfig, log logx.Logger) (storage.Store, error) {
	if sc == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{Driver: sc.Driver, Path: sc.Path, BusyTimeout: busy}, log)
}

func openSession(sc config.SessionConfig, log logx.Logger) (wa.Session, error) {
	switch sc.Driver {
	case "dryrun", "":
		return wa.NewDryRun(log), nil
	default:
		return nil, fmt.Errorf("session: unknown driver %q", sc.Driver)
	}
}

func campaignFromConfig(cc config.CampaignConfig, bc config.BulkConfig) (campaign.Campaign, error) {
	perItem, err := config.ParseDurationField("per_item_delay", cc.PerItemDelay)
	if err != nil {
		return campaign.Campaign{}, err
	}
	cooldownRaw := cc.BatchCooldown
	if cooldownRaw == "" {
		cooldownRaw = bc.BatchCooldown
	}
	cooldown, err := config.ParseDurationOrDefault("batch_cooldown", cooldownRaw, 30*time.Second)
	if err != nil {
		return campaign.Campaign{}, err
	}
	callTimeout, err := config.ParseDurationField("call_timeout", bc.CallTimeout)
	if err != nil {
		return campaign.Campaign{}, err
	}
	batchSize := cc.BatchSize
	if batchSize <= 0 {
		batchSize = bc.BatchSize
	}

	return campaign.Campaign{
		Name:     cc.Name,
		Schedule: cc.Schedule,
		Plan: bulk.MessagePlan{
			Text:       cc.Message,
			Recipients: cc.Recipients,
			Batch: bulk.BatchConfig{
				BatchSize:    batchSize,
				Cooldown:     cooldown,
				PerItemDelay: perItem,
				RetryMax:     bc.RetryMax,
				CallTimeout:  callTimeout,
			},
		},
	}, nil
}
