package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"filmgate/internal/bot"
	"filmgate/internal/broadcast"
	"filmgate/internal/config"
	"filmgate/internal/search"
	"filmgate/internal/storage"
	"filmgate/internal/suggest"
	"filmgate/internal/transport"
	"filmgate/internal/transport/mtproto"
	"filmgate/internal/transport/telegram"
	"filmgate/internal/verify"
	"filmgate/internal/web"
	"filmgate/pkg/logx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer log.Close()
	mgr.SetLogger(log)
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	busyTimeout, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	suggestTimeout, _ := config.ParseDurationOrDefault("suggest.timeout", cfg.Suggest.Timeout, 0)
	tokenTTL, _ := config.ParseDurationOrDefault("verify.token_ttl", cfg.Verify.TokenTTL, verify.DefaultTTL)
	autoMsgInterval, _ := config.ParseDurationOrDefault("groups.auto_message_interval", cfg.Groups.AutoMessageInterval, 0)
	autoMsgTTL, _ := config.ParseDurationOrDefault("groups.auto_message_ttl", cfg.Groups.AutoMessageTTL, 0)

	// A store that cannot open is the one startup failure nothing can
	// degrade around.
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busyTimeout}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	gw, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, log)
	if err != nil {
		return fmt.Errorf("telegram gateway: %w", err)
	}

	var fetcher transport.MessageFetcher
	if cfg.Telegram.APIID != 0 {
		hist, err := mtproto.NewClient(mtproto.Config{
			APIID:       cfg.Telegram.APIID,
			APIHash:     cfg.Telegram.APIHash,
			BotToken:    cfg.Telegram.Token,
			SessionFile: cfg.Telegram.SessionFile,
		}, log)
		if err != nil {
			return fmt.Errorf("history client: %w", err)
		}
		go func() {
			if err := hist.Run(ctx); err != nil {
				log.Error("history client stopped", logx.Err(err))
			}
		}()
		defer hist.Close()
		fetcher = hist
	} else {
		log.Warn("api_id/api_hash not set; /index is disabled")
	}

	gate := verify.NewGate(store, tokenTTL, cfg.Verify.BaseURL)
	suggester := suggest.NewClient(suggest.Config{
		APIKey:  cfg.Suggest.APIKey,
		BaseURL: cfg.Suggest.BaseURL,
		Timeout: suggestTimeout,
	}, log)
	pool := search.NewFuzzyPool(cfg.Search.FuzzyWorkers)
	defer pool.Stop()
	resolver := search.NewResolver(store, suggester, pool, cfg.Search.PageSize, cfg.Search.FuzzyCutoff, log)
	engine := broadcast.NewEngine(broadcast.Config{
		Concurrency: cfg.Broadcast.Concurrency,
		RatePerSec:  cfg.Broadcast.RatePerSec,
	}, log)

	listenAddr := cfg.Verify.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := web.NewServer(web.Config{ListenAddr: listenAddr, BotUsername: gw.Username()}, gate, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("verification gateway stopped", logx.Err(err))
			cancel()
		}
	}()

	b := bot.New(bot.Config{
		AdminIDs:            cfg.Telegram.AdminIDs,
		PrimaryChannelID:    cfg.Telegram.PrimaryChannelID,
		UpdateChannelURL:    cfg.Telegram.UpdateChannelURL,
		StartPic:            cfg.Media.StartPic,
		AutoMessageText:     cfg.Groups.AutoMessageText,
		AutoMessageInterval: autoMsgInterval,
		AutoMessageTTL:      autoMsgTTL,
	}, gw, store, resolver, gate, engine, fetcher, log)

	// Hot-reload consumer: the group auto-message knobs apply without a
	// restart. The rest of the config is wired at construction and needs
	// one.
	reloads := mgr.Subscribe(1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-reloads:
				ttl, _ := config.ParseDurationOrDefault("groups.auto_message_ttl", next.Groups.AutoMessageTTL, 0)
				b.SetAutoMessage(next.Groups.AutoMessageText, ttl)
				log.Info("group auto-message settings applied from reload")
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	runErr := b.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("gateway shutdown", logx.Err(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
