// Package app wires the daemon together from config: logging, stores,
// channel adapters, the fan-out dispatcher, the monitor loop, and the
// subscription HTTP API.
package app

import (
	"context"
	"fmt"
	"time"

	"tapwatch/internal/adapters/telegram"
	"tapwatch/internal/adapters/webpush"
	"tapwatch/internal/config"
	"tapwatch/internal/fanout"
	"tapwatch/internal/httpapi"
	"tapwatch/internal/mirror"
	"tapwatch/internal/monitor"
	"tapwatch/internal/state"
	"tapwatch/internal/subscribers"
	"tapwatch/pkg/logx"
)

type App struct {
	cfgPath string

	logs *logx.Service
	log  logx.Logger

	store   state.Store
	tg      *telegram.Adapter
	mon     *monitor.Service
	httpSrv *httpapi.Server
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgPath: cfgPath, logs: logSvc, log: log}
	if err := a.build(cfg, logSvc.Logger()); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	// Stores.
	store, err := state.Open(state.Config{
		Driver: cfg.State.Driver,
		Path:   cfg.State.Path,
	}, root.With(logx.String("comp", "state")))
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	a.store = store

	bots, err := subscribers.NewBotFile(cfg.Subscribers.BotPath, cfg.Subscribers.AuditPath,
		root.With(logx.String("comp", "subscribers")))
	if err != nil {
		return fmt.Errorf("bot registry: %w", err)
	}
	pushes, err := subscribers.NewPushFile(cfg.Subscribers.PushPath,
		root.With(logx.String("comp", "subscribers")))
	if err != nil {
		return fmt.Errorf("push registry: %w", err)
	}

	// Channel adapters.
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	siteURL := cfg.Monitor.SiteURL
	if siteURL == "" {
		siteURL = cfg.Monitor.PageURL
	}
	tg, err := telegram.New(telegram.Config{
		Token:         cfg.Telegram.Token,
		PollTimeout:   pollTimeout,
		SiteURL:       siteURL,
		ChannelHandle: cfg.Telegram.ChannelHandle,
	}, bots, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.tg = tg

	var pusher monitor.Pusher
	if cfg.Push.Enabled {
		wp, err := webpush.New(webpush.Config{
			Subscriber:      cfg.Push.Subscriber,
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			TTL:             cfg.Push.TTL,
		}, root.With(logx.String("comp", "webpush")))
		if err != nil {
			return fmt.Errorf("webpush adapter: %w", err)
		}
		pusher = wp
	}

	var mir monitor.Mirror
	if cfg.Mirror.Enabled {
		m, err := mirror.New(cfg.Mirror.Path)
		if err != nil {
			return fmt.Errorf("mirror: %w", err)
		}
		mir = m
	}

	// Fan-out.
	batchInterval, err := config.ParseDurationOrDefault("fanout.batch_interval", cfg.Fanout.BatchInterval, 100*time.Millisecond)
	if err != nil {
		return err
	}
	disp := fanout.New(fanout.Config{
		BatchSize:     cfg.Fanout.BatchSize,
		BatchInterval: batchInterval,
	}, root.With(logx.String("comp", "fanout")))

	// Monitor.
	pollInterval, err := config.ParseDurationOrDefault("monitor.poll_interval", cfg.Monitor.PollInterval, time.Minute)
	if err != nil {
		return err
	}
	fetchTimeout, err := config.ParseDurationOrDefault("monitor.fetch_timeout", cfg.Monitor.FetchTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	fetcher := monitor.NewFetcher(monitor.FetcherConfig{
		PageURL:         cfg.Monitor.PageURL,
		CookieBBData:    cfg.Monitor.Cookies.BBData,
		CookieBBLastRel: cfg.Monitor.Cookies.BBLastRel,
		Timeout:         fetchTimeout,
	}, root.With(logx.String("comp", "fetcher")))

	a.mon = monitor.New(monitor.Config{
		PollInterval:  pollInterval,
		TotalCapacity: cfg.Monitor.TotalCapacity,
		SiteURL:       siteURL,
		ChannelID:     cfg.Telegram.ChannelID,
		AdminUserID:   cfg.Telegram.AdminUserID,
	}, monitor.Deps{
		Fetcher: fetcher,
		Store:   store,
		Bots:    bots,
		Pushes:  pushes,
		Tg:      tg,
		Push:    pusher,
		Mirror:  mir,
		Disp:    disp,
	}, root.With(logx.String("comp", "monitor")))

	if cfg.HTTP.Enabled {
		a.httpSrv = httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr}, pushes,
			root.With(logx.String("comp", "httpapi")))
	}

	return nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.tg.Start(ctx); err != nil {
		return err
	}
	if a.httpSrv != nil {
		if err := a.httpSrv.Start(ctx); err != nil {
			return err
		}
	}
	if err := a.mon.Start(ctx); err != nil {
		return err
	}

	// Config edits re-apply the logging section at runtime; everything else
	// requires a restart.
	if err := config.Watch(ctx, a.cfgPath, a.log, func(cfg *config.Config) {
		a.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}); err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	keep(a.mon.Stop(ctx))
	if a.httpSrv != nil {
		keep(a.httpSrv.Stop(ctx))
	}
	keep(a.tg.Stop(ctx))
	if a.store != nil {
		keep(a.store.Close())
	}
	keep(a.logs.Close())

	return first
}
