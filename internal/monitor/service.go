package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tapwatch/internal/fanout"
	"tapwatch/internal/state"
	"tapwatch/internal/subscribers"
	"tapwatch/pkg/logx"
)

// adminParseAlert is the operator alert sent when the counter stops parsing.
const adminParseAlert = "Failed to parse bonuses left"

// Messenger sends one bot message to one chat. Implemented by the Telegram
// adapter; errors carry the provider description for classification.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Pusher delivers one push payload to one subscription.
type Pusher interface {
	Send(ctx context.Context, r subscribers.PushRecipient, payload []byte) error
}

// Mirror publishes cycle results to the static frontend artifact.
// Best-effort; the service logs and ignores its failures.
type Mirror interface {
	Publish(ctx context.Context, r state.Record) error
}

// PageFetcher yields a fresh snapshot of the monitored page.
type PageFetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

type Config struct {
	PollInterval  time.Duration // default 1m
	TotalCapacity int           // default DefaultTotalCapacity
	SiteURL       string

	ChannelID   int64
	AdminUserID int64
}

// Service runs the poll loop and owns the per-cycle control flow.
type Service struct {
	cfg Config
	log logx.Logger

	fetcher PageFetcher
	store   state.Store
	bots    subscribers.BotRegistry
	pushes  subscribers.PushRegistry

	tg     Messenger
	push   Pusher // nil when the push channel is disabled
	mirror Mirror // nil when mirroring is disabled

	disp *fanout.Dispatcher

	cron    *cron.Cron
	entryID cron.EntryID
}

type Deps struct {
	Fetcher PageFetcher
	Store   state.Store
	Bots    subscribers.BotRegistry
	Pushes  subscribers.PushRegistry
	Tg      Messenger
	Push    Pusher
	Mirror  Mirror
	Disp    *fanout.Dispatcher
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.TotalCapacity <= 0 {
		cfg.TotalCapacity = DefaultTotalCapacity
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		fetcher: deps.Fetcher,
		store:   deps.Store,
		bots:    deps.Bots,
		pushes:  deps.Pushes,
		tg:      deps.Tg,
		push:    deps.Push,
		mirror:  deps.Mirror,
		disp:    deps.Disp,
	}
}

// Start arms the poll schedule and runs one immediate cycle.
// SkipIfStillRunning guarantees cycles never overlap; Recover keeps a
// panicking cycle from taking the scheduler down.
func (s *Service) Start(ctx context.Context) error {
	if s.cron != nil {
		return nil
	}

	clog := cronLogger{log: s.log}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(clog),
		cron.SkipIfStillRunning(clog),
	))

	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	id, err := s.cron.AddFunc(spec, func() { s.RunCycle(ctx) })
	if err != nil {
		return fmt.Errorf("monitor schedule: %w", err)
	}
	s.entryID = id
	s.cron.Start()

	go s.RunCycle(ctx)

	s.log.Info("monitor started", logx.Duration("interval", s.cfg.PollInterval))
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	s.cron = nil
	select {
	case <-done:
		s.log.Info("monitor stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("monitor stop cancelled with cycle in flight")
		return ctx.Err()
	}
}

// RunCycle executes one fetch-detect-notify-persist iteration. Every error is
// contained here; the method never panics out and never returns one.
func (s *Service) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("poll cycle panicked", logx.Any("panic", r))
		}
	}()

	started := time.Now()

	prev := state.Default()
	if s.store != nil {
		prev, _ = s.store.Load(ctx) // fails soft by contract
	}

	snap, err := s.fetcher.Fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrParse) {
			// Page structure changed: no state mutation, no subscriber
			// notification, one operator alert.
			s.log.Error("bonus page unparseable", logx.Err(err))
			s.alertAdmin(ctx)
		} else {
			s.log.Warn("bonus page fetch failed; retrying next interval", logx.Err(err))
		}
		return
	}

	decision := Detect(prev, snap)
	switch {
	case decision.AnnounceStart:
		s.announceStart(ctx)
	case decision.AnnounceProgress:
		s.announceProgress(ctx, snap)
	}

	// Persist only after all notification attempts were dispatched: a crash
	// mid-dispatch may duplicate an alert on restart but never loses the
	// started signal.
	if s.store != nil {
		if err := s.store.Save(ctx, snap.Record()); err != nil {
			s.log.Error("state save failed; cycle results lost", logx.Err(err))
		}
	}

	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, snap.Record()); err != nil {
			s.log.Warn("frontend mirror failed", logx.Err(err))
		}
	}

	s.log.Debug("poll cycle done",
		logx.Bool("event_active", snap.EventActive),
		logx.Int("counter", snap.Counter),
		logx.Int("contributors", len(snap.Contributors)),
		logx.Duration("took", time.Since(started)))
}

// announceStart posts to the channel and fans out to both subscriber lists,
// awaiting every dispatch before the cycle may persist.
func (s *Service) announceStart(ctx context.Context) {
	text := StartMessage(s.cfg.SiteURL)
	s.log.Info("freeleech started; announcing")

	if err := s.tg.SendText(ctx, s.cfg.ChannelID, text); err != nil {
		s.log.Error("channel post failed", logx.Err(err))
	}

	s.fanoutBots(ctx, text)
	s.fanoutPush(ctx)
}

func (s *Service) announceProgress(ctx context.Context, snap Snapshot) {
	text := ProgressMessage(snap, s.cfg.TotalCapacity)
	if err := s.tg.SendText(ctx, s.cfg.ChannelID, text); err != nil {
		s.log.Error("progress post failed", logx.Err(err))
	}
}

func (s *Service) fanoutBots(ctx context.Context, text string) {
	list, err := s.bots.List(ctx)
	if err != nil {
		s.log.Error("bot subscriber list unavailable", logx.Err(err))
		return
	}

	recipients := make([]fanout.Recipient, len(list))
	for i, r := range list {
		recipients[i] = r
	}

	agg := s.disp.Dispatch(ctx, recipients, func(ctx context.Context, r fanout.Recipient) error {
		return s.tg.SendText(ctx, r.(subscribers.BotRecipient).ChatID, text)
	}, fanout.ClassifyTelegram)

	// Revoked chats are pruned via the registry, not by the dispatcher.
	for _, r := range agg.Revoked {
		br := r.(subscribers.BotRecipient)
		if err := s.bots.Remove(ctx, br.ChatID); err != nil {
			s.log.Warn("blocked subscriber prune failed",
				logx.Int64("chat_id", br.ChatID), logx.Err(err))
		}
	}
}

// pushPayload is the JSON shape the frontend service worker expects.
type pushPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

func (s *Service) fanoutPush(ctx context.Context) {
	if s.push == nil {
		return
	}
	list, err := s.pushes.List(ctx)
	if err != nil {
		s.log.Error("push subscriber list unavailable", logx.Err(err))
		return
	}

	payload, err := json.Marshal(pushPayload{
		Title:   "Начался фрилич / Freeleech started",
		Message: "🚀 " + s.cfg.SiteURL,
		URL:     s.cfg.SiteURL,
	})
	if err != nil {
		s.log.Error("push payload marshal failed", logx.Err(err))
		return
	}

	recipients := make([]fanout.Recipient, len(list))
	for i, r := range list {
		recipients[i] = r
	}

	agg := s.disp.Dispatch(ctx, recipients, func(ctx context.Context, r fanout.Recipient) error {
		return s.push.Send(ctx, r.(subscribers.PushRecipient), payload)
	}, fanout.ClassifyPush)

	for _, r := range agg.Revoked {
		pr := r.(subscribers.PushRecipient)
		if err := s.pushes.Remove(ctx, pr.Endpoint); err != nil {
			s.log.Warn("expired push subscription prune failed",
				logx.String("endpoint", pr.RecipientKey()), logx.Err(err))
		}
	}
}

func (s *Service) alertAdmin(ctx context.Context) {
	if err := s.tg.SendText(ctx, s.cfg.AdminUserID, adminParseAlert); err != nil {
		s.log.Error("admin alert failed", logx.Err(err))
	}
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
