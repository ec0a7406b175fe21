// Package telegram is the bot-messaging channel adapter: one send API used by
// the fan-out dispatcher and the admin alert path, plus the inbound /start
// registration flow over long polling.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tapwatch/internal/fanout"
	"tapwatch/internal/subscribers"
	"tapwatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration

	// SiteURL and ChannelHandle are interpolated into the welcome reply.
	SiteURL       string
	ChannelHandle string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot      *tele.Bot
	registry subscribers.BotRegistry

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, registry subscribers.BotRegistry, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b, registry: registry}, nil
}

// Start begins long polling. Any private text message registers the chat as a
// bot subscriber and gets the bilingual welcome back.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	a.bot.Handle(tele.OnText, a.handleIncoming)

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

// Stop is best-effort graceful: never block shutdown for too long on the
// Telegram long-poll.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// SendText delivers one message. Failures surface the Telegram API error
// description as the DeliveryError detail the fan-out classifier matches on.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	_ = ctx // telebot does not thread a context through Send
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text)
	if err == nil {
		return nil
	}
	detail, code := describe(err)
	return &fanout.DeliveryError{Detail: detail, StatusCode: code, Err: err}
}

// describe extracts the structured error description Telegram returns in a
// non-200 body, falling back to the raw error text.
func describe(err error) (detail string, code int) {
	var te *tele.Error
	if errors.As(err, &te) {
		return te.Description, te.Code
	}
	return err.Error(), 0
}

func (a *Adapter) handleIncoming(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil || m.Chat.Type != tele.ChatPrivate {
		return nil
	}

	p := subscribers.Profile{
		Username:  m.Chat.Username,
		FirstName: m.Chat.FirstName,
		LastName:  m.Chat.LastName,
	}
	if m.Sender != nil {
		p.Language = m.Sender.LanguageCode
	}

	if err := a.registry.Add(context.Background(), m.Chat.ID, p); err != nil {
		a.log.Error("subscriber registration failed",
			logx.Int64("chat_id", m.Chat.ID), logx.Err(err))
		return nil
	}
	a.log.Info("subscriber registered", logx.Int64("chat_id", m.Chat.ID))

	return c.Send(a.welcome(p.Language))
}

func (a *Adapter) welcome(language string) string {
	if language == "ru" {
		return "Ты успешно подписался на уведомления о фриличах и получишь уведомление в этом боте, когда начнется фрилич.\n\n" +
			"Также можешь подписаться на push-уведомления на сайте: " + a.cfg.SiteURL + "\n\n" +
			"Мы также публикуем прогресс фрилича, по которому можно примерно понять, через сколько он начнется, тут: " + a.cfg.ChannelHandle
	}
	return "You have successfully subscribed to freeleech notifications. You will receive an alert in this bot when a freeleech starts.\n\n" +
		"You can also subscribe to push notifications on the website: " + a.cfg.SiteURL + "\n\n" +
		"We also post freeleech progress, by which you can guess when it will start, here: " + a.cfg.ChannelHandle
}
