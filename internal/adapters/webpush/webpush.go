// Package webpush is the browser push channel adapter. It speaks the Web
// Push protocol with VAPID signing; the payload is opaque JSON the frontend
// service worker renders.
package webpush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"tapwatch/internal/fanout"
	"tapwatch/internal/subscribers"
	"tapwatch/pkg/logx"
)

type Config struct {
	// Subscriber is the VAPID contact address (mailto: or URL).
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// TTL in seconds for messages queued at the push service.
	TTL int
}

type Adapter struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, errors.New("webpush: VAPID key pair is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3600
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log}, nil
}

// Send delivers one payload to one subscription. Every failure is wrapped as
// a DeliveryError carrying the push service's status code; the classifier
// treats 404/410 as a gone endpoint and everything else as transient.
func (a *Adapter) Send(ctx context.Context, r subscribers.PushRecipient, payload []byte) error {
	sub := &webpush.Subscription{
		Endpoint: r.Endpoint,
		Keys: webpush.Keys{
			Auth:   r.AuthKey,
			P256dh: r.P256dhKey,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		Subscriber:      a.cfg.Subscriber,
		VAPIDPublicKey:  a.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: a.cfg.VAPIDPrivateKey,
		TTL:             a.cfg.TTL,
	})
	if err != nil {
		return &fanout.DeliveryError{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &fanout.DeliveryError{
			Detail:     fmt.Sprintf("push service returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}
