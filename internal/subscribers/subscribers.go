// Package subscribers owns the delivery recipient lists for both channels.
//
// The stores are populated by registration surfaces (the Telegram /start
// handler, the push-subscription HTTP API); the poll loop only borrows a
// snapshot per dispatch and asks for removal of recipients that revoked
// consent. File formats are fixed: a newline chat-ID list for the bot channel
// and a JSON array for push subscriptions.
package subscribers

import (
	"context"
	"strconv"
)

// BotRecipient is a private Telegram chat subscribed to alerts.
type BotRecipient struct {
	ChatID int64
}

func (r BotRecipient) RecipientKey() string {
	return "tg:" + strconv.FormatInt(r.ChatID, 10)
}

// PushRecipient is one browser push subscription.
type PushRecipient struct {
	Endpoint  string
	AuthKey   string
	P256dhKey string
}

func (r PushRecipient) RecipientKey() string {
	// Endpoints are long capability URLs; the tail is the distinctive part.
	const keep = 24
	if len(r.Endpoint) <= keep {
		return "push:" + r.Endpoint
	}
	return "push:…" + r.Endpoint[len(r.Endpoint)-keep:]
}

// Profile is the optional registrant metadata recorded in the audit log.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
	Language  string
}

type BotRegistry interface {
	// List returns the deduplicated chat IDs, invalid lines skipped.
	List(ctx context.Context) ([]BotRecipient, error)
	Add(ctx context.Context, chatID int64, p Profile) error
	Remove(ctx context.Context, chatID int64) error
}

type PushRegistry interface {
	List(ctx context.Context) ([]PushRecipient, error)
	Add(ctx context.Context, r PushRecipient) error
	// Remove deletes every subscription with the given endpoint.
	Remove(ctx context.Context, endpoint string) error
}
