package fanout

import "fmt"

// Recipient is one delivery target. Implementations are owned by the
// subscriber registries; the dispatcher only borrows them for one call.
type Recipient interface {
	// RecipientKey identifies the recipient in logs and prune requests.
	RecipientKey() string
}

// DeliveryError is what channel adapters return on a failed send. Detail is
// the provider's error description (the string classification matches on);
// StatusCode carries the transport status where the provider exposes one.
type DeliveryError struct {
	Detail     string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("delivery failed: %s", e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return "delivery failed"
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Class is the three-way outcome of classifying one failed delivery.
type Class int

const (
	// ClassTransient is any failure without a recognized permanent cause.
	// Logged once with recipient identity, counted, no retry this cycle.
	ClassTransient Class = iota
	// ClassUnreachable means the recipient revoked delivery consent. Counted
	// and reported to the registration store for removal; not removed here.
	ClassUnreachable
	// ClassDropped is expected churn (e.g. a deleted account): neither
	// logged nor reported, only tallied so aggregates stay complete.
	ClassDropped
)

// Classifier maps a delivery error to a Class. The matching rules live in
// classify.go as data, not scattered literals.
type Classifier func(err error) Class

// Aggregate is the per-dispatch tally. Sent + Unreachable + Errors + Dropped
// always equals the number of recipients handed to Dispatch.
type Aggregate struct {
	Sent        int
	Unreachable int
	Errors      int
	Dropped     int

	// Revoked lists the recipients classified unreachable, for the
	// registration store to prune.
	Revoked []Recipient
}

func (a Aggregate) Total() int { return a.Sent + a.Unreachable + a.Errors + a.Dropped }
