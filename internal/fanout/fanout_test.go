package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"tapwatch/pkg/logx"
)

type fakeRecipient string

func (r fakeRecipient) RecipientKey() string { return string(r) }

func recipients(n int) []Recipient {
	out := make([]Recipient, n)
	for i := range out {
		out[i] = fakeRecipient(string(rune('a' + i)))
	}
	return out
}

func TestDispatchBatchPacing(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 3, BatchInterval: 100 * time.Millisecond}, logx.Nop())

	var mu sync.Mutex
	var stamps []time.Time

	agg := d.Dispatch(context.Background(), recipients(7), func(ctx context.Context, r Recipient) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return nil
	}, ClassifyTelegram)

	if agg.Sent != 7 || agg.Total() != 7 {
		t.Fatalf("aggregate = %+v, want 7 sent", agg)
	}
	if len(stamps) != 7 {
		t.Fatalf("deliveries = %d, want 7", len(stamps))
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// 7 recipients at batch size 3 is exactly 3 batches (3,3,1); batch
	// starts must be at least the interval apart (small scheduling slop).
	const slop = 20 * time.Millisecond
	if gap := stamps[3].Sub(stamps[2]); gap < 100*time.Millisecond-slop {
		t.Fatalf("second batch started %v after first; want >= ~100ms", gap)
	}
	if gap := stamps[6].Sub(stamps[5]); gap < 100*time.Millisecond-slop {
		t.Fatalf("third batch started %v after second; want >= ~100ms", gap)
	}
}

func TestDispatchNeverAbortsOnFailure(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 3, BatchInterval: time.Millisecond}, logx.Nop())

	var mu sync.Mutex
	attempted := 0

	agg := d.Dispatch(context.Background(), recipients(7), func(ctx context.Context, r Recipient) error {
		mu.Lock()
		attempted++
		mu.Unlock()
		if r.RecipientKey() == "b" || r.RecipientKey() == "e" {
			return errors.New("boom")
		}
		return nil
	}, ClassifyTelegram)

	if attempted != 7 {
		t.Fatalf("attempted = %d, want 7 (failures must not block the rest)", attempted)
	}
	if agg.Sent != 5 || agg.Errors != 2 {
		t.Fatalf("aggregate = %+v, want sent=5 errors=2", agg)
	}
	if agg.Total() != 7 {
		t.Fatalf("total = %d, want 7", agg.Total())
	}
}

func TestDispatchClassification(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 3, BatchInterval: time.Millisecond}, logx.Nop())

	errFor := map[string]error{
		"a": &DeliveryError{Detail: "Forbidden: bot was blocked by the user"},
		"b": &DeliveryError{Detail: "Forbidden: user is deactivated"},
		"c": &DeliveryError{Detail: "Too Many Requests: retry after 5"},
	}

	agg := d.Dispatch(context.Background(), recipients(5), func(ctx context.Context, r Recipient) error {
		return errFor[r.RecipientKey()]
	}, ClassifyTelegram)

	if agg.Sent != 2 {
		t.Fatalf("sent = %d, want 2", agg.Sent)
	}
	if agg.Unreachable != 1 {
		t.Fatalf("unreachable = %d, want 1 (blocked bot)", agg.Unreachable)
	}
	if agg.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1 (deactivated user)", agg.Dropped)
	}
	if agg.Errors != 1 {
		t.Fatalf("errors = %d, want 1", agg.Errors)
	}
	if agg.Total() != 5 {
		t.Fatalf("total = %d, want 5", agg.Total())
	}

	if len(agg.Revoked) != 1 || agg.Revoked[0].RecipientKey() != "a" {
		t.Fatalf("revoked = %v, want only recipient a", agg.Revoked)
	}
}

func TestDispatchEmpty(t *testing.T) {
	t.Parallel()

	d := New(Config{}, logx.Nop())
	agg := d.Dispatch(context.Background(), nil, func(ctx context.Context, r Recipient) error {
		t.Fatal("deliver must not be called")
		return nil
	}, ClassifyTelegram)

	if agg.Total() != 0 {
		t.Fatalf("aggregate = %+v, want zero", agg)
	}
}

func TestDispatchCancelledAccountsForEveryone(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 2, BatchInterval: time.Hour}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	agg := d.Dispatch(ctx, recipients(6), func(ctx context.Context, r Recipient) error {
		cancel() // cancel while the first batch is in flight
		return nil
	}, ClassifyTelegram)

	if agg.Total() != 6 {
		t.Fatalf("total = %d, want 6 (unattempted recipients must be accounted)", agg.Total())
	}
	if agg.Sent != 2 {
		t.Fatalf("sent = %d, want 2", agg.Sent)
	}
}
