package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"tapwatch/internal/subscribers"
	"tapwatch/pkg/logx"
)

type memRegistry struct {
	mu      sync.Mutex
	added   []subscribers.PushRecipient
	removed []string
}

func (m *memRegistry) List(ctx context.Context) ([]subscribers.PushRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]subscribers.PushRecipient(nil), m.added...), nil
}

func (m *memRegistry) Add(ctx context.Context, r subscribers.PushRecipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, r)
	return nil
}

func (m *memRegistry) Remove(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, endpoint)
	return nil
}

func newTestServer() (*Server, *memRegistry) {
	reg := &memRegistry{}
	return New(Config{}, reg, logx.Nop()), reg
}

func TestSubscribeStoresRecipient(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer()
	body := `{"endpoint":"https://push.example/sub/1","keys":{"p256dh":"p256-key","auth":"auth-key"}}`
	req := httptest.NewRequest(http.MethodPost, "/push-subscription", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(reg.added) != 1 {
		t.Fatalf("added = %d, want 1", len(reg.added))
	}
	got := reg.added[0]
	if got.Endpoint != "https://push.example/sub/1" || got.AuthKey != "auth-key" || got.P256dhKey != "p256-key" {
		t.Fatalf("stored = %+v", got)
	}
}

func TestSubscribeRejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"endpoint":`},
		{"missing endpoint", `{"keys":{"p256dh":"a","auth":"b"}}`},
		{"endpoint not a url", `{"endpoint":"not a url","keys":{"p256dh":"a","auth":"b"}}`},
		{"missing auth key", `{"endpoint":"https://push.example/1","keys":{"p256dh":"a"}}`},
		{"missing p256dh key", `{"endpoint":"https://push.example/1","keys":{"auth":"b"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, reg := newTestServer()
			req := httptest.NewRequest(http.MethodPost, "/push-subscription", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(reg.added) != 0 {
				t.Fatalf("rejected request reached the registry: %+v", reg.added)
			}
		})
	}
}

func TestUnsubscribeRemovesEndpoint(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer()
	target := "/push-subscription?endpoint=" + url.QueryEscape("https://push.example/sub/1")
	req := httptest.NewRequest(http.MethodDelete, target, nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(reg.removed) != 1 || reg.removed[0] != "https://push.example/sub/1" {
		t.Fatalf("removed = %v", reg.removed)
	}
}

func TestUnsubscribeRejectsMissingEndpoint(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/push-subscription", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(reg.removed) != 0 {
		t.Fatalf("removed = %v, want none", reg.removed)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
