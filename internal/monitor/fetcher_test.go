package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"tapwatch/internal/state"
	"tapwatch/pkg/logx"
)

// servePage serves body encoded as Windows-1251, the way the tracker does.
func servePage(t *testing.T, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	encoded, err := charmap.Windows1251.NewEncoder().String(body)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		_, _ = w.Write([]byte(encoded))
	}))
}

func pageHTML(counter string, active bool) string {
	heading := "Бонусная система"
	if active {
		heading = "Идет фрилич!"
	}
	return fmt.Sprintf(`<html><body>
<h1>%s</h1>
<span id="freeleech_bank"> %s </span>
<table id="mec_freeleech_bank">
<tr><th>Участник</th><th>Вклад</th></tr>
<tr><td>Алиса</td><td>100</td></tr>
<tr><td>Боб</td><td> 50 </td></tr>
</table>
</body></html>`, heading, counter)
}

func newTestFetcher(url string) *Fetcher {
	return NewFetcher(FetcherConfig{
		PageURL:         url,
		CookieBBData:    "data-cookie",
		CookieBBLastRel: "rel-cookie",
	}, logx.Nop())
}

func TestFetchDecodesAndExtracts(t *testing.T) {
	t.Parallel()

	var gotCookies []*http.Cookie
	srv := servePage(t, pageHTML("4000", false), func(r *http.Request) {
		gotCookies = r.Cookies()
	})
	defer srv.Close()

	snap, err := newTestFetcher(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if snap.EventActive {
		t.Fatal("EventActive = true, want false")
	}
	if snap.Counter != 4000 {
		t.Fatalf("Counter = %d, want 4000", snap.Counter)
	}
	want := []state.Contributor{{Name: "Алиса", Amount: 100}, {Name: "Боб", Amount: 50}}
	if len(snap.Contributors) != 2 || snap.Contributors[0] != want[0] || snap.Contributors[1] != want[1] {
		t.Fatalf("Contributors = %v, want %v (non-ASCII names must survive decoding)", snap.Contributors, want)
	}

	byName := map[string]string{}
	for _, c := range gotCookies {
		byName[c.Name] = c.Value
	}
	if byName["bb_data"] != "data-cookie" || byName["bb_last_rel"] != "rel-cookie" {
		t.Fatalf("session cookies not sent: %v", gotCookies)
	}
}

func TestFetchDetectsActiveHeading(t *testing.T) {
	t.Parallel()

	srv := servePage(t, pageHTML("0", true), nil)
	defer srv.Close()

	snap, err := newTestFetcher(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !snap.EventActive {
		t.Fatal("EventActive = false, want true while the freeleech heading is shown")
	}
	if snap.Counter != 0 {
		t.Fatalf("Counter = %d, want 0", snap.Counter)
	}
}

func TestFetchNonIntegerCounterIsParseError(t *testing.T) {
	t.Parallel()

	srv := servePage(t, pageHTML("n/a", false), nil)
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestFetchMissingCounterIsParseError(t *testing.T) {
	t.Parallel()

	srv := servePage(t, `<html><body><h1>x</h1></body></html>`, nil)
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestFetchTransportFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := servePage(t, pageHTML("1", false), nil)
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher(url).Fetch(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestFetchNonOKStatusIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}
