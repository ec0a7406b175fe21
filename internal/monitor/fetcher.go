package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"

	"tapwatch/internal/state"
	"tapwatch/pkg/logx"
)

var (
	// ErrNetwork marks transport failures. Transient: the cycle aborts
	// silently and the next interval retries.
	ErrNetwork = errors.New("bonus page fetch failed")
	// ErrParse marks structure or encoding mismatches (the page changed).
	// The cycle aborts, state is untouched, and the operator is alerted.
	ErrParse = errors.New("bonus page parse failed")
)

// Page extraction recipe. The tracker serves Windows-1251 and swaps in the
// freeleech headline while the event runs.
const (
	cookieBBData    = "bb_data"
	cookieBBLastRel = "bb_last_rel"

	counterSelector     = "#freeleech_bank"
	contributorSelector = "#mec_freeleech_bank tr"
	activeHeading       = "идет фрилич"
)

type FetcherConfig struct {
	PageURL string

	// Session cookies; the bonus page is only served to a logged-in session.
	CookieBBData    string
	CookieBBLastRel string

	Timeout time.Duration
}

// Fetcher retrieves and decodes the bonus page into a Snapshot.
type Fetcher struct {
	cfg    FetcherConfig
	log    logx.Logger
	client *http.Client
}

func NewFetcher(cfg FetcherConfig, log logx.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch issues one authenticated GET and extracts the snapshot.
//
// The body is decoded from Windows-1251 before any structural parsing;
// feeding raw bytes to the HTML parser would silently mangle non-ASCII
// contributor names.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.PageURL, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.AddCookie(&http.Cookie{Name: cookieBBData, Value: f.cfg.CookieBBData})
	req.AddCookie(&http.Cookie{Name: cookieBBLastRel, Value: f.cfg.CookieBBLastRel})

	resp, err := f.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}

	decoded := charmap.Windows1251.NewDecoder().Reader(resp.Body)
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return extract(doc)
}

func extract(doc *goquery.Document) (Snapshot, error) {
	var snap Snapshot

	// A non-integer counter means the markup changed; surface it instead of
	// coercing to the sentinel, so the operator gets alerted.
	raw := strings.TrimSpace(doc.Find(counterSelector).First().Text())
	counter, err := strconv.Atoi(raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: counter %q is not an integer", ErrParse, raw)
	}
	snap.Counter = counter

	snap.EventActive = strings.Contains(
		strings.ToLower(doc.Find("h1").Text()), activeHeading)

	doc.Find(contributorSelector).Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header row
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		// Contributor amounts are informational; a bad cell degrades to 0
		// rather than failing the whole snapshot.
		amount, _ := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		snap.Contributors = append(snap.Contributors, state.Contributor{
			Name:   name,
			Amount: amount,
		})
	})

	return snap, nil
}
