package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/models"
)

const listingHTML = `<html><head><title>Trattoria Lucca - Reviews</title></head>
<body><div role="main"><h1>Trattoria Lucca</h1>
<div data-review-id="a1">Lovely pasta, the waiter remembered us from last time and recommended the special of the day. Prices are fair for the portion size and the wine list is short but well chosen. We waited twenty minutes for a table on a Saturday, which seemed reasonable given how busy the room was.</div>
</div></body></html>`

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{
		NavigationTimeout: 2 * time.Second,
		Anchors:           config.DefaultAnchors,
	}
}

func TestHTTPFetcher_Open(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, listingHTML)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testScraperConfig(), "")
	s, err := f.Open(context.Background(), srv.URL+"/place")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	doc := s.Document()
	if doc.Title != "Trattoria Lucca - Reviews" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.FinalURL != srv.URL+"/place" {
		t.Errorf("FinalURL = %q", doc.FinalURL)
	}
	if !strings.Contains(gotUA, "Chrome/") {
		t.Errorf("User-Agent = %q, want a Chrome UA", gotUA)
	}

	again, err := s.ScrollAndSettle(context.Background())
	if err != nil || again != doc {
		t.Errorf("ScrollAndSettle = %v, %v; want the same document", again, err)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, models.ErrCodeFetchFailed},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, models.ErrCodeFetchFailed},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, models.ErrCodeFetchBlocked},
		{"captcha", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html><body><form id="captcha-form"></form></body></html>`)
		}, models.ErrCodeFetchBlocked},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}, models.ErrCodeFetchTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := testScraperConfig()
			cfg.NavigationTimeout = 100 * time.Millisecond
			_, err := NewHTTPFetcher(cfg, "").Open(context.Background(), srv.URL)
			if models.CodeOf(err) != tt.want {
				t.Errorf("code = %q, want %s (err %v)", models.CodeOf(err), tt.want, err)
			}
		})
	}
}

func TestStaticSession_ScrollAfterCancel(t *testing.T) {
	s := &staticSession{doc: &Document{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ScrollAndSettle(ctx); models.CodeOf(err) != models.ErrCodeRunCanceled {
		t.Errorf("err = %v, want %s", err, models.ErrCodeRunCanceled)
	}
}

func TestExtractTitle(t *testing.T) {
	if got := extractTitle([]byte(`<html><head><title> Blue Door </title></head></html>`)); got != "Blue Door" {
		t.Errorf("extractTitle = %q", got)
	}
	if got := extractTitle([]byte(`<p>no title</p>`)); got != "" {
		t.Errorf("extractTitle = %q, want empty", got)
	}
}

func TestNeedsBrowser(t *testing.T) {
	if !needsBrowser([]byte(`<html><body><div id="root"></div><script src="app.js"></script></body></html>`)) {
		t.Error("SPA shell should need a browser")
	}
	if needsBrowser([]byte(listingHTML)) {
		t.Error("server-rendered listing should not need a browser")
	}
}
