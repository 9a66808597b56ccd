package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/models"
	"golang.org/x/net/html"
)

// maxBodySize caps a static download.
const maxBodySize = 10 * 1024 * 1024

// HTTPFetcher downloads listing pages without a browser, using a Chrome
// TLS fingerprint (utls). It cannot scroll: every ScrollAndSettle returns
// the first document, so only server-rendered reviews are seen.
type HTTPFetcher struct {
	cfg    config.ScraperConfig
	client *http.Client
}

// NewHTTPFetcher creates a static fetcher. proxy may be empty.
func NewHTTPFetcher(cfg config.ScraperConfig, proxy string) *HTTPFetcher {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &HTTPFetcher{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
	}
}

// Open downloads targetURL and checks it for a challenge page.
func (f *HTTPFetcher) Open(ctx context.Context, targetURL string) (Session, error) {
	timeout := f.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, finalURL, err := f.fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	if needsBrowser(body) {
		slog.Warn("static page looks script-rendered; the rod backend may find more reviews",
			"url", targetURL,
		)
	}

	doc := &Document{
		HTML:      string(body),
		Title:     extractTitle(body),
		FinalURL:  finalURL,
		FetchedAt: time.Now(),
	}
	if err := DetectChallenge(doc.HTML, f.cfg.Anchors); err != nil {
		return nil, err
	}
	return &staticSession{doc: doc}, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, targetURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, "", models.NewAnalysisError(models.ErrCodeInvalidInput, "invalid listing URL", err)
	}
	ua := f.cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", categorizeError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", models.NewAnalysisError(models.ErrCodeFetchBlocked,
			fmt.Sprintf("HTTP %d from %s", resp.StatusCode, targetURL), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, "", models.NewAnalysisError(models.ErrCodeFetchFailed,
			fmt.Sprintf("HTTP %d from %s", resp.StatusCode, targetURL), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", categorizeError(err, "read body")
	}
	return body, resp.Request.URL.String(), nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// staticSession holds one document that never changes.
type staticSession struct {
	doc *Document
}

func (s *staticSession) Document() *Document { return s.doc }

func (s *staticSession) ScrollAndSettle(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, categorizeError(err, "canceled")
	}
	return s.doc, nil
}

func (s *staticSession) Close() error { return nil }

// needsBrowser reports whether statically fetched HTML is probably an
// empty shell that only fills in with JavaScript.
func needsBrowser(body []byte) bool {
	bodyText := extractVisibleText(body)
	if len(bodyText) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, shell := range []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`} {
		if strings.Contains(lower, shell) {
			return true
		}
	}
	return strings.Count(lower, "<script") > 10 && len(bodyText) < 500
}

// extractTitle extracts the <title> content from raw HTML bytes.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// extractVisibleText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if (tag == "script" || tag == "style" || tag == "noscript") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
