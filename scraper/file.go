package scraper

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/reviewguard/models"
)

// DefaultFixture is served by FileFetcher when no fixture matches the URL.
const DefaultFixture = "default.html"

// FileFetcher serves listing pages from local HTML fixtures, for
// development and tests. A file:// URL is read directly when it points
// inside Dir; any other URL is looked up in Dir as <host>-<path>.html
// (non-alphanumerics replaced with '-'), falling back to DefaultFixture.
type FileFetcher struct {
	Dir     string
	Anchors []string
}

// NewFileFetcher creates a FileFetcher reading from dir.
func NewFileFetcher(dir string, anchors []string) *FileFetcher {
	return &FileFetcher{Dir: dir, Anchors: anchors}
}

// Open reads the fixture for targetURL.
func (f *FileFetcher) Open(ctx context.Context, targetURL string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, categorizeError(err, "canceled")
	}

	paths, err := f.candidates(targetURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, models.NewAnalysisError(models.ErrCodeFetchFailed, "read fixture", err)
		}

		doc := &Document{
			HTML:      string(b),
			Title:     extractTitle(b),
			FinalURL:  targetURL,
			FetchedAt: time.Now(),
		}
		if err := DetectChallenge(doc.HTML, f.Anchors); err != nil {
			return nil, err
		}
		return &staticSession{doc: doc}, nil
	}
	return nil, models.NewAnalysisError(models.ErrCodeFetchFailed, "no fixture for "+targetURL, lastErr)
}

func (f *FileFetcher) candidates(targetURL string) ([]string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return []string{filepath.Join(f.Dir, DefaultFixture)}, nil
	}
	if u.Scheme == "file" {
		path, ok := f.within(u.Path)
		if !ok {
			return nil, models.NewAnalysisError(models.ErrCodeInvalidInput,
				"file url is outside the fixture directory", nil)
		}
		return []string{path}, nil
	}
	return []string{
		filepath.Join(f.Dir, FixtureName(u)),
		filepath.Join(f.Dir, DefaultFixture),
	}, nil
}

// within resolves path against Dir and reports whether it stays inside it.
func (f *FileFetcher) within(path string) (string, bool) {
	dir, err := filepath.Abs(f.Dir)
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

// FixtureName maps a URL to its fixture file name.
func FixtureName(u *url.URL) string {
	slug := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '-'
	}, strings.ToLower(u.Host+u.Path))
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return slug + ".html"
}
