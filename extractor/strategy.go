package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Strategy reads one field from a selection. It reports false when the
// markup it knows about is absent or empty, so the next strategy can try.
type Strategy func(s *goquery.Selection) (string, bool)

// Chain is an ordered list of strategies for one field. The source markup
// is unversioned, so every field carries several ways of finding it.
type Chain []Strategy

// First returns the value of the first strategy that yields non-empty
// content, or "" if none does.
func (c Chain) First(s *goquery.Selection) string {
	for _, strategy := range c {
		if v, ok := strategy(s); ok {
			return v
		}
	}
	return ""
}

// Text reads the trimmed text of the first descendant matching selector.
func Text(selector string) Strategy {
	m := cascadia.MustCompile(selector)
	return func(s *goquery.Selection) (string, bool) {
		return nonEmpty(cleanText(s.FindMatcher(m).First().Text()))
	}
}

// Attr reads attr from the first descendant matching selector.
func Attr(selector, attr string) Strategy {
	m := cascadia.MustCompile(selector)
	return func(s *goquery.Selection) (string, bool) {
		v, _ := s.FindMatcher(m).First().Attr(attr)
		return nonEmpty(cleanText(v))
	}
}

// OwnAttr reads attr from the selection itself.
func OwnAttr(attr string) Strategy {
	return func(s *goquery.Selection) (string, bool) {
		v, _ := s.Attr(attr)
		return nonEmpty(strings.TrimSpace(v))
	}
}

// Matching keeps a strategy's value only if re matches it, returning the
// first capture group when there is one.
func Matching(inner Strategy, re *regexp.Regexp) Strategy {
	return func(s *goquery.Selection) (string, bool) {
		v, ok := inner(s)
		if !ok {
			return "", false
		}
		m := re.FindStringSubmatch(v)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return nonEmpty(m[1])
		}
		return nonEmpty(m[0])
	}
}

// Containers is an ordered list of selectors for the repeating review
// element. The first selector that matches anything wins.
type Containers []cascadia.Selector

// MustContainers compiles selectors into Containers.
func MustContainers(selectors ...string) Containers {
	c := make(Containers, 0, len(selectors))
	for _, sel := range selectors {
		c = append(c, cascadia.MustCompile(sel))
	}
	return c
}

// CompileContainers is MustContainers for caller-supplied selectors.
func CompileContainers(selectors ...string) (Containers, error) {
	c := make(Containers, 0, len(selectors))
	for _, sel := range selectors {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, err
		}
		c = append(c, m)
	}
	return c, nil
}

// Find returns the matches of the first selector that matches, in
// document order.
func (c Containers) Find(doc *goquery.Selection) *goquery.Selection {
	for _, m := range c {
		if found := doc.FindMatcher(m); found.Length() > 0 {
			return found
		}
	}
	return doc.Slice(0, 0)
}

var (
	numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	intRe    = regexp.MustCompile(`\d[\d,.]*`)
)

// parseRating pulls a 1–5 star value out of strings like "5 stars",
// "Rated 4.0 out of 5" or "3/5". Returns 0 when none is found.
func parseRating(s string) int {
	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0
	}
	r := int(f + 0.5)
	if r < 1 || r > 5 {
		return 0
	}
	return r
}

// parseFloat reads the first decimal number in s ("4.5", "4,5 stars").
func parseFloat(s string) float64 {
	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	return f
}

// parseCount reads the first integer in s, ignoring thousands separators
// ("1,234 reviews" → 1234). Returns 0 when none is found.
func parseCount(s string) int {
	m := intRe.FindString(s)
	if m == "" {
		return 0
	}
	m = strings.NewReplacer(",", "", ".", "").Replace(m)
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}
