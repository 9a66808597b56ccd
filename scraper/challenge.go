package scraper

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/reviewguard/models"
)

// challengeSelector matches CAPTCHA widgets, bot-check forms and sign-in
// walls.
var challengeSelector = cascadia.MustCompile(strings.Join([]string{
	`form#captcha-form`,
	`form[action*="/sorry/"]`,
	`#recaptcha`,
	`div.g-recaptcha`,
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`#challenge-form`,
	`#cf-challenge-running`,
	`form[action*="accounts.google.com"]`,
	`input[type="password"]`,
}, ", "))

// challengePhrases appear in the visible text of interstitial pages.
var challengePhrases = []string{
	"unusual traffic from your computer network",
	"verify you are a human",
	"are you a robot",
	"checking your browser before accessing",
	"sign in to continue",
	"before you continue to google",
}

// maxInterstitialText bounds how much body text a page may have and still
// be checked for challenge phrases. Listing pages are far longer and may
// quote those phrases inside reviews.
const maxInterstitialText = 2000

// DetectChallenge reports FETCH_BLOCKED when rawHTML looks like a CAPTCHA,
// bot-check or sign-in page instead of the listing: a known challenge
// element or phrase is present, or none of anchors match. Anchors that do
// not compile are ignored; an empty anchor list skips that check.
func DetectChallenge(rawHTML string, anchors []string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return models.NewAnalysisError(models.ErrCodeFetchFailed, "unreadable document", err)
	}

	if doc.FindMatcher(challengeSelector).Length() > 0 {
		return models.NewAnalysisError(models.ErrCodeFetchBlocked,
			"challenge or sign-in page detected", nil)
	}

	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	if utf8.RuneCountInString(text) <= maxInterstitialText {
		for _, phrase := range challengePhrases {
			if strings.Contains(text, phrase) {
				return models.NewAnalysisError(models.ErrCodeFetchBlocked,
					"challenge page detected: "+phrase, nil)
			}
		}
	}

	if len(anchors) == 0 {
		return nil
	}
	for _, anchor := range anchors {
		m, err := cascadia.Compile(anchor)
		if err != nil {
			slog.Warn("ignoring invalid anchor selector", "selector", anchor, "error", err)
			continue
		}
		if doc.FindMatcher(m).Length() > 0 {
			return nil
		}
	}
	return models.NewAnalysisError(models.ErrCodeFetchBlocked,
		"expected listing structure not found", nil)
}
