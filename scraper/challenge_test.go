package scraper

import (
	"testing"

	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/models"
)

func TestDetectChallenge(t *testing.T) {
	anchors := config.DefaultAnchors

	tests := []struct {
		name    string
		html    string
		blocked bool
	}{
		{
			name: "listing page",
			html: `<html><body><div role="main"><h1>Trattoria</h1><div data-review-id="1">ok</div></div></body></html>`,
		},
		{
			name:    "recaptcha",
			html:    `<html><body><h1>Hold on</h1><div class="g-recaptcha"></div></body></html>`,
			blocked: true,
		},
		{
			name:    "google sorry page",
			html:    `<html><body><div>Our systems have detected unusual traffic from your computer network.</div></body></html>`,
			blocked: true,
		},
		{
			name:    "sign-in wall",
			html:    `<html><body><h1>Sign in</h1><form action="https://accounts.google.com/signin"><input type="password"></form></body></html>`,
			blocked: true,
		},
		{
			name:    "no anchors",
			html:    `<html><body><p>Loading…</p></body></html>`,
			blocked: true,
		},
		{
			name:    "sign-in page with heading and main region",
			html:    `<html><body><div role="main"><h1>Sign in</h1><p>to continue to Maps</p><input type="email" name="identifier"></div></body></html>`,
			blocked: true,
		},
		{
			name:    "consent interstitial",
			html:    `<html><body><div role="main"><h1>Before you continue</h1><button>Accept all</button></div></body></html>`,
			blocked: true,
		},
		{
			name: "page without reviews still has anchors",
			html: `<html><body><div role="main"><h1 class="DUwDvf">New Place</h1></div></body></html>`,
		},
		{
			name: "microdata listing",
			html: `<html><body><div itemscope itemtype="https://schema.org/Restaurant"><h2 itemprop="name">Blue Door</h2></div></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DetectChallenge(tt.html, anchors)
			if tt.blocked {
				if models.CodeOf(err) != models.ErrCodeFetchBlocked {
					t.Errorf("err = %v, want %s", err, models.ErrCodeFetchBlocked)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDetectChallenge_LongPageQuotingPhrase(t *testing.T) {
	long := `<html><body><h1 class="DUwDvf">Cafe</h1>`
	for i := 0; i < 60; i++ {
		long += `<div data-review-id="r">The waiter asked "are you a robot?" as a joke and we laughed about it for a while.</div>`
	}
	long += `</body></html>`

	if err := DetectChallenge(long, config.DefaultAnchors); err != nil {
		t.Errorf("long listing flagged as challenge: %v", err)
	}
}

func TestDetectChallenge_NoAnchorCheck(t *testing.T) {
	if err := DetectChallenge(`<p>anything</p>`, nil); err != nil {
		t.Errorf("err = %v, want nil with no anchors", err)
	}
	if err := DetectChallenge(`<p>anything</p>`, []string{"div["}); models.CodeOf(err) != models.ErrCodeFetchBlocked {
		t.Errorf("err = %v, want blocked when only invalid anchors are given", err)
	}
}
