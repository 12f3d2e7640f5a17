package automation

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Challenge selectors and markers observed on marketplace interstitials.
var challengeSelectors = []string{
	"iframe[src*='captcha']",
	"div.g-recaptcha",
	"div[data-hcaptcha-widget-id]",
	"form#challenge-form",
	"div#cf-challenge-running",
}

var challengeMarkers = []string{
	"verify you are human",
	"unusual activity",
	"confirm your identity",
	"security check",
}

// loginMarkers indicate the response is a login wall rather than the
// requested page, meaning the session cookies no longer authenticate.
var loginMarkers = []string{
	"form[action*='login']",
	"input[name='password']",
}

// detectChallenge reports whether a response body is a human-verification
// interstitial.
func detectChallenge(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	for _, sel := range challengeSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	text := strings.ToLower(doc.Find("body").Text())
	for _, marker := range challengeMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// detectLoginWall reports whether a response body is asking for credentials.
func detectLoginWall(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	for _, sel := range loginMarkers {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
