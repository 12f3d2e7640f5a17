package automation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

const testCreds = `{"cookies":[{"name":"_session","value":"abc123","path":"/"}]}`

func testIdentity() domain.ClientIdentity {
	return domain.ClientIdentity{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) TestBrowser/1.0",
		Locale:    "en-GB",
		Timezone:  "Europe/London",
		ViewportW: 1920,
		ViewportH: 1080,
	}
}

func testDraft() *domain.Draft {
	return &domain.Draft{
		ID:          "draft-1",
		Title:       "Carhartt black hoodie size L",
		Description: "Light wear.",
		Brand:       "Carhartt",
		Category:    "hoodies",
		Size:        "L",
		Condition:   "very good",
		Color:       "black",
		PhotoRefs:   []string{"a.jpg", "b.jpg"},
		Price:       domain.PriceRange{Min: 24, Target: 32, Max: 41.5},
		Hashtags:    []string{"#hoodie", "#carhartt", "#black"},
		Revision:    1,
	}
}

func newTestClient(baseURL string) *MarketplaceClient {
	return NewMarketplaceClient(config.MarketplaceConfig{
		BaseURL:       baseURL,
		SubmitTimeout: 30 * time.Second,
		ActionTimeout: 5 * time.Second,
	}, logger.NewNop())
}

func TestPublishListing(t *testing.T) {
	var sawForm, sawSubmitAfterUploads bool
	var submittedTitle, userAgent string
	var uploadedRefs []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("_session"); err != nil || c.Value != "abc123" {
			w.Write([]byte(`<html><body><form action="/login"><input name="password"></form></body></html>`))
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/items/new":
			sawForm = true
			userAgent = r.UserAgent()
			w.Write([]byte(`<html><body><form id="new-item"></form></body></html>`))
		case r.Method == http.MethodPost && r.URL.Path == "/items/photos":
			r.ParseForm()
			uploadedRefs = append(uploadedRefs, r.PostFormValue("photo_ref"))
			w.Write([]byte(`<html><body><div class="photo-ok"></div></body></html>`))
		case r.Method == http.MethodPost && r.URL.Path == "/items":
			sawSubmitAfterUploads = len(uploadedRefs) == 2
			r.ParseForm()
			submittedTitle = r.PostFormValue("title")
			w.Write([]byte(`<html><body><div data-listing-id="listing-9" data-listing-url="` + r.Host + `/items/9"></div></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := newTestClient(srv.URL)
	outcome, err := m.PublishListing(context.Background(), []byte(testCreds), testIdentity(), testDraft())
	if err != nil {
		t.Fatalf("PublishListing() error = %v", err)
	}

	if !sawForm {
		t.Error("client submitted without visiting the listing form first")
	}
	if len(uploadedRefs) != 2 || uploadedRefs[0] != "a.jpg" || uploadedRefs[1] != "b.jpg" {
		t.Errorf("uploaded photos = %v, want [a.jpg b.jpg] in order", uploadedRefs)
	}
	if !sawSubmitAfterUploads {
		t.Error("listing submitted before every photo was uploaded")
	}
	if outcome.Status != domain.PublishSuccess {
		t.Errorf("Status = %v, want success", outcome.Status)
	}
	if outcome.ListingID != "listing-9" {
		t.Errorf("ListingID = %q, want listing-9", outcome.ListingID)
	}
	if submittedTitle != "Carhartt black hoodie size L" {
		t.Errorf("submitted title = %q", submittedTitle)
	}
	if userAgent != testIdentity().UserAgent {
		t.Errorf("user agent = %q, want stored identity", userAgent)
	}
}

func TestPublishListingLoginWall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form action="/login"><input name="password" type="password"></form></body></html>`))
	}))
	defer srv.Close()

	m := newTestClient(srv.URL)
	_, err := m.PublishListing(context.Background(), []byte(testCreds), testIdentity(), testDraft())
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Errorf("PublishListing() error = %v, want ErrSessionInvalid", err)
	}
}

func TestPublishListingChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="g-recaptcha"></div>Verify you are human</body></html>`))
	}))
	defer srv.Close()

	m := newTestClient(srv.URL)
	_, err := m.PublishListing(context.Background(), []byte(testCreds), testIdentity(), testDraft())
	if !errors.Is(err, domain.ErrVerificationRequired) {
		t.Errorf("PublishListing() error = %v, want ErrVerificationRequired", err)
	}
}

func TestPublishListingBadCredentialBlob(t *testing.T) {
	m := newTestClient("http://marketplace.invalid")

	_, err := m.PublishListing(context.Background(), []byte("not json"), testIdentity(), testDraft())
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Errorf("PublishListing() error = %v, want ErrSessionInvalid", err)
	}

	_, err = m.PublishListing(context.Background(), []byte(`{"cookies":[]}`), testIdentity(), testDraft())
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Errorf("PublishListing() with empty cookies error = %v, want ErrSessionInvalid", err)
	}
}

func TestCheckSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body><div class="account-dashboard">Your items</div></body></html>`))
	}))
	defer srv.Close()

	m := newTestClient(srv.URL)
	if err := m.CheckSession(context.Background(), []byte(testCreds), testIdentity()); err != nil {
		t.Errorf("CheckSession() error = %v", err)
	}
}

func TestDetectChallenge(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"recaptcha widget", `<div class="g-recaptcha"></div>`, true},
		{"captcha iframe", `<iframe src="https://captcha.example/frame"></iframe>`, true},
		{"text marker", `<body><p>We detected unusual activity on your account.</p></body>`, true},
		{"ordinary page", `<body><h1>New listing</h1><form></form></body>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectChallenge([]byte(tt.body)); got != tt.want {
				t.Errorf("detectChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHumanDelayBounds(t *testing.T) {
	var distinct = map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		d := humanDelay()
		if d < minActionDelay || d > maxActionDelay {
			t.Fatalf("humanDelay() = %v, outside [%v, %v]", d, minActionDelay, maxActionDelay)
		}
		distinct[d] = true
	}
	// A fixed pause would be a bot tell; the draw must actually vary.
	if len(distinct) < 50 {
		t.Errorf("humanDelay() produced %d distinct values over 200 draws", len(distinct))
	}
}
