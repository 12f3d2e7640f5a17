package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	colly "github.com/gocolly/colly/v2"

	"github.com/listforge/listforge/internal/config"
	"github.com/listforge/listforge/internal/domain"
	"github.com/listforge/listforge/internal/logger"
)

// storedCookie is one entry of the credential blob kept in the vault.
type storedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

type credentialSet struct {
	Cookies []storedCookie `json:"cookies"`
}

// MarketplaceClient automates listing actions through the marketplace web
// forms. All actions on the account are serialized through one mutex so
// the session never does two things at once.
type MarketplaceClient struct {
	cfg    config.MarketplaceConfig
	logger logger.Logger

	mu sync.Mutex
}

// NewMarketplaceClient creates a client for the configured marketplace.
func NewMarketplaceClient(cfg config.MarketplaceConfig, log logger.Logger) *MarketplaceClient {
	return &MarketplaceClient{cfg: cfg, logger: log}
}

// newCollector builds a collector presenting the session's stored browser
// identity, with its cookies loaded.
func (m *MarketplaceClient) newCollector(creds []byte, identity domain.ClientIdentity) (*colly.Collector, error) {
	var set credentialSet
	if err := json.Unmarshal(creds, &set); err != nil {
		return nil, fmt.Errorf("%w: credential blob unreadable", domain.ErrSessionInvalid)
	}
	if len(set.Cookies) == 0 {
		return nil, fmt.Errorf("%w: credential blob has no cookies", domain.ErrSessionInvalid)
	}

	c := colly.NewCollector(
		colly.UserAgent(identity.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(m.cfg.ActionTimeout)

	cookies := make([]*http.Cookie, 0, len(set.Cookies))
	for _, sc := range set.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   sc.Name,
			Value:  sc.Value,
			Domain: sc.Domain,
			Path:   sc.Path,
		})
	}
	if err := c.SetCookies(m.cfg.BaseURL, cookies); err != nil {
		return nil, fmt.Errorf("set session cookies: %w", err)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", identity.Locale+",en;q=0.8")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})

	return c, nil
}

// fetch runs one GET and classifies the page it lands on.
func (m *MarketplaceClient) fetch(c *colly.Collector, url string) ([]byte, error) {
	var body []byte
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		fetchErr = err
	}
	c.Wait()

	if fetchErr != nil {
		if isTimeout(fetchErr) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExternalTimeout, fetchErr)
		}
		return nil, fetchErr
	}
	return classify(body)
}

// post submits one form and classifies the page it lands on.
func (m *MarketplaceClient) post(c *colly.Collector, url string, form map[string]string) ([]byte, error) {
	var body []byte
	var postErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		postErr = err
	})

	if err := c.Post(url, form); err != nil {
		postErr = err
	}
	c.Wait()

	if postErr != nil {
		if isTimeout(postErr) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExternalTimeout, postErr)
		}
		return nil, postErr
	}
	return classify(body)
}

// classify maps interstitials to the error taxonomy.
func classify(body []byte) ([]byte, error) {
	if detectChallenge(body) {
		return nil, domain.ErrVerificationRequired
	}
	if detectLoginWall(body) {
		return nil, domain.ErrSessionInvalid
	}
	return body, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// PublishListing walks the new-listing flow: open the form, pause the way
// a person filling it in would, submit, and read back the listing the
// marketplace assigned.
func (m *MarketplaceClient) PublishListing(ctx context.Context, creds []byte, identity domain.ClientIdentity, draft *domain.Draft) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
	defer cancel()

	c, err := m.newCollector(creds, identity)
	if err != nil {
		return nil, err
	}

	// Land on the listing form first; submitting without the page visit
	// is a bot tell.
	if _, err := m.fetch(c.Clone(), m.cfg.BaseURL+"/items/new"); err != nil {
		return nil, err
	}

	if err := m.uploadPhotos(ctx, c, draft); err != nil {
		return nil, err
	}
	if err := pause(ctx); err != nil {
		return nil, err
	}

	form := listingForm(draft)
	body, err := m.post(c.Clone(), m.cfg.BaseURL+"/items", form)
	if err != nil {
		return nil, err
	}

	listingID, listingURL, err := parseListing(body, m.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAutomationFailed, err)
	}

	m.logger.Info("listing published",
		logger.String("draft_id", draft.ID),
		logger.String("listing_id", listingID))

	return &Outcome{
		Status:     domain.PublishSuccess,
		ListingID:  listingID,
		ListingURL: listingURL,
	}, nil
}

// uploadPhotos attaches the draft's photos to the listing form one at a
// time, in order, each paced like a person adding the next picture.
func (m *MarketplaceClient) uploadPhotos(ctx context.Context, c *colly.Collector, draft *domain.Draft) error {
	for i, ref := range draft.PhotoRefs {
		if err := pause(ctx); err != nil {
			return err
		}
		_, err := m.post(c.Clone(), m.cfg.BaseURL+"/items/photos", map[string]string{
			"photo_ref": ref,
			"position":  strconv.Itoa(i),
		})
		if err != nil {
			return fmt.Errorf("upload photo %d: %w", i, err)
		}
	}
	return nil
}

// CheckSession loads the account page and verifies it renders as a
// signed-in user.
func (m *MarketplaceClient) CheckSession(ctx context.Context, creds []byte, identity domain.ClientIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.newCollector(creds, identity)
	if err != nil {
		return err
	}

	_, err = m.fetch(c, m.cfg.BaseURL+"/account")
	return err
}

// DelistListing removes a live listing through its management form.
func (m *MarketplaceClient) DelistListing(ctx context.Context, creds []byte, identity domain.ClientIdentity, listingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
	defer cancel()

	c, err := m.newCollector(creds, identity)
	if err != nil {
		return err
	}

	if _, err := m.fetch(c.Clone(), m.cfg.BaseURL+"/items/"+listingID+"/edit"); err != nil {
		return err
	}
	if err := pause(ctx); err != nil {
		return err
	}

	_, err = m.post(c.Clone(), m.cfg.BaseURL+"/items/"+listingID+"/delete", map[string]string{
		"id": listingID,
	})
	return err
}

// listingForm flattens a draft into the marketplace's form fields.
func listingForm(d *domain.Draft) map[string]string {
	return map[string]string{
		"title":       d.Title,
		"description": d.Description,
		"brand":       d.Brand,
		"category":    d.Category,
		"size":        d.Size,
		"condition":   d.Condition,
		"color":       d.Color,
		"price":       strconv.FormatFloat(d.Price.Target, 'f', 2, 64),
		"hashtags":    strings.Join(d.Hashtags, ","),
	}
}

// parseListing extracts the assigned listing ID and URL from the
// confirmation page.
func parseListing(body []byte, baseURL string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", "", fmt.Errorf("parse confirmation page: %w", err)
	}

	sel := doc.Find("[data-listing-id]").First()
	id, ok := sel.Attr("data-listing-id")
	if !ok || id == "" {
		return "", "", errors.New("confirmation page has no listing id")
	}

	url, ok := sel.Attr("data-listing-url")
	if !ok || url == "" {
		url = baseURL + "/items/" + id
	}
	return id, url, nil
}
