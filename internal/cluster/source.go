package cluster

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const fetchTimeout = 30 * time.Second

// HTTPPhotoSource fetches photos over HTTP, falling back to the local
// filesystem for non-URL references.
type HTTPPhotoSource struct {
	client *http.Client
}

// NewHTTPPhotoSource creates a photo source with a bounded request timeout.
func NewHTTPPhotoSource() *HTTPPhotoSource {
	return &HTTPPhotoSource{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch resolves ref to decoded image data. URL references are downloaded;
// anything else is treated as a local path.
func (s *HTTPPhotoSource) Fetch(ctx context.Context, ref string) (image.Image, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return s.fetchURL(ctx, ref)
	}
	return fetchFile(ref)
}

func (s *HTTPPhotoSource) fetchURL(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build photo request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch photo: unexpected status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	return img, nil
}

func fetchFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	return img, nil
}
