// Package imagefetch downloads and validates screenshot images. The fetcher
// owns size/format validation; consumers receive validated bytes plus the
// decoded dimensions.
package imagefetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	_ "image/gif"  // Register GIF decoding
	_ "image/jpeg" // Register JPEG decoding
	_ "image/png"  // Register PNG decoding

	"github.com/chatcoach/coachd/pkg/coacherr"
)

const component = "imagefetch"

// Image is a fetched and validated screenshot.
type Image struct {
	URL       string
	Data      []byte
	Width     int
	Height    int
	MediaType string
}

// Fetcher retrieves screenshot bytes for analysis.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Image, error)
}

// HTTPFetcher fetches images over HTTP with a byte limit and a per-fetch
// timeout.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher bounded by maxBytes per image.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url, enforces the size limit, and decodes dimensions.
// All failures classify as image_fetch errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindImageFetch, component, "invalid image url", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindImageFetch, component, "failed to fetch image", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, coacherr.New(coacherr.KindImageFetch, component,
			fmt.Sprintf("image fetch returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindImageFetch, component, "failed to read image body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, coacherr.New(coacherr.KindImageFetch, component,
			fmt.Sprintf("image exceeds maximum size of %d bytes", f.maxBytes))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindImageFetch, component, "unsupported image format", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, coacherr.New(coacherr.KindImageFetch, component, "image has degenerate dimensions")
	}

	return &Image{
		URL:       url,
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		MediaType: "image/" + format,
	}, nil
}
