package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chatcoach/coachd/pkg/models"
)

// ReadImageResult reads a cached image_result for a resource and validates it
// against the normalized-[0,1] coordinate invariant. Payloads written under
// the older pixel-space schema are repaired using the cached image_dimensions
// for the same resource; when dimensions are absent the entry is treated as a
// miss, forcing re-analysis. This is the only place the cache may silently
// discard an entry.
func ReadImageResult(ctx context.Context, store Store, key Key) (*models.ImageResult, error) {
	if key.Category == "" {
		key.Category = CategoryImageResult
	}

	ev, err := store.GetLast(ctx, key)
	if err != nil {
		return nil, err
	}

	var img models.ImageResult
	if err := json.Unmarshal(ev.Payload, &img); err != nil {
		return nil, fmt.Errorf("failed to decode cached image result: %w", err)
	}

	if coordinatesNormalized(&img) {
		return &img, nil
	}

	dims, err := readImageDimensions(ctx, store, key)
	if err != nil {
		slog.Warn("Cached image result has pixel coordinates and no cached dimensions, treating as miss",
			"session_id", key.SessionID, "resource", key.Resource)
		return nil, ErrNotFound
	}

	if err := repairPixelCoordinates(&img, dims); err != nil {
		slog.Warn("Failed to repair cached image result, treating as miss",
			"session_id", key.SessionID, "resource", key.Resource, "error", err)
		return nil, ErrNotFound
	}
	return &img, nil
}

func readImageDimensions(ctx context.Context, store Store, key Key) (*models.ImageDimensions, error) {
	ev, err := store.GetLast(ctx, Key{
		SessionID: key.SessionID,
		Scene:     key.Scene,
		Category:  CategoryImageDimensions,
		Resource:  key.Resource,
	})
	if err != nil {
		return nil, err
	}
	var dims models.ImageDimensions
	if err := json.Unmarshal(ev.Payload, &dims); err != nil {
		return nil, fmt.Errorf("failed to decode cached image dimensions: %w", err)
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, fmt.Errorf("cached image dimensions are degenerate: %dx%d", dims.Width, dims.Height)
	}
	return &dims, nil
}

func coordinatesNormalized(img *models.ImageResult) bool {
	for _, b := range img.Bubbles {
		for _, v := range b.BBox {
			if v < 0 || v > 1 {
				return false
			}
		}
		for _, v := range b.Center {
			if v < 0 || v > 1 {
				return false
			}
		}
	}
	return true
}

func repairPixelCoordinates(img *models.ImageResult, dims *models.ImageDimensions) error {
	w, h := float64(dims.Width), float64(dims.Height)
	for i := range img.Bubbles {
		b := &img.Bubbles[i]
		if len(b.BBox) != 4 {
			return fmt.Errorf("bubble %q has %d bbox coordinates, want 4", b.ID, len(b.BBox))
		}
		b.BBox[0] = clampUnit(b.BBox[0] / w)
		b.BBox[1] = clampUnit(b.BBox[1] / h)
		b.BBox[2] = clampUnit(b.BBox[2] / w)
		b.BBox[3] = clampUnit(b.BBox[3] / h)
		b.Center = []float64{
			(b.BBox[0] + b.BBox[2]) / 2,
			(b.BBox[1] + b.BBox[3]) / 2,
		}
	}
	if img.Width == 0 {
		img.Width = dims.Width
	}
	if img.Height == 0 {
		img.Height = dims.Height
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
