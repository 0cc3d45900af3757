package normalize

import (
	"fmt"
	"sort"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/models"
)

const defaultConfidence = 0.95

// NormalizeBubbles repairs a bubble list in place against the §3 invariants:
// pixel-space coordinates are divided by (width,height) and clamped into
// [0,1], inverted boxes are swapped, centers are recomputed from the bbox
// when absent or inconsistent, and missing ids/columns/confidence are
// synthesized. Bubble ids are assigned by vertical order.
func NormalizeBubbles(bubbles []models.Bubble, width, height int) ([]models.Bubble, error) {
	out := make([]models.Bubble, 0, len(bubbles))
	for _, b := range bubbles {
		nb, err := normalizeBubble(b, width, height)
		if err != nil {
			return nil, err
		}
		out = append(out, nb)
	}

	// Vertical order for id assignment and dialog derivation.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BBox[1] < out[j].BBox[1]
	})
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("%d", i+1)
		}
	}
	return out, nil
}

func normalizeBubble(b models.Bubble, width, height int) (models.Bubble, error) {
	if len(b.BBox) != 4 {
		return b, coacherr.New(coacherr.KindValidationRange, component,
			fmt.Sprintf("bubble %q has %d bbox coordinates, want 4", b.ID, len(b.BBox)))
	}

	box := append([]float64(nil), b.BBox...)

	// Pixel-space repair: any coordinate beyond 1.0 means the model answered
	// in absolute pixels.
	if exceedsUnit(box) {
		if width <= 0 || height <= 0 {
			return b, coacherr.New(coacherr.KindValidationRange, component,
				fmt.Sprintf("bubble %q has pixel coordinates but image dimensions are unknown", b.ID))
		}
		box[0] /= float64(width)
		box[1] /= float64(height)
		box[2] /= float64(width)
		box[3] /= float64(height)
	}
	for i := range box {
		box[i] = clamp01(box[i])
	}
	if box[0] > box[2] {
		box[0], box[2] = box[2], box[0]
	}
	if box[1] > box[3] {
		box[1], box[3] = box[3], box[1]
	}
	b.BBox = box

	if !validCenter(b.Center, box) {
		b.Center = []float64{(box[0] + box[2]) / 2, (box[1] + box[3]) / 2}
	}

	if b.Column == "" {
		if b.Center[0] < 0.5 {
			b.Column = models.ColumnLeft
		} else {
			b.Column = models.ColumnRight
		}
	}
	if b.Confidence == 0 {
		b.Confidence = defaultConfidence
	}
	if b.Confidence < 0 {
		b.Confidence = 0
	}
	if b.Confidence > 1 {
		b.Confidence = 1
	}
	if b.Speaker != models.SpeakerSelf && b.Speaker != models.SpeakerOther {
		b.Speaker = models.SpeakerOther
	}

	return b, nil
}

// validCenter accepts an explicit center only when it is in [0,1]² and not
// wildly inconsistent with the bbox (outside the box entirely).
func validCenter(center, box []float64) bool {
	if len(center) != 2 {
		return false
	}
	cx, cy := center[0], center[1]
	if cx < 0 || cx > 1 || cy < 0 || cy > 1 {
		return false
	}
	return cx >= box[0] && cx <= box[2] && cy >= box[1] && cy <= box[3]
}

func exceedsUnit(box []float64) bool {
	for _, v := range box {
		if v > 1.0 {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
