// Package moderation wraps the external intimacy-check service that scores
// reply candidates against the current intimacy stage. The scoring algorithm
// is the service's business; this package only transports candidates and
// interprets the final decision.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/models"
)

const component = "moderation"

// Decisions the service can return. Only DecisionPass accepts a set.
const (
	DecisionPass    = "pass"
	DecisionWarn    = "warn"
	DecisionRewrite = "rewrite"
	DecisionReject  = "reject"
)

// Verdict is the service's judgment of one candidate set.
type Verdict struct {
	Decision string    `json:"decision"`
	Scores   []float64 `json:"scores,omitempty"`
}

// Passed reports whether the set was accepted.
func (v *Verdict) Passed() bool { return v.Decision == DecisionPass }

// Checker scores a candidate set against an intimacy stage. The service is
// idempotent in its input; retries on transport failure are permitted.
type Checker interface {
	Check(ctx context.Context, candidates []models.ReplyCandidate, stage int) (*Verdict, error)
}

// HTTPChecker calls the intimacy-check service over HTTP.
type HTTPChecker struct {
	url    string
	client *http.Client
}

// NewHTTPChecker creates a checker for the given service URL.
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Candidates []models.ReplyCandidate `json:"candidates"`
	Stage      int                     `json:"intimacy_stage"`
}

// Check posts the candidate set and decodes the verdict. Transport and
// decode failures classify as moderation_service_unavailable; the caller's
// fail-open policy decides what happens next.
func (c *HTTPChecker) Check(ctx context.Context, candidates []models.ReplyCandidate, stage int) (*Verdict, error) {
	body, err := json.Marshal(checkRequest{Candidates: candidates, Stage: stage})
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindModerationUnavailable, component,
			"failed to encode check request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindModerationUnavailable, component,
			"failed to build check request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindModerationUnavailable, component,
			"intimacy check service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, coacherr.New(coacherr.KindModerationUnavailable, component,
			fmt.Sprintf("intimacy check service returned status %d", resp.StatusCode))
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, coacherr.Wrap(coacherr.KindModerationUnavailable, component,
			"failed to decode verdict", err)
	}

	switch verdict.Decision {
	case DecisionPass, DecisionWarn, DecisionRewrite, DecisionReject:
	default:
		return nil, coacherr.New(coacherr.KindModerationUnavailable, component,
			fmt.Sprintf("unknown moderation decision %q", verdict.Decision))
	}
	return &verdict, nil
}
