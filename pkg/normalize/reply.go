package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/models"
)

// ParseReplySet decodes a reply payload into candidates and applies the
// structural rules: every candidate needs non-empty text, a wrapped set
// carries exactly one direct_response candidate, a generated set needs at
// least three candidates (extras beyond three are dropped).
func ParseReplySet(obj json.RawMessage) ([]models.ReplyCandidate, error) {
	var set models.ReplySet
	if err := json.Unmarshal(obj, &set); err != nil {
		return nil, coacherr.Wrap(coacherr.KindParseExhausted, component,
			"reply payload does not match expected shape", err)
	}
	return ValidateReplySet(set.Replies)
}

// ValidateReplySet enforces the reply-set structure on decoded candidates.
func ValidateReplySet(replies []models.ReplyCandidate) ([]models.ReplyCandidate, error) {
	for i := range replies {
		replies[i].Text = strings.TrimSpace(replies[i].Text)
		if replies[i].Text == "" {
			return nil, fmt.Errorf("reply candidate %d has empty text", i+1)
		}
		if replies[i].Strategy == "" {
			replies[i].Strategy = models.StrategyDirectResponse
		}
	}

	// The one-candidate form is only legal for the plain-text wrap.
	if len(replies) == 1 && replies[0].Strategy == models.StrategyDirectResponse {
		return replies, nil
	}

	if len(replies) < models.ReplyCount {
		return nil, fmt.Errorf("reply set has %d candidates, need %d", len(replies), models.ReplyCount)
	}
	return replies[:models.ReplyCount], nil
}
