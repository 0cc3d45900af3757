package normalize

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/chatcoach/coachd/pkg/models"
)

// WrapPlainText turns a short non-JSON LLM reply into a one-candidate reply
// set with the direct_response strategy. Reserved for reply generation only.
// Returns false when the text contains a brace or exceeds the threshold.
func WrapPlainText(raw string, threshold int) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.ContainsRune(trimmed, '{') {
		return nil, false
	}
	if utf8.RuneCountInString(trimmed) >= threshold {
		return nil, false
	}

	set := models.ReplySet{
		Replies: []models.ReplyCandidate{{
			Text:     trimmed,
			Strategy: models.StrategyDirectResponse,
		}},
	}
	payload, err := json.Marshal(set)
	if err != nil {
		return nil, false
	}
	return payload, true
}
