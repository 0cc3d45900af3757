package models

// StrategyDirectResponse is the strategy code forced onto candidates produced
// by the plain-text wrap fallback.
const StrategyDirectResponse = "direct_response"

// ReplyCount is the number of candidates a committed reply set carries.
const ReplyCount = 3

// ReplyCandidate is one suggested reply. Candidates keep the LLM-provided
// order; the pipeline never re-ranks them.
type ReplyCandidate struct {
	Text      string `json:"text"`
	Strategy  string `json:"strategy"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ReplySet is the cached/committed form of a reply generation run.
type ReplySet struct {
	Replies []ReplyCandidate `json:"replies"`
}
