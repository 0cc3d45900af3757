// Package models contains the domain value types exchanged between the
// dispatcher, analyzer, cache, and reply pipeline. Everything here is a plain
// value; components never share mutable state through these types.
package models

// Speaker identifies which side of the conversation an utterance belongs to.
const (
	SpeakerSelf  = "self"
	SpeakerOther = "other"
)

// Column positions for message bubbles in a screenshot.
const (
	ColumnLeft  = "left"
	ColumnRight = "right"
)

// Dialog is a single utterance, either supplied by the caller or extracted
// from a screenshot.
type Dialog struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Bubble is one message bubble extracted from a screenshot. All coordinates
// are normalized to [0,1]; BBox is (x1,y1,x2,y2) with x1<=x2 and y1<=y2, and
// Center is the bbox midpoint unless the model explicitly supplied one.
type Bubble struct {
	ID         string    `json:"id"`
	BBox       []float64 `json:"bbox"`
	Center     []float64 `json:"center"`
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker"`
	Column     string    `json:"column"`
	Confidence float64   `json:"confidence"`
}

// Participant identifies one side of the conversation.
type Participant struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// Participants holds both sides of the conversation.
type Participants struct {
	Self  Participant `json:"self"`
	Other Participant `json:"other"`
}

// Layout describes the column arrangement of the messaging UI.
type Layout struct {
	Type      string `json:"type"`
	LeftRole  string `json:"left_role"`
	RightRole string `json:"right_role"`
}

// ImageResult is the per-image output of screenshot analysis.
type ImageResult struct {
	URL          string       `json:"url"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Dialogs      []Dialog     `json:"dialogs"`
	Bubbles      []Bubble     `json:"bubbles"`
	Participants Participants `json:"participants"`
	Layout       Layout       `json:"layout"`
	ScenarioJSON string       `json:"scenario_json,omitempty"`
}

// ImageDimensions is cached alongside image results so pixel-space payloads
// written under older schemas can be repaired on read.
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
