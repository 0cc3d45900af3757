package models

// AnalyzeRequest is the decoded form of one coaching request. Content is an
// ordered mix of image URLs and text strings; ordering is preserved all the
// way into the response.
type AnalyzeRequest struct {
	UserID          string   `json:"user_id"`
	SessionID       string   `json:"session_id"`
	Scene           int      `json:"scene"`
	Content         []string `json:"content"`
	Language        string   `json:"language"`
	ForceRegenerate bool     `json:"force_regenerate"`
	SceneAnalysis   bool     `json:"scene_analysis"`
	Reply           bool     `json:"reply"`
	Sign            string   `json:"sign"`
}

// DispatchMode records which per-item scheduling the dispatcher used. It is
// attached to cache event payloads for observability only.
type DispatchMode string

// Dispatch modes.
const (
	DispatchParallel DispatchMode = "parallel"
	DispatchSerial   DispatchMode = "serial"
	DispatchAuto     DispatchMode = "auto"
)
