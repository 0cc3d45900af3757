package models

import "net/url"

// ContentKind classifies one entry of a request's content list.
type ContentKind string

// Content kinds.
const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// ClassifyContent decides whether a content entry is an image resource
// reference or plain text. Only absolute http(s) URLs are treated as images.
func ClassifyContent(s string) ContentKind {
	u, err := url.Parse(s)
	if err != nil {
		return ContentText
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return ContentImage
	}
	return ContentText
}

// ContentItem is one classified request content entry with its original index.
type ContentItem struct {
	Index int
	Kind  ContentKind
	Value string
}

// ItemResult is the per-content output of a dispatch. Image items carry the
// full analysis triple; text items carry only the original content.
type ItemResult struct {
	Index   int                  `json:"-"`
	Kind    ContentKind          `json:"kind"`
	Content string               `json:"content"`
	Image   *ImageResult         `json:"image,omitempty"`
	Context *ContextResult       `json:"context,omitempty"`
	Scene   *SceneAnalysisResult `json:"scene,omitempty"`
}
