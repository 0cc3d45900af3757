// Package prompt owns prompt templates: versioned text keyed by logical
// name, optionally overridden per deployment from a prompts directory.
// Every template carries a version tag in its first line
// (e.g. [PROMPT:merge_step_v1.0-original]); the tag is lifted out before the
// prompt is sent to a provider and recorded in the trace event.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// Logical template names.
const (
	NameMergeStep       = "merge_step"
	NameScreenshotParse = "screenshot_parse"
	NameContextAnalysis = "context_analysis"
	NameSceneAnalysis   = "scene_analysis"
	NameReply           = "reply"
)

// ErrTemplateNotFound is returned when no template exists for a name.
var ErrTemplateNotFound = errors.New("prompt template not found")

const versionTagPrefix = "[PROMPT:"

// Rendered is a prompt ready to send: the version tag has been lifted out of
// the body.
type Rendered struct {
	Name    string
	Version string
	Text    string
}

// Store holds parsed templates. Read-only after New.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	versions  map[string]string
}

// New builds a store from the builtin templates, then overlays any
// <name>.tmpl files found in dir (empty dir skips the overlay).
func New(dir string) (*Store, error) {
	s := &Store{
		templates: make(map[string]*template.Template),
		versions:  make(map[string]string),
	}

	for name, text := range builtinTemplates() {
		if err := s.add(name, text); err != nil {
			return nil, fmt.Errorf("builtin template %s: %w", name, err)
		}
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read prompts dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmpl") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".tmpl")
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read prompt %s: %w", e.Name(), err)
			}
			if err := s.add(name, string(data)); err != nil {
				return nil, fmt.Errorf("prompt %s: %w", e.Name(), err)
			}
		}
	}

	return s, nil
}

// add parses a template, lifting the version tag from its first line.
func (s *Store) add(name, text string) error {
	version, body := liftVersionTag(text)
	if version == "" {
		return fmt.Errorf("missing %sname_vX.Y] version tag in first line", versionTagPrefix)
	}

	tmpl, err := template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}

	s.mu.Lock()
	s.templates[name] = tmpl
	s.versions[name] = version
	s.mu.Unlock()
	return nil
}

// Render executes the named template with the given data.
func (s *Store) Render(name string, data any) (*Rendered, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	version := s.versions[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render prompt %s: %w", name, err)
	}

	return &Rendered{
		Name:    name,
		Version: version,
		Text:    strings.TrimSpace(buf.String()),
	}, nil
}

// Version returns the version tag of the named template.
func (s *Store) Version(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[name]
}

// liftVersionTag splits the version identifier off the template body. The tag
// occupies the whole first line: [PROMPT:<identifier>].
func liftVersionTag(text string) (version, body string) {
	trimmed := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(trimmed, versionTagPrefix) {
		return "", text
	}
	end := strings.IndexByte(trimmed, ']')
	if end < 0 {
		return "", text
	}
	version = trimmed[len(versionTagPrefix):end]
	body = strings.TrimLeft(trimmed[end+1:], "\n")
	return version, body
}
