// Package normalize turns raw LLM output into validated domain objects. The
// parse ladder tries progressively more forgiving extraction strategies;
// mechanical defects (over-escaped JSON, pixel-space coordinates, missing
// centers) are repaired, semantic defects (unknown enum values) default to
// safe constants.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/chatcoach/coachd/pkg/coacherr"
)

const component = "normalize"

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedBareRe = regexp.MustCompile("(?s)```\\s*(.*?)```")
	braceRegionRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// validEscapes are the characters that may legally follow a backslash in a
// JSON string.
const validEscapes = `"\/bfnrtu`

// RepairEscapes collapses invalid JSON escape sequences: a backslash followed
// by any character outside the legal escape set drops the backslash. This
// handles the \[ \] \( \) over-escapes some models emit. A valid escape pair
// is emitted whole so its second character is never re-read as an introducer
// (`\\[` keeps both backslashes and only ever drops a lone one).
func RepairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if strings.ContainsRune(validEscapes, rune(s[i+1])) {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ExtractJSON runs the parse ladder over raw LLM output and returns the first
// JSON object that parses. The returned error is classified as
// json_parse_exhausted and carries the last parser error.
func ExtractJSON(raw string) (json.RawMessage, error) {
	repaired := RepairEscapes(raw)

	var lastErr error

	// 1. Direct parse.
	if obj, err := tryParse(repaired); err == nil {
		return obj, nil
	} else {
		lastErr = err
	}

	// 2. ```json fences.
	if m := fencedJSONRe.FindStringSubmatch(repaired); m != nil {
		if obj, err := tryParse(m[1]); err == nil {
			return obj, nil
		} else {
			lastErr = err
		}
	}

	// 3. Bare ``` fences.
	if m := fencedBareRe.FindStringSubmatch(repaired); m != nil {
		if obj, err := tryParse(m[1]); err == nil {
			return obj, nil
		} else {
			lastErr = err
		}
	}

	// 4. Greedy balanced-looking {...} region.
	if m := braceRegionRe.FindString(repaired); m != "" {
		if obj, err := tryParse(m); err == nil {
			return obj, nil
		} else {
			lastErr = err
		}
	}

	// 5. Stack-based extraction of top-level objects.
	for _, candidate := range scanTopLevelObjects(repaired) {
		if obj, err := tryParse(candidate); err == nil {
			return obj, nil
		} else {
			lastErr = err
		}
	}

	return nil, coacherr.Wrap(coacherr.KindParseExhausted, component,
		"no parse strategy produced valid JSON", lastErr)
}

// tryParse accepts a string that must decode to a JSON object.
func tryParse(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty candidate")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}

// scanTopLevelObjects walks the string character by character, tracking brace
// depth and string context with escape handling, and collects every
// top-level {...} region encountered.
func scanTopLevelObjects(s string) []string {
	var (
		objects  []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					objects = append(objects, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return objects
}
