package helpers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// extractSnippetLen bounds the diagnostic prefix carried by ExtractError.
const extractSnippetLen = 200

// ExtractError reports that no JSON value could be recovered from a
// generation response. It is an expected outcome, not a panic case; call
// sites branch on it with errors.As and substitute their declared fallback.
type ExtractError struct {
	Snippet string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("no JSON value found in response (prefix: %q)", e.Snippet)
}

// ExtractJSON recovers the first JSON value (object or array) from text a
// generator returned. Generators routinely ignore "respond with only JSON"
// and wrap the payload in prose or markdown fences, or truncate it, so the
// strategies run from cheapest to most tolerant:
//
//  1. parse the whole trimmed string;
//  2. parse the body of each fenced code block, in document order;
//  3. balanced-brace scan from the first '{';
//  4. balanced-bracket scan from the first '['.
//
// The first strategy that yields parseable JSON wins. A value of the "wrong"
// shape (a bare number, a string) still counts as success; shape validation
// belongs to the call site. When everything fails the returned error is an
// *ExtractError carrying a truncated prefix of the input.
func ExtractJSON(s string) (json.RawMessage, error) {
	s = trimBOM(strings.TrimSpace(s))

	// 1) The common case: the generator obeyed instructions.
	if raw, ok := tryParse(s); ok {
		return raw, nil
	}

	// 2) Fenced code blocks, first match in document order wins.
	for _, body := range fencedBlocks(s) {
		if raw, ok := tryParse(strings.TrimSpace(body)); ok {
			return raw, nil
		}
	}

	// 3) Balanced object span from the first '{'. An unbalanced or
	// unparseable candidate falls through, it is not a hard failure.
	if span, ok := balancedSpan(s, '{', '}'); ok {
		if raw, ok := tryParse(span); ok {
			return raw, nil
		}
	}

	// 4) Same for a top-level array.
	if span, ok := balancedSpan(s, '[', ']'); ok {
		if raw, ok := tryParse(span); ok {
			return raw, nil
		}
	}

	return nil, &ExtractError{Snippet: Truncate(s, extractSnippetLen)}
}

// DecodeInto extracts a JSON value from s and unmarshals it into v.
// Extraction failure surfaces as *ExtractError; a shape mismatch surfaces as
// the json.Unmarshal error so call sites can distinguish the two.
func DecodeInto(s string, v interface{}) error {
	raw, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func tryParse(s string) (json.RawMessage, bool) {
	if s == "" {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// fencedBlocks returns the inner bodies of all fenced code blocks in s, in
// document order. The opening fence may carry a language tag (```json).
// Backtick fences are tried before tilde fences, matching how generators
// actually format responses.
func fencedBlocks(s string) []string {
	var blocks []string
	for _, fence := range []string{"```", "~~~"} {
		start := 0
		for {
			i := strings.Index(s[start:], fence)
			if i == -1 {
				break
			}
			i += start
			afterOpen := i + len(fence)
			nl := strings.IndexByte(s[afterOpen:], '\n')
			if nl == -1 {
				break // fence never opened a body
			}
			bodyStart := afterOpen + nl + 1
			j := strings.Index(s[bodyStart:], fence)
			if j == -1 {
				break // unterminated block
			}
			blocks = append(blocks, s[bodyStart:bodyStart+j])
			start = bodyStart + j + len(fence)
		}
	}
	return blocks
}

// balancedSpan scans from the first occurrence of open for the position where
// nesting depth returns to zero, ignoring braces inside JSON strings and
// escape sequences. It reports false when the depth never closes.
func balancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// trimBOM removes an optional UTF-8 BOM.
func trimBOM(s string) string {
	if strings.HasPrefix(s, "﻿") {
		return strings.TrimPrefix(s, "﻿")
	}
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF && utf8.ValidString(s[3:]) {
		return s[3:]
	}
	return s
}
