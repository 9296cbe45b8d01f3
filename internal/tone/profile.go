// Package tone derives a writing-style profile from a reference document and
// caches it by content hash so identical reference text never triggers the
// expensive analysis twice.
package tone

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProfile marks an analysis result that is missing one of the four
// required fields. Invalid profiles are never cached.
var ErrInvalidProfile = errors.New("tone profile is missing required fields")

// Profile captures the voice of a reference document. All four fields must be
// non-empty for the profile to be usable.
type Profile struct {
	Characteristics string `json:"characteristics"`
	Vocabulary      string `json:"vocabulary"`
	Patterns        string `json:"patterns"`
	Style           string `json:"style"`
}

// Validate reports whether every required field is present and non-empty.
func (p Profile) Validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(p.Characteristics) == "" {
		missing = append(missing, "characteristics")
	}
	if strings.TrimSpace(p.Vocabulary) == "" {
		missing = append(missing, "vocabulary")
	}
	if strings.TrimSpace(p.Patterns) == "" {
		missing = append(missing, "patterns")
	}
	if strings.TrimSpace(p.Style) == "" {
		missing = append(missing, "style")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(missing, ", "))
	}
	return nil
}

// Describe renders the profile as prompt-ready guidance for the writer.
func (p Profile) Describe() string {
	var sb strings.Builder
	sb.WriteString("Characteristics: ")
	sb.WriteString(p.Characteristics)
	sb.WriteString("\nVocabulary: ")
	sb.WriteString(p.Vocabulary)
	sb.WriteString("\nPatterns: ")
	sb.WriteString(p.Patterns)
	sb.WriteString("\nStyle: ")
	sb.WriteString(p.Style)
	return sb.String()
}

// Hash returns the SHA-256 hex digest of the reference text. The digest is
// the cache identity: editing the reference document changes the hash and
// forces a recompute.
func Hash(referenceText string) string {
	sum := sha256.Sum256([]byte(referenceText))
	return hex.EncodeToString(sum[:])
}
