package helpers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestExtractJSONWholeString(t *testing.T) {
	raw, err := ExtractJSON(`  {"a":1}  `)
	if err != nil {
		t.Fatalf("expected direct parse to succeed: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["a"] != 1 {
		t.Fatalf("expected a=1, got %v", got)
	}
}

func TestExtractJSONFencedBlockWithProse(t *testing.T) {
	input := "Here you go:\n```json\n{\"a\":1}\n```"
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("expected fenced extraction to succeed: %v", err)
	}
	if strings.TrimSpace(string(raw)) != `{"a":1}` {
		t.Fatalf("unexpected raw value: %s", raw)
	}
}

func TestExtractJSONMultipleFencesDocumentOrder(t *testing.T) {
	input := "```\nnot json at all\n```\nthen\n```json\n{\"pick\":\"me\"}\n```\nand\n```json\n{\"not\":\"this\"}\n```"
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("expected extraction to succeed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["pick"] != "me" {
		t.Fatalf("expected the first parseable fence to win, got %v", got)
	}
}

func TestExtractJSONNestedBracesInProse(t *testing.T) {
	input := `result: {"a":{"b":1}} done`
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("expected brace scan to succeed: %v", err)
	}
	var got map[string]map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["a"]["b"] != 1 {
		t.Fatalf("expected nested value recovered, got %v", got)
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	input := `note {"text":"open { and close } inside"} trailing`
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("expected string-aware scan to succeed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["text"] != "open { and close } inside" {
		t.Fatalf("unexpected text: %q", got["text"])
	}
}

func TestExtractJSONArrayFallback(t *testing.T) {
	input := `the ranking is [2, 0, 1] as requested`
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("expected array scan to succeed: %v", err)
	}
	var got []int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 || got[0] != 2 {
		t.Fatalf("unexpected array: %v", got)
	}
}

func TestExtractJSONWrongShapeStillSucceeds(t *testing.T) {
	// Shape validation is the call site's job; a bare number is a valid
	// JSON value and therefore a successful extraction.
	raw, err := ExtractJSON("0.85")
	if err != nil {
		t.Fatalf("expected bare number to extract: %v", err)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f != 0.85 {
		t.Fatalf("expected 0.85, got %v", f)
	}
}

func TestExtractJSONUnbalancedFallsThrough(t *testing.T) {
	// The truncated object never balances; the array strategy still runs.
	input := `broken {"a": [1,2,3]`
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("expected array fallback after unbalanced object: %v", err)
	}
	var got []int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected the inner array, got %v", got)
	}
}

func TestExtractJSONFailureCarriesSnippet(t *testing.T) {
	long := strings.Repeat("no json here ", 50)
	_, err := ExtractJSON(long)
	if err == nil {
		t.Fatalf("expected extraction failure")
	}
	var extractErr *ExtractError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *ExtractError, got %T", err)
	}
	if extractErr.Snippet == "" {
		t.Fatalf("expected a diagnostic snippet")
	}
	if len(extractErr.Snippet) > extractSnippetLen+len("...") {
		t.Fatalf("snippet not truncated: %d chars", len(extractErr.Snippet))
	}
}

func TestExtractJSONBOMPrefix(t *testing.T) {
	raw, err := ExtractJSON("﻿{\"a\":1}")
	if err != nil {
		t.Fatalf("expected BOM to be trimmed: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestDecodeIntoDistinguishesFailureKinds(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	err := DecodeInto("nothing structured", &v)
	var extractErr *ExtractError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *ExtractError for missing JSON, got %v", err)
	}

	err = DecodeInto(`{"a":"not a number"}`, &v)
	if err == nil {
		t.Fatalf("expected unmarshal error for shape mismatch")
	}
	if errors.As(err, &extractErr) {
		t.Fatalf("shape mismatch must not be an ExtractError")
	}
}
