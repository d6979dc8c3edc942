package perception

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of a model response. Models wrap
// JSON in prose and markdown fences inconsistently, so the fallbacks run
// strictest first: the whole response, then the outermost brace span,
// then each fenced code block.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	// Find first { and last }
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	for _, block := range fencedBlocks(trimmed) {
		if json.Valid([]byte(block)) {
			return json.RawMessage(block), nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response")
}

// DecodeInto extracts JSON from a model response and unmarshals it.
func DecodeInto(text string, v interface{}) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ExtractCodeBlock extracts a fenced code block from a markdown-style
// response, preferring a block tagged with lang. Returns the whole text
// when no fence is present, since the response may be raw code already.
func ExtractCodeBlock(text, lang string) string {
	patterns := []string{
		"```" + lang + "\n",
		"```" + lang + "\r\n",
		"```\n",
	}

	for _, pattern := range patterns {
		if idx := strings.Index(text, pattern); idx != -1 {
			start := idx + len(pattern)
			end := strings.Index(text[start:], "```")
			if end != -1 {
				return strings.TrimSpace(text[start : start+end])
			}
		}
	}

	return strings.TrimSpace(text)
}

// fencedBlocks returns the contents of every ``` fenced block in order,
// with any language tag on the opening fence stripped.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open == -1 {
			break
		}
		rest = rest[open+3:]
		nl := strings.Index(rest, "\n")
		if nl == -1 {
			break
		}
		// Opening fence may carry a language tag; content starts after it.
		rest = rest[nl+1:]
		closing := strings.Index(rest, "```")
		if closing == -1 {
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:closing]))
		rest = rest[closing+3:]
	}
	return blocks
}
