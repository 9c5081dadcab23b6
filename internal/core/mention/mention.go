// Package mention extracts @name references from free text and supports
// autocomplete replacement of partially typed tokens.
package mention

import (
	"strings"

	"github.com/musterhq/muster/internal/core/directory"
)

// maxMentionWords caps how many words a single @token may span. Display
// names in the portal are at most a few words; the cap keeps candidate
// matching linear on pathological input.
const maxMentionWords = 5

// Extract scans text for @name tokens and resolves them against the
// directory by case-insensitive exact match on display names. Tokens run
// greedily from the @ up to the next @, sentence-ending punctuation, or end
// of string, then shrink word by word until a directory match is found.
// Unmatched tokens are ignored. Each actor appears at most once, in order
// of first mention.
func Extract(text string, dir *directory.Directory) []string {
	var (
		ids  []string
		seen = map[string]struct{}{}
	)

	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}

		candidate := text[i+1 : tokenEnd(text, i+1)]
		id, ok := resolve(candidate, dir)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}

// tokenEnd returns the index after the last byte of the token starting at
// start: the next '@', sentence-ending punctuation, newline, or the end of
// the string.
func tokenEnd(text string, start int) int {
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '@', '.', '!', '?', '\n':
			return i
		}
	}
	return len(text)
}

// resolve tries progressively shorter word prefixes of the candidate until
// one matches a directory display name.
func resolve(candidate string, dir *directory.Directory) (string, bool) {
	words := strings.Fields(candidate)
	if len(words) > maxMentionWords {
		words = words[:maxMentionWords]
	}

	for n := len(words); n > 0; n-- {
		name := strings.TrimRight(strings.Join(words[:n], " "), ",;:")
		if a, ok := dir.ByName(name); ok {
			return a.ID, true
		}
	}
	return "", false
}

// Complete replaces the last open @token before the caret with the full
// "@Name " text for the chosen actor, returning the new text and caret
// position. When no @ precedes the caret the input is returned unchanged.
func Complete(text string, caret int, actor directory.Actor) (string, int) {
	if caret > len(text) {
		caret = len(text)
	}

	at := strings.LastIndexByte(text[:caret], '@')
	if at < 0 {
		return text, caret
	}

	replacement := "@" + actor.Name + " "
	out := text[:at] + replacement + text[caret:]
	return out, at + len(replacement)
}
