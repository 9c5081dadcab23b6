package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/musterhq/muster/internal/core/directory"
)

func testDirectory() *directory.Directory {
	return directory.New([]directory.Actor{
		{ID: "7", Name: "Jane Doe"},
		{ID: "8", Name: "Bob"},
		{ID: "9", Name: "Mary Jane Watson"},
	})
}

func TestExtract(t *testing.T) {
	dir := testDirectory()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "multi-word name followed by text",
			text: "ping @Jane Doe about this",
			want: []string{"7"},
		},
		{
			name: "unknown name is ignored",
			text: "@Nobody here",
			want: nil,
		},
		{
			name: "token ends at sentence punctuation",
			text: "thanks @Bob. see you",
			want: []string{"8"},
		},
		{
			name: "trailing comma on name",
			text: "hey @Jane Doe, got a minute",
			want: []string{"7"},
		},
		{
			name: "multiple mentions",
			text: "@Bob and @Mary Jane Watson please review",
			want: []string{"8", "9"},
		},
		{
			name: "adjacent tokens split at next at-sign",
			text: "@Jane Doe@Bob",
			want: []string{"7", "8"},
		},
		{
			name: "duplicate mention reported once",
			text: "@Bob @Bob",
			want: []string{"8"},
		},
		{
			name: "case insensitive",
			text: "cc @jane doe",
			want: []string{"7"},
		},
		{
			name: "no mentions",
			text: "plain text with email a@b and nothing else",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text, dir))
		})
	}
}

func TestComplete(t *testing.T) {
	jane := directory.Actor{ID: "7", Name: "Jane Doe"}

	tests := []struct {
		name      string
		text      string
		caret     int
		wantText  string
		wantCaret int
	}{
		{
			name:      "replaces open token at end",
			text:      "ping @Ja",
			caret:     8,
			wantText:  "ping @Jane Doe ",
			wantCaret: 15,
		},
		{
			name:      "targets last at-sign before caret",
			text:      "@Bob said @Ja",
			caret:     13,
			wantText:  "@Bob said @Jane Doe ",
			wantCaret: 20,
		},
		{
			name:      "preserves text after caret",
			text:      "ask @J about the shift",
			caret:     6,
			wantText:  "ask @Jane Doe  about the shift",
			wantCaret: 14,
		},
		{
			name:      "no at-sign leaves input unchanged",
			text:      "hello there",
			caret:     5,
			wantText:  "hello there",
			wantCaret: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, caret := Complete(tt.text, tt.caret, jane)
			assert.Equal(t, tt.wantText, got)
			assert.Equal(t, tt.wantCaret, caret)
		})
	}
}
