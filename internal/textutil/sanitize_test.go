package textutil_test

import (
	"testing"

	"clipnote/internal/textutil"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Intro: Part 1/2", "Intro- Part 1-2"},
		{`What? "Really" <yes>`, "What Really yes"},
		{"  plain title  ", "plain title"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := textutil.SanitizeFileName(tt.input); got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Café Déjà Vu — Ep. 3", "cafe-deja-vu-ep-3"},
		{"Go Concurrency Patterns", "go-concurrency-patterns"},
		{"???!!!", "untitled"},
		{"", "untitled"},
		{"UPPER case", "upper-case"},
	}
	for _, tt := range tests {
		if got := textutil.SanitizeToken(tt.input); got != tt.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
