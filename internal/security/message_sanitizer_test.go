package security

import (
	"strings"
	"testing"
)

// TestSanitize_RemovesScriptTags はscriptタグが除去されることを検証する。
func TestSanitize_RemovesScriptTags(t *testing.T) {
	s := NewMessageSanitizer()

	got := s.Sanitize(`こんにちは<script>alert("xss")</script>`)
	if strings.Contains(got, "<script>") || strings.Contains(got, "alert") {
		t.Errorf("Sanitize() = %q, script content should be removed", got)
	}
	if !strings.Contains(got, "こんにちは") {
		t.Errorf("Sanitize() = %q, plain text should be preserved", got)
	}
}

// TestSanitize_RemovesAllHTML はチャット本文からすべてのHTMLタグが除去されることを検証する。
func TestSanitize_RemovesAllHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bold tag",
			input: "<b>重要</b>な連絡",
			want:  "重要な連絡",
		},
		{
			name:  "anchor tag",
			input: `<a href="https://example.com">リンク</a>`,
			want:  "リンク",
		},
		{
			name:  "image tag",
			input: `診察結果<img src="x" onerror="alert(1)">です`,
			want:  "診察結果です",
		},
		{
			name:  "plain text unchanged",
			input: "薬の飲み方について質問があります",
			want:  "薬の飲み方について質問があります",
		},
	}

	s := NewMessageSanitizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
