package reader

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "paragraphs",
			input: "<p>This is the <b>first</b> paragraph.</p><p>\n\tSecond\n  one.</p>",
			want:  "This is the first paragraph.\n\nSecond one.",
		},
		{
			name:  "line breaks",
			input: "line one<br>line two",
			want:  "line one\n\nline two",
		},
		{
			name:  "script dropped",
			input: "<div>kept<script>alert(1)</script></div><style>p{}</style>",
			want:  "kept",
		},
		{
			name:  "bare text",
			input: "just text",
			want:  "just text",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "nested spans",
			input: "<div>Some <span>nested</span> text.</div>",
			want:  "Some nested text.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 20) + "</p>"
	got := Preview(long)
	if !strings.HasSuffix(got, "...") || len(strings.Fields(got)) != 10 {
		t.Errorf("Preview(long) = %q", got)
	}

	cjk := "<p>" + strings.Repeat("影", 100) + "</p>"
	if got := []rune(Preview(cjk)); len(got) != 63 {
		t.Errorf("Preview(cjk) has %d runes, want 63", len(got))
	}

	if got := Preview("<p>short one</p>"); got != "short one" {
		t.Errorf("Preview(short) = %q", got)
	}
}
