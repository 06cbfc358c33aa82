package content

import (
	"strings"
	"testing"
)

func TestSanitizeRemovesScripts(t *testing.T) {
	input := `<p onclick="steal()">Hi<script>alert(1)</script></p><img src="https://example.com/a.png" width="10" height="20">`
	output := Sanitize(input)

	if strings.Contains(output, "script") || strings.Contains(output, "onclick") {
		t.Fatalf("expected active content removed, got %q", output)
	}

	if !strings.Contains(output, `width="10"`) || !strings.Contains(output, `height="20"`) {
		t.Fatalf("expected image dimensions kept, got %q", output)
	}
}

func TestSanitizeEmpty(t *testing.T) {
	if got := Sanitize("   "); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestPlainText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain   words\nhere", "plain words here"},
		{"<p>Hello <b>world</b></p><script>var x = 1;</script>", "Hello world"},
		{"Fish &amp; chips<br/>tonight", "Fish & chips tonight"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := PlainText(tc.in); got != tc.want {
			t.Errorf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
