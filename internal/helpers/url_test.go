package helpers

import (
	"strings"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults https and cleans path",
			in:   "Example.com/posts/../go/generics",
			want: "https://example.com/go/generics",
		},
		{
			name: "removes default port and tracking params",
			in:   "http://blog.example.com:80/article?id=123&utm_source=rss#comments",
			want: "http://blog.example.com/article?id=123",
		},
		{
			name: "sorts query parameters and preserves trailing slash",
			in:   "https://example.com/feed/?b=2&a=1&fbclid=xyz",
			want: "https://example.com/feed/?a=1&b=2",
		},
		{
			name: "handles protocol-relative url",
			in:   "//dev.example.com/post/42?utm_medium=email",
			want: "https://dev.example.com/post/42",
		},
		{
			name: "collapses repeated slashes",
			in:   "https://example.com//a//b///c",
			want: "https://example.com/a/b/c",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()
	if _, err := CanonicalURL(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := CanonicalURL(":///invalid"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestURLFingerprintDeterministic(t *testing.T) {
	t.Parallel()
	u := "https://Example.com/Article?utm_campaign=foo&a=1&b=2"
	fp1, err := URLFingerprint(u)
	if err != nil {
		t.Fatalf("URLFingerprint: %v", err)
	}
	fp2, err := URLFingerprint(strings.ReplaceAll(u, "https://", "HTTPS://"))
	if err != nil {
		t.Fatalf("URLFingerprint: %v", err)
	}
	if fp1 == "" || len(fp1) != 64 {
		t.Fatalf("expected 64 char hex fingerprint, got %q", fp1)
	}
	if fp1 != fp2 {
		t.Fatalf("expected deterministic fingerprint, got %s vs %s", fp1, fp2)
	}
}

func TestAbsoluteURL(t *testing.T) {
	t.Parallel()
	got := AbsoluteURL("https://blog.example.com/index", "/posts/1")
	if got != "https://blog.example.com/posts/1" {
		t.Fatalf("unexpected resolution: %q", got)
	}
	if AbsoluteURL("https://blog.example.com", "https://other.com/x") != "https://other.com/x" {
		t.Fatalf("absolute hrefs should pass through")
	}
	if AbsoluteURL("://bad", "/x") != "" {
		t.Fatalf("expected empty result for bad base")
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()
	if !SameHost("https://www.example.com/a", "https://example.com/b") {
		t.Fatalf("www prefix should not matter")
	}
	if SameHost("https://example.com/a", "https://other.com/a") {
		t.Fatalf("different hosts must not match")
	}
}
