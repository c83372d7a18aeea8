package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

func TestDeobfuscateURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"hxxp", "hxxp://evil[.]example/path", "http://evil.example/path"},
		{"hxxps", "hxxps://evil[.]example", "https://evil.example"},
		{"mixed case", "HXXPS://EVIL[.]example", "https://EVIL.example"},
		{"bracket colon", "hxxp://evil[.]example[:]8080/x", "http://evil.example:8080/x"},
		{"bare host", "evil.example/landing", "http://evil.example/landing"},
		{"clean passthrough", "https://ok.example/", "https://ok.example/"},
		{"whitespace", "  https://ok.example/  ", "https://ok.example/"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DeobfuscateURL(c.in); got != c.want {
				t.Errorf("DeobfuscateURL(%q)=%q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestOutputDirFor(t *testing.T) {
	got := OutputDirFor("https://evil.example/landing/page", "/base")
	if !strings.HasPrefix(got, filepath.Join("/base", "saved_evil.example_landing_page_")) {
		t.Errorf("OutputDirFor=%q", got)
	}

	// Port colons never reach the filesystem.
	got = OutputDirFor("https://evil.example:8443/x", "/base")
	if strings.Contains(filepath.Base(got), ":") {
		t.Errorf("colon survived: %q", got)
	}
	if !strings.Contains(got, "evil.example_8443") {
		t.Errorf("port lost: %q", got)
	}

	// Bare root maps to a stable slug.
	got = OutputDirFor("https://evil.example/", "/base")
	if !strings.HasPrefix(filepath.Base(got), "saved_evil.example_root_") {
		t.Errorf("root slug=%q", got)
	}

	// Distinct long paths stay distinct after truncation.
	long := strings.Repeat("p", 120)
	a := OutputDirFor("https://h.example/"+long+"a", "/base")
	b := OutputDirFor("https://h.example/"+long+"b", "/base")
	if a == b {
		t.Error("truncated slugs collided")
	}
}

func TestNavigationErrorClassification(t *testing.T) {
	if !isAborted(errors.New("navigation failed: net::ERR_ABORTED")) {
		t.Error("ERR_ABORTED not recognized")
	}
	if isAborted(errors.New("net::ERR_CONNECTION_REFUSED")) {
		t.Error("refused misread as abort")
	}
	if isAborted(nil) {
		t.Error("nil misread as abort")
	}

	for _, msg := range []string{
		"net::ERR_CERT_AUTHORITY_INVALID",
		"net::ERR_CERT_DATE_INVALID",
		"SSL handshake failed",
	} {
		if !isTLSError(errors.New(msg)) {
			t.Errorf("%q not recognized as TLS", msg)
		}
	}
	if isTLSError(errors.New("net::ERR_NAME_NOT_RESOLVED")) {
		t.Error("DNS misread as TLS")
	}
	if isTLSError(nil) {
		t.Error("nil misread as TLS")
	}
}

func TestDeadlineBoundPagePropagatesExpiry(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	page := deadlineBound(&rod.Page{}, ctx)
	if err := page.GetContext().Err(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("bound page context err=%v, want deadline exceeded", err)
	}
}
