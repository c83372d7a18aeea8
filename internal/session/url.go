package session

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"gatecap/internal/capture"
)

var hxxpRe = regexp.MustCompile(`(?i)^hxxp(s?)://`)

// DeobfuscateURL normalizes the defanged forms threat feeds trade in:
// hxxp(s) schemes, bracketed dots and colons. A bare host gets an
// http scheme so url.Parse sees a netloc.
func DeobfuscateURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = hxxpRe.ReplaceAllString(s, "http$1://")
	s = strings.ReplaceAll(s, "[.]", ".")
	s = strings.ReplaceAll(s, "[:]", ":")
	if s != "" && !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s
}

// OutputDirFor maps a URL to its session directory under base:
// saved_<netloc>_<path> squashed to filesystem-safe characters, with
// a hash tail so truncation cannot collide.
func OutputDirFor(rawURL, base string) string {
	netloc, urlPath := "unknown", "root"
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		netloc = strings.ReplaceAll(parsed.Host, ":", "_")
		p := strings.Trim(parsed.Path, "/")
		if p != "" {
			urlPath = strings.ReplaceAll(p, "/", "_")
		}
	}
	return filepath.Join(base, "saved_"+capture.MakeSlug(netloc, urlPath))
}
