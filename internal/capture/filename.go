package capture

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// maxFilenameLen leaves slack under the usual 255-byte POSIX limit for
// the parent directory prefix.
const maxFilenameLen = 240

var (
	// RFC 5987 form first, then the legacy quoted form.
	filenameStarRe  = regexp.MustCompile(`(?i)filename\*\s*=\s*(?:UTF-8|utf-8)?''([^;]+)`)
	filenamePlainRe = regexp.MustCompile(`(?i)filename\s*=\s*"?([^";]+)"?`)

	unsafeChars = regexp.MustCompile(`[^\w.\-]`)
)

// downloadMIMETypes are the content types treated as payload
// deliveries rather than page resources. Exact matches only, so
// application/gzip and friends stay on the resource path.
var downloadMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
	"application/x-msdownload":                      true,
	"application/vnd.microsoft.portable-executable": true,
	"application/octet-stream":                      true,
}

// extByContentType resolves an extension when the URL carries none.
var extByContentType = map[string]string{
	"text/css":                 ".css",
	"text/html":                ".html",
	"application/javascript":   ".js",
	"text/javascript":          ".js",
	"application/x-javascript": ".js",
	"application/json":         ".json",
	"application/pdf":          ".pdf",
	"application/zip":          ".zip",
	"application/x-msdownload": ".exe",
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/svg+xml":            ".svg",
	"image/x-icon":             ".ico",
	"font/woff":                ".woff",
	"font/woff2":               ".woff2",
	"font/ttf":                 ".ttf",
	"font/otf":                 ".otf",
}

// SafeFilename builds "stem_<md5-8><ext>", trimming the stem to stay
// under the filesystem limit. A pathological budget drops the stem.
func SafeFilename(stem, ext, salt string) string {
	hash := fmt.Sprintf("%x", md5.Sum([]byte(salt)))[:8]
	budget := maxFilenameLen - len(ext) - len(hash) - 1
	if budget < 8 {
		return hash + ext
	}
	if len(stem) > budget {
		stem = stem[:budget]
	}
	return stem + "_" + hash + ext
}

// MakeSlug builds a filesystem-safe identifier from URL parts. The
// hash tail keeps truncated slugs unique.
func MakeSlug(netloc, urlPath string) string {
	raw := strings.TrimRight(netloc+"_"+urlPath, "_")
	tail := fmt.Sprintf("%x", md5.Sum([]byte(raw)))[:8]
	if len(raw) > 80 {
		raw = raw[:80]
	}
	return raw + "_" + tail
}

// DedupPath appends _1, _2, ... until the name is free. Must run
// before the first byte is written.
func DedupPath(p string) string {
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return p
	}
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// FilenameFromContentDisposition extracts the server-suggested name,
// preferring the RFC 5987 encoded form.
func FilenameFromContentDisposition(cd string) string {
	if m := filenameStarRe.FindStringSubmatch(cd); m != nil {
		if decoded, err := url.QueryUnescape(strings.TrimSpace(m[1])); err == nil {
			return sanitizeName(decoded)
		}
		return sanitizeName(strings.TrimSpace(m[1]))
	}
	if m := filenamePlainRe.FindStringSubmatch(cd); m != nil {
		return sanitizeName(strings.TrimSpace(m[1]))
	}
	return ""
}

func sanitizeName(name string) string {
	name = path.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

// ExtForContentType maps a Content-Type to a file extension, falling
// back to the subtype for image/* and font/* families.
func ExtForContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	if ext, ok := extByContentType[ct]; ok {
		return ext
	}
	if family, subtype, found := strings.Cut(ct, "/"); found {
		if family == "image" || family == "font" {
			return "." + subtype
		}
	}
	return ""
}

// FilenameFor derives the archive filename for a response: the
// Content-Disposition suggestion wins, then the URL basename with a
// Content-Type extension, then a hashed index fallback.
func FilenameFor(rawURL, contentType, contentDisposition string) string {
	if cd := FilenameFromContentDisposition(contentDisposition); cd != "" {
		ext := filepath.Ext(cd)
		return SafeFilename(strings.TrimSuffix(cd, ext), ext, rawURL)
	}

	stem, ext := "index", ""
	if parsed, err := url.Parse(rawURL); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "/" && base != "." {
			ext = path.Ext(base)
			stem = sanitizeName(strings.TrimSuffix(base, ext))
			if stem == "" {
				stem = "index"
			}
		}
	}
	if ext == "" {
		ext = ExtForContentType(contentType)
	}
	return SafeFilename(stem, ext, rawURL)
}

// LooksLikeDownload reports whether a response is a payload delivery:
// an attachment disposition or one of the binary content types.
func LooksLikeDownload(contentType, contentDisposition string) bool {
	cd := strings.ToLower(contentDisposition)
	if strings.Contains(cd, "attachment") || strings.Contains(cd, "filename=") {
		return true
	}
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return downloadMIMETypes[mime]
}
