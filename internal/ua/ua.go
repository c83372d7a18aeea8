// Package ua parses user-agent strings into the identity profile the
// rest of the capture pipeline consumes, and generates the Sec-CH-UA
// client hint family from that single parse.
package ua

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnrecognizedUA is returned when a client hint generator is asked
// about a user agent that is not Chromium-based.
var ErrUnrecognizedUA = errors.New("ua: not a recognized Chromium-based user agent")

// Entropy holds the high-entropy client hint values derived from a
// user-agent string. Fields mirror the Sec-CH-UA-* header family.
type Entropy struct {
	Architecture    string
	Bitness         string
	WOW64           bool
	Model           string
	Platform        string
	PlatformVersion string
}

// Profile is the fully parsed identity of a user-agent string. It is
// resolved once per session and shared by every consumer; nothing
// downstream re-parses the raw string.
type Profile struct {
	UA                 string
	Brand              string
	BrandVersion       string
	EngineVersion      string // Chromium major version
	EngineFullVersion  string // Chromium full version
	OSFamily           string
	Mobile             bool
	SupportsHints      bool
	Entropy            Entropy
}

// archPatterns maps UA substrings to (architecture, bitness, wow64).
// Order matters: wow64 must win over the plain x86 tokens.
var archPatterns = []struct {
	needles []string
	arch    string
	bits    string
	wow64   bool
}{
	{[]string{"wow64"}, "x86", "32", true},
	{[]string{"amd64", "x86_64", "win64", "x64", "ia64"}, "x86", "64", false},
	{[]string{"i686", "i386", "x86"}, "x86", "32", false},
	{[]string{"arm64", "aarch64", "armv8"}, "arm", "64", false},
	{[]string{"armv7", "armv6", "arm;"}, "arm", "32", false},
}

var (
	androidModelStrictRe  = regexp.MustCompile(`Android [\d.]+; ([^;/)]+) Build/`)
	androidModelRelaxedRe = regexp.MustCompile(`Android [\d.]+; ([^;)]+)`)
	iosModelRe            = regexp.MustCompile(`\((iP(?:hone|ad|od)[^;)]*)`)

	chromiumVersionRe = regexp.MustCompile(`(?:Chrome|Chromium)/([0-9.]+)`)
)

// brandPatterns identifies Chromium forks. Checked in order so that
// rebranded engines (Edge, Opera, ...) win over the Chrome token they
// also carry.
var brandPatterns = []struct {
	re    *regexp.Regexp
	brand string
}{
	{regexp.MustCompile(`EdgA?/([0-9.]+)`), "Microsoft Edge"},
	{regexp.MustCompile(`OPR/([0-9.]+)`), "Opera"},
	{regexp.MustCompile(`YaBrowser/([0-9.]+)`), "Yandex"},
	{regexp.MustCompile(`Brave/([0-9.]+)`), "Brave"},
	{regexp.MustCompile(`Chrome/([0-9.]+)`), "Google Chrome"},
	{regexp.MustCompile(`Chromium/([0-9.]+)`), "Chromium"},
	{regexp.MustCompile(`QQBrowser/([0-9.]+)`), "QQBrowser"},
	{regexp.MustCompile(`UCBrowser/([0-9.]+)`), "UC Browser"},
}

// hintFloors lists Chromium-family browsers and the minimum major
// version at which they send client hints.
var hintFloors = []struct {
	re  *regexp.Regexp
	min int
}{
	{regexp.MustCompile(`chrome/(\d+)`), 89},
	{regexp.MustCompile(`crios/(\d+)`), 89},
	{regexp.MustCompile(`edg[a]?/(\d+)`), 90},
	{regexp.MustCompile(`opr/(\d+)`), 75},
	{regexp.MustCompile(`yabrowser/(\d+)`), 1},
	{regexp.MustCompile(`miui browser/(\d+)`), 1},
	{regexp.MustCompile(`qqbrowser/(\d+)`), 10},
	{regexp.MustCompile(`android.*version/(\d+).*chrome`), 84},
}

var platformVersionRes = map[string]*regexp.Regexp{
	"Windows":   regexp.MustCompile(`Windows NT ([\d.]+)`),
	"macOS":     regexp.MustCompile(`Mac OS X ([\d_]+)`),
	"Android":   regexp.MustCompile(`Android ([\d.]+)`),
	"iOS":       regexp.MustCompile(`OS ([\d_]+)`),
	"Chrome OS": regexp.MustCompile(`CrOS [^ ]+ ([\d.]+)`),
}

// DetectOSFamily classifies a user agent into a coarse OS family:
// windows, mac, android, ios, chromeos or linux.
func DetectOSFamily(ua string) string {
	low := strings.ToLower(ua)
	switch {
	case strings.Contains(low, "windows"):
		return "windows"
	case strings.Contains(low, "mac os"), strings.Contains(low, "macos"):
		return "mac"
	case strings.Contains(low, "android"):
		return "android"
	case strings.Contains(low, "iphone"), strings.Contains(low, "ipad"), strings.Contains(low, "ios"):
		return "ios"
	case strings.Contains(low, "cros"), strings.Contains(low, "chrome os"):
		return "chromeos"
	default:
		return "linux"
	}
}

// DetectEngine classifies a user agent into a rendering engine:
// chromium, firefox or webkit. Everything not clearly Firefox or
// Safari counts as Chromium.
func DetectEngine(ua string) string {
	low := strings.ToLower(ua)
	if strings.Contains(low, "firefox") && !strings.Contains(low, "seamonkey") {
		return "firefox"
	}
	if strings.Contains(low, "safari") && !strings.Contains(low, "chrome") && !strings.Contains(low, "chromium") {
		return "webkit"
	}
	return "chromium"
}

// platformLabel maps an OS family to the Sec-CH-UA-Platform label.
func platformLabel(family string) string {
	switch family {
	case "windows":
		return "Windows"
	case "mac":
		return "macOS"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	case "chromeos":
		return "Chrome OS"
	default:
		return "Linux"
	}
}

func detectArch(uaLower string) (arch, bits string, wow64 bool) {
	for _, p := range archPatterns {
		for _, n := range p.needles {
			if strings.Contains(uaLower, n) {
				return p.arch, p.bits, p.wow64
			}
		}
	}
	return "", "", false
}

func detectModel(ua string) string {
	if m := androidModelStrictRe.FindStringSubmatch(ua); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := androidModelRelaxedRe.FindStringSubmatch(ua); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := iosModelRe.FindStringSubmatch(ua); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func detectPlatformVersion(platform, ua string) string {
	re, ok := platformVersionRes[platform]
	if !ok {
		return ""
	}
	m := re.FindStringSubmatch(ua)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], "_", ".")
}

// HighEntropy derives the high-entropy hint values from a user-agent
// string: architecture, bitness, wow64, device model, platform label
// and platform version.
func HighEntropy(ua string) Entropy {
	low := strings.ToLower(ua)
	arch, bits, wow64 := detectArch(low)
	platform := platformLabel(DetectOSFamily(ua))
	return Entropy{
		Architecture:    arch,
		Bitness:         bits,
		WOW64:           wow64,
		Model:           detectModel(ua),
		Platform:        platform,
		PlatformVersion: detectPlatformVersion(platform, ua),
	}
}

// ParseChromiumBrand extracts the marketing brand and its version from
// a Chromium-family user agent. ok is false for non-Chromium UAs.
func ParseChromiumBrand(ua string) (brand, version string, ok bool) {
	for _, p := range brandPatterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			return p.brand, m[1], true
		}
	}
	return "", "", false
}

// ChromiumFullVersion extracts the full Chromium engine version, or ""
// when the UA carries no Chrome/Chromium token.
func ChromiumFullVersion(ua string) string {
	if m := chromiumVersionRe.FindStringSubmatch(ua); m != nil {
		return m[1]
	}
	return ""
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// SupportsClientHints reports whether the browser behind this user
// agent sends the Sec-CH-UA header family. Firefox and Safari never
// do; Chromium forks only above their per-brand version floor.
func SupportsClientHints(ua string) bool {
	low := strings.ToLower(ua)
	if strings.Contains(low, "firefox") {
		return false
	}
	// Safari carries no hint token and matches no floor below, so it
	// falls through to false without an explicit exclusion.
	for _, f := range hintFloors {
		m := f.re.FindStringSubmatch(low)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return v >= f.min
	}
	return false
}

// brandEntry is one `"Brand";v="ver"` element of a Sec-CH-UA list.
type brandEntry struct {
	brand   string
	version string
}

func formatBrandList(entries []brandEntry) string {
	// Dedupe first (plain Chrome matches both the Chromium and the
	// Google Chrome patterns), then shuffle for GREASE.
	seen := make(map[string]bool, len(entries))
	unique := entries[:0]
	for _, e := range entries {
		if seen[e.brand] {
			continue
		}
		seen[e.brand] = true
		unique = append(unique, e)
	}
	rand.Shuffle(len(unique), func(i, j int) {
		unique[i], unique[j] = unique[j], unique[i]
	})
	parts := make([]string, len(unique))
	for i, e := range unique {
		parts[i] = fmt.Sprintf(`"%s";v="%s"`, e.brand, e.version)
	}
	return strings.Join(parts, ", ")
}

// GenerateSecChUA builds a Sec-CH-UA header value for a Chromium UA.
// Brand order is randomized per call, matching GREASE behavior.
func GenerateSecChUA(ua string) (string, error) {
	brand, brandVersion, ok := ParseChromiumBrand(ua)
	full := ChromiumFullVersion(ua)
	if !ok || brandVersion == "" || full == "" {
		return "", ErrUnrecognizedUA
	}
	return formatBrandList([]brandEntry{
		{"Chromium", majorVersion(full)},
		{"Not-A.Brand", "99"},
		{brand, majorVersion(brandVersion)},
	}), nil
}

// GenerateSecChUAFullVersionList builds the long-form
// Sec-CH-UA-Full-Version-List header value for a Chromium UA.
func GenerateSecChUAFullVersionList(ua string) (string, error) {
	brand, brandVersion, ok := ParseChromiumBrand(ua)
	full := ChromiumFullVersion(ua)
	if !ok || brandVersion == "" || full == "" {
		return "", ErrUnrecognizedUA
	}
	return formatBrandList([]brandEntry{
		{"Chromium", full},
		{"Not-A.Brand", "99.0.0.0"},
		{brand, full},
	}), nil
}

// JSPlatform maps an OS family and UA to the navigator.platform value
// the page should observe.
func JSPlatform(family, uaStr string) string {
	switch family {
	case "windows":
		return "Win32"
	case "mac":
		return "MacIntel"
	case "android":
		return "Linux armv7l"
	case "ios":
		if strings.Contains(uaStr, "iPad") {
			return "iPad"
		}
		return "iPhone"
	default:
		return "Linux x86_64"
	}
}

// Parse resolves a user-agent string into a complete Profile.
func Parse(uaStr string) Profile {
	full := ChromiumFullVersion(uaStr)
	brand, brandVersion, _ := ParseChromiumBrand(uaStr)
	family := DetectOSFamily(uaStr)
	low := strings.ToLower(uaStr)
	return Profile{
		UA:                uaStr,
		Brand:             brand,
		BrandVersion:      brandVersion,
		EngineVersion:     majorVersion(full),
		EngineFullVersion: full,
		OSFamily:          family,
		Mobile:            strings.Contains(low, "mobile") || family == "android" || family == "ios",
		SupportsHints:     SupportsClientHints(uaStr),
		Entropy:           HighEntropy(uaStr),
	}
}
