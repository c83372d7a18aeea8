package gates

import (
	"strings"
	"testing"

	"gatecap/internal/spoof"
	"gatecap/internal/ua"
)

const chromeWinUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.60 Safari/537.36"

func chromePlan() *spoof.Plan {
	return &spoof.Plan{
		Profile:           ua.Parse(chromeWinUA),
		UserAgent:         chromeWinUA,
		SpoofUA:           true,
		Engine:            "chromium",
		DriverEngine:      "auto",
		AcceptLanguage:    "de-DE,de;q=0.9",
		Locale:            "de-DE",
		Languages:         []string{"de-DE", "de"},
		CountryCode:       "DE",
		TimezoneID:        "Europe/Berlin",
		Geolocation:       &spoof.Geolocation{Latitude: 52.52, Longitude: 13.4, Accuracy: 150},
		Memory:            16,
		Cores:             8,
		ScreenW:           1920,
		ScreenH:           1080,
		WebGLVendor:       "NVIDIA Corporation",
		WebGLRenderer:     "NVIDIA GeForce GTX 1650/PCIe/SSE2",
		ConnectionProfile: "desk_mid",
		Referrer:          "https://campaign.example/landing",
	}
}

func TestAll_OrderAndFreshInstances(t *testing.T) {
	pipeline := All()
	wantOrder := []string{
		"GeolocationGate", "ReferrerGate", "UserAgentGate", "LanguageGate",
		"NetworkGate", "WebGLGate", "StealthGate", "TimezoneGate",
	}
	if len(pipeline) != len(wantOrder) {
		t.Fatalf("pipeline has %d gates, want %d", len(pipeline), len(wantOrder))
	}
	for i, g := range pipeline {
		if g.Name() != wantOrder[i] {
			t.Errorf("gate[%d]=%s, want %s", i, g.Name(), wantOrder[i])
		}
	}
	if All()[2] == pipeline[2] {
		t.Error("All must return fresh gate instances per session")
	}
}

func TestUserAgentGate_Headers(t *testing.T) {
	plan := chromePlan()
	headers := NewUserAgentGate().Headers(plan)

	if headers["user-agent"] != chromeWinUA {
		t.Errorf("user-agent=%q", headers["user-agent"])
	}
	if headers["sec-ch-ua-mobile"] != "?0" {
		t.Errorf("sec-ch-ua-mobile=%q, want ?0", headers["sec-ch-ua-mobile"])
	}
	if headers["sec-ch-ua-platform"] != `"Windows"` {
		t.Errorf("sec-ch-ua-platform=%q", headers["sec-ch-ua-platform"])
	}
	if !strings.Contains(headers["sec-ch-ua"], `"Chromium";v="124"`) {
		t.Errorf("sec-ch-ua=%q missing Chromium brand", headers["sec-ch-ua"])
	}
}

func TestUserAgentGate_HeadersWithoutSpoof(t *testing.T) {
	plan := chromePlan()
	plan.SpoofUA = false
	if headers := NewUserAgentGate().Headers(plan); len(headers) != 0 {
		t.Errorf("expected no headers, got %v", headers)
	}
}

func TestUserAgentGate_InjectHeaders(t *testing.T) {
	gate := NewUserAgentGate()
	plan := chromePlan()
	req := spoof.RequestInfo{URL: "https://gate.example/path/page", Method: "GET"}

	if got := gate.InjectHeaders(req, plan); len(got) != 0 {
		t.Errorf("no Accept-CH seen yet, got %v", got)
	}

	gate.acceptCH["https://gate.example"] = []string{
		"sec-ch-ua-arch", "sec-ch-ua-bitness", "sec-ch-ua-wow64",
		"sec-ch-ua-platform-version", "sec-ch-ua-full-version",
		"sec-ch-ua-full-version-list", "sec-ch-ua-model",
	}
	got := gate.InjectHeaders(req, plan)

	want := map[string]string{
		"sec-ch-ua-arch":             `"x86"`,
		"sec-ch-ua-bitness":          `"64"`,
		"sec-ch-ua-wow64":            "?0",
		"sec-ch-ua-platform-version": `"10.0"`,
		"sec-ch-ua-full-version":     `"124.0.6367.60"`,
		"sec-ch-ua-model":            `""`,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s=%q, want %q", k, got[k], v)
		}
	}
	if !strings.Contains(got["sec-ch-ua-full-version-list"], `v="124.0.6367.60"`) {
		t.Errorf("full-version-list=%q", got["sec-ch-ua-full-version-list"])
	}

	// A different origin saw no grant.
	other := spoof.RequestInfo{URL: "https://other.example/x"}
	if got := gate.InjectHeaders(other, plan); len(got) != 0 {
		t.Errorf("grant leaked across origins: %v", got)
	}
}

func TestUserAgentGate_JSPatchSelection(t *testing.T) {
	gate := NewUserAgentGate()

	plan := chromePlan()
	got := gate.JSPatches(plan)
	want := []string{"spoof_useragent.js", "chromium_stealth.js", "extra_stealth.js"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("chromium patches=%v, want %v", got, want)
	}

	plan.Engine = "firefox"
	got = gate.JSPatches(plan)
	want = []string{"fwk_stealth.js", "extra_stealth.js"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("firefox patches=%v, want %v", got, want)
	}

	plan.DriverEngine = "stealth"
	if got := gate.JSPatches(plan); len(got) != 0 {
		t.Errorf("stealth driver should suppress patches, got %v", got)
	}
}

func TestUserAgentGate_TemplateVars(t *testing.T) {
	vars := NewUserAgentGate().TemplateVars(chromePlan())

	want := map[string]string{
		"__USER_AGENT__":       chromeWinUA,
		"__CHROMIUM_V__":       "124",
		"__BRAND__":            "Google Chrome",
		"__BRAND_V__":          "124",
		"__PLATFORM__":         "Win32",
		"__MOBILE__":           "false",
		"__WOW64__":            "false",
		"__ARCH__":             "x86",
		"__BITNESS__":          "64",
		"__PLATFORM_VERSION__": "10.0",
		"__TZ__":               "Europe/Berlin",
		"__RAND_MEM__":         "16",
		"__CORES__":            "8",
		"__LANG_JS__":          `["de-DE","de"]`,
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("%s=%q, want %q", k, vars[k], v)
		}
	}
	if vars["__TOUCH_JS__"] == "" {
		t.Error("missing touch fragment")
	}
}

func TestLanguageGate(t *testing.T) {
	gate := NewLanguageGate()
	plan := chromePlan()

	headers := gate.Headers(plan)
	if headers["accept-language"] != "de-DE,de;q=0.9" {
		t.Errorf("accept-language=%q", headers["accept-language"])
	}
	if vars := gate.TemplateVars(plan); vars != nil {
		t.Errorf("chromium engine exports no language vars, got %v", vars)
	}

	plan.Engine = "firefox"
	vars := gate.TemplateVars(plan)
	if vars["__LANG_JS__"] != `["de-DE","de"]` || vars["__TZ__"] != "Europe/Berlin" {
		t.Errorf("firefox language vars wrong: %v", vars)
	}

	plan.AcceptLanguage = ""
	if headers := gate.Headers(plan); len(headers) != 0 {
		t.Errorf("no language configured, got %v", headers)
	}
}

func TestGeolocationGate(t *testing.T) {
	gate := NewGeolocationGate()
	plan := chromePlan()

	if got := gate.JSPatches(plan); len(got) != 1 || got[0] != "geolocation_spoof.js" {
		t.Errorf("patches=%v", got)
	}
	vars := gate.TemplateVars(plan)
	if vars["__LATITUDE__"] != "52.52" || vars["__LONGITUDE__"] != "13.4" || vars["__ACCURACY__"] != "150" {
		t.Errorf("geolocation vars wrong: %v", vars)
	}

	plan.Geolocation = nil
	if got := gate.JSPatches(plan); len(got) != 0 {
		t.Errorf("no geolocation, got %v", got)
	}
}

func TestTimezoneGate(t *testing.T) {
	gate := NewTimezoneGate()
	plan := chromePlan()

	if vars := gate.TemplateVars(plan); vars["__TIMEZONE__"] != "Europe/Berlin" {
		t.Errorf("timezone vars wrong: %v", vars)
	}
	if got := gate.JSPatches(plan); len(got) != 1 {
		t.Errorf("country configured, patches=%v", got)
	}

	plan.CountryCode = ""
	if got := gate.JSPatches(plan); len(got) != 0 {
		t.Errorf("no country, system zone should stand: %v", got)
	}
}

func TestWebGLGate(t *testing.T) {
	gate := NewWebGLGate()
	plan := chromePlan()

	vars := gate.TemplateVars(plan)
	if vars["__WEBGL_VENDOR__"] != "NVIDIA Corporation" {
		t.Errorf("vendor=%q", vars["__WEBGL_VENDOR__"])
	}

	plan.WebGLVendor, plan.WebGLRenderer = "", ""
	vars = gate.TemplateVars(plan)
	if vars["__WEBGL_VENDOR__"] != "Intel" || vars["__WEBGL_RENDERER__"] != "Intel(R) HD Graphics 530" {
		t.Errorf("fallback pair wrong: %v", vars)
	}
}

func TestNetworkGate(t *testing.T) {
	gate := NewNetworkGate()
	plan := chromePlan()

	vars := gate.TemplateVars(plan)
	if vars["__CONN_TYPE__"] != "wifi" || vars["__EFFECTIVE_TYPE__"] != "4g" ||
		vars["__DOWNLINK__"] != "20" || vars["__RTT__"] != "80" || vars["__SAVE_DATA__"] != "false" {
		t.Errorf("desk_mid vars wrong: %v", vars)
	}

	plan.ConnectionProfile = "mobile_high"
	vars = gate.TemplateVars(plan)
	if vars["__CONN_TYPE__"] != "cellular" || vars["__SAVE_DATA__"] != "true" {
		t.Errorf("mobile_high vars wrong: %v", vars)
	}

	plan.ConnectionProfile = "no-such-profile"
	if vars := gate.TemplateVars(plan); vars["__CONN_TYPE__"] != "wifi" {
		t.Errorf("unknown profile should fall back to wifi: %v", vars)
	}
}

func TestReferrerGate(t *testing.T) {
	gate := NewReferrerGate()
	plan := chromePlan()

	if headers := gate.Headers(plan); headers["referer"] != plan.Referrer {
		t.Errorf("referer=%q", headers["referer"])
	}
	plan.Referrer = ""
	if headers := gate.Headers(plan); len(headers) != 0 {
		t.Errorf("no referrer configured, got %v", headers)
	}
}

func TestStealthGate(t *testing.T) {
	gate := NewStealthGate()
	plan := chromePlan()

	got := gate.JSPatches(plan)
	if len(got) != 7 || got[0] != "font_mask.js" || got[6] != "sensor_api_stub.js" {
		t.Errorf("general patches wrong: %v", got)
	}

	plan.DriverEngine = "stealth"
	if got := gate.JSPatches(plan); len(got) != 0 {
		t.Errorf("stealth driver should suppress patches: %v", got)
	}
}

func TestWebGLPatchCoversLegacyConstants(t *testing.T) {
	source, err := spoof.NewTemplates().Render("webgl_patch.js", map[string]string{
		"__WEBGL_VENDOR__":   "NVIDIA Corporation",
		"__WEBGL_RENDERER__": "NVIDIA GeForce GTX 1650/PCIe/SSE2",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	// Both the UNMASKED debug params and the plain gl.VENDOR /
	// gl.RENDERER reads must report the drawn identity.
	for _, constant := range []string{"37445", "37446", "0x1f00", "0x1f01"} {
		if !strings.Contains(source, constant) {
			t.Errorf("getParameter shim misses constant %s", constant)
		}
	}
	if !strings.Contains(source, "NVIDIA Corporation") {
		t.Error("vendor not rendered into the shim")
	}
}

func TestWorkerPatchSources(t *testing.T) {
	plan := chromePlan()
	plan.TemplateVars = map[string]string{
		"__USER_AGENT__": plan.UserAgent,
		"__TIMEZONE__":   plan.TimezoneID,
	}

	// UA spoof plus a pinned country: navigator patch first, then the
	// timezone patch so worker Intl reads agree with the page.
	sources := workerPatchSources(plan)
	if len(sources) != 2 {
		t.Fatalf("sources=%d, want 2", len(sources))
	}
	if !strings.Contains(sources[0], plan.UserAgent) {
		t.Error("navigator patch not rendered")
	}
	if !strings.Contains(sources[1], "Europe/Berlin") {
		t.Error("timezone patch missing the session zone")
	}

	plan.CountryCode = ""
	if got := workerPatchSources(plan); len(got) != 1 {
		t.Errorf("no country, want navigator patch only: %d", len(got))
	}

	plan.CountryCode = "DE"
	plan.SpoofUA = false
	got := workerPatchSources(plan)
	if len(got) != 1 || !strings.Contains(got[0], "Europe/Berlin") {
		t.Errorf("country without UA spoof should still pin worker zone: %d", len(got))
	}

	plan.TemplateVars = nil
	if got := workerPatchSources(plan); got != nil {
		t.Errorf("no vars, no sources: %v", got)
	}
}
