package spoof

import (
	"regexp"
	"strings"
	"testing"
)

func TestRender_PlaceholderForms(t *testing.T) {
	tpl := NewTemplates()

	got, err := tpl.Render("webgl_patch.js", map[string]string{
		"__WEBGL_VENDOR__": "NVIDIA Corporation",
		"webgl_renderer":   "NVIDIA GeForce RTX 3060/PCIe/SSE2",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, `"NVIDIA Corporation"`) {
		t.Error("wrapped key not substituted")
	}
	if !strings.Contains(got, "NVIDIA GeForce RTX 3060") {
		t.Error("bare key not upcased and substituted")
	}
	if strings.Contains(got, "__WEBGL_") {
		t.Errorf("placeholders left behind:\n%s", got)
	}
}

func TestRender_UnknownPlaceholderSurvives(t *testing.T) {
	tpl := NewTemplates()
	got, err := tpl.Render("timezone_spoof.js", map[string]string{"__UNRELATED__": "x"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "__TIMEZONE__") {
		t.Error("unmatched placeholder must be left intact")
	}
}

func TestRender_MissingTemplate(t *testing.T) {
	if _, err := NewTemplates().Render("no_such_patch.js", nil); err == nil {
		t.Error("expected error for missing template")
	}
}

// Every placeholder in every embedded template must be a variable some
// gate exports; a typo in either side silently ships broken JS.
func TestTemplates_PlaceholderAccounting(t *testing.T) {
	exported := map[string]bool{}
	for _, name := range []string{
		"__USER_AGENT__", "__CHROMIUM_V__", "__BRAND__", "__BRAND_V__",
		"__UA_FULL_VERSION__", "__ARCH__", "__BITNESS__", "__WOW64__",
		"__MODEL__", "__MOBILE__", "__PLATFORM__", "__PLATFORM_VERSION__",
		"__TZ__", "__RAND_MEM__", "__CORES__", "__LANG_JS__", "__TOUCH_JS__",
		"__TIMEZONE__", "__LATITUDE__", "__LONGITUDE__", "__ACCURACY__",
		"__WEBGL_VENDOR__", "__WEBGL_RENDERER__",
		"__CONN_TYPE__", "__EFFECTIVE_TYPE__", "__DOWNLINK__", "__RTT__", "__SAVE_DATA__",
	} {
		exported[name] = true
	}

	placeholderRe := regexp.MustCompile(`__[A-Z][A-Z0-9_]*__`)
	names, err := TemplateNames()
	if err != nil {
		t.Fatalf("TemplateNames: %v", err)
	}
	if len(names) < 15 {
		t.Fatalf("expected the full patch set, found %d templates", len(names))
	}

	tpl := NewTemplates()
	for _, name := range names {
		raw, err := tpl.load(name)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		for _, ph := range placeholderRe.FindAllString(raw, -1) {
			if !exported[ph] {
				t.Errorf("%s uses %s, which no gate exports", name, ph)
			}
		}
	}
}
