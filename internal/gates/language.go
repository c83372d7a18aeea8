package gates

import (
	"encoding/json"

	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// LanguageGate pins the Accept-Language header. On non-Chromium
// identities it also exports the locale variables the fwk patch set
// consumes, since those engines get no userAgentData surface.
type LanguageGate struct{}

func NewLanguageGate() *LanguageGate { return &LanguageGate{} }

func (g *LanguageGate) Name() string { return "LanguageGate" }

func (g *LanguageGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *LanguageGate) Headers(plan *spoof.Plan) map[string]string {
	if plan.AcceptLanguage == "" {
		return nil
	}
	return map[string]string{"accept-language": plan.AcceptLanguage}
}

func (g *LanguageGate) JSPatches(plan *spoof.Plan) []string { return nil }

func (g *LanguageGate) TemplateVars(plan *spoof.Plan) map[string]string {
	if plan.Engine == "chromium" {
		return nil
	}
	langJS, _ := json.Marshal(plan.Languages)
	return map[string]string{
		"__LANG_JS__":    string(langJS),
		"__TZ__":         plan.TimezoneID,
		"__USER_AGENT__": plan.UserAgent,
	}
}
