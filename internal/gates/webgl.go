package gates

import (
	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// Safe default when the plan carries no GPU draw at all.
const (
	fallbackWebGLVendor   = "Intel"
	fallbackWebGLRenderer = "Intel(R) HD Graphics 530"
)

// WebGLGate reports the drawn GPU identity through the UNMASKED debug
// parameters.
type WebGLGate struct{}

func NewWebGLGate() *WebGLGate { return &WebGLGate{} }

func (g *WebGLGate) Name() string { return "WebGLGate" }

func (g *WebGLGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *WebGLGate) Headers(plan *spoof.Plan) map[string]string { return nil }

func (g *WebGLGate) JSPatches(plan *spoof.Plan) []string {
	if plan.StealthDriver() {
		return nil
	}
	if (plan.WebGLVendor != "" && plan.WebGLRenderer != "") || plan.SpoofUA {
		return []string{"webgl_patch.js"}
	}
	return nil
}

func (g *WebGLGate) TemplateVars(plan *spoof.Plan) map[string]string {
	vendor, renderer := plan.WebGLVendor, plan.WebGLRenderer
	if vendor == "" || renderer == "" {
		vendor, renderer = fallbackWebGLVendor, fallbackWebGLRenderer
	}
	return map[string]string{
		"__WEBGL_VENDOR__":   vendor,
		"__WEBGL_RENDERER__": renderer,
	}
}
