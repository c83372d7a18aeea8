package gates

import (
	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// generalPatches is the engine-agnostic stealth set, installed in this
// order after the identity patches.
var generalPatches = []string{
	"font_mask.js",
	"webrtc_leak_block.js",
	"performance_timing.js",
	"incognito.js",
	"dpr_css_patch.js",
	"gamepad_midi_hid.js",
	"sensor_api_stub.js",
}

// StealthGate installs the cross-cutting anti-detection patches that
// do not belong to any single identity surface.
type StealthGate struct{}

func NewStealthGate() *StealthGate { return &StealthGate{} }

func (g *StealthGate) Name() string { return "StealthGate" }

func (g *StealthGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *StealthGate) Headers(plan *spoof.Plan) map[string]string { return nil }

func (g *StealthGate) JSPatches(plan *spoof.Plan) []string {
	if plan.StealthDriver() {
		return nil
	}
	return generalPatches
}

func (g *StealthGate) TemplateVars(plan *spoof.Plan) map[string]string { return nil }
