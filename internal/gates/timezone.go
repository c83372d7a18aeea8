package gates

import (
	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// TimezoneGate exports the session zone. Its variables seed the shared
// template namespace so every other patch renders against the same
// zone; the JS patch only installs when a country pinned the zone.
type TimezoneGate struct{}

func NewTimezoneGate() *TimezoneGate { return &TimezoneGate{} }

func (g *TimezoneGate) Name() string { return "TimezoneGate" }

func (g *TimezoneGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *TimezoneGate) Headers(plan *spoof.Plan) map[string]string { return nil }

func (g *TimezoneGate) JSPatches(plan *spoof.Plan) []string {
	if plan.CountryCode == "" || plan.StealthDriver() {
		return nil
	}
	return []string{"timezone_spoof.js"}
}

func (g *TimezoneGate) TemplateVars(plan *spoof.Plan) map[string]string {
	return map[string]string{"__TIMEZONE__": plan.TimezoneID}
}
