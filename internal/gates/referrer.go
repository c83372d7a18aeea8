package gates

import (
	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// ReferrerGate pins the Referer header, for gates that only open to
// traffic arriving from a specific campaign page.
type ReferrerGate struct{}

func NewReferrerGate() *ReferrerGate { return &ReferrerGate{} }

func (g *ReferrerGate) Name() string { return "ReferrerGate" }

func (g *ReferrerGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *ReferrerGate) Headers(plan *spoof.Plan) map[string]string {
	if plan.Referrer == "" {
		return nil
	}
	return map[string]string{"referer": plan.Referrer}
}

func (g *ReferrerGate) JSPatches(plan *spoof.Plan) []string { return nil }

func (g *ReferrerGate) TemplateVars(plan *spoof.Plan) map[string]string { return nil }
