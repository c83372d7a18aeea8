package gates

import (
	"strconv"

	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// GeolocationGate answers position lookups with the planned
// coordinates. The answer comes from a JS patch rather than a driver
// permission grant, so pages that probe the permission state see the
// usual prompt-less default instead of a suspicious pre-grant.
type GeolocationGate struct{}

func NewGeolocationGate() *GeolocationGate { return &GeolocationGate{} }

func (g *GeolocationGate) Name() string { return "GeolocationGate" }

func (g *GeolocationGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *GeolocationGate) Headers(plan *spoof.Plan) map[string]string { return nil }

func (g *GeolocationGate) JSPatches(plan *spoof.Plan) []string {
	if plan.Geolocation == nil || plan.StealthDriver() {
		return nil
	}
	return []string{"geolocation_spoof.js"}
}

func (g *GeolocationGate) TemplateVars(plan *spoof.Plan) map[string]string {
	if plan.Geolocation == nil {
		return nil
	}
	return map[string]string{
		"__LATITUDE__":  strconv.FormatFloat(plan.Geolocation.Latitude, 'f', -1, 64),
		"__LONGITUDE__": strconv.FormatFloat(plan.Geolocation.Longitude, 'f', -1, 64),
		"__ACCURACY__":  strconv.FormatFloat(plan.Geolocation.Accuracy, 'f', -1, 64),
	}
}
