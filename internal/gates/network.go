package gates

import (
	"strconv"

	"github.com/go-rod/rod"

	"gatecap/internal/spoof"
)

// ConnectionProfile is one coherent Network Information API reading.
type ConnectionProfile struct {
	Type          string
	EffectiveType string
	Downlink      float64
	RTT           int
	SaveData      bool
}

// connectionProfiles maps a network class to realistic readings. The
// hardware-class keys match the base profile ids so the draw stays
// coherent; the generic keys cover explicit configuration.
var connectionProfiles = map[string]ConnectionProfile{
	"desk_low":    {"wifi", "3g", 5, 150, false},
	"desk_mid":    {"wifi", "4g", 20, 80, false},
	"desk_high":   {"ethernet", "4g", 50, 30, false},
	"mac_notch":   {"wifi", "4g", 25, 60, false},
	"chrome_book": {"wifi", "3g", 10, 120, false},
	"mobile_high": {"cellular", "5g", 20, 100, true},

	"wifi":      {"wifi", "4g", 20, 80, false},
	"cellular":  {"cellular", "4g", 15, 120, false},
	"ethernet":  {"ethernet", "4g", 50, 30, false},
	"slow_wifi": {"wifi", "3g", 8, 150, false},
	"fast_wifi": {"wifi", "4g", 40, 50, false},
	"5g_mobile": {"cellular", "5g", 25, 100, true},
}

// NetworkGate projects the planned connection class through the
// Network Information API stub.
type NetworkGate struct{}

func NewNetworkGate() *NetworkGate { return &NetworkGate{} }

func (g *NetworkGate) Name() string { return "NetworkGate" }

func (g *NetworkGate) Handle(page *rod.Page, plan *spoof.Plan) error { return nil }

func (g *NetworkGate) Headers(plan *spoof.Plan) map[string]string { return nil }

func (g *NetworkGate) JSPatches(plan *spoof.Plan) []string {
	if plan.ConnectionProfile == "" || plan.StealthDriver() {
		return nil
	}
	return []string{"network_info_stub.js"}
}

func (g *NetworkGate) TemplateVars(plan *spoof.Plan) map[string]string {
	if plan.ConnectionProfile == "" {
		return nil
	}
	profile, ok := connectionProfiles[plan.ConnectionProfile]
	if !ok {
		profile = connectionProfiles["wifi"]
	}
	return map[string]string{
		"__CONN_TYPE__":      profile.Type,
		"__EFFECTIVE_TYPE__": profile.EffectiveType,
		"__DOWNLINK__":       strconv.FormatFloat(profile.Downlink, 'f', -1, 64),
		"__RTT__":            strconv.Itoa(profile.RTT),
		"__SAVE_DATA__":      strconv.FormatBool(profile.SaveData),
	}
}
