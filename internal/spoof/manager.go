package spoof

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// timezoneGateName identifies the gate whose variables seed the shared
// template namespace before the identity gates consume it.
const timezoneGateName = "TimezoneGate"

// Manager applies a gate pipeline to a page: per-gate setup, static
// header collection, template rendering and init-script installation,
// then live page handlers. One Manager serves one session.
type Manager struct {
	log       *zap.Logger
	templates *Templates
	gates     []Gate

	staticHeaders map[string]string
	injectors     []HeaderInjector
	vars          map[string]string
}

func NewManager(log *zap.Logger, gates []Gate) *Manager {
	return &Manager{
		log:       log,
		templates: NewTemplates(),
		gates:     gates,
	}
}

func (m *Manager) enabled(plan *Plan) []Gate {
	out := make([]Gate, 0, len(m.gates))
	for _, g := range m.gates {
		if plan.GateEnabled(g.Name()) {
			out = append(out, g)
		}
	}
	return out
}

// Apply runs gate setup against the page: Handle for every enabled
// gate in dependency order, then header and variable collection.
// Handle failures are fatal. Patch installation is a separate step,
// InstallPatches, so the caller can enable request routing in between
// and init scripts observe the same origin policy the first real
// request will see.
func (m *Manager) Apply(page *rod.Page, plan *Plan) error {
	for _, g := range m.enabled(plan) {
		if err := g.Handle(page, plan); err != nil {
			return fmt.Errorf("spoof: %s handle: %w", g.Name(), err)
		}
	}

	m.CollectHeaders(plan)
	m.CollectVars(plan)
	return nil
}

// InstallPatches renders and installs the init scripts of every
// enabled gate. A single patch failing to render or install only logs
// a warning; that surface stays un-spoofed.
func (m *Manager) InstallPatches(page *rod.Page, plan *Plan) {
	m.installPatches(page, plan, m.enabled(plan))
}

// CollectHeaders sums the static header set across enabled gates and
// registers the per-request injectors in gate order.
func (m *Manager) CollectHeaders(plan *Plan) map[string]string {
	m.staticHeaders = make(map[string]string)
	m.injectors = m.injectors[:0]
	for _, g := range m.enabled(plan) {
		for k, v := range g.Headers(plan) {
			m.staticHeaders[k] = v
		}
		if inj, ok := g.(HeaderInjector); ok {
			m.injectors = append(m.injectors, inj)
		}
	}
	return m.staticHeaders
}

// CollectVars merges every enabled gate's template variables into one
// frozen namespace. Timezone variables land first so every later
// exporter observes the same zone; later gates may still overwrite
// deliberately. The snapshot is also stored on the plan for gates
// that render after navigation.
func (m *Manager) CollectVars(plan *Plan) map[string]string {
	gates := m.enabled(plan)
	m.vars = make(map[string]string)
	for _, g := range gates {
		if g.Name() == timezoneGateName {
			for k, v := range g.TemplateVars(plan) {
				m.vars[k] = v
			}
		}
	}
	for _, g := range gates {
		if g.Name() == timezoneGateName {
			continue
		}
		for k, v := range g.TemplateVars(plan) {
			m.vars[k] = v
		}
	}
	plan.TemplateVars = m.vars
	return m.vars
}

func (m *Manager) installPatches(page *rod.Page, plan *Plan, gates []Gate) {
	for _, g := range gates {
		for _, patch := range g.JSPatches(plan) {
			source, err := m.templates.Render(patch, m.vars)
			if err != nil {
				m.log.Warn("patch render failed", zap.String("gate", g.Name()), zap.String("patch", patch), zap.Error(err))
				continue
			}
			if _, err := page.EvalOnNewDocument(source); err != nil {
				m.log.Warn("patch install failed", zap.String("gate", g.Name()), zap.String("patch", patch), zap.Error(err))
				continue
			}
			m.log.Debug("patch installed", zap.String("gate", g.Name()), zap.String("patch", patch))
		}
	}
}

// SetupPageHandlers runs the live-page hooks of gates that expose
// them, after Apply. Skipped when the driver itself is stealthy.
func (m *Manager) SetupPageHandlers(page *rod.Page, plan *Plan) error {
	if plan.StealthDriver() {
		return nil
	}
	for _, g := range m.enabled(plan) {
		ph, ok := g.(PageHandlerGate)
		if !ok {
			continue
		}
		if err := ph.SetupPageHandlers(page, plan); err != nil {
			return fmt.Errorf("spoof: %s page handlers: %w", g.Name(), err)
		}
	}
	return nil
}

// StaticHeaders returns the merged always-on header set collected
// during Apply.
func (m *Manager) StaticHeaders() map[string]string {
	return m.staticHeaders
}

// HeadersFor merges the native request headers with the static set and
// every injector's per-request contribution, later writers winning.
// Names fold to lowercase: Chromium reports native headers in
// canonical case, and without the fold a spoofed value would ride
// alongside the real one instead of replacing it.
// The capture interceptor calls this for each paused request.
func (m *Manager) HeadersFor(req RequestInfo, plan *Plan) map[string]string {
	merged := make(map[string]string, len(req.Headers)+len(m.staticHeaders))
	for k, v := range req.Headers {
		merged[strings.ToLower(k)] = v
	}
	for k, v := range m.staticHeaders {
		merged[strings.ToLower(k)] = v
	}
	for _, inj := range m.injectors {
		for k, v := range inj.InjectHeaders(req, plan) {
			merged[strings.ToLower(k)] = v
		}
	}
	return merged
}

// TemplateVars returns the frozen variable snapshot from the last
// Apply, for gates that need rendered values after navigation.
func (m *Manager) TemplateVars() map[string]string {
	return m.vars
}

// EmulateContext pushes the plan's device identity through CDP before
// navigation: UA override with client-hint metadata, locale, timezone,
// geolocation and screen metrics.
func EmulateContext(page *rod.Page, plan *Plan) error {
	if plan.SpoofUA {
		override := &proto.NetworkSetUserAgentOverride{
			UserAgent:      plan.UserAgent,
			AcceptLanguage: plan.Locale,
		}
		if plan.Profile.SupportsHints {
			override.UserAgentMetadata = &proto.EmulationUserAgentMetadata{
				Brands: []*proto.EmulationUserAgentBrandVersion{
					{Brand: "Chromium", Version: plan.Profile.EngineVersion},
					{Brand: plan.Profile.Brand, Version: majorOf(plan.Profile.BrandVersion)},
					{Brand: "Not-A.Brand", Version: "99"},
				},
				FullVersion:     plan.Profile.EngineFullVersion,
				Platform:        plan.Profile.Entropy.Platform,
				PlatformVersion: plan.Profile.Entropy.PlatformVersion,
				Architecture:    plan.Profile.Entropy.Architecture,
				Model:           plan.Profile.Entropy.Model,
				Mobile:          plan.Profile.Mobile,
			}
		}
		if err := override.Call(page); err != nil {
			return fmt.Errorf("spoof: ua override: %w", err)
		}
	}

	if plan.TimezoneID != "" && plan.CountryCode != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: plan.TimezoneID}).Call(page); err != nil {
			return fmt.Errorf("spoof: timezone override: %w", err)
		}
	}

	if plan.Geolocation != nil {
		lat := plan.Geolocation.Latitude
		lon := plan.Geolocation.Longitude
		acc := plan.Geolocation.Accuracy
		err := (proto.EmulationSetGeolocationOverride{
			Latitude:  &lat,
			Longitude: &lon,
			Accuracy:  &acc,
		}).Call(page)
		if err != nil {
			return fmt.Errorf("spoof: geolocation override: %w", err)
		}
	}

	if plan.ScreenW > 0 && plan.ScreenH > 0 {
		err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             plan.ScreenW,
			Height:            plan.ScreenH,
			DeviceScaleFactor: 1,
			Mobile:            plan.SpoofUA && plan.Profile.Mobile,
		}).Call(page)
		if err != nil {
			return fmt.Errorf("spoof: device metrics: %w", err)
		}
	}

	return nil
}

func majorOf(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}
