// Package spoof coordinates fingerprint projection for a capture
// session: it owns the resolved spoofing plan, the embedded JS patch
// templates, and the orchestrator that applies gate output to a page.
package spoof

import (
	"gatecap/internal/ua"
)

// Geolocation is a spoofed position in decimal degrees with an
// accuracy radius in meters.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Plan is the fully resolved identity for one capture session. It is
// built once by the catalog resolver before the browser launches and
// treated as read-only by every gate; cross-gate inputs are explicit
// fields here rather than values smuggled between gates.
type Plan struct {
	// Identity surface.
	Profile   ua.Profile
	UserAgent string
	SpoofUA   bool

	// Engine is the rendering engine implied by the user agent
	// (chromium, firefox, webkit). DriverEngine is the requested
	// driver mode: auto, standard or stealth.
	Engine       string
	DriverEngine string

	// Locale surface.
	AcceptLanguage string
	Locale         string
	Languages      []string

	// Geography surface.
	CountryCode string
	TimezoneID  string
	Geolocation *Geolocation

	Referrer string

	// Hardware draw from the base profile.
	BaseProfileID string
	Memory        int
	Cores         int
	ScreenW       int
	ScreenH       int
	WebGLVendor   string
	WebGLRenderer string

	// Network class, keyed into the connection profile table.
	ConnectionProfile string

	// Per-gate enable overrides. Absent means enabled.
	GatesEnabled map[string]bool

	// TemplateVars is the frozen variable snapshot collected during
	// patch installation. Populated by the Manager; gates read it
	// only from SetupPageHandlers.
	TemplateVars map[string]string
}

// StealthDriver reports whether the driver itself is trusted to hide
// automation, in which case gates skip their JS patch sets.
func (p *Plan) StealthDriver() bool {
	return p.DriverEngine == "stealth"
}

// GateEnabled reports whether a gate participates in this session.
// An explicit override wins; otherwise every gate is enabled.
func (p *Plan) GateEnabled(name string) bool {
	if p.GatesEnabled == nil {
		return true
	}
	enabled, ok := p.GatesEnabled[name]
	if !ok {
		return true
	}
	return enabled
}
