// Package gates holds the spoofing policy modules. Each gate projects
// one slice of the session identity: headers it pins, JS patches it
// installs and template variables it exports.
package gates

import "gatecap/internal/spoof"

// All returns a fresh gate pipeline in dependency order. Geography
// resolves before the identity gates that embed it, and the stealth
// layer runs after everything it must not contradict. Gates carry
// per-session state (the Accept-CH memo), so pipelines are never
// shared between sessions.
func All() []spoof.Gate {
	return []spoof.Gate{
		NewGeolocationGate(),
		NewReferrerGate(),
		NewUserAgentGate(),
		NewLanguageGate(),
		NewNetworkGate(),
		NewWebGLGate(),
		NewStealthGate(),
		NewTimezoneGate(),
	}
}
