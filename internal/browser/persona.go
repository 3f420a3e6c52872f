package browser

import (
	"github.com/xkilldash9x/scribe-cli/internal/browser/stealth"
	"github.com/xkilldash9x/scribe-cli/internal/config"
)

// PersonaFor picks the base persona for the configured client class and
// applies the configured overrides.
func PersonaFor(bc config.BrowserConfig) stealth.Persona {
	p := stealth.DefaultPersona
	if bc.Mobile {
		p = stealth.MobilePersona
	}
	// Languages is shared with the package-level persona.
	p.Languages = append([]string(nil), p.Languages...)

	if bc.UserAgent != "" {
		p.UserAgent = bc.UserAgent
	}
	if bc.Timezone != "" {
		p.Timezone = bc.Timezone
	}
	if bc.Locale != "" {
		p.Locale = bc.Locale
		if len(p.Languages) == 0 || p.Languages[0] != bc.Locale {
			p.Languages = append([]string{bc.Locale}, p.Languages...)
		}
	}
	if !bc.Mobile && bc.Width > 0 && bc.Height > 0 {
		p.Width, p.Height = int64(bc.Width), int64(bc.Height)
	}
	return p
}
