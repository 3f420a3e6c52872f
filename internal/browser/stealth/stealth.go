package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate. The target platform
// serves different markup to mobile and desktop clients, so the persona also
// decides which locator variants are likely to match.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"timezone,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	Mobile    bool     `json:"mobile"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
}

// DefaultPersona provides a realistic desktop browser profile.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"zh-CN", "zh", "en"},
	Timezone:  "Asia/Shanghai",
	Locale:    "zh-CN",
	Width:     1366,
	Height:    900,
}

// MobilePersona is a phone-class profile for platforms that gate features on it.
var MobilePersona = Persona{
	UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
	Platform:  "Linux armv8l",
	Languages: []string{"zh-CN", "zh", "en"},
	Timezone:  "Asia/Shanghai",
	Locale:    "zh-CN",
	Mobile:    true,
	Width:     412,
	Height:    915,
}

// AcceptLanguage formats the persona languages as an Accept-Language header value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	formatted := p.Languages[0]
	for i := 1; i < len(p.Languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.7 {
			q = 0.7
		}
		formatted += fmt.Sprintf(",%s;q=%.1f", p.Languages[i], q)
	}
	return formatted
}

// Apply constructs the CDP actions that make the headless browser look like
// a user-operated one with the given persona.
func Apply(persona Persona, logger *zap.Logger) chromedp.Tasks {
	l := logger.Named("stealth")
	l.Debug("Applying browser persona.",
		zap.String("userAgent", persona.UserAgent),
		zap.Bool("mobile", persona.Mobile),
	)

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")),
		injectEvasionScript(persona, l),
	}

	if persona.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(persona.Timezone))
	}
	if persona.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(persona.Locale))
	}
	if al := persona.AcceptLanguage(); al != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": al}))
	}
	if persona.Width > 0 && persona.Height > 0 {
		scale := 1.0
		if persona.Mobile {
			scale = 2.625
		}
		tasks = append(tasks,
			emulation.SetDeviceMetricsOverride(persona.Width, persona.Height, scale, persona.Mobile),
		)
		if persona.Mobile {
			tasks = append(tasks, emulation.SetTouchEmulationEnabled(true))
		}
	}
	return tasks
}

// injectEvasionScript registers the evasion script with the persona embedded.
func injectEvasionScript(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		personaJSON, err := json.Marshal(persona)
		if err != nil {
			return fmt.Errorf("stealth: failed to marshal persona: %w", err)
		}
		script := BuildEvasionScript(personaJSON)
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			logger.Error("Failed to register evasion script with CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

// BuildEvasionScript prefixes the embedded evasions with the persona definition.
func BuildEvasionScript(personaJSON []byte) string {
	return fmt.Sprintf("const SCRIBE_PERSONA = %s;\n%s", personaJSON, evasionsScript)
}
