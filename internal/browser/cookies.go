package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// CookieJar persists browser cookies across runs so the storefront sees
// a returning visitor instead of a fresh profile every time.
type CookieJar struct {
	path   string
	logger zerolog.Logger
}

// storedCookie is the serializable cookie form
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// NewCookieJar creates a cookie jar backed by a JSON file
func NewCookieJar(path string, logger zerolog.Logger) *CookieJar {
	return &CookieJar{
		path:   path,
		logger: logger.With().Str("component", "cookies").Logger(),
	}
}

// Save writes the browser's current cookies to disk
func (j *CookieJar) Save(browser *rod.Browser) error {
	cookies, err := browser.GetCookies()
	if err != nil {
		return fmt.Errorf("failed to get cookies: %w", err)
	}

	stored := make([]storedCookie, len(cookies))
	for i, c := range cookies {
		sameSite := "Lax"
		if c.SameSite == proto.NetworkCookieSameSiteStrict {
			sameSite = "Strict"
		} else if c.SameSite == proto.NetworkCookieSameSiteNone {
			sameSite = "None"
		}

		stored[i] = storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSite,
		}
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("failed to create cookies directory: %w", err)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := os.WriteFile(j.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookies file: %w", err)
	}

	j.logger.Info().
		Int("count", len(cookies)).
		Str("path", j.path).
		Msg("Cookies saved")

	return nil
}

// Load restores saved cookies into the browser, skipping expired ones
func (j *CookieJar) Load(browser *rod.Browser) error {
	if _, err := os.Stat(j.path); os.IsNotExist(err) {
		j.logger.Debug().Msg("No saved cookies found")
		return nil
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		return fmt.Errorf("failed to read cookies file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse cookies: %w", err)
	}

	now := time.Now()
	valid := make([]*proto.NetworkCookieParam, 0, len(stored))

	for _, c := range stored {
		if c.Expires > 0 && c.Expires < float64(now.Unix()) {
			continue
		}

		sameSite := proto.NetworkCookieSameSiteLax
		switch c.SameSite {
		case "Strict":
			sameSite = proto.NetworkCookieSameSiteStrict
		case "None":
			sameSite = proto.NetworkCookieSameSiteNone
		}

		valid = append(valid, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSite,
		})
	}

	if len(valid) > 0 {
		if err := browser.SetCookies(valid); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	j.logger.Info().
		Int("loaded", len(valid)).
		Int("total", len(stored)).
		Msg("Cookies loaded")

	return nil
}

// Clear deletes the saved cookie file
func (j *CookieJar) Clear() error {
	if _, err := os.Stat(j.path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(j.path); err != nil {
		return fmt.Errorf("failed to delete cookies file: %w", err)
	}
	j.logger.Info().Msg("Cookies cleared")
	return nil
}
