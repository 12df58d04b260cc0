// Package settings keeps the per-browser preferences (language, theme,
// accessibility mode) in a signed cookie and resolves the response language
// for every request from them.
package settings

import (
	"errors"
	"net/http"

	"HealthAI/internal/config"
	"HealthAI/internal/utility"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	sessionName = "healthai-settings"
	contextKey  = "settings"
)

type Theme string

const (
	ThemeBlue   Theme = "Blue"
	ThemeGreen  Theme = "Green"
	ThemePurple Theme = "Purple"
	ThemeOrange Theme = "Orange"
)

var ErrInvalidTheme = errors.New("theme must be Blue, Green, Purple or Orange")

// Settings are the user's display preferences.
type Settings struct {
	Language      string `json:"language"`
	Theme         Theme  `json:"theme"`
	Accessibility bool   `json:"accessibility_mode"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Language      *string `json:"language"`
	Theme         *Theme  `json:"theme" validate:"omitnil,oneof=Blue Green Purple Orange"`
	Accessibility *bool   `json:"accessibility_mode"`
}

// LanguageMatcher maps free-form language input to a supported code.
type LanguageMatcher interface {
	Match(input string) string
}

// Manager reads and writes Settings and implements utility.LanguageResolver.
type Manager struct {
	store    sessions.Store
	matcher  LanguageMatcher
	defaults Settings
}

// NewManager builds the cookie store. With no secret configured a random key
// is generated, so settings do not survive a restart.
func NewManager(cfg config.SessionConfig, matcher LanguageMatcher, defaultLanguage string) *Manager {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		log.Warn().Msg("session.secret not set, settings cookies will not survive a restart")
		secret = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(secret)
	store.MaxAge(cfg.MaxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.Secure
	store.Options.SameSite = http.SameSiteLaxMode

	return &Manager{
		store:   store,
		matcher: matcher,
		defaults: Settings{
			Language: defaultLanguage,
			Theme:    ThemeBlue,
		},
	}
}

// Middleware loads the settings once per request.
func (m *Manager) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(contextKey, m.read(c))
		return next(c)
	}
}

// Load returns the request's settings, falling back to the defaults.
func (m *Manager) Load(c echo.Context) Settings {
	if s, ok := c.Get(contextKey).(Settings); ok {
		return s
	}
	s := m.read(c)
	c.Set(contextKey, s)
	return s
}

func (m *Manager) read(c echo.Context) Settings {
	s := m.defaults
	// A cookie we cannot decode (old key, tampering) just means defaults.
	session, _ := m.store.Get(c.Request(), sessionName)

	if lang, ok := session.Values["language"].(string); ok && lang != "" {
		s.Language = m.matcher.Match(lang)
	} else if accept := c.Request().Header.Get("Accept-Language"); accept != "" {
		s.Language = m.matcher.Match(accept)
	}
	if theme, ok := session.Values["theme"].(string); ok && validTheme(Theme(theme)) {
		s.Theme = Theme(theme)
	}
	if a, ok := session.Values["accessibility"].(bool); ok {
		s.Accessibility = a
	}
	return s
}

// Save writes s to the cookie.
func (m *Manager) Save(c echo.Context, s Settings) error {
	session, _ := m.store.Get(c.Request(), sessionName)
	session.Values["language"] = s.Language
	session.Values["theme"] = string(s.Theme)
	session.Values["accessibility"] = s.Accessibility
	if err := session.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	c.Set(contextKey, s)
	return nil
}

// Language returns override matched to a supported code when set, else the
// stored language.
func (m *Manager) Language(c echo.Context, override string) string {
	if override != "" {
		return m.matcher.Match(override)
	}
	return m.Load(c).Language
}

// Apply merges req into s.
func (m *Manager) Apply(s Settings, req UpdateRequest) (Settings, error) {
	if req.Language != nil {
		s.Language = m.matcher.Match(*req.Language)
	}
	if req.Theme != nil {
		if !validTheme(*req.Theme) {
			return s, ErrInvalidTheme
		}
		s.Theme = *req.Theme
	}
	if req.Accessibility != nil {
		s.Accessibility = *req.Accessibility
	}
	return s, nil
}

func validTheme(t Theme) bool {
	switch t {
	case ThemeBlue, ThemeGreen, ThemePurple, ThemeOrange:
		return true
	}
	return false
}

/* ====================================================================
                        Handlers
==================================================================== */

// GetHandler handles GET /settings
func (m *Manager) GetHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, m.Load(c))
}

// PutHandler handles PUT /settings
func (m *Manager) PutHandler(c echo.Context) error {
	var req UpdateRequest
	if err := utility.BindAndValidate(c, &req); err != nil {
		return utility.ErrorJSON(c, http.StatusBadRequest, err.Error())
	}

	s, err := m.Apply(m.Load(c), req)
	if err != nil {
		return utility.ErrorJSON(c, http.StatusBadRequest, err.Error())
	}
	if err := m.Save(c, s); err != nil {
		utility.GetLogger(c).Error().Err(err).Msg("Failed to save settings cookie")
		return utility.ErrorJSON(c, http.StatusInternalServerError, "Failed to save settings")
	}

	utility.GetLogger(c).Info().Str("language", s.Language).Str("theme", string(s.Theme)).Msg("Settings updated")
	return c.JSON(http.StatusOK, s)
}
