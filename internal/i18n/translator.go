// Package i18n resolves UI and error strings for the supported languages.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLanguage is used whenever a key or language is missing.
const DefaultLanguage = "en"

// Supported lists the language codes the service can answer in, in the order
// the settings screen offers them.
var Supported = []string{"en", "es", "fr", "de", "hi", "ta", "ru", "ar", "zh", "ja", "pt"}

// Translator looks up dotted keys ("calendar.fallbackSummary") per language.
// It is read-only after construction and safe for concurrent use.
type Translator struct {
	fallback string
	catalogs map[string]map[string]string
	matcher  language.Matcher
	tags     []language.Tag
}

// New loads the embedded catalogs. fallback is the language consulted when a
// key is missing from the requested one; an empty value means English.
func New(fallback string) (*Translator, error) {
	if fallback == "" {
		fallback = DefaultLanguage
	}

	tr := &Translator{
		fallback: fallback,
		catalogs: make(map[string]map[string]string, len(Supported)),
	}

	for _, code := range Supported {
		raw, err := localeFS.ReadFile(path.Join("locales", code+".json"))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", code, err)
		}

		var tree map[string]interface{}
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", code, err)
		}

		flat := make(map[string]string)
		flatten("", tree, flat)
		tr.catalogs[code] = flat
		tr.tags = append(tr.tags, language.Make(code))
	}

	if !tr.IsSupported(fallback) {
		return nil, fmt.Errorf("fallback language %q is not supported", fallback)
	}

	tr.matcher = language.NewMatcher(tr.tags)
	return tr, nil
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]interface{}:
			flatten(key, val, out)
		}
	}
}

// T returns the string for key in lang, then in the fallback language, then
// the key itself. Every {name} in the result is replaced from placeholders.
func (tr *Translator) T(lang, key string, placeholders map[string]string) string {
	text, ok := tr.Lookup(lang, key)
	if !ok {
		text = key
	}
	for name, value := range placeholders {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Lookup is T without placeholders that also reports whether any catalog
// had the key.
func (tr *Translator) Lookup(lang, key string) (string, bool) {
	if text, ok := tr.catalogs[lang][key]; ok {
		return text, true
	}
	if text, ok := tr.catalogs[tr.fallback][key]; ok {
		return text, true
	}
	return "", false
}

// Match maps any BCP-47-ish input ("es-MX", "pt_BR", "en-US,en;q=0.9") to a
// supported code, or the fallback language when nothing is close.
func (tr *Translator) Match(input string) string {
	input = strings.TrimSpace(strings.ReplaceAll(input, "_", "-"))
	if input == "" {
		return tr.fallback
	}

	if tr.IsSupported(input) {
		return input
	}

	desired, _, err := language.ParseAcceptLanguage(input)
	if err != nil || len(desired) == 0 {
		return tr.fallback
	}

	_, index, confidence := tr.matcher.Match(desired...)
	if confidence == language.No {
		return tr.fallback
	}
	return Supported[index]
}

// IsSupported reports whether code is one of the Supported languages.
func (tr *Translator) IsSupported(code string) bool {
	_, ok := tr.catalogs[code]
	return ok
}

// Fallback returns the language used when nothing else matches.
func (tr *Translator) Fallback() string {
	return tr.fallback
}

// LanguageName returns the English name of a language code ("es" → "Spanish"),
// which is the form the model follows most reliably in prompts.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return "English"
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return "English"
	}
	return name
}
