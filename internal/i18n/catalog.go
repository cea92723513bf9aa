// Package i18n provides the localization collaborator of the bot: string
// resolution per language, the category list per language, and matching of
// fixed button labels regardless of the language they were rendered in.
//
// Strings are loaded from an embedded YAML catalog. Missing keys fall back to
// the RU table and finally to the key itself, so a typo never breaks a reply.
package i18n

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

//go:embed locales.yaml
var defaultCatalog []byte

// Vars are placeholder values substituted into {name}-style templates.
type Vars map[string]any

// Catalog holds the parsed string tables.
type Catalog struct {
	texts    map[domain.Language]map[string]string
	cats     map[domain.Language][]string
	fallback domain.Language
}

type catalogFile struct {
	Categories map[string][]string          `yaml:"categories"`
	Texts      map[string]map[string]string `yaml:"texts"`
}

// Load parses a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("i18n: parse catalog: %w", err)
	}
	c := &Catalog{
		texts:    make(map[domain.Language]map[string]string, len(f.Texts)),
		cats:     make(map[domain.Language][]string, len(f.Categories)),
		fallback: domain.LangRU,
	}
	for k, tbl := range f.Texts {
		lang, ok := domain.ParseLanguage(k)
		if !ok {
			return nil, fmt.Errorf("i18n: unknown language %q in texts", k)
		}
		c.texts[lang] = tbl
	}
	fold := cases.Fold()
	for k, list := range f.Categories {
		lang, ok := domain.ParseLanguage(k)
		if !ok {
			return nil, fmt.Errorf("i18n: unknown language %q in categories", k)
		}
		seen := make(map[string]struct{}, len(list))
		for _, cat := range list {
			key := fold.String(strings.TrimSpace(cat))
			if key == "" {
				return nil, fmt.Errorf("i18n: empty category for %s", lang)
			}
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("i18n: duplicate category %q for %s", cat, lang)
			}
			seen[key] = struct{}{}
		}
		c.cats[lang] = list
	}
	if _, ok := c.texts[c.fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback language %s missing", c.fallback)
	}
	for _, lang := range domain.Languages {
		if len(c.cats[lang]) == 0 {
			return nil, fmt.Errorf("i18n: no categories for %s", lang)
		}
	}
	return c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog. It panics if the embedded file is
// malformed, which is caught by the package tests.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(defaultCatalog)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// T resolves key for lang.
func (c *Catalog) T(key string, lang domain.Language) string {
	if s, ok := c.texts[lang][key]; ok {
		return s
	}
	if s, ok := c.texts[c.fallback][key]; ok {
		return s
	}
	return key
}

// F resolves key for lang and substitutes {placeholders} from vars.
func (c *Catalog) F(key string, lang domain.Language, vars Vars) string {
	return Format(c.T(key, lang), vars)
}

// Format substitutes {name} placeholders in tmpl. Unknown placeholders are
// left as-is.
func Format(tmpl string, vars Vars) string {
	if len(vars) == 0 {
		return tmpl
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(vars[k]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Categories returns the category list for lang (nil for unknown languages).
func (c *Catalog) Categories(lang domain.Language) []string {
	return c.cats[lang]
}

// MatchCategory reports whether s is one of the categories of lang. Only the
// exact keyboard label is accepted.
func (c *Catalog) MatchCategory(lang domain.Language, s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, cat := range c.cats[lang] {
		if cat == s {
			return cat, true
		}
	}
	return "", false
}

// IsButton reports whether text equals the label of key in any language.
// Reply keyboards may outlive a language switch, so menus are matched across
// all tables.
func (c *Catalog) IsButton(key, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, lang := range domain.Languages {
		if c.T(key, lang) == text {
			return true
		}
	}
	return false
}

// StatusLabel localizes a status.
func (c *Catalog) StatusLabel(s domain.Status, lang domain.Language) string {
	switch s {
	case domain.StatusInWork:
		return c.T("card_status_work", lang)
	case domain.StatusClosed:
		return c.T("card_status_closed", lang)
	default:
		return c.T("card_status_new", lang)
	}
}

// StatusFromLabel maps a localized label (in any language) back to a status.
func (c *Catalog) StatusFromLabel(label string) (domain.Status, bool) {
	for _, st := range []domain.Status{domain.StatusNew, domain.StatusInWork, domain.StatusClosed} {
		for _, lang := range domain.Languages {
			if c.StatusLabel(st, lang) == label {
				return st, true
			}
		}
	}
	return 0, false
}

var matcher = language.NewMatcher([]language.Tag{
	language.Russian,
	language.Uzbek,
	language.English,
})

// Detect maps a client language code (e.g. "uz-Latn-UZ", "en-US") to the
// closest supported language, defaulting to RU.
func Detect(code string) domain.Language {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.LangRU
	}
	tag, err := language.Parse(code)
	if err != nil {
		return domain.LangRU
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return domain.LangRU
	}
	return domain.Languages[idx]
}
