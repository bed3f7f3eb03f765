package translate

import "strings"

// LocaleContext resolves the active locale state for one entity
// instance. Every value follows the same three-tier precedence:
// explicit per-instance override, then the entity-declared default,
// then the process-wide configuration. The context is mutable through
// its setters until a query or mutation compiles, at which point it is
// read once and treated as immutable for the rest of that operation.
type LocaleContext struct {
	cfg     *Config
	locales LocaleProvider

	entityLocale   string
	entityFallback string

	entityOnlyTranslated *bool
	entityWithFallback   *bool

	localeOverride   string
	fallbackOverride string
	onlyTranslated   *bool
	withFallback     *bool

	localeChanged bool
}

func newLocaleContext(cfg *Config, locales LocaleProvider, meta Meta) *LocaleContext {
	return &LocaleContext{
		cfg:                  cfg,
		locales:              locales,
		entityLocale:         strings.TrimSpace(meta.Locale),
		entityFallback:       strings.TrimSpace(meta.Fallback),
		entityOnlyTranslated: meta.OnlyTranslated,
		entityWithFallback:   meta.WithFallback,
	}
}

// Locale resolves the current locale: override, entity default, then
// process configuration (provider first, static default second). An
// empty result means no locale is configured anywhere.
func (lc *LocaleContext) Locale() string {
	if lc.localeOverride != "" {
		return lc.localeOverride
	}
	if lc.entityLocale != "" {
		return lc.entityLocale
	}
	if lc.locales != nil {
		if code := strings.TrimSpace(lc.locales.CurrentLocale()); code != "" {
			return code
		}
	}
	return lc.cfg.DefaultLocale
}

// Fallback resolves the fallback locale with the same precedence.
func (lc *LocaleContext) Fallback() string {
	if lc.fallbackOverride != "" {
		return lc.fallbackOverride
	}
	if lc.entityFallback != "" {
		return lc.entityFallback
	}
	if lc.locales != nil {
		if code := strings.TrimSpace(lc.locales.FallbackLocale()); code != "" {
			return code
		}
	}
	return lc.cfg.DefaultFallback
}

// SetLocale overrides the current locale and marks the context
// locale-changed: any translatable attribute present on the instance is
// considered dirty on the next write, since it must be persisted under
// the new locale key.
func (lc *LocaleContext) SetLocale(locale string) *LocaleContext {
	locale = strings.TrimSpace(locale)
	if locale != "" && locale != lc.Locale() {
		lc.localeChanged = true
	}
	lc.localeOverride = locale
	return lc
}

// SetFallback overrides the fallback locale.
func (lc *LocaleContext) SetFallback(locale string) *LocaleContext {
	lc.fallbackOverride = strings.TrimSpace(locale)
	return lc
}

// OnlyTranslated reports whether result sets are restricted to rows
// possessing a translation.
func (lc *LocaleContext) OnlyTranslated() bool {
	if lc.onlyTranslated != nil {
		return *lc.onlyTranslated
	}
	if lc.entityOnlyTranslated != nil {
		return *lc.entityOnlyTranslated
	}
	return lc.cfg.OnlyTranslated
}

// SetOnlyTranslated overrides the only-translated flag.
func (lc *LocaleContext) SetOnlyTranslated(v bool) *LocaleContext {
	lc.onlyTranslated = &v
	return lc
}

// WithFallback reports whether the fallback join is enabled.
func (lc *LocaleContext) WithFallback() bool {
	if lc.withFallback != nil {
		return *lc.withFallback
	}
	if lc.entityWithFallback != nil {
		return *lc.entityWithFallback
	}
	return lc.cfg.WithFallback
}

// SetWithFallback overrides the with-fallback flag.
func (lc *LocaleContext) SetWithFallback(v bool) *LocaleContext {
	lc.withFallback = &v
	return lc
}

// ShouldFallback reports whether a fallback join makes sense for the
// candidate locale. It is false when fallback is disabled, when no
// fallback locale is configured, or when the candidate already equals
// the fallback locale, which would self-join the same locale twice.
func (lc *LocaleContext) ShouldFallback(locale string) bool {
	if !lc.WithFallback() {
		return false
	}
	fallback := lc.Fallback()
	if fallback == "" {
		return false
	}
	if locale == "" {
		locale = lc.Locale()
	}
	return locale != fallback
}

// LocaleChanged reports whether SetLocale moved the instance to a new
// locale since construction or the last ResetLocaleChanged.
func (lc *LocaleContext) LocaleChanged() bool {
	return lc.localeChanged
}

// ResetLocaleChanged clears the locale-changed mark, typically after a
// successful write persisted the instance under the new locale.
func (lc *LocaleContext) ResetLocaleChanged() {
	lc.localeChanged = false
}

func (lc *LocaleContext) clone() *LocaleContext {
	copied := *lc
	return &copied
}
