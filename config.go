package translate

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// LocaleProvider supplies the process-wide current and fallback locale.
// Host applications typically back this with their request-scoped locale
// negotiation; the engine only consults it when neither the entity nor
// the instance declares a locale.
type LocaleProvider interface {
	CurrentLocale() string
	FallbackLocale() string
}

// StaticLocales is a LocaleProvider pinned to fixed codes.
type StaticLocales struct {
	Current  string
	Fallback string
}

func (s StaticLocales) CurrentLocale() string  { return s.Current }
func (s StaticLocales) FallbackLocale() string { return s.Fallback }

// Config carries the process-wide translation defaults. Construct it
// once at startup with DefaultConfig, adjust, and hand it to New; the
// per-instance override fields live on each Entity's LocaleContext.
type Config struct {
	// TableSuffix is appended to a base table name to form its
	// translation table name.
	TableSuffix string
	// LocaleColumn names the locale discriminator column on every
	// translation table.
	LocaleColumn string
	// TempTablePrefix marks synthetic/temporary relations; queries
	// against tables carrying the prefix skip translation rewriting.
	TempTablePrefix string
	// OnlyTranslated restricts result sets to rows possessing a
	// translation in the resolved locale(s) by default.
	OnlyTranslated bool
	// WithFallback enables the fallback-locale join by default.
	WithFallback bool
	// DefaultLocale and DefaultFallback are static process defaults,
	// consulted after the Locales provider (when present).
	DefaultLocale   string
	DefaultFallback string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		TableSuffix:     "_i18n",
		LocaleColumn:    "locale",
		TempTablePrefix: "temp_",
		OnlyTranslated:  false,
		WithFallback:    true,
	}
}

// Validate checks the structural fields. Locale availability is not
// validated here: a missing locale surfaces as a ConfigurationError at
// first resolution, since providers may be registered later in startup.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.TableSuffix, validation.Required),
		validation.Field(&c.LocaleColumn, validation.Required),
		validation.Field(&c.TempTablePrefix, validation.Required),
	)
	return wrapConfigError(err)
}
