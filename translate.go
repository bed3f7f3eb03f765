// Package translate augments the bun query builder with locale-aware
// attribute storage: non-translated attributes live in an entity's base
// table while translated attributes live in a companion table keyed by
// (foreign key, locale). Queries are rewritten with the joins and
// null-coalescing expressions needed to expose translated columns as if
// they were native, resolving the correct locale and falling back to a
// secondary locale when a translation is missing. Mutations are split
// across the two physical tables with per-locale upsert semantics.
package translate

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// Engine owns the process-wide translation state: configuration,
// attribute classification, and dialect fragment compilation. It is
// safe for concurrent use; per-entity locale state lives on Entity.
type Engine struct {
	db         *bun.DB
	cfg        Config
	locales    LocaleProvider
	classifier *classifier
	compiler   fragmentCompiler
	log        Logger
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithLocaleProvider registers the host's locale getters.
func WithLocaleProvider(provider LocaleProvider) Option {
	return func(e *Engine) { e.locales = provider }
}

// WithCacheProvider backs the attribute classification cache with an
// external store.
func WithCacheProvider(cache CacheProvider) Option {
	return func(e *Engine) { e.classifier.cache = cache }
}

// WithLogger supplies a logger; defaults to a no-op implementation.
func WithLogger(log Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
			e.classifier.log = log
		}
	}
}

// WithIntrospector overrides the schema introspector, primarily for
// hosts that already cache their catalog.
func WithIntrospector(in SchemaIntrospector) Option {
	return func(e *Engine) { e.classifier.introspector = in }
}

// New validates cfg and builds an engine on db.
func New(db *bun.DB, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		db:       db,
		cfg:      cfg,
		compiler: newFragmentCompiler(db),
		log:      NoOp(),
	}
	e.classifier = newClassifier(NewIntrospector(db), nil, e.log)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DB exposes the underlying bun handle.
func (e *Engine) DB() *bun.DB { return e.db }

// Config returns the process defaults the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// InvalidateAttributes evicts the cached attribute classification for a
// base table. Schema changes on translation tables require this; the
// cache is never invalidated automatically.
func (e *Engine) InvalidateAttributes(ctx context.Context, table string) error {
	return e.classifier.Invalidate(ctx, translationTableFor(table, e.cfg.TableSuffix))
}

// Meta declares how one entity maps onto its base and translation
// tables. Only Table is required; everything else has conventional
// defaults.
type Meta struct {
	// Table is the base table name.
	Table string
	// Alias qualifies base columns in generated SQL; defaults to Table.
	Alias string
	// PrimaryKey is the base table's key column; defaults to "id". The
	// translation table's own surrogate key is assumed to share the
	// name and is excluded from the translatable attribute set.
	PrimaryKey string
	// ForeignKey is the translation table column referencing the base
	// primary key; defaults to the naively singularized table name plus
	// "_id" (tags -> tag_id). Set it explicitly for irregular plurals.
	ForeignKey string
	// TranslationTable overrides the derived "<table><suffix>" name.
	TranslationTable string
	// Attributes declares the translatable attribute names explicitly,
	// bypassing schema introspection.
	Attributes []string
	// Locale and Fallback are entity-level locale defaults, consulted
	// between per-instance overrides and process configuration.
	Locale   string
	Fallback string
	// OnlyTranslated and WithFallback are entity-level flag defaults;
	// nil means undeclared.
	OnlyTranslated *bool
	WithFallback   *bool
}

// Entity binds Meta to the engine with its own LocaleContext. An Entity
// is owned by a single logical caller; share the Engine, not entities.
type Entity struct {
	engine *Engine
	db     bun.IDB
	meta   Meta
	locale *LocaleContext
	attrs  []string
}

// Entity resolves meta defaults, classifies translatable attributes
// (declared list first, then translation-table introspection, cached),
// and returns a bound entity.
func (e *Engine) Entity(ctx context.Context, meta Meta) (*Entity, error) {
	meta.Table = strings.TrimSpace(meta.Table)
	if meta.Table == "" {
		return nil, ErrTableRequired
	}
	if meta.Alias == "" {
		meta.Alias = meta.Table
	}
	if meta.PrimaryKey == "" {
		meta.PrimaryKey = "id"
	}
	if meta.ForeignKey == "" {
		meta.ForeignKey = defaultForeignKey(meta.Table)
	}
	if meta.TranslationTable == "" {
		meta.TranslationTable = translationTableFor(meta.Table, e.cfg.TableSuffix)
	}

	drop := []string{meta.ForeignKey, e.cfg.LocaleColumn, meta.PrimaryKey}
	attrs := e.classifier.translatableAttributes(ctx, meta.TranslationTable, meta.Attributes, drop)

	return &Entity{
		engine: e,
		db:     e.db,
		meta:   meta,
		locale: newLocaleContext(&e.cfg, e.locales, meta),
		attrs:  attrs,
	}, nil
}

// WithDB rebinds the entity to another bun handle, typically a bun.Tx,
// so a logical write can run atomically inside a caller-owned
// transaction.
func (en *Entity) WithDB(idb bun.IDB) *Entity {
	copied := *en
	copied.db = idb
	copied.locale = en.locale.clone()
	return &copied
}

// LocaleContext exposes the per-instance locale state.
func (en *Entity) LocaleContext() *LocaleContext { return en.locale }

// TranslatableAttributes returns the resolved translatable attribute
// names in classification order.
func (en *Entity) TranslatableAttributes() []string {
	return append([]string(nil), en.attrs...)
}

// IsTranslatable reports whether column (bare or qualified) names a
// translatable attribute.
func (en *Entity) IsTranslatable(column string) bool {
	if isSubExpression(column) {
		return false
	}
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		column = column[i+1:]
	}
	for _, attr := range en.attrs {
		if attr == column {
			return true
		}
	}
	return false
}

func (en *Entity) baseAlias() string        { return en.meta.Alias }
func (en *Entity) primaryKey() string       { return en.meta.PrimaryKey }
func (en *Entity) foreignKey() string       { return en.meta.ForeignKey }
func (en *Entity) translationTable() string { return en.meta.TranslationTable }

func (en *Entity) translationAlias(fallback bool) string {
	if fallback {
		return en.meta.TranslationTable + fallbackAliasSuffix
	}
	return en.meta.TranslationTable
}

// translationTableFor derives the translation table name, tolerating a
// base name that already carries the suffix.
func translationTableFor(table, suffix string) string {
	if strings.HasSuffix(table, suffix) {
		return table
	}
	return table + suffix
}

// defaultForeignKey derives a conventional foreign key column from the
// base table name: a trailing "s" is trimmed and "_id" appended.
func defaultForeignKey(table string) string {
	return strings.TrimSuffix(table, "s") + "_id"
}
