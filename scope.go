package translate

import (
	"strings"

	"github.com/uptrace/bun"
)

// scopeState is the locale context resolved once per operation. It is
// immutable for the rest of that operation's compilation.
type scopeState struct {
	locale       string
	fallback     string
	withFallback bool
	only         bool
	skip         bool
}

// resolveScope reads the locale context into an immutable snapshot. The
// current locale is required; translation rewriting is skipped entirely
// for synthetic relations carrying the temp-table prefix and for
// entities with no translatable attributes.
func (en *Entity) resolveScope(lc *LocaleContext) (scopeState, error) {
	locale := lc.Locale()
	if locale == "" {
		return scopeState{}, &ConfigurationError{Capability: "current locale"}
	}
	state := scopeState{
		locale: locale,
		only:   lc.OnlyTranslated(),
	}
	if lc.ShouldFallback(locale) {
		state.withFallback = true
		state.fallback = lc.Fallback()
	}
	if strings.HasPrefix(en.meta.Table, en.engine.cfg.TempTablePrefix) {
		state.skip = true
	}
	return state, nil
}

// applyScope mutates q with translation awareness: the locale-filtered
// join to the translation table, the optional fallback self-join under
// a distinct alias, the only-translated restriction, and the select
// list rewrite exposing each translatable attribute under its own name.
func (en *Entity) applyScope(q *bun.SelectQuery, state scopeState, explicitColumns bool) (*bun.SelectQuery, error) {
	if state.skip || len(en.attrs) == 0 {
		return q, nil
	}

	cfg := en.engine.cfg
	comp := en.engine.compiler
	alias := en.translationAlias(false)
	fk := en.foreignKey()

	// An inner join is the cheapest only-translated filter, but it is
	// only correct when no fallback rows could satisfy the restriction.
	join := "LEFT JOIN"
	if !state.withFallback && state.only {
		join = "INNER JOIN"
	}
	q = q.Join(join+" ? AS ? ON ?.? = ?.? AND ?.? = ?",
		bun.Ident(en.translationTable()), bun.Ident(alias),
		bun.Ident(alias), bun.Ident(fk),
		bun.Ident(en.baseAlias()), bun.Ident(en.primaryKey()),
		bun.Ident(alias), bun.Ident(cfg.LocaleColumn), state.locale)

	fbAlias := en.translationAlias(true)
	if state.withFallback {
		q = q.Join("LEFT JOIN ? AS ? ON ?.? = ?.? AND ?.? = ?",
			bun.Ident(en.translationTable()), bun.Ident(fbAlias),
			bun.Ident(fbAlias), bun.Ident(fk),
			bun.Ident(en.baseAlias()), bun.Ident(en.primaryKey()),
			bun.Ident(fbAlias), bun.Ident(cfg.LocaleColumn), state.fallback)

		if state.only {
			// A translation must exist in at least one joined locale;
			// filtering either join directly would drop rows whose
			// translation lives only in the other.
			frag, err := comp.coalesce(comp.ident(alias, fk), comp.ident(fbAlias, fk), "")
			if err != nil {
				return nil, err
			}
			q = q.Where("? IS NOT NULL", bun.Safe(frag))
		}
	}

	if !explicitColumns {
		q = q.ColumnExpr("?.*", bun.Ident(en.baseAlias()))
	}
	for _, attr := range en.attrs {
		expr, err := en.translatedSelectExpr(attr, state)
		if err != nil {
			return nil, err
		}
		q = q.ColumnExpr("?", bun.Safe(expr))
	}

	en.engine.log.Debug("translate: scope applied",
		"table", en.meta.Table, "locale", state.locale,
		"fallback", state.fallback, "only_translated", state.only)
	return q, nil
}

// translatedSelectExpr renders one select-list entry for a translatable
// attribute: a plain qualified reference when fallback is off, or the
// coalesce of both locale aliases named after the attribute.
func (en *Entity) translatedSelectExpr(attr string, state scopeState) (string, error) {
	comp := en.engine.compiler
	if !state.withFallback {
		return comp.ident(en.translationAlias(false), attr) + " AS " + comp.ident(attr), nil
	}
	return comp.coalesce(
		comp.ident(en.translationAlias(false), attr),
		comp.ident(en.translationAlias(true), attr),
		attr)
}

// qualifyTranslationColumn rewrites a column reference to target the
// translation table. An explicit qualifier is redirected to the
// (possibly fallback) translation alias, detecting a qualifier that
// already carries the suffix so it is not suffixed twice; bare columns
// take the entity's own translation alias.
func (en *Entity) qualifyTranslationColumn(column string, useFallback bool) (alias, col string) {
	suffix := en.engine.cfg.TableSuffix
	if i := strings.IndexByte(column, '.'); i >= 0 {
		qualifier, name := column[:i], column[i+1:]
		base := strings.TrimSuffix(qualifier, suffix)
		alias := base + suffix
		if useFallback {
			alias += fallbackAliasSuffix
		}
		return alias, name
	}
	return en.translationAlias(useFallback), column
}

// translatedColumnExpr renders the comparable expression for a
// translatable column under the resolved scope: computed
// sub-expressions pass through, fallback-off targets the qualified
// primary-locale column, fallback-on targets the coalesced pair.
func (en *Entity) translatedColumnExpr(column string, state scopeState) (string, error) {
	if isSubExpression(column) {
		return column, nil
	}
	comp := en.engine.compiler
	alias, col := en.qualifyTranslationColumn(column, false)
	primary := comp.ident(alias, col)
	if !state.withFallback {
		return primary, nil
	}
	fbAlias, fbCol := en.qualifyTranslationColumn(column, true)
	return comp.coalesce(primary, comp.ident(fbAlias, fbCol), "")
}
