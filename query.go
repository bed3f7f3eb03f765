package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

var comparisonOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"like": {}, "not like": {}, "ilike": {}, "in": {}, "not in": {},
	"is": {}, "is not": {},
}

func isComparisonOperator(token string) bool {
	_, ok := comparisonOperators[strings.ToLower(strings.TrimSpace(token))]
	return ok
}

// queryOp is a deferred column-targeting operation. Deferral lets the
// caller switch locales or bypass rewriting after the op was recorded;
// everything resolves against one scope snapshot at finalize time.
type queryOp func(q *bun.SelectQuery, state scopeState, translated bool) (*bun.SelectQuery, error)

// Query wraps a bun select with translation awareness: column-targeting
// calls on translatable attribute names are redirected to their
// translation-aware variants while everything else passes through to
// bun untouched.
type Query struct {
	entity          *Entity
	lc              *LocaleContext
	q               *bun.SelectQuery
	ops             []queryOp
	err             error
	translated      bool
	explicitColumns bool
	eager           bool
}

// Query starts a translation-aware select against the entity's base
// table. The query carries its own copy of the locale context, so
// per-query locale switches never leak back into the entity.
func (en *Entity) Query() *Query {
	q := en.db.NewSelect().TableExpr("? AS ?", bun.Ident(en.meta.Table), bun.Ident(en.baseAlias()))
	return &Query{
		entity:     en,
		lc:         en.locale.clone(),
		q:          q,
		translated: true,
	}
}

func (tq *Query) fail(err error) *Query {
	if tq.err == nil {
		tq.err = err
	}
	return tq
}

func (tq *Query) push(op queryOp) *Query {
	tq.ops = append(tq.ops, op)
	return tq
}

// Where adds a predicate. Translatable columns compile against the
// coalesced (or primary-locale) translation expression with the value
// always bound, never interpolated. The argument shorthand follows the
// host convention: one argument is an equality value, two are operator
// and value. A lone token that happens to be a recognized operator
// fails with InvalidOperatorError instead of being compared as a value.
func (tq *Query) Where(column string, args ...any) *Query {
	return tq.where(column, "AND", args)
}

// OrWhere is Where with OR conjunction.
func (tq *Query) OrWhere(column string, args ...any) *Query {
	return tq.where(column, "OR", args)
}

func (tq *Query) where(column, boolean string, args []any) *Query {
	op, value, err := normalizeWhereArgs(column, args)
	if err != nil {
		return tq.fail(err)
	}
	return tq.push(func(q *bun.SelectQuery, state scopeState, translated bool) (*bun.SelectQuery, error) {
		if translated && !state.skip && tq.entity.IsTranslatable(column) {
			frag, err := tq.entity.translatedColumnExpr(column, state)
			if err != nil {
				return nil, err
			}
			return applyComparison(q, frag, op, value, boolean), nil
		}
		return applyComparison(q, tq.entity.engine.compiler.columnRef(column), op, value, boolean), nil
	})
}

// WhereOriginal forces a predicate to bypass translation rewriting and
// target the raw column name as-is.
func (tq *Query) WhereOriginal(column string, args ...any) *Query {
	op, value, err := normalizeWhereArgs(column, args)
	if err != nil {
		return tq.fail(err)
	}
	return tq.push(func(q *bun.SelectQuery, _ scopeState, _ bool) (*bun.SelectQuery, error) {
		return applyComparison(q, tq.entity.engine.compiler.columnRef(column), op, value, "AND"), nil
	})
}

// OrderBy orders by a column, redirecting translatable columns to the
// coalesced expression when fallback is enabled.
func (tq *Query) OrderBy(column, direction string) *Query {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = "ASC"
	}
	if dir != "ASC" && dir != "DESC" {
		return tq.fail(fmt.Errorf("translate: invalid order direction %q", direction))
	}
	return tq.push(func(q *bun.SelectQuery, state scopeState, translated bool) (*bun.SelectQuery, error) {
		if translated && !state.skip && tq.entity.IsTranslatable(column) {
			frag, err := tq.entity.translatedColumnExpr(column, state)
			if err != nil {
				return nil, err
			}
			return q.OrderExpr("? "+dir, bun.Safe(frag)), nil
		}
		return q.OrderExpr("? "+dir, bun.Safe(tq.entity.engine.compiler.columnRef(column))), nil
	})
}

// Column sets an explicit select list. Translatable names compile to
// their aliased translation expressions; the base wildcard is no longer
// added implicitly once an explicit list exists.
func (tq *Query) Column(columns ...string) *Query {
	tq.explicitColumns = true
	return tq.push(func(q *bun.SelectQuery, state scopeState, translated bool) (*bun.SelectQuery, error) {
		for _, column := range columns {
			if translated && !state.skip && tq.entity.IsTranslatable(column) {
				// Already appended by the scope's select rewrite.
				continue
			}
			q = q.ColumnExpr("?", bun.Safe(tq.entity.engine.compiler.columnRef(column)))
		}
		return q, nil
	})
}

// Limit passes through to bun.
func (tq *Query) Limit(n int) *Query {
	tq.q = tq.q.Limit(n)
	return tq
}

// Offset passes through to bun.
func (tq *Query) Offset(n int) *Query {
	tq.q = tq.q.Offset(n)
	return tq
}

// Apply hands the underlying bun query to fn for operations this
// wrapper does not cover. fn runs before deferred translated ops.
func (tq *Query) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) *Query {
	if fn != nil {
		tq.q = fn(tq.q)
	}
	return tq
}

// TranslateInto switches the active locale for this query only.
func (tq *Query) TranslateInto(locale string) *Query {
	tq.lc.SetLocale(locale)
	return tq
}

// WithFallback toggles the fallback join for this query.
func (tq *Query) WithFallback(v bool) *Query {
	tq.lc.SetWithFallback(v)
	return tq
}

// OnlyTranslated restricts this query to rows possessing a translation
// in the resolved locale(s).
func (tq *Query) OnlyTranslated() *Query {
	tq.lc.SetOnlyTranslated(true)
	return tq
}

// WithUntranslated includes rows without any translation; translatable
// columns surface as null for them.
func (tq *Query) WithUntranslated() *Query {
	tq.lc.SetOnlyTranslated(false)
	return tq
}

// WithoutTranslations disables translation rewriting entirely for this
// query; all columns compile as-is against the base table.
func (tq *Query) WithoutTranslations() *Query {
	tq.translated = false
	return tq
}

// WithAllTranslations eager-loads every locale's translation row for
// each result. The collection is attached by ScanMaps under the
// "translations" key, keyed by locale.
func (tq *Query) WithAllTranslations() *Query {
	tq.eager = true
	return tq
}

func (tq *Query) finalize() (*bun.SelectQuery, scopeState, error) {
	if tq.err != nil {
		return nil, scopeState{}, tq.err
	}

	state := scopeState{skip: true}
	if tq.translated {
		resolved, err := tq.entity.resolveScope(tq.lc)
		if err != nil {
			return nil, scopeState{}, err
		}
		state = resolved
	}

	q := tq.q
	if tq.translated && !state.skip {
		applied, err := tq.entity.applyScope(q, state, tq.explicitColumns)
		if err != nil {
			return nil, scopeState{}, err
		}
		q = applied
	}
	for _, op := range tq.ops {
		next, err := op(q, state, tq.translated)
		if err != nil {
			return nil, scopeState{}, err
		}
		q = next
	}
	return q, state, nil
}

// Unwrap finalizes the rewrite and returns the underlying bun query.
func (tq *Query) Unwrap() (*bun.SelectQuery, error) {
	q, _, err := tq.finalize()
	return q, err
}

// Scan executes the query into dest.
func (tq *Query) Scan(ctx context.Context, dest ...any) error {
	q, _, err := tq.finalize()
	if err != nil {
		return err
	}
	return q.Scan(ctx, dest...)
}

// ScanMaps executes the query into a slice of column maps, attaching
// the eager translation collection when WithAllTranslations was
// requested.
func (tq *Query) ScanMaps(ctx context.Context) ([]map[string]any, error) {
	q, _, err := tq.finalize()
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	if !tq.eager || len(rows) == 0 {
		return rows, nil
	}

	pk := tq.entity.primaryKey()
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[pk]; ok && id != nil {
			ids = append(ids, id)
		}
	}
	grouped, err := tq.entity.translationsForIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, ok := row[pk]
		if !ok || id == nil {
			continue
		}
		row["translations"] = grouped[keyString(id)]
	}
	return rows, nil
}

// Count executes a count over the rewritten query.
func (tq *Query) Count(ctx context.Context) (int, error) {
	q, _, err := tq.finalize()
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

// Exists reports whether the rewritten query matches any row.
func (tq *Query) Exists(ctx context.Context) (bool, error) {
	q, _, err := tq.finalize()
	if err != nil {
		return false, err
	}
	return q.Exists(ctx)
}

func normalizeWhereArgs(column string, args []any) (string, any, error) {
	switch len(args) {
	case 1:
		if token, ok := args[0].(string); ok && isComparisonOperator(token) {
			return "", nil, &InvalidOperatorError{Column: column, Operator: token, Reason: "operator requires a value"}
		}
		// Shorthand: a lone non-operator argument is an equality value.
		return "=", args[0], nil
	case 2:
		token, ok := args[0].(string)
		if !ok {
			return "", nil, &InvalidOperatorError{Column: column, Reason: "operator must be a string"}
		}
		if !isComparisonOperator(token) {
			return "", nil, &InvalidOperatorError{Column: column, Operator: token, Reason: "unrecognized operator"}
		}
		return strings.ToLower(strings.TrimSpace(token)), args[1], nil
	default:
		return "", nil, &InvalidOperatorError{Column: column, Reason: "expected a value, or an operator and a value"}
	}
}

func applyComparison(q *bun.SelectQuery, frag, op string, value any, boolean string) *bun.SelectQuery {
	upper := strings.ToUpper(op)
	cond := "? " + upper + " ?"
	args := []any{bun.Safe(frag), value}
	switch op {
	case "in", "not in":
		cond = "? " + upper + " (?)"
		args[1] = bun.In(value)
	}
	if boolean == "OR" {
		return q.WhereOr(cond, args...)
	}
	return q.Where(cond, args...)
}
