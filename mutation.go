package translate

import (
	"context"
	"fmt"
	"maps"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// WriteResult reports the two-phase outcome of a logical write. A
// partial failure is surfaced through the returned error; the result
// still carries whatever side effects persisted.
type WriteResult struct {
	// ID is the primary key of the affected base row, when known.
	ID any
	// BaseRows and TranslationRows count affected rows per table.
	BaseRows        int64
	TranslationRows int64
}

// FilterValues partitions an attribute map into the base-table and
// translation-table payloads purely by translatable membership. Values
// are not validated or copied deeply.
func (en *Entity) FilterValues(values map[string]any) (base, translated map[string]any) {
	base = make(map[string]any, len(values))
	translated = make(map[string]any, len(values))
	for key, value := range values {
		if en.IsTranslatable(key) {
			translated[key] = value
		} else {
			base[key] = value
		}
	}
	return base, translated
}

// Insert writes the base payload, resolves the new primary key, and
// writes the translation payload tagged with {foreign key, current
// locale}. An empty translation payload is a successful no-op. A base
// success followed by a translation failure returns a PartialWriteError
// carrying the surviving id; the base row is not undone here — run the
// entity through WithDB(tx) for atomicity.
func (en *Entity) Insert(ctx context.Context, values map[string]any) (*WriteResult, error) {
	base, translated := en.FilterValues(values)
	if len(base) == 0 && len(translated) == 0 {
		return nil, ErrEmptyWrite
	}
	if len(base) == 0 {
		// No base columns means no way to create the owning row.
		return nil, ErrMissingPrimaryKey
	}
	locale, err := en.requireLocale()
	if err != nil && len(translated) > 0 {
		return nil, err
	}

	result := &WriteResult{}
	result.ID = base[en.primaryKey()]

	ins := en.db.NewInsert().Model(&base).TableExpr("?", bun.Ident(en.meta.Table))
	if result.ID == nil && en.engine.compiler.name == dialect.PG {
		ins = ins.Returning("?", bun.Ident(en.primaryKey()))
		var id any
		if _, err := ins.Exec(ctx, &id); err != nil {
			return nil, err
		}
		result.ID = id
		result.BaseRows = 1
	} else {
		res, err := ins.Exec(ctx)
		if err != nil {
			return nil, err
		}
		if rows, err := res.RowsAffected(); err == nil {
			result.BaseRows = rows
		}
		if result.ID == nil {
			if id, err := res.LastInsertId(); err == nil && id != 0 {
				result.ID = id
			}
		}
	}

	if len(translated) == 0 {
		en.locale.ResetLocaleChanged()
		return result, nil
	}
	if result.ID == nil {
		return result, &PartialWriteError{
			Table: en.translationTable(),
			Stage: "translation-insert",
			Err:   ErrMissingPrimaryKey,
		}
	}

	row := maps.Clone(translated)
	row[en.foreignKey()] = result.ID
	row[en.engine.cfg.LocaleColumn] = locale
	if _, err := en.db.NewInsert().Model(&row).TableExpr("?", bun.Ident(en.translationTable())).Exec(ctx); err != nil {
		en.engine.log.Error("translate: translation insert failed after base insert",
			"table", en.translationTable(), "id", result.ID, "locale", locale, "error", err)
		return result, &PartialWriteError{
			Table: en.translationTable(),
			Stage: "translation-insert",
			ID:    result.ID,
			Err:   err,
		}
	}
	result.TranslationRows = 1
	en.locale.ResetLocaleChanged()
	return result, nil
}

// Update applies a logical update to the given ids: one batched
// statement for the base payload and, per id, an
// update-if-exists-else-insert against the translation table for the
// current locale. The locale column is dropped from any update set
// since it is part of the lookup key.
func (en *Entity) Update(ctx context.Context, values map[string]any, ids ...any) (*WriteResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoKeys
	}
	return en.update(ctx, values, ids)
}

// UpdateWhere is Update keyed by the full key projection of the
// translated (scope-filtered) query produced by build.
func (en *Entity) UpdateWhere(ctx context.Context, values map[string]any, build func(*Query) *Query) (*WriteResult, error) {
	ids, err := en.keyProjection(ctx, build)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &WriteResult{}, nil
	}
	return en.update(ctx, values, ids)
}

func (en *Entity) update(ctx context.Context, values map[string]any, ids []any) (*WriteResult, error) {
	base, translated := en.FilterValues(values)
	if len(base) == 0 && len(translated) == 0 {
		return nil, ErrEmptyWrite
	}

	result := &WriteResult{}
	if len(base) > 0 {
		res, err := en.db.NewUpdate().Model(&base).
			TableExpr("?", bun.Ident(en.meta.Table)).
			Where("? IN (?)", bun.Ident(en.primaryKey()), bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		if rows, err := res.RowsAffected(); err == nil {
			result.BaseRows = rows
		}
	}

	if len(translated) == 0 {
		en.locale.ResetLocaleChanged()
		return result, nil
	}
	locale, err := en.requireLocale()
	if err != nil {
		if result.BaseRows > 0 {
			return result, &PartialWriteError{Table: en.translationTable(), Stage: "translation-upsert", Err: err}
		}
		return nil, err
	}
	for _, id := range ids {
		if err := en.upsertTranslation(ctx, id, locale, translated); err != nil {
			en.engine.log.Error("translate: translation upsert failed",
				"table", en.translationTable(), "id", id, "locale", locale, "error", err)
			return result, &PartialWriteError{
				Table: en.translationTable(),
				Stage: "translation-upsert",
				ID:    id,
				Err:   err,
			}
		}
		result.TranslationRows++
	}
	en.locale.ResetLocaleChanged()
	return result, nil
}

// upsertTranslation updates the (id, locale) translation row in place
// when it exists and inserts a fresh row otherwise. The natural key is
// enforced here, not by a database constraint.
func (en *Entity) upsertTranslation(ctx context.Context, id any, locale string, values map[string]any) error {
	cfg := en.engine.cfg
	count, err := en.db.NewSelect().
		TableExpr("?", bun.Ident(en.translationTable())).
		Where("? = ?", bun.Ident(en.foreignKey()), id).
		Where("? = ?", bun.Ident(cfg.LocaleColumn), locale).
		Count(ctx)
	if err != nil {
		return err
	}

	if count > 0 {
		set := maps.Clone(values)
		delete(set, cfg.LocaleColumn)
		if len(set) == 0 {
			return nil
		}
		_, err := en.db.NewUpdate().Model(&set).
			TableExpr("?", bun.Ident(en.translationTable())).
			Where("? = ?", bun.Ident(en.foreignKey()), id).
			Where("? = ?", bun.Ident(cfg.LocaleColumn), locale).
			Exec(ctx)
		return err
	}

	row := maps.Clone(values)
	row[en.foreignKey()] = id
	row[cfg.LocaleColumn] = locale
	_, err = en.db.NewInsert().Model(&row).TableExpr("?", bun.Ident(en.translationTable())).Exec(ctx)
	return err
}

// Delete removes the given entities and all of their translation rows
// across every locale. The id set is narrowed through the translated
// (scope-filtered) query first, so an only-translated scope is honored;
// translation rows go first since the cascade is enforced here, not by
// the database.
func (en *Entity) Delete(ctx context.Context, ids ...any) (*WriteResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoKeys
	}
	filtered, err := en.keyProjection(ctx, func(tq *Query) *Query {
		return tq.Apply(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?.? IN (?)", bun.Ident(en.baseAlias()), bun.Ident(en.primaryKey()), bun.In(ids))
		})
	})
	if err != nil {
		return nil, err
	}
	return en.deleteByIDs(ctx, filtered)
}

// DeleteWhere deletes every entity matched by the translated query
// produced by build.
func (en *Entity) DeleteWhere(ctx context.Context, build func(*Query) *Query) (*WriteResult, error) {
	ids, err := en.keyProjection(ctx, build)
	if err != nil {
		return nil, err
	}
	return en.deleteByIDs(ctx, ids)
}

// ForceDelete deletes by the unfiltered key set, bypassing scope
// filtering on both sides.
func (en *Entity) ForceDelete(ctx context.Context, ids ...any) (*WriteResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoKeys
	}
	return en.deleteByIDs(ctx, ids)
}

func (en *Entity) deleteByIDs(ctx context.Context, ids []any) (*WriteResult, error) {
	result := &WriteResult{}
	if len(ids) == 0 {
		return result, nil
	}

	res, err := en.db.NewDelete().
		TableExpr("?", bun.Ident(en.translationTable())).
		Where("? IN (?)", bun.Ident(en.foreignKey()), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if rows, err := res.RowsAffected(); err == nil {
		result.TranslationRows = rows
	}

	res, err = en.db.NewDelete().
		TableExpr("?", bun.Ident(en.meta.Table)).
		Where("? IN (?)", bun.Ident(en.primaryKey()), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return result, &PartialWriteError{
			Table: en.meta.Table,
			Stage: "base-delete",
			Err:   err,
		}
	}
	if rows, err := res.RowsAffected(); err == nil {
		result.BaseRows = rows
	}
	return result, nil
}

// Increment adds delta to a base-table column for the given ids. A
// translatable column is rejected outright: the translation table has
// no batched increment path and redirecting to the base table would act
// on a column that does not exist there.
func (en *Entity) Increment(ctx context.Context, column string, delta int64, ids ...any) (int64, error) {
	if en.IsTranslatable(column) {
		return 0, fmt.Errorf("%w: %s", ErrTranslatableColumnUnsupported, column)
	}
	if len(ids) == 0 {
		return 0, ErrNoKeys
	}
	res, err := en.db.NewUpdate().
		TableExpr("?", bun.Ident(en.meta.Table)).
		Set("? = ? + ?", bun.Ident(column), bun.Ident(column), delta).
		Where("? IN (?)", bun.Ident(en.primaryKey()), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// Decrement subtracts delta from a base-table column for the given ids.
func (en *Entity) Decrement(ctx context.Context, column string, delta int64, ids ...any) (int64, error) {
	return en.Increment(ctx, column, -delta, ids...)
}

// Translate returns the localized view of one entity for locale, or nil
// when no translation row exists. An empty locale resolves through the
// entity's locale context.
func (en *Entity) Translate(ctx context.Context, id any, locale string) (map[string]any, error) {
	locale, err := en.resolveOrRequire(locale)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	err = en.db.NewSelect().
		TableExpr("?", bun.Ident(en.translationTable())).
		Where("? = ?", bun.Ident(en.foreignKey()), id).
		Where("? = ?", bun.Ident(en.engine.cfg.LocaleColumn), locale).
		Limit(1).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// TranslateOrNew returns the localized view, or a fresh unsaved view
// pre-keyed with the foreign key and locale when none exists yet.
func (en *Entity) TranslateOrNew(ctx context.Context, id any, locale string) (map[string]any, error) {
	locale, err := en.resolveOrRequire(locale)
	if err != nil {
		return nil, err
	}
	row, err := en.Translate(ctx, id, locale)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}
	fresh := map[string]any{}
	fresh[en.foreignKey()] = id
	fresh[en.engine.cfg.LocaleColumn] = locale
	return fresh, nil
}

// AllTranslations returns every locale's translation row for one
// entity, keyed by locale code.
func (en *Entity) AllTranslations(ctx context.Context, id any) (map[string]map[string]any, error) {
	grouped, err := en.translationsForIDs(ctx, []any{id})
	if err != nil {
		return nil, err
	}
	rows := grouped[keyString(id)]
	if rows == nil {
		rows = map[string]map[string]any{}
	}
	return rows, nil
}

func (en *Entity) translationsForIDs(ctx context.Context, ids []any) (map[string]map[string]map[string]any, error) {
	out := map[string]map[string]map[string]any{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []map[string]any
	err := en.db.NewSelect().
		TableExpr("?", bun.Ident(en.translationTable())).
		Where("? IN (?)", bun.Ident(en.foreignKey()), bun.In(ids)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	localeCol := en.engine.cfg.LocaleColumn
	for _, row := range rows {
		id := keyString(row[en.foreignKey()])
		locale, _ := row[localeCol].(string)
		if locale == "" {
			continue
		}
		if out[id] == nil {
			out[id] = map[string]map[string]any{}
		}
		out[id][locale] = row
	}
	return out, nil
}

// keyProjection runs the translated query produced by build and
// projects the base primary keys of every matched row.
func (en *Entity) keyProjection(ctx context.Context, build func(*Query) *Query) ([]any, error) {
	tq := en.Query()
	if build != nil {
		tq = build(tq)
	}
	pk := en.primaryKey()
	tq.explicitColumns = true
	tq.q = tq.q.ColumnExpr("?.? AS ?", bun.Ident(en.baseAlias()), bun.Ident(pk), bun.Ident(pk))

	rows, err := tq.ScanMaps(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[pk]; ok && id != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (en *Entity) requireLocale() (string, error) {
	locale := en.locale.Locale()
	if locale == "" {
		return "", &ConfigurationError{Capability: "current locale"}
	}
	return locale, nil
}

func (en *Entity) resolveOrRequire(locale string) (string, error) {
	if locale != "" {
		return locale, nil
	}
	return en.requireLocale()
}

func keyString(id any) string {
	return fmt.Sprintf("%v", id)
}
