package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/uptrace/bun"
)

func countRows(t *testing.T, db *bun.DB, query string, args ...any) int {
	t.Helper()

	var count int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	return count
}

func TestInsertSplitsAcrossTables(t *testing.T) {
	eng, db := newTestEngine(t)
	en := tagEntity(t, eng)
	ctx := context.Background()

	res, err := en.Insert(ctx, map[string]any{
		"name":  "greeting",
		"views": 1,
		"title": "Hello",
		"body":  "A greeting",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if res.ID == nil {
		t.Fatal("Insert() result carries no id")
	}
	if res.BaseRows != 1 || res.TranslationRows != 1 {
		t.Fatalf("Insert() rows = (%d, %d), want (1, 1)", res.BaseRows, res.TranslationRows)
	}

	row, err := en.Translate(ctx, res.ID, "en")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if row == nil || row["title"] != "Hello" {
		t.Fatalf("Translate() = %v, want en title Hello", row)
	}
	if countRows(t, db, `SELECT count(*) FROM tags`) != 1 {
		t.Fatal("base table should hold one row")
	}
}

func TestInsertWithoutTranslatedValues(t *testing.T) {
	eng, db := newTestEngine(t)
	en := tagEntity(t, eng)

	res, err := en.Insert(context.Background(), map[string]any{"name": "plain"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if res.TranslationRows != 0 {
		t.Fatalf("TranslationRows = %d, want 0", res.TranslationRows)
	}
	if countRows(t, db, `SELECT count(*) FROM tags_i18n`) != 0 {
		t.Fatal("translation table should stay empty")
	}
}

func TestInsertPayloadErrors(t *testing.T) {
	eng, _ := newTestEngine(t)
	en := tagEntity(t, eng)
	ctx := context.Background()

	if _, err := en.Insert(ctx, map[string]any{}); !errors.Is(err, ErrEmptyWrite) {
		t.Fatalf("Insert(empty) error = %v, want ErrEmptyWrite", err)
	}
	if _, err := en.Insert(ctx, map[string]any{"title": "Hello"}); !errors.Is(err, ErrMissingPrimaryKey) {
		t.Fatalf("Insert(translated only) error = %v, want ErrMissingPrimaryKey", err)
	}
}

func TestInsertPartialWrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg := DefaultConfig()
	cfg.DefaultLocale = "en"
	eng, err := New(db, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	en, err := eng.Entity(ctx, Meta{Table: "tags", Attributes: []string{"title"}})
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}

	// The translation table does not exist: the base insert survives and
	// the failure is reported as partial.
	res, err := en.Insert(ctx, map[string]any{"name": "orphan", "title": "Hello"})
	if !errors.Is(err, ErrPartialWrite) {
		t.Fatalf("Insert() error = %v, want ErrPartialWrite", err)
	}
	var partial *PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("Insert() error = %v, want PartialWriteError", err)
	}
	if partial.Stage != "translation-insert" {
		t.Fatalf("Stage = %q, want translation-insert", partial.Stage)
	}
	if partial.ID == nil {
		t.Fatal("PartialWriteError should carry the surviving id")
	}
	if res == nil || res.ID == nil {
		t.Fatal("result should carry the surviving id")
	}
	if countRows(t, db, `SELECT count(*) FROM tags`) != 1 {
		t.Fatal("base row should survive the partial failure")
	}
}

func TestUpdateUpsertIsIdempotent(t *testing.T) {
	eng, db := newTestEngine(t)
	en := tagEntity(t, eng)
	ctx := context.Background()

	res, err := en.Insert(ctx, map[string]any{"name": "greeting", "title": "Hello"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := en.Update(ctx, map[string]any{"title": "Hi"}, res.ID); err != nil {
			t.Fatalf("Update() #%d error = %v", i+1, err)
		}
	}

	if got := countRows(t, db,
		`SELECT count(*) FROM tags_i18n WHERE tag_id = ? AND locale = 'en'`, res.ID); got != 1 {
		t.Fatalf("translation rows = %d, want exactly 1 per (id, locale)", got)
	}
	row, err := en.Translate(ctx, res.ID, "en")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if row["title"] != "Hi" {
		t.Fatalf("title = %v, want Hi", row["title"])
	}
}

func TestUpdateTouchesBothTables(t *testing.T) {
	eng, _ := newTestEngine(t)
	en := tagEntity(t, eng)
	ctx := context.Background()

	res, err := en.Insert(ctx, map[string]any{"name": "greeting", "title": "Hello"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	out, err := en.Update(ctx, map[string]any{"name": "renamed", "title": "Hi"}, res.ID)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if out.BaseRows != 1 || out.TranslationRows != 1 {
		t.Fatalf("Update() rows = (%d, %d), want (1, 1)", out.BaseRows, out.TranslationRows)
	}
}

func TestUpdateInNewLocaleCreatesRow(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	en := tagEntity(t, eng)
	res, err := en.Insert(ctx, map[string]any{"name": "greeting", "title": "Hello"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	fr := tagEntity(t, eng)
	fr.LocaleContext().SetLocale("fr")
	if !fr.LocaleContext().LocaleChanged() {
		t.Fatal("LocaleChanged() = false after switching to fr")
	}
	if _, err := fr.Update(ctx, map[string]any{"title": "Bonjour"}, res.ID); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if fr.LocaleContext().LocaleChanged() {
		t.Fatal("LocaleChanged() should reset after a successful write")
	}

	enRow, err := en.Translate(ctx, res.ID, "en")
	if err != nil {
		t.Fatalf("Translate(en) error = %v", err)
	}
	if enRow["title"] != "Hello" {
		t.Fatalf("en title = %v, want Hello untouched", enRow["title"])
	}
	frRow, err := en.Translate(ctx, res.ID, "fr")
	if err != nil {
		t.Fatalf("Translate(fr) error = %v", err)
	}
	if frRow == nil || frRow["title"] != "Bonjour" {
		t.Fatalf("fr title = %v, want Bonjour", frRow)
	}
}

func TestUpdateRequiresKeys(t *testing.T) {
	eng, _ := newTestEngine(t)
	en := tagEntity(t, eng)

	if _, err := en.Update(context.Background(), map[string]any{"title": "x"}); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("Update() error = %v, want ErrNoKeys", err)
	}
}

func TestUpdateWhere(t *testing.T) {
	eng, db := newTestEngine(t)
	seedGreetingData(t, db)
	en := tagEntity(t, eng)
	ctx := context.Background()

	out, err := en.UpdateWhere(ctx, map[string]any{"title": "Howdy"}, func(tq *Query) *Query {
		return tq.Where("title", "Hello")
	})
	if err != nil {
		t.Fatalf("UpdateWhere() error = %v", err)
	}
	if out.TranslationRows != 1 {
		t.Fatalf("TranslationRows = %d, want 1", out.TranslationRows)
	}

	row := scanOne(t, en.Query().Where("name", "greeting"))
	if row["title"] != "Howdy" {
		t.Fatalf("title = %v, want Howdy", row["title"])
	}
}

func TestDeleteCascadesTranslations(t *testing.T) {
	eng, db := newTestEngine(t)
	greetingID, _ := seedGreetingData(t, db)
	en := tagEntity(t, eng)

	out, err := en.Delete(context.Background(), greetingID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if out.BaseRows != 1 {
		t.Fatalf("BaseRows = %d, want 1", out.BaseRows)
	}
	if out.TranslationRows != 2 {
		t.Fatalf("TranslationRows = %d, want both locales removed", out.TranslationRows)
	}

	if countRows(t, db, `SELECT count(*) FROM tags_i18n WHERE tag_id = ?`, greetingID) != 0 {
		t.Fatal("translation rows should be gone")
	}
	if countRows(t, db, `SELECT count(*) FROM tags WHERE id = ?`, greetingID) != 0 {
		t.Fatal("base row should be gone")
	}
}

func TestDeleteWhere(t *testing.T) {
	eng, db := newTestEngine(t)
	_, farewellID := seedGreetingData(t, db)
	en := tagEntity(t, eng)

	out, err := en.DeleteWhere(context.Background(), func(tq *Query) *Query {
		return tq.Where("title", "Goodbye")
	})
	if err != nil {
		t.Fatalf("DeleteWhere() error = %v", err)
	}
	if out.BaseRows != 1 {
		t.Fatalf("BaseRows = %d, want 1", out.BaseRows)
	}
	if countRows(t, db, `SELECT count(*) FROM tags WHERE id = ?`, farewellID) != 0 {
		t.Fatal("farewell should be deleted")
	}
	if countRows(t, db, `SELECT count(*) FROM tags`) != 1 {
		t.Fatal("greeting should survive")
	}
}

func TestDeleteHonorsScopeAndForceDeleteBypasses(t *testing.T) {
	eng, db := newTestEngine(t)
	untranslatedID := seedTag(t, db, "untitled", 0)
	ctx := context.Background()

	en, err := eng.Entity(ctx, Meta{
		Table:          "tags",
		OnlyTranslated: boolPtr(true),
		WithFallback:   boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}

	out, err := en.Delete(ctx, untranslatedID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if out.BaseRows != 0 {
		t.Fatalf("BaseRows = %d, want 0 for a scope-filtered row", out.BaseRows)
	}
	if countRows(t, db, `SELECT count(*) FROM tags WHERE id = ?`, untranslatedID) != 1 {
		t.Fatal("untranslated row should survive a scoped delete")
	}

	out, err = en.ForceDelete(ctx, untranslatedID)
	if err != nil {
		t.Fatalf("ForceDelete() error = %v", err)
	}
	if out.BaseRows != 1 {
		t.Fatalf("ForceDelete BaseRows = %d, want 1", out.BaseRows)
	}
}

func TestIncrementRejectsTranslatableColumn(t *testing.T) {
	eng, db := newTestEngine(t)
	greetingID, _ := seedGreetingData(t, db)
	en := tagEntity(t, eng)

	_, err := en.Increment(context.Background(), "title", 1, greetingID)
	if !errors.Is(err, ErrTranslatableColumnUnsupported) {
		t.Fatalf("Increment(title) error = %v, want ErrTranslatableColumnUnsupported", err)
	}
}

func TestIncrementDecrement(t *testing.T) {
	eng, db := newTestEngine(t)
	greetingID, _ := seedGreetingData(t, db)
	en := tagEntity(t, eng)
	ctx := context.Background()

	rows, err := en.Increment(ctx, "views", 5, greetingID)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if rows != 1 {
		t.Fatalf("Increment() rows = %d, want 1", rows)
	}
	if countRows(t, db, `SELECT views FROM tags WHERE id = ?`, greetingID) != 15 {
		t.Fatal("views should be incremented to 15")
	}

	if _, err := en.Decrement(ctx, "views", 10, greetingID); err != nil {
		t.Fatalf("Decrement() error = %v", err)
	}
	if countRows(t, db, `SELECT views FROM tags WHERE id = ?`, greetingID) != 5 {
		t.Fatal("views should be decremented to 5")
	}

	if _, err := en.Increment(ctx, "views", 1); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("Increment() without ids error = %v, want ErrNoKeys", err)
	}
}

func TestTranslateMissingLocale(t *testing.T) {
	eng, db := newTestEngine(t)
	greetingID, _ := seedGreetingData(t, db)
	en := tagEntity(t, eng)
	ctx := context.Background()

	row, err := en.Translate(ctx, greetingID, "de")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if row != nil {
		t.Fatalf("Translate(de) = %v, want nil", row)
	}

	fresh, err := en.TranslateOrNew(ctx, greetingID, "de")
	if err != nil {
		t.Fatalf("TranslateOrNew() error = %v", err)
	}
	if fresh["locale"] != "de" {
		t.Fatalf("fresh locale = %v, want de", fresh["locale"])
	}
	if fresh["tag_id"] != greetingID {
		t.Fatalf("fresh tag_id = %v, want %d", fresh["tag_id"], greetingID)
	}
}

func TestAllTranslations(t *testing.T) {
	eng, db := newTestEngine(t)
	greetingID, _ := seedGreetingData(t, db)
	en := tagEntity(t, eng)

	all, err := en.AllTranslations(context.Background(), greetingID)
	if err != nil {
		t.Fatalf("AllTranslations() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("AllTranslations() has %d locales, want 2", len(all))
	}
	if all["en"]["title"] != "Hello" || all["fr"]["title"] != "Bonjour" {
		t.Fatalf("AllTranslations() = %v", all)
	}
}

func TestFilterValues(t *testing.T) {
	eng, _ := newTestEngine(t)
	en := tagEntity(t, eng)

	base, translated := en.FilterValues(map[string]any{
		"name":  "greeting",
		"views": 3,
		"title": "Hello",
		"body":  "A greeting",
	})
	if len(base) != 2 || base["name"] != "greeting" || base["views"] != 3 {
		t.Fatalf("base = %v, want name and views", base)
	}
	if len(translated) != 2 || translated["title"] != "Hello" || translated["body"] != "A greeting" {
		t.Fatalf("translated = %v, want title and body", translated)
	}
}
