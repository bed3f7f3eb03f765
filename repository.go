package translate

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	repositorycache "github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/uptrace/bun"
)

// Scope exposes the translation rewrite as a go-repository-bun select
// criteria, so repository lists and lookups surface localized columns.
// The select list becomes the base-table wildcard plus one aliased
// expression per translatable attribute; map translated struct fields
// with the bun "scanonly" tag to receive them. The entity's Meta.Alias
// must match the model's bun alias.
func Scope(en *Entity) repository.SelectCriteria {
	return scopeCriteria(en, en.locale.clone())
}

// ScopeInLocale is Scope pinned to an explicit locale for this criteria
// only.
func ScopeInLocale(en *Entity, locale string) repository.SelectCriteria {
	lc := en.locale.clone()
	lc.SetLocale(locale)
	return scopeCriteria(en, lc)
}

func scopeCriteria(en *Entity, lc *LocaleContext) repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		state, err := en.resolveScope(lc)
		if err != nil {
			en.engine.log.Error("translate: repository scope skipped", "table", en.meta.Table, "error", err)
			return q
		}
		if state.skip {
			return q
		}
		applied, err := en.applyScope(q, state, false)
		if err != nil {
			en.engine.log.Error("translate: repository scope failed", "table", en.meta.Table, "error", err)
			return q
		}
		return applied
	})
}

// WrapWithCache decorates a repository with read-through caching when a
// cache service and key serializer are supplied; otherwise the base
// repository is returned unchanged.
func WrapWithCache[T any](base repository.Repository[T], cacheService cache.CacheService, keySerializer cache.KeySerializer) repository.Repository[T] {
	if cacheService == nil || keySerializer == nil {
		return base
	}
	return repositorycache.New(base, cacheService, keySerializer)
}

// MapRepositoryError normalizes driver-level errors at the repository
// boundary: database not-found categories become RecordNotFoundError,
// everything else is wrapped with the resource name.
func MapRepositoryError(err error, resource, key string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsCategory(err, repository.CategoryDatabaseNotFound) {
		return &RecordNotFoundError{Resource: resource, Key: key}
	}
	return fmt.Errorf("%s repository error: %w", resource, err)
}
