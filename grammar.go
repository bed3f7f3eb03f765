package translate

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

const fallbackAliasSuffix = "_fallback"

// coalesceFunc maps the active dialect to its two-argument
// null-coalescing function name.
func coalesceFunc(name dialect.Name) (string, error) {
	switch name {
	case dialect.MySQL, dialect.SQLite:
		return "IFNULL", nil
	case dialect.MSSQL:
		return "ISNULL", nil
	case dialect.PG:
		return "COALESCE", nil
	default:
		return "", &UnsupportedDialectError{Dialect: name.String()}
	}
}

// fragmentCompiler renders dialect-correct SQL fragments: quoted and
// qualified identifiers plus coalesce expressions.
type fragmentCompiler struct {
	fmter schema.QueryGen
	name  dialect.Name
}

func newFragmentCompiler(db *bun.DB) fragmentCompiler {
	return fragmentCompiler{fmter: db.QueryGen(), name: db.Dialect().Name()}
}

// ident renders a dotted identifier with every part quoted for the
// active dialect.
func (c fragmentCompiler) ident(parts ...string) string {
	var b []byte
	for i, part := range parts {
		if i > 0 {
			b = append(b, '.')
		}
		b = c.fmter.AppendQuery(b, "?", bun.Ident(part))
	}
	return string(b)
}

// coalesce renders the null-coalescing call over two already-rendered
// operand fragments, appending an AS clause when alias is non-empty.
func (c fragmentCompiler) coalesce(primary, fallback, alias string) (string, error) {
	fn, err := coalesceFunc(c.name)
	if err != nil {
		return "", err
	}
	expr := fmt.Sprintf("%s(%s, %s)", fn, primary, fallback)
	if alias != "" {
		expr += " AS " + c.ident(alias)
	}
	return expr, nil
}

// columnRef renders an arbitrary caller-supplied column reference.
// Plain and dotted identifiers are quoted; anything that looks like a
// computed expression passes through untouched.
func (c fragmentCompiler) columnRef(column string) string {
	if isSubExpression(column) {
		return column
	}
	return c.ident(strings.Split(column, ".")...)
}

// isSubExpression reports whether a column reference is a computed
// expression rather than a bare (possibly qualified) identifier.
func isSubExpression(column string) bool {
	return strings.ContainsAny(column, "( )")
}
