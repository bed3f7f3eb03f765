package translate

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// SchemaIntrospector lists the columns of a physical table in schema
// order. Implementations return an error when the table or connection
// is unavailable; the classifier degrades that to "no translations".
type SchemaIntrospector interface {
	ListColumns(ctx context.Context, table string) ([]string, error)
}

// NewIntrospector returns a SchemaIntrospector backed by the database's
// own catalog: pragma_table_info on SQLite, information_schema on
// Postgres, MySQL and SQL Server.
func NewIntrospector(db *bun.DB) SchemaIntrospector {
	return &bunIntrospector{db: db}
}

type bunIntrospector struct {
	db *bun.DB
}

func (in *bunIntrospector) ListColumns(ctx context.Context, table string) ([]string, error) {
	query, err := in.columnsQuery()
	if err != nil {
		return nil, err
	}

	rows, err := in.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func (in *bunIntrospector) columnsQuery() (string, error) {
	switch name := in.db.Dialect().Name(); name {
	case dialect.SQLite:
		return `SELECT name FROM pragma_table_info(?) ORDER BY cid`, nil
	case dialect.PG:
		return `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ?
			ORDER BY ordinal_position
		`, nil
	case dialect.MySQL:
		return `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position
		`, nil
	case dialect.MSSQL:
		return `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_name = ?
			ORDER BY ordinal_position
		`, nil
	default:
		return "", &UnsupportedDialectError{Dialect: name.String()}
	}
}
