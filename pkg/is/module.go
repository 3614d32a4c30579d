// Package is exposes SQL databases to template expressions as the
// Starlark module "db".
package is

import (
	"database/sql"
	"fmt"
	"time"

	wstarlark "github.com/neurodesk/webtools/pkg/starlark"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module binds a database handle to the db functions.
type Module struct {
	db *sql.DB
}

func New(db *sql.DB) *Module {
	return &Module{db: db}
}

// Starlark returns the "db" module value for Evaluator.SetGlobalStarlark.
func (m *Module) Starlark() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "db",
		Members: starlark.StringDict{
			"query": starlark.NewBuiltin("db.query", m.query),
			"exec":  starlark.NewBuiltin("db.exec", m.exec),
			"rows":  starlark.NewBuiltin("db.rows", m.rows),
		},
	}
}

// query(sql, *args) returns every row as a dict keyed by column name.
func (m *Module) query(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	rows, err := m.fetch(thread, fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(rows), nil
}

// rows(sql, *args) returns an iteration triple over the rows.
func (m *Module) rows(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	rows, err := m.fetch(thread, fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return wstarlark.Iterate(rows), nil
}

// exec(sql, *args) runs a statement and returns the rows affected.
func (m *Module) exec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	stmt, params, err := unpack(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	res, err := m.db.ExecContext(wstarlark.Context(thread), stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return starlark.MakeInt64(n), nil
}

func (m *Module) fetch(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]starlark.Value, error) {
	stmt, params, err := unpack(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(wstarlark.Context(thread), stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	var out []starlark.Value
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		d := starlark.NewDict(len(cols))
		for i, col := range cols {
			if err := d.SetKey(starlark.String(col), column(raw[i])); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return out, nil
}

func unpack(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, []any, error) {
	if len(kwargs) > 0 {
		return "", nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%s: missing statement", fn.Name())
	}
	stmt, ok := starlark.AsString(args[0])
	if !ok {
		return "", nil, fmt.Errorf("%s: statement is %s, want string", fn.Name(), args[0].Type())
	}
	params := make([]any, len(args)-1)
	for i, a := range args[1:] {
		v, err := wstarlark.ToGo(a)
		if err != nil {
			return "", nil, fmt.Errorf("%s: argument %d: %w", fn.Name(), i+1, err)
		}
		params[i] = v
	}
	return stmt, params, nil
}

// column converts a scanned driver value.
func column(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case bool:
		return starlark.Bool(v)
	case []byte:
		return starlark.String(v)
	case string:
		return starlark.String(v)
	case time.Time:
		return starlark.String(v.Format(time.RFC3339))
	default:
		return starlark.String(fmt.Sprint(v))
	}
}
