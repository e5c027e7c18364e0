package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// call records one statement sent to poolStub.
type call struct {
	sql  string
	args []any
}

// poolStub implements postgres.PgxPool for tests. Rows handed out by QueryRow
// and Query are consumed in order.
type poolStub struct {
	calls    []call
	execTag  string
	execErr  error
	rows     []rowStub
	sets     [][][]any
	queryErr error
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.calls = append(p.calls, call{sql: sql, args: args})
	if p.execErr != nil {
		return pgconn.CommandTag{}, p.execErr
	}
	tag := p.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.calls = append(p.calls, call{sql: sql, args: args})
	if len(p.rows) == 0 {
		return rowStub{err: errors.New("no row configured")}
	}
	r := p.rows[0]
	p.rows = p.rows[1:]
	return r
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.calls = append(p.calls, call{sql: sql, args: args})
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if len(p.sets) == 0 {
		return &rowsStub{}, nil
	}
	s := p.sets[0]
	p.sets = p.sets[1:]
	return &rowsStub{data: s}, nil
}

// rowStub implements pgx.Row
type rowStub struct {
	vals []any
	err  error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

// rowsStub implements pgx.Rows over fixed values.
type rowsStub struct {
	data [][]any
	pos  int
	err  error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

func (r *rowsStub) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *rowsStub) Scan(dest ...any) error { return assign(dest, r.data[r.pos-1]) }

func (r *rowsStub) Values() ([]any, error) { return r.data[r.pos-1], nil }

func assign(dest, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d targets for %d values", len(dest), len(vals))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *[]byte:
			*p = vals[i].([]byte)
		case *string:
			*p = vals[i].(string)
		case *int:
			*p = vals[i].(int)
		case *time.Time:
			*p = vals[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}
