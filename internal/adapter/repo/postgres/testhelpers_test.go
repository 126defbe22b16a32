package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// execResult is one scripted Exec outcome.
type execResult struct {
	tag pgconn.CommandTag
	err error
}

// poolStub implements postgres.PgxPool for tests. Exec and QueryRow pop
// scripted results in call order; issued SQL is recorded for predicate
// assertions. Query is unscripted and always errors.
type poolStub struct {
	execs    []execResult
	rows     []rowStub
	execSQL  []string
	querySQL []string
}

func (p *poolStub) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	if len(p.execs) == 0 {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	res := p.execs[0]
	p.execs = p.execs[1:]
	return res.tag, res.err
}

func (p *poolStub) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	p.querySQL = append(p.querySQL, sql)
	if len(p.rows) == 0 {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	row := p.rows[0]
	p.rows = p.rows[1:]
	return row
}

func (p *poolStub) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	p.querySQL = append(p.querySQL, sql)
	return nil, errors.New("query not scripted")
}
