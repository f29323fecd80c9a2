package db

import (
	"context"
	"errors"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row, copying queued values into the scan targets by
// position. Types must match the scan destinations exactly.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("fakeRow: destination count mismatch")
	}
	for i, d := range dest {
		if r.values[i] == nil {
			continue // leave the destination at its zero value (NULL column)
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

// mockDBTX implements DBTX, recording statements and serving queued rows.
type mockDBTX struct {
	queries []string
	args    [][]any

	rows []pgx.Row // consumed by QueryRow in order

	execTag pgconn.CommandTag
	execErr error
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, arguments)
	return m.execTag, m.execErr
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("mockDBTX: Query not supported")
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, args)
	if len(m.rows) == 0 {
		return &fakeRow{err: pgx.ErrNoRows}
	}
	row := m.rows[0]
	m.rows = m.rows[1:]
	return row
}
