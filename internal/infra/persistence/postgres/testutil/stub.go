// Package testutil provides a stub database/sql driver for postgres store
// tests. It understands the handful of statement shapes the store issues
// against its key/value state table.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var driverSeq atomic.Uint64

// Row is one stored row keyed by lower-case column name.
type Row map[string]any

// StubConn records statements and keeps table rows in memory.
type StubConn struct {
	Execs      []string
	Tables     map[string][]Row
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
	RowsErr    error
	// Commits and Rollbacks count finished transactions.
	Commits   int
	Rollbacks int
}

// NewStubDB registers a uniquely named driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]Row)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Seed appends a row to table.
func (c *StubConn) Seed(table string, row Row) {
	c.Tables[table] = append(c.Tables[table], row)
}

// Lookup returns the first row of table whose col equals value.
func (c *StubConn) Lookup(table, col string, value any) (Row, bool) {
	for _, row := range c.Tables[table] {
		if equalValues(row[col], value) {
			return row, true
		}
	}
	return nil, false
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		if strings.Contains(upper, "ON CONFLICT") {
			c.deleteWhere(table, cols[0], row[cols[0]])
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		table, col, err := parseWhere(query, "delete from ")
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("missing args for delete %s", table)
		}
		return driver.RowsAffected(c.deleteWhere(table, col, args[0].Value)), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) deleteWhere(table, col string, value any) int64 {
	var kept []Row
	var removed int64
	for _, row := range c.Tables[table] {
		if equalValues(row[col], value) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return removed
}

// QueryContext implements driver.QueryerContext. A trailing "WHERE col = $1"
// filters on the first argument.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	table, cols, filter, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	var values [][]driver.Value
	for _, row := range c.Tables[table] {
		if filter != "" && (len(args) == 0 || !equalValues(row[filter], args[0].Value)) {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.Rollbacks++
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func equalValues(a, b any) bool {
	ab, aBytes := a.([]byte)
	bb, bBytes := b.([]byte)
	if aBytes || bBytes {
		return aBytes && bBytes && string(ab) == string(bb)
	}
	return a == b
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

// parseWhere extracts the table and the predicate column of
// "<prefix><table> WHERE <col> = $1".
func parseWhere(query, prefix string) (string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, prefix) {
		return "", "", fmt.Errorf("cannot parse %q statement: %s", strings.TrimSpace(prefix), query)
	}
	rest := lower[len(prefix):]
	table, where, ok := strings.Cut(rest, " where ")
	if !ok {
		return "", "", fmt.Errorf("cannot parse predicate: %s", query)
	}
	col, _, ok := strings.Cut(where, "=")
	if !ok {
		return "", "", fmt.Errorf("cannot parse predicate: %s", query)
	}
	return strings.TrimSpace(table), strings.TrimSpace(col), nil
}

func parseSelect(query string) (table string, cols []string, filter string, err error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	colPart, from, ok := strings.Cut(lower[len("select "):], " from ")
	if !ok {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	fields := strings.Fields(from)
	if len(fields) == 0 {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	table = fields[0]
	if _, where, ok := strings.Cut(from, " where "); ok {
		col, _, _ := strings.Cut(where, "=")
		filter = strings.TrimSpace(col)
	}
	return table, splitColumns(colPart), filter, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
