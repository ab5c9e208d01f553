package orders

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockConn is an in-memory stand-in for *pgx.Conn. It understands just enough SQL to track
// which tables exist and which rows were committed.
type mockConn struct {
	mu sync.Mutex

	tables    map[string]bool
	rows      map[string][]string
	execs     []string
	closed    bool
	queryErr  error
	execErr   error
	insertErr error
	commitErr error
	beginErr  error
}

func newMockConn() *mockConn {
	return &mockConn{
		tables: map[string]bool{},
		rows:   map[string][]string{},
	}
}

func (m *mockConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, sql)
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	if strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS") {
		m.tables[quotedName(sql)] = true
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	}
	return pgconn.NewCommandTag(""), nil
}

func (m *mockConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return mockRow{err: m.queryErr}
	}
	name, _ := args[0].(string)
	return mockRow{value: m.tables[name]}
}

func (m *mockConn) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &mockTx{conn: m}, nil
}

func (m *mockConn) Ping(ctx context.Context) error { return nil }

func (m *mockConn) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

func (m *mockConn) committed(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[table]
}

// quotedName returns the first double-quoted identifier in sql.
func quotedName(sql string) string {
	start := strings.Index(sql, `"`)
	end := strings.Index(sql[start+1:], `"`)
	return sql[start+1 : start+1+end]
}

type mockRow struct {
	value bool
	err   error
}

func (r mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.value
	return nil
}

// mockTx buffers inserts until Commit. Methods not overridden panic through the nil embed.
type mockTx struct {
	pgx.Tx
	conn    *mockConn
	pending map[string][]string
	done    bool
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.conn.insertErr != nil {
		return pgconn.CommandTag{}, t.conn.insertErr
	}
	table := quotedName(sql)
	if !t.conn.tables[table] {
		return pgconn.CommandTag{}, errors.New(`relation "` + table + `" does not exist`)
	}
	if t.pending == nil {
		t.pending = map[string][]string{}
	}
	t.pending[table] = append(t.pending[table], args[0].(string))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *mockTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if t.conn.commitErr != nil {
		return t.conn.commitErr
	}
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	for table, vals := range t.pending {
		t.conn.rows[table] = append(t.conn.rows[table], vals...)
	}
	return nil
}

func (t *mockTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.pending = nil
	return nil
}
