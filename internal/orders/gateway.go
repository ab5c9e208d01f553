package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// Conn is the part of *pgx.Conn the gateway uses.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Gateway owns a single database connection. It is not safe for concurrent use: the worker
// drives it from one goroutine.
type Gateway struct {
	conn  Conn
	log   zerolog.Logger
	state State
}

// Connect opens and pings one connection described by cfg.
func Connect(ctx context.Context, cfg ConnConfig, log zerolog.Logger) (*Gateway, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %d", ErrConnection, cfg.Port)
	}

	pgCfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrConnection, err)
	}
	pgCfg.Host = cfg.Host
	pgCfg.Port = uint16(cfg.Port)
	pgCfg.Database = cfg.Database
	pgCfg.User = cfg.User
	pgCfg.Password = cfg.Password
	pgCfg.ConnectTimeout = connectTimeout
	pgCfg.Fallbacks = nil

	conn, err := pgx.ConnectConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, cfg, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("%w: ping %s: %v", ErrConnection, cfg, err)
	}

	g := New(conn, log)
	g.log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).Msg("connected to database")
	return g, nil
}

// New wraps an already open connection.
func New(conn Conn, log zerolog.Logger) *Gateway {
	return &Gateway{
		conn:  conn,
		log:   log.With().Str("component", "orders").Logger(),
		state: StateConnected,
	}
}

// State reports where the gateway is in its lifecycle.
func (g *Gateway) State() State { return g.state }

// TableExists reports whether name is present in the catalog. A failed lookup is logged and
// reported as false, so "absent" and "unknown" look the same to the caller.
func (g *Gateway) TableExists(ctx context.Context, name string) bool {
	const q = `SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`

	var exists bool
	if err := g.conn.QueryRow(ctx, q, name).Scan(&exists); err != nil {
		g.log.Error().Err(err).Str("table", name).Msg("table existence check failed")
		return false
	}
	if exists {
		g.state = StateSchemaVerified
	}
	return exists
}

// EnsureTable creates the orders table if it is missing. Calling it again is a no-op.
// Two processes racing here is safe for the statement itself, but schema bootstrap is meant
// to run from a single instance.
func (g *Gateway) EnsureTable(ctx context.Context, name string) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		order_id SERIAL PRIMARY KEY,
		%s TEXT NOT NULL
	)`, pgx.Identifier{name}.Sanitize(), pgx.Identifier{DetailsColumn}.Sanitize())

	if _, err := g.conn.Exec(ctx, q); err != nil {
		g.log.Error().Err(err).Str("table", name).Msg("create table failed")
		return fmt.Errorf("create table %s: %w", name, err)
	}

	g.state = StateSchemaVerified
	g.log.Info().Str("table", name).Msg("table ready")
	return nil
}

// InsertRow writes value into table.column and commits before returning. A nil error means
// the row is durable.
func (g *Gateway) InsertRow(ctx context.Context, table, column, value string) error {
	if g.state == StateDisconnected {
		return fmt.Errorf("%w: gateway is closed", ErrPersistence)
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1)`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{column}.Sanitize())

	err := pgx.BeginFunc(ctx, g.conn, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, value)
		return err
	})
	if err != nil {
		g.log.Error().Err(err).Str("table", table).Str("value", value).Msg("insert failed")
		return fmt.Errorf("%w: insert into %s: %w", ErrPersistence, table, err)
	}

	g.log.Info().Str("table", table).Str("value", value).Msg("row inserted")
	return nil
}

// Close releases the connection.
func (g *Gateway) Close(ctx context.Context) error {
	if g.state == StateDisconnected {
		return nil
	}
	g.state = StateDisconnected
	return g.conn.Close(ctx)
}
