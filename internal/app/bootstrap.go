package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/config"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/secrets"
)

// SecretGetter resolves the database credential.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (secrets.Credential, error)
}

// Connector opens the gateway. orders.Connect in production.
type Connector func(ctx context.Context, cfg orders.ConnConfig, log zerolog.Logger) (*orders.Gateway, error)

// Bootstrap runs the blocking startup sequence: fetch the credential, connect, make sure the
// orders table exists. Any error is fatal for the process; there is no retry.
func Bootstrap(ctx context.Context, db config.DatabaseConfig, sg SecretGetter, connect Connector, log zerolog.Logger) (*orders.Gateway, error) {
	cred, err := sg.GetSecret(ctx, db.SecretName)
	if err != nil {
		return nil, fmt.Errorf("resolve database secret: %w", err)
	}

	gw, err := connect(ctx, db.ConnConfig(cred), log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if gw.TableExists(ctx, db.TableName) {
		log.Info().Str("table", db.TableName).Msg("table exists")
		return gw, nil
	}

	log.Info().Str("table", db.TableName).Msg("table not found, creating")
	if err := gw.EnsureTable(ctx, db.TableName); err != nil {
		_ = gw.Close(ctx)
		return nil, fmt.Errorf("ensure table: %w", err)
	}
	return gw, nil
}
