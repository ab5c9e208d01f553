package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-sqs-order-worker/internal/app"
	"github.com/imrishuroy/go-sqs-order-worker/internal/aws"
	"github.com/imrishuroy/go-sqs-order-worker/internal/config"
	"github.com/imrishuroy/go-sqs-order-worker/internal/logging"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/secrets"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "order-worker",
		Short:         "Persist SQS order messages into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWorker,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Serve /health and poll the queue until terminated (default)",
			Args:  cobra.NoArgs,
			RunE:  runWorker,
		},
		&cobra.Command{
			Use:   "bootstrap",
			Short: "Resolve the database secret, connect and create the orders table, then exit",
			Args:  cobra.NoArgs,
			RunE:  runBootstrap,
		},
		newEnqueueCmd(),
	)
	return root
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fatal(bootLogger(), "failed to load config", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)

	clients, err := aws.NewAWSClients(cmd.Context())
	if err != nil {
		return fatal(log, "failed to init aws clients", err)
	}

	log.Info().Msg("starting order worker")
	if err := app.RunWorker(cmd.Context(), cfg, clients, log); err != nil {
		return fatal(log, "startup failed", err)
	}
	log.Info().Msg("order worker stopped")
	return nil
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return fatal(bootLogger(), "failed to load config", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)

	clients, err := aws.NewAWSClients(cmd.Context())
	if err != nil {
		return fatal(log, "failed to init aws clients", err)
	}

	gw, err := app.Bootstrap(cmd.Context(), *cfg, secrets.NewResolver(clients.SecretsManager, log), orders.Connect, log)
	if err != nil {
		return fatal(log, "bootstrap failed", err)
	}
	defer closeLogged(gw, log)

	log.Info().Str("table", cfg.TableName).Str("state", gw.State().String()).Msg("bootstrap complete")
	return nil
}

func newEnqueueCmd() *cobra.Command {
	var (
		queueURL string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "enqueue ORDER_DETAILS...",
		Short: "Send order messages to the queue, for local testing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := bootLogger()
			if queueURL == "" {
				return fatal(log, "no queue", fmt.Errorf("--queue-url or QUEUE_URL is required"))
			}

			clients, err := aws.NewAWSClients(cmd.Context())
			if err != nil {
				return fatal(log, "failed to init aws clients", err)
			}
			pub := aws.NewPublisher(clients.SQS, queueURL)

			for i := 0; i < count; i++ {
				for _, body := range args {
					id, err := pub.SendOrderMessage(cmd.Context(), body, map[string]string{
						"correlation_id": uuid.NewString(),
					})
					if err != nil {
						return fatal(log, "enqueue failed", err)
					}
					log.Info().Str("message_id", id).Str("body", body).Msg("enqueued")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&queueURL, "queue-url", os.Getenv("QUEUE_URL"), "target queue URL")
	cmd.Flags().IntVar(&count, "count", 1, "send every body this many times")
	return cmd
}

// bootLogger is used before the configuration is known.
func bootLogger() zerolog.Logger {
	return logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("ENV"))
}

func fatal(log zerolog.Logger, msg string, err error) error {
	log.Error().Err(err).Msg(msg)
	return err
}

type closer interface {
	Close(ctx context.Context) error
}

// closeLogged closes c on a fresh context, since the command context may already be
// cancelled by a signal.
func closeLogged(c closer, log zerolog.Logger) {
	if err := c.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("close database connection")
	}
}
