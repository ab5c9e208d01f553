package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/aws"
	"github.com/imrishuroy/go-sqs-order-worker/internal/config"
	"github.com/imrishuroy/go-sqs-order-worker/internal/health"
	"github.com/imrishuroy/go-sqs-order-worker/internal/metrics"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/queue"
	"github.com/imrishuroy/go-sqs-order-worker/internal/secrets"
	"github.com/imrishuroy/go-sqs-order-worker/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// RunWorker starts the health endpoint, bootstraps the database and then polls the queue
// until ctx is cancelled. It returns early only on a startup failure.
func RunWorker(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, log zerolog.Logger) error {
	hs := health.NewServer("health", cfg.HealthAddr, health.NewRouter(), log)
	hs.Start()
	defer shutdown(hs, log)

	recorders := []metrics.Recorder{}
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus()
		ms := health.NewServer("metrics", cfg.MetricsAddr, prom.Handler(), log)
		ms.Start()
		defer shutdown(ms, log)
		recorders = append(recorders, prom)
	}
	if cfg.MetricsNamespace != "" {
		cw := metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, cfg.QueueURL, log)
		defer flushMetrics(cw, log)
		recorders = append(recorders, cw)
	}

	log.Info().Msg("resolving database credentials")
	gw, err := Bootstrap(ctx, cfg.DatabaseConfig, secrets.NewResolver(clients.SecretsManager, log), orders.Connect, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("close database connection")
		}
	}()

	log.Info().Str("queue", cfg.QueueURL).Msg("starting SQS poller")
	loop := worker.New(worker.Config{
		Queue:   queue.NewClient(clients.SQS, cfg.QueueURL, cfg.QueueWait, log),
		Store:   gw,
		Table:   cfg.TableName,
		Backoff: cfg.Backoff,
		Metrics: metrics.Multi(recorders...),
		Logger:  log,
	})

	_ = loop.Run(ctx)
	return nil
}

// shutdown stops s and waits for its listener goroutine to exit.
func shutdown(s *health.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http listener shutdown")
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		log.Warn().Msg("http listener did not exit in time")
	}
}

func flushMetrics(cw *metrics.CloudWatch, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := cw.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("flush cloudwatch metrics")
	}
}
