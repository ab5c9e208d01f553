// Command lambda persists SQS event batches delivered by AWS Lambda. The event source
// mapping must enable ReportBatchItemFailures.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-sqs-order-worker/internal/app"
	"github.com/imrishuroy/go-sqs-order-worker/internal/aws"
	"github.com/imrishuroy/go-sqs-order-worker/internal/config"
	"github.com/imrishuroy/go-sqs-order-worker/internal/logging"
	"github.com/imrishuroy/go-sqs-order-worker/internal/metrics"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/secrets"
	"github.com/imrishuroy/go-sqs-order-worker/internal/worker"
)

func main() {
	ctx := context.Background()
	log := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("ENV"))

	cfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}

	// the connection lives for the whole execution environment
	gw, err := app.Bootstrap(ctx, *cfg, secrets.NewResolver(clients.SecretsManager, log), orders.Connect, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	var (
		rec metrics.Recorder = metrics.Nop()
		cw  *metrics.CloudWatch
	)
	if ns := os.Getenv("METRICS_NAMESPACE"); ns != "" {
		cw = metrics.NewCloudWatch(clients.CloudWatch, ns, os.Getenv("AWS_LAMBDA_FUNCTION_NAME"), log)
		rec = cw
	}

	h := worker.NewBatchHandler(gw, cfg.TableName, rec, log)

	// If RUN_LOCAL=true, process a single simulated event and exit.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = "local-order-1"
		}
		resp, err := h.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Fatal().Err(err).Int("failures", len(resp.BatchItemFailures)).Msg("local handler failed")
		}
		if cw != nil {
			if err := cw.Close(ctx); err != nil {
				log.Warn().Err(err).Msg("flush cloudwatch metrics")
			}
		}
		if err := gw.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("close database connection")
		}
		return
	}

	lambda.Start(h.Handle)
}
