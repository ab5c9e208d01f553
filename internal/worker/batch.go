package worker

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/metrics"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
)

// BatchHandler persists SQS events delivered by Lambda. Records that fail are reported as
// batch item failures, so Lambda deletes only the committed ones.
type BatchHandler struct {
	store   Inserter
	table   string
	metrics metrics.Recorder
	log     zerolog.Logger
}

// NewBatchHandler creates a handler writing into table.
func NewBatchHandler(store Inserter, table string, rec metrics.Recorder, log zerolog.Logger) *BatchHandler {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &BatchHandler{
		store:   store,
		table:   table,
		metrics: rec,
		log:     log.With().Str("component", "batch").Logger(),
	}
}

// Handle processes every record and never fails the whole batch.
func (h *BatchHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	h.log.Info().Int("records", len(ev.Records)).Msg("received SQS batch")

	resp := events.SQSEventResponse{}
	for _, rec := range ev.Records {
		h.metrics.Record(ctx, metrics.Received)

		if err := h.store.InsertRow(ctx, h.table, orders.DetailsColumn, rec.Body); err != nil {
			h.log.Error().Err(err).Str("message_id", rec.MessageId).Str("body", rec.Body).Msg("insert failed, returning record to queue")
			h.metrics.Record(ctx, metrics.PersistFailed)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			continue
		}
		h.metrics.Record(ctx, metrics.Persisted)
	}
	return resp, nil
}
