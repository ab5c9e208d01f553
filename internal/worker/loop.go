package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/metrics"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/queue"
)

const (
	// DefaultBackoff is how long the loop pauses after a loop-level failure.
	DefaultBackoff = 5 * time.Second

	deleteTimeout = 10 * time.Second
)

// Receiver is the queue side of the loop.
type Receiver interface {
	Receive(ctx context.Context) ([]queue.Message, error)
	Delete(ctx context.Context, msg queue.Message) error
}

// Inserter persists one order body. A nil error means the row is committed.
type Inserter interface {
	InsertRow(ctx context.Context, table, column, value string) error
}

// State is the position of the loop between two steps.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateProcessing
	StateAcknowledging
	StateBackingOff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateProcessing:
		return "processing"
	case StateAcknowledging:
		return "acknowledging"
	case StateBackingOff:
		return "backing_off"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config wires a Loop.
type Config struct {
	Queue Receiver
	Store Inserter
	Table string

	// Backoff after a failed receive or a recovered panic (default: 5s).
	Backoff time.Duration

	// Metrics is optional.
	Metrics metrics.Recorder
	Logger  zerolog.Logger

	// Sleep is replaced in tests. It must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Loop moves messages from the queue into the database. A message is deleted only after its
// row was committed; anything else leaves it in flight so SQS redelivers it after the
// visibility timeout.
type Loop struct {
	queue   Receiver
	store   Inserter
	table   string
	backoff time.Duration
	metrics metrics.Recorder
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	state   State
	pending []queue.Message
	current *queue.Message
}

// New creates a Loop in StateIdle.
func New(cfg Config) *Loop {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop()
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Loop{
		queue:   cfg.Queue,
		store:   cfg.Store,
		table:   cfg.Table,
		backoff: backoff,
		metrics: rec,
		log:     cfg.Logger.With().Str("component", "worker").Str("worker_id", uuid.NewString()).Logger(),
		sleep:   sleep,
		state:   StateIdle,
	}
}

// State returns the state the next Step starts from.
func (l *Loop) State() State { return l.state }

// Run steps the loop until ctx is cancelled. A committed message still gets its delete
// attempt after cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Str("table", l.table).Dur("backoff", l.backoff).Msg("worker loop started")

	for ctx.Err() == nil || l.state == StateAcknowledging {
		l.Step(ctx)
	}

	l.log.Info().Int("abandoned", len(l.pending)).Msg("worker loop stopped")
	return ctx.Err()
}

// Step performs exactly one transition and returns the new state. A panic inside the step is
// logged and turns into StateBackingOff.
func (l *Loop) Step(ctx context.Context) (next State) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Str("state", l.state.String()).Msg("recovered from panic in worker step")
			l.pending = nil
			l.current = nil
			l.state = StateBackingOff
			next = l.state
		}
	}()

	switch l.state {
	case StateIdle:
		l.state = StateReceiving
	case StateReceiving:
		l.receive(ctx)
	case StateProcessing:
		l.process(ctx)
	case StateAcknowledging:
		l.acknowledge(ctx)
	case StateBackingOff:
		l.backOff(ctx)
	}
	return l.state
}

func (l *Loop) receive(ctx context.Context) {
	msgs, err := l.queue.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			l.state = StateIdle
			return
		}
		l.log.Error().Err(err).Msg("error receiving messages from queue")
		l.metrics.Record(ctx, metrics.ReceiveFailed)
		l.state = StateBackingOff
		return
	}

	if len(msgs) == 0 {
		l.state = StateIdle
		return
	}

	for range msgs {
		l.metrics.Record(ctx, metrics.Received)
	}
	l.pending = msgs
	l.state = StateProcessing
}

func (l *Loop) process(ctx context.Context) {
	msg := l.pending[0]
	l.pending = l.pending[1:]

	log := l.log.With().Str("message_id", msg.ID).Logger()
	log.Info().Str("body", msg.Body).Str("receive_count", msg.ReceiveCount()).Msg("processing message")

	if err := l.store.InsertRow(ctx, l.table, orders.DetailsColumn, msg.Body); err != nil {
		log.Error().Err(err).Str("body", msg.Body).Msg("insert failed, leaving message for redelivery")
		l.metrics.Record(ctx, metrics.PersistFailed)
		l.state = l.next()
		return
	}

	l.metrics.Record(ctx, metrics.Persisted)
	l.current = &msg
	l.state = StateAcknowledging
}

func (l *Loop) acknowledge(ctx context.Context) {
	msg := *l.current
	l.current = nil

	// the row is already committed, so try the delete even while shutting down
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()

	if err := l.queue.Delete(delCtx, msg); err != nil {
		ev := l.log.Error()
		if errors.Is(err, queue.ErrStaleReceipt) {
			ev = l.log.Warn()
		}
		ev.Err(err).Str("message_id", msg.ID).Str("body", msg.Body).Msg("delete failed, message will be redelivered")
		l.metrics.Record(ctx, metrics.DeleteFailed)
	} else {
		l.metrics.Record(ctx, metrics.Deleted)
	}

	l.state = l.next()
}

func (l *Loop) backOff(ctx context.Context) {
	l.metrics.Record(ctx, metrics.BackedOff)
	l.log.Info().Dur("backoff", l.backoff).Msg("backing off")

	if err := l.sleep(ctx, l.backoff); err != nil {
		l.log.Debug().Err(err).Msg("backoff interrupted")
	}
	l.state = StateIdle
}

func (l *Loop) next() State {
	if len(l.pending) > 0 {
		return StateProcessing
	}
	return StateIdle
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
