package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/imrishuroy/go-sqs-order-worker/internal/metrics"
	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/queue"
)

// receiveResult is one scripted answer of fakeQueue.Receive.
type receiveResult struct {
	msgs []queue.Message
	err  error
}

// fakeQueue replays scripted receive results and logs every call into a shared journal.
type fakeQueue struct {
	journal   *journal
	results   []receiveResult
	deleteErr error
	deleted   []string
	onEmpty   func()
}

func (q *fakeQueue) Receive(ctx context.Context) ([]queue.Message, error) {
	q.journal.add("receive")
	if len(q.results) == 0 {
		if q.onEmpty != nil {
			q.onEmpty()
		}
		return nil, nil
	}
	r := q.results[0]
	q.results = q.results[1:]
	return r.msgs, r.err
}

func (q *fakeQueue) Delete(ctx context.Context, msg queue.Message) error {
	q.journal.add("delete:" + msg.ReceiptHandle)
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deleted = append(q.deleted, msg.ReceiptHandle)
	return nil
}

// fakeStore fails inserts whose body is in failBodies.
type fakeStore struct {
	journal    *journal
	failBodies map[string]bool
	panicBody  string
	rows       []string
}

func (s *fakeStore) InsertRow(ctx context.Context, table, column, value string) error {
	s.journal.add("insert:" + value)
	if value == s.panicBody {
		panic("driver exploded")
	}
	if column != orders.DetailsColumn {
		return fmt.Errorf("unexpected column %s", column)
	}
	if s.failBodies[value] {
		return fmt.Errorf("%w: insert into %s: %w", orders.ErrPersistence, table, errors.New("connection lost"))
	}
	s.rows = append(s.rows, value)
	return nil
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakeSleeper records requested durations without sleeping.
type fakeSleeper struct {
	journal *journal
	slept   []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.journal.add("sleep")
	s.slept = append(s.slept, d)
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[metrics.Outcome]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[metrics.Outcome]int{}}
}

func (c *countingRecorder) Record(_ context.Context, o metrics.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[o]++
}

func msg(id, body string) queue.Message {
	return queue.Message{ID: id, Body: body, ReceiptHandle: "rh-" + id, Attributes: map[string]string{}}
}

// stuckCloudWatch never answers until release is closed.
type stuckCloudWatch struct {
	release chan struct{}
}

func (c *stuckCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	select {
	case <-c.release:
		return &cloudwatch.PutMetricDataOutput{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
