package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-sqs-order-worker/internal/health"
	"github.com/imrishuroy/go-sqs-order-worker/internal/queue"
	"github.com/imrishuroy/go-sqs-order-worker/internal/worker"
)

type downQueue struct{ receives chan struct{} }

func (q downQueue) Receive(ctx context.Context) ([]queue.Message, error) {
	select {
	case q.receives <- struct{}{}:
	default:
	}
	return nil, errors.New("queue unreachable")
}

func (q downQueue) Delete(ctx context.Context, msg queue.Message) error { return nil }

type noStore struct{}

func (noStore) InsertRow(ctx context.Context, table, column, value string) error { return nil }

func TestHealthStaysUpWhileWorkerBacksOff(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	hs := health.NewServer("health", addr, health.NewRouter(), zerolog.Nop())
	hs.Start()
	defer shutdown(hs, zerolog.Nop())

	q := downQueue{receives: make(chan struct{}, 1)}
	loop := worker.New(worker.Config{
		Queue:   q,
		Store:   noStore{},
		Table:   "orders",
		Backoff: time.Hour,
		Logger:  zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	// the first receive failed, so the loop is now sleeping for an hour
	<-q.receives

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + health.Path)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
