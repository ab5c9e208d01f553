// Package metrics counts message outcomes. Recorders never fail the caller: a metric that
// cannot be published is logged and dropped.
package metrics

import "context"

// Outcome is what happened to one message (or one receive call).
type Outcome string

const (
	Received      Outcome = "received"
	ReceiveFailed Outcome = "receive_failed"
	Persisted     Outcome = "persisted"
	PersistFailed Outcome = "persist_failed"
	Deleted       Outcome = "deleted"
	DeleteFailed  Outcome = "delete_failed"
	BackedOff     Outcome = "backed_off"
)

// Outcomes lists every Outcome, in pipeline order.
var Outcomes = []Outcome{Received, ReceiveFailed, Persisted, PersistFailed, Deleted, DeleteFailed, BackedOff}

// Recorder receives outcomes from the worker.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}

type nop struct{}

func (nop) Record(context.Context, Outcome) {}

// Nop discards everything.
func Nop() Recorder { return nop{} }

type multi []Recorder

func (m multi) Record(ctx context.Context, o Outcome) {
	for _, r := range m {
		r.Record(ctx, o)
	}
}

// Multi fans out to every non-nil recorder.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
