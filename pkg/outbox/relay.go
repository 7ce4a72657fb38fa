package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Sink delivers a locked event to the bus.
type Sink interface {
	Dispatch(ctx context.Context, event Event) error
}

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

type Relay struct {
	log       *slog.Logger
	store     Store
	sink      Sink
	relayID   string
	batchSize int
	interval  time.Duration
	maxIdle   time.Duration
	lease     time.Duration
	leaseStep int
}

func NewRelay(log *slog.Logger, store Store, sink Sink, relayID string) *Relay {
	return &Relay{
		log:       log,
		store:     store,
		sink:      sink,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		maxIdle:   10 * time.Second,
		lease:     5 * time.Second,
		leaseStep: 25,
	}
}

// Run polls for pending events until ctx is cancelled. Idle or failing polls
// back off exponentially up to maxIdle; a pass that moved events snaps the
// cadence back to interval.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.interval
	t := time.NewTimer(wait)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
		}

		n, err := r.drainOnce(ctx)
		if err != nil {
			r.log.Error("relay pass failed", "err", err)
		}
		if n == 0 {
			wait = min(wait*2, r.maxIdle)
		} else {
			wait = r.interval
		}
		t.Reset(wait)
	}
}

// drainOnce locks one batch and pushes it to the sink, extending the lease
// every leaseStep events so a slow broker cannot let another relay reclaim
// the tail of the batch mid-flight.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil || len(events) == 0 {
		return 0, err
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	sent := make([]int64, 0, len(events))
	for i, e := range events {
		if i > 0 && i%r.leaseStep == 0 {
			if err := r.store.ExtendLease(ctx, r.relayID, ids[i:], r.lease); err != nil {
				r.log.Error("relay lease extend failed", "err", err)
			}
		}
		if err := r.sink.Dispatch(ctx, e); err != nil {
			if merrr := r.store.MarkFailed(ctx, e.ID, err.Error()); merrr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", merrr)
			}
			continue
		}
		sent = append(sent, e.ID)
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return len(sent), err
		}
	}
	return len(sent), nil
}
