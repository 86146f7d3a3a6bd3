package ledger

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrSequencerStopped = errors.New("sequencer stopped")

// Sequencer runs submitted calls one at a time on a single goroutine, so
// every external call runs to completion before the next one starts. Calls
// made from inside a running call (for example from a Receiver) do not go
// through the sequencer; they run inline and meet the engine's latch.
type Sequencer struct {
	calls   chan *call
	stopped chan struct{}
}

const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

type call struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
	state  atomic.Int32
}

func NewSequencer(queueSize int) *Sequencer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Sequencer{
		calls:   make(chan *call, queueSize),
		stopped: make(chan struct{}),
	}
}

func (s *Sequencer) Start(ctx context.Context) {
	go func() {
		defer close(s.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-s.calls:
				if err := c.ctx.Err(); err != nil {
					c.result <- err
					continue
				}
				if !c.state.CompareAndSwap(callPending, callRunning) {
					continue
				}
				// A started call finishes even if its caller goes away.
				c.result <- c.fn(context.WithoutCancel(c.ctx))
			}
		}
	}()
}

// Do queues fn and waits for it. If ctx ends before fn starts, fn never runs
// and Do returns ctx.Err(). Once fn has started it runs to completion and Do
// returns its result.
func (s *Sequencer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	c := &call{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case s.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSequencerStopped
	}
	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		if c.state.CompareAndSwap(callPending, callAbandoned) {
			return ctx.Err()
		}
		return <-c.result
	case <-s.stopped:
		// The loop may have finished c just before exiting.
		select {
		case err := <-c.result:
			return err
		default:
			return ErrSequencerStopped
		}
	}
}
