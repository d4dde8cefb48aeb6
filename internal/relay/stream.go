package relay

import (
	"context"
	"io"
)

// eventPipe adapts a producer goroutine to the Stream interface. The
// producer writes into a buffered channel and a run failure reaches the
// consumer in-band, as a terminal EventError.
type eventPipe struct {
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan Event
}

func newEventStream(ctx context.Context, run func(context.Context, chan<- Event) error) Stream {
	pipeCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		if err := run(pipeCtx, ch); err != nil {
			ch <- Event{Type: EventError, Err: err}
		}
	}()
	return &eventPipe{ctx: pipeCtx, cancel: cancel, events: ch}
}

func (p *eventPipe) Recv() (Event, error) {
	// Already-produced events win over cancellation; a completion sitting in
	// the buffer must not be lost to a simultaneous ctx.Done().
	select {
	case event, ok := <-p.events:
		return p.deliver(event, ok)
	default:
	}

	select {
	case <-p.ctx.Done():
		return Event{}, p.ctx.Err()
	case event, ok := <-p.events:
		return p.deliver(event, ok)
	}
}

func (p *eventPipe) deliver(event Event, ok bool) (Event, error) {
	if !ok {
		return Event{}, io.EOF
	}
	return event, nil
}

func (p *eventPipe) Close() error {
	p.cancel()
	return nil
}
