package relay

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestEventStreamDeliversThenEOF(t *testing.T) {
	stream := newEventStream(context.Background(), func(ctx context.Context, ch chan<- Event) error {
		ch <- Event{Type: EventTextDelta, Text: "a"}
		ch <- Event{Type: EventDone}
		return nil
	})
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil || event.Type != EventTextDelta {
		t.Fatalf("first recv = (%+v, %v)", event, err)
	}
	event, err = stream.Recv()
	if err != nil || event.Type != EventDone {
		t.Fatalf("second recv = (%+v, %v)", event, err)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("recv after close = %v, want io.EOF", err)
	}
}

func TestEventStreamRunErrorBecomesEvent(t *testing.T) {
	wantErr := errors.New("dial failed")
	stream := newEventStream(context.Background(), func(ctx context.Context, ch chan<- Event) error {
		return wantErr
	})
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if event.Type != EventError || !errors.Is(event.Err, wantErr) {
		t.Fatalf("event = %+v, want EventError wrapping the run error", event)
	}
}

func TestEventStreamDrainsBufferedEventsAfterCancel(t *testing.T) {
	done := make(chan struct{})
	stream := newEventStream(context.Background(), func(ctx context.Context, ch chan<- Event) error {
		ch <- Event{Type: EventTextDelta, Text: "buffered"}
		close(done)
		return nil
	})
	<-done

	// Cancel after the producer finished. The buffered event must still be
	// delivered before EOF.
	stream.Close()
	event, err := stream.Recv()
	if err != nil || event.Text != "buffered" {
		t.Fatalf("recv after close = (%+v, %v), want the buffered event", event, err)
	}
}

func TestChooseModel(t *testing.T) {
	if got := chooseModel("gpt-4o", "gpt-5"); got != "gpt-4o" {
		t.Errorf("explicit model = %q", got)
	}
	if got := chooseModel("  ", "gpt-5"); got != "gpt-5" {
		t.Errorf("blank request = %q, want fallback", got)
	}
}
