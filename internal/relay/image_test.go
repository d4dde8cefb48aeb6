package relay

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestGeneratePartialsThenCompletion(t *testing.T) {
	provider := NewMockProvider("mock").AddImageTurn(MockTurn{
		Events: []Event{
			{Type: EventPartialImage, Image: []byte("p1"), Index: 1},
			{Type: EventPartialImage, Image: []byte("p2"), Index: 2},
			{Type: EventPartialImage, Image: []byte("p3"), Index: 3},
			{Type: EventFinalImage, Image: []byte("final")},
		},
	})

	var frames []Frame
	result, err := NewImageRelay(provider).Generate(context.Background(), ImageRequest{Prompt: "a cat", PartialImages: 3}, func(f Frame) {
		frames = append(frames, f)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if !bytes.Equal(result.Data, []byte("final")) {
		t.Errorf("result data = %q, want completion bytes", result.Data)
	}
	if result.Fallback {
		t.Error("result flagged as fallback despite a completion frame")
	}
	if result.Partials != 3 {
		t.Errorf("result.Partials = %d, want 3", result.Partials)
	}

	if len(frames) != 4 {
		t.Fatalf("got %d frame updates, want 3 partial + 1 final", len(frames))
	}
	for i := 0; i < 3; i++ {
		if frames[i].Final || frames[i].Index != i+1 {
			t.Errorf("frame %d = %+v, want partial with index %d", i, frames[i], i+1)
		}
	}
	last := frames[3]
	if !last.Final || last.Fallback {
		t.Errorf("terminal frame = %+v, want Final without Fallback", last)
	}
}

func TestGenerateFallsBackToLastPartial(t *testing.T) {
	provider := NewMockProvider("mock").AddImageTurn(MockTurn{
		Events: []Event{
			{Type: EventPartialImage, Image: []byte("p1"), Index: 1},
			{Type: EventPartialImage, Image: []byte("p2"), Index: 2},
		},
	})

	var frames []Frame
	result, err := NewImageRelay(provider).Generate(context.Background(), ImageRequest{Prompt: "a dog"}, func(f Frame) {
		frames = append(frames, f)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result == nil {
		t.Fatal("expected a promoted-partial result")
	}
	if !bytes.Equal(result.Data, []byte("p2")) {
		t.Errorf("result data = %q, want the last partial", result.Data)
	}
	if !result.Fallback {
		t.Error("promoted partial not flagged as fallback")
	}

	last := frames[len(frames)-1]
	if !last.Final || !last.Fallback {
		t.Errorf("terminal frame = %+v, want Final+Fallback", last)
	}
}

func TestGenerateEmptyStream(t *testing.T) {
	provider := NewMockProvider("mock").AddImageTurn(MockTurn{})

	called := 0
	result, err := NewImageRelay(provider).Generate(context.Background(), ImageRequest{Prompt: "nothing"}, func(Frame) {
		called++
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil for a frameless stream", result)
	}
	if called != 0 {
		t.Errorf("onFrame invoked %d times for a frameless stream", called)
	}
}

func TestGenerateStreamErrorKeepsDraining(t *testing.T) {
	provider := NewMockProvider("mock").AddImageTurn(MockTurn{
		Events: []Event{
			{Type: EventPartialImage, Image: []byte("p1"), Index: 1},
			{Type: EventStreamError, Err: errors.New("content policy warning")},
			{Type: EventFinalImage, Image: []byte("final")},
		},
	})

	var surfaced []error
	r := NewImageRelay(provider)
	r.OnStreamError = func(err error) { surfaced = append(surfaced, err) }

	result, err := r.Generate(context.Background(), ImageRequest{Prompt: "x"}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result == nil || !bytes.Equal(result.Data, []byte("final")) {
		t.Errorf("result = %+v, want completion bytes despite mid-stream error", result)
	}
	if len(surfaced) != 1 {
		t.Fatalf("surfaced %d stream errors, want 1", len(surfaced))
	}
}

func TestGenerateTransportError(t *testing.T) {
	provider := NewMockProvider("mock").AddImageTurn(MockTurn{
		Events: []Event{{Type: EventPartialImage, Image: []byte("p1"), Index: 1}},
		Err:    errors.New("connection reset"),
	})

	result, err := NewImageRelay(provider).Generate(context.Background(), ImageRequest{Prompt: "x"}, nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if result != nil {
		t.Errorf("result = %+v, want nil on transport failure", result)
	}
}

func TestGenerateClampsPartialCount(t *testing.T) {
	provider := NewMockProvider("mock").
		AddImageTurn(MockTurn{Events: []Event{{Type: EventFinalImage, Image: []byte("a")}}}).
		AddImageTurn(MockTurn{Events: []Event{{Type: EventFinalImage, Image: []byte("b")}}})

	r := NewImageRelay(provider)
	if _, err := r.Generate(context.Background(), ImageRequest{Prompt: "x", PartialImages: 99}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Generate(context.Background(), ImageRequest{Prompt: "x", PartialImages: -7}, nil); err != nil {
		t.Fatal(err)
	}

	if got := provider.ImageRequests[0].PartialImages; got != 4 {
		t.Errorf("oversized request clamped to %d, want 4", got)
	}
	if got := provider.ImageRequests[1].PartialImages; got != 0 {
		t.Errorf("negative request clamped to %d, want 0", got)
	}
}

func TestClampPartials(t *testing.T) {
	cases := []struct{ in, want int }{
		{-1, 0}, {0, 0}, {2, 2}, {4, 4}, {5, 4}, {100, 4},
	}
	for _, tc := range cases {
		if got := ClampPartials(tc.in); got != tc.want {
			t.Errorf("ClampPartials(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
