package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSendConcatenatesDeltas(t *testing.T) {
	// No aggregated text in the final response: the accumulator wins.
	provider := NewMockProvider("mock").AddTextTurn(MockTurn{
		Events: []Event{
			{Type: EventTextDelta, Text: "Hel"},
			{Type: EventTextDelta, Text: "lo"},
			{Type: EventCompleted, Final: &FinalResponse{ID: "resp_1"}},
		},
	})

	conv := &Conversation{}
	var updates []string
	out, err := NewTextRelay(provider).Send(context.Background(), TextRequest{Input: "hi"}, conv, func(acc string) {
		updates = append(updates, acc)
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "Hello" {
		t.Errorf("out = %q, want %q", out, "Hello")
	}
	if len(updates) != 2 || updates[0] != "Hel" || updates[1] != "Hello" {
		t.Errorf("incremental updates = %v, want [Hel Hello]", updates)
	}
	if got := conv.Turns[len(conv.Turns)-1].Content; got != "Hello" {
		t.Errorf("stored assistant content = %q, want %q", got, "Hello")
	}
}

func TestSendPrefersFinalOutputText(t *testing.T) {
	provider := NewMockProvider("mock").AddTextResponse("resp_1", "Hello, world.", "Hel", "lo")

	conv := &Conversation{}
	out, err := NewTextRelay(provider).Send(context.Background(), TextRequest{Input: "hi"}, conv, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "Hello, world." {
		t.Errorf("out = %q, want final aggregated text", out)
	}
}

func TestSendAppendsTwoTurnsPerSuccess(t *testing.T) {
	provider := NewMockProvider("mock").
		AddTextResponse("resp_1", "one", "one").
		AddTextResponse("resp_2", "two", "two").
		AddTextResponse("resp_3", "three", "three")

	conv := &Conversation{}
	r := NewTextRelay(provider)
	for i, input := range []string{"a", "b", "c"} {
		if _, err := r.Send(context.Background(), TextRequest{Input: input}, conv, nil); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if conv.Len() != (i+1)*2 {
			t.Fatalf("after turn %d: %d turns, want %d", i+1, conv.Len(), (i+1)*2)
		}
	}
	if conv.LastResponseID != "resp_3" {
		t.Errorf("LastResponseID = %q, want id of the last call", conv.LastResponseID)
	}
}

func TestSendThreadsPreviousResponseID(t *testing.T) {
	provider := NewMockProvider("mock").
		AddTextResponse("resp_1", "one", "one").
		AddTextResponse("resp_2", "two", "two")

	conv := &Conversation{}
	r := NewTextRelay(provider)
	if _, err := r.Send(context.Background(), TextRequest{Input: "a"}, conv, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Send(context.Background(), TextRequest{Input: "b"}, conv, nil); err != nil {
		t.Fatal(err)
	}

	if got := provider.TextRequests[0].PreviousResponseID; got != "" {
		t.Errorf("first call threaded %q, want empty", got)
	}
	if got := provider.TextRequests[1].PreviousResponseID; got != "resp_1" {
		t.Errorf("second call threaded %q, want resp_1", got)
	}
}

func TestSendTransportErrorLeavesConversationUntouched(t *testing.T) {
	provider := NewMockProvider("mock").
		AddTextResponse("resp_1", "fine", "fine").
		AddTextTurn(MockTurn{
			Events: []Event{{Type: EventTextDelta, Text: "par"}},
			Err:    errors.New("connection reset"),
		})

	conv := &Conversation{}
	r := NewTextRelay(provider)
	if _, err := r.Send(context.Background(), TextRequest{Input: "a"}, conv, nil); err != nil {
		t.Fatal(err)
	}
	before := conv.Snapshot()

	out, err := r.Send(context.Background(), TextRequest{Input: "b"}, conv, nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if out != "par" {
		t.Errorf("accumulated text = %q, want partial output for display", out)
	}
	if conv.Len() != len(before) {
		t.Fatalf("failed turn changed turn count: %d -> %d", len(before), conv.Len())
	}
	for i, turn := range conv.Turns {
		if turn != before[i] {
			t.Errorf("turn %d changed: %+v -> %+v", i, before[i], turn)
		}
	}
	if conv.LastResponseID != "resp_1" {
		t.Errorf("LastResponseID = %q, want resp_1 (untouched by failed call)", conv.LastResponseID)
	}
}

func TestSendStreamErrorIsSurfacedAndDrainingContinues(t *testing.T) {
	provider := NewMockProvider("mock").AddTextTurn(MockTurn{
		Events: []Event{
			{Type: EventTextDelta, Text: "He"},
			{Type: EventStreamError, Err: errors.New("rate limited upstream")},
			{Type: EventTextDelta, Text: "llo"},
			{Type: EventCompleted, Final: &FinalResponse{ID: "resp_1"}},
		},
	})

	var surfaced []error
	r := NewTextRelay(provider)
	r.OnStreamError = func(err error) { surfaced = append(surfaced, err) }

	conv := &Conversation{}
	out, err := r.Send(context.Background(), TextRequest{Input: "hi"}, conv, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "Hello" {
		t.Errorf("out = %q, want deltas from both sides of the error", out)
	}
	if len(surfaced) != 1 {
		t.Fatalf("surfaced %d stream errors, want 1", len(surfaced))
	}
}

func TestSendEmptyResultAppendsNoAssistantTurn(t *testing.T) {
	provider := NewMockProvider("mock").AddTextTurn(MockTurn{
		Events: []Event{{Type: EventCompleted, Final: &FinalResponse{ID: "resp_9"}}},
	})

	conv := &Conversation{}
	conv.LastResponseID = "resp_1"
	out, err := NewTextRelay(provider).Send(context.Background(), TextRequest{Input: "hi"}, conv, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty", out)
	}
	if conv.Len() != 0 {
		t.Errorf("empty exchange appended %d turns", conv.Len())
	}
	if conv.LastResponseID != "resp_1" {
		t.Errorf("empty exchange moved LastResponseID to %q", conv.LastResponseID)
	}
}

func TestSendRejectsEmptyInput(t *testing.T) {
	conv := &Conversation{}
	_, err := NewTextRelay(NewMockProvider("mock")).Send(context.Background(), TextRequest{Input: "  "}, conv, nil)
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	if conv.Len() != 0 {
		t.Errorf("rejected input appended %d turns", conv.Len())
	}
}

func TestSendNeverClearsResponseIDOnSuccess(t *testing.T) {
	// A completed exchange without an id must not blank the stored one.
	provider := NewMockProvider("mock").AddTextTurn(MockTurn{
		Events: []Event{
			{Type: EventTextDelta, Text: "ok"},
			{Type: EventCompleted, Final: &FinalResponse{ID: "", OutputText: "ok"}},
		},
	})

	conv := &Conversation{LastResponseID: "resp_1"}
	if _, err := NewTextRelay(provider).Send(context.Background(), TextRequest{Input: "hi"}, conv, nil); err != nil {
		t.Fatal(err)
	}
	if conv.LastResponseID != "resp_1" {
		t.Errorf("LastResponseID = %q, want resp_1 preserved", conv.LastResponseID)
	}
}

func TestSendProviderOpenFailure(t *testing.T) {
	provider := NewMockProvider("mock") // no turns scripted: StreamText errors
	conv := &Conversation{}
	_, err := NewTextRelay(provider).Send(context.Background(), TextRequest{Input: "hi"}, conv, nil)
	if err == nil {
		t.Fatal("expected error when the provider cannot open a stream")
	}
	if conv.Len() != 0 {
		t.Errorf("failed open appended %d turns", conv.Len())
	}
}

func ExampleTextRelay_Send() {
	provider := NewMockProvider("mock").AddTextResponse("resp_1", "Hello there.", "Hello", " there.")
	conv := &Conversation{}
	out, _ := NewTextRelay(provider).Send(context.Background(), TextRequest{Input: "hi"}, conv, nil)
	fmt.Println(out, conv.Len())
	// Output: Hello there. 2
}
