package relay

import (
	"context"
	"fmt"
	"sync"
)

// MockTurn is a scripted response from the mock provider. Events are
// emitted in order; Err, if set, is returned afterwards and surfaces as a
// transport failure.
type MockTurn struct {
	Events []Event
	Err    error
}

// MockProvider returns scripted streams and records all requests for
// verification. Text and image calls consume independent scripts.
type MockProvider struct {
	name       string
	textTurns  []MockTurn
	imageTurns []MockTurn
	textIndex  int
	imageIndex int

	TextRequests  []TextRequest  // recorded for verification
	ImageRequests []ImageRequest // recorded for verification

	mu sync.Mutex
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string {
	return m.name
}

// AddTextTurn appends a scripted text stream and returns the provider for
// chaining.
func (m *MockProvider) AddTextTurn(t MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textTurns = append(m.textTurns, t)
	return m
}

// AddTextResponse scripts a turn that streams the given chunks and completes
// with the given response id and aggregated text.
func (m *MockProvider) AddTextResponse(id, outputText string, chunks ...string) *MockProvider {
	turn := MockTurn{}
	for _, chunk := range chunks {
		turn.Events = append(turn.Events, Event{Type: EventTextDelta, Text: chunk})
	}
	turn.Events = append(turn.Events, Event{Type: EventCompleted, Final: &FinalResponse{ID: id, OutputText: outputText}})
	return m.AddTextTurn(turn)
}

// AddTextError scripts a turn that fails with a transport error.
func (m *MockProvider) AddTextError(err error) *MockProvider {
	return m.AddTextTurn(MockTurn{Err: err})
}

// AddImageTurn appends a scripted image stream and returns the provider for
// chaining.
func (m *MockProvider) AddImageTurn(t MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imageTurns = append(m.imageTurns, t)
	return m
}

func (m *MockProvider) StreamText(ctx context.Context, req TextRequest) (Stream, error) {
	m.mu.Lock()
	m.TextRequests = append(m.TextRequests, req)
	if m.textIndex >= len(m.textTurns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock provider: no more text turns configured (turn %d)", m.textIndex)
	}
	turn := m.textTurns[m.textIndex]
	m.textIndex++
	m.mu.Unlock()
	return scriptedStream(ctx, turn), nil
}

func (m *MockProvider) StreamImage(ctx context.Context, req ImageRequest) (Stream, error) {
	m.mu.Lock()
	m.ImageRequests = append(m.ImageRequests, req)
	if m.imageIndex >= len(m.imageTurns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock provider: no more image turns configured (turn %d)", m.imageIndex)
	}
	turn := m.imageTurns[m.imageIndex]
	m.imageIndex++
	m.mu.Unlock()
	return scriptedStream(ctx, turn), nil
}

func scriptedStream(ctx context.Context, turn MockTurn) Stream {
	return newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		for _, event := range turn.Events {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- event:
			}
		}
		if turn.Err != nil {
			return turn.Err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- Event{Type: EventDone}:
		}
		return nil
	})
}
