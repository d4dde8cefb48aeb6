package relay

import "context"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation entry. Turns are immutable once created.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EventType identifies the kind of a stream event.
type EventType int

const (
	// EventTextDelta carries an incremental chunk of assistant text.
	EventTextDelta EventType = iota
	// EventCompleted carries the final aggregated response for a text call.
	EventCompleted
	// EventPartialImage carries a decoded in-progress preview frame.
	EventPartialImage
	// EventFinalImage carries the decoded final image.
	EventFinalImage
	// EventStreamError is a vendor-reported mid-stream problem. It is
	// surfaced to the caller but does not terminate event draining.
	EventStreamError
	// EventError is a transport or API failure. It terminates the call.
	EventError
	// EventDone signals normal stream exhaustion.
	EventDone
)

// Event is the unit flowing from a provider stream to a relay reducer.
type Event struct {
	Type  EventType
	Text  string         // EventTextDelta
	Final *FinalResponse // EventCompleted
	Image []byte         // EventPartialImage / EventFinalImage
	Index int            // ordinal of a partial frame (1-based)
	Err   error          // EventStreamError / EventError
}

// FinalResponse is the aggregated result of a completed text exchange.
type FinalResponse struct {
	ID         string
	OutputText string
}

// Stream delivers events in arrival order. Recv returns io.EOF when the
// stream is exhausted.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// TextRequest describes one streamed call to the remote text endpoint.
// Instructions are applied fresh on every call; the remote API does not
// carry prior instructions automatically. PreviousResponseID threads prior
// turns without resending full history.
type TextRequest struct {
	Model              string
	Instructions       string
	Input              string
	PreviousResponseID string
	WebSearch          bool
}

// ImageRequest describes one streamed call to the remote image endpoint.
// PartialImages is the number of in-progress preview frames the endpoint
// should emit before the final frame.
type ImageRequest struct {
	Model         string
	Prompt        string
	PartialImages int
}

// Provider opens streamed calls against a remote generation API.
type Provider interface {
	Name() string
	StreamText(ctx context.Context, req TextRequest) (Stream, error)
	StreamImage(ctx context.Context, req ImageRequest) (Stream, error)
}
