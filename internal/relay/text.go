package relay

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// TextRelay forwards one user turn at a time to the remote text endpoint and
// reduces the streamed delta events into a growing assistant reply.
type TextRelay struct {
	provider Provider

	// OnStreamError receives vendor-reported mid-stream errors. Draining
	// continues after the callback returns.
	OnStreamError func(error)
}

func NewTextRelay(provider Provider) *TextRelay {
	return &TextRelay{provider: provider}
}

// Send relays one user turn. It passes only the new turn plus the store's
// last response identifier; prior context is threaded server-side. onUpdate
// is invoked with the full accumulated text after every delta so the caller
// can display partial output without waiting for completion.
//
// On success the user and assistant turns are appended to conv and
// LastResponseID is overwritten with the new response identifier. A failed
// call leaves conv exactly as it was before the call and returns the text
// accumulated so far alongside the error. An exchange that produces no text
// at all appends nothing and returns "" with a nil error.
func (r *TextRelay) Send(ctx context.Context, req TextRequest, conv *Conversation, onUpdate func(string)) (string, error) {
	if strings.TrimSpace(req.Input) == "" {
		return "", fmt.Errorf("empty user input")
	}
	req.PreviousResponseID = conv.LastResponseID

	mark := conv.Len()
	conv.Append(RoleUser, req.Input)

	stream, err := r.provider.StreamText(ctx, req)
	if err != nil {
		conv.truncate(mark)
		return "", err
	}
	defer stream.Close()

	var acc strings.Builder
	var final *FinalResponse
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			conv.truncate(mark)
			return acc.String(), err
		}
		switch event.Type {
		case EventTextDelta:
			acc.WriteString(event.Text)
			if onUpdate != nil {
				onUpdate(acc.String())
			}
		case EventCompleted:
			final = event.Final
		case EventStreamError:
			if r.OnStreamError != nil && event.Err != nil {
				r.OnStreamError(event.Err)
			}
		case EventError:
			conv.truncate(mark)
			return acc.String(), event.Err
		}
	}

	// Prefer the final aggregated text; fall back to the accumulator.
	out := acc.String()
	if final != nil && final.OutputText != "" {
		out = final.OutputText
	}
	if out == "" {
		// Nothing to show, nothing to store.
		conv.truncate(mark)
		return "", nil
	}

	conv.Append(RoleAssistant, out)
	if final != nil && final.ID != "" {
		conv.LastResponseID = final.ID
	}
	return out, nil
}
