package relay

import (
	"context"
	"io"
)

const maxPartialImages = 4

// Frame is one displayed image update during a generation call.
type Frame struct {
	Data     []byte
	Index    int  // ordinal position of a partial frame, 1-based
	Final    bool // true for the terminal frame
	Fallback bool // true when the terminal frame is a promoted partial
}

// ImageResult is the downloadable outcome of a generation call.
type ImageResult struct {
	Data     []byte
	Fallback bool
	Partials int
}

// ImageRelay forwards an image prompt to the remote image endpoint and
// reduces the streamed partial/completion events into a frame sequence.
// No state persists across invocations.
type ImageRelay struct {
	provider Provider

	// OnStreamError receives vendor-reported mid-stream errors. Draining
	// continues after the callback returns.
	OnStreamError func(error)
}

func NewImageRelay(provider Provider) *ImageRelay {
	return &ImageRelay{provider: provider}
}

// ClampPartials bounds a requested partial-frame count to the supported
// range. Out-of-range values are clamped rather than rejected.
func ClampPartials(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxPartialImages {
		return maxPartialImages
	}
	return n
}

// Generate relays one image prompt. onFrame is invoked for every partial
// frame as it arrives and once for the terminal frame. If the stream ends
// without a recognized completion event, the last captured partial is
// promoted to the result and emitted as a Fallback-flagged final frame.
// A stream that produced no frames at all yields (nil, nil); the caller
// reports that as an informational notice, not an error.
func (r *ImageRelay) Generate(ctx context.Context, req ImageRequest, onFrame func(Frame)) (*ImageResult, error) {
	req.PartialImages = ClampPartials(req.PartialImages)

	stream, err := r.provider.StreamImage(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var partials [][]byte
	var finalData []byte
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch event.Type {
		case EventPartialImage:
			partials = append(partials, event.Image)
			if onFrame != nil {
				onFrame(Frame{Data: event.Image, Index: len(partials)})
			}
		case EventFinalImage:
			finalData = event.Image
			if onFrame != nil {
				onFrame(Frame{Data: event.Image, Final: true})
			}
		case EventStreamError:
			if r.OnStreamError != nil && event.Err != nil {
				r.OnStreamError(event.Err)
			}
		case EventError:
			return nil, event.Err
		}
	}

	fallback := false
	if finalData == nil && len(partials) > 0 {
		finalData = partials[len(partials)-1]
		fallback = true
		if onFrame != nil {
			onFrame(Frame{Data: finalData, Final: true, Fallback: true})
		}
	}
	if finalData == nil {
		return nil, nil
	}
	return &ImageResult{Data: finalData, Fallback: fallback, Partials: len(partials)}, nil
}
