package relay

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// imageEventKind is the closed classification of vendor image stream events.
type imageEventKind int

const (
	frameIgnored imageEventKind = iota
	framePartial
	frameFinal
	frameError
)

// finalImageEvents lists every event name the vendor has used for the
// terminal image frame across API versions. This is a compatibility shim;
// extend the set rather than special-casing call sites.
var finalImageEvents = map[string]bool{
	"image_generation.completed":               true,
	"image_generation.image":                   true,
	"image.image":                              true,
	"image.completed":                          true,
	"response.image_generation_call.completed": true,
}

// classifyImageEvent maps a vendor event name onto the frame taxonomy.
// Unrecognized names fall through to frameIgnored.
func classifyImageEvent(kind string) imageEventKind {
	switch {
	case kind == "image_generation.partial_image":
		return framePartial
	case finalImageEvents[kind]:
		return frameFinal
	case kind == "error" || strings.HasSuffix(kind, ".error"):
		return frameError
	default:
		return frameIgnored
	}
}

// rawImageEvent is the vendor wire shape shared by image stream events.
type rawImageEvent struct {
	Kind    string
	B64JSON string
	Index   int
	ErrMsg  string
}

// reduceRawImageEvent converts a vendor event into a relay event. The second
// return is false for event kinds that are quietly ignored.
func reduceRawImageEvent(raw rawImageEvent) (Event, bool) {
	switch classifyImageEvent(raw.Kind) {
	case framePartial:
		data, err := base64.StdEncoding.DecodeString(raw.B64JSON)
		if err != nil {
			return Event{Type: EventStreamError, Err: fmt.Errorf("decode partial image: %w", err)}, true
		}
		return Event{Type: EventPartialImage, Image: data, Index: raw.Index + 1}, true
	case frameFinal:
		if raw.B64JSON == "" {
			return Event{}, false
		}
		data, err := base64.StdEncoding.DecodeString(raw.B64JSON)
		if err != nil {
			return Event{Type: EventStreamError, Err: fmt.Errorf("decode final image: %w", err)}, true
		}
		return Event{Type: EventFinalImage, Image: data}, true
	case frameError:
		msg := raw.ErrMsg
		if msg == "" {
			msg = raw.Kind
		}
		return Event{Type: EventStreamError, Err: fmt.Errorf("image generation error: %s", msg)}, true
	default:
		return Event{}, false
	}
}
