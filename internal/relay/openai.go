package relay

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider against the OpenAI Responses and
// Images APIs.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	imageModel string
}

func NewOpenAIProvider(apiKey, model, imageModel string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:     &client,
		model:      model,
		imageModel: imageModel,
	}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s, %s)", p.model, p.imageModel)
}

// StreamText opens one streaming Responses API call carrying only the new
// user turn; prior turns are threaded via previous_response_id.
func (p *OpenAIProvider) StreamText(ctx context.Context, req TextRequest) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		params := responses.ResponseNewParams{
			Model: shared.ResponsesModel(chooseModel(req.Model, p.model)),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(req.Input),
			},
		}
		if req.Instructions != "" {
			params.Instructions = openai.String(req.Instructions)
		}
		if req.PreviousResponseID != "" {
			params.PreviousResponseID = openai.String(req.PreviousResponseID)
		}
		if req.WebSearch {
			webSearchTool := responses.ToolParamOfWebSearchPreview(responses.WebSearchToolTypeWebSearchPreview)
			params.Tools = []responses.ToolUnionParam{webSearchTool}
		}

		stream := p.client.Responses.NewStreaming(ctx, params)
		for stream.Next() {
			switch event := stream.Current().AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if event.Delta != "" {
					events <- Event{Type: EventTextDelta, Text: event.Delta}
				}
			case responses.ResponseErrorEvent:
				events <- Event{Type: EventStreamError, Err: fmt.Errorf("openai stream error: %s", event.Message)}
			case responses.ResponseCompletedEvent:
				events <- Event{Type: EventCompleted, Final: &FinalResponse{
					ID:         event.Response.ID,
					OutputText: event.Response.OutputText(),
				}}
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai streaming error: %w", err)
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

// StreamImage opens one streaming Images API call requesting the configured
// number of partial preview frames before the final image.
func (p *OpenAIProvider) StreamImage(ctx context.Context, req ImageRequest) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		stream := p.client.Images.GenerateStreaming(ctx, openai.ImageGenerateParams{
			Prompt:        req.Prompt,
			Model:         openai.ImageModel(chooseModel(req.Model, p.imageModel)),
			N:             openai.Int(1),
			PartialImages: openai.Int(int64(req.PartialImages)),
		})
		for stream.Next() {
			current := stream.Current()
			raw := rawImageEvent{
				Kind:    string(current.Type),
				B64JSON: current.B64JSON,
				Index:   int(current.PartialImageIndex),
			}
			if event, ok := reduceRawImageEvent(raw); ok {
				events <- event
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai image streaming error: %w", err)
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}
