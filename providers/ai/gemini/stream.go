package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/aigohq/aigo/core/stream"
	"github.com/aigohq/aigo/internal/utils"
	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/observability"
)

// StreamMessage implements ai.StreamProvider for the Gemini API.
// It uses the streamGenerateContent endpoint with alt=sse to receive
// incremental response chunks as SSE events.
//
// The request is encoded and the response decoded through the canonical
// ai.StreamAdapter/core/stream.Coordinator pipeline (contentAdapter, in this
// package); StreamMessage's own job is only to translate the coordinator's
// ai.Chunk stream back into the ai.StreamEvent vocabulary existing callers
// (ai.ChatStream, core/client, cmd/aigo-stream) expect.
//
// Unlike OpenAI, Gemini SSE events each carry a full generateContentResponse
// (not a delta); contentAdapter tracks the cumulative text length across
// events and emits only the new portion as each ai.Chunk.
func (provider *GeminiProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	span := observability.SpanFromContext(ctx)
	observer := observability.ObserverFromContext(ctx)

	model := request.Model
	if model == "" {
		model = defaultModel
	}

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, "gemini"),
			observability.String(observability.AttrLLMEndpoint, provider.baseURL),
			observability.String(observability.AttrLLMModel, model),
			observability.Bool("llm.streaming", true),
		)
	}

	if observer != nil {
		observer.Trace(ctx, "Gemini provider preparing streaming request",
			observability.String(observability.AttrLLMProvider, "gemini"),
			observability.String(observability.AttrLLMEndpoint, provider.baseURL),
			observability.String(observability.AttrLLMModel, model),
			observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
			observability.Int(observability.AttrRequestToolsCount, len(request.Tools)),
		)
	}

	if provider.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	adapter := newContentAdapter()
	reqCtx, opts := chatRequestToStreamInput(request)
	opts.Model = model
	body, err := adapter.EncodeRequest(reqCtx, opts)
	if err != nil {
		return nil, err
	}

	streamURL := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", provider.baseURL, model)

	httpResponse, err := utils.DoPostStream(
		ctx,
		provider.client,
		streamURL,
		"", // Empty apiKey for DoPostStream's default Bearer auth
		body,
		utils.HeaderOption{Key: "x-goog-api-key", Value: provider.apiKey},
	)
	if err != nil {
		if observer != nil {
			observer.Trace(ctx, "Streaming HTTP request failed", observability.Error(err))
		}
		return nil, err
	}

	coordinator := stream.New(adapter, stream.FormatSSE, stream.Config{Observer: observer})
	coordinator.Start(ctx, httpResponse)
	handle := coordinator.Handle()

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		toolIndexByID := make(map[string]int)

		for chunk, iterErr := range handle.Iter() {
			if iterErr != nil {
				yield(ai.StreamEvent{}, iterErr)
				return
			}

			for _, event := range chunkToStreamEvents(chunk, toolIndexByID) {
				if event.err != nil {
					yield(ai.StreamEvent{}, event.err)
					return
				}
				if !yield(event.event, nil) {
					handle.Cancel()
					return
				}
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

type translatedEvent struct {
	event ai.StreamEvent
	err   error
}

func chunkToStreamEvents(chunk ai.Chunk, toolIndexByID map[string]int) []translatedEvent {
	switch chunk.Kind {
	case ai.ChunkKindContent:
		if chunk.Text == "" {
			return nil
		}
		return []translatedEvent{{event: ai.StreamEvent{Type: ai.StreamEventContent, Content: chunk.Text}}}

	case ai.ChunkKindThinking:
		if chunk.Text == "" {
			return nil
		}
		return []translatedEvent{{event: ai.StreamEvent{Type: ai.StreamEventReasoning, Reasoning: chunk.Text}}}

	case ai.ChunkKindToolCall:
		return []translatedEvent{{event: toolCallEvent(chunk.ToolCall, toolIndexByID)}}

	case ai.ChunkKindMeta:
		return metaChunkToStreamEvents(chunk)
	}
	return nil
}

// toolCallEvent assigns each call a zero-based index the first time its
// synthesized ID is seen. Gemini sends each function call whole, so every
// occurrence is already final — Partial is never set.
func toolCallEvent(tc *ai.ToolCallChunk, toolIndexByID map[string]int) ai.StreamEvent {
	idx, seen := toolIndexByID[tc.ID]
	if !seen {
		idx = len(toolIndexByID)
		toolIndexByID[tc.ID] = idx
	}
	return ai.StreamEvent{
		Type: ai.StreamEventToolCall,
		ToolCall: &ai.ToolCallDelta{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: string(tc.Arguments),
		},
	}
}

func metaChunkToStreamEvents(chunk ai.Chunk) []translatedEvent {
	if parseErr, ok := chunk.Meta["parse_error"].(string); ok {
		return []translatedEvent{{err: errors.New(parseErr)}}
	}

	var events []translatedEvent
	if usage, ok := chunk.Meta[ai.MetaUsage].(*ai.Usage); ok {
		events = append(events, translatedEvent{event: ai.StreamEvent{Type: ai.StreamEventUsage, Usage: usage}})
	}
	if native, ok := chunk.Meta["native_finish_reason"].(string); ok {
		events = append(events, translatedEvent{event: ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: mapFinishReason(native)}})
	}
	return events
}
