package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/aigohq/aigo/core/stream"
	"github.com/aigohq/aigo/internal/utils"
	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/observability"
)

// StreamMessage implements [ai.StreamProvider] for Anthropic's Messages API.
// It sends a streaming request (stream=true) and returns a [ai.ChatStream] that
// yields incremental deltas as SSE events arrive from the API.
//
// Pre-stream errors (missing API key, non-2xx HTTP response, network failure) are
// returned immediately as a non-nil error. Mid-stream errors (e.g., Anthropic
// "error" event, SSE parse failure) are yielded through the iterator.
//
// The request is encoded and the response decoded through the canonical
// ai.StreamAdapter/core/stream.Coordinator pipeline (messagesAdapter, in
// this package); StreamMessage's own job is only to translate the
// coordinator's ai.Chunk stream back into the ai.StreamEvent vocabulary
// existing callers (ai.ChatStream, core/client, cmd/aigo-stream) expect.
//
// Anthropic SSE lifecycle:
//
//	message_start → content_block_start → content_block_delta(s) →
//	content_block_stop → message_delta → message_stop
func (provider *AnthropicProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	span := observability.SpanFromContext(ctx)
	observer := observability.ObserverFromContext(ctx)

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, "anthropic"),
			observability.String(observability.AttrLLMEndpoint, provider.baseURL),
			observability.String(observability.AttrLLMModel, request.Model),
			observability.Bool("llm.streaming", true),
		)
	}

	if observer != nil {
		observer.Trace(ctx, "Anthropic provider preparing streaming request",
			observability.String(observability.AttrLLMProvider, "anthropic"),
			observability.String(observability.AttrLLMEndpoint, provider.baseURL),
			observability.String(observability.AttrLLMModel, request.Model),
			observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
			observability.Int(observability.AttrRequestToolsCount, len(request.Tools)),
		)
	}

	if provider.apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	adapter := newMessagesAdapter(provider.capabilities)
	reqCtx, opts := chatRequestToStreamInput(request)
	body, err := adapter.EncodeRequest(reqCtx, opts)
	if err != nil {
		return nil, err
	}

	streamURL := provider.baseURL + messagesEndpoint

	// Pass empty apiKey so DoPostStream does not inject a Bearer token;
	// Anthropic authenticates via x-api-key (set inside buildHeaders).
	httpResponse, err := utils.DoPostStream(ctx, provider.client, streamURL, "", body, provider.buildHeaders()...)
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

// toolCallEvent assigns each tool call a zero-based index the first time its
// ID is seen, matching ai.ToolCallDelta.Index's contract. Unlike OpenAI's
// chat-completions wire format, Anthropic streams arguments incrementally
// via input_json_delta, so every fragment — partial or finalized — carries
// Arguments that must reach the caller, not just the final one.
func toolCallEvent(tc *ai.ToolCallChunk, toolIndexByID map[string]int) ai.StreamEvent {
	idx, seen := toolIndexByID[tc.ID]
	if !seen {
		idx = len(toolIndexByID)
		toolIndexByID[tc.ID] = idx
	}
	delta := &ai.ToolCallDelta{Index: idx}
	if !seen {
		delta.ID = tc.ID
		delta.Name = tc.Name
	}
	if len(tc.Arguments) > 0 {
		delta.Arguments = string(tc.Arguments)
	}
	return ai.StreamEvent{Type: ai.StreamEventToolCall, ToolCall: delta}
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
		events = append(events, translatedEvent{event: ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: mapStopReason(native)}})
	}
	return events
}
