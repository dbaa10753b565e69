package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aigohq/aigo/core/stream"
	"github.com/aigohq/aigo/internal/utils"
	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/ai/reassemble"
	"github.com/aigohq/aigo/providers/observability"
)

// StreamMessage implements ai.StreamProvider for the OpenAI chat completions endpoint.
// The request is encoded and the response decoded through the canonical
// ai.StreamAdapter/core/stream.Coordinator pipeline (see chatCompletionAdapter in
// this package); StreamMessage's job is only to translate the coordinator's
// ai.Chunk stream back into the provider-facing ai.StreamEvent vocabulary so
// existing callers (ai.ChatStream, core/client, cmd/aigo-stream) are unaffected.
//
// Only the /v1/chat/completions endpoint is supported for streaming. The /v1/responses
// endpoint uses a different SSE event schema and may be added in a future release.
func (provider *OpenAIProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	// Enrich span if present in context
	span := observability.SpanFromContext(ctx)
	observer := observability.ObserverFromContext(ctx)

	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, "openai"),
			observability.String(observability.AttrLLMEndpoint, provider.baseURL),
			observability.String(observability.AttrLLMModel, request.Model),
			observability.Bool("llm.streaming", true),
		)
	}

	if observer != nil {
		observer.Trace(ctx, "OpenAI provider preparing streaming request",
			observability.String(observability.AttrLLMProvider, "openai"),
			observability.String(observability.AttrLLMEndpoint, provider.baseURL),
			observability.String(observability.AttrLLMModel, request.Model),
			observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
			observability.Int(observability.AttrRequestToolsCount, len(request.Tools)),
		)
	}

	// Check API key
	if provider.apiKey == "" {
		return nil, fmt.Errorf("API key is not set")
	}

	// Always use chat completions for streaming (responses endpoint has different SSE schema)
	useLegacyFunctions := provider.capabilities.ToolCallMode == ToolCallModeFunctions
	adapter := newChatCompletionAdapter(useLegacyFunctions)

	reqCtx, opts := chatRequestToStreamInput(request)
	body, err := adapter.EncodeRequest(reqCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("encoding streaming request: %w", err)
	}

	// Send the streaming request — body is left open for SSE reading
	streamURL := provider.baseURL + chatCompletionsEndpoint
	httpResponse, err := utils.DoPostStream(ctx, provider.client, streamURL, provider.apiKey, body)
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

// translatedEvent pairs a successfully translated StreamEvent with the
// (mutually exclusive) error a terminal parse-failure chunk carries.
type translatedEvent struct {
	event ai.StreamEvent
	err   error
}

// chunkToStreamEvents converts a single canonical ai.Chunk emitted by the
// coordinator into zero or more provider-facing ai.StreamEvents, assigning
// each distinct tool-call ID a stable index the way the teacher's delta
// accumulation expects.
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
	if !tc.Partial {
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
		events = append(events, translatedEvent{event: ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: native}})
	}
	return events
}

// chatCompletionAdapter implements ai.StreamAdapter for the /v1/chat/completions
// streaming endpoint, reusing the wire-format structs and parsing already built
// for this endpoint (chatCompletionStreamChunk, unmarshalStreamChunk,
// requestToChatCompletion) instead of re-deriving them.
type chatCompletionAdapter struct {
	useLegacyFunctions bool
}

func newChatCompletionAdapter(useLegacyFunctions bool) *chatCompletionAdapter {
	return &chatCompletionAdapter{useLegacyFunctions: useLegacyFunctions}
}

// chatCompletionStreamState is the opaque per-stream state threaded through
// DecodeEvent/Flush: the tool-call reassembler plus an index-to-id table,
// since OpenAI's tool_calls deltas key fragments by array index and only
// carry the call's id on the first fragment.
type chatCompletionStreamState struct {
	reassembler *reassemble.Reassembler
	idByIndex   map[int]string
}

func (a *chatCompletionAdapter) InitStreamState() any {
	return &chatCompletionStreamState{
		reassembler: reassemble.New(),
		idByIndex:   make(map[int]string),
	}
}

// EncodeRequest builds the /v1/chat/completions JSON body for ctx/opts,
// reusing requestToChatCompletion's message/tool/response-format conversion
// by first rehydrating the canonical Context/RequestOptions back into the
// endpoint's native ai.ChatRequest shape.
func (a *chatCompletionAdapter) EncodeRequest(ctx ai.Context, opts ai.RequestOptions) (json.RawMessage, error) {
	request := streamInputToChatRequest(ctx, opts)
	chatReq := requestToChatCompletion(request, a.useLegacyFunctions)

	streamEnabled := true
	chatReq.Stream = &streamEnabled
	chatReq.StreamOptions = &streamOptions{IncludeUsage: true}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encoding chat completion request: %w", err)
	}
	return body, nil
}

// DecodeEvent parses one SSE data payload as a chatCompletionStreamChunk and
// maps its usage/content/reasoning/tool_call/finish_reason fields onto
// canonical chunks. A payload that fails to parse halts the stream with a
// terminal Meta chunk carrying the failure instead of silently dropping it.
func (a *chatCompletionAdapter) DecodeEvent(frame []byte, state any) ([]ai.Chunk, any, bool) {
	st, _ := state.(*chatCompletionStreamState)
	if st == nil {
		st = &chatCompletionStreamState{reassembler: reassemble.New(), idByIndex: make(map[int]string)}
	}

	parsed, err := unmarshalStreamChunk(string(frame))
	if err != nil {
		return []ai.Chunk{ai.NewMetaChunk(map[string]any{
			"parse_error":   fmt.Sprintf("failed to parse streaming chunk: %v", err),
			ai.MetaTerminal: true,
		})}, st, true
	}

	var chunks []ai.Chunk
	if parsed.Usage != nil {
		chunks = append(chunks, ai.NewMetaChunk(map[string]any{ai.MetaUsage: usageFromChatUsage(parsed.Usage)}))
	}

	halt := false
	for _, choice := range parsed.Choices {
		chunks = append(chunks, a.decodeChoice(st, choice)...)
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			chunks = append(chunks, a.finishChunks(st, *choice.FinishReason)...)
			halt = true
		}
	}

	return chunks, st, halt
}

func (a *chatCompletionAdapter) decodeChoice(st *chatCompletionStreamState, choice streamChoice) []ai.Chunk {
	var chunks []ai.Chunk
	delta := choice.Delta

	if delta.Content != nil && *delta.Content != "" {
		chunks = append(chunks, ai.NewContentChunk(*delta.Content))
	}
	if delta.Reasoning != nil && *delta.Reasoning != "" {
		chunks = append(chunks, ai.NewThinkingChunk(*delta.Reasoning))
	}

	for _, part := range delta.ToolCalls {
		id := part.ID
		if id != "" {
			st.idByIndex[part.Index] = id
		} else {
			id = st.idByIndex[part.Index]
		}

		if part.ID != "" && part.Function.Name != "" {
			chunks = append(chunks, ai.NewToolCallChunk(st.reassembler.Start(id, part.Function.Name)))
		}
		if part.Function.Arguments != "" {
			st.reassembler.Append(id, part.Function.Arguments)
		}
	}

	return chunks
}

// finishChunks finalizes every tool call still open (OpenAI signals
// completion once per response via finish_reason, never per call) and
// appends the terminal Meta chunk carrying both the native and the
// ai.NormalizeStopReason-canonicalized finish reason.
func (a *chatCompletionAdapter) finishChunks(st *chatCompletionStreamState, native string) []ai.Chunk {
	var chunks []ai.Chunk
	for _, tc := range st.reassembler.StopAll() {
		chunks = append(chunks, ai.NewToolCallChunk(tc))
	}
	chunks = append(chunks, ai.NewMetaChunk(map[string]any{
		ai.MetaFinishReason:    ai.NormalizeStopReason(native),
		"native_finish_reason": native,
		ai.MetaTerminal:        true,
	}))
	return chunks
}

// Flush finalizes any tool calls still open when the transport reports the
// stream is done without ever having seen a finish_reason (e.g. the
// connection closed early). StopAll is idempotent once a finish_reason has
// already finalized everything, so this is safe to call unconditionally.
func (a *chatCompletionAdapter) Flush(state any) []ai.Chunk {
	st, ok := state.(*chatCompletionStreamState)
	if !ok {
		return nil
	}
	var chunks []ai.Chunk
	for _, tc := range st.reassembler.StopAll() {
		chunks = append(chunks, ai.NewToolCallChunk(tc))
	}
	return chunks
}

func usageFromChatUsage(u *chatUsage) *ai.Usage {
	usage := &ai.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return usage
}
