package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/ai/reassemble"
)

// messagesAdapter implements ai.StreamAdapter for Anthropic's Messages API,
// translating the event lifecycle documented on StreamMessage
// (message_start → content_block_start → content_block_delta(s) →
// content_block_stop → message_delta → message_stop) into the canonical
// ai.Chunk vocabulary that core/stream.Coordinator drives.
type messagesAdapter struct {
	capabilities Capabilities
}

func newMessagesAdapter(capabilities Capabilities) *messagesAdapter {
	return &messagesAdapter{capabilities: capabilities}
}

type messagesStreamState struct {
	reassembler *reassemble.Reassembler

	// blockID/blockType are keyed by the SSE event's content block index,
	// which is the only correlation content_block_delta/_stop carry back to
	// the block that content_block_start announced.
	blockID   map[int]string
	blockType map[int]string

	inputTokens         int
	outputTokens        int
	cacheCreationTokens int
	cacheReadTokens     int
	stopReason          string
}

func (a *messagesAdapter) InitStreamState() any {
	return &messagesStreamState{
		reassembler: reassemble.New(),
		blockID:     make(map[int]string),
		blockType:   make(map[int]string),
	}
}

func (a *messagesAdapter) EncodeRequest(ctx ai.Context, opts ai.RequestOptions) (json.RawMessage, error) {
	request := streamInputToChatRequest(ctx, opts)

	anthropicReq, err := requestToAnthropic(request, a.capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to build Anthropic request: %w", err)
	}
	anthropicReq.Stream = true

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("encoding anthropic streaming request: %w", err)
	}
	return body, nil
}

func (a *messagesAdapter) DecodeEvent(frame []byte, state any) ([]ai.Chunk, any, bool) {
	st, _ := state.(*messagesStreamState)
	if st == nil {
		st = &messagesStreamState{reassembler: reassemble.New(), blockID: make(map[int]string), blockType: make(map[int]string)}
	}

	event, err := unmarshalStreamEvent(string(frame))
	if err != nil {
		return []ai.Chunk{ai.NewMetaChunk(map[string]any{
			"parse_error":   fmt.Sprintf("failed to parse stream event: %v", err),
			ai.MetaTerminal: true,
		})}, st, true
	}

	switch event.Type {

	case "message_start":
		if event.Message != nil {
			st.inputTokens = event.Message.Usage.InputTokens
			st.cacheCreationTokens = event.Message.Usage.CacheCreationInputTokens
			st.cacheReadTokens = event.Message.Usage.CacheReadInputTokens
		}
		return nil, st, false

	case "content_block_start":
		return a.decodeBlockStart(st, event), st, false

	case "content_block_delta":
		return a.decodeBlockDelta(st, event), st, false

	case "content_block_stop":
		return a.decodeBlockStop(st, event), st, false

	case "message_delta":
		if event.Usage != nil {
			st.outputTokens = event.Usage.OutputTokens
		}
		if event.Delta != nil && event.Delta.StopReason != "" {
			st.stopReason = event.Delta.StopReason
		}
		usage := &ai.Usage{
			PromptTokens:     st.inputTokens,
			CompletionTokens: st.outputTokens,
			TotalTokens:      st.inputTokens + st.outputTokens,
			CachedTokens:     st.cacheCreationTokens + st.cacheReadTokens,
		}
		return []ai.Chunk{ai.NewMetaChunk(map[string]any{ai.MetaUsage: usage})}, st, false

	case "message_stop":
		return []ai.Chunk{ai.NewMetaChunk(map[string]any{
			ai.MetaFinishReason:    mapStopReason(st.stopReason),
			"native_finish_reason": st.stopReason,
			ai.MetaTerminal:        true,
		})}, st, true

	case "error":
		errMsg := "unknown stream error"
		if event.Error != nil {
			errMsg = event.Error.Message
		}
		return []ai.Chunk{ai.NewMetaChunk(map[string]any{
			"parse_error":   fmt.Sprintf("anthropic stream error: %s", errMsg),
			ai.MetaTerminal: true,
		})}, st, true

	case "ping":
		return nil, st, false

	default:
		// Unknown event types are skipped for forward-compatibility with
		// future Anthropic SSE additions.
		return nil, st, false
	}
}

func (a *messagesAdapter) decodeBlockStart(st *messagesStreamState, event *anthropicStreamEvent) []ai.Chunk {
	if event.ContentBlock == nil {
		return nil
	}
	st.blockType[event.Index] = event.ContentBlock.Type

	if event.ContentBlock.Type != "tool_use" {
		return nil
	}
	st.blockID[event.Index] = event.ContentBlock.ID
	return []ai.Chunk{ai.NewToolCallChunk(st.reassembler.Start(event.ContentBlock.ID, event.ContentBlock.Name))}
}

func (a *messagesAdapter) decodeBlockDelta(st *messagesStreamState, event *anthropicStreamEvent) []ai.Chunk {
	if event.Delta == nil {
		return nil
	}

	switch event.Delta.Type {
	case "text_delta":
		if event.Delta.Text == "" {
			return nil
		}
		return []ai.Chunk{ai.NewContentChunk(event.Delta.Text)}

	case "thinking_delta":
		if event.Delta.Thinking == "" {
			return nil
		}
		return []ai.Chunk{ai.NewThinkingChunk(event.Delta.Thinking)}

	case "input_json_delta":
		if event.Delta.PartialJSON == "" {
			return nil
		}
		id := st.blockID[event.Index]
		st.reassembler.Append(id, event.Delta.PartialJSON)
		return []ai.Chunk{ai.NewToolCallChunk(ai.ToolCallChunk{
			ID:        id,
			Arguments: json.RawMessage(event.Delta.PartialJSON),
			Partial:   true,
		})}
	}
	return nil
}

// decodeBlockStop closes the block, discarding the reassembler's finalized
// value: Anthropic streams tool-call arguments incrementally via
// input_json_delta, so the caller already has every fragment by the time
// content_block_stop arrives and does not need a redundant final chunk.
// Stop is still called so the reassembler's internal entry is cleared; a
// block left open past its stop (e.g. a cut connection) is still caught by
// Flush's StopAll.
func (a *messagesAdapter) decodeBlockStop(st *messagesStreamState, event *anthropicStreamEvent) []ai.Chunk {
	if st.blockType[event.Index] != "tool_use" {
		delete(st.blockType, event.Index)
		return nil
	}
	id := st.blockID[event.Index]
	delete(st.blockID, event.Index)
	delete(st.blockType, event.Index)
	st.reassembler.Stop(id)
	return nil
}

func (a *messagesAdapter) Flush(state any) []ai.Chunk {
	st, ok := state.(*messagesStreamState)
	if !ok {
		return nil
	}
	var chunks []ai.Chunk
	for _, tc := range st.reassembler.StopAll() {
		chunks = append(chunks, ai.NewToolCallChunk(tc))
	}
	return chunks
}
