package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aigohq/aigo/providers/ai"
)

// contentAdapter implements ai.StreamAdapter for Gemini's streamGenerateContent
// endpoint. Unlike OpenAI/Anthropic, each Gemini SSE event carries a full
// cumulative generateContentResponse rather than a delta, and function calls
// arrive whole rather than fragmented — so this adapter tracks cumulative
// rune lengths to compute content/reasoning deltas and emits tool calls as a
// single finalized ai.Chunk per call, with no reassemble.Reassembler needed.
type contentAdapter struct{}

func newContentAdapter() *contentAdapter { return &contentAdapter{} }

type contentStreamState struct {
	// previousTextLength/previousReasoningLength are rune counts (not byte
	// counts) of the cumulative text/thinking seen so far, so a chunk
	// boundary never splits a multi-byte UTF-8 sequence.
	previousTextLength      int
	previousReasoningLength int
	toolCallsEmitted        bool
}

func (a *contentAdapter) InitStreamState() any {
	return &contentStreamState{}
}

func (a *contentAdapter) EncodeRequest(ctx ai.Context, opts ai.RequestOptions) (json.RawMessage, error) {
	request := streamInputToChatRequest(ctx, opts)
	geminiRequest := requestToGemini(request)

	body, err := json.Marshal(geminiRequest)
	if err != nil {
		return nil, fmt.Errorf("encoding gemini streaming request: %w", err)
	}
	return body, nil
}

func (a *contentAdapter) DecodeEvent(frame []byte, state any) ([]ai.Chunk, any, bool) {
	st, _ := state.(*contentStreamState)
	if st == nil {
		st = &contentStreamState{}
	}

	var response generateContentResponse
	if err := json.Unmarshal(frame, &response); err != nil {
		return []ai.Chunk{ai.NewMetaChunk(map[string]any{
			"parse_error":   fmt.Sprintf("failed to parse Gemini streaming chunk: %v", err),
			ai.MetaTerminal: true,
		})}, st, true
	}

	if len(response.Candidates) == 0 {
		return nil, st, false
	}

	first := response.Candidates[0]
	var chunks []ai.Chunk

	if first.Content != nil {
		chunks = append(chunks, a.decodeContent(st, first.Content)...)
	}

	if response.UsageMetadata != nil {
		chunks = append(chunks, ai.NewMetaChunk(map[string]any{ai.MetaUsage: usageFromGeminiMetadata(response.UsageMetadata)}))
	}

	halt := false
	if first.FinishReason != "" {
		chunks = append(chunks, ai.NewMetaChunk(map[string]any{
			ai.MetaFinishReason:    mapFinishReason(first.FinishReason),
			"native_finish_reason": first.FinishReason,
			ai.MetaTerminal:        true,
		}))
		halt = true
	}

	return chunks, st, halt
}

// decodeContent mirrors the teacher's geminiChunkToStreamEvents ordering:
// tool calls encountered in part order, then the accumulated content delta,
// then the accumulated reasoning delta.
func (a *contentAdapter) decodeContent(st *contentStreamState, block *content) []ai.Chunk {
	var chunks []ai.Chunk
	var textParts, reasoningParts []string

	for _, p := range block.Parts {
		if p.Text != "" {
			if p.Thought {
				reasoningParts = append(reasoningParts, p.Text)
			} else {
				textParts = append(textParts, p.Text)
			}
		}

		if p.FunctionCall != nil && !st.toolCallsEmitted {
			chunks = append(chunks, ai.NewToolCallChunk(ai.ToolCallChunk{
				ID:        "call_" + uuid.NewString(),
				Name:      p.FunctionCall.Name,
				Arguments: p.FunctionCall.Args,
				Partial:   false,
			}))
		}
	}

	for _, c := range chunks {
		if c.Kind == ai.ChunkKindToolCall {
			st.toolCallsEmitted = true
			break
		}
	}

	fullText := strings.Join(textParts, "\n")
	fullTextRunes := []rune(fullText)
	if len(fullTextRunes) > st.previousTextLength {
		chunks = append(chunks, ai.NewContentChunk(string(fullTextRunes[st.previousTextLength:])))
		st.previousTextLength = len(fullTextRunes)
	}

	fullReasoning := strings.Join(reasoningParts, "\n")
	fullReasoningRunes := []rune(fullReasoning)
	if len(fullReasoningRunes) > st.previousReasoningLength {
		chunks = append(chunks, ai.NewThinkingChunk(string(fullReasoningRunes[st.previousReasoningLength:])))
		st.previousReasoningLength = len(fullReasoningRunes)
	}

	return chunks
}

func (a *contentAdapter) Flush(state any) []ai.Chunk {
	return nil
}

func usageFromGeminiMetadata(u *usageMetadata) *ai.Usage {
	return &ai.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
		ReasoningTokens:  u.ThoughtsTokenCount,
		CachedTokens:     u.CachedContentTokenCount,
	}
}
