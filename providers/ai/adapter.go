package ai

import "encoding/json"

// StreamAdapter is the per-provider capability set the stream coordinator
// drives: encode a request, initialize opaque per-stream state, decode one
// already-parsed frame into zero or more canonical chunks, and flush any
// buffered content at stream end. Provider variants (OpenAI, Anthropic,
// Bedrock's several underlying models) each implement this once; the
// coordinator never branches on provider identity itself.
type StreamAdapter interface {
	// EncodeRequest produces the provider's native JSON request body for
	// ctx and opts. Implementations extract the system message, translate
	// content parts, map tool schemas, and apply provider-specific
	// toggles.
	EncodeRequest(ctx Context, opts RequestOptions) (json.RawMessage, error)

	// InitStreamState returns the opaque per-stream state threaded through
	// every DecodeEvent/Flush call for one stream.
	InitStreamState() any

	// DecodeEvent maps one already-parsed frame (SSE event data, or an
	// unwrapped AWS Event-Stream payload) into zero or more canonical
	// chunks, returning updated state. halt reports that the adapter has
	// recognized a terminal signal and no further frames should be
	// decoded (e.g. after an OpenAI "[DONE]" or an Anthropic
	// "message_stop").
	DecodeEvent(frame []byte, state any) (chunks []Chunk, next any, halt bool)

	// Flush emits any chunks buffered in state once the underlying
	// transport reports the stream is done (used by the think-tag
	// normalizer and the tool-call reassembler's trailing state).
	Flush(state any) []Chunk
}

// RequestOptions is the typed, enumerated request configuration spec.md §9
// calls for in place of the source's dynamic option bags.
type RequestOptions struct {
	Model            string
	Temperature      *float32
	MaxTokens        int
	TopP             *float32
	TopK             *int
	StopSequences    []string
	Stream           bool
	ToolChoice       ToolChoiceMode
	ToolChoiceName   string
	Reasoning        ReasoningConfig
	ResponseFormat   *ResponseFormat
	Seed             *int
	LogitBias        map[string]float32
	ServiceTier      string
}

// ToolChoiceMode enumerates the closed set of tool-choice behaviors.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceByName   ToolChoiceMode = "by_name"
)

// ReasoningEffort enumerates the closed set of qualitative reasoning
// effort levels some providers accept in place of an explicit token
// budget.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// ReasoningConfig is off by default; set exactly one of BudgetTokens or
// Effort to enable extended reasoning.
type ReasoningConfig struct {
	Off          bool
	BudgetTokens *int
	Effort       ReasoningEffort
}

// NormalizeStopReason maps each provider's native finish-reason vocabulary
// onto the canonical set per spec's stop-reason normalization table.
func NormalizeStopReason(native string) string {
	switch native {
	case "stop", "end_turn", "stop_sequence":
		return "stop"
	case "length", "max_tokens":
		return "length"
	case "tool_calls", "tool_use":
		return "tool_calls"
	case "content_filtered":
		return "content_filter"
	default:
		return "stop"
	}
}
