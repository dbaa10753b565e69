package ai

import "encoding/json"

// ChunkKind identifies which variant of Chunk is populated. Exactly one of
// the kind-specific fields on a Chunk is meaningful for a given Kind.
type ChunkKind string

const (
	// ChunkKindContent carries natural-language output text.
	ChunkKindContent ChunkKind = "content"
	// ChunkKindThinking carries separated reasoning output. It is never
	// concatenated with ChunkKindContent text.
	ChunkKindThinking ChunkKind = "thinking"
	// ChunkKindToolCall carries a tool invocation, partial or finalized.
	ChunkKindToolCall ChunkKind = "tool_call"
	// ChunkKindMeta carries finish reasons, terminal signals, partial usage,
	// or opaque provider events. It never carries generated text.
	ChunkKindMeta ChunkKind = "meta"
)

// Well-known keys used inside Chunk.Meta. Unknown keys are allowed and must
// round-trip unmodified; these are simply the ones the coordinator itself
// populates.
const (
	MetaFinishReason = "finish_reason"
	MetaTerminal     = "terminal"
	MetaUsage        = "usage"
	MetaRawEvent     = "raw_event"
)

// ToolCallChunk is the payload of a ChunkKindToolCall chunk. Arguments holds
// the accumulated JSON text; it may be incomplete while Partial is true, and
// is always well-formed JSON once Partial is false (a parse failure on
// finalization instead yields Arguments `{}` with Error set, per the
// reassembler's contract).
type ToolCallChunk struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Partial   bool            `json:"partial"`
	Error     string          `json:"error,omitempty"`
}

// Chunk is the single unit of output the streaming core emits to a
// consumer. Each chunk is self-contained and immutable; a stream is a
// finite ordered sequence of chunks with at most one terminal Meta chunk,
// which if present is always last.
type Chunk struct {
	Kind ChunkKind `json:"kind"`

	// Text holds the payload for ChunkKindContent and ChunkKindThinking.
	Text string `json:"text,omitempty"`

	// ToolCall holds the payload for ChunkKindToolCall.
	ToolCall *ToolCallChunk `json:"tool_call,omitempty"`

	// Meta holds the payload for ChunkKindMeta.
	Meta map[string]any `json:"meta,omitempty"`
}

// NewContentChunk builds a ChunkKindContent chunk.
func NewContentChunk(text string) Chunk { return Chunk{Kind: ChunkKindContent, Text: text} }

// NewThinkingChunk builds a ChunkKindThinking chunk.
func NewThinkingChunk(text string) Chunk { return Chunk{Kind: ChunkKindThinking, Text: text} }

// NewToolCallChunk builds a ChunkKindToolCall chunk.
func NewToolCallChunk(tc ToolCallChunk) Chunk { return Chunk{Kind: ChunkKindToolCall, ToolCall: &tc} }

// NewMetaChunk builds a ChunkKindMeta chunk.
func NewMetaChunk(fields map[string]any) Chunk { return Chunk{Kind: ChunkKindMeta, Meta: fields} }

// IsTerminal reports whether this is the terminal Meta chunk that signals
// end-of-stream.
func (c Chunk) IsTerminal() bool {
	if c.Kind != ChunkKindMeta || c.Meta == nil {
		return false
	}
	terminal, _ := c.Meta[MetaTerminal].(bool)
	return terminal
}

// StreamMetadata is resolved exactly once per stream: on successful
// completion, on error, or on cancellation. It carries everything that is
// known only once the stream has ended.
type StreamMetadata struct {
	HTTPStatus   int               `json:"http_status,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Message      Message           `json:"message"`

	// ProviderFields carries provider-specific data that does not fit the
	// canonical shape (e.g. Anthropic's stop_sequence, Bedrock's trace id).
	ProviderFields map[string]any `json:"provider_fields,omitempty"`
}

// Context is the ordered conversation history plus optional attached tools
// that forms the input to a streaming (or degenerate non-streaming) call.
// After a call completes, AppendAssistant produces the Context that would
// be passed into the next turn.
type Context struct {
	Messages []Message
	Tools    []ToolDefinition
}

// AppendAssistant returns a new Context with msg appended to Messages. The
// receiver is left unmodified.
func (c Context) AppendAssistant(msg Message) Context {
	next := Context{
		Messages: make([]Message, len(c.Messages), len(c.Messages)+1),
		Tools:    c.Tools,
	}
	copy(next.Messages, c.Messages)
	next.Messages = append(next.Messages, msg)
	return next
}

// Response is the fully materialized result of joining a stream handle to
// completion: all chunks combined with the resolved StreamMetadata.
type Response struct {
	Chunks   []Chunk
	Metadata StreamMetadata
}

// Text concatenates the text of every ChunkKindContent chunk in emission
// order.
func (r Response) Text() string {
	var out []byte
	for _, c := range r.Chunks {
		if c.Kind == ChunkKindContent {
			out = append(out, c.Text...)
		}
	}
	return string(out)
}

// Thinking concatenates the text of every ChunkKindThinking chunk in
// emission order.
func (r Response) Thinking() string {
	var out []byte
	for _, c := range r.Chunks {
		if c.Kind == ChunkKindThinking {
			out = append(out, c.Text...)
		}
	}
	return string(out)
}

// ToolCalls returns every finalized (non-partial) tool call chunk in
// emission order.
func (r Response) ToolCalls() []ToolCallChunk {
	var out []ToolCallChunk
	for _, c := range r.Chunks {
		if c.Kind == ChunkKindToolCall && c.ToolCall != nil && !c.ToolCall.Partial {
			out = append(out, *c.ToolCall)
		}
	}
	return out
}
