// Package reassemble implements the tool-call JSON reassembler: it
// accumulates fragmented argument text per tool-call id and, on block stop,
// emits exactly one finalized canonical tool-call chunk. It generalizes the
// teacher's toolCallBuilder/accumulateToolCallDelta accumulation (which
// simply concatenated fragments and let the final caller parse them) into a
// component that finalizes and attempts repair inline, since the
// coordinator needs one terminal ToolCallChunk per call, not a pile of
// raw string fragments for the consumer to sort out.
package reassemble

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/aigohq/aigo/providers/ai"
)

type entry struct {
	name     string
	argsText strings.Builder
}

// Reassembler holds the by-id fragment map for a single in-flight stream.
// It is not safe for concurrent use; the stream coordinator that owns it
// serializes all access through its mailbox.
type Reassembler struct {
	byID  map[string]*entry
	order []string // insertion order, for deterministic StopAll
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{byID: make(map[string]*entry)}
}

// Start registers a new tool call announced before its arguments begin
// streaming and returns an informational partial chunk so consumers can
// display the call's name early. The returned chunk must never be treated
// as the finalized call.
func (r *Reassembler) Start(id, name string) ai.ToolCallChunk {
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
	}
	r.byID[id] = &entry{name: name}
	return ai.ToolCallChunk{ID: id, Name: name, Arguments: json.RawMessage("{}"), Partial: true}
}

// Append adds a fragment of argument JSON text to the call identified by
// id. If id was never Start-ed, it registers a new unnamed call for it
// (defensive: some providers may emit a delta without an explicit start for
// the first chunk).
func (r *Reassembler) Append(id, fragment string) {
	e, ok := r.byID[id]
	if !ok {
		e = &entry{}
		r.byID[id] = e
		r.order = append(r.order, id)
	}
	e.argsText.WriteString(fragment)
}

// Stop finalizes the call identified by id: it attempts to JSON-parse the
// accumulated argument text, falling back to a best-effort repair via
// jsonrepair before giving up. On success the returned chunk carries the
// parsed (re-marshaled, canonicalized) arguments with Partial=false. On
// failure it carries empty object arguments and Error set to
// "json_parse_failed" — the stream itself is never failed by this.
func (r *Reassembler) Stop(id string) ai.ToolCallChunk {
	e, ok := r.byID[id]
	if !ok {
		return ai.ToolCallChunk{ID: id, Arguments: json.RawMessage("{}"), Error: "json_parse_failed"}
	}
	delete(r.byID, id)

	raw := e.argsText.String()
	if raw == "" {
		raw = "{}"
	}

	if args, err := canonicalize(raw); err == nil {
		return ai.ToolCallChunk{ID: id, Name: e.name, Arguments: args, Partial: false}
	}

	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if args, err := canonicalize(repaired); err == nil {
			return ai.ToolCallChunk{ID: id, Name: e.name, Arguments: args, Partial: false}
		}
	}

	return ai.ToolCallChunk{
		ID:        id,
		Name:      e.name,
		Arguments: json.RawMessage("{}"),
		Partial:   false,
		Error:     "json_parse_failed",
	}
}

// StopAll finalizes every call still open, in the order each was first
// seen (via Start or Append), and returns one finalized chunk per call. It
// is for wire formats like OpenAI's chat completions stream, which signal
// completion once for the whole response (finish_reason: "tool_calls")
// rather than with a per-call stop event the way Anthropic's content block
// stops do.
func (r *Reassembler) StopAll() []ai.ToolCallChunk {
	var out []ai.ToolCallChunk
	for _, id := range r.order {
		if _, ok := r.byID[id]; !ok {
			continue
		}
		out = append(out, r.Stop(id))
	}
	r.order = nil
	return out
}

// canonicalize validates raw as a JSON object and returns it re-encoded
// through encoding/json so Arguments is always a compact, valid document.
func canonicalize(raw string) (json.RawMessage, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}
