package stream

import (
	"iter"

	"github.com/aigohq/aigo/providers/ai"
)

// Handle is the consumer-facing view of a Coordinator, mirroring
// providers/ai/stream.go's ChatStream: a range-over-func iterator plus a
// Join convenience method for callers who want the complete Response.
//
// Important: callers must fully consume the Handle, either by ranging over
// Iter() to completion (or breaking early, which calls Cancel via the
// loop's deferred cleanup) or by calling Join(). Constructing a Handle and
// never consuming it leaks the coordinator's HTTP task.
type Handle struct {
	coord *Coordinator
}

// Iter returns a range-over-func iterator yielding one canonical Chunk per
// frame the coordinator's adapter emits, in arrival order, honoring the
// coordinator's backpressure: the underlying HTTP task stops reading the
// socket while the consumer is not pulling.
func (h *Handle) Iter() iter.Seq2[ai.Chunk, error] {
	return func(yield func(ai.Chunk, error) bool) {
		for {
			res := h.coord.next(h.coord.cfg.NextTimeout)
			if res.err != nil {
				yield(ai.Chunk{}, res.err)
				return
			}
			if res.halt {
				return
			}
			if !yield(res.chunk, nil) {
				h.coord.Cancel()
				return
			}
		}
	}
}

// AwaitMetadata blocks until the stream resolves (successfully or with an
// error) and returns its StreamMetadata. It may be called before, during,
// or after iteration; multiple callers may await concurrently.
func (h *Handle) AwaitMetadata() (ai.StreamMetadata, error) {
	res := h.coord.awaitMetadata(h.coord.cfg.AwaitTimeout)
	return res.meta, res.err
}

// Cancel tears down the stream's HTTP task and unblocks any in-flight
// Iter/AwaitMetadata callers with aierr.ErrCancelled. Safe to call more
// than once and safe to call after the stream has already resolved.
func (h *Handle) Cancel() {
	h.coord.Cancel()
}

// Join consumes the entire stream and returns the accumulated Response,
// the degenerate "collapse a stream into a single value" path spec.md §9
// calls for as the non-streaming client's implementation.
func (h *Handle) Join() (ai.Response, error) {
	var resp ai.Response
	for chunk, err := range h.Iter() {
		if err != nil {
			return resp, err
		}
		resp.Chunks = append(resp.Chunks, chunk)
	}
	meta, err := h.AwaitMetadata()
	resp.Metadata = meta
	return resp, err
}
