// Package thinktag implements the stateful character-level splitter needed
// for Groq-style models that embed reasoning inline as
// "<think>...</think>" rather than as a separate API field. No example in
// the retrieved corpus has an equivalent component — every teacher provider
// surfaces reasoning as an already-separated JSON field — so this is built
// fresh, in the same push-based, byte-buffered style as providers/ai/sse.
package thinktag

import (
	"bytes"

	"github.com/aigohq/aigo/providers/ai"
)

var (
	opener = []byte("<think>")
	closer = []byte("</think>")
)

type mode int

const (
	modeText mode = iota
	modeThinking
)

// Splitter holds the holdback buffer and current mode for one in-flight
// stream. It is not safe for concurrent use.
type Splitter struct {
	mode mode
	buf  []byte
}

// New returns a Splitter starting in text mode.
func New() *Splitter {
	return &Splitter{mode: modeText}
}

// Feed appends delta to the internal buffer and returns every Content or
// Thinking chunk that can now be emitted with certainty. Bytes that could
// still be the prefix of an opener or closer token are held back: up to 6
// bytes in text mode, up to 7 in thinking mode.
func (s *Splitter) Feed(delta string) []ai.Chunk {
	s.buf = append(s.buf, delta...)

	var out []ai.Chunk
	for {
		switch s.mode {
		case modeText:
			if idx := bytes.Index(s.buf, opener); idx >= 0 {
				if idx > 0 {
					out = append(out, ai.NewContentChunk(string(s.buf[:idx])))
				}
				s.buf = s.buf[idx+len(opener):]
				s.mode = modeThinking
				continue
			}
			keep := overlap(s.buf, opener)
			if keep < len(s.buf) {
				out = append(out, ai.NewContentChunk(string(s.buf[:len(s.buf)-keep])))
				s.buf = s.buf[len(s.buf)-keep:]
			}
			return out

		case modeThinking:
			if idx := bytes.Index(s.buf, closer); idx >= 0 {
				if idx > 0 {
					out = append(out, ai.NewThinkingChunk(string(s.buf[:idx])))
				}
				s.buf = s.buf[idx+len(closer):]
				s.mode = modeText
				continue
			}
			keep := overlap(s.buf, closer)
			if keep < len(s.buf) {
				out = append(out, ai.NewThinkingChunk(string(s.buf[:len(s.buf)-keep])))
				s.buf = s.buf[len(s.buf)-keep:]
			}
			return out
		}
	}
}

// Flush emits whatever remains in the holdback buffer as a chunk of the
// current mode, and resets the splitter. Called at stream end so a
// trailing partial token (which was never going to complete) is not lost.
func (s *Splitter) Flush() []ai.Chunk {
	if len(s.buf) == 0 {
		return nil
	}
	var out []ai.Chunk
	if s.mode == modeText {
		out = append(out, ai.NewContentChunk(string(s.buf)))
	} else {
		out = append(out, ai.NewThinkingChunk(string(s.buf)))
	}
	s.buf = nil
	return out
}

// overlap returns the length of the longest suffix of data that equals a
// proper prefix of token (at most len(token)-1 bytes, since a full match
// would already have been found by bytes.Index).
func overlap(data, token []byte) int {
	maxLen := len(token) - 1
	if maxLen > len(data) {
		maxLen = len(data)
	}
	for l := maxLen; l > 0; l-- {
		if bytes.Equal(data[len(data)-l:], token[:l]) {
			return l
		}
	}
	return 0
}
