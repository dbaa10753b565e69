// Package eventstream implements a decoder for AWS's binary Event-Stream
// framing, as used by Bedrock's ConverseStream and InvokeModelWithResponseStream
// APIs. It hand-rolls frame parsing and CRC32 validation rather than
// depending on aws-sdk-go-v2/aws/protocol/eventstream because that package
// has no notion of resynchronizing after a corrupted frame — it either
// decodes a well-formed message or returns an error and gives up. This
// decoder instead scans forward for the next plausible frame boundary so a
// single corrupted message does not take down the rest of the stream.
package eventstream

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
)

// errFatalResync is returned (wrapped with no further context, since the
// taxonomy lives in aierr and this package stays dependency-free) when
// resync exhausts the buffer without finding a valid frame boundary and no
// prior frame in this Feed call decoded successfully.
var errFatalResync = errors.New("eventstream: unrecoverable frame corruption, no valid boundary found")

const (
	preludeLen  = 12 // total_len(4) + headers_len(4) + prelude_crc(4)
	trailerLen  = 4  // message_crc(4)
	minFrameLen = 16

	// resyncMaxPlausibleLen bounds the length resync treats as plausible.
	// Per spec this is a heuristic, not a hard protocol limit; real
	// providers may in rare cases emit larger frames (see DESIGN.md open
	// question).
	resyncMaxPlausibleLen = 100_000
)

// Message is one decoded Event-Stream frame's payload, already unwrapped
// from the {"bytes": base64} envelope when present. The frame's header
// bytes are skipped; they are neither parsed nor kept.
type Message struct {
	Payload []byte
}

// Result is the outcome of a Feed call.
type Result struct {
	// Messages successfully decoded from the front of the buffer, in order.
	Messages []Message

	// Rest is the buffer with all consumed bytes removed: the tail of an
	// Incomplete final frame, or nil when resync exhausted the buffer
	// (with or without FatalErr).
	Rest []byte

	// Incomplete is true when the buffer ends mid-frame and Feed should be
	// called again once more bytes arrive; Rest is untouched in that case.
	Incomplete bool

	// FatalErr is non-nil when resync exhausted the buffer without finding
	// a valid frame boundary and no messages had been successfully decoded
	// beforehand, so Messages is always empty when FatalErr is set. When
	// some frames decoded before an unrecoverable tail, FatalErr stays nil
	// and the tail is dropped.
	FatalErr error

	// Resynced counts how many times this Feed call had to scan forward to
	// recover from a corrupt frame. It is informational; outside tests,
	// no package in this module reads it.
	Resynced int
}

// Feed attempts to decode as many complete frames as possible from buf,
// which is the accumulation of everything fed so far that has not yet been
// consumed (i.e. callers pass eventstream.Result.Rest back in on the next
// call, after appending newly arrived bytes).
func Feed(buf []byte) Result {
	var res Result
	res.Rest = buf

	for {
		if len(res.Rest) < preludeLen {
			res.Incomplete = true
			return res
		}

		totalLen := binary.BigEndian.Uint32(res.Rest[0:4])
		headersLen := binary.BigEndian.Uint32(res.Rest[4:8])
		preludeCRC := binary.BigEndian.Uint32(res.Rest[8:12])

		if !plausibleFrame(totalLen, headersLen) {
			if !resync(&res) {
				return res
			}
			continue
		}

		if crc32.ChecksumIEEE(res.Rest[0:8]) != preludeCRC {
			if !resync(&res) {
				return res
			}
			continue
		}

		if uint32(len(res.Rest)) < totalLen {
			res.Incomplete = true
			return res
		}

		frame := res.Rest[:totalLen]
		messageCRC := binary.BigEndian.Uint32(frame[totalLen-4:])
		if crc32.ChecksumIEEE(frame[:totalLen-4]) != messageCRC {
			if !resync(&res) {
				return res
			}
			continue
		}

		payloadStart := preludeLen + headersLen
		payloadEnd := totalLen - trailerLen
		payload, err := unwrapPayload(frame[payloadStart:payloadEnd])
		if err != nil {
			// Valid frame, malformed inner JSON: not a framing error, so
			// no resync — just drop this message and move on.
			res.Rest = res.Rest[totalLen:]
			continue
		}

		res.Messages = append(res.Messages, Message{Payload: payload})
		res.Rest = res.Rest[totalLen:]
	}
}

func plausibleFrame(totalLen, headersLen uint32) bool {
	if totalLen < minFrameLen {
		return false
	}
	if uint32(preludeLen)+headersLen+uint32(trailerLen) > totalLen {
		return false
	}
	return true
}

// resync advances res.Rest one byte at a time looking for the next offset
// where a plausible, CRC-valid prelude appears. It mutates res in place and
// returns true when the caller's decode loop should continue from the new
// res.Rest, or false when the caller should return res immediately (either
// because the buffer was exhausted with no prior messages, a fatal error,
// or because it was exhausted with prior messages, a partial success).
func resync(res *Result) bool {
	buf := res.Rest
	for offset := 1; offset+preludeLen <= len(buf); offset++ {
		totalLen := binary.BigEndian.Uint32(buf[offset : offset+4])
		headersLen := binary.BigEndian.Uint32(buf[offset+4 : offset+8])

		if totalLen < minFrameLen || totalLen > resyncMaxPlausibleLen {
			continue
		}
		if !plausibleFrame(totalLen, headersLen) {
			continue
		}

		preludeCRC := binary.BigEndian.Uint32(buf[offset+8 : offset+12])
		if crc32.ChecksumIEEE(buf[offset:offset+8]) != preludeCRC {
			continue
		}

		// Found a plausible, CRC-valid prelude. Resume decoding from here,
		// whether or not the full frame has arrived yet — the main loop's
		// Incomplete check handles that.
		res.Resynced++
		res.Rest = buf[offset:]
		return true
	}

	// Exhausted the buffer without finding a boundary.
	if len(res.Messages) == 0 {
		res.FatalErr = errFatalResync
		res.Rest = nil
		return false
	}

	// Some messages decoded successfully before the irrecoverable tail;
	// report success so far and drop the rest, per spec §4.2.2.
	res.Rest = nil
	return false
}

// unwrapPayload interprets a frame's payload bytes as one of the two
// recognized shapes: {"bytes": "<base64>"} wrapping an inner JSON event, or
// the logical event itself as a direct JSON object.
func unwrapPayload(raw []byte) ([]byte, error) {
	var envelope struct {
		Bytes *string `json:"bytes"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Bytes == nil {
		return raw, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(*envelope.Bytes)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
