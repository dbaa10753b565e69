package sse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigohq/aigo/providers/ai/sse"
)

func TestDecoder_BasicEvents(t *testing.T) {
	d := sse.NewDecoder()

	events := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"))

	require.Len(t, events, 3)
	assert.Equal(t, sse.EventData, events[0].Type)
	assert.JSONEq(t, `{"choices":[{"delta":{"content":"Hel"}}]}`, string(events[0].Data))
	assert.Equal(t, sse.EventData, events[1].Type)
	assert.JSONEq(t, `{"choices":[{"delta":{"content":"lo"}}]}`, string(events[1].Data))
	assert.Equal(t, sse.EventDone, events[2].Type)
}

func TestDecoder_BoundarySplit(t *testing.T) {
	d := sse.NewDecoder()

	var all []sse.Event
	all = append(all, d.Feed([]byte("data: {\"cho"))...)
	all = append(all, d.Feed([]byte("ices\":[{\"del"))...)
	all = append(all, d.Feed([]byte("ta\":{\"content\":\"hello\"}}]}\n\n"))...)

	require.Len(t, all, 1)
	assert.JSONEq(t, `{"choices":[{"delta":{"content":"hello"}}]}`, string(all[0].Data))
}

func TestDecoder_MultiLineDataJoinedWithNewline(t *testing.T) {
	d := sse.NewDecoder()

	events := d.Feed([]byte("data: line one\ndata: line two\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", string(events[0].Data))
}

func TestDecoder_CommentsAndUnknownFieldsIgnored(t *testing.T) {
	d := sse.NewDecoder()

	events := d.Feed([]byte(": this is a comment\nunknown: field\nevent: update\ndata: payload\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "update", events[0].Name)
	assert.Equal(t, "payload", string(events[0].Data))
}

func TestDecoder_IDAndRetryCaptured(t *testing.T) {
	d := sse.NewDecoder()

	events := d.Feed([]byte("id: 42\nretry: 3000\ndata: hi\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "42", events[0].ID)
	assert.Equal(t, "3000", events[0].Retry)
}

func TestDecoder_FlushReturnsUnterminatedEvent(t *testing.T) {
	d := sse.NewDecoder()

	events := d.Feed([]byte("data: partial"))
	require.Empty(t, events)

	ev, ok := d.Flush()
	require.True(t, ok)
	assert.Equal(t, "partial", string(ev.Data))
}

func TestDecoder_ByteAtATimeFeedEquivalence(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"hello world\"}}]}\n\n" +
		"data: [DONE]\n\n"

	whole := sse.NewDecoder().Feed([]byte(input))

	var piecewise []sse.Event
	d := sse.NewDecoder()
	for i := 0; i < len(input); i++ {
		piecewise = append(piecewise, d.Feed([]byte{input[i]})...)
	}

	require.Len(t, piecewise, len(whole))
	for i := range whole {
		assert.Equal(t, whole[i].Type, piecewise[i].Type)
		assert.Equal(t, string(whole[i].Data), string(piecewise[i].Data))
	}
}
