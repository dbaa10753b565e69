// Package stream implements the stream coordinator: a long-lived actor
// that owns one in-flight HTTP response, buffers inbound bytes, drives a
// frame decoder and a provider adapter, and serves a bounded, backpressured
// queue of canonical chunks to one or more consumers. It generalizes the
// teacher's ChatStream/Iter/Collect consumer ergonomics
// (providers/ai/stream.go) onto an actor goroutine modeled after
// goadesign-goa-ai's channel-based bedrockStreamer, per the "actor/mailbox
// -> single-threaded cooperative task + bounded channel" design note.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/ai/aierr"
	"github.com/aigohq/aigo/providers/ai/eventstream"
	"github.com/aigohq/aigo/providers/ai/sse"
	"github.com/aigohq/aigo/providers/observability"
)

// FrameFormat selects which frame decoder the coordinator runs over the
// byte buffer.
type FrameFormat int

const (
	FormatSSE FrameFormat = iota
	FormatEventStream
)

// Defaults for the resource-accounting knobs named in spec.md §5.
const (
	DefaultWatermark    = 2
	DefaultSoftBufCap   = 1 << 20  // 1 MiB
	DefaultHardBufCap   = 16 << 20 // 16 MiB
	DefaultNextTimeout  = 30 * time.Second
	DefaultAwaitTimeout = 60 * time.Second
)

// FixtureSink persists one stream's raw bytes and resolved canonical JSON
// exactly once, per spec.md §6 "Persisted state".
type FixtureSink interface {
	Persist(rawStreamBytes, canonicalJSON []byte) error
}

// Config tunes the coordinator's resource accounting and JSON-object
// streaming mode.
type Config struct {
	Watermark     int
	SoftBufferCap int
	HardBufferCap int
	NextTimeout   time.Duration
	AwaitTimeout  time.Duration
	FixtureSink   FixtureSink

	// JSONObjectMode enables spec.md §4.6's "JSON object streaming":
	// assembled Content text is parsed as JSON on terminal and, on
	// success, emitted as a synthetic structured_output ToolCall before
	// the terminal Meta chunk.
	JSONObjectMode bool

	Observer observability.Provider
}

func (c Config) withDefaults() Config {
	if c.Watermark <= 0 {
		c.Watermark = DefaultWatermark
	}
	if c.SoftBufferCap <= 0 {
		c.SoftBufferCap = DefaultSoftBufCap
	}
	if c.HardBufferCap <= 0 {
		c.HardBufferCap = DefaultHardBufCap
	}
	if c.NextTimeout <= 0 {
		c.NextTimeout = DefaultNextTimeout
	}
	if c.AwaitTimeout <= 0 {
		c.AwaitTimeout = DefaultAwaitTimeout
	}
	return c
}

type nextResult struct {
	chunk ai.Chunk
	halt  bool
	err   error
}

type metaResult struct {
	meta ai.StreamMetadata
	err  error
}

type msgHTTPStatus struct{ status int }
type msgHTTPHeaders struct{ headers map[string]string }
type msgHTTPData struct {
	data []byte
	ack  chan struct{}
}
type msgHTTPDone struct{}
type msgHTTPError struct{ err error }
type msgTaskDown struct{ err error }
type msgNext struct{ reply chan nextResult }
type msgAwaitMetadata struct{ reply chan metaResult }
type msgCancel struct{ done chan struct{} }

// Coordinator is the actor described in spec.md §4.5. Construct one with
// New and drive it by calling Start with an *http.Response whose body is
// still open for streaming; obtain consumer-facing access via Handle.
type Coordinator struct {
	cfg     Config
	format  FrameFormat
	adapter ai.StreamAdapter

	mailbox  chan any
	cancelFn context.CancelFunc
	httpDone chan struct{}
}

// New constructs a Coordinator and starts its actor goroutine. The
// returned Coordinator is not yet attached to any HTTP task; call Start.
func New(adapter ai.StreamAdapter, format FrameFormat, cfg Config) *Coordinator {
	c := &Coordinator{
		cfg:     cfg.withDefaults(),
		format:  format,
		adapter: adapter,
		mailbox: make(chan any, 64),
	}
	go c.run()
	return c
}

// Start attaches resp's body as this coordinator's HTTP task. body is
// consumed and closed by the spawned ingress goroutine. ctx governs the
// ingress goroutine's lifetime; cancelling it (or calling Handle().Cancel)
// tears the task down.
func (c *Coordinator) Start(ctx context.Context, resp *http.Response) {
	taskCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel
	c.httpDone = make(chan struct{})

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	c.mailbox <- msgHTTPStatus{status: resp.StatusCode}
	c.mailbox <- msgHTTPHeaders{headers: headers}

	go c.runIngress(taskCtx, resp.Body)
}

// Handle returns the public, consumer-facing view of this coordinator.
func (c *Coordinator) Handle() *Handle {
	return &Handle{coord: c}
}

// runIngress reads the response body in chunks and forwards them to the
// actor's mailbox, awaiting an ack after each send so that, once the
// actor's queue crosses the high watermark, this goroutine blocks instead
// of continuing to read the socket — the end-to-end backpressure mechanism
// of spec.md §5.
func (c *Coordinator) runIngress(ctx context.Context, body io.ReadCloser) {
	defer close(c.httpDone)
	defer body.Close()

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ack := make(chan struct{})
			select {
			case c.mailbox <- msgHTTPData{data: chunk, ack: ack}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ack:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				c.mailbox <- msgHTTPDone{}
			} else {
				c.mailbox <- msgHTTPError{err: aierr.TransportConnection(err)}
			}
			return
		}
	}
}

// Cancel is idempotent: it tears down the HTTP task and resolves every
// pending waiter, per spec.md §5 "Cancellation".
func (c *Coordinator) Cancel() {
	done := make(chan struct{})
	select {
	case c.mailbox <- msgCancel{done: done}:
		<-done
	default:
		// Mailbox buffer is full; the cancel request is not sent.
	}
}

func (c *Coordinator) next(timeout time.Duration) nextResult {
	reply := make(chan nextResult, 1)
	select {
	case c.mailbox <- msgNext{reply: reply}:
	default:
		return nextResult{err: aierr.ErrTaskCrash}
	}
	select {
	case r := <-reply:
		return r
	case <-time.After(timeout):
		return nextResult{err: aierr.TransportTimeout(context.DeadlineExceeded)}
	}
}

func (c *Coordinator) awaitMetadata(timeout time.Duration) metaResult {
	reply := make(chan metaResult, 1)
	select {
	case c.mailbox <- msgAwaitMetadata{reply: reply}:
	default:
		return metaResult{err: aierr.ErrTaskCrash}
	}
	select {
	case r := <-reply:
		return r
	case <-time.After(timeout):
		return metaResult{err: aierr.TransportTimeout(context.DeadlineExceeded)}
	}
}

// actorState is the coordinator's private state machine, touched only from
// run's goroutine — no locks are required because all access is serialized
// by the mailbox, per spec.md §5.
type actorState struct {
	running bool

	status  int
	headers map[string]string

	byteBuffer []byte // SSE/EventStream decode buffer
	sseDecoder *sse.Decoder

	providerState any

	queue            []ai.Chunk
	waitingConsumers []chan nextResult
	metadataWaiters  []chan metaResult
	pendingIngress   chan struct{} // ack withheld while queue is above watermark

	terminal bool
	resolved bool
	meta     ai.StreamMetadata
	err      error

	errBody bytes.Buffer // accumulates body bytes when status is 4xx/5xx

	jsonObjectBuf bytes.Buffer

	fixturePersisted bool
	rawStream        bytes.Buffer
}

func (c *Coordinator) run() {
	st := &actorState{
		running:       true,
		providerState: c.adapter.InitStreamState(),
		sseDecoder:    sse.NewDecoder(),
	}

	for msg := range c.mailbox {
		switch m := msg.(type) {
		case msgHTTPStatus:
			st.status = m.status
		case msgHTTPHeaders:
			st.headers = m.headers
		case msgHTTPData:
			c.handleData(st, m)
		case msgHTTPDone:
			c.handleDone(st)
		case msgHTTPError:
			c.handleError(st, m.err)
		case msgTaskDown:
			c.handleError(st, aierr.ErrTaskCrash)
		case msgNext:
			c.handleNext(st, m.reply)
		case msgAwaitMetadata:
			c.handleAwaitMetadata(st, m.reply)
		case msgCancel:
			c.handleCancel(st)
			close(m.done)
		}
	}
}

func (c *Coordinator) handleData(st *actorState, m msgHTTPData) {
	if !st.running {
		close(m.ack)
		return
	}

	st.rawStream.Write(m.data)

	if st.status >= 400 {
		// §4.5 algorithm on http_event(data): accumulate, never parse as
		// SSE, surfaced once `done` arrives.
		st.errBody.Write(m.data)
		c.ackIngress(st, m.ack)
		return
	}

	st.byteBuffer = append(st.byteBuffer, m.data...)
	if len(st.byteBuffer) > c.cfg.HardBufferCap {
		c.handleError(st, aierr.ErrBufferOverflow)
		close(m.ack)
		return
	}

	switch c.format {
	case FormatSSE:
		c.decodeSSE(st)
	case FormatEventStream:
		c.decodeEventStream(st)
	}

	c.ackIngress(st, m.ack)
}

func (c *Coordinator) decodeSSE(st *actorState) {
	events := st.sseDecoder.Feed(st.byteBuffer)
	st.byteBuffer = nil // sse.Decoder owns its own carry buffer internally
	for _, ev := range events {
		if ev.Type == sse.EventDone {
			st.terminal = true // the adapter still gets a chance via Flush
			continue
		}
		c.decodeFrame(st, ev.Data)
	}
}

func (c *Coordinator) decodeEventStream(st *actorState) {
	res := eventstream.Feed(st.byteBuffer)
	st.byteBuffer = res.Rest
	for _, msg := range res.Messages {
		c.decodeFrame(st, msg.Payload)
	}
	if res.FatalErr != nil {
		c.handleError(st, aierr.DecodeEventStream(aierr.EventStreamResyncFailed, res.FatalErr))
	}
}

func (c *Coordinator) decodeFrame(st *actorState, frame []byte) {
	chunks, next, halt := c.adapter.DecodeEvent(frame, st.providerState)
	st.providerState = next
	c.enqueueChunks(st, chunks)
	if halt {
		st.terminal = true
	}
}

func (c *Coordinator) enqueueChunks(st *actorState, chunks []ai.Chunk) {
	for _, ch := range chunks {
		if c.cfg.JSONObjectMode && ch.Kind == ai.ChunkKindContent {
			st.jsonObjectBuf.WriteString(ch.Text)
		}
		st.queue = append(st.queue, ch)
		c.dispatchOne(st)
	}
}

// dispatchOne hands the oldest queued chunk to the oldest waiting consumer,
// if both exist. Chunks are delivered to exactly one `next` call each, in
// FIFO order, per spec.md §5 ordering guarantees.
func (c *Coordinator) dispatchOne(st *actorState) {
	if len(st.queue) == 0 || len(st.waitingConsumers) == 0 {
		return
	}
	chunk := st.queue[0]
	st.queue = st.queue[1:]
	reply := st.waitingConsumers[0]
	st.waitingConsumers = st.waitingConsumers[1:]
	reply <- nextResult{chunk: chunk}
}

// ackIngress withholds the ingress ack while the queue is above the
// watermark; it releases a previously withheld ack once room frees up.
func (c *Coordinator) ackIngress(st *actorState, ack chan struct{}) {
	if len(st.queue) > c.cfg.Watermark {
		st.pendingIngress = ack
		return
	}
	close(ack)
	if st.pendingIngress != nil {
		close(st.pendingIngress)
		st.pendingIngress = nil
	}
}

func (c *Coordinator) handleDone(st *actorState) {
	if !st.running {
		return
	}

	if st.status >= 400 {
		apiErr := c.parseAPIError(st.status, st.errBody.Bytes())
		c.resolveAllWith(st, apiErr)
		st.running = false
		return
	}

	flushed := c.adapter.Flush(st.providerState)
	c.enqueueChunks(st, flushed)

	if c.cfg.JSONObjectMode {
		if parsed, ok := tryParseJSONObject(st.jsonObjectBuf.Bytes()); ok {
			c.enqueueChunks(st, []ai.Chunk{ai.NewToolCallChunk(ai.ToolCallChunk{
				Name:      "structured_output",
				Arguments: parsed,
			})})
		}
	}

	if !hasTerminal(st.queue) {
		c.enqueueChunks(st, []ai.Chunk{ai.NewMetaChunk(map[string]any{ai.MetaTerminal: true})})
	}

	st.terminal = true
	st.resolved = true
	st.meta = c.buildMetadata(st)

	for _, w := range st.waitingConsumers {
		w <- nextResult{halt: true}
	}
	st.waitingConsumers = nil
	for _, w := range st.metadataWaiters {
		w <- metaResult{meta: st.meta}
	}
	st.metadataWaiters = nil

	c.persistFixture(st)
	st.running = false
}

func (c *Coordinator) parseAPIError(status int, body []byte) *aierr.Error {
	reason := ""
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		reason = parsed.Error.Message
	}
	return aierr.APIResponse(status, string(body), reason)
}

func (c *Coordinator) handleError(st *actorState, err error) {
	if !st.running {
		return
	}
	c.resolveAllWith(st, err)
	st.running = false
}

func (c *Coordinator) resolveAllWith(st *actorState, err error) {
	st.err = err
	st.resolved = true
	for _, w := range st.waitingConsumers {
		w <- nextResult{err: err}
	}
	st.waitingConsumers = nil
	for _, w := range st.metadataWaiters {
		w <- metaResult{err: err}
	}
	st.metadataWaiters = nil
}

func (c *Coordinator) handleCancel(st *actorState) {
	if c.cancelFn != nil {
		c.cancelFn()
	}
	if !st.running {
		return
	}
	for _, w := range st.waitingConsumers {
		w <- nextResult{halt: true}
	}
	st.waitingConsumers = nil
	for _, w := range st.metadataWaiters {
		w <- metaResult{err: aierr.ErrCancelled}
	}
	st.metadataWaiters = nil
	st.err = aierr.ErrCancelled
	st.resolved = true
	st.running = false
}

func (c *Coordinator) handleNext(st *actorState, reply chan nextResult) {
	if len(st.queue) > 0 {
		chunk := st.queue[0]
		st.queue = st.queue[1:]
		reply <- nextResult{chunk: chunk}
		return
	}
	if !st.running {
		if st.err != nil {
			reply <- nextResult{err: st.err}
		} else {
			reply <- nextResult{halt: true}
		}
		return
	}
	st.waitingConsumers = append(st.waitingConsumers, reply)
}

func (c *Coordinator) handleAwaitMetadata(st *actorState, reply chan metaResult) {
	if st.resolved {
		if st.err != nil {
			reply <- metaResult{err: st.err}
		} else {
			reply <- metaResult{meta: st.meta}
		}
		return
	}
	st.metadataWaiters = append(st.metadataWaiters, reply)
}

func (c *Coordinator) buildMetadata(st *actorState) ai.StreamMetadata {
	meta := ai.StreamMetadata{HTTPStatus: st.status, Headers: st.headers}
	var assembled ai.Message
	assembled.Role = ai.RoleAssistant
	var contentBuf, thinkingBuf bytes.Buffer
	var toolCalls []ai.ToolCall
	for _, ch := range st.queue {
		accumulateIntoMetadata(ch, &contentBuf, &thinkingBuf, &toolCalls, &meta)
	}
	assembled.Content = contentBuf.String()
	if thinkingBuf.Len() > 0 {
		assembled.Reasoning = thinkingBuf.String()
	}
	assembled.ToolCalls = toolCalls
	meta.Message = assembled
	return meta
}

func accumulateIntoMetadata(ch ai.Chunk, content, thinking *bytes.Buffer, toolCalls *[]ai.ToolCall, meta *ai.StreamMetadata) {
	switch ch.Kind {
	case ai.ChunkKindContent:
		content.WriteString(ch.Text)
	case ai.ChunkKindThinking:
		thinking.WriteString(ch.Text)
	case ai.ChunkKindToolCall:
		if ch.ToolCall != nil && !ch.ToolCall.Partial {
			*toolCalls = append(*toolCalls, ai.ToolCall{
				ID:   ch.ToolCall.ID,
				Type: "function",
				Function: ai.ToolCallFunction{
					Name:      ch.ToolCall.Name,
					Arguments: string(ch.ToolCall.Arguments),
				},
			})
		}
	case ai.ChunkKindMeta:
		if fr, ok := ch.Meta[ai.MetaFinishReason].(string); ok {
			meta.FinishReason = fr
		}
		if u, ok := ch.Meta[ai.MetaUsage].(*ai.Usage); ok {
			meta.Usage = u
		}
	}
}

func (c *Coordinator) persistFixture(st *actorState) {
	if c.cfg.FixtureSink == nil || st.fixturePersisted {
		return
	}
	canonical, _ := json.Marshal(st.meta)
	_ = c.cfg.FixtureSink.Persist(st.rawStream.Bytes(), canonical)
	st.fixturePersisted = true
}

func hasTerminal(chunks []ai.Chunk) bool {
	for _, c := range chunks {
		if c.IsTerminal() {
			return true
		}
	}
	return false
}

func tryParseJSONObject(buf []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 {
		return nil, false
	}
	var v map[string]any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}
