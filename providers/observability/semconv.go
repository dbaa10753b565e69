package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names to ensure consistency
// across different components of the system.

// --- LLM Provider Attributes ---

const (
	// AttrLLMProvider is the name of the LLM provider (e.g., "openai", "anthropic")
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier (e.g., "gpt-4", "claude-3")
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API endpoint URL
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMRequestID is the unique request identifier from the provider
	AttrLLMRequestID = "llm.request.id"

	// AttrLLMResponseID is the unique response identifier from the provider
	AttrLLMResponseID = "llm.response.id"

	// AttrLLMFinishReason is the reason the generation finished
	AttrLLMFinishReason = "llm.finish_reason"

	// AttrLLMTemperature is the sampling temperature used
	AttrLLMTemperature = "llm.temperature"

	// AttrLLMMaxTokens is the maximum tokens allowed
	AttrLLMMaxTokens = "llm.max_tokens"

	// AttrLLMEndpointType distinguishes between a provider's API surfaces
	// (e.g. OpenAI's "chat_completions" vs "responses" endpoints).
	AttrLLMEndpointType = "llm.endpoint_type"
)

// --- Request/Client Attributes ---

const (
	// AttrRequestMessagesCount is the number of messages in an outgoing request.
	AttrRequestMessagesCount = "request.messages.count"

	// AttrRequestToolsCount is the number of tool definitions in an outgoing request.
	AttrRequestToolsCount = "request.tools.count"

	// AttrClientPrompt is the (possibly truncated) prompt text passed to a
	// client-level send call.
	AttrClientPrompt = "client.prompt"

	// AttrClientToolsCount is the number of tools registered on a client.
	AttrClientToolsCount = "client.tools.count"

	// AttrClientToolCalls is the number of tool calls a response requested.
	AttrClientToolCalls = "client.tool_calls"

	// AttrMemoryTotalMessages is the number of messages currently held in a
	// memory provider.
	AttrMemoryTotalMessages = "memory.total_messages"

	// AttrStatusDescription carries the human-readable description passed to
	// Span.SetStatus.
	AttrStatusDescription = "status.description"
)

// --- Token Usage Attributes ---

const (
	// AttrLLMTokensPrompt is the number of prompt tokens
	AttrLLMTokensPrompt = "llm.tokens.prompt"

	// AttrLLMTokensCompletion is the number of completion tokens
	AttrLLMTokensCompletion = "llm.tokens.completion"

	// AttrLLMTokensTotal is the total number of tokens
	AttrLLMTokensTotal = "llm.tokens.total"
)

// --- Tool Execution Attributes ---

const (
	// AttrToolName is the name of the tool being executed
	AttrToolName = "tool.name"

	// AttrToolDefinition is the tool description
	AttrToolDefinition = "tool.description"

	// AttrToolInput is the tool input (serialized)
	AttrToolInput = "tool.input"

	// AttrToolOutput is the tool output (serialized)
	AttrToolOutput = "tool.output"

	// AttrToolDuration is the execution duration
	AttrToolDuration = "tool.duration"

	// AttrToolError is the error message if tool execution failed
	AttrToolError = "tool.error"
)

// --- HTTP Attributes ---

const (
	// AttrHTTPMethod is the HTTP method (GET, POST, etc.)
	AttrHTTPMethod = "http.method"

	// AttrHTTPStatusCode is the HTTP response status code
	AttrHTTPStatusCode = "http.status_code"

	// AttrHTTPURL is the full request URL
	AttrHTTPURL = "http.url"

	// AttrHTTPRequestBodySize is the request body size in bytes
	AttrHTTPRequestBodySize = "http.request.body.size"

	// AttrHTTPResponseBodySize is the response body size in bytes
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- General Attributes ---

const (
	// AttrError is the error message
	AttrError = "error"

	// AttrErrorType is the error type/class
	AttrErrorType = "error.type"

	// AttrDuration is the operation duration
	AttrDuration = "duration"

	// AttrStatus is the operation status
	AttrStatus = "status"
)

// --- Span Names ---

const (
	// SpanClientSendMessage is the span name for client message sending
	SpanClientSendMessage = "client.send_message"

	// SpanLLMRequest is the span name for LLM API requests
	SpanLLMRequest = "llm.request"

	// SpanToolExecution is the span name for tool executions
	SpanToolExecution = "tool.execution"

	// SpanMemoryOperation is the span name for memory operations
	SpanMemoryOperation = "memory.operation"
)

// --- Event Names ---

const (
	// EventLLMRequestStart marks the start of an LLM request
	EventLLMRequestStart = "llm.request.start"

	// EventLLMRequestEnd marks the end of an LLM request
	EventLLMRequestEnd = "llm.request.end"

	// EventToolExecutionStart marks the start of tool execution
	EventToolExecutionStart = "tool.execution.start"

	// EventToolExecutionEnd marks the end of tool execution
	EventToolExecutionEnd = "tool.execution.end"

	// EventTokensReceived marks when tokens are received from LLM
	EventTokensReceived = "llm.tokens.received"
)

// --- Metric Names ---

const (
	// MetricClientRequestCount counts client-level send/stream calls, tagged
	// by AttrStatus ("success" or "error") and AttrLLMModel.
	MetricClientRequestCount = "aigo.client.request.count"

	// MetricClientRequestDuration records client-level request latency in
	// seconds, tagged by AttrLLMModel.
	MetricClientRequestDuration = "aigo.client.request.duration"

	// MetricClientTokensTotal counts total tokens (prompt + completion)
	// consumed by client requests, tagged by AttrLLMModel.
	MetricClientTokensTotal = "aigo.client.tokens.total"

	// MetricClientTokensPrompt counts prompt tokens consumed by client
	// requests, tagged by AttrLLMModel.
	MetricClientTokensPrompt = "aigo.client.tokens.prompt"

	// MetricClientTokensCompletion counts completion tokens produced by
	// client requests, tagged by AttrLLMModel.
	MetricClientTokensCompletion = "aigo.client.tokens.completion"
)
