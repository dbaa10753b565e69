// Package client provides the orchestration layer that turns a raw ai.Provider
// into a full-featured chat client: conversation memory, tool catalogs, system
// prompt enrichment, middleware (retry, timeout, logging, observability), cost
// tracking, and structured-output parsing. The primary entry point is New.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/aigohq/aigo/core/cost"
	"github.com/aigohq/aigo/core/overview"
	"github.com/aigohq/aigo/internal/jsonschema"
	"github.com/aigohq/aigo/internal/utils"
	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/memory"
	"github.com/aigohq/aigo/providers/observability"
	"github.com/aigohq/aigo/providers/tool"
)

// Client orchestrates chat completions against an ai.Provider, adding
// conversation memory, tool calling, system prompt enrichment, cost tracking,
// and an optional middleware chain on top of the raw provider call.
type Client struct {
	llmProvider    ai.Provider
	memoryProvider memory.Provider
	observer       observability.Provider

	systemPrompt string
	defaultModel string

	toolCatalog      *tool.Catalog
	toolDescriptions []ai.ToolDefinition
	requiredTools    []ai.ToolDefinition

	defaultOutputSchema *jsonschema.Schema

	modelCost   *cost.ModelCost
	computeCost *cost.ComputeCost

	sendChain   SendFunc
	streamChain StreamFunc
}

// ClientOptions accumulates the configuration assembled by ClientOption values
// before New validates it and builds a Client.
type ClientOptions struct {
	MemoryProvider memory.Provider
	Observer       observability.Provider
	SystemPrompt   string
	DefaultModel   string

	Tools         []tool.GenericTool
	RequiredTools []tool.GenericTool

	EnrichWithDescriptions bool
	EnrichCostsStrategy    *cost.OptimizationStrategy

	DefaultOutputSchema *jsonschema.Schema
	ModelCost           *cost.ModelCost

	Middlewares []MiddlewareConfig
}

// ClientOption configures a Client during construction via New.
type ClientOption func(*ClientOptions)

// WithMemory attaches a conversation history store. Without it, SendMessage
// operates in stateless mode and ContinueConversation/StreamContinueConversation
// are unavailable.
func WithMemory(provider memory.Provider) ClientOption {
	return func(o *ClientOptions) {
		o.MemoryProvider = provider
	}
}

// WithObserver attaches an observability provider. When set, New automatically
// prepends an observability middleware to the send/stream chains so every
// request is traced, logged, and measured without further configuration.
func WithObserver(observer observability.Provider) ClientOption {
	return func(o *ClientOptions) {
		o.Observer = observer
	}
}

// WithSystemPrompt sets the base system prompt sent with every request, unless
// overridden per-call via WithEphemeralSystemPrompt.
func WithSystemPrompt(prompt string) ClientOption {
	return func(o *ClientOptions) {
		o.SystemPrompt = prompt
	}
}

// WithDefaultModel sets the model identifier used on every outgoing request.
func WithDefaultModel(model string) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}

// WithTools registers tools the model may call. Tools are added to the tool
// catalog and included in every outgoing ChatRequest.Tools.
func WithTools(tools ...tool.GenericTool) ClientOption {
	return func(o *ClientOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

// WithRequiredTools registers tools the same way WithTools does, and
// additionally marks them as required via ChatRequest.ToolChoice.RequiredTools.
func WithRequiredTools(tools ...tool.GenericTool) ClientOption {
	return func(o *ClientOptions) {
		o.RequiredTools = append(o.RequiredTools, tools...)
	}
}

// WithEnrichSystemPromptWithToolsDescriptions appends a generated "Available
// Tools" section (name, description, parameters) to the system prompt at
// construction time.
func WithEnrichSystemPromptWithToolsDescriptions() ClientOption {
	return func(o *ClientOptions) {
		o.EnrichWithDescriptions = true
	}
}

// WithEnrichSystemPromptWithToolsCosts enriches the system prompt the same way
// WithEnrichSystemPromptWithToolsDescriptions does, and additionally appends
// per-tool cost/accuracy metrics plus an "Optimization Goal" block describing
// how the model should weigh cost, accuracy, and speed when choosing a tool.
func WithEnrichSystemPromptWithToolsCosts(strategy cost.OptimizationStrategy) ClientOption {
	return func(o *ClientOptions) {
		o.EnrichWithDescriptions = true
		o.EnrichCostsStrategy = &strategy
	}
}

// WithDefaultOutputSchema sets the JSON schema applied to every outgoing
// request's ResponseFormat, unless overridden per-call via WithOutputSchema.
func WithDefaultOutputSchema(schema *jsonschema.Schema) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultOutputSchema = schema
	}
}

// WithModelCost attaches a pricing table used to compute model token costs
// recorded into any overview.Overview present in the request context.
func WithModelCost(modelCost cost.ModelCost) ClientOption {
	return func(o *ClientOptions) {
		o.ModelCost = &modelCost
	}
}

// WithMiddleware registers one or more middleware entries applied around the
// provider call, outermost first. Entries with a nil Send field cause New to
// return an error.
func WithMiddleware(middlewares ...MiddlewareConfig) ClientOption {
	return func(o *ClientOptions) {
		o.Middlewares = append(o.Middlewares, middlewares...)
	}
}

// New creates a Client wrapping llmProvider, applying the given options. It
// returns an error only when the configuration itself is invalid (e.g. a
// middleware entry with a nil Send field); provider connectivity is never
// checked at construction time.
func New(llmProvider ai.Provider, opts ...ClientOption) (*Client, error) {
	if llmProvider == nil {
		return nil, errors.New("llmProvider cannot be nil")
	}

	options := &ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	for i, mw := range options.Middlewares {
		if mw.Send == nil {
			return nil, fmt.Errorf("middleware[%d] has a nil Send field", i)
		}
	}

	allTools := make([]tool.GenericTool, 0, len(options.Tools)+len(options.RequiredTools))
	allTools = append(allTools, options.Tools...)
	allTools = append(allTools, options.RequiredTools...)

	toolDescriptions := make([]ai.ToolDefinition, len(allTools))
	for i, t := range allTools {
		toolDescriptions[i] = t.ToolInfo()
	}

	requiredDescriptions := make([]ai.ToolDefinition, len(options.RequiredTools))
	for i, t := range options.RequiredTools {
		requiredDescriptions[i] = t.ToolInfo()
	}

	systemPrompt := options.SystemPrompt
	if options.EnrichCostsStrategy != nil {
		systemPrompt = enrichSystemPromptWithTools(systemPrompt, allTools, toolDescriptions, optimizationGuidanceText(*options.EnrichCostsStrategy))
	} else if options.EnrichWithDescriptions {
		systemPrompt = enrichSystemPromptWithTools(systemPrompt, allTools, toolDescriptions, "")
	}

	modelCost := options.ModelCost
	if modelCost == nil {
		modelCost = loadModelCostFromEnv()
	}

	client := &Client{
		llmProvider:         llmProvider,
		memoryProvider:      options.MemoryProvider,
		observer:            options.Observer,
		systemPrompt:        systemPrompt,
		defaultModel:        options.DefaultModel,
		toolCatalog:         tool.NewCatalogWithTools(allTools...),
		toolDescriptions:    toolDescriptions,
		requiredTools:       requiredDescriptions,
		defaultOutputSchema: options.DefaultOutputSchema,
		modelCost:           modelCost,
		computeCost:         loadComputeCostFromEnv(),
	}

	middlewares := make([]MiddlewareConfig, 0, len(options.Middlewares)+1)
	if options.Observer != nil {
		middlewares = append(middlewares, NewObservabilityMiddleware(options.Observer, options.DefaultModel))
	}
	middlewares = append(middlewares, options.Middlewares...)

	if len(middlewares) > 0 {
		client.sendChain = buildSendChain(llmProvider, middlewares)
	}

	hasStream := false
	for _, mw := range middlewares {
		if mw.Stream != nil {
			hasStream = true
			break
		}
	}
	if hasStream {
		client.streamChain = buildStreamChain(llmProvider, middlewares)
	}

	return client, nil
}

// NewClient is an alias for New, kept for callers that prefer the
// constructor-style name.
func NewClient(llmProvider ai.Provider, opts ...ClientOption) (*Client, error) {
	return New(llmProvider, opts...)
}

// loadModelCostFromEnv builds a ModelCost from AIGO_MODEL_INPUT_COST_PER_MILLION
// and AIGO_MODEL_OUTPUT_COST_PER_MILLION. It returns nil if either variable is
// unset or fails to parse as a float, leaving model cost tracking disabled
// rather than failing client construction.
func loadModelCostFromEnv() *cost.ModelCost {
	inputRaw, inputSet := os.LookupEnv("AIGO_MODEL_INPUT_COST_PER_MILLION")
	outputRaw, outputSet := os.LookupEnv("AIGO_MODEL_OUTPUT_COST_PER_MILLION")
	if !inputSet || !outputSet {
		return nil
	}

	input, err := strconv.ParseFloat(inputRaw, 64)
	if err != nil {
		return nil
	}
	output, err := strconv.ParseFloat(outputRaw, 64)
	if err != nil {
		return nil
	}

	return &cost.ModelCost{
		InputCostPerMillion:  input,
		OutputCostPerMillion: output,
	}
}

// loadComputeCostFromEnv builds a ComputeCost from AIGO_COMPUTE_COST_PER_SECOND.
// It returns nil if the variable is unset or fails to parse as a float.
func loadComputeCostFromEnv() *cost.ComputeCost {
	raw, set := os.LookupEnv("AIGO_COMPUTE_COST_PER_SECOND")
	if !set {
		return nil
	}

	perSecond, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}

	return &cost.ComputeCost{CostPerSecond: perSecond}
}

// sendOptions accumulates the per-call overrides assembled by SendMessageOption
// values.
type sendOptions struct {
	outputSchema *jsonschema.Schema
	systemPrompt *string
}

// SendMessageOption customizes a single SendMessage, ContinueConversation,
// StreamMessage, or StreamContinueConversation call.
type SendMessageOption func(*sendOptions)

// WithOutputSchema overrides the client's default output schema for a single
// call.
func WithOutputSchema(schema *jsonschema.Schema) SendMessageOption {
	return func(o *sendOptions) {
		o.outputSchema = schema
	}
}

// WithEphemeralSystemPrompt overrides the client's configured system prompt
// for a single call only.
func WithEphemeralSystemPrompt(prompt string) SendMessageOption {
	return func(o *sendOptions) {
		o.systemPrompt = &prompt
	}
}

func resolveSendOptions(opts []SendMessageOption) *sendOptions {
	options := &sendOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SendMessage appends prompt as a user message (when memory is configured) and
// sends the conversation to the provider. The prompt must be non-empty; use
// ContinueConversation to proceed without adding a new user message.
func (c *Client) SendMessage(ctx context.Context, prompt string, opts ...SendMessageOption) (*ai.ChatResponse, error) {
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty; use ContinueConversation() to proceed without a new user message")
	}

	messages, err := c.messagesWithNewPrompt(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return c.send(ctx, messages, resolveSendOptions(opts))
}

// ContinueConversation sends the full message history from memory without
// adding a new user message. It requires a memory provider configured via
// WithMemory().
func (c *Client) ContinueConversation(ctx context.Context, opts ...SendMessageOption) (*ai.ChatResponse, error) {
	if c.memoryProvider == nil {
		return nil, errors.New("ContinueConversation requires a memory provider; configure one with WithMemory()")
	}

	messages, err := c.memoryProvider.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages from memory: %w", err)
	}

	return c.send(ctx, messages, resolveSendOptions(opts))
}

// StreamMessage behaves like SendMessage but delivers the response as a
// ChatStream. If the underlying provider implements ai.StreamProvider it is
// streamed natively; otherwise the provider is called synchronously and the
// result is wrapped as a single-event stream.
func (c *Client) StreamMessage(ctx context.Context, prompt string, opts ...SendMessageOption) (*ai.ChatStream, error) {
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty; use ContinueConversation() to proceed without a new user message")
	}

	messages, err := c.messagesWithNewPrompt(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return c.stream(ctx, messages, resolveSendOptions(opts))
}

// StreamContinueConversation behaves like ContinueConversation but delivers the
// response as a ChatStream. It requires a memory provider configured via
// WithMemory().
func (c *Client) StreamContinueConversation(ctx context.Context, opts ...SendMessageOption) (*ai.ChatStream, error) {
	if c.memoryProvider == nil {
		return nil, errors.New("StreamContinueConversation requires a memory provider; configure one with WithMemory()")
	}

	messages, err := c.memoryProvider.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages from memory: %w", err)
	}

	return c.stream(ctx, messages, resolveSendOptions(opts))
}

// messagesWithNewPrompt appends prompt to memory (if configured) and returns
// the full message list to send: either the updated memory history, or a
// single-message slice in stateless mode.
func (c *Client) messagesWithNewPrompt(ctx context.Context, prompt string) ([]ai.Message, error) {
	if c.memoryProvider == nil {
		return []ai.Message{{Role: ai.RoleUser, Content: prompt}}, nil
	}

	c.memoryProvider.AppendMessage(ctx, &ai.Message{Role: ai.RoleUser, Content: prompt})

	messages, err := c.memoryProvider.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages from memory: %w", err)
	}
	return messages, nil
}

// send builds a ChatRequest from messages and options, routes it through the
// middleware chain (or directly to the provider), and records usage/cost into
// any overview.Overview present in ctx.
func (c *Client) send(ctx context.Context, messages []ai.Message, options *sendOptions) (*ai.ChatResponse, error) {
	request := c.buildRequest(messages, options)

	var response *ai.ChatResponse
	var err error
	if c.sendChain != nil {
		response, err = c.sendChain(ctx, request)
	} else {
		response, err = c.llmProvider.SendMessage(ctx, request)
	}
	if err != nil {
		return nil, err
	}

	c.recordOverview(ctx, request, response)

	return response, nil
}

// stream builds a ChatRequest and routes it through the stream middleware
// chain, falling back to native or synchronous streaming on the raw provider
// when no stream chain is configured.
func (c *Client) stream(ctx context.Context, messages []ai.Message, options *sendOptions) (*ai.ChatStream, error) {
	request := c.buildRequest(messages, options)

	if c.streamChain != nil {
		return c.streamChain(ctx, request)
	}

	if streamProvider, ok := c.llmProvider.(ai.StreamProvider); ok {
		return streamProvider.StreamMessage(ctx, request)
	}

	response, err := c.llmProvider.SendMessage(ctx, request)
	if err != nil {
		return nil, err
	}

	return ai.NewSingleEventStream(response), nil
}

// buildRequest assembles a ChatRequest from the conversation messages, the
// client's configured system prompt and tools, and any per-call overrides.
func (c *Client) buildRequest(messages []ai.Message, options *sendOptions) ai.ChatRequest {
	systemPrompt := c.systemPrompt
	if options.systemPrompt != nil {
		systemPrompt = *options.systemPrompt
	}

	outputSchema := c.defaultOutputSchema
	if options.outputSchema != nil {
		outputSchema = options.outputSchema
	}

	request := ai.ChatRequest{
		Model:        c.defaultModel,
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Tools:        c.toolDescriptions,
	}

	if len(c.requiredTools) > 0 {
		requiredPtrs := make([]*ai.ToolDefinition, len(c.requiredTools))
		for i := range c.requiredTools {
			requiredPtrs[i] = &c.requiredTools[i]
		}
		request.ToolChoice = &ai.ToolChoice{RequiredTools: requiredPtrs}
	}

	if outputSchema != nil {
		request.ResponseFormat = &ai.ResponseFormat{
			Type:         "json_schema",
			OutputSchema: outputSchema,
		}
	}

	return request
}

// recordOverview attaches model cost tracking and usage to the overview.Overview
// carried in ctx, if any. It is a no-op when no overview has been attached to
// ctx via overview.Overview.ToContext.
func (c *Client) recordOverview(ctx context.Context, request ai.ChatRequest, response *ai.ChatResponse) {
	ov := overview.OverviewFromContext(&ctx)
	if ov == nil {
		return
	}

	if c.modelCost != nil {
		ov.SetModelCost(c.modelCost)
	}
	ov.AddRequest(&request)
	ov.AddResponse(response)
	ov.IncludeUsage(response.Usage)
	if len(response.ToolCalls) > 0 {
		ov.AddToolCalls(response.ToolCalls)
	}
}

// SetDefaultOutputSchema sets the schema applied to every outgoing request's
// ResponseFormat, unless overridden per-call via WithOutputSchema. It is used
// by NewStructuredClient to bind a base Client to a generic response type.
func (c *Client) SetDefaultOutputSchema(schema *jsonschema.Schema) {
	c.defaultOutputSchema = schema
}

// Memory returns the configured memory.Provider, or nil if none was set.
func (c *Client) Memory() memory.Provider {
	return c.memoryProvider
}

// Observer returns the configured observability.Provider, or nil if none was
// set.
func (c *Client) Observer() observability.Provider {
	return c.observer
}

// ToolCatalog returns a clone of the client's tool catalog. Mutating the
// returned catalog does not affect the client's internal state.
func (c *Client) ToolCatalog() *tool.Catalog {
	return c.toolCatalog.Clone()
}

// enrichSystemPromptWithTools appends a human-readable "Available Tools"
// section to basePrompt describing each tool's name, description, and
// parameters. tools and toolDescriptions must correspond by index; metrics are
// read from toolDescriptions when present and fall back to tools[i].GetMetrics().
// extra, when non-empty, is appended as an "Optimization Goal" block (used by
// WithEnrichSystemPromptWithToolsCosts). Returns basePrompt unchanged when
// toolDescriptions is empty.
func enrichSystemPromptWithTools(basePrompt string, tools []tool.GenericTool, toolDescriptions []ai.ToolDefinition, extra string) string {
	if len(toolDescriptions) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n## Available Tools\n\n")
	b.WriteString("You have access to the following tools. Use them when appropriate via function calling to provide accurate and helpful responses:\n\n")

	for i, desc := range toolDescriptions {
		fmt.Fprintf(&b, "%d. **%s**", i+1, desc.Name)
		if desc.Description != "" {
			fmt.Fprintf(&b, " - %s", desc.Description)
		}

		if desc.Parameters != nil {
			if paramsJSON, err := json.Marshal(desc.Parameters); err == nil {
				fmt.Fprintf(&b, "\n   Parameters: %s", string(paramsJSON))
			}
		}

		metrics := desc.Metrics
		if metrics == nil && i < len(tools) && tools[i] != nil {
			metrics = tools[i].GetMetrics()
		}
		if metrics != nil {
			fmt.Fprintf(&b, "\n   Cost: %s", metrics.String())
			if metricsStr := metrics.MetricsString(); metricsStr != "" {
				fmt.Fprintf(&b, " (%s)", metricsStr)
			}
		}

		b.WriteString("\n")
	}

	b.WriteString("\nWhen you need to use a tool, invoke it through function calling rather than describing the call in text. ")
	b.WriteString("The system executes the tool and returns its result for you to use in your final response.")

	if extra != "" {
		fmt.Fprintf(&b, "\n\n## Optimization Goal\n\n%s", extra)
	}

	return b.String()
}

// optimizationGuidanceText returns the model-facing guidance text for a tool
// selection optimization strategy.
func optimizationGuidanceText(strategy cost.OptimizationStrategy) string {
	switch strategy {
	case cost.OptimizeForCost:
		return "Minimize costs when selecting between tools of similar capability. Prefer the cheaper tool unless accuracy would be meaningfully compromised."
	case cost.OptimizeForAccuracy:
		return "Prioritize accuracy and reliability over cost or speed when selecting between tools."
	case cost.OptimizeForSpeed:
		return "Prioritize faster tools, favoring lower average execution time over cost or accuracy."
	case cost.OptimizeBalanced:
		return "Balance cost, accuracy, and speed when selecting between tools; no single metric should dominate the decision."
	case cost.OptimizeCostEffective:
		return "Prefer tools with the best accuracy-to-cost ratio rather than the cheapest or most accurate tool alone."
	default:
		return ""
	}
}

// ParseResponseAs parses response.Content into T, using the same primitive and
// JSON-repair logic as the rest of the package, but with error messages phrased
// in terms of the response rather than raw content.
func ParseResponseAs[T any](response *ai.ChatResponse) (T, error) {
	result, err := utils.ParseStringAs[T](response.Content)
	if err == nil {
		return result, nil
	}

	var kind string
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Bool:
		kind = "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		kind = "int"
	case reflect.Float32, reflect.Float64:
		kind = "float"
	default:
		return result, fmt.Errorf("failed to parse response: %w", err)
	}

	return result, fmt.Errorf("failed to parse response as %s: %w", kind, err)
}
