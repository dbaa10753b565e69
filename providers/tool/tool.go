package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aigohq/aigo/core/cost"
	"github.com/aigohq/aigo/internal/jsonschema"
	"github.com/aigohq/aigo/internal/utils"
	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/observability"
)

// Tool wraps a typed handler function as a GenericTool, generating its JSON
// schema from the input/output types and handling JSON marshaling at the
// boundary so callers (the LLM provider) only ever see opaque JSON strings.
type Tool[I, O any] struct {
	Name        string
	Description string
	Required    bool
	Parameters  *jsonschema.Schema
	Output      *jsonschema.Schema
	Function    func(ctx context.Context, input I) (O, error)
	Metrics     *cost.ToolMetrics
}

// GenericTool is the provider-agnostic interface the client orchestration
// layer drives tools through: ToolInfo feeds the LLM request, Call executes
// the tool against raw JSON arguments, and GetMetrics exposes optional
// cost/quality metadata for enrichment and cost tracking.
type GenericTool interface {
	ToolInfo() ai.ToolDefinition
	Call(ctx context.Context, arguments string) (string, error)
	GetMetrics() *cost.ToolMetrics
}

type funcToolOptions struct {
	Description string
	Required    bool
	Metrics     *cost.ToolMetrics
}

func WithDescription(description string) func(tool *funcToolOptions) {
	return func(s *funcToolOptions) {
		s.Description = description
	}
}

func IsRequired() func(tool *funcToolOptions) {
	return func(s *funcToolOptions) {
		s.Required = true
	}
}

// WithMetrics attaches cost/quality metrics to the tool, surfaced via
// ToolInfo().Metrics and GetMetrics for orchestration-layer cost tracking
// and optimization-strategy enrichment.
func WithMetrics(metrics cost.ToolMetrics) func(tool *funcToolOptions) {
	return func(s *funcToolOptions) {
		s.Metrics = &metrics
	}
}

func NewTool[I, O any](name string, function func(ctx context.Context, input I) (O, error), options ...func(tool *funcToolOptions)) *Tool[I, O] {
	toolOptions := &funcToolOptions{}
	for _, o := range options {
		o(toolOptions)
	}

	tool := &Tool[I, O]{
		Name:        name,
		Required:    toolOptions.Required,
		Description: toolOptions.Description,
		Parameters:  jsonschema.GenerateJSONSchema[I](),
		Output:      jsonschema.GenerateJSONSchema[O](),
		Function:    function,
		Metrics:     toolOptions.Metrics,
	}
	return tool
}

func (t *Tool[I, O]) ToolInfo() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
		Metrics:     t.Metrics,
	}
}

// GetMetrics returns the tool's cost/quality metrics, or nil if none were
// attached via WithMetrics.
func (t *Tool[I, O]) GetMetrics() *cost.ToolMetrics {
	return t.Metrics
}

// Call parses arguments as JSON into the tool's input type, invokes the
// handler, and marshals the result back to JSON. If the context carries an
// observability span (see observability.ContextWithSpan), execution start
// and end events plus duration/output attributes are recorded on it.
func (t *Tool[I, O]) Call(ctx context.Context, arguments string) (string, error) {
	parsedInput, err := utils.ParseStringAs[I](arguments)
	if err != nil {
		return "", err
	}

	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent(observability.EventToolExecutionStart,
			observability.String(observability.AttrToolName, t.Name),
		)
	}

	start := time.Now()
	output, err := t.Function(ctx, parsedInput)
	duration := time.Since(start)

	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.AddEvent(observability.EventToolExecutionEnd,
				observability.String(observability.AttrToolName, t.Name),
				observability.Duration(observability.AttrDuration, duration),
				observability.String(observability.AttrStatus, "error"),
			)
		}
		return "", err
	}

	outputBytes, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	outputJSON := string(outputBytes)

	if span != nil {
		span.SetAttributes(
			observability.Duration(observability.AttrDuration, duration),
			observability.String(observability.AttrToolOutput, observability.TruncateStringDefault(outputJSON)),
		)
		span.AddEvent(observability.EventToolExecutionEnd,
			observability.String(observability.AttrToolName, t.Name),
			observability.Duration(observability.AttrDuration, duration),
			observability.String(observability.AttrStatus, "success"),
		)
	}

	return outputJSON, nil
}
