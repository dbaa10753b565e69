package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/ai/aierr"
)

// StreamMessage implements ai.StreamProvider over ConverseStream. Bedrock
// keys content-block deltas by a content_block_index rather than emitting
// OpenAI's flat delta stream, so tool-use fragments are tracked per index
// until their ContentBlockStop closes the block.
func (p *BedrockProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}

	model := modelFor(request, p.defaultModel)
	input, err := requestToConverseStream(request, model)
	if err != nil {
		return nil, err
	}

	output, err := p.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, translateBedrockError(err)
	}

	reader := output.GetStream()

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer func() { _ = reader.Close() }()

		proc := newEventProcessor()

		for {
			select {
			case <-ctx.Done():
				yield(ai.StreamEvent{}, ctx.Err())
				return
			case event, ok := <-reader.Events():
				if !ok {
					if err := reader.Err(); err != nil {
						yield(ai.StreamEvent{}, translateBedrockError(err))
					}
					return
				}
				for _, se := range proc.handle(event) {
					if !yield(se, nil) {
						return
					}
				}
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

// eventProcessor converts a sequence of ConverseStream events into
// ai.StreamEvents. It remembers each tool-use block's ID and name per
// content index until the block closes, and emits every tool-argument JSON
// fragment as its own event when it arrives (Bedrock streams tool arguments
// as raw JSON fragments, not a single final payload).
type eventProcessor struct {
	toolIndex map[int32]*toolUseBuffer
}

type toolUseBuffer struct {
	id        string
	name      string
	arguments string
}

func newEventProcessor() *eventProcessor {
	return &eventProcessor{toolIndex: make(map[int32]*toolUseBuffer)}
}

func (p *eventProcessor) handle(event brtypes.ConverseStreamOutput) []ai.StreamEvent {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberMessageStart:
		p.toolIndex = make(map[int32]*toolUseBuffer)
		return nil

	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := aws.ToInt32(ev.Value.ContentBlockIndex)
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			p.toolIndex[idx] = &toolUseBuffer{
				id:   aws.ToString(start.Value.ToolUseId),
				name: aws.ToString(start.Value.Name),
			}
		}
		return nil

	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := aws.ToInt32(ev.Value.ContentBlockIndex)
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return nil
			}
			return []ai.StreamEvent{{Type: ai.StreamEventContent, Content: delta.Value}}

		case *brtypes.ContentBlockDeltaMemberReasoningContent:
			if text, ok := delta.Value.(*brtypes.ReasoningContentBlockDeltaMemberText); ok && text.Value != "" {
				return []ai.StreamEvent{{Type: ai.StreamEventReasoning, Reasoning: text.Value}}
			}
			return nil

		case *brtypes.ContentBlockDeltaMemberToolUse:
			buf := p.toolIndex[idx]
			if buf == nil || delta.Value.Input == nil {
				return nil
			}
			fragment := aws.ToString(delta.Value.Input)
			buf.arguments += fragment
			return []ai.StreamEvent{{
				Type: ai.StreamEventToolCall,
				ToolCall: &ai.ToolCallDelta{
					Index:     int(idx),
					ID:        buf.id,
					Name:      buf.name,
					Arguments: fragment,
				},
			}}
		}
		return nil

	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := aws.ToInt32(ev.Value.ContentBlockIndex)
		delete(p.toolIndex, idx)
		return nil

	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return []ai.StreamEvent{{
			Type:         ai.StreamEventDone,
			FinishReason: normalizeStopReason(ev.Value.StopReason),
		}}

	case *brtypes.ConverseStreamOutputMemberMetadata:
		usage := ev.Value.Usage
		if usage == nil {
			return nil
		}
		return []ai.StreamEvent{{
			Type: ai.StreamEventUsage,
			Usage: &ai.Usage{
				PromptTokens:     int(aws.ToInt32(usage.InputTokens)),
				CompletionTokens: int(aws.ToInt32(usage.OutputTokens)),
				TotalTokens:      int(aws.ToInt32(usage.TotalTokens)),
				CachedTokens:     int(aws.ToInt32(usage.CacheReadInputTokens)),
			},
		}}

	default:
		return nil
	}
}

// SendMessage implements ai.Provider over the non-streaming Converse API.
func (p *BedrockProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}

	model := modelFor(request, p.defaultModel)
	input, err := requestToConverse(request, model)
	if err != nil {
		return nil, err
	}

	output, err := p.runtime.Converse(ctx, input)
	if err != nil {
		return nil, translateBedrockError(err)
	}

	return converseOutputToResponse(model, output)
}

func translateBedrockError(err error) error {
	var throttle *brtypes.ThrottlingException
	if errors.As(err, &throttle) {
		return aierr.APIResponse(429, throttle.ErrorMessage(), "throttled")
	}
	var validation *brtypes.ValidationException
	if errors.As(err, &validation) {
		return aierr.APIResponse(400, validation.ErrorMessage(), "validation")
	}
	var accessDenied *brtypes.AccessDeniedException
	if errors.As(err, &accessDenied) {
		return aierr.AuthMissingCredentials(err)
	}
	return aierr.TransportConnection(fmt.Errorf("bedrock: %w", err))
}
