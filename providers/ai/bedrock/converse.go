package bedrock

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aigohq/aigo/providers/ai"
)

func modelFor(request ai.ChatRequest, fallback string) string {
	if request.Model != "" {
		return request.Model
	}
	return fallback
}

func requestToConverse(request ai.ChatRequest, model string) (*bedrockruntime.ConverseInput, error) {
	messages, err := encodeMessages(request.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if request.SystemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: request.SystemPrompt},
		}
	}
	if toolConfig := encodeToolConfig(request.Tools, request.ToolChoice); toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	if request.GenerationConfig != nil {
		cfg := &brtypes.InferenceConfiguration{}
		if request.GenerationConfig.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(request.GenerationConfig.MaxTokens))
		}
		if request.GenerationConfig.Temperature != 0 {
			cfg.Temperature = aws.Float32(request.GenerationConfig.Temperature)
		}
		input.InferenceConfig = cfg
	}
	return input, nil
}

func requestToConverseStream(request ai.ChatRequest, model string) (*bedrockruntime.ConverseStreamInput, error) {
	converse, err := requestToConverse(request, model)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         converse.ModelId,
		Messages:        converse.Messages,
		System:          converse.System,
		ToolConfig:      converse.ToolConfig,
		InferenceConfig: converse.InferenceConfig,
	}, nil
}

func encodeMessages(messages []ai.Message) ([]brtypes.Message, error) {
	conversation := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ai.RoleUser:
			blocks, err := userContentBlocks(m)
			if err != nil {
				return nil, err
			}
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks})
		case ai.RoleAssistant:
			blocks := assistantContentBlocks(m)
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
		case ai.RoleTool:
			// Bedrock correlates tool results to a prior tool_use from within
			// a *user* turn, unlike OpenAI's dedicated tool role.
			block := &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
			}}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{block},
			})
		}
	}
	return conversation, nil
}

func userContentBlocks(m ai.Message) ([]brtypes.ContentBlock, error) {
	if m.Content == "" {
		return nil, nil
	}
	return []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}}, nil
}

func assistantContentBlocks(m ai.Message) []brtypes.ContentBlock {
	var blocks []brtypes.ContentBlock
	if m.Content != "" {
		blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
			ToolUseId: aws.String(tc.ID),
			Name:      aws.String(tc.Function.Name),
			Input:     toDocument(json.RawMessage(tc.Function.Arguments)),
		}})
	}
	return blocks
}

func encodeToolConfig(tools []ai.ToolDefinition, choice *ai.ToolChoice) *brtypes.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	toolList := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		schemaJSON, _ := json.Marshal(t.Parameters)
		spec := brtypes.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(schemaJSON)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	if choice == nil {
		return cfg
	}
	switch {
	case choice.ToolChoiceForced != "":
		cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(choice.ToolChoiceForced)}}
	case len(choice.RequiredTools) == 1:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(choice.RequiredTools[0].Name)}}
	case choice.AtLeastOneRequired || len(choice.RequiredTools) > 1:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	}
	return cfg
}

func toDocument(raw json.RawMessage) document.Interface {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = map[string]any{"type": "object"}
	}
	return document.NewLazyDocument(decoded)
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return json.RawMessage("{}")
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}

func converseOutputToResponse(modelID string, output *bedrockruntime.ConverseOutput) (*ai.ChatResponse, error) {
	if output == nil {
		return nil, fmt.Errorf("bedrock: nil ConverseOutput")
	}
	response := &ai.ChatResponse{Model: modelID, Object: "chat.completion"}

	msgOutput, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected output variant %T", output.Output)
	}
	for _, block := range msgOutput.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			response.Content += v.Value
		case *brtypes.ContentBlockMemberToolUse:
			name := ""
			if v.Value.Name != nil {
				name = *v.Value.Name
			}
			id := ""
			if v.Value.ToolUseId != nil {
				id = *v.Value.ToolUseId
			}
			response.ToolCalls = append(response.ToolCalls, ai.ToolCall{
				ID:   id,
				Type: "function",
				Function: ai.ToolCallFunction{
					Name:      name,
					Arguments: string(decodeDocument(v.Value.Input)),
				},
			})
		}
	}

	response.FinishReason = normalizeStopReason(output.StopReason)
	if usage := output.Usage; usage != nil {
		response.Usage = &ai.Usage{
			PromptTokens:     int(aws.ToInt32(usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(usage.TotalTokens)),
			CachedTokens:     int(aws.ToInt32(usage.CacheReadInputTokens)),
		}
	}
	return response, nil
}

func normalizeStopReason(reason brtypes.StopReason) string {
	switch reason {
	case brtypes.StopReasonEndTurn, brtypes.StopReasonStopSequence:
		return "stop"
	case brtypes.StopReasonMaxTokens:
		return "length"
	case brtypes.StopReasonToolUse:
		return "tool_calls"
	case brtypes.StopReasonContentFiltered, brtypes.StopReasonGuardrailIntervened:
		return "content_filter"
	default:
		return "stop"
	}
}
