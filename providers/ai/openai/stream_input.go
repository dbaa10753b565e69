package openai

import "github.com/aigohq/aigo/providers/ai"

// chatRequestToStreamInput splits an ai.ChatRequest into the canonical
// ai.Context/ai.RequestOptions pair the StreamAdapter contract encodes from,
// pulling the system prompt into a leading system Message the way
// ai.Context's ordered-history shape expects.
func chatRequestToStreamInput(request ai.ChatRequest) (ai.Context, ai.RequestOptions) {
	reqCtx := ai.Context{Tools: request.Tools}
	if request.SystemPrompt != "" {
		reqCtx.Messages = append(reqCtx.Messages, ai.Message{Role: ai.RoleSystem, Content: request.SystemPrompt})
	}
	reqCtx.Messages = append(reqCtx.Messages, request.Messages...)

	opts := ai.RequestOptions{Model: request.Model, Stream: true}
	if cfg := request.GenerationConfig; cfg != nil {
		if cfg.Temperature > 0 {
			t := cfg.Temperature
			opts.Temperature = &t
		}
		if cfg.TopP > 0 {
			p := cfg.TopP
			opts.TopP = &p
		}
		if cfg.MaxOutputTokens > 0 {
			opts.MaxTokens = cfg.MaxOutputTokens
		} else if cfg.MaxTokens > 0 {
			opts.MaxTokens = cfg.MaxTokens
		}
	}
	if tc := request.ToolChoice; tc != nil {
		switch {
		case tc.ToolChoiceForced == "none":
			opts.ToolChoice = ai.ToolChoiceNone
		case tc.ToolChoiceForced == "required" || tc.AtLeastOneRequired:
			opts.ToolChoice = ai.ToolChoiceRequired
		case len(tc.RequiredTools) == 1:
			opts.ToolChoice = ai.ToolChoiceByName
			opts.ToolChoiceName = tc.RequiredTools[0].Name
		default:
			opts.ToolChoice = ai.ToolChoiceAuto
		}
	}
	opts.ResponseFormat = request.ResponseFormat
	return reqCtx, opts
}

// streamInputToChatRequest rehydrates ai.Context/ai.RequestOptions back into
// an ai.ChatRequest so EncodeRequest can drive requestToChatCompletion's
// existing message/tool/response-format conversion instead of duplicating
// it against the canonical shape.
func streamInputToChatRequest(ctx ai.Context, opts ai.RequestOptions) ai.ChatRequest {
	request := ai.ChatRequest{
		Model:          opts.Model,
		Tools:          ctx.Tools,
		ResponseFormat: opts.ResponseFormat,
	}

	for _, msg := range ctx.Messages {
		if msg.Role == ai.RoleSystem && request.SystemPrompt == "" {
			request.SystemPrompt = msg.Content
			continue
		}
		request.Messages = append(request.Messages, msg)
	}

	if opts.Temperature != nil || opts.TopP != nil || opts.MaxTokens > 0 {
		cfg := &ai.GenerationConfig{}
		if opts.Temperature != nil {
			cfg.Temperature = *opts.Temperature
		}
		if opts.TopP != nil {
			cfg.TopP = *opts.TopP
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = opts.MaxTokens
		}
		request.GenerationConfig = cfg
	}

	switch opts.ToolChoice {
	case ai.ToolChoiceNone:
		request.ToolChoice = &ai.ToolChoice{ToolChoiceForced: "none"}
	case ai.ToolChoiceRequired:
		request.ToolChoice = &ai.ToolChoice{AtLeastOneRequired: true}
	case ai.ToolChoiceByName:
		if opts.ToolChoiceName != "" {
			request.ToolChoice = &ai.ToolChoice{RequiredTools: findToolByName(ctx.Tools, opts.ToolChoiceName)}
		}
	}

	return request
}

func findToolByName(tools []ai.ToolDefinition, name string) []*ai.ToolDefinition {
	for i := range tools {
		if tools[i].Name == name {
			return []*ai.ToolDefinition{&tools[i]}
		}
	}
	return nil
}
