package anthropic

import "github.com/aigohq/aigo/providers/ai"

// chatRequestToStreamInput splits an ai.ChatRequest into the canonical
// ai.Context/ai.RequestOptions pair the StreamAdapter contract encodes from,
// mirroring the openai package's converter of the same name.
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
	opts.ResponseFormat = request.ResponseFormat
	return reqCtx, opts
}

// streamInputToChatRequest rehydrates ai.Context/ai.RequestOptions back into
// an ai.ChatRequest so EncodeRequest can drive requestToAnthropic's existing
// message/tool/system-prompt conversion instead of duplicating it against the
// canonical shape.
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

	return request
}
