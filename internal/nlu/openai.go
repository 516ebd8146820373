package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"furnivox/internal/command"
)

// OpenAI asks a chat completion model, through function calling, which
// tool to use. Any OpenAI compatible endpoint works.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewOpenAI(client openai.Client, model string, maxTokens int64) *OpenAI {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAI{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Decide(ctx context.Context, p Prompt) (command.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.Message),
		},
		Model: openai.ChatModel(o.model),
		Tools: toolParams(p.Tools),
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return command.Decision{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return command.Decision{}, errors.New("no choices in response")
	}

	choice := resp.Choices[0]
	msg := choice.Message
	log.Debug("Completion", "finish_reason", choice.FinishReason, "tool_calls", len(msg.ToolCalls))

	if len(msg.ToolCalls) == 0 {
		return command.TextDecision(strings.TrimSpace(msg.Content)), nil
	}

	call := msg.ToolCalls[0]
	args, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		log.Warn("Unparseable tool arguments", "tool", call.Function.Name, "raw", call.Function.Arguments, "err", err)
		reply := strings.TrimSpace(msg.Content)
		if reply == "" {
			reply = FallbackReply
		}
		return command.TextDecision(reply), nil
	}

	return command.ToolDecision(call.Function.Name, args), nil
}

func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func toolParams(tools []command.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}
	return out
}
