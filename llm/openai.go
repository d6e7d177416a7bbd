package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
)

// OpenAIClient drives turns against the OpenAI Chat Completion API.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the
// OPENAI_API_KEY environment variable; OPENAI_BASE_URL is honored for
// custom endpoints.
func NewOpenAIClient(ctx context.Context, modelName, systemPrompt string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName, systemPrompt: systemPrompt}, nil
}

// StartTurn begins one turn against the chat completion API.
func (o *OpenAIClient) StartTurn(ctx context.Context, history []session.Message, availableTools []tools.Tool) *TurnStream {
	stream := NewTurnStream()
	go o.runTurn(ctx, stream, history, availableTools)
	return stream
}

func (o *OpenAIClient) runTurn(ctx context.Context, stream *TurnStream, history []session.Message, availableTools []tools.Tool) {
	msgs := convertMessagesToOpenAIContent(history, o.systemPrompt)
	toolDefs := convertToolsToOpenAITools(availableTools)

	for {
		resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(o.model),
			Messages: msgs,
			Tools:    toolDefs,
		})
		if err != nil {
			stream.fail(ctx, &ModelError{Provider: "openai", Err: err})
			return
		}
		if len(resp.Choices) == 0 {
			stream.fail(ctx, &ModelError{Provider: "openai", Err: errors.New("empty response")})
			return
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			stream.push(ctx, Fragment{Kind: FragmentFinal, Text: choice.Content})
			stream.finish()
			return
		}

		if choice.Content != "" {
			if !stream.push(ctx, Fragment{Kind: FragmentThinking, Text: choice.Content}) {
				return
			}
		}

		msgs = append(msgs, choice.ToParam())
		for _, tc := range choice.ToolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				stream.fail(ctx, &ModelError{Provider: "openai", Err: errors.Wrapf(err, "unmarshalling tool arguments")})
				return
			}
			call := &ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args}
			if !stream.push(ctx, Fragment{Kind: FragmentToolCall, Call: call}) {
				return
			}
			result, ok := stream.awaitResult(ctx)
			if !ok {
				return
			}
			msgs = append(msgs, openai.ToolMessage(result, tc.ID))
		}
	}
}

// convertMessagesToOpenAIContent converts history entries to OpenAI chat
// messages, with the system prompt leading the conversation.
func convertMessagesToOpenAIContent(messages []session.Message, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		case session.RoleTool:
			out = append(out, openai.UserMessage("Tool result: "+msg.Content))
		case session.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// convertToolsToOpenAITools converts our Tool schemas to the OpenAI
// function tool format.
func convertToolsToOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  openai.FunctionParameters(t.Schema().JSONMap()),
		}))
	}
	return out
}
