package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
)

// AnthropicClient drives turns against the Anthropic API.
type AnthropicClient struct {
	client       *anthropic.Client
	model        string
	systemPrompt string
}

// NewAnthropicClient creates a new AnthropicClient. It requires the
// ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient(ctx context.Context, modelName, systemPrompt string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client:       &client,
		model:        modelName,
		systemPrompt: systemPrompt,
	}, nil
}

// StartTurn begins one turn against the Messages API.
func (a *AnthropicClient) StartTurn(ctx context.Context, history []session.Message, availableTools []tools.Tool) *TurnStream {
	stream := NewTurnStream()
	go a.runTurn(ctx, stream, history, availableTools)
	return stream
}

func (a *AnthropicClient) runTurn(ctx context.Context, stream *TurnStream, history []session.Message, availableTools []tools.Tool) {
	msgs := convertMessagesToAnthropicMessages(history)
	toolParams := convertToolsToAnthropicTools(availableTools)

	for {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: 4096,
			Messages:  msgs,
		}
		if a.systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
		}
		params.Tools = make([]anthropic.ToolUnionParam, len(toolParams))
		for i := range toolParams {
			params.Tools[i] = anthropic.ToolUnionParam{OfTool: &toolParams[i]}
		}

		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			stream.fail(ctx, &ModelError{Provider: "anthropic", Err: err})
			return
		}

		var text string
		var toolUses []anthropic.ToolUseBlock
		for _, content := range resp.Content {
			switch c := content.AsAny().(type) {
			case anthropic.TextBlock:
				text += c.Text
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, c)
			}
		}

		if len(toolUses) == 0 {
			stream.push(ctx, Fragment{Kind: FragmentFinal, Text: text})
			stream.finish()
			return
		}

		if text != "" {
			if !stream.push(ctx, Fragment{Kind: FragmentThinking, Text: text}) {
				return
			}
		}

		// Replay the assistant's blocks into the running conversation,
		// then answer each tool_use with a tool_result.
		var assistantBlocks []anthropic.ContentBlockParamUnion
		if text != "" {
			assistantBlocks = append(assistantBlocks, anthropic.ContentBlockParamUnion{
				OfText: &anthropic.TextBlockParam{Text: text},
			})
		}
		for _, tu := range toolUses {
			assistantBlocks = append(assistantBlocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					Type:  "tool_use",
					ID:    tu.ID,
					Name:  tu.Name,
					Input: tu.Input,
				},
			})
		}
		msgs = append(msgs, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleAssistant,
			Content: assistantBlocks,
		})

		for _, tu := range toolUses {
			var args map[string]interface{}
			if err := json.Unmarshal(tu.Input, &args); err != nil {
				stream.fail(ctx, &ModelError{Provider: "anthropic", Err: errors.Wrapf(err, "unmarshalling tool input")})
				return
			}
			call := &ToolCall{ID: tu.ID, Name: tu.Name, Args: args}
			if !stream.push(ctx, Fragment{Kind: FragmentToolCall, Call: call}) {
				return
			}
			result, ok := stream.awaitResult(ctx)
			if !ok {
				return
			}
			msgs = append(msgs, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: tu.ID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: result},
						}},
					},
				}},
			})
		}
	}
}

// convertMessagesToAnthropicMessages converts history entries to
// Anthropic's message format. Earlier turns carry only text.
func convertMessagesToAnthropicMessages(messages []session.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				}},
			})
		case session.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock("Tool result: "+msg.Content),
			))
		case session.RoleSystem:
			// The system prompt is passed via params.System.
		default:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	return out
}

// convertToolsToAnthropicTools converts our Tool schemas to Anthropic's
// tool format.
func convertToolsToAnthropicTools(ts []tools.Tool) []anthropic.ToolParam {
	var out []anthropic.ToolParam
	for _, t := range ts {
		schema := t.Schema()
		props, _ := schema.JSONMap()["properties"].(map[string]interface{})
		var required []string
		if schema != nil {
			required = schema.Required
		}
		out = append(out, anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		})
	}
	return out
}
