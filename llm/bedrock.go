package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
)

// BedrockClient drives turns against Anthropic models on AWS Bedrock
// using the raw InvokeModel API.
type BedrockClient struct {
	client       *bedrockruntime.Client
	modelID      string
	systemPrompt string
}

// NewBedrockClient creates a new BedrockClient. It requires AWS
// credentials to be configured in the environment.
func NewBedrockClient(ctx context.Context, modelID, systemPrompt string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	return &BedrockClient{
		client:       bedrockruntime.NewFromConfig(cfg),
		modelID:      modelID,
		systemPrompt: systemPrompt,
	}, nil
}

// StartTurn begins one turn against Bedrock.
func (b *BedrockClient) StartTurn(ctx context.Context, history []session.Message, availableTools []tools.Tool) *TurnStream {
	stream := NewTurnStream()
	go b.runTurn(ctx, stream, history, availableTools)
	return stream
}

func (b *BedrockClient) runTurn(ctx context.Context, stream *TurnStream, history []session.Message, availableTools []tools.Tool) {
	msgs := convertMessagesToBedrockFormat(history)

	for {
		body, err := b.buildRequest(msgs, availableTools)
		if err != nil {
			stream.fail(ctx, &ModelError{Provider: "bedrock", Err: err})
			return
		}

		resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(b.modelID),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			stream.fail(ctx, &ModelError{Provider: "bedrock", Err: err})
			return
		}

		text, toolUses, err := parseBedrockResponse(resp.Body)
		if err != nil {
			stream.fail(ctx, &ModelError{Provider: "bedrock", Err: err})
			return
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

		var assistantContent []map[string]interface{}
		if text != "" {
			assistantContent = append(assistantContent, map[string]interface{}{
				"type": "text", "text": text,
			})
		}
		for _, tu := range toolUses {
			assistantContent = append(assistantContent, map[string]interface{}{
				"type": "tool_use", "id": tu.ID, "name": tu.Name, "input": tu.Args,
			})
		}
		msgs = append(msgs, map[string]interface{}{
			"role": "assistant", "content": assistantContent,
		})

		for _, tu := range toolUses {
			call := tu
			if !stream.push(ctx, Fragment{Kind: FragmentToolCall, Call: &call}) {
				return
			}
			result, ok := stream.awaitResult(ctx)
			if !ok {
				return
			}
			msgs = append(msgs, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{{
					"type":        "tool_result",
					"tool_use_id": tu.ID,
					"content":     result,
				}},
			})
		}
	}
}

func (b *BedrockClient) buildRequest(msgs []map[string]interface{}, availableTools []tools.Tool) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          msgs,
	}
	if b.systemPrompt != "" {
		request["system"] = b.systemPrompt
	}
	if len(availableTools) > 0 {
		var defs []map[string]interface{}
		for _, t := range availableTools {
			defs = append(defs, map[string]interface{}{
				"name":         t.Name(),
				"description":  t.Description(),
				"input_schema": t.Schema().JSONMap(),
			})
		}
		request["tools"] = defs
	}
	return json.Marshal(request)
}

func convertMessagesToBedrockFormat(messages []session.Message) []map[string]interface{} {
	var out []map[string]interface{}
	for _, msg := range messages {
		role := "user"
		text := msg.Content
		switch msg.Role {
		case session.RoleAssistant:
			role = "assistant"
		case session.RoleTool:
			text = "Tool result: " + text
		case session.RoleSystem:
			continue
		}
		out = append(out, map[string]interface{}{
			"role": role,
			"content": []map[string]interface{}{{
				"type": "text", "text": text,
			}},
		})
	}
	return out
}

func parseBedrockResponse(body []byte) (string, []ToolCall, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if errMsg, ok := response["error"]; ok {
		return "", nil, errors.New("Bedrock API error: %v", errMsg)
	}

	contentArray, ok := response["content"].([]interface{})
	if !ok {
		return "", nil, nil
	}

	var text string
	var calls []ToolCall
	for i, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch itemMap["type"] {
		case "text":
			if t, ok := itemMap["text"].(string); ok {
				text += t
			}
		case "tool_use":
			name, _ := itemMap["name"].(string)
			input, _ := itemMap["input"].(map[string]interface{})
			id, _ := itemMap["id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, name)
			}
			if name != "" {
				calls = append(calls, ToolCall{ID: id, Name: name, Args: input})
			}
		}
	}
	return text, calls, nil
}
