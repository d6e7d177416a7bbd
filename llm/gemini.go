package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
)

// GeminiClient drives turns against the Google Gemini API.
type GeminiClient struct {
	client       *genai.Client
	modelName    string
	systemPrompt string
}

// NewGeminiClient creates a new GeminiClient. It requires the
// GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName, systemPrompt string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiClient{
		client:       client,
		modelName:    modelName,
		systemPrompt: systemPrompt,
	}, nil
}

// StartTurn begins one turn. The returned stream pauses at each function
// call until the orchestrator provides a result, which is sent back to
// the model as a function response.
func (g *GeminiClient) StartTurn(ctx context.Context, history []session.Message, availableTools []tools.Tool) *TurnStream {
	stream := NewTurnStream()
	go g.runTurn(ctx, stream, history, availableTools)
	return stream
}

func (g *GeminiClient) runTurn(ctx context.Context, stream *TurnStream, history []session.Message, availableTools []tools.Tool) {
	contents := convertMessagesToGeminiContent(history)
	if len(contents) == 0 {
		stream.fail(ctx, &ModelError{Provider: "gemini", Err: errors.New("empty history")})
		return
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)
	model.Tools = convertToolsToGeminiTools(availableTools)
	if g.systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.systemPrompt)}}
	}

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	parts := contents[len(contents)-1].Parts

	for {
		resp, err := chat.SendMessage(ctx, parts...)
		if err != nil {
			stream.fail(ctx, &ModelError{Provider: "gemini", Err: err})
			return
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			stream.fail(ctx, &ModelError{Provider: "gemini", Err: errors.New("empty response")})
			return
		}

		var text string
		var calls []genai.FunctionCall
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text += string(v)
			case genai.FunctionCall:
				calls = append(calls, v)
			}
		}

		if len(calls) == 0 {
			stream.push(ctx, Fragment{Kind: FragmentFinal, Text: text})
			stream.finish()
			return
		}

		// Text accompanying a function call is intermediate reasoning.
		if text != "" {
			if !stream.push(ctx, Fragment{Kind: FragmentThinking, Text: text}) {
				return
			}
		}

		parts = parts[:0]
		for i, fc := range calls {
			call := &ToolCall{
				ID:   fmt.Sprintf("gemini_call_%d", i),
				Name: fc.Name,
				Args: fc.Args,
			}
			if !stream.push(ctx, Fragment{Kind: FragmentToolCall, Call: call}) {
				return
			}
			result, ok := stream.awaitResult(ctx)
			if !ok {
				return
			}
			parts = append(parts, genai.FunctionResponse{
				Name:     fc.Name,
				Response: map[string]interface{}{"result": result},
			})
		}
	}
}

// convertMessagesToGeminiContent converts history entries to Gemini's
// content format. Tool results from earlier turns are folded into user
// content; the system prompt travels separately as a system instruction.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user"
		text := msg.Content
		switch msg.Role {
		case session.RoleAssistant:
			role = "model"
		case session.RoleTool:
			text = "Tool result: " + text
		case session.RoleSystem:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(text)},
		})
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool schemas to Gemini's
// FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  convertSchemaToGemini(t.Schema()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertSchemaToGemini(s *tools.Schema) *genai.Schema {
	if s == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = convertSchemaToGemini(prop)
		}
	}
	if s.Items != nil {
		out.Items = convertSchemaToGemini(s.Items)
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
