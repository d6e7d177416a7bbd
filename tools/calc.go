package tools

import (
	"context"
	"fmt"

	"github.com/mauriffe/mcpbot/errors"
)

// AdditionTool adds two numbers.
type AdditionTool struct{}

// NewAdditionTool creates the addition tool.
func NewAdditionTool() *AdditionTool { return &AdditionTool{} }

func (t *AdditionTool) Name() string { return "addition" }

func (t *AdditionTool) Description() string {
	return "Adds two numbers together. Args: a (number), b (number)."
}

func (t *AdditionTool) Schema() *Schema {
	return ObjectSchema(map[string]*Schema{
		"a": {Type: "number", Description: "First number to add"},
		"b": {Type: "number", Description: "Second number to add"},
	}, "a", "b")
}

func (t *AdditionTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	a, err := numberArg(args, "a")
	if err != nil {
		return "", err
	}
	b, err := numberArg(args, "b")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("The sum of %v and %v is %v", a, b, a+b), nil
}

func numberArg(args map[string]interface{}, key string) (float64, error) {
	raw, ok := args[key]
	if !ok {
		return 0, errors.New("missing '%s' argument", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, errors.New("invalid '%s' argument: %v", key, raw)
	}
}
