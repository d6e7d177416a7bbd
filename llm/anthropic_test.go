package llm

import (
	"context"
	"testing"

	"github.com/mauriffe/mcpbot/tools"
)

type schemaTool struct{}

func (schemaTool) Name() string        { return "roll_dice" }
func (schemaTool) Description() string { return "rolls dice" }

func (schemaTool) Schema() *tools.Schema {
	return tools.ObjectSchema(map[string]*tools.Schema{
		"n_dice": {Type: "integer", Description: "Number of dice"},
	}, "n_dice")
}

func (schemaTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "", nil
}

func TestAnthropicToolConversionCarriesRequired(t *testing.T) {
	params := convertToolsToAnthropicTools([]tools.Tool{schemaTool{}})
	if len(params) != 1 {
		t.Fatalf("got %d tool params", len(params))
	}
	p := params[0]
	if p.Name != "roll_dice" {
		t.Fatalf("name = %q", p.Name)
	}
	if len(p.InputSchema.Required) != 1 || p.InputSchema.Required[0] != "n_dice" {
		t.Fatalf("required = %v, want [n_dice]", p.InputSchema.Required)
	}
	props, ok := p.InputSchema.Properties.(map[string]interface{})
	if !ok {
		t.Fatalf("properties has type %T", p.InputSchema.Properties)
	}
	if _, ok := props["n_dice"]; !ok {
		t.Fatalf("properties = %v, missing n_dice", props)
	}
}
