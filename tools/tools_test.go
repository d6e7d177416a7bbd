package tools

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/mauriffe/mcpbot/errors"
)

type stubTool struct {
	name string
	out  string
	err  error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() *Schema     { return ObjectSchema(nil) }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.out, s.err
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "alpha"}, false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&stubTool{name: "beta"}, true); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	d, ok := r.Lookup("beta")
	if !ok {
		t.Fatal("expected to find 'beta'")
	}
	if !d.RequiresConfirmation {
		t.Error("expected 'beta' to require confirmation")
	}
	if _, ok := r.Lookup("gamma"); ok {
		t.Error("did not expect to find 'gamma'")
	}

	active := r.Active()
	if len(active) != 2 || active[0].Name() != "alpha" || active[1].Name() != "beta" {
		t.Errorf("Active() should preserve registration order, got %v", active)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "alpha"}, false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&stubTool{name: "alpha"}, true); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryExecuteWrapsFailures(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "broken", err: errors.New("boom")}, false); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := r.Execute(context.Background(), "broken", nil)
	var te *ToolError
	if !stderrors.As(err, &te) {
		t.Fatalf("expected *ToolError, got %T: %v", err, err)
	}
	if te.Tool != "broken" {
		t.Errorf("ToolError.Tool = %q, want 'broken'", te.Tool)
	}

	_, err = r.Execute(context.Background(), "missing", nil)
	if !stderrors.As(err, &te) {
		t.Fatalf("expected *ToolError for unknown tool, got %T: %v", err, err)
	}
}

func TestDiceToolRollsDeterministically(t *testing.T) {
	d := NewRollDiceTool()
	d.roll = func() int { return 4 }

	out, err := d.Execute(context.Background(), map[string]interface{}{"n_dice": float64(3)})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := "Rolled 3 dice: [4 4 4]. Total: 12"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestDiceToolArgumentValidation(t *testing.T) {
	d := NewRollDiceTool()
	cases := []map[string]interface{}{
		nil,
		{"n_dice": "three"},
		{"n_dice": float64(0)},
		{"n_dice": float64(maxDice + 1)},
	}
	for _, args := range cases {
		if _, err := d.Execute(context.Background(), args); err == nil {
			t.Errorf("expected error for args %v", args)
		}
	}
}

func TestDiceConfirmPromptMentionsCount(t *testing.T) {
	d := NewRollDiceTool()
	prompt := d.ConfirmPrompt(map[string]interface{}{"n_dice": float64(2)})
	if !strings.Contains(prompt, "2 dice") {
		t.Errorf("prompt should mention the dice count, got %q", prompt)
	}
	if !strings.Contains(strings.ToLower(prompt), "cancel") {
		t.Errorf("prompt should explain how to cancel, got %q", prompt)
	}
}

func TestAdditionTool(t *testing.T) {
	a := NewAdditionTool()
	out, err := a.Execute(context.Background(), map[string]interface{}{"a": float64(2.5), "b": float64(4)})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "The sum of 2.5 and 4 is 6.5" {
		t.Errorf("unexpected output: %q", out)
	}

	if _, err := a.Execute(context.Background(), map[string]interface{}{"a": float64(1)}); err == nil {
		t.Error("expected error for missing 'b'")
	}
}

func TestDescriptorDefaultConfirmPrompt(t *testing.T) {
	d := Descriptor{Tool: &stubTool{name: "alpha"}}
	prompt := d.ConfirmPrompt(map[string]interface{}{"x": 1})
	if !strings.Contains(prompt, "alpha") || !strings.Contains(prompt, "x=1") {
		t.Errorf("default prompt should name the tool and args, got %q", prompt)
	}
}

func TestSchemaJSONMap(t *testing.T) {
	s := ObjectSchema(map[string]*Schema{
		"cities": {Type: "array", Items: &Schema{Type: "string"}},
	}, "cities")

	m := s.JSONMap()
	if m["type"] != "object" {
		t.Errorf("type = %v, want object", m["type"])
	}
	props, ok := m["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties missing: %v", m)
	}
	cities, ok := props["cities"].(map[string]interface{})
	if !ok || cities["type"] != "array" {
		t.Errorf("unexpected cities schema: %v", props["cities"])
	}
}
