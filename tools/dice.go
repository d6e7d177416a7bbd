package tools

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/mauriffe/mcpbot/errors"
)

const maxDice = 100

// RollDiceTool rolls six-sided dice. It is the one builtin that asks the
// operator for confirmation before running.
type RollDiceTool struct {
	// roll is swappable in tests; defaults to a uniform d6.
	roll func() int
}

// NewRollDiceTool creates the dice tool.
func NewRollDiceTool() *RollDiceTool {
	return &RollDiceTool{roll: func() int { return rand.IntN(6) + 1 }}
}

func (t *RollDiceTool) Name() string { return "roll_dice" }

func (t *RollDiceTool) Description() string {
	return "Throw dices and returns the roll. Args: n_dice (integer)."
}

func (t *RollDiceTool) Schema() *Schema {
	return ObjectSchema(map[string]*Schema{
		"n_dice": {Type: "integer", Description: "Number of 6-sided dice to roll"},
	}, "n_dice")
}

// ConfirmPrompt names the dice count so the operator knows exactly what
// they are approving.
func (t *RollDiceTool) ConfirmPrompt(args map[string]interface{}) string {
	n, err := diceCount(args)
	if err != nil {
		return "Do you want to roll the dice? (reply to confirm, or type 'cancel')"
	}
	return fmt.Sprintf("Do you want to roll %d dice? (reply to confirm, or type 'cancel')", n)
}

func (t *RollDiceTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	n, err := diceCount(args)
	if err != nil {
		return "", err
	}
	rolls := make([]int, n)
	total := 0
	for i := range rolls {
		rolls[i] = t.roll()
		total += rolls[i]
	}
	return fmt.Sprintf("Rolled %d dice: %v. Total: %d", n, rolls, total), nil
}

func diceCount(args map[string]interface{}) (int, error) {
	raw, ok := args["n_dice"]
	if !ok {
		return 0, errors.New("missing 'n_dice' argument")
	}
	var n int
	switch v := raw.(type) {
	case float64: // JSON numbers decode as float64
		n = int(v)
	case int:
		n = v
	default:
		return 0, errors.New("invalid 'n_dice' argument: %v", raw)
	}
	if n < 1 || n > maxDice {
		return 0, errors.New("'n_dice' must be between 1 and %d, got %d", maxDice, n)
	}
	return n, nil
}
