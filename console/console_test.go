package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mauriffe/mcpbot/llm"
	"github.com/mauriffe/mcpbot/tools"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type confirmTool struct{}

func (confirmTool) Name() string          { return "roll_dice" }
func (confirmTool) Description() string   { return "roll" }
func (confirmTool) Schema() *tools.Schema { return tools.ObjectSchema(nil) }
func (confirmTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "Rolled 2 dice: [3 4]. Total: 7", nil
}

func runConsole(t *testing.T, input string, client llm.ModelClient, reg *tools.Registry) string {
	t.Helper()
	if reg == nil {
		reg = tools.NewRegistry()
	}
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(strings.NewReader(input), out, client, reg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestPlainExchange(t *testing.T) {
	mock := &llm.MockModelClient{Turns: []llm.MockTurn{{Final: "hello from the bot"}}}
	out := runConsole(t, "hi\n/quit\n", mock, nil)

	if !strings.Contains(out, "Ready to chat") {
		t.Fatalf("missing greeting in output:\n%s", out)
	}
	if !strings.Contains(out, "Bot: hello from the bot") {
		t.Fatalf("missing answer in output:\n%s", out)
	}
}

func TestConfirmFlow(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(confirmTool{}, true)
	mock := &llm.MockModelClient{Turns: []llm.MockTurn{{
		Calls: []llm.ToolCall{{ID: "c1", Name: "roll_dice"}},
		Final: "You got 7.",
	}}}
	out := runConsole(t, "roll two dice\nyes\n/quit\n", mock, reg)

	if !strings.Contains(out, "Confirm:") {
		t.Fatalf("missing confirmation prompt:\n%s", out)
	}
	if !strings.Contains(out, "[tool] roll_dice:") {
		t.Fatalf("missing tool log:\n%s", out)
	}
	if !strings.Contains(out, "Bot: You got 7.") {
		t.Fatalf("missing final answer:\n%s", out)
	}
	if res := mock.Results(0); len(res) != 1 || !strings.Contains(res[0], "Total: 7") {
		t.Fatalf("driver got %v", res)
	}
}

func TestResetCommand(t *testing.T) {
	mock := &llm.MockModelClient{Turns: []llm.MockTurn{{Final: "first answer"}}}
	out := runConsole(t, "hi\n/reset\n/quit\n", mock, nil)

	if !strings.Contains(out, "Chat history cleared") {
		t.Fatalf("missing reset confirmation:\n%s", out)
	}
}

func TestEOFEndsSession(t *testing.T) {
	mock := &llm.MockModelClient{}
	out := runConsole(t, "", mock, nil)
	if !strings.Contains(out, "You: ") {
		t.Fatalf("prompt never printed:\n%s", out)
	}
}
