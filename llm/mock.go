package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
)

// MockTurn scripts one turn of the mock client: thinking fragments, then
// tool calls (each pausing for a result), then a final answer or error.
type MockTurn struct {
	Thinking []string
	Calls    []ToolCall
	Final    string
	Err      string
}

// MockModelClient plays back scripted turns. It is used by tests and as
// the fallback backend when no API key is configured.
type MockModelClient struct {
	Turns []MockTurn

	mu        sync.Mutex
	turnCount int
	results   [][]string // tool results provided per turn
	histories [][]session.Message
}

// StartTurn plays the next scripted turn.
func (m *MockModelClient) StartTurn(ctx context.Context, history []session.Message, availableTools []tools.Tool) *TurnStream {
	m.mu.Lock()
	idx := m.turnCount
	m.turnCount++
	m.results = append(m.results, nil)
	m.histories = append(m.histories, history)
	m.mu.Unlock()

	stream := NewTurnStream()
	go m.run(ctx, stream, idx, history)
	return stream
}

func (m *MockModelClient) run(ctx context.Context, stream *TurnStream, idx int, history []session.Message) {
	if idx >= len(m.Turns) {
		last := ""
		if len(history) > 0 {
			last = history[len(history)-1].Content
		}
		stream.push(ctx, Fragment{Kind: FragmentFinal, Text: fmt.Sprintf("mock answer to: %s", last)})
		stream.finish()
		return
	}

	turn := m.Turns[idx]
	for _, text := range turn.Thinking {
		if !stream.push(ctx, Fragment{Kind: FragmentThinking, Text: text}) {
			return
		}
	}
	for i := range turn.Calls {
		call := turn.Calls[i]
		if !stream.push(ctx, Fragment{Kind: FragmentToolCall, Call: &call}) {
			return
		}
		res, ok := stream.awaitResult(ctx)
		if !ok {
			return
		}
		m.mu.Lock()
		m.results[idx] = append(m.results[idx], res)
		m.mu.Unlock()
	}
	if turn.Err != "" {
		stream.fail(ctx, errors.New("%s", turn.Err))
		return
	}
	stream.push(ctx, Fragment{Kind: FragmentFinal, Text: turn.Final})
	stream.finish()
}

// Results returns the tool results fed back during a given turn.
func (m *MockModelClient) Results(turn int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn >= len(m.results) {
		return nil
	}
	out := make([]string, len(m.results[turn]))
	copy(out, m.results[turn])
	return out
}

// History returns the history snapshot the client received for a turn.
func (m *MockModelClient) History(turn int) []session.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn >= len(m.histories) {
		return nil
	}
	return m.histories[turn]
}

// TurnCount reports how many turns have been started.
func (m *MockModelClient) TurnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnCount
}
