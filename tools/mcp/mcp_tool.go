// Package mcp attaches external MCP tool servers to the registry. Each
// configured server runs as a subprocess speaking MCP over stdio; its
// discovered tools satisfy the tools.Tool interface alongside the
// builtins.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/tools"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewClient starts the server subprocess, connects over stdio and
// discovers its tools.
func NewClient(ctx context.Context, name, command string, args []string, logger *slog.Logger) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "mcpbot", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	c := &Client{
		name:   name,
		cmd:    cmd,
		conn:   conn,
		tools:  make(map[string]*Tool),
		logger: logger,
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			c.tools[t.Name] = &Tool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				schema:      convertSchema(t.InputSchema),
				client:      c,
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	logger.Info("mcp server connected", "server", name, "tools", len(c.tools))
	return c, nil
}

// Tools returns the discovered tools in name order.
func (c *Client) Tools() []tools.Tool {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]tools.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, c.tools[name])
	}
	return out
}

// Stop terminates the server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.logger.Info("terminating mcp server", "server", c.name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// Tool is one tool exported by an external MCP server.
type Tool struct {
	serverName  string
	toolName    string
	description string
	schema      *tools.Schema
	client      *Client
}

// Name returns the tool's short name. Server-qualified names trip up
// some model backends, so collisions across servers are the operator's
// problem.
func (t *Tool) Name() string { return t.toolName }

func (t *Tool) Description() string { return t.description }

func (t *Tool) Schema() *tools.Schema { return t.schema }

// Execute forwards the call to the server and concatenates its text
// content blocks.
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on server '%s'", t.toolName, t.serverName)
	}

	out := ""
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", t.toolName, out)
	}
	return out, nil
}

// convertSchema maps the server's declared input schema onto the
// registry's schema subset. Anything it cannot express degrades to a
// permissive object.
func convertSchema(in *jsonschema.Schema) *tools.Schema {
	if in == nil {
		return tools.ObjectSchema(nil)
	}
	out := &tools.Schema{
		Type:        in.Type,
		Description: in.Description,
		Required:    in.Required,
	}
	if out.Type == "" {
		out.Type = "object"
	}
	if len(in.Properties) > 0 {
		out.Properties = make(map[string]*tools.Schema, len(in.Properties))
		for name, prop := range in.Properties {
			out.Properties[name] = convertSchema(prop)
		}
	}
	if in.Items != nil {
		out.Items = convertSchema(in.Items)
	}
	return out
}
