package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mauriffe/mcpbot/agent"
	"github.com/mauriffe/mcpbot/config"
	"github.com/mauriffe/mcpbot/console"
	"github.com/mauriffe/mcpbot/llm"
	"github.com/mauriffe/mcpbot/tools"
	"github.com/mauriffe/mcpbot/tools/mcp"
	"github.com/mauriffe/mcpbot/web"
)

func main() {
	consoleFlag := flag.Bool("console", false, "Run on stdin/stdout instead of the web server")
	addrFlag := flag.String("addr", "", "Listen address for the web server (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	logger, logClose, err := setupLogger(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %+v\n", err)
		os.Exit(1)
	}
	defer logClose()

	ctx := context.Background()

	registry, stopMCP, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assembling tool registry: %+v\n", err)
		os.Exit(1)
	}
	defer stopMCP()

	client, err := buildClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
		os.Exit(1)
	}

	if *consoleFlag {
		c := console.New(os.Stdin, os.Stdout, client, registry, logger)
		if err := c.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Console session failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	addr := cfg.ListenAddr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	srv := web.NewServer(addr, func(ch *web.Channel) web.SessionHandler {
		o := agent.New(ch, client, registry, logger)
		o.Greet()
		return o
	}, logger)

	fmt.Printf("mcpbot listening on http://localhost%s\n", addr)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Server stopped: %+v\n", err)
		os.Exit(1)
	}
}

// setupLogger writes structured logs to a dated file under logDir, or
// to stderr when no directory is configured.
func setupLogger(logDir string) (*slog.Logger, func(), error) {
	if logDir == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}, nil
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}
	name := fmt.Sprintf("mcpbot_%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { f.Close() }, nil
}

// buildRegistry registers the builtin tools allowed by the config plus
// every tool discovered from the configured MCP servers. The returned
// stop function kills the MCP subprocesses.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tools.Registry, func(), error) {
	registry := tools.NewRegistry()

	builtins := []tools.Tool{
		tools.NewRollDiceTool(),
		tools.NewAdditionTool(),
		tools.NewWeatherTool(),
	}
	for _, t := range builtins {
		if !cfg.ToolEnabled(t.Name()) {
			logger.Info("tool disabled by config", "tool", t.Name())
			continue
		}
		if err := registry.Register(t, cfg.RequiresConfirmation(t.Name())); err != nil {
			return nil, nil, err
		}
	}

	var clients []*mcp.Client
	stop := func() {
		for _, c := range clients {
			c.Stop()
		}
	}
	for _, server := range cfg.MCPServers {
		client, err := mcp.NewClient(ctx, server.Name, server.Command, server.Args, logger)
		if err != nil {
			stop()
			return nil, nil, err
		}
		clients = append(clients, client)
		for _, t := range client.Tools() {
			if !cfg.ToolEnabled(t.Name()) {
				continue
			}
			if err := registry.Register(t, cfg.RequiresConfirmation(t.Name())); err != nil {
				stop()
				return nil, nil, err
			}
		}
	}

	return registry, stop, nil
}

func buildClient(ctx context.Context, cfg *config.Config) (llm.ModelClient, error) {
	prompt := cfg.SystemPrompt()
	switch cfg.LLMClient {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.Model, prompt)
	case "anthropic":
		return llm.NewAnthropicClient(ctx, cfg.Model, prompt)
	case "openai":
		return llm.NewOpenAIClient(ctx, cfg.Model, prompt)
	case "bedrock":
		return llm.NewBedrockClient(ctx, cfg.Model, prompt)
	default:
		return &llm.MockModelClient{}, nil
	}
}
