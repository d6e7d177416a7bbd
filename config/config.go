package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/mauriffe/mcpbot/errors"
)

// defaultSystemPrompt is used when no instruction file is configured or
// the configured one cannot be read.
const defaultSystemPrompt = `You are an exceptionally helpful and friendly chatbot.
Your purpose is to provide concise and accurate information as requested by the user.
If a question is outside of your capabilities, politely inform the user that you are unable to help with that request.`

// MCPServer describes an external MCP tool server started as a
// subprocess at boot.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config is the process configuration. Values are merged from the
// user-level file, the project-level file and a few environment
// variables, in that order of precedence (later wins).
type Config struct {
	LLMClient       string      `yaml:"llm"`
	Model           string      `yaml:"model"`
	ListenAddr      string      `yaml:"listen_addr"`
	InstructionPath string      `yaml:"instruction_path"`
	LogDir          string      `yaml:"log_dir"`
	Tools           []string    `yaml:"tools"`
	ConfirmTools    []string    `yaml:"confirm_tools"`
	MCPServers      []MCPServer `yaml:"mcp_servers"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		LLMClient:    "gemini",
		ListenAddr:   ":8080",
		Tools:        []string{"*"},
		ConfirmTools: []string{"roll_dice"},
	}

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".mcpbot", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".mcpbot", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a
	// simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_MODEL"); v != "" && cfg.Model == "" {
		cfg.Model = v
	}
	if v := os.Getenv("INSTRUCTION_PATH"); v != "" && cfg.InstructionPath == "" {
		cfg.InstructionPath = v
	}
	if v := os.Getenv("LOG_FOLDER_PATH"); v != "" && cfg.LogDir == "" {
		cfg.LogDir = v
	}
}

// SystemPrompt returns the instruction text for the model, falling back
// to the builtin prompt when no instruction file is available.
func (c *Config) SystemPrompt() string {
	if c.InstructionPath == "" {
		return defaultSystemPrompt
	}
	data, err := os.ReadFile(c.InstructionPath)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return defaultSystemPrompt
	}
	return string(data)
}

// ToolEnabled reports whether a tool name matches the enabled-tool
// patterns (doublestar globs, e.g. "roll_*").
func (c *Config) ToolEnabled(name string) bool {
	return matchesAny(name, c.Tools)
}

// RequiresConfirmation reports whether a tool name matches the
// confirmation patterns.
func (c *Config) RequiresConfirmation(name string) bool {
	return matchesAny(name, c.ConfirmTools)
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			// Invalid glob: fall back to literal comparison.
			if pattern == name {
				return true
			}
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
