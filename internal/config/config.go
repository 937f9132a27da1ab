// Package config handles foreman configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ShutdownTimeout bounds graceful HTTP shutdown after a stop signal.
const ShutdownTimeout = 15 * time.Second

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./foreman.yaml, ~/.config/foreman/config.yaml, /etc/foreman/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"foreman.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "foreman", "config.yaml"))
	}

	paths = append(paths, "/etc/foreman/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all foreman configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Providers ProvidersConfig `yaml:"providers"`
	Engine    EngineConfig    `yaml:"engine"`
	Tools     ToolsConfig     `yaml:"tools"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProvidersConfig holds per-provider credentials and endpoints.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
}

// OpenAIConfig defines OpenAI API settings. BaseURL may point at any
// chat-completions-compatible endpoint (proxies, local inference servers).
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// EngineConfig tunes the execution loop heuristics. These are heuristics
// calibrated against observed model behavior, not load-bearing constants,
// so they are configurable.
type EngineConfig struct {
	// GoalSentinel is the prefix a model reply must carry to declare the
	// session goal met. Default "GOAL_COMPLETE".
	GoalSentinel string `yaml:"goal_sentinel"`
	// AutonomyCap bounds consecutive autonomous continuations, the model
	// turns the engine grants without new user input because the plan still
	// has open steps. Default 3.
	AutonomyCap int `yaml:"autonomy_cap"`
	// PlanningTool is the name of the plan-management tool. Calls to any
	// other tool count as work; a turn that calls only this tool triggers
	// the corrective re-prompt. Default "update_plan".
	PlanningTool string `yaml:"planning_tool"`
	// MaxTokens is the per-invocation output token ceiling passed to
	// providers. Default 4096.
	MaxTokens int `yaml:"max_tokens"`
	// MemoryLimit is how many memories (by importance) are rendered into
	// the system prompt. Default 10.
	MemoryLimit int `yaml:"memory_limit"`
}

// ToolsConfig defines how builtin tools reach their backing endpoints.
type ToolsConfig struct {
	// BaseURL is the root of the tool back-end HTTP API. Usually foreman's
	// own listen address, since builtin tools are served by internal/api.
	BaseURL string `yaml:"base_url"`
	// Token is the bearer token presented to tool endpoints.
	Token string `yaml:"token"`
}

// WorkspaceConfig defines the file-tool sandbox.
type WorkspaceConfig struct {
	// Path is the root directory for file operations. All file tool paths
	// are confined to this directory. If empty, file tools are disabled.
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: ".",
		Engine: EngineConfig{
			GoalSentinel: "GOAL_COMPLETE",
			AutonomyCap:  3,
			PlanningTool: "update_plan",
			MaxTokens:    4096,
			MemoryLimit:  10,
		},
	}
}
