package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all preflight configuration.
type Config struct {
	// Handler pipeline
	Controller ControllerConfig `yaml:"controller"`

	// Auxiliary agents, by name
	Agents map[string]AgentConfig `yaml:"agents" validate:"dive"`

	// Root directory files are read from
	Workspace string `yaml:"workspace"`

	// Tool usage store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ControllerConfig configures the handler pipeline.
type ControllerConfig struct {
	// Model names the auxiliary agent used by handlers that do not pick one.
	Model string `yaml:"model"`

	// Reflections bounds the number of auxiliary-agent requests per handler invocation.
	Reflections int `yaml:"reflections" validate:"min=1,max=10"`

	// Handlers in execution order. Empty means DefaultHandlers.
	Handlers []HandlerEntry `yaml:"handlers"`
}

// StoreConfig configures the tool usage store.
type StoreConfig struct {
	Path string `yaml:"path"` // empty disables the store
}

// DefaultHandlers is the pipeline used when none is configured.
var DefaultHandlers = []string{"file-adder"}

// DefaultReflections is the default bound on auxiliary-agent requests per session.
const DefaultReflections = 3

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Model:       "default",
			Reflections: DefaultReflections,
		},
		Agents: map[string]AgentConfig{
			"default": {
				Provider: ProviderOpenAI,
				Model:    "gpt-4o-mini",
				Timeout:  "60s",
				Reminder: ReminderSystem,
			},
		},
		Workspace: ".",
		Store: StoreConfig{
			Path: ".preflight/preflight.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	openAIKey := os.Getenv("OPENAI_API_KEY")
	openAIBase := os.Getenv("OPENAI_BASE_URL")
	geminiKey := os.Getenv("GEMINI_API_KEY")

	for name, agent := range c.Agents {
		switch agent.Provider {
		case ProviderOpenAI:
			if agent.APIKey == "" && openAIKey != "" {
				agent.APIKey = openAIKey
			}
			if agent.BaseURL == "" && openAIBase != "" {
				agent.BaseURL = openAIBase
			}
		case ProviderGemini:
			if agent.APIKey == "" && geminiKey != "" {
				agent.APIKey = geminiKey
			}
		}
		c.Agents[name] = agent
	}

	if model := os.Getenv("PREFLIGHT_MODEL"); model != "" {
		c.Controller.Model = model
	}
	if path := os.Getenv("PREFLIGHT_DB"); path != "" {
		c.Store.Path = path
	}
}

// HandlerEntries returns the configured pipeline, or DefaultHandlers.
func (c *Config) HandlerEntries() []HandlerEntry {
	if len(c.Controller.Handlers) > 0 {
		return c.Controller.Handlers
	}
	entries := make([]HandlerEntry, 0, len(DefaultHandlers))
	for _, name := range DefaultHandlers {
		entries = append(entries, HandlerEntry{Name: name})
	}
	return entries
}

// AgentNames returns the configured agent names, sorted.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Controller.Model != "" {
		if _, ok := c.Agents[c.Controller.Model]; !ok {
			return fmt.Errorf("controller model %q is not a configured agent (have %v)", c.Controller.Model, c.AgentNames())
		}
	}

	return nil
}
