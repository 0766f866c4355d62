package config

import "time"

// Supported auxiliary-agent providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ReminderMode selects where the trailing reminder goes in a request.
type ReminderMode string

const (
	// ReminderSystem appends the reminder as a new system turn.
	ReminderSystem ReminderMode = "sys"
	// ReminderUser concatenates the reminder onto the last user turn.
	// Some models ignore trailing system turns.
	ReminderUser ReminderMode = "user"
)

// AgentConfig configures one auxiliary agent.
type AgentConfig struct {
	Provider string       `yaml:"provider" validate:"required,oneof=openai gemini"`
	Model    string       `yaml:"model" validate:"required"`
	APIKey   string       `yaml:"api_key"`
	BaseURL  string       `yaml:"base_url" validate:"omitempty,url"`
	Timeout  string       `yaml:"timeout"`
	Reminder ReminderMode `yaml:"reminder" validate:"omitempty,oneof=sys user"`
}

// GetTimeout returns the request timeout as a duration.
func (a AgentConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetReminderMode returns the configured reminder placement, defaulting to ReminderSystem.
func (a AgentConfig) GetReminderMode() ReminderMode {
	if a.Reminder == "" {
		return ReminderSystem
	}
	return a.Reminder
}
