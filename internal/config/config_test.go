package config

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "GEMINI_API_KEY", "PREFLIGHT_MODEL", "PREFLIGHT_DB"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preflight.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Controller.Reflections != 3 {
		t.Errorf("expected Reflections=3, got %d", cfg.Controller.Reflections)
	}
	if cfg.Controller.Model != "default" {
		t.Errorf("expected Model=default, got %s", cfg.Controller.Model)
	}
	if _, ok := cfg.Agents["default"]; !ok {
		t.Error("expected a default agent")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != "." {
		t.Errorf("expected default workspace, got %q", cfg.Workspace)
	}
}

func TestLoad_HandlerEntries(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
controller:
  model: fast
  handlers:
    - file-adder
    - name: mcp
      reflections: 2
      servers:
        - name: files
          protocol: stdio
          command: mcp-files
    - [not, valid]
    - advisor
agents:
  fast:
    provider: gemini
    model: gemini-2.5-flash
    reminder: user
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	entries := cfg.HandlerEntries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Name != "file-adder" || entries[0].Invalid != nil {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Name != "mcp" {
		t.Errorf("expected mcp entry, got %q", entries[1].Name)
	}
	if entries[1].Options["reflections"] != 2 {
		t.Errorf("expected reflections=2, got %v", entries[1].Options["reflections"])
	}
	if _, hasName := entries[1].Options["name"]; hasName {
		t.Error("name should not be kept in options")
	}
	if entries[2].Invalid == nil {
		t.Error("expected sequence entry to be marked invalid")
	}
	if entries[3].Name != "advisor" {
		t.Errorf("expected advisor entry, got %q", entries[3].Name)
	}

	fast := cfg.Agents["fast"]
	if fast.GetReminderMode() != ReminderUser {
		t.Errorf("expected reminder=user, got %s", fast.GetReminderMode())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestHandlerEntries_Default(t *testing.T) {
	cfg := DefaultConfig()
	entries := cfg.HandlerEntries()
	if len(entries) != 1 || entries[0].Name != "file-adder" {
		t.Errorf("expected default [file-adder], got %+v", entries)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "env-openai-key")
	t.Setenv("PREFLIGHT_DB", "/tmp/preflight-test.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Agents["default"].APIKey != "env-openai-key" {
		t.Errorf("expected APIKey=env-openai-key, got %s", cfg.Agents["default"].APIKey)
	}
	if cfg.Store.Path != "/tmp/preflight-test.db" {
		t.Errorf("expected store path override, got %s", cfg.Store.Path)
	}
}

func TestConfig_EnvDoesNotOverrideExplicitKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg := DefaultConfig()
	agent := cfg.Agents["default"]
	agent.APIKey = "file-key"
	cfg.Agents["default"] = agent
	cfg.applyEnvOverrides()

	if cfg.Agents["default"].APIKey != "file-key" {
		t.Errorf("explicit key was overridden: %s", cfg.Agents["default"].APIKey)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controller.Model = "missing"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown controller model")
	}

	cfg = DefaultConfig()
	cfg.Agents["bad"] = AgentConfig{Provider: "llama", Model: "x"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}

	cfg = DefaultConfig()
	cfg.Controller.Reflections = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero reflections")
	}

	cfg = DefaultConfig()
	agent := cfg.Agents["default"]
	agent.Reminder = "both"
	cfg.Agents["default"] = agent
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown reminder mode")
	}
}

func TestAgentConfig_GetTimeout(t *testing.T) {
	if got := (AgentConfig{Timeout: "5s"}).GetTimeout().Seconds(); got != 5 {
		t.Errorf("expected 5s, got %v", got)
	}
	if got := (AgentConfig{Timeout: "soon"}).GetTimeout().Seconds(); got != 60 {
		t.Errorf("expected fallback 60s, got %v", got)
	}
}
