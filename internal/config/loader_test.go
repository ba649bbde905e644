package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1"
log:
  level: debug
  format: json
provider:
  type: openai
  base_url: https://api.example.com/v1
  api_key: sk-test
  model: gpt-4o
  timeout: 30s
engine:
  system_prompt: You are helpful.
  max_tokens: 2048
  turn_timeout: 10m
  history_window: 20
store:
  type: sqlite
  path: /tmp/loopgate.db
approval:
  gated_tools: [makePayment, deleteAccount]
  poll_interval: 1s
  timeout: 15m
gateway:
  listen: ":8080"
  wait_timeout: 5s
  auth:
    mode: bearer
    token: secret
cron:
  max_pending_age: 1h
  retention_days: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("version = %q", cfg.Version)
	}
	if cfg.Provider.Model != "gpt-4o" || cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Engine.TurnTimeout != 10*time.Minute || cfg.Engine.HistoryWindow != 20 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Store.Type != "sqlite" || cfg.Store.Path != "/tmp/loopgate.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if len(cfg.Approval.GatedTools) != 2 || cfg.Approval.GatedTools[0] != "makePayment" {
		t.Errorf("approval = %+v", cfg.Approval)
	}
	if cfg.Gateway.Auth.Mode != "bearer" || cfg.Gateway.Auth.Token != "secret" {
		t.Errorf("auth = %+v", cfg.Gateway.Auth)
	}
	if cfg.Cron.RetentionDays != 30 {
		t.Errorf("cron = %+v", cfg.Cron)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("LOOPGATE_TEST_KEY", "sk-from-env")

	path := writeConfig(t, `
version: "1"
provider:
  api_key: ${LOOPGATE_TEST_KEY}
  model: ${LOOPGATE_TEST_MODEL:-gpt-4o-mini}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want default applied", cfg.Provider.Model)
	}
}

func TestLoadReportsUnresolvedVariables(t *testing.T) {
	path := writeConfig(t, `
version: "1"
provider:
  api_key: ${LOOPGATE_DEFINITELY_UNSET_VAR}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "LOOPGATE_DEFINITELY_UNSET_VAR") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
