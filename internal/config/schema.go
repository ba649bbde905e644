// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for loopgate.
package config

import (
	"time"

	"github.com/loopgate/loopgate/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig        `yaml:"log"`
	Provider  ProviderConfig   `yaml:"provider"`
	Engine    EngineConfig     `yaml:"engine"`
	Store     StoreConfig      `yaml:"store"`
	Approval  ApprovalConfig   `yaml:"approval"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Cron      CronConfig       `yaml:"cron"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// MCP lists external tool servers whose tools are merged into the
	// registry at startup.
	MCP []MCPServerConfig `yaml:"mcp,omitempty"`

	// Approver enables the interactive terminal approval prompt.
	Approver ApproverConfig `yaml:"approver"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Defaults to text.
	Format string `yaml:"format"`
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	// Type names the provider module. Currently only "openai" is supported.
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// Timeout bounds a single completion request.
	Timeout time.Duration `yaml:"timeout"`
}

// EngineConfig holds the chat turn settings.
type EngineConfig struct {
	SystemPrompt  string        `yaml:"system_prompt"`
	Temperature   *float64      `yaml:"temperature,omitempty"`
	MaxTokens     int           `yaml:"max_tokens"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
	HistoryWindow int           `yaml:"history_window"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	// Type is "memory" or "sqlite". Defaults to memory.
	Type string `yaml:"type"`

	// Path is the SQLite database file. Required when Type is "sqlite".
	Path string `yaml:"path"`
}

// ApprovalConfig configures the human-approval gate.
type ApprovalConfig struct {
	// GatedTools lists tool names that require human sign-off.
	GatedTools []string `yaml:"gated_tools,omitempty"`

	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	// Listen is the bind address, e.g. ":8080". Empty disables the gateway.
	Listen string `yaml:"listen"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// WaitTimeout is how long a chat request blocks before detaching and
	// returning a pending turn handle.
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig protects the admin surface.
type AuthConfig struct {
	// Mode is "none", "bearer", or "basic". Defaults to none.
	Mode string `yaml:"mode"`

	Token    string `yaml:"token,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// CronConfig configures the background maintenance jobs.
type CronConfig struct {
	// SweepSchedule is the cron expression for expiring stale pending
	// approvals. Empty uses the default.
	SweepSchedule string `yaml:"sweep_schedule"`

	// MaxPendingAge marks pending approvals older than this for expiry.
	MaxPendingAge time.Duration `yaml:"max_pending_age"`

	// RetentionDays removes idle sessions older than this many days.
	// Zero disables retention.
	RetentionDays int `yaml:"retention_days"`
}

// MCPServerConfig describes one external stdio tool server.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// Gated marks every tool from this server as requiring approval.
	Gated bool `yaml:"gated"`
}

// ApproverConfig controls the interactive terminal approver.
type ApproverConfig struct {
	Terminal bool `yaml:"terminal"`
}
