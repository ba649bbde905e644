package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config: the version field,
// the provider selection, the store backend, and the cross-field constraints
// between gateway auth modes and their credentials.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateProvider(cfg.Provider)...)
	errs = append(errs, validateStore(cfg.Store)...)
	errs = append(errs, validateAuth(cfg.Gateway.Auth)...)
	errs = append(errs, validateMCP(cfg.MCP)...)

	if cfg.Engine.Temperature != nil {
		if t := *cfg.Engine.Temperature; t < 0 || t > 2 {
			errs = append(errs, fmt.Errorf("config: engine.temperature %v out of range [0, 2]", t))
		}
	}
	if cfg.Cron.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("config: cron.retention_days must not be negative, got %d", cfg.Cron.RetentionDays))
	}

	return errors.Join(errs...)
}

func validateProvider(p ProviderConfig) []error {
	var errs []error

	switch p.Type {
	case "", "openai":
	default:
		errs = append(errs, fmt.Errorf("config: unknown provider type %q (supported: \"openai\")", p.Type))
	}
	if p.APIKey == "" {
		errs = append(errs, errors.New("config: provider.api_key is required"))
	}
	if p.Model == "" {
		errs = append(errs, errors.New("config: provider.model is required"))
	}

	return errs
}

func validateStore(s StoreConfig) []error {
	switch s.Type {
	case "", "memory":
		return nil
	case "sqlite":
		if s.Path == "" {
			return []error{errors.New("config: store.path is required for the sqlite store")}
		}
		return nil
	default:
		return []error{fmt.Errorf("config: unknown store type %q (supported: \"memory\", \"sqlite\")", s.Type)}
	}
}

func validateAuth(a AuthConfig) []error {
	switch a.Mode {
	case "", "none":
		return nil
	case "bearer":
		if a.Token == "" {
			return []error{errors.New("config: gateway.auth.token is required for bearer auth")}
		}
		return nil
	case "basic":
		var errs []error
		if a.Username == "" {
			errs = append(errs, errors.New("config: gateway.auth.username is required for basic auth"))
		}
		if a.Password == "" {
			errs = append(errs, errors.New("config: gateway.auth.password is required for basic auth"))
		}
		return errs
	default:
		return []error{fmt.Errorf("config: unknown auth mode %q (supported: \"none\", \"bearer\", \"basic\")", a.Mode)}
	}
}

func validateMCP(servers []MCPServerConfig) []error {
	var errs []error
	seen := make(map[string]struct{}, len(servers))

	for i, s := range servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("config: mcp[%d]: name is required", i))
		} else if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("config: mcp[%d]: duplicate server name %q", i, s.Name))
		} else {
			seen[s.Name] = struct{}{}
		}
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("config: mcp[%d]: command is required", i))
		}
	}

	return errs
}
