// Package main is the entry point for the loopgate CLI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/loopgate/loopgate/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loopgate",
		Short:         "A tool-calling chat agent with a human-approval gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("loopgate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start loopgate in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := app.CheckConfig(args[0])
			if err != nil {
				return err
			}

			fmt.Println("Configuration OK")
			fmt.Printf("  provider: %s (%s)\n", providerType(cfg.Provider.Type), cfg.Provider.Model)
			fmt.Printf("  store:    %s\n", storeType(cfg.Store.Type))
			if len(cfg.Approval.GatedTools) > 0 {
				fmt.Printf("  gated:    %s\n", strings.Join(cfg.Approval.GatedTools, ", "))
			}
			for _, srv := range cfg.MCP {
				fmt.Printf("  mcp:      %s (%s)\n", srv.Name, srv.Command)
			}
			return nil
		},
	})
	return cmd
}

func providerType(t string) string {
	if t == "" {
		return "openai"
	}
	return t
}

func storeType(t string) string {
	if t == "" {
		return "memory"
	}
	return t
}

// serviceCmd manages loopgate as a system service (systemd, launchd, SCM).
func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service [install|uninstall|start|stop|run]",
		Short:     "Manage loopgate as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			svcArgs := []string{"service", "run"}
			if cfgPath != "" {
				svcArgs = append(svcArgs, "--config", cfgPath)
			}

			svc, err := service.New(
				&program{cfgPath: cfgPath},
				&service.Config{
					Name:        "loopgate",
					DisplayName: "loopgate",
					Description: "Tool-calling chat agent with a human-approval gate",
					Arguments:   svcArgs,
				},
			)
			if err != nil {
				return err
			}

			switch args[0] {
			case "run":
				return svc.Run()
			default:
				return service.Control(svc, args[0])
			}
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// program adapts app.Run to the service manager lifecycle.
type program struct {
	cfgPath string
	errCh   chan error
}

func (p *program) Start(service.Service) error {
	p.errCh = make(chan error, 1)
	go func() {
		p.errCh <- app.Run(app.RunParams{
			ConfigPath: p.cfgPath,
			Version:    version,
		})
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	// app.Run exits on SIGINT; deliver one to our own process so the
	// normal shutdown path runs under the service manager too.
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return err
	}
	return <-p.errCh
}
