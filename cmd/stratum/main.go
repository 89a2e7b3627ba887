package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/dispatch"
	"github.com/ajitpratap0/stratum/pkg/logger"
	"github.com/ajitpratap0/stratum/pkg/plugin"

	// Import all available connectors to make them discoverable
	_ "github.com/ajitpratap0/stratum/pkg/connector/kv"
	_ "github.com/ajitpratap0/stratum/pkg/connector/memory"
	_ "github.com/ajitpratap0/stratum/pkg/connector/native"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "stratum",
		Short: "Stratum - pluggable storage connector dispatch",
		Long: `Stratum routes container, group, dataset, attribute and blob operations
through interchangeable storage connectors. The same program can persist to
the native single-file format, an embedded key-value store, or memory,
selected per container at open time.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stratum v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discoverable connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available connectors:")
			_ = plugin.Iterate(func(class *core.ConnectorClass) (plugin.Action, error) {
				marker := " "
				if class.Name == config.DefaultConnectorName() {
					marker = "*"
				}
				fmt.Printf("  %s %-10s value=%-5d version=%d\n", marker, class.Name, class.Value, class.Version)
				return plugin.Continue, nil
			})
		},
	})

	probeCmd := &cobra.Command{
		Use:   "probe [name]",
		Short: "Report which connectors find a resource accessible",
		Args:  cobra.ExactArgs(1),
		RunE:  runProbe,
	}
	root.AddCommand(probeCmd)

	openCmd := &cobra.Command{
		Use:   "open [name]",
		Short: "Open a container and report its connector",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen,
	}
	openCmd.Flags().String("connector", "", "connector to open with (default: discovery)")
	root.AddCommand(openCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := args[0]
	return plugin.Iterate(func(class *core.ConnectorClass) (plugin.Action, error) {
		accessible := false
		if class.File != nil && class.File.Specific != nil {
			opArgs := &core.OpArgs{
				Op:  core.OpFileIsAccessible,
				In:  &core.AccessibleArgs{Name: name},
				Out: &accessible,
			}
			if _, err := class.File.Specific(ctx, nil, opArgs, nil); err != nil {
				accessible = false
			}
		}
		fmt.Printf("  %-10s accessible=%v\n", class.Name, accessible)
		return plugin.Continue, nil
	})
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := args[0]
	acfg := config.NewAccessConfig()
	if connector, _ := cmd.Flags().GetString("connector"); connector != "" {
		acfg.Connector = connector
	}

	// register the configured connector up front; discovery handles the rest
	if !registry.IsRegistered(acfg.Connector) {
		var class *core.ConnectorClass
		_ = plugin.Iterate(func(c *core.ConnectorClass) (plugin.Action, error) {
			if c.Name == acfg.Connector {
				class = c
				return plugin.Stop, nil
			}
			return plugin.Continue, nil
		})
		if class == nil {
			return fmt.Errorf("no connector named %s", acfg.Connector)
		}
		if _, err := registry.Register(class, nil); err != nil {
			return err
		}
	}

	file, err := dispatch.FileOpen(ctx, name, core.FlagReadOnly, acfg, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Opened %s via connector %s\n", name, file.Container().ConnectorName())

	if err := dispatch.FileClose(ctx, file, nil); err != nil {
		logger.Get().Warn("close failed", zap.Error(err))
	}
	return nil
}
