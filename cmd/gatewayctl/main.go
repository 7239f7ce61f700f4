// Command gatewayctl is a command-line companion for operating a gateway
// deployment: validating config files, triggering catalog sync, and
// inspecting health/pricing state.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	aigateway "github.com/ferro-labs/llm-gateway"
	"github.com/ferro-labs/llm-gateway/internal/bootstrap"
	"github.com/ferro-labs/llm-gateway/internal/ingest"
	"github.com/ferro-labs/llm-gateway/internal/version"
	"github.com/ferro-labs/llm-gateway/registry"
)

// buildGateway loads cfgPath and returns a Gateway with every configured
// provider adapter registered, the same way gatewayd wires one at startup.
func buildGateway(cfgPath string) (*aigateway.Gateway, *aigateway.Config, error) {
	cfg, err := aigateway.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	gw, err := aigateway.New(*cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building gateway: %w", err)
	}
	bootstrap.RegisterProviders(gw, cfg)
	return gw, cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Operate and inspect an LLM gateway deployment",
	}
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newPricingCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := aigateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Println("Config is valid")
			fmt.Printf("  Curated models:    %d\n", len(cfg.CuratedModels))
			fmt.Printf("  Providers:         %d\n", len(cfg.Providers))
			fmt.Printf("  Manual pricing:    %d\n", len(cfg.ManualPricing))
			fmt.Printf("  Aliases:           %d\n", len(cfg.Aliases))
			fmt.Printf("  Fallback mappings: %d\n", len(cfg.FallbackMappings))
			if cfg.Database.Driver != "" {
				fmt.Printf("  Database:          %s\n", cfg.Database.Driver)
			}
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the catalog ingester once against every configured provider",
		RunE: func(c *cobra.Command, _ []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			gw, cfg, err := buildGateway(configPath)
			if err != nil {
				return err
			}
			defer gw.Close()

			in := ingest.New(gw.Registry(), bootstrap.Fetcher{Gateway: gw}, ingest.DefaultMapper, cfg.IngestProviders, nil)
			report := in.SyncAll(c.Context())
			for _, r := range report.Reports {
				fmt.Printf("%-15s synced=%d disabled=%d errors=%d\n", r.Provider, r.Synced, r.Disabled, len(r.Errors))
				for _, e := range r.Errors {
					fmt.Printf("  error: %s\n", e)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to gateway config file")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print a circuit-breaker health summary",
		RunE: func(_ *cobra.Command, _ []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			gw, _, err := buildGateway(configPath)
			if err != nil {
				return err
			}
			defer gw.Close()

			s := gw.Health().Summary()
			fmt.Printf("Total: %d  Closed: %d  Half-open: %d  Open: %d\n", s.Total, s.Closed, s.HalfOpen, s.Open)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to gateway config file")
	return cmd
}

func newPricingCmd() *cobra.Command {
	var configPath, canonicalID, provider, nativeID string
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Resolve the effective price for a canonical model/provider pair",
		RunE: func(_ *cobra.Command, _ []string) error {
			if configPath == "" || canonicalID == "" || provider == "" {
				return fmt.Errorf("--config, --model, and --provider are required")
			}
			gw, _, err := buildGateway(configPath)
			if err != nil {
				return err
			}
			defer gw.Close()

			quote := gw.Pricing().Resolve(canonicalID, provider, nativeID)
			fmt.Printf("source=%s input_per_token=%v output_per_token=%v usable=%v\n",
				quote.Source, quote.InputPerToken, quote.OutputPerToken, quote.IsUsable())
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to gateway config file")
	cmd.Flags().StringVar(&canonicalID, "model", "", "canonical model id")
	cmd.Flags().StringVar(&provider, "provider", "", "provider slug")
	cmd.Flags().StringVar(&nativeID, "native-id", "", "provider-native model id (optional)")
	return cmd
}

// newCatalogCmd groups the registry export/import round-trip (SPEC_FULL
// §5.7's "registry export/import" supplement) under one subcommand, for
// inspecting or backing up the in-memory canonical model catalog.
func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Export or import the canonical model catalog",
	}
	cmd.AddCommand(newCatalogExportCmd())
	cmd.AddCommand(newCatalogImportCmd())
	return cmd
}

func newCatalogExportCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the canonical model catalog as JSON to stdout",
		RunE: func(_ *cobra.Command, _ []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			gw, _, err := buildGateway(configPath)
			if err != nil {
				return err
			}
			defer gw.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(gw.Registry().Export())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to gateway config file")
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	var configPath, inputPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a previously exported catalog snapshot and report the result",
		RunE: func(_ *cobra.Command, _ []string) error {
			if configPath == "" || inputPath == "" {
				return fmt.Errorf("--config and --input are required")
			}
			gw, _, err := buildGateway(configPath)
			if err != nil {
				return err
			}
			defer gw.Close()

			f, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("opening snapshot: %w", err)
			}
			defer f.Close()

			var snapshot registry.Export
			if err := json.NewDecoder(f).Decode(&snapshot); err != nil {
				return fmt.Errorf("decoding snapshot: %w", err)
			}
			if err := gw.Registry().Import(snapshot); err != nil {
				return fmt.Errorf("importing snapshot: %w", err)
			}
			fmt.Printf("Imported %d model(s), %d alias(es)\n", len(snapshot.Models), len(snapshot.Aliases))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to gateway config file")
	cmd.Flags().StringVar(&inputPath, "input", "", "path to a catalog snapshot JSON file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.String())
		},
	}
}
