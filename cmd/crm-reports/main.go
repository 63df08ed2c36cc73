package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/providers/salesforce"
	"github.com/feral-file/crm-reports/internal/reports/forecast"
	"github.com/feral-file/crm-reports/internal/reports/leadowner"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile string
	envPath    string
	debug      bool
	query      string
)

var rootCmd = &cobra.Command{
	Use:           "crm-reports",
	Short:         "Salesforce history and forecast reports",
	Long:          `Extracts lead owner history and opportunity forecasts from Salesforce and writes them to spreadsheet workbooks.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a SOQL query and print the first page as JSON",
	Long:  `Runs a SOQL query given with --query, or read from stdin, and prints the first result page.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		soql := query
		if soql == "" {
			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read query: %w", err)
			}
			soql = string(input)
		}
		if strings.TrimSpace(soql) == "" {
			return fmt.Errorf("%w: no query given", domain.ErrInvalidConfig)
		}

		return run(cmd, "query", func(ctx context.Context, a *application) error {
			return printPage(ctx, a.client, a.json, cmd.OutOrStdout(), soql)
		})
	},
}

// printPage fetches the first result page of soql and writes it as indented JSON
func printPage(ctx context.Context, client salesforce.QueryClient, j adapter.JSON, out io.Writer, soql string) error {
	page, err := client.FetchPage(ctx, soql)
	if err != nil {
		return err
	}

	raw, err := j.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	pretty, err := j.Indent(raw)
	if err != nil {
		return fmt.Errorf("failed to indent page: %w", err)
	}

	_, err = fmt.Fprintln(out, string(pretty))
	return err
}

var leadOwnersCmd = &cobra.Command{
	Use:   "lead-owners",
	Short: "Resolve the current SDR and sales owner of every lead",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "lead-owners", func(ctx context.Context, a *application) error {
			p := leadowner.NewPipeline(a.cfg.LeadOwner, a.cfg.Files, a.client, a.fs, a.clock, a.writer)
			return p.Run(ctx)
		})
	},
}

var wonOpportunitiesCmd = &cobra.Command{
	Use:   "won-opportunities",
	Short: "Attribute account forecasts to won opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "won-opportunities", func(ctx context.Context, a *application) error {
			p := forecast.NewPipeline(a.cfg.Forecast, a.cfg.Files, a.client, a.clock, a.writer)
			return p.RunWonOpportunities(ctx)
		})
	},
}

var openOpportunitiesCmd = &cobra.Command{
	Use:   "open-opportunities",
	Short: "Extract open opportunities with account forecasts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "open-opportunities", func(ctx context.Context, a *application) error {
			p := forecast.NewPipeline(a.cfg.Forecast, a.cfg.Files, a.client, a.clock, a.writer)
			return p.RunOpenOpportunities(ctx)
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration is valid")
		fmt.Fprintf(out, "Domain: %s\n", cfg.Salesforce.Domain)
		fmt.Fprintf(out, "API version: %s\n", cfg.Salesforce.APIVersion)
		fmt.Fprintf(out, "Grant type: %s\n", cfg.Salesforce.GrantType)
		fmt.Fprintf(out, "Write mode: %s\n", cfg.Files.WriteMode)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crm-reports %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "config/", "Path to environment files")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	queryCmd.Flags().StringVarP(&query, "query", "q", "", "SOQL query, read from stdin when empty")

	rootCmd.AddCommand(queryCmd, leadOwnersCmd, wonOpportunitiesCmd, openOpportunitiesCmd, configCmd, versionCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
