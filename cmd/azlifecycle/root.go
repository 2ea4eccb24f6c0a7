// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/client"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/config"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/harness"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/log"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/naming"
	"github.com/platform-engineering-labs/azure-lifecycle-harness/pkg/resources"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "azlifecycle",
	Short: "Exercises the idempotent resource lifecycle against Azure.",
	Long: `azlifecycle provisions short-lived Azure resources (a managed database
server, a load balancer with its public IP), verifies their facts through the
scoped and group-wide queries, tears them down, and verifies they are gone.
Resource names carry a run-unique suffix so concurrent runs against the same
resource group do not collide.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig()
	},
}

var runCmd = &cobra.Command{
	Use:       "run [database|loadbalancer|all]",
	Short:     "Run one or all lifecycle flows.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"database", "loadbalancer", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlows(cmd.Context(), args[0])
	},
}

var suffixCmd = &cobra.Command{
	Use:   "suffix <group-key>",
	Short: "Print the name suffix a new run against the group would use.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run := naming.NewRun(args[0])
		fmt.Fprintln(cmd.OutOrStdout(), run.Suffix)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <run-id>",
	Short: "Remove leftovers tagged by a run that was interrupted mid-flow.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sweepRun(cmd.Context(), args[0])
	},
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the resource kinds the harness can drive.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, kind := range resources.Kinds() {
			fmt.Fprintln(cmd.OutOrStdout(), kind)
		}
		return nil
	},
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default is .azlifecycle.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("subscription-id", "", "Azure subscription ID")
	rootCmd.PersistentFlags().String("resource-group", "", "Resource group the run operates in")
	rootCmd.PersistentFlags().String("location", "", "Azure location for created resources")

	runCmd.Flags().Bool("keep", false, "Skip decommissioning, leave resources for inspection")
	runCmd.Flags().Bool("verify-idempotency", true, "Re-run provision and decommission calls and require no-ops")

	viper.BindPFlag("subscription_id", rootCmd.PersistentFlags().Lookup("subscription-id"))
	viper.BindPFlag("resource_group", rootCmd.PersistentFlags().Lookup("resource-group"))
	viper.BindPFlag("location", rootCmd.PersistentFlags().Lookup("location"))
	viper.BindPFlag("keep", runCmd.Flags().Lookup("keep"))
	viper.BindPFlag("verify_idempotency", runCmd.Flags().Lookup("verify-idempotency"))

	viper.SetEnvPrefix("AZLIFECYCLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(suffixCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(kindsCmd)
}

func initializeConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".azlifecycle")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

func runFlows(ctx context.Context, which string) error {
	logger := log.NewLogger(log.Config{
		Level:  log.Level(logLevel),
		Format: log.Format(logFormat),
	})

	cfg := config.FromViper(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return err
	}

	azClient, err := client.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create Azure client: %w", err)
	}

	run := naming.NewRun(cfg.ResourceGroup)
	ctx = naming.WithRun(ctx, run)
	logger.Info("derived run", "suffix", run.Suffix, "runId", run.ID)

	runner := harness.NewRunner(azClient, cfg, logger, harness.Options{
		VerifyIdempotency: viper.GetBool("verify_idempotency"),
		KeepResources:     viper.GetBool("keep"),
	})

	var flows []*harness.Flow
	if which == "database" || which == "all" {
		flow, err := harness.DatabaseServerFlow(azClient, cfg, run)
		if err != nil {
			return err
		}
		flows = append(flows, flow)
	}
	if which == "loadbalancer" || which == "all" {
		flow, err := harness.LoadBalancerFlow(azClient, cfg, run)
		if err != nil {
			return err
		}
		flows = append(flows, flow)
	}

	for _, flow := range flows {
		if err := runner.Run(ctx, flow); err != nil {
			logger.Error("flow failed", "flow", flow.Name, "error", err)
			return err
		}
	}

	logger.Info("all flows completed")
	return nil
}

func sweepRun(ctx context.Context, runID string) error {
	logger := log.NewLogger(log.Config{
		Level:  log.Level(logLevel),
		Format: log.Format(logFormat),
	})

	cfg := config.FromViper(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return err
	}

	azClient, err := client.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create Azure client: %w", err)
	}

	runner := harness.NewRunner(azClient, cfg, logger, harness.Options{})
	removed, err := runner.Sweep(ctx, harness.NewLifecyclerFactory(azClient, cfg), runID)
	if err != nil {
		return err
	}

	logger.Info("sweep finished", "run", runID, "removed", removed)
	return nil
}
