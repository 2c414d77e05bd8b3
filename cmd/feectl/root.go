package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/fee-engine/config"
	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/generic"
	"github.com/warp/fee-engine/store/sqlite"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feectl",
		Short: "feectl inspects and drives a periodic fee processor.",
		Long: `feectl inspects and drives a periodic fee processor. ` +
			`It maps timestamps onto the deployment calendar, previews fee splits, ` +
			`and can finalize elapsed periods directly against the server's SQLite database.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "YAML configuration file (defaults apply when empty)")

	root.AddCommand(newClockCmd())
	root.AddCommand(newSplitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newProcessCmd())
	return root
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDeployment reads the configuration named by --config.
func loadDeployment(cmd *cobra.Command) (config.Config, *factory.Deployment, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	dep, err := factory.NewDeploymentFactory().FromJSON(cfg.Deploy)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("deployment: %w", err)
	}
	return cfg, dep, nil
}

// openProcessor opens the database named by --db (or the config) and
// deploys or resumes the processor on it.
func openProcessor(cmd *cobra.Command, clock generic.Clock) (*generic.FeeProcessor, *factory.Deployment, func() error, error) {
	cfg, dep, err := loadDeployment(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DB = db
	}

	store, err := sqlite.New(cfg.DB, dep.Unit)
	if err != nil {
		return nil, nil, nil, err
	}
	proc, err := generic.NewFeeProcessor(context.Background(), generic.ProcessorDeps{
		Calendar: dep.Calendar,
		Clock:    clock,
		Store:    store,
	}, dep.Config)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return proc, dep, store.Close, nil
}

// clockAt returns a fixed clock when --at is set, the system clock otherwise.
func clockAt(cmd *cobra.Command) generic.Clock {
	if at, _ := cmd.Flags().GetUint64("at"); at != 0 {
		return generic.NewFixedClock(generic.Timestamp(at))
	}
	return generic.SystemClock{}
}
