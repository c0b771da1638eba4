// riskdesk - pre-trade checks, portfolio risk and price alerts
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/config"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/logging"
)

var (
	version    = "0.1.0"
	configPath string
	logLevel   string
	verbose    bool
)

// exitError carries a process exit code without printing an error.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	rootCmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Pre-trade checks, portfolio risk and price alerts",
		Long: `riskdesk validates order tickets before they reach a broker, scores
portfolio risk against a limit profile and watches quotes for price alerts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.riskdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(portfolioCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(watchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	var exit exitError
	switch {
	case errors.As(err, &exit):
		os.Exit(exit.code)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", config.AppName, version)
		},
	}
}

// loadConfig reads and validates the configuration selected by --config.
func loadConfig() (*config.ConfigManager, *config.Config, error) {
	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cm.Load(); err != nil {
		return nil, nil, err
	}
	cfg := cm.Get()
	if verbose {
		if !cfg.ValidateAndPrint() {
			return nil, nil, errors.New("invalid configuration")
		}
	} else if err := cm.ValidateConfig(cfg).Err(); err != nil {
		return nil, nil, err
	}
	return cm, cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	} else if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Log.Format)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cm.Path() != "" {
				fmt.Println(dimStyle.Render("# " + cm.Path()))
			}
			out, err := marshalYAML(cfg)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewConfigManager(configPath)
			if err != nil {
				return err
			}
			if err := cm.Load(); err != nil {
				return err
			}
			if !cm.Get().ValidateAndPrint() {
				return exitError{code: 1}
			}
			fmt.Println(successStyle.Render("✓ configuration is valid"))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				p, err := config.GetConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("✅ Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
