package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.3.0"

// app holds state shared by every command of one invocation
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	cfg     *config.Config
	stdout  io.Writer
	stderr  io.Writer
}

// NewRootCmd builds the command tree with its own configuration state
func NewRootCmd() *cobra.Command {
	return newRootCmd(os.Stdout, os.Stderr)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "pfml-submit",
		Short: "Submit generated PFML claims to the intake API, exactly once",
		Long: `pfml-submit drives a data directory of generated claims through the
claims intake API with bounded concurrency.

Every accepted claim is recorded in a tracker next to the data, so running
the same directory again only submits claims that have not been accepted
yet. A run stops early once too many submissions fail in a row.

Exit codes:
  0  all claims processed
  1  configuration or usage error
  2  aborted: consecutive failure threshold reached
  3  aborted: tracker state could not be persisted
  130  interrupted`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.pfml-submit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("tracker", "file", "tracker driver (file, sqlite, redis)")

	_ = a.v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = a.v.BindPFlag("tracker.driver", rootCmd.PersistentFlags().Lookup("tracker"))

	rootCmd.AddCommand(
		newVersionCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
		newConfigCmd(a),
	)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pfml-submit %s\n", Version)
		},
	}
}

// loadConfig reads config file, environment and bound flags, then sets up logging
func (a *app) loadConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".pfml-submit"))
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	if a.verbose && a.v.ConfigFileUsed() != "" {
		fmt.Fprintf(a.stderr, "Using config file: %s\n", a.v.ConfigFileUsed())
	}

	a.cfg = cfg
	return nil
}
