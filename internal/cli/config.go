package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
)

const banner = "═══════════════════════════════════════════════════════════"

const redacted = "********"

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pfml-submit configuration",
		Long: `Manage pfml-submit configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (PFML_SUBMIT_*)
3. Config file (~/.pfml-submit/config.yaml)
4. Defaults`,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  `Display the effective configuration after defaults, config file, environment variables and flags are merged. Credentials are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showConfig(cmd.OutOrStdout())
		},
	}

	var initPath string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize default configuration file",
		Long:  `Create a configuration file holding every option at its default value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initPath == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return eris.Wrap(err, "find home directory")
				}
				initPath = filepath.Join(home, ".pfml-submit", "config.yaml")
			}
			if err := writeDefaultConfig(initPath, force); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", initPath)
			fmt.Fprintf(out, "\nTo view the configuration:\n")
			fmt.Fprintf(out, "  pfml-submit config show\n")
			fmt.Fprintf(out, "\nSet backend.base_url before submitting to a real environment.\n\n")
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPath, "path", "", "where to write the file (default: $HOME/.pfml-submit/config.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(showCmd, initCmd)
	return configCmd
}

func (a *app) showConfig(w io.Writer) error {
	if used := a.v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(a.stderr, "Configuration file: %s\n\n", used)
	} else {
		fmt.Fprintf(a.stderr, "No configuration file found (using defaults)\n\n")
	}

	cfg := *a.cfg
	if cfg.Backend.Token != "" {
		cfg.Backend.Token = redacted
	}
	if cfg.Backend.Password != "" {
		cfg.Backend.Password = redacted
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return eris.Wrap(err, "marshal config")
	}

	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "  Current Configuration")
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w)
	fmt.Fprintln(w, string(data))
	fmt.Fprintln(w, banner)
	return nil
}

func writeDefaultConfig(path string, force bool) (err error) {
	if _, statErr := os.Stat(path); statErr == nil && !force {
		return eris.Errorf("config file already exists: %s\nUse --force to overwrite it", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(err, "create config directory")
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return eris.Wrap(err, "marshal config")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create config file")
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = eris.Wrap(closeErr, "close config file")
		}
	}()

	printf := func(format string, a ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(f, format, a...)
	}

	printf("# pfml-submit configuration\n")
	printf("#\n")
	printf("# Configuration hierarchy (highest to lowest priority):\n")
	printf("#   1. CLI flags\n")
	printf("#   2. Environment variables (PFML_SUBMIT_*, e.g. PFML_SUBMIT_BACKEND_TOKEN)\n")
	printf("#   3. This config file\n")
	printf("#   4. Built-in defaults\n\n")
	printf("%s", data)
	printf("\n# Credentials are better kept out of this file:\n")
	printf("#   export PFML_SUBMIT_BACKEND_TOKEN=...\n")
	return err
}
