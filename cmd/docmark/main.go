// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the docmark CLI.
// See docs/ARCHITECTURE § Command Surface, § Project Structure.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docmark/internal/secrets"
	"github.com/pdiddy/docmark/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback if set, else the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the docmark CLI.
var rootCmd = &cobra.Command{
	Use:   "docmark",
	Short: "Batch conversion of office documents to Markdown",
	Long: `docmark converts office documents (Word, PowerPoint, Excel, PDF, and
more) into Markdown. Batches run concurrently with per-file progress;
one bad file fails alone and never takes the batch down with it.

Conversion runs through a markitdown engine: a container image, a local
executable, or a remote HTTP service. Finished conversions are recorded
in a local history database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./docmark.yaml or ~/.config/docmark/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log per-task progress updates")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docmark")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "docmark"))
		}
	}

	viper.SetEnvPrefix("DOCMARK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig builds the effective configuration: defaults overlaid with
// whatever the config file or environment set. Command flags are applied
// on top by the individual commands.
func loadConfig() types.Config {
	cfg := types.DefaultConfig()

	if v := viper.GetString("engine.backend"); v != "" {
		cfg.Engine.Backend = types.EngineBackend(v)
	}
	if v := viper.GetString("engine.image"); v != "" {
		cfg.Engine.Image = v
	}
	if v := viper.GetString("engine.binary"); v != "" {
		cfg.Engine.Binary = v
	}
	if v := viper.GetString("engine.remote_url"); v != "" {
		cfg.Engine.RemoteURL = v
	}
	if v := viper.GetDuration("engine.timeout"); v > 0 {
		cfg.Engine.Timeout = v
	}
	if viper.IsSet("engine.frontmatter") {
		cfg.Engine.Frontmatter = viper.GetBool("engine.frontmatter")
	}

	if v := viper.GetString("orchestrator.output_dir"); v != "" {
		cfg.Orchestrator.OutputDir = v
	}
	if v := viper.GetInt("orchestrator.max_concurrent"); v > 0 {
		cfg.Orchestrator.MaxConcurrent = v
	}
	if viper.IsSet("orchestrator.max_retries") {
		cfg.Orchestrator.MaxRetries = viper.GetInt("orchestrator.max_retries")
	}
	if v := viper.GetInt("orchestrator.upload_weight"); v > 0 {
		cfg.Orchestrator.UploadWeight = v
	}
	if v := viper.GetInt("orchestrator.convert_weight"); v > 0 {
		cfg.Orchestrator.ConvertWeight = v
	}

	if v := viper.GetString("history.dir"); v != "" {
		cfg.History.Dir = v
	}
	if v := viper.GetInt("history.keep"); v > 0 {
		cfg.History.Keep = v
	}

	return cfg
}

// newLogger builds the CLI logger. Warnings and errors by default; debug
// when --verbose is set.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
