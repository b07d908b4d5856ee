package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soaringjerry/Formly/internal/config"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "formly",
	Short:         "Formly form builder API server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func versionString() string {
	if commit == "" {
		return version
	}
	return version + " (" + commit + ")"
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FORMLY_CONFIG"), "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "formly:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. The returned level can be changed at runtime.
func newLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level := zap.NewAtomicLevel()
	if err := setLevel(level, cfg.Level); err != nil {
		return nil, level, err
	}
	zcfg.Level = level
	log, err := zcfg.Build()
	if err != nil {
		return nil, level, fmt.Errorf("build logger: %w", err)
	}
	return log, level, nil
}

func setLevel(level zap.AtomicLevel, name string) error {
	if strings.TrimSpace(name) == "" {
		name = "info"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}
