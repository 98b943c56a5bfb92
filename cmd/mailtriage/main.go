// Command mailtriage watches a course support mailbox, answers what a local
// model can answer and files the rest for a human.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/app"
	"github.com/nhle/mailtriage/internal/logging"
	"github.com/nhle/mailtriage/internal/model"
)

// Set via -ldflags at build time.
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mailtriage",
		Short:         "Triage a support mailbox with a local language model",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", model.DefaultConfigPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log.format (json, console)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newOnceCmd(opts),
		newMailboxesCmd(opts),
		newSeenCmd(opts),
		newSetupCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load reads the configuration and builds the logger it asks for. Only
// strict loads validate the whole file.
func (o *rootOptions) load(strict bool) (*model.AppConfig, zerolog.Logger, error) {
	bootLog, err := o.logger("", "")
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	read := app.ReadConfig
	if strict {
		read = app.LoadConfig
	}
	cfg, err := read(o.configPath, bootLog)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	log, err := o.logger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func (o *rootOptions) logger(level, format string) (zerolog.Logger, error) {
	if o.logLevel != "" {
		level = o.logLevel
	}
	if o.logFormat != "" {
		format = o.logFormat
	}
	return logging.New(logging.Config{Level: level, Format: format, Output: os.Stderr})
}
