// Command papergen indexes source documents and generates exam papers from them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"exampaper-rag/internal/config"
	"exampaper-rag/internal/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.AppConfig
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "papergen",
	Short:         "Generate exam papers from indexed textbooks",
	Long:          `papergen indexes textbooks into a vector store and generates new exam papers that follow the structure of a sample paper.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		if log, err = logger.New(cfg.Log.Mode, level); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "papergen.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
