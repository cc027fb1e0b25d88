package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/decibelvc/rwlock/internal/commands"
	"github.com/decibelvc/rwlock/internal/config"
	"github.com/decibelvc/rwlock/internal/errors"
	"github.com/decibelvc/rwlock/internal/logger"
)

var (
	// Version information - injected at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rwlock",
		Short: "Cross-process read/write locks backed by the filesystem",
		Long:  "A CLI for coordinating shared (read) and exclusive (write) access to a resource between independent processes, with no lock server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rwlock version %s\n", Version)
			fmt.Printf("commit: %s\n", GitCommit)
			fmt.Printf("built: %s\n", BuildDate)
		},
	}

	// Add commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(commands.NewStatusCmd())
	rootCmd.AddCommand(commands.NewUnlockCmd())
	rootCmd.AddCommand(commands.NewRunCmd())
	rootCmd.AddCommand(commands.NewWatchCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		errors.Handle(err, false)
	}
}

// setupLogging applies the configured debug level. The RWLOCK_DEBUG
// environment variable wins over the config file.
func setupLogging() error {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		return err
	}

	log := logger.Default()
	switch cfg.Debug {
	case 1:
		log.SetLevel(logger.LevelDebug)
	case 2:
		log.SetLevel(logger.LevelDebug)
		log.SetVerbose(true)
	}
	logger.SetGlobalLogger(log)
	return nil
}
