package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/decibelvc/rwlock/internal/config"
	"github.com/decibelvc/rwlock/internal/errors"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in the user config file",
		Long: `Set a configuration value. Known keys:

  lock_timeout_ms     acquisition timeout in milliseconds
  retry_interval_ms   initial retry interval in milliseconds
  debug               verbosity: 0 off, 1 basic, 2 verbose`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	})

	return cmd
}

func runConfigShow() error {
	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Println(string(data))
	fmt.Printf("config file: %s\n", loader.Path())
	return nil
}

func runConfigSet(key, value string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return errors.Usage(fmt.Sprintf("invalid value for %s: %s (expected a non-negative integer)", key, value))
	}

	switch key {
	case "lock_timeout_ms":
		cfg.LockTimeoutMS = n
	case "retry_interval_ms":
		cfg.RetryIntervalMS = n
	case "debug":
		cfg.Debug = n
	default:
		return errors.Usage(fmt.Sprintf("unknown config key: %s", key))
	}

	if err := loader.Save(cfg); err != nil {
		return err
	}

	fmt.Printf("Set %s = %d\n", key, n)
	return nil
}
