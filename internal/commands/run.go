package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/decibelvc/rwlock"
	"github.com/decibelvc/rwlock/internal/config"
	"github.com/decibelvc/rwlock/internal/errors"
)

// RunOptions contains options for the run command
type RunOptions struct {
	Path      string
	WriteLock bool
	Reason    string
	Timeout   time.Duration
	Args      []string
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <path> -- <command> [args...]",
		Short: "Run a command while holding the lock",
		Long: `Acquire the lock for a path, run a command, and release the lock when the
command exits, whether it succeeds or fails. The child's exit code is
propagated.

By default a shared read lock is taken; --write takes the exclusive write
lock instead.

Example:
  rwlock run /tmp/my-cache -- tar czf backup.tgz /tmp/my-cache
  rwlock run --write --reason "rebuild" /tmp/my-cache -- make rebuild`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			opts.Args = args[1:]
			return runRun(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.WriteLock, "write", false, "take the exclusive write lock")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded with the claim")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "acquisition timeout (default from config, 30s)")

	return cmd
}

func runRun(opts *RunOptions) error {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		return err
	}

	timeout := cfg.Timeout()
	if opts.Timeout != 0 {
		timeout = opts.Timeout
	}

	lockType := rwlock.Read
	if opts.WriteLock {
		lockType = rwlock.Write
	}

	reason := opts.Reason
	if reason == "" {
		reason = strings.Join(opts.Args, " ")
	}

	h, err := rwlock.New(opts.Path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	acquireOpts := rwlock.Options{
		Reason:        reason,
		Timeout:       timeout,
		RetryInterval: cfg.RetryInterval(),
		OnBlocked: func(st rwlock.Status) {
			fmt.Fprintf(os.Stderr, "waiting for lock: %s\n", st)
		},
	}
	if err := h.Add(ctx, lockType, acquireOpts); err != nil {
		if te, ok := err.(*rwlock.TimeoutError); ok {
			return errors.LockTimeout(opts.Path, te)
		}
		return err
	}
	defer func() {
		_ = h.Remove(ctx, lockType)
	}()

	child := exec.Command(opts.Args[0], opts.Args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Release before reporting so the claim does not outlive the child
			_ = h.Remove(ctx, lockType)
			return errors.New(
				errors.ExitCode(exitErr.ExitCode()),
				fmt.Sprintf("command exited with code %d", exitErr.ExitCode()),
				"",
				exitErr,
			)
		}
		return errors.ChildFailed(opts.Args[0], err)
	}

	return nil
}
