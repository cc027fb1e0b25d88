package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/decibelvc/rwlock"
)

// watchDebounce coalesces rapid record rewrites (a burst of grants and
// releases) into a single status line
const watchDebounce = 100 * time.Millisecond

// WatchOptions contains options for the watch command
type WatchOptions struct {
	Path string
}

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Print the lock status whenever it changes",
		Long: `Watch the lock record for a path and print its status every time it
changes, until interrupted.

Example:
  rwlock watch /tmp/my-cache`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			return runWatch(opts)
		},
	}

	return cmd
}

func runWatch(opts *WatchOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recordFile := rwlock.RecordPath(opts.Path)
	dir := filepath.Dir(recordFile)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	h, err := rwlock.New(opts.Path)
	if err != nil {
		return err
	}

	printStatus := func() {
		st, err := h.Check(ctx, rwlock.Write)
		if err != nil {
			fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
			return
		}
		fmt.Printf("%s %s\n", time.Now().Format("15:04:05"), st)
	}

	printStatus()

	var timer *time.Timer
	debounced := make(chan struct{}, 1)
	bump := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			select {
			case debounced <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-debounced:
			printStatus()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Name != recordFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			bump()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}
