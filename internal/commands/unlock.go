package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/decibelvc/rwlock"
)

// UnlockOptions contains options for the unlock command
type UnlockOptions struct {
	Path       string
	Force      bool
	OutputJSON bool
}

// UnlockResult represents the output of the unlock command
type UnlockResult struct {
	Path      string      `json:"path"`
	Cleared   bool        `json:"cleared"`
	Remaining []JobResult `json:"remaining,omitempty"`
}

// NewUnlockCmd creates the unlock command
func NewUnlockCmd() *cobra.Command {
	opts := &UnlockOptions{}

	cmd := &cobra.Command{
		Use:   "unlock <path>",
		Short: "Reap stale lock claims, or force-clear all of them",
		Long: `Remove lock claims whose owning process is no longer running.

Claims of live processes are left alone unless --force is given, in which
case every claim is removed and the record file deleted. Forcing out a live
holder can corrupt whatever that holder is working on; use it for claims you
know to be abandoned.

Example:
  rwlock unlock /tmp/my-cache
  rwlock unlock /tmp/my-cache --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			return runUnlock(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "remove claims of live processes too")
	cmd.Flags().BoolVar(&opts.OutputJSON, "json", false, "output result as JSON")

	return cmd
}

func runUnlock(opts *UnlockOptions) error {
	result := UnlockResult{Path: opts.Path}

	if opts.Force {
		if err := rwlock.Clear(context.Background(), opts.Path); err != nil {
			return err
		}
		result.Cleared = true
		return printUnlockResult(opts, result)
	}

	h, err := rwlock.New(opts.Path)
	if err != nil {
		return err
	}

	// Checking the write side reaps every dead holder as a side effect
	st, err := h.CheckNow(rwlock.Write)
	if err != nil {
		return err
	}

	switch s := st.(type) {
	case rwlock.StatusOpen:
		result.Cleared = true
	case rwlock.StatusWriteLocked:
		result.Remaining = append(result.Remaining, jobResult(s.Job))
	case rwlock.StatusReadLocked:
		for _, j := range s.Jobs {
			result.Remaining = append(result.Remaining, jobResult(j))
		}
	}

	return printUnlockResult(opts, result)
}

func printUnlockResult(opts *UnlockOptions, result UnlockResult) error {
	if opts.OutputJSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if result.Cleared {
		fmt.Printf("Lock is now open: %s\n", result.Path)
		return nil
	}

	fmt.Printf("Live holders remain on %s:\n", result.Path)
	for _, j := range result.Remaining {
		if j.Reason != "" {
			fmt.Printf("  pid %d (%s) since %s\n", j.PID, j.Reason, j.CreatedAt)
		} else {
			fmt.Printf("  pid %d since %s\n", j.PID, j.CreatedAt)
		}
	}
	fmt.Println("Use --force to remove them anyway.")
	return nil
}
