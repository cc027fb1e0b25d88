package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/decibelvc/rwlock"
)

// StatusOptions contains options for the status command
type StatusOptions struct {
	Path       string
	OutputJSON bool
}

// JobResult represents one lock holder in command output
type JobResult struct {
	ID        string `json:"id"`
	PID       int    `json:"pid"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

// StatusResult represents the output of the status command
type StatusResult struct {
	Path    string      `json:"path"`
	Status  string      `json:"status"`
	Writer  *JobResult  `json:"writer,omitempty"`
	Readers []JobResult `json:"readers,omitempty"`
}

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status <path>",
		Short: "Show who holds the lock for a path",
		Long: `Show the current holders of the read/write lock for a resource path.

Checking the lock also reaps claims left behind by processes that are no
longer running.

Example:
  rwlock status /tmp/my-cache
  rwlock status /tmp/my-cache --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			return runStatus(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.OutputJSON, "json", false, "output result as JSON")

	return cmd
}

func runStatus(opts *StatusOptions) error {
	h, err := rwlock.New(opts.Path)
	if err != nil {
		return err
	}

	// A write request is blocked by every kind of holder, so checking it
	// yields the full picture
	st, err := h.CheckNow(rwlock.Write)
	if err != nil {
		return err
	}

	result := StatusResult{Path: opts.Path}
	switch s := st.(type) {
	case rwlock.StatusOpen:
		result.Status = "open"
	case rwlock.StatusWriteLocked:
		result.Status = "write_locked"
		jr := jobResult(s.Job)
		result.Writer = &jr
	case rwlock.StatusReadLocked:
		result.Status = "read_locked"
		for _, j := range s.Jobs {
			result.Readers = append(result.Readers, jobResult(j))
		}
	}

	if opts.OutputJSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(st)
	return nil
}

// jobResult converts a lock claim into its command output form
func jobResult(j rwlock.Job) JobResult {
	return JobResult{
		ID:        j.ID,
		PID:       j.OwnerPID,
		Reason:    j.Reason,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	}
}
