package gam

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"calmigrate/internal/replayer"
)

// runCommand is a variable so it can be overwritten by tests.
var runCommand = func(ctx context.Context, path string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, path, args...).CombinedOutput()
}

// Runner drives the GAM command-line tool, one addevent call per invocation.
type Runner struct {
	path   string
	logger *slog.Logger
}

func NewRunner(path string, logger *slog.Logger) *Runner {
	return &Runner{path: path, logger: logger}
}

// Args builds the gam argv for one invocation. Dry run and live mode share
// this construction.
func (r *Runner) Args(inv replayer.Invocation) []string {
	args := []string{
		"calendar", inv.Mailbox, "addevent",
		"summary", inv.Title,
		"start", inv.Start,
		"end", inv.End,
	}
	if inv.Description != "" {
		args = append(args, "description", inv.Description)
	}
	if inv.Attendees != "" {
		args = append(args, "attendee", inv.Attendees)
	}
	return args
}

// Create runs gam. A non-zero exit and an exec-level fault are both creation
// failures for the row.
func (r *Runner) Create(ctx context.Context, inv replayer.Invocation) error {
	out, err := runCommand(ctx, r.path, r.Args(inv))
	if err != nil {
		return fmt.Errorf("gam addevent failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	r.logger.Debug("gam addevent succeeded", "mailbox", inv.Mailbox, "title", inv.Title)
	return nil
}

// Describe renders the command line Create would run.
func (r *Runner) Describe(inv replayer.Invocation) string {
	return r.path + " " + strings.Join(r.Args(inv), " ")
}
