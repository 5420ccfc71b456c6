// Package launcher hands execution off to the supervised application command.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Run starts the configured application command in the foreground, wiring
// its stdio to ours, and blocks until it exits. The command shares nothing
// with the sync loop except the filesystem and the remote store.
func Run(ctx context.Context, command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty app command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %q: %w", command, err)
	}
	return nil
}
