package review

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"lightbox/internal/items"
	"lightbox/internal/logging"
)

var commandContext = exec.CommandContext

// CommandLauncher resumes capture by running a configured command with the
// action token appended as its last argument. The command runs detached from
// the request that started it.
type CommandLauncher struct {
	command []string
	logger  *slog.Logger
}

// NewCommandLauncher returns nil when command is empty so callers get
// ErrNoLauncher from the service.
func NewCommandLauncher(command []string, logger *slog.Logger) *CommandLauncher {
	if len(command) == 0 {
		return nil
	}
	return &CommandLauncher{
		command: append([]string(nil), command...),
		logger:  logging.NewComponentLogger(logger, "capture-launcher"),
	}
}

// Launch starts the capture command.
func (l *CommandLauncher) Launch(ctx context.Context, token items.ActionToken) error {
	if l == nil || len(l.command) == 0 {
		return ErrNoLauncher
	}
	args := append(append([]string(nil), l.command[1:]...), string(token))
	cmd := commandContext(context.WithoutCancel(ctx), l.command[0], args...) //nolint:gosec
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", l.command[0], err)
	}
	l.logger.Info("capture resumed", logging.String("command", l.command[0]), logging.Int("pid", cmd.Process.Pid))
	go func() {
		if err := cmd.Wait(); err != nil {
			logging.WarnWithContext(l.logger, "capture command exited with error", "capture_command_failed",
				logging.String("command", l.command[0]),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check capture.command in the config"),
				logging.String(logging.FieldImpact, "the capture flow did not resume"),
			)
		}
	}()
	return nil
}
