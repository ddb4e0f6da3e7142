// Package power provides the shutdown trigger invoked after a recording
// with the shutdown post-action completes.
package power

import (
	"context"
	"os/exec"
	"strings"

	"github.com/coreos/go-systemd/v22/login1"

	logx "magneto/pkg/logx"
)

// Trigger powers the host off. Failures are for the caller to log; they are
// never escalated into the job outcome.
type Trigger interface {
	Shutdown(ctx context.Context) error
}

// New returns a command trigger when command is non-empty, otherwise the
// logind D-Bus trigger.
func New(command string, log logx.Logger) Trigger {
	if strings.TrimSpace(command) != "" {
		return &CommandTrigger{Command: command, log: log}
	}
	return &LogindTrigger{log: log}
}

// LogindTrigger asks systemd-logind to power the machine off over D-Bus.
type LogindTrigger struct {
	log logx.Logger
}

func (t *LogindTrigger) Shutdown(ctx context.Context) error {
	conn, err := login1.New()
	if err != nil {
		return err
	}
	defer conn.Close()
	t.log.Info("requesting poweroff via logind")
	return conn.PowerOffWithContext(ctx, false)
}

// CommandTrigger shells out to a configured poweroff command. The command
// is split on whitespace; no shell is involved.
type CommandTrigger struct {
	Command string

	log logx.Logger
}

func (t *CommandTrigger) Shutdown(ctx context.Context) error {
	fields := strings.Fields(t.Command)
	if len(fields) == 0 {
		return nil
	}
	t.log.Info("running poweroff command", logx.String("command", t.Command))
	return exec.CommandContext(ctx, fields[0], fields[1:]...).Run()
}
