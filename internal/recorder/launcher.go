package recorder

import (
	"context"
	"os/exec"
	"strconv"
	"sync"
	"time"

	logx "magneto/pkg/logx"
)

// ProcessHandle exposes a spawned capture process to the scheduler:
// asynchronous exit notification and forcible termination.
type ProcessHandle interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err reports the exit error. Only valid after Done is closed;
	// nil means the process exited with status 0.
	Err() error
	// Kill terminates the process. Safe to call more than once.
	Kill() error
}

// Launcher starts one external capture process per job. Success is
// "process exited", not "file contains valid data" — no output parsing.
type Launcher interface {
	Launch(ctx context.Context, device int, channel, outputPath string, timeout time.Duration) (ProcessHandle, error)
}

// CaptureCommand launches a gnutv-compatible capture binary with direct
// argv (no shell). The binary's own -timeout makes it stop at the window
// end; the scheduler's watchdog covers the case where it does not.
type CaptureCommand struct {
	Command      string
	ChannelsConf string

	log logx.Logger
}

func NewCaptureCommand(command, channelsConf string, log logx.Logger) *CaptureCommand {
	return &CaptureCommand{Command: command, ChannelsConf: channelsConf, log: log}
}

func (c *CaptureCommand) args(device int, channel, outputPath string, timeout time.Duration) []string {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	return []string{
		"-adapter", strconv.Itoa(device),
		"-channels", c.ChannelsConf,
		"-out", "file", outputPath,
		"-timeout", strconv.Itoa(secs),
		channel,
	}
}

func (c *CaptureCommand) Launch(ctx context.Context, device int, channel, outputPath string, timeout time.Duration) (ProcessHandle, error) {
	args := c.args(device, channel, outputPath, timeout)
	cmd := exec.CommandContext(ctx, c.Command, args...)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c.log.Info("capture process started",
		logx.Int("pid", cmd.Process.Pid),
		logx.Int("device", device),
		logx.String("channel", channel),
		logx.String("out", outputPath),
		logx.Duration("timeout", timeout))

	h := &procHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

type procHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

func (h *procHandle) Done() <-chan struct{} { return h.done }

func (h *procHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *procHandle) Kill() error {
	h.killOnce.Do(func() {
		select {
		case <-h.done:
			// already exited
		default:
			if h.cmd.Process != nil {
				h.killErr = h.cmd.Process.Kill()
			}
		}
	})
	return h.killErr
}
