package power

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "magneto/pkg/logx"
)

func TestNewPicksTrigger(t *testing.T) {
	t.Parallel()
	if _, ok := New("", logx.Nop()).(*LogindTrigger); !ok {
		t.Fatal("empty command should select the logind trigger")
	}
	if _, ok := New("/sbin/poweroff", logx.Nop()).(*CommandTrigger); !ok {
		t.Fatal("non-empty command should select the command trigger")
	}
}

func TestCommandTriggerRunsCommand(t *testing.T) {
	t.Parallel()
	marker := filepath.Join(t.TempDir(), "fired")
	tr := &CommandTrigger{Command: "/usr/bin/touch " + marker, log: logx.Nop()}

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("command did not run: %v", err)
	}
}

func TestCommandTriggerReportsFailure(t *testing.T) {
	t.Parallel()
	tr := &CommandTrigger{Command: "/nonexistent/poweroff", log: logx.Nop()}
	if err := tr.Shutdown(context.Background()); err == nil {
		t.Fatal("missing command should fail")
	}
}

func TestCommandTriggerEmptyIsNoop(t *testing.T) {
	t.Parallel()
	tr := &CommandTrigger{Command: "   ", log: logx.Nop()}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("blank command: %v", err)
	}
}

func TestCommandTriggerHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	tr := &CommandTrigger{Command: "/bin/sleep 60", log: logx.Nop()}
	if err := tr.Shutdown(ctx); err == nil {
		t.Fatal("context timeout should kill the command")
	}
}
