package recorder

import (
	"context"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	logx "magneto/pkg/logx"
)

func TestCaptureCommandArgs(t *testing.T) {
	t.Parallel()
	c := NewCaptureCommand("/usr/bin/gnutv", "/etc/channels.conf", logx.Nop())

	got := c.args(2, "Arte", "/var/recordings/Documentary.ts", 45*time.Minute)
	want := []string{
		"-adapter", "2",
		"-channels", "/etc/channels.conf",
		"-out", "file", "/var/recordings/Documentary.ts",
		"-timeout", "2700",
		"Arte",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}

	// Sub-second timeouts round up to one second, never zero.
	got = c.args(0, "TF1", "out.ts", 100*time.Millisecond)
	if got[7] != "1" {
		t.Fatalf("timeout arg = %q, want %q", got[7], "1")
	}
}

func TestCaptureCommandLaunchCleanExit(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/true")
	}
	c := NewCaptureCommand("/bin/true", "/etc/channels.conf", logx.Nop())
	h, err := c.Launch(context.Background(), 0, "TF1", filepath.Join(t.TempDir(), "x.ts"), time.Second)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process never exited")
	}
	if err := h.Err(); err != nil {
		t.Fatalf("clean exit reported error: %v", err)
	}
	// Kill after exit is a no-op.
	if err := h.Kill(); err != nil {
		t.Fatalf("kill after exit: %v", err)
	}
}

func TestCaptureCommandLaunchErrorExit(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/false")
	}
	c := NewCaptureCommand("/bin/false", "/etc/channels.conf", logx.Nop())
	h, err := c.Launch(context.Background(), 0, "TF1", filepath.Join(t.TempDir(), "x.ts"), time.Second)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	<-h.Done()
	if h.Err() == nil {
		t.Fatal("non-zero exit reported no error")
	}
}

func TestCaptureCommandLaunchMissingBinary(t *testing.T) {
	t.Parallel()
	c := NewCaptureCommand("/nonexistent/gnutv", "/etc/channels.conf", logx.Nop())
	if _, err := c.Launch(context.Background(), 0, "TF1", "x.ts", time.Second); err == nil {
		t.Fatal("launching a missing binary should fail")
	}
}

func TestProcHandleKillRunningProcess(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sleep")
	}
	cmd := exec.Command("/bin/sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	h := &procHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()

	if err := h.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("killed process never reaped")
	}
	if h.Err() == nil {
		t.Fatal("killed process reported clean exit")
	}
	// Repeated kills stay silent.
	if err := h.Kill(); err != nil {
		t.Fatalf("second kill: %v", err)
	}
}
