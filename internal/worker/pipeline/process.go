package pipeline

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// newCommand builds a command that is terminated with SIGTERM on ctx
// cancellation and killed if it is still alive after grace.
func newCommand(ctx context.Context, grace time.Duration, dir, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	configureProcess(cmd)
	cmd.Cancel = func() error {
		return terminate(cmd)
	}
	cmd.WaitDelay = grace
	return cmd
}

func describe(name string, err error, stderr *tailBuffer) string {
	msg := name + ": " + err.Error()
	if tail := stderr.String(); tail != "" {
		msg += ": " + tail
	}
	return msg
}
