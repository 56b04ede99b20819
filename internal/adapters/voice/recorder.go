package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/nerrad567/garagegate/internal/adapters"
)

// Recorder captures a bounded window of audio.
type Recorder interface {
	// Record returns the captured audio. An empty result means silence.
	Record(ctx context.Context, window time.Duration) ([]byte, error)
}

// CommandRecorder runs an external capture program, such as arecord, that
// writes audio to stdout. The window length is appended as "-d <seconds>".
type CommandRecorder struct {
	Binary string
	Args   []string
}

// Record implements Recorder.
func (r *CommandRecorder) Record(ctx context.Context, window time.Duration) ([]byte, error) {
	secs := int(window.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	args := append(append([]string(nil), r.Args...), "-d", strconv.Itoa(secs))

	// Allow the recorder a little longer than the window to flush.
	rctx, cancel := context.WithTimeout(ctx, window+5*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(rctx, r.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited %d: %s", adapters.ErrUnavailable, r.Binary, exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%w: running %s: %v", adapters.ErrUnavailable, r.Binary, err)
	}
	return stdout.Bytes(), nil
}
