// Package capture supervises local recording processes. Each recording is an
// ffmpeg passthrough copy of the owner's published stream into a local file.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const defaultGracePeriod = 10 * time.Second

// Handle identifies a supervised process.
type Handle struct {
	PID int
}

// Supervisor starts, tracks, and terminates capture processes.
type Supervisor interface {
	// Spawn starts a capture of sourceURL into destPath and returns the
	// process handle. Spawn failures are reported immediately.
	Spawn(sourceURL, destPath string) (Handle, error)

	// Terminate signals the process for graceful shutdown and waits a
	// bounded grace period. A process that already exited or vanished is
	// not an error.
	Terminate(handle Handle) error

	// Size reports the artifact size at destPath.
	Size(destPath string) (int64, error)
}

// FFmpeg runs recordings through a local ffmpeg binary.
type FFmpeg struct {
	binary string
	grace  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	running map[int]*exec.Cmd
	done    map[int]chan struct{}
}

// FFmpegOption mutates FFmpeg supervisor configuration.
type FFmpegOption func(*FFmpeg)

// WithBinary overrides the ffmpeg binary path.
func WithBinary(path string) FFmpegOption {
	return func(f *FFmpeg) {
		if path != "" {
			f.binary = path
		}
	}
}

// WithGracePeriod bounds how long Terminate waits after signalling before
// killing the process outright.
func WithGracePeriod(grace time.Duration) FFmpegOption {
	return func(f *FFmpeg) {
		if grace > 0 {
			f.grace = grace
		}
	}
}

// WithLogger installs a logger for process lifecycle events.
func WithLogger(logger *slog.Logger) FFmpegOption {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFFmpeg builds a supervisor spawning ffmpeg processes.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	supervisor := &FFmpeg{
		binary:  "ffmpeg",
		grace:   defaultGracePeriod,
		logger:  slog.Default(),
		running: make(map[int]*exec.Cmd),
		done:    make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(supervisor)
	}
	return supervisor
}

// Spawn starts ffmpeg copying the source stream into destPath without
// re-encoding. The aac_adtstoasc bitstream filter repairs AAC framing when
// recording an HLS source into an MP4 container.
func (f *FFmpeg) Spawn(sourceURL, destPath string) (Handle, error) {
	if sourceURL == "" || destPath == "" {
		return Handle{}, errors.New("source url and destination path are required")
	}
	cmd := exec.Command(f.binary,
		"-i", sourceURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-y",
		destPath,
	)
	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("spawn capture process: %w", err)
	}

	pid := cmd.Process.Pid
	exited := make(chan struct{})
	f.mu.Lock()
	f.running[pid] = cmd
	f.done[pid] = exited
	f.mu.Unlock()

	go func() {
		err := cmd.Wait()
		close(exited)
		f.mu.Lock()
		delete(f.running, pid)
		delete(f.done, pid)
		f.mu.Unlock()
		if err != nil {
			f.logger.Warn("capture process exited with error", "pid", pid, "error", err)
		} else {
			f.logger.Info("capture process exited", "pid", pid)
		}
	}()

	f.logger.Info("capture process started", "pid", pid, "source", sourceURL, "dest", destPath)
	return Handle{PID: pid}, nil
}

// Terminate sends SIGTERM so ffmpeg can finalize the container, then waits
// up to the grace period before killing. Unknown or vanished processes are
// treated as already stopped.
func (f *FFmpeg) Terminate(handle Handle) error {
	if handle.PID <= 0 {
		return nil
	}
	f.mu.Lock()
	cmd, tracked := f.running[handle.PID]
	exited := f.done[handle.PID]
	f.mu.Unlock()

	if !tracked {
		// Process from a previous supervisor run; signal best-effort.
		err := syscall.Kill(handle.PID, syscall.SIGTERM)
		if err != nil && !errors.Is(err, syscall.ESRCH) && !errors.Is(err, syscall.EPERM) {
			return fmt.Errorf("signal capture process %d: %w", handle.PID, err)
		}
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal capture process %d: %w", handle.PID, err)
	}

	select {
	case <-exited:
		return nil
	case <-time.After(f.grace):
		f.logger.Warn("capture process did not exit within grace period", "pid", handle.PID)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill capture process %d: %w", handle.PID, err)
		}
		<-exited
		return nil
	}
}

// Size reports the current artifact size.
func (f *FFmpeg) Size(destPath string) (int64, error) {
	info, err := os.Stat(destPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

var _ Supervisor = (*FFmpeg)(nil)
