package scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
)

// Zbar is a Camera backed by V4L2 devices and the zbarcam decoder.
type Zbar struct {
	// Binary is the zbarcam executable, "zbarcam" when empty.
	Binary string
	// DevDir holds the video device nodes, "/dev" when empty.
	DevDir string
	// SysDir holds the video4linux class directory, "/sys/class/video4linux" when empty.
	SysDir string
}

func (z *Zbar) binary() string {
	if z.Binary == "" {
		return "zbarcam"
	}
	return z.Binary
}

func (z *Zbar) devDir() string {
	if z.DevDir == "" {
		return "/dev"
	}
	return z.DevDir
}

func (z *Zbar) sysDir() string {
	if z.SysDir == "" {
		return "/sys/class/video4linux"
	}
	return z.SysDir
}

// Devices lists /dev/video* nodes labelled with their driver-reported names.
func (z *Zbar) Devices(ctx context.Context) ([]Device, error) {
	paths, err := filepath.Glob(filepath.Join(z.devDir(), "video*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	devices := make([]Device, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		label := name
		if raw, err := os.ReadFile(filepath.Join(z.sysDir(), name, "name")); err == nil {
			label = strings.TrimSpace(string(raw))
		}
		devices = append(devices, Device{ID: path, Label: label})
	}
	if len(devices) == 0 {
		return nil, ErrNoCamera
	}
	return devices, nil
}

// Open probes the device node and starts zbarcam on it.
func (z *Zbar) Open(ctx context.Context, deviceID string) (Decoder, error) {
	probe, err := os.OpenFile(deviceID, os.O_RDWR, 0)
	if err != nil {
		return nil, deviceError(err)
	}
	probe.Close()

	cmd := exec.CommandContext(ctx, z.binary(), "--raw", "--nodisplay", deviceID)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	d := newZbarDecoder(cmd)
	cmd.Stderr = &d.stderr
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("zbarcam is not installed: %w", err)
		}
		return nil, err
	}
	go d.read(stdout)
	return d, nil
}

func deviceError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNoCamera, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %v", ErrCameraBusy, err)
	}
	return err
}

// stderrError maps zbarcam's diagnostics onto the camera sentinels.
func stderrError(msg string) error {
	msg = strings.TrimSpace(msg)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "permission denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "no such device"):
		return fmt.Errorf("%w: %s", ErrNoCamera, msg)
	case strings.Contains(lower, "resource busy"):
		return fmt.Errorf("%w: %s", ErrCameraBusy, msg)
	case msg == "":
		return io.ErrUnexpectedEOF
	}
	return fmt.Errorf("zbarcam: %s", msg)
}

// zbarDecoder owns the stdout reader goroutine. cmd.Wait runs only after that goroutine has
// stopped reading.
type zbarDecoder struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer

	codes   chan string
	stop    chan struct{}
	drained chan struct{}

	stopOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

func newZbarDecoder(cmd *exec.Cmd) *zbarDecoder {
	return &zbarDecoder{
		cmd:     cmd,
		codes:   make(chan string),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

func (d *zbarDecoder) read(stdout io.Reader) {
	defer close(d.drained)
	defer close(d.codes)
	lines := bufio.NewScanner(stdout)
	for lines.Scan() {
		select {
		case d.codes <- lines.Text():
		case <-d.stop:
			return
		}
	}
}

func (d *zbarDecoder) wait() error {
	<-d.drained
	d.waitOnce.Do(func() { d.waitErr = d.cmd.Wait() })
	return d.waitErr
}

func (d *zbarDecoder) Next(ctx context.Context) (string, error) {
	select {
	case code, ok := <-d.codes:
		if ok {
			return code, nil
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
	_ = d.wait()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", stderrError(d.stderr.String())
}

func (d *zbarDecoder) Close() error {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	err := d.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
