// Package pidfile guards the daemon against running twice for the same
// pair of GPS sources, which would tick one monitor state from two writers.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Create when a live process owns the file
var ErrAlreadyRunning = errors.New("daemon already running")

// ErrInvalidPID is wrapped when the file holds no usable PID
var ErrInvalidPID = errors.New("invalid PID file")

// PIDFile represents a PID file for daemon process management
type PIDFile struct {
	path string
	pid  int
}

// New creates a PIDFile for the current process
func New(path string) *PIDFile {
	return &PIDFile{
		path: path,
		pid:  os.Getpid(),
	}
}

// Path returns the path to the PID file
func (p *PIDFile) Path() string {
	return p.path
}

// CheckRunning reports whether another live process owns the file, and its
// PID. A missing file or one without a usable PID, as left by a crash during
// the write, counts as not running.
func (p *PIDFile) CheckRunning() (bool, int, error) {
	pid, err := p.read()
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrInvalidPID) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return pid != p.pid && processAlive(pid), pid, nil
}

// Create writes the PID file, replacing a stale one
func (p *PIDFile) Create() error {
	running, pid, err := p.CheckRunning()
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("%w with PID %d", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(p.pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Remove deletes the PID file if it belongs to this process
func (p *PIDFile) Remove() error {
	pid, err := p.read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if errors.Is(err, ErrInvalidPID) {
		return p.ForceRemove()
	}
	if err == nil && pid != p.pid {
		return fmt.Errorf("PID file owned by PID %d, not removing", pid)
	}
	return os.Remove(p.path)
}

// ForceRemove deletes the PID file regardless of owner
func (p *PIDFile) ForceRemove() error {
	err := os.Remove(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (p *PIDFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s holds %q", ErrInvalidPID, p.path, s)
	}
	return pid, nil
}

// processAlive checks pid with signal 0
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
