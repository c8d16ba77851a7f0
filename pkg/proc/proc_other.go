//go:build !linux
// +build !linux

package proc

import (
	"errors"
	"runtime"
)

// LinuxProcess is only available on Linux.
type LinuxProcess struct{}

// Attach is unsupported on this platform.
func Attach(pid int) (*LinuxProcess, error) {
	return nil, errors.New("attaching to a process is not supported on " + runtime.GOOS)
}

func (p *LinuxProcess) Pid() int                            { return 0 }
func (p *LinuxProcess) ProcessBound() bool                  { return false }
func (p *LinuxProcess) ReadMemory([]byte, uint64) (int, error) {
	return 0, errors.New("not supported")
}
func (p *LinuxProcess) MemoryRegions() ([]MemRegion, error) {
	return nil, errors.New("not supported")
}
func (p *LinuxProcess) Close() error { return nil }
