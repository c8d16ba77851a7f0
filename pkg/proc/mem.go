// Package proc provides access to the memory of a running target process.
package proc

import "errors"

// MemoryAccess is the port through which every other subsystem touches the
// target. Implementations never panic; a faulting read (unmapped page,
// permission, process gone) is reported as an error and the caller decides
// how much of a partial read is usable.
type MemoryAccess interface {
	// ReadMemory reads len(buf) bytes of target memory starting at addr.
	// It returns the number of bytes read, which may be less than len(buf)
	// if the range crosses into an unmapped page.
	ReadMemory(buf []byte, addr uint64) (n int, err error)

	// MemoryRegions returns the target's region directory in the order the
	// kernel reports it.
	MemoryRegions() ([]MemRegion, error)

	// ProcessBound reports whether a target process is currently bound and
	// alive.
	ProcessBound() bool
}

// MemRegion describes one mapped region of the target.
type MemRegion struct {
	Start  uint64
	End    uint64
	Perms  string
	Offset uint64
	Path   string
}

// Size returns the region length in bytes.
func (r MemRegion) Size() uint64 {
	return r.End - r.Start
}

// Readable returns true if the region is mapped with read permission.
func (r MemRegion) Readable() bool {
	return len(r.Perms) > 0 && r.Perms[0] == 'r'
}

// Writable returns true if the region is mapped with write permission.
func (r MemRegion) Writable() bool {
	return len(r.Perms) > 1 && r.Perms[1] == 'w'
}

// MemRange is a half-open [Start, End) address interval selected for
// scanning.
type MemRange struct {
	Start uint64
	End   uint64
}

// ErrNoRegions is returned by QueryRegionsRetry when every attempt failed.
var ErrNoRegions = errors.New("could not read target region directory")

// QueryRegionsRetry reads the region directory, retrying up to attempts
// times. /proc/pid/maps reads can fail transiently while the target is
// mutating its address space.
func QueryRegionsRetry(mem MemoryAccess, attempts int) ([]MemRegion, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		regions, err := mem.MemoryRegions()
		if err == nil {
			return regions, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNoRegions
	}
	return nil, lastErr
}
