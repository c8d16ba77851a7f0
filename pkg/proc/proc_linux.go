//go:build linux
// +build linux

package proc

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"github.com/go-memprobe/memprobe/pkg/logflags"
	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"
)

// LinuxProcess reads the memory of a live process through process_vm_readv,
// falling back to /proc/<pid>/mem when the syscall is not usable. Reading
// does not stop the target; values can change between two reads.
type LinuxProcess struct {
	pid int
	log *logrus.Entry

	memOnce sync.Once
	memFile *os.File
	memErr  error

	vmReadBroken bool
}

// Attach binds a LinuxProcess to pid. The process is not stopped and no
// ptrace attachment is made; reads require the same credentials ptrace
// would.
func Attach(pid int) (*LinuxProcess, error) {
	if err := sys.Kill(pid, 0); err != nil && err != sys.EPERM {
		return nil, fmt.Errorf("no process with pid %d: %v", pid, err)
	}
	p := &LinuxProcess{pid: pid, log: logflags.ProcLogger()}
	p.log.Debugf("bound to pid %d", pid)
	return p, nil
}

// Pid returns the bound process id.
func (p *LinuxProcess) Pid() int {
	return p.pid
}

// ProcessBound reports whether the target is still alive.
func (p *LinuxProcess) ProcessBound() bool {
	err := sys.Kill(p.pid, 0)
	return err == nil || err == sys.EPERM
}

// ReadMemory reads len(buf) bytes at addr from the target.
func (p *LinuxProcess) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if !p.vmReadBroken {
		n, err := processVMRead(p.pid, uintptr(addr), buf)
		switch err {
		case nil:
			return n, nil
		case sys.ENOSYS, sys.EPERM:
			// Seccomp filters and Yama can deny process_vm_readv while
			// still allowing /proc/<pid>/mem.
			p.vmReadBroken = true
			p.log.Debugf("process_vm_readv unavailable (%v), falling back to /proc/%d/mem", err, p.pid)
		default:
			return 0, err
		}
	}
	f, err := p.openMem()
	if err != nil {
		return 0, err
	}
	return f.ReadAt(buf, int64(addr))
}

// MemoryRegions parses /proc/<pid>/maps into the region directory.
func (p *LinuxProcess) MemoryRegions() ([]MemRegion, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMaps(f)
}

func (p *LinuxProcess) openMem() (*os.File, error) {
	p.memOnce.Do(func() {
		p.memFile, p.memErr = os.Open(fmt.Sprintf("/proc/%d/mem", p.pid))
	})
	return p.memFile, p.memErr
}

// Close releases the /proc file descriptor, if one was opened.
func (p *LinuxProcess) Close() error {
	if p.memFile != nil {
		return p.memFile.Close()
	}
	return nil
}

type remoteIovec struct {
	base uintptr
	len  uintptr
}

// processVMRead calls process_vm_readv
func processVMRead(pid int, addr uintptr, data []byte) (int, error) {
	lenIov := uint64(len(data))
	localIov := sys.Iovec{Base: &data[0], Len: lenIov}
	remoteIov := remoteIovec{base: addr, len: uintptr(lenIov)}
	n, _, err := syscall.Syscall6(sys.SYS_PROCESS_VM_READV, uintptr(pid), uintptr(unsafe.Pointer(&localIov)), 1, uintptr(unsafe.Pointer(&remoteIov)), 1, 0)
	if err != syscall.Errno(0) {
		return 0, err
	}
	return int(n), nil
}
