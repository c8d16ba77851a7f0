package search

import (
	"context"
	"sync/atomic"

	"github.com/go-memprobe/memprobe/pkg/logflags"
	"github.com/go-memprobe/memprobe/pkg/memtypes"
	"github.com/go-memprobe/memprobe/pkg/proc"
	"github.com/sirupsen/logrus"
)

// defaultChunkSize is the read window of the initial scan. It is a
// multiple of every scalar width so no value straddles two chunks.
const defaultChunkSize = 64 * 1024

// ProgressSnapshot is a point-in-time sample of a running pass. All fields
// are monotonically non-decreasing within one run.
type ProgressSnapshot struct {
	// Fraction is the completed share of the pass in [0, 1].
	Fraction float64
	// RegionsScanned counts ranges fully processed.
	RegionsScanned uint64
	// AddressesScanned counts candidate addresses examined.
	AddressesScanned uint64
	// Matches is the running match count.
	Matches uint64
	// Heartbeat increments on every unit of engine work, proving liveness
	// even while Fraction is stuck on a slow region.
	Heartbeat uint64
}

// engine performs one scan pass over target memory. The orchestrator talks
// to it only through start methods, the atomic progress counters and the
// shared cancel flag; it never reaches into a pass in flight.
type engine struct {
	mem       proc.MemoryAccess
	typ       memtypes.DataType
	store     *resultStore
	chunkSize int
	log       *logrus.Entry

	// cancelFlag is the zero-latency cancellation channel: a word the
	// orchestrator writes and the innermost scan loop reads, with no call
	// crossing the engine boundary.
	cancelFlag uint32

	bytesTotal uint64
	bytesDone  uint64
	regions    uint64
	addresses  uint64
	matches    uint64
	heartbeat  uint64
}

func newEngine(mem proc.MemoryAccess, typ memtypes.DataType, store *resultStore) *engine {
	return &engine{
		mem:       mem,
		typ:       typ,
		store:     store,
		chunkSize: defaultChunkSize,
		log:       logflags.SearchLogger(),
	}
}

func (e *engine) cancelled() bool {
	return atomic.LoadUint32(&e.cancelFlag) != 0
}

func (e *engine) progress() ProgressSnapshot {
	total := atomic.LoadUint64(&e.bytesTotal)
	done := atomic.LoadUint64(&e.bytesDone)
	frac := 0.0
	if total > 0 {
		frac = float64(done) / float64(total)
		if frac > 1 {
			frac = 1
		}
	}
	return ProgressSnapshot{
		Fraction:         frac,
		RegionsScanned:   atomic.LoadUint64(&e.regions),
		AddressesScanned: atomic.LoadUint64(&e.addresses),
		Matches:          atomic.LoadUint64(&e.matches),
		Heartbeat:        atomic.LoadUint64(&e.heartbeat),
	}
}

// runInitial performs the first full scan: every width-aligned value inside
// the selected ranges is recorded. Unreadable stretches are skipped; the
// pass only errors when nothing at all could be read.
func (e *engine) runInitial(ctx context.Context, ranges []proc.MemRange) (Status, int) {
	width := e.typ.Size()
	var total uint64
	for _, r := range ranges {
		if r.End > r.Start {
			total += r.End - r.Start
		}
	}
	atomic.StoreUint64(&e.bytesTotal, total)
	e.log.Infof("initial scan: type=%s ranges=%d bytes=%d", e.typ, len(ranges), total)

	// Round the read window down to a multiple of the scalar width so no
	// value straddles two windows and every recorded address stays aligned.
	chunkSize := e.chunkSize - e.chunkSize%width
	if chunkSize < width {
		chunkSize = width
	}

	e.store.clear()
	buf := make([]byte, chunkSize)
	readableBytes := uint64(0)

	for _, r := range ranges {
		// Safe point: the cooperative signal is honored between regions.
		if ctx.Err() != nil {
			return StatusCancelled, 0
		}
		addr := alignUp(r.Start, uint64(width))
		for addr < r.End {
			if e.cancelled() {
				e.log.Info("initial scan cancelled")
				return StatusCancelled, 0
			}
			atomic.AddUint64(&e.heartbeat, 1)

			n := uint64(chunkSize)
			if addr+n > r.End {
				n = r.End - addr
			}
			chunk := buf[:n]
			nread, err := e.mem.ReadMemory(chunk, addr)
			if err != nil || nread == 0 {
				// Unmapped or protected; skip the rest of this window.
				atomic.AddUint64(&e.bytesDone, n)
				addr += n
				continue
			}
			chunk = chunk[:nread]
			readableBytes += uint64(nread)
			for off := 0; off+width <= len(chunk); off += width {
				atomic.AddUint64(&e.addresses, 1)
				e.store.add(NewResult(addr+uint64(off), chunk[off:off+width], e.typ))
				atomic.AddUint64(&e.matches, 1)
			}
			atomic.AddUint64(&e.bytesDone, n)
			addr += n
		}
		atomic.AddUint64(&e.regions, 1)
	}

	if readableBytes == 0 {
		if !e.mem.ProcessBound() {
			return StatusError, engineErrProcessGone
		}
		return StatusError, engineErrNoReadableMemory
	}
	e.log.Infof("initial scan complete: %d values recorded", e.store.total())
	return StatusCompleted, 0
}

// runRefine re-reads every recorded address and keeps the results whose
// old/new value pair satisfies cond. Addresses that can no longer be read
// are dropped from the set.
func (e *engine) runRefine(ctx context.Context, cond Condition, p1, p2 int64) (Status, int) {
	items := e.store.get(0, e.store.total())
	atomic.StoreUint64(&e.bytesTotal, uint64(len(items)))
	e.log.Infof("refine pass: condition=%s over %d results", cond, len(items))

	width := e.typ.Size()
	buf := make([]byte, width)
	kept := make([]Result, 0, len(items))

	for i, item := range items {
		if e.cancelled() {
			e.log.Info("refine pass cancelled")
			return StatusCancelled, 0
		}
		// Safe point every so often; per-item ctx checks would dominate
		// the loop.
		if i%1024 == 0 && ctx.Err() != nil {
			return StatusCancelled, 0
		}
		atomic.AddUint64(&e.heartbeat, 1)
		atomic.AddUint64(&e.addresses, 1)
		atomic.AddUint64(&e.bytesDone, 1)

		nread, err := e.mem.ReadMemory(buf, item.Address)
		if err != nil || nread < width {
			continue
		}
		newv, err := e.typ.DecodeInt(buf)
		if err != nil {
			continue
		}
		if cond.matches(item.Int(), newv, p1, p2) {
			kept = append(kept, NewResult(item.Address, buf, e.typ))
			atomic.AddUint64(&e.matches, 1)
		}
	}
	atomic.AddUint64(&e.regions, 1)

	if len(items) > 0 && !e.mem.ProcessBound() {
		return StatusError, engineErrProcessGone
	}
	e.store.replaceAll(kept)
	e.log.Infof("refine pass complete: %d of %d results kept", len(kept), len(items))
	return StatusCompleted, 0
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
