package search

import (
	"sort"
	"sync"

	"github.com/go-memprobe/memprobe/pkg/memtypes"
)

// Result is one recorded match: an address, the raw bytes observed there
// (little-endian, the widest kind is 8 bytes) and the type they were
// recorded as.
type Result struct {
	Address uint64
	Value   [8]byte
	Type    memtypes.DataType
}

// NewResult records the first len bytes of raw at addr.
func NewResult(addr uint64, raw []byte, dt memtypes.DataType) Result {
	r := Result{Address: addr, Type: dt}
	copy(r.Value[:], raw)
	return r
}

// Int decodes the recorded bytes as the recorded type.
func (r Result) Int() int64 {
	v, _ := r.Type.DecodeInt(r.Value[:])
	return v
}

// resultStore holds the match set of one search session. All methods are
// safe for one writer (the engine) and concurrent readers.
type resultStore struct {
	mu    sync.RWMutex
	items []Result
}

func newResultStore() *resultStore {
	return &resultStore{}
}

func (s *resultStore) add(r Result) {
	s.mu.Lock()
	s.items = append(s.items, r)
	s.mu.Unlock()
}

func (s *resultStore) total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// get returns up to size results starting at start.
func (s *resultStore) get(start, size int) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if start >= len(s.items) || start < 0 || size <= 0 {
		return nil
	}
	end := start + size
	if end > len(s.items) {
		end = len(s.items)
	}
	out := make([]Result, end-start)
	copy(out, s.items[start:end])
	return out
}

// replaceAll installs a new match set, as produced by a refine pass.
func (s *resultStore) replaceAll(items []Result) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

func (s *resultStore) clear() {
	s.replaceAll(nil)
}

// removeBatch deletes the results at the given indices. Indices are
// deduplicated and out-of-range entries ignored.
func (s *resultStore) removeBatch(indices []int) {
	if len(indices) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	write := -1
	del := 0
	for read := 0; read < len(s.items); read++ {
		for del < len(sorted) && sorted[del] < read {
			del++
		}
		if del < len(sorted) && sorted[del] == read {
			if write < 0 {
				write = read
			}
			continue
		}
		if write >= 0 {
			s.items[write] = s.items[read]
			write++
		}
	}
	if write >= 0 {
		s.items = s.items[:write]
	}
}

// keepOnly retains exactly the results at the given indices. When the keep
// set is the smaller side it rebuilds the store from the kept items,
// otherwise it batch-deletes the complement.
func (s *resultStore) keepOnly(keep []int) {
	s.mu.RLock()
	total := len(s.items)
	s.mu.RUnlock()

	if len(keep) == 0 {
		s.clear()
		return
	}
	removeCount := total - len(keep)
	if removeCount <= 0 {
		return
	}

	if len(keep) <= removeCount {
		sorted := append([]int(nil), keep...)
		sort.Ints(sorted)
		kept := make([]Result, 0, len(sorted))
		s.mu.Lock()
		for _, idx := range sorted {
			if idx >= 0 && idx < len(s.items) {
				kept = append(kept, s.items[idx])
			}
		}
		s.items = kept
		s.mu.Unlock()
		return
	}

	keepSet := make(map[int]struct{}, len(keep))
	for _, idx := range keep {
		keepSet[idx] = struct{}{}
	}
	remove := make([]int, 0, removeCount)
	for i := 0; i < total; i++ {
		if _, ok := keepSet[i]; !ok {
			remove = append(remove, i)
		}
	}
	s.removeBatch(remove)
}
