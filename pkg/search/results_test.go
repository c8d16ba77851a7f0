package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-memprobe/memprobe/pkg/memtypes"
)

func storeWith(addrs ...uint64) *resultStore {
	s := newResultStore()
	for _, addr := range addrs {
		s.add(NewResult(addr, []byte{byte(addr), 0, 0, 0}, memtypes.U32))
	}
	return s
}

func addresses(s *resultStore) []uint64 {
	items := s.get(0, s.total())
	out := make([]uint64, len(items))
	for i, r := range items {
		out[i] = r.Address
	}
	return out
}

func TestResultInt(t *testing.T) {
	r := NewResult(0x1000, []byte{0xff, 0xff, 0xff, 0xff}, memtypes.I32)
	if r.Int() != -1 {
		t.Errorf("expected -1, got %d", r.Int())
	}
}

func TestStoreGetWindow(t *testing.T) {
	s := storeWith(1, 2, 3, 4, 5)

	if got := addresses(s); !cmp.Equal(got, []uint64{1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected contents %v", got)
	}
	if got := s.get(3, 10); len(got) != 2 || got[0].Address != 4 {
		t.Errorf("window past the end must truncate, got %v", got)
	}
	if got := s.get(10, 5); got != nil {
		t.Errorf("window beyond the end must be empty, got %v", got)
	}
	if got := s.get(-1, 5); got != nil {
		t.Errorf("negative start must be empty, got %v", got)
	}
}

func TestStoreRemoveBatch(t *testing.T) {
	s := storeWith(1, 2, 3, 4, 5, 6)
	s.removeBatch([]int{0, 2, 5})
	if diff := cmp.Diff([]uint64{2, 4, 5}, addresses(s)); diff != "" {
		t.Errorf("removeBatch mismatch (-want +got):\n%s", diff)
	}

	s = storeWith(1, 2, 3)
	s.removeBatch([]int{7, 2, 2})
	if diff := cmp.Diff([]uint64{1, 2}, addresses(s)); diff != "" {
		t.Errorf("duplicate and out-of-range indices (-want +got):\n%s", diff)
	}

	s = storeWith(1, 2, 3)
	s.removeBatch(nil)
	if s.total() != 3 {
		t.Errorf("empty batch must not change the store, total=%d", s.total())
	}
}

func TestStoreKeepOnly(t *testing.T) {
	// Keep set smaller than the remove set: rebuild path.
	s := storeWith(1, 2, 3, 4, 5, 6, 7, 8)
	s.keepOnly([]int{1, 6})
	if diff := cmp.Diff([]uint64{2, 7}, addresses(s)); diff != "" {
		t.Errorf("keepOnly rebuild mismatch (-want +got):\n%s", diff)
	}

	// Keep set larger than the remove set: batch-delete path.
	s = storeWith(1, 2, 3, 4, 5, 6, 7, 8)
	s.keepOnly([]int{0, 1, 2, 3, 4, 5})
	if diff := cmp.Diff([]uint64{1, 2, 3, 4, 5, 6}, addresses(s)); diff != "" {
		t.Errorf("keepOnly delete mismatch (-want +got):\n%s", diff)
	}

	s = storeWith(1, 2, 3)
	s.keepOnly(nil)
	if s.total() != 0 {
		t.Errorf("empty keep set must clear the store, total=%d", s.total())
	}

	s = storeWith(1, 2, 3)
	s.keepOnly([]int{0, 1, 2})
	if s.total() != 3 {
		t.Errorf("keeping everything must change nothing, total=%d", s.total())
	}
}

func TestStoreReplaceAll(t *testing.T) {
	s := storeWith(1, 2, 3)
	s.replaceAll([]Result{NewResult(9, []byte{9, 0, 0, 0}, memtypes.U32)})
	if diff := cmp.Diff([]uint64{9}, addresses(s)); diff != "" {
		t.Errorf("replaceAll mismatch (-want +got):\n%s", diff)
	}
	s.clear()
	if s.total() != 0 {
		t.Errorf("clear must empty the store, total=%d", s.total())
	}
}
