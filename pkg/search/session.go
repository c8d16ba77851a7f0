package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-memprobe/memprobe/pkg/logflags"
	"github.com/go-memprobe/memprobe/pkg/memtypes"
	"github.com/go-memprobe/memprobe/pkg/proc"
	"github.com/sirupsen/logrus"
)

// Status is the lifecycle state of a search session.
type Status uint8

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Terminal returns true for the three end states of a pass.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// defaultPollInterval is the sampling period of Poll.
const defaultPollInterval = 100 * time.Millisecond

// Session owns one progressive search: an initial scan followed by refine
// passes, each a fresh RUNNING episode ending in a terminal status. A
// session is a single logical conversation; starting a pass while one is
// running is a protocol error and is rejected.
type Session struct {
	mem proc.MemoryAccess
	log *logrus.Entry

	// PollInterval overrides the 100ms sampling period; tests shorten it.
	PollInterval time.Duration

	// ChunkSize overrides the read window of the initial scan when positive.
	// The engine rounds it down to a multiple of the scan type's width.
	ChunkSize int

	// onComplete, if set, is invoked exactly once per pass when Poll first
	// observes a terminal status.
	onComplete func(Status, int)

	mu        sync.Mutex
	status    Status
	errCode   int
	eng       *engine
	store     *resultStore
	dataType  memtypes.DataType
	cancelRun context.CancelFunc
	delivered bool
}

// NewSession returns an idle session reading through mem.
func NewSession(mem proc.MemoryAccess) *Session {
	return &Session{
		mem:          mem,
		log:          logflags.SearchLogger(),
		PollInterval: defaultPollInterval,
		status:       StatusIdle,
		store:        newResultStore(),
	}
}

// SetCompletionFunc installs the callback delivered on the first terminal
// observation of each pass. Must be called while no pass is running.
func (s *Session) SetCompletionFunc(fn func(status Status, engineErrCode int)) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// StartInitial begins a full scan of the given ranges for values of type
// dt. It fails fast, leaving the session idle, when no process is bound or
// the range selection is empty.
func (s *Session) StartInitial(dt memtypes.DataType, ranges []proc.MemRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusRunning {
		return &StartError{Reason: "a pass is already running"}
	}
	if !s.mem.ProcessBound() {
		return &StartError{Reason: "no target process bound"}
	}
	if len(ranges) == 0 {
		return &StartError{Reason: "no memory ranges selected"}
	}
	if !dt.Valid() {
		return &StartError{Reason: "invalid data type"}
	}

	s.dataType = dt
	s.store = newResultStore()
	eng := newEngine(s.mem, dt, s.store)
	if s.ChunkSize > 0 {
		eng.chunkSize = s.ChunkSize
	}
	s.beginPass(eng, func(ctx context.Context) (Status, int) {
		return eng.runInitial(ctx, ranges)
	})
	return nil
}

// StartRefine begins a refinement pass narrowing the current match set.
// It fails fast when the current match count is zero or cond is not a
// refine-eligible verb.
func (s *Session) StartRefine(cond Condition, param1, param2 int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusRunning {
		return &StartError{Reason: "a pass is already running"}
	}
	if !cond.Refinable() {
		return &StartError{Reason: "condition " + cond.String() + " cannot refine"}
	}
	if s.store.total() == 0 {
		return &StartError{Reason: "no prior matches to refine"}
	}
	if !s.mem.ProcessBound() {
		return &StartError{Reason: "no target process bound"}
	}

	eng := newEngine(s.mem, s.dataType, s.store)
	s.beginPass(eng, func(ctx context.Context) (Status, int) {
		return eng.runRefine(ctx, cond, param1, param2)
	})
	return nil
}

// beginPass transitions to RUNNING and launches the engine. Caller holds
// s.mu.
func (s *Session) beginPass(eng *engine, run func(context.Context) (Status, int)) {
	ctx, cancel := context.WithCancel(context.Background())
	s.eng = eng
	s.cancelRun = cancel
	s.status = StatusRunning
	s.errCode = 0
	s.delivered = false

	go func() {
		st, code := run(ctx)
		cancel()
		s.mu.Lock()
		s.status = st
		s.errCode = code
		s.mu.Unlock()
	}()
}

// Cancel requests cancellation of the running pass through both channels
// at once: the shared flag the engine reads in its innermost loop, and the
// cooperative context it checks at safe points. It is a no-op when nothing
// is running.
func (s *Session) Cancel() {
	s.mu.Lock()
	eng, cancel, running := s.eng, s.cancelRun, s.status == StatusRunning
	s.mu.Unlock()
	if !running || eng == nil {
		return
	}
	atomic.StoreUint32(&eng.cancelFlag, 1)
	cancel()
	s.log.Info("cancellation requested")
}

// Status returns the current lifecycle state. Once a pass has reached a
// terminal status, repeated calls keep returning that same status until a
// new pass starts.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ErrorCode returns the opaque engine error code of the last pass, zero
// when there was none.
func (s *Session) ErrorCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCode
}

// Progress samples the running (or last) pass.
func (s *Session) Progress() ProgressSnapshot {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil {
		return ProgressSnapshot{}
	}
	return eng.progress()
}

// MatchCount returns the size of the current match set.
func (s *Session) MatchCount() int {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	return store.total()
}

// Results returns up to size matches starting at start.
func (s *Session) Results(start, size int) []Result {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	return store.get(start, size)
}

// DataType returns the scalar type of the current match set.
func (s *Session) DataType() memtypes.DataType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataType
}

// Poll samples progress and status at the session's poll interval until a
// terminal status is observed, then returns it. onProgress, if non-nil, is
// called at every sample including the terminal one. The completion
// callback fires on the first terminal observation only; polling again
// after termination returns the same status without re-firing it. Polling
// a session that never started a pass returns idle immediately; there is
// nothing to wait for.
//
// Cancelling ctx abandons polling without affecting the engine; stopping
// the observer never stops the scan.
func (s *Session) Poll(ctx context.Context, onProgress func(ProgressSnapshot, Status)) Status {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st := s.Status()
		if onProgress != nil {
			onProgress(s.Progress(), st)
		}
		if st.Terminal() {
			s.deliverCompletion(st)
			return st
		}
		if st == StatusIdle {
			return st
		}
		select {
		case <-ctx.Done():
			return s.Status()
		case <-ticker.C:
		}
	}
}

func (s *Session) deliverCompletion(st Status) {
	s.mu.Lock()
	if s.delivered {
		s.mu.Unlock()
		return
	}
	s.delivered = true
	fn := s.onComplete
	code := s.errCode
	s.mu.Unlock()
	if fn != nil {
		fn(st, code)
	}
}
