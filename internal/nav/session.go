package nav

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/goradar/internal/geo"
)

// Session owns a Navigator and serializes every mutation through a single
// goroutine. Fix producers and the render loop never block each other:
// Submit is a non-blocking channel send and Snapshot is an atomic load.
type Session struct {
	nav   *Navigator
	fixes chan Fix
	cmds  chan command

	seq     atomic.Uint64
	dropped atomic.Uint64
	snap    atomic.Pointer[State]
	track   atomic.Pointer[[]geo.Point]

	listenersMu sync.RWMutex
	listeners   []func(State)
}

type command struct {
	apply func(*Navigator) error
	done  chan error
}

// NewSession creates a session. queueSize bounds the number of fixes that may
// wait for processing; extra fixes are dropped and counted.
func NewSession(cfg Config, queueSize int) *Session {
	if queueSize < 1 {
		queueSize = 16
	}
	s := &Session{
		nav:   NewNavigator(cfg),
		fixes: make(chan Fix, queueSize),
		cmds:  make(chan command),
	}
	s.publish()
	return s
}

// OnUpdate registers fn to be called with every new snapshot. Callbacks run on
// the session goroutine and must not block.
func (s *Session) OnUpdate(fn func(State)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Submit queues a fix for processing and stamps its arrival order. It returns
// false if the queue was full and the fix was dropped.
func (s *Session) Submit(f Fix) bool {
	f.Seq = s.seq.Add(1)
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	select {
	case s.fixes <- f:
		return true
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			log.Printf("[nav] fix queue full, %d fixes dropped", n)
		}
		return false
	}
}

// SetDestination replaces the destination. The reset of smoothing and heading
// state happens on the session goroutine, between two fixes.
func (s *Session) SetDestination(ctx context.Context, p geo.Point) error {
	if err := p.Check(); err != nil {
		return err
	}
	return s.do(ctx, func(n *Navigator) error { return n.SetDestination(p) })
}

// ClearDestination returns the session to idle.
func (s *Session) ClearDestination(ctx context.Context) error {
	return s.do(ctx, func(n *Navigator) error {
		n.ClearDestination()
		return nil
	})
}

func (s *Session) do(ctx context.Context, fn func(*Navigator) error) error {
	cmd := command{apply: fn, done: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published state. It never blocks.
func (s *Session) Snapshot() State {
	return *s.snap.Load()
}

// Track returns the smoothing window as of the latest snapshot, oldest first.
func (s *Session) Track() []geo.Point {
	pts := *s.track.Load()
	out := make([]geo.Point, len(pts))
	copy(out, pts)
	return out
}

// Run processes fixes and commands until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	log.Printf("[nav] session loop started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[nav] session loop stopped")
			return
		case f := <-s.fixes:
			s.nav.Ingest(f)
			s.publish()
		case cmd := <-s.cmds:
			err := cmd.apply(s.nav)
			if err == nil {
				s.publish()
			}
			cmd.done <- err
		}
	}
}

func (s *Session) publish() {
	st := s.nav.State()
	st.Stats.Dropped = s.dropped.Load()
	track := s.nav.Window()
	s.track.Store(&track)
	s.snap.Store(&st)

	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, fn := range s.listeners {
		fn(st)
	}
}
