package progression

import (
	"sync"
	"time"
)

// Handle cancels one scheduled task. Cancel reports whether the task was
// still pending.
type Handle interface {
	Cancel() bool
}

// Scheduler runs functions after a delay.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
	Stop()
	Pending() int
}

// TimerScheduler backs Scheduler with time.AfterFunc and tracks outstanding
// timers so Stop can cancel them all on shutdown.
type TimerScheduler struct {
	mu      sync.Mutex
	nextID  uint64
	timers  map[uint64]*time.Timer
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: map[uint64]*time.Timer{}}
}

func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || fn == nil {
		return noopHandle{}
	}
	s.nextID++
	id := s.nextID
	s.timers[id] = time.AfterFunc(delay, func() {
		if !s.release(id) {
			return
		}
		fn()
	})
	return &timerHandle{scheduler: s, id: id}
}

// Stop cancels every pending task; later Schedule calls are ignored.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// release removes id and reports whether it was still tracked.
func (s *TimerScheduler) release(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

type timerHandle struct {
	scheduler *TimerScheduler
	id        uint64
}

func (h *timerHandle) Cancel() bool {
	h.scheduler.mu.Lock()
	defer h.scheduler.mu.Unlock()
	timer, ok := h.scheduler.timers[h.id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(h.scheduler.timers, h.id)
	return true
}

type noopHandle struct{}

func (noopHandle) Cancel() bool { return false }
