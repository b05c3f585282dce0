package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Jobs only run from
// Advance or RunPending, on the caller's goroutine.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	jobs []*manualJob
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

type manualJob struct {
	m         *Manual
	fn        func()
	due       time.Time
	delay     time.Duration
	repeat    bool
	running   bool
	fired     bool
	cancelled bool
}

func (m *Manual) Schedule(fn func(), delay time.Duration) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &manualJob{m: m, fn: fn, due: m.now.Add(delay)}
	m.jobs = append(m.jobs, j)
	return j
}

func (m *Manual) ScheduleWithFixedDelay(fn func(), initialDelay time.Duration, delay time.Duration) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &manualJob{m: m, fn: fn, due: m.now.Add(initialDelay), delay: delay, repeat: true}
	m.jobs = append(m.jobs, j)
	return j
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending counts the jobs that will still run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, j := range m.jobs {
		if j.live() {
			count++
		}
	}
	return count
}

// PendingOneOff counts the one-off jobs that have not fired yet.
func (m *Manual) PendingOneOff() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, j := range m.jobs {
		if j.live() && !j.repeat {
			count++
		}
	}
	return count
}

// RunPending runs every job that is due at the current virtual time.
func (m *Manual) RunPending() {
	m.Advance(0)
}

// Advance moves the clock forward, running due jobs in order of due time.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.compact()
			m.mu.Unlock()
			return
		}
		if next.due.After(m.now) {
			m.now = next.due
		}
		next.running = true
		m.mu.Unlock()

		safeRun(next.fn)

		m.mu.Lock()
		next.running = false
		if next.repeat {
			next.due = m.now.Add(next.delay)
		} else {
			next.fired = true
		}
		m.mu.Unlock()
	}
}

func (m *Manual) nextDue(target time.Time) *manualJob {
	var next *manualJob
	for _, j := range m.jobs {
		if !j.live() || j.running || j.due.After(target) {
			continue
		}
		if next == nil || j.due.Before(next.due) {
			next = j
		}
	}
	return next
}

func (m *Manual) compact() {
	live := m.jobs[:0]
	for _, j := range m.jobs {
		if j.live() {
			live = append(live, j)
		}
	}
	m.jobs = live
}

func (j *manualJob) live() bool {
	return !j.cancelled && !j.fired
}

func (j *manualJob) Cancel() {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	j.cancelled = true
}

func (j *manualJob) Remaining() time.Duration {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	if !j.live() || j.running {
		return 0
	}
	return j.due.Sub(j.m.now)
}
