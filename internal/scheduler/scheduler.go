package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is a handle to a scheduled task.
type Job interface {
	// Cancel prevents future runs. A run that already started completes.
	Cancel()
	// Remaining is the time until the next run. It is <= 0 once a one-off
	// job has fired or any job was cancelled, and 0 while a run is active.
	Remaining() time.Duration
}

// Scheduler is the shared pool every handler schedules its work on.
type Scheduler interface {
	Schedule(fn func(), delay time.Duration) Job
	ScheduleWithFixedDelay(fn func(), initialDelay time.Duration, delay time.Duration) Job
}

type pool struct{}

// New returns a Scheduler backed by runtime timers.
func New() Scheduler {
	return pool{}
}

func (pool) Schedule(fn func(), delay time.Duration) Job {
	j := &oneShot{due: time.Now().Add(delay)}
	j.mu.Lock()
	j.timer = time.AfterFunc(delay, func() {
		j.mu.Lock()
		if j.done {
			j.mu.Unlock()
			return
		}
		j.done = true
		j.mu.Unlock()
		safeRun(fn)
	})
	j.mu.Unlock()
	return j
}

func (pool) ScheduleWithFixedDelay(fn func(), initialDelay time.Duration, delay time.Duration) Job {
	j := &repeating{fn: fn, delay: delay}
	j.mu.Lock()
	j.next = time.Now().Add(initialDelay)
	j.timer = time.AfterFunc(initialDelay, j.run)
	j.mu.Unlock()
	return j
}

type oneShot struct {
	mu    sync.Mutex
	timer *time.Timer
	due   time.Time
	done  bool
}

func (j *oneShot) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = true
	j.timer.Stop()
}

func (j *oneShot) Remaining() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return 0
	}
	return time.Until(j.due)
}

type repeating struct {
	mu        sync.Mutex
	timer     *time.Timer
	fn        func()
	delay     time.Duration
	next      time.Time
	running   bool
	cancelled bool
}

func (j *repeating) run() {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	safeRun(j.fn)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	if j.cancelled {
		return
	}
	j.next = time.Now().Add(j.delay)
	j.timer = time.AfterFunc(j.delay, j.run)
}

func (j *repeating) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelled = true
	if j.timer != nil {
		j.timer.Stop()
	}
}

func (j *repeating) Remaining() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled || j.running {
		return 0
	}
	return time.Until(j.next)
}

// safeRun keeps a panicking task from taking the scheduler down with it.
func safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Scheduled task panicked")
		}
	}()
	fn()
}
