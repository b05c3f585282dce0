package binding

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/metrics"
	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

// Session is the vendor side of a bridge: it logs in, polls and is torn
// down with the bridge.
type Session interface {
	// Initialize logs in. Failures are logged by the session; the return
	// value only says whether the session is usable right now.
	Initialize(ctx context.Context) bool
	// Refresh polls the vendor, logging in again first when needed.
	Refresh(ctx context.Context) bool
	Dispose()
}

// BridgeHandler runs the login, the periodic refresh and the debounced
// immediate refresh of one bridge, and maps refresh outcomes onto the
// bridge status.
type BridgeHandler struct {
	thing     thing.Thing
	callback  thing.Callback
	scheduler scheduler.Scheduler

	mu         sync.Mutex
	session    Session
	ctx        context.Context
	cancel     context.CancelFunc
	interval   time.Duration
	loginJob   scheduler.Job
	refreshJob scheduler.Job
	disposed   bool

	immediateMu  sync.Mutex
	immediateJob scheduler.Job

	statusMu sync.Mutex
	status   thing.StatusInfo
}

func NewBridgeHandler(t thing.Thing, callback thing.Callback, sched scheduler.Scheduler) *BridgeHandler {
	return &BridgeHandler{
		thing:     t,
		callback:  callback,
		scheduler: sched,
		status:    thing.StatusInfo{Status: thing.StatusUninitialized, Detail: thing.DetailNone},
	}
}

func (b *BridgeHandler) Thing() thing.Thing {
	return b.thing
}

func (b *BridgeHandler) Status() thing.StatusInfo {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	return b.status
}

// Start installs the session, sets the bridge UNKNOWN and logs in on the
// scheduler. Refreshing starts once the login attempt returns.
func (b *BridgeHandler) Start(session Session, interval time.Duration) {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.session = session
	b.interval = interval
	b.disposed = false
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.mu.Unlock()

	b.UpdateStatus(thing.Unknown())

	b.mu.Lock()
	b.loginJob = b.scheduler.Schedule(b.login, 0)
	b.mu.Unlock()
}

func (b *BridgeHandler) login() {
	session, ctx := b.current()
	if session == nil {
		return
	}
	initialDelay := time.Duration(0)
	if !session.Initialize(ctx) {
		log.Warn().Str("bridge", string(b.thing.UID)).Msg("Login failed, will retry on next refresh")
		b.UpdateStatus(thing.Offline(thing.DetailConfigurationError, "Login failed"))
		initialDelay = b.interval
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || b.session != session {
		return
	}
	if b.refreshJob != nil {
		b.refreshJob.Cancel()
	}
	b.refreshJob = b.scheduler.ScheduleWithFixedDelay(func() { b.refreshAndUpdateStatus() }, initialDelay, b.interval)
}

// Fail marks the bridge offline without starting a session, typically for
// a configuration problem found in Initialize.
func (b *BridgeHandler) Fail(detail thing.StatusDetail, description string) {
	log.Warn().Str("bridge", string(b.thing.UID)).Str("detail", string(detail)).Msg(description)
	b.UpdateStatus(thing.Offline(detail, description))
}

func (b *BridgeHandler) current() (Session, context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return nil, nil
	}
	return b.session, b.ctx
}

// Context is cancelled when the bridge is disposed.
func (b *BridgeHandler) Context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// Refresh runs one refresh cycle on the calling goroutine.
func (b *BridgeHandler) Refresh() bool {
	return b.refreshAndUpdateStatus()
}

func (b *BridgeHandler) refreshAndUpdateStatus() bool {
	session, ctx := b.current()
	if session == nil {
		return false
	}
	start := time.Now()
	ok := session.Refresh(ctx)
	metrics.ReportRefresh(string(b.thing.UID), ok, time.Since(start))
	if ok {
		b.UpdateStatus(thing.Online())
	} else {
		b.UpdateStatus(thing.Offline(thing.DetailCommunicationError, "Refresh failed"))
	}
	return ok
}

// ScheduleImmediateRefresh schedules a one-off refresh in delay, unless the
// regular refresh comes sooner or a one-off is already pending. It reports
// whether a job was scheduled.
func (b *BridgeHandler) ScheduleImmediateRefresh(delay time.Duration) bool {
	b.immediateMu.Lock()
	defer b.immediateMu.Unlock()

	b.mu.Lock()
	refreshJob := b.refreshJob
	disposed := b.disposed
	b.mu.Unlock()
	if disposed || refreshJob == nil {
		return false
	}

	remaining := refreshJob.Remaining()
	log.Debug().Str("bridge", string(b.thing.UID)).Dur("remaining", remaining).Msg("Immediate refresh requested")
	if remaining <= delay {
		return false
	}
	if b.immediateJob != nil && b.immediateJob.Remaining() > 0 {
		return false
	}
	if b.immediateJob != nil {
		b.immediateJob.Cancel()
	}
	b.immediateJob = b.scheduler.Schedule(func() { b.refreshAndUpdateStatus() }, delay)
	return true
}

// Dispose cancels the scheduled jobs and disposes the session. A refresh
// that is already running completes, but its HTTP calls see a cancelled
// context.
func (b *BridgeHandler) Dispose() {
	b.immediateMu.Lock()
	if b.immediateJob != nil {
		b.immediateJob.Cancel()
		b.immediateJob = nil
	}
	b.immediateMu.Unlock()

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	if b.loginJob != nil {
		b.loginJob.Cancel()
		b.loginJob = nil
	}
	if b.refreshJob != nil {
		b.refreshJob.Cancel()
		b.refreshJob = nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	session := b.session
	b.session = nil
	b.mu.Unlock()

	if session != nil {
		session.Dispose()
	}
}

// UpdateStatus forwards a status change to the host. Unchanged statuses are
// not repeated.
func (b *BridgeHandler) UpdateStatus(info thing.StatusInfo) {
	b.statusMu.Lock()
	if b.status == info {
		b.statusMu.Unlock()
		return
	}
	b.status = info
	b.statusMu.Unlock()
	b.callback.StatusUpdated(b.thing.UID, info)
}
