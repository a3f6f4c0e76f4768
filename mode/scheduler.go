package mode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/debug"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
	"go-inkdeck/status"
)

// Animation tick ceiling
const MaxFPS = 30

// Options tune a Scheduler. Zero values select the defaults.
type Options struct {
	FPS              int           // animate rate, clamped to 1..MaxFPS
	Strict           bool          // report leaked callbacks as errors from SwitchTo
	RetryInterval    time.Duration // first flush retry after DeviceUnavailable
	MaxRetryInterval time.Duration
	QueueLen         int // pending switch requests before SwitchPending

	Stats  *status.Registry
	Logger *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 || o.FPS > MaxFPS {
		o.FPS = MaxFPS
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 250 * time.Millisecond
	}
	if o.MaxRetryInterval < o.RetryInterval {
		o.MaxRetryInterval = 5 * time.Second
		if o.MaxRetryInterval < o.RetryInterval {
			o.MaxRetryInterval = o.RetryInterval
		}
	}
	if o.QueueLen <= 0 {
		o.QueueLen = 4
	}
	if o.Stats == nil {
		o.Stats = status.NewRegistry()
	}
	if o.Logger == nil {
		o.Logger = debug.Logger("sched")
	}
	return o
}

// activation is one Inactive→Active→Inactive run of a mode
type activation struct {
	mode     Mode
	name     string
	gen      uint64
	sess     *boundSession
	interval time.Duration // last positive poll interval
	backoff  time.Duration // poll retry delay while no interval is known
	failures map[string]int
}

type switchReq struct {
	mode Mode
	done chan error // nil for RequestSwitch
}

type posted struct {
	gen   uint64
	label string
	fn    func()
	sync  bool // run regardless of generation
}

// Scheduler drives the single active mode.
//
// Switches, polls, input callbacks, posted events and flush retries run on
// the dispatch goroutine (Run) under mu. Animate runs on a separate ticker
// and only when mu is free, so a slow flush or poll drops ticks instead of
// delaying them.
type Scheduler struct {
	session device.Session
	opts    Options
	log     *zap.SugaredLogger

	mu         sync.Mutex
	gen        uint64
	pollTimer  *time.Timer
	retryArmed bool
	retryDelay time.Duration

	cur atomic.Pointer[activation]

	switches chan switchReq
	events   chan posted
	polls    chan uint64
	retries  chan struct{}
	done     chan struct{}
	running  atomic.Bool

	// cached metrics
	ticks, dropped, pollCount, failures     *atomic.Int64
	switchCount, stale, leaks, flushRetries *atomic.Int64
	violations                              *atomic.Int64
}

// NewScheduler creates a Scheduler driving session. Call Run to start it.
func NewScheduler(session device.Session, opts Options) *Scheduler {
	opts = opts.withDefaults()
	st := opts.Stats
	return &Scheduler{
		session:      session,
		opts:         opts,
		log:          opts.Logger,
		retryDelay:   opts.RetryInterval,
		switches:     make(chan switchReq, opts.QueueLen),
		events:       make(chan posted, 64),
		polls:        make(chan uint64, 1),
		retries:      make(chan struct{}, 1),
		done:         make(chan struct{}),
		ticks:        st.Counter("sched.ticks"),
		dropped:      st.Counter("sched.ticks_dropped"),
		pollCount:    st.Counter("sched.polls"),
		failures:     st.Counter("sched.failures"),
		switchCount:  st.Counter("sched.switches"),
		stale:        st.Counter("sched.stale_events"),
		leaks:        st.Counter("sched.leaked_callbacks"),
		flushRetries: st.Counter("sched.flush_retries"),
		violations:   st.Counter("sched.violations"),
	}
}

// Stats returns the metrics registry the scheduler reports into
func (s *Scheduler) Stats() *status.Registry {
	return s.opts.Stats
}

// Current returns the active mode, or nil
func (s *Scheduler) Current() Mode {
	if a := s.cur.Load(); a != nil {
		return a.mode
	}
	return nil
}

// CurrentName returns the active mode's name, or ""
func (s *Scheduler) CurrentName() string {
	if a := s.cur.Load(); a != nil {
		return a.name
	}
	return ""
}

// Run dispatches until ctx is cancelled, then deactivates the current mode.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errcode.New(errcode.InvalidTransition, "run", "scheduler already running")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.tickLoop(ctx)
	}()

	defer func() {
		wg.Wait()
		if err := s.doSwitch(nil); err != nil {
			s.log.Warnw("shutdown", "error", err)
		}
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.switches:
			err := s.doSwitch(req.mode)
			if req.done != nil {
				req.done <- err
			} else if err != nil {
				s.log.Warnw("switch failed", "mode", req.mode.Name(), "error", err)
			}
		case p := <-s.events:
			s.runPosted(p)
		case gen := <-s.polls:
			s.doPoll(gen)
		case <-s.retries:
			s.retryFlush()
		}
	}
}

// SwitchTo deactivates the current mode, activates m and waits for both.
// Requests are queued behind any switch in progress; a full queue rejects
// with SwitchPending. Must not be called from a mode callback (use
// RequestSwitch there).
func (s *Scheduler) SwitchTo(ctx context.Context, m Mode) error {
	req := switchReq{mode: m, done: make(chan error, 1)}
	if err := s.enqueue(req); err != nil {
		return err
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return errcode.Wrap(errcode.Timeout, "switch", ctx.Err())
	case <-s.done:
		return errcode.New(errcode.InvalidTransition, "switch", "scheduler stopped")
	}
}

// RequestSwitch queues a switch to m without waiting for it
func (s *Scheduler) RequestSwitch(m Mode) error {
	return s.enqueue(switchReq{mode: m})
}

func (s *Scheduler) enqueue(req switchReq) error {
	if req.mode == nil {
		return errcode.New(errcode.UnknownMode, "switch", "nil mode")
	}
	select {
	case <-s.done:
		return errcode.New(errcode.InvalidTransition, "switch", "scheduler stopped")
	default:
	}
	select {
	case s.switches <- req:
		return nil
	default:
		return errcode.New(errcode.SwitchPending, "switch", req.mode.Name())
	}
}

// Sync waits until every event posted before it has been dispatched
func (s *Scheduler) Sync(ctx context.Context) error {
	done := make(chan struct{})
	s.enqueuePost(posted{label: "sync", sync: true, fn: func() { close(done) }})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errcode.Wrap(errcode.Timeout, "sync", ctx.Err())
	case <-s.done:
		return nil
	}
}

// post queues fn for the activation gen. Input callbacks arrive here from
// transport reader goroutines.
func (s *Scheduler) post(gen uint64, label string, fn func()) {
	s.enqueuePost(posted{gen: gen, label: label, fn: fn})
}

func (s *Scheduler) enqueuePost(p posted) {
	select {
	case s.events <- p:
	default:
		// queue full: deliver from a goroutine rather than block the reader
		go func() {
			select {
			case s.events <- p:
			case <-s.done:
			}
		}()
	}
}

func (s *Scheduler) runPosted(p posted) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.sync {
		p.fn()
		return
	}
	a := s.cur.Load()
	if a == nil || a.gen != p.gen {
		s.stale.Add(1)
		debug.Log("sched", "dropping stale %s (gen %d)", p.label, p.gen)
		return
	}
	s.guard(a, p.label, func() error {
		p.fn()
		return nil
	})
}

// doSwitch performs deactivate-old then activate-new. A nil m only
// deactivates.
func (s *Scheduler) doSwitch(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if old := s.cur.Load(); old != nil {
		s.stopPoll()
		s.guard(old, "deactivate", func() error { return old.mode.Deactivate(old.sess) })
		old.sess.close()
		if err := s.reclaim(old); err != nil {
			errs = append(errs, err)
		}
		s.cur.Store(nil)
		debug.Log("sched", "%s is %s", old.name, old.sess.lifecycle())
	}
	if m == nil {
		return errors.Join(errs...)
	}

	s.gen++
	a := &activation{mode: m, name: m.Name(), gen: s.gen, failures: make(map[string]int)}
	a.sess = newBoundSession(s, a.gen, a.name)
	s.cur.Store(a)
	s.switchCount.Add(1)

	if err := s.guard(a, "activate", func() error { return m.Activate(a.sess) }); err != nil {
		errs = append(errs, err)
	}
	s.log.Infow("mode active", "mode", a.name, "gen", a.gen)
	s.armPoll(a.gen, 0)
	return errors.Join(errs...)
}

// reclaim clears callbacks a deactivated mode left behind
func (s *Scheduler) reclaim(a *activation) error {
	leaked := a.sess.bound()
	if len(leaked) == 0 {
		return nil
	}
	for _, in := range leaked {
		s.session.ClearCallback(in)
	}
	s.leaks.Add(int64(len(leaked)))
	s.log.Warnw("mode left callbacks bound after deactivate", "mode", a.name, "inputs", inputNames(leaked))
	if s.opts.Strict {
		return errcode.New(errcode.InvalidTransition, "deactivate",
			fmt.Sprintf("%s left callbacks on %v", a.name, inputNames(leaked)))
	}
	return nil
}

func inputNames(ins []action.Input) []string {
	out := make([]string, len(ins))
	for i, in := range ins {
		out[i] = in.String()
	}
	return out
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if !s.mu.TryLock() {
		s.dropped.Add(1)
		return
	}
	defer s.mu.Unlock()

	a := s.cur.Load()
	if a == nil {
		return
	}
	s.ticks.Add(1)
	s.guard(a, "animate", func() error { return a.mode.Animate(a.sess) })
}

// armPoll schedules a poll of activation gen after d. Caller holds mu.
func (s *Scheduler) armPoll(gen uint64, d time.Duration) {
	s.stopPoll()
	s.pollTimer = time.AfterFunc(d, func() {
		select {
		case s.polls <- gen:
		case <-s.done:
		}
	})
}

func (s *Scheduler) stopPoll() {
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
}

func (s *Scheduler) doPoll(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.cur.Load()
	if a == nil || a.gen != gen {
		return
	}
	s.pollCount.Add(1)

	var next time.Duration
	err := s.guard(a, "poll", func() (err error) {
		next, err = a.mode.Poll(a.sess)
		return err
	})
	if err != nil && next <= 0 {
		// keep polling at the last known rate, or back off until one is known
		next = a.interval
		if next <= 0 {
			if a.backoff == 0 {
				a.backoff = s.opts.RetryInterval
			} else {
				a.backoff = min(2*a.backoff, s.opts.MaxRetryInterval)
			}
			s.armPoll(gen, a.backoff)
			return
		}
	}
	if next <= 0 {
		s.pollTimer = nil
		return
	}
	a.interval = next
	a.backoff = 0
	s.armPoll(gen, next)
}

// flush commits staged changes for the active mode. Caller holds mu.
func (s *Scheduler) flush() error {
	err := s.session.Flush()
	if errcode.IsDeviceUnavailable(err) {
		s.scheduleRetry()
	}
	return err
}

func (s *Scheduler) scheduleRetry() {
	if s.retryArmed {
		return
	}
	s.retryArmed = true
	time.AfterFunc(s.retryDelay, func() {
		select {
		case s.retries <- struct{}{}:
		case <-s.done:
		}
	})
}

func (s *Scheduler) retryFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retryArmed = false
	s.flushRetries.Add(1)
	err := s.session.Flush()
	switch {
	case err == nil:
		if s.retryDelay != s.opts.RetryInterval {
			s.log.Infow("device back, deferred flush done")
		}
		s.retryDelay = s.opts.RetryInterval
	case errcode.IsDeviceUnavailable(err):
		s.retryDelay = min(2*s.retryDelay, s.opts.MaxRetryInterval)
		debug.Log("sched", "flush retry failed, next in %v", s.retryDelay)
		s.scheduleRetry()
	default:
		s.log.Warnw("flush retry", "error", err)
	}
}

// guard runs one mode operation, turning panics into ModeCallbackFailure.
// Failures are logged and counted; the mode stays active. Caller holds mu.
func (s *Scheduler) guard(a *activation, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errcode.New(errcode.ModeCallbackFailure, op, fmt.Sprintf("%s: panic: %v", a.name, r))
		}
		if err != nil {
			s.fail(a, op, err)
		}
	}()
	return fn()
}

func (s *Scheduler) fail(a *activation, op string, err error) {
	s.failures.Add(1)
	if errcode.IsDeviceUnavailable(err) {
		s.scheduleRetry()
	}

	// animate can fail at the tick rate: log 1st, 2nd, 4th, 8th...
	a.failures[op]++
	if n := a.failures[op]; n&(n-1) == 0 {
		s.log.Warnw("mode callback failed",
			"mode", a.name, "op", op, "count", n, "code", string(errcode.Of(err)), "error", err)
	}
}

// violation reports a mode using its session after deactivation
func (s *Scheduler) violation(name, op, msg string) {
	s.violations.Add(1)
	s.log.Warnw("contract violation", "mode", name, "op", op, "msg", msg)
}
