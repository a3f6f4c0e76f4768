package mode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"go-inkdeck/action"
	"go-inkdeck/device"
	"go-inkdeck/device/devicetest"
	"go-inkdeck/errcode"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

// testMode records lifecycle calls; hooks override the defaults
type testMode struct {
	name string
	log  *callLog

	onActivate   func(s Session) error
	onPoll       func(s Session) (time.Duration, error)
	onAnimate    func(s Session) error
	onDeactivate func(s Session) error
}

func (m *testMode) Name() string { return m.name }

func (m *testMode) Activate(s Session) error {
	m.log.add(m.name + ".activate")
	if m.onActivate != nil {
		return m.onActivate(s)
	}
	s.SetText(device.RegionTitle, m.name, false)
	return s.Flush()
}

func (m *testMode) Poll(s Session) (time.Duration, error) {
	m.log.add(m.name + ".poll")
	if m.onPoll != nil {
		return m.onPoll(s)
	}
	return NoPoll, nil
}

func (m *testMode) Animate(s Session) error {
	m.log.add(m.name + ".animate")
	if m.onAnimate != nil {
		return m.onAnimate(s)
	}
	s.FadeLeds()
	return nil
}

func (m *testMode) Deactivate(s Session) error {
	m.log.add(m.name + ".deactivate")
	if m.onDeactivate != nil {
		return m.onDeactivate(s)
	}
	s.ClearAllCallbacks()
	return nil
}

func startScheduler(t *testing.T, rec *devicetest.Recorder, opts Options) (*Scheduler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	opts.Logger = zap.New(core).Sugar()

	s := NewScheduler(rec, opts)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return s, logs
}

func switchTo(t *testing.T, s *Scheduler, m Mode) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.SwitchTo(ctx, m)
}

func drain(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Sync(ctx); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func stat(s *Scheduler, key string) int64 {
	return s.Stats().Counter(key).Load()
}

func TestSwitchDeactivatesBeforeActivating(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, _ := startScheduler(t, rec, Options{})
	log := &callLog{}

	fast := func(Session) (time.Duration, error) { return time.Millisecond, nil }
	a := &testMode{name: "A", log: log, onPoll: fast}
	b := &testMode{name: "B", log: log, onPoll: fast}

	if err := switchTo(t, s, a); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "A to animate and poll", func() bool {
		return log.count("A.animate") > 2 && log.count("A.poll") > 2
	})
	if err := switchTo(t, s, b); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "B to poll", func() bool { return log.count("B.poll") > 2 })

	calls := log.snapshot()
	at := -1
	for i, c := range calls {
		if c == "A.deactivate" {
			at = i
		}
	}
	if at < 0 || at+1 >= len(calls) || calls[at+1] != "B.activate" {
		t.Fatalf("A.deactivate not immediately followed by B.activate: %v", calls)
	}
	for _, c := range calls[at+1:] {
		if strings.HasPrefix(c, "A.") {
			t.Errorf("%s ran after A was deactivated", c)
		}
	}
	if s.CurrentName() != "B" {
		t.Errorf("current = %q, want B", s.CurrentName())
	}
	if stat(s, "sched.switches") != 2 {
		t.Errorf("switches = %d", stat(s, "sched.switches"))
	}
}

func TestPollSentinelStopsPolling(t *testing.T) {
	for _, tc := range []struct {
		name string
		ret  time.Duration
	}{
		{"sentinel", NoPoll},
		{"negative", -time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := devicetest.NewRecorder(device.DefaultLayout)
			s, _ := startScheduler(t, rec, Options{})
			log := &callLog{}
			a := &testMode{name: "A", log: log, onPoll: func(Session) (time.Duration, error) { return tc.ret, nil }}
			b := &testMode{name: "B", log: log}

			if err := switchTo(t, s, a); err != nil {
				t.Fatal(err)
			}
			waitFor(t, "first poll", func() bool { return log.count("A.poll") == 1 })
			time.Sleep(60 * time.Millisecond)
			if n := log.count("A.poll"); n != 1 {
				t.Fatalf("polls = %d after sentinel, want 1", n)
			}

			// re-activation re-arms polling
			if err := switchTo(t, s, b); err != nil {
				t.Fatal(err)
			}
			if err := switchTo(t, s, a); err != nil {
				t.Fatal(err)
			}
			waitFor(t, "poll after re-activate", func() bool { return log.count("A.poll") == 2 })
		})
	}
}

func TestPollInterval(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, _ := startScheduler(t, rec, Options{})

	const every = 20 * time.Millisecond
	var mu sync.Mutex
	var starts []time.Time
	m := &testMode{name: "sensor", log: &callLog{}, onPoll: func(Session) (time.Duration, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return every, nil
	}}
	if err := switchTo(t, s, m); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "four polls", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) >= 4
	})

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < every {
			t.Errorf("poll %d came %v after the previous one, want >= %v", i, gap, every)
		}
	}
}

func TestFailuresAreContained(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, logs := startScheduler(t, rec, Options{})
	log := &callLog{}

	var polls atomic.Int32
	m := &testMode{
		name: "broken",
		log:  log,
		onActivate: func(s Session) error {
			s.RegisterCallback(action.ButtonPress(2), func() { panic("button handler") })
			s.RegisterCallback(action.ButtonPress(3), func() { log.add("broken.sw3") })
			return s.Flush()
		},
		onPoll: func(Session) (time.Duration, error) {
			if polls.Add(1) == 1 {
				return 5 * time.Millisecond, nil
			}
			return 0, errors.New("sensor gone")
		},
		onAnimate: func(Session) error { panic("bad colour maths") },
	}
	if err := switchTo(t, s, m); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "ticks and polls to continue", func() bool {
		return log.count("broken.animate") >= 5 && polls.Load() >= 4
	})

	rec.Press(action.ButtonPress(2))
	rec.Press(action.ButtonPress(3))
	drain(t, s)
	if log.count("broken.sw3") != 1 {
		t.Error("callback after a panicking one did not run")
	}

	if s.CurrentName() != "broken" {
		t.Errorf("mode was deactivated after failures, current = %q", s.CurrentName())
	}
	if log.count("broken.deactivate") != 0 {
		t.Error("failing mode was deactivated")
	}
	if stat(s, "sched.failures") < 5 {
		t.Errorf("failures = %d", stat(s, "sched.failures"))
	}
	failed := logs.FilterMessage("mode callback failed").FilterField(zap.String("op", "animate"))
	if failed.Len() == 0 {
		t.Fatal("animate failures were not logged")
	}
	if got := failed.All()[0].ContextMap()["code"]; got != string(errcode.ModeCallbackFailure) {
		t.Errorf("logged code = %v", got)
	}
}

func TestFirstPollFailureKeepsPolling(t *testing.T) {
	for _, name := range []string{"error", "panic"} {
		t.Run(name, func(t *testing.T) {
			rec := devicetest.NewRecorder(device.DefaultLayout)
			s, _ := startScheduler(t, rec, Options{RetryInterval: 2 * time.Millisecond, MaxRetryInterval: 8 * time.Millisecond})

			var polls atomic.Int32
			m := &testMode{name: "sensor", log: &callLog{}, onPoll: func(Session) (time.Duration, error) {
				if polls.Add(1) <= 2 {
					if name == "panic" {
						panic("probe not ready")
					}
					return 0, errors.New("probe not ready")
				}
				return 5 * time.Millisecond, nil
			}}
			if err := switchTo(t, s, m); err != nil {
				t.Fatal(err)
			}
			waitFor(t, "polling to resume", func() bool { return polls.Load() >= 5 })
		})
	}
}

func TestCleanZeroPollStaysStopped(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, _ := startScheduler(t, rec, Options{RetryInterval: 2 * time.Millisecond})

	var polls atomic.Int32
	m := &testMode{name: "static", log: &callLog{}, onPoll: func(Session) (time.Duration, error) {
		polls.Add(1)
		return NoPoll, nil
	}}
	if err := switchTo(t, s, m); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first poll", func() bool { return polls.Load() >= 1 })
	time.Sleep(30 * time.Millisecond)
	if n := polls.Load(); n != 1 {
		t.Errorf("polls = %d, want 1", n)
	}
}

func TestLeakedCallbacksAreCleared(t *testing.T) {
	for _, strict := range []bool{false, true} {
		rec := devicetest.NewRecorder(device.DefaultLayout)
		s, logs := startScheduler(t, rec, Options{Strict: strict})
		log := &callLog{}

		leaky := &testMode{
			name: "leaky",
			log:  log,
			onActivate: func(s Session) error {
				s.RegisterCallback(action.ButtonPress(3), func() {})
				s.RegisterCallback(action.ButtonPress(4), func() {})
				return s.Flush()
			},
			onDeactivate: func(s Session) error {
				s.ClearCallback(action.ButtonPress(4))
				return nil
			},
		}
		clean := &testMode{name: "clean", log: log}

		if err := switchTo(t, s, leaky); err != nil {
			t.Fatal(err)
		}
		err := switchTo(t, s, clean)
		if strict && errcode.Of(err) != errcode.InvalidTransition {
			t.Errorf("strict: SwitchTo = %v, want invalid_transition", err)
		}
		if !strict && err != nil {
			t.Errorf("SwitchTo = %v", err)
		}

		if bound := rec.Callbacks.Bound(); len(bound) != 0 {
			t.Errorf("strict=%v: stale bindings %v", strict, bound)
		}
		if stat(s, "sched.leaked_callbacks") != 1 {
			t.Errorf("strict=%v: leaked = %d, want 1", strict, stat(s, "sched.leaked_callbacks"))
		}
		if logs.FilterMessage("mode left callbacks bound after deactivate").Len() != 1 {
			t.Errorf("strict=%v: leak not logged", strict)
		}
		if s.CurrentName() != "clean" {
			t.Errorf("strict=%v: current = %q", strict, s.CurrentName())
		}
	}
}

func TestStaleCallbackIsDropped(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, _ := startScheduler(t, rec, Options{})
	log := &callLog{}

	var hits atomic.Int32
	a := &testMode{name: "A", log: log, onActivate: func(s Session) error {
		s.RegisterCallback(action.ButtonPress(2), func() { hits.Add(1) })
		return s.Flush()
	}}
	b := &testMode{name: "B", log: log}

	if err := switchTo(t, s, a); err != nil {
		t.Fatal(err)
	}
	fn, ok := rec.Callbacks.Lookup(action.ButtonPress(2))
	if !ok {
		t.Fatal("callback not registered with the device")
	}
	rec.Press(action.ButtonPress(2))
	drain(t, s)
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}

	if err := switchTo(t, s, b); err != nil {
		t.Fatal(err)
	}
	// a transport that captured the old binding fires it late
	fn()
	drain(t, s)
	if hits.Load() != 1 {
		t.Errorf("stale callback ran, hits = %d", hits.Load())
	}
	if stat(s, "sched.stale_events") != 1 {
		t.Errorf("stale events = %d, want 1", stat(s, "sched.stale_events"))
	}
}

func TestSessionUseAfterDeactivate(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, logs := startScheduler(t, rec, Options{})
	log := &callLog{}

	var kept Session
	a := &testMode{name: "A", log: log, onActivate: func(s Session) error {
		kept = s
		return s.Flush()
	}}
	if err := switchTo(t, s, a); err != nil {
		t.Fatal(err)
	}
	if st := kept.(*boundSession).lifecycle(); st != Active {
		t.Errorf("session of the active mode is %s", st)
	}
	if err := switchTo(t, s, &testMode{name: "B", log: log}); err != nil {
		t.Fatal(err)
	}
	if st := kept.(*boundSession).lifecycle(); st != Inactive {
		t.Errorf("session after deactivate is %s", st)
	}
	rec.Reset()

	kept.SetText(device.Button(2), "late", false)
	kept.RegisterCallback(action.ButtonPress(2), func() {})

	if ops := rec.Ops(); len(ops) != 0 {
		t.Errorf("closed session reached the device: %v", ops)
	}
	if stat(s, "sched.violations") != 2 {
		t.Errorf("violations = %d, want 2", stat(s, "sched.violations"))
	}
	if logs.FilterMessage("contract violation").Len() != 2 {
		t.Error("violations not logged")
	}
}

func TestFlushRetriedWhileDeviceUnavailable(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	rec.FailFlush(errcode.New(errcode.DeviceUnavailable, "write", "usb gone"))
	s, logs := startScheduler(t, rec, Options{RetryInterval: 2 * time.Millisecond, MaxRetryInterval: 10 * time.Millisecond})

	m := &testMode{name: "A", log: &callLog{}}
	err := switchTo(t, s, m)
	if !errcode.IsDeviceUnavailable(err) {
		t.Fatalf("SwitchTo = %v, want device_unavailable", err)
	}
	waitFor(t, "retries", func() bool { return stat(s, "sched.flush_retries") >= 3 })
	if rec.FlushCount() != 0 {
		t.Fatal("flush succeeded while failing")
	}

	rec.FailFlush(nil)
	waitFor(t, "deferred flush", func() bool { return rec.FlushCount() == 1 })
	if got := rec.Flushes()[0][device.RegionTitle]; got != device.Text("A", false) {
		t.Errorf("deferred flush wrote %+v", got)
	}
	if s.CurrentName() != "A" {
		t.Errorf("current = %q", s.CurrentName())
	}
	waitFor(t, "recovery log", func() bool {
		return logs.FilterMessage("device back, deferred flush done").Len() == 1
	})
}

func TestSwitchQueueFull(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s := NewScheduler(rec, Options{QueueLen: 1, Logger: zap.NewNop().Sugar()})
	log := &callLog{}

	// not running: the first request occupies the queue
	if err := s.RequestSwitch(&testMode{name: "A", log: log}); err != nil {
		t.Fatal(err)
	}
	err := s.RequestSwitch(&testMode{name: "B", log: log})
	if errcode.Of(err) != errcode.SwitchPending {
		t.Errorf("second request = %v, want switch_pending", err)
	}
	if err := s.RequestSwitch(nil); errcode.Of(err) != errcode.UnknownMode {
		t.Errorf("nil mode = %v", err)
	}
}

func TestRequestSwitchFromCallback(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, _ := startScheduler(t, rec, Options{})
	log := &callLog{}
	b := &testMode{name: "B", log: log}

	a := &testMode{name: "A", log: log}
	a.onActivate = func(sess Session) error {
		sess.RegisterCallback(action.ButtonPress(9), func() {
			if err := s.RequestSwitch(b); err != nil {
				t.Error(err)
			}
		})
		return sess.Flush()
	}
	if err := switchTo(t, s, a); err != nil {
		t.Fatal(err)
	}
	rec.Press(action.ButtonPress(9))
	waitFor(t, "switch to B", func() bool { return s.CurrentName() == "B" })
	if log.count("A.deactivate") != 1 {
		t.Error("A was not deactivated")
	}
}

func TestTicksDropWhileBusy(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s, _ := startScheduler(t, rec, Options{})
	log := &callLog{}

	a := &testMode{name: "A", log: log, onActivate: func(s Session) error {
		s.RegisterCallback(action.ButtonPress(2), func() { time.Sleep(150 * time.Millisecond) })
		return s.Flush()
	}}
	if err := switchTo(t, s, a); err != nil {
		t.Fatal(err)
	}
	rec.Press(action.ButtonPress(2))
	drain(t, s)
	if stat(s, "sched.ticks_dropped") == 0 {
		t.Error("no tick was dropped during a 150ms callback")
	}
}

func TestRunStopsDeactivates(t *testing.T) {
	rec := devicetest.NewRecorder(device.DefaultLayout)
	s := NewScheduler(rec, Options{Logger: zap.NewNop().Sugar()})
	log := &callLog{}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	if err := switchTo(t, s, &testMode{name: "A", log: log}); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if log.count("A.deactivate") != 1 || s.Current() != nil {
		t.Errorf("shutdown left A active: %v", log.snapshot())
	}
	if err := s.RequestSwitch(&testMode{name: "B", log: log}); errcode.Of(err) != errcode.InvalidTransition {
		t.Errorf("request after stop = %v", err)
	}
}
