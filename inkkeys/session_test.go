package inkkeys

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
	"go-inkdeck/mode"
	"go-inkdeck/modes"
)

// fakePort records what the host writes; the test feeds device lines
// through in
type fakePort struct {
	in  *io.PipeReader
	out *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	failing bool
	closed  bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{in: r, out: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.in.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing || p.closed {
		return 0, errors.New("write: input/output error")
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.in.Close()
}

func (p *fakePort) fail() {
	p.mu.Lock()
	p.failing = true
	p.mu.Unlock()
}

func (p *fakePort) raw() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// lines returns the display and assignment lines; LED frames are pushed
// by their own loop and left out
func (p *fakePort) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, l := range strings.Split(p.written.String(), "\n") {
		if l != "" && !strings.HasPrefix(l, "L ") {
			out = append(out, l)
		}
	}
	return out
}

func (p *fakePort) send(line string) {
	p.out.Write([]byte(line + "\n"))
}

type opener struct {
	mu    sync.Mutex
	ports []*fakePort
}

func (o *opener) open() (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := newFakePort()
	o.ports = append(o.ports, p)
	return p, nil
}

func (o *opener) last() *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[len(o.ports)-1]
}

func (o *opener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ports)
}

func startSession(t *testing.T) (*Session, *opener) {
	t.Helper()
	o := &opener{}
	s := New(o.open, device.DefaultLayout)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return s, o
}

func equalLines(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines:\n got %q\nwant %q", got, want)
	}
}

func TestFlushSendsChangedRegions(t *testing.T) {
	s, o := startSession(t)

	s.SetText(device.RegionTitle, "Gimp", true)
	s.SetIcon(device.Button(3), "crop", device.IconStyle{Centered: true, Crossed: true})
	s.SetText(device.Button(2), "", false)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	equalLines(t, o.last().lines(), []string{"T 0 1 Gimp", "B 2", "I 3 cx crop", "R"})

	// unchanged content is not resent
	s.SetText(device.RegionTitle, "Gimp", true)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if n := len(o.last().lines()); n != 4 {
		t.Errorf("no-op flush wrote %d more lines", n-4)
	}
}

func TestAssignWritesSequence(t *testing.T) {
	s, o := startSession(t)
	seq := action.Seq(action.KeyDown("LEFT_CTRL"), action.Key("S"), action.KeyUp("LEFT_CTRL"))
	if err := s.AssignAction(action.ButtonPress(9), seq); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignAction(action.DialCW, nil); err != nil {
		t.Fatal(err)
	}
	equalLines(t, o.last().lines(), []string{
		"A SW9_PRESS key:LEFT_CTRL:press key:S key:LEFT_CTRL:release",
		"A JOG_CW",
	})
}

func TestDeviceEventsRunCallbacks(t *testing.T) {
	s, o := startSession(t)
	got := make(chan string, 4)
	s.RegisterCallback(action.ButtonPress(4), func() { got <- "sw4" })
	s.RegisterCallback(action.Dial, func() { got <- "jog" })

	o.last().send("E SW4_PRESS")
	o.last().send("garbage")
	o.last().send("E JOG_CCW")

	for _, want := range []string{"sw4", "jog"} {
		select {
		case g := <-got:
			if g != want {
				t.Errorf("callback %q, want %q", g, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %q never ran", want)
		}
	}
}

func TestWriteFailureReconnects(t *testing.T) {
	s, o := startSession(t)
	if err := s.AssignAction(action.ButtonPress(2), action.Seq(action.Key("A"))); err != nil {
		t.Fatal(err)
	}
	s.SetText(device.RegionTitle, "Default", true)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	o.last().fail()
	s.SetText(device.Button(2), "x", false)
	if err := s.Flush(); !errcode.IsDeviceUnavailable(err) {
		t.Fatalf("flush on failing port = %v", err)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("flush after reopen = %v", err)
	}
	if o.count() != 2 {
		t.Fatalf("port opened %d times, want 2", o.count())
	}
	equalLines(t, o.last().lines(), []string{"A SW2_PRESS key:A", "T 0 1 Default", "T 2 0 x", "R"})
}

func TestAssignOnFailingLinkIsReplayed(t *testing.T) {
	s, o := startSession(t)
	o.last().fail()

	seq := action.Seq(action.Key("A"))
	if err := s.AssignAction(action.ButtonPress(5), seq); err != nil {
		t.Fatalf("assign on failing port = %v", err)
	}
	if got, ok := s.Action(action.ButtonPress(5)); !ok || got.String() != seq.String() {
		t.Fatalf("assignment not kept: %v %v", got, ok)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush after reopen = %v", err)
	}
	if o.count() != 2 {
		t.Fatalf("port opened %d times, want 2", o.count())
	}
	equalLines(t, o.last().lines(), []string{"A SW5_PRESS key:A"})
}

func TestModeActivatesOverFailingLink(t *testing.T) {
	s, o := startSession(t)
	o.last().fail()

	m, err := modes.NewTable(*config.DefaultConfig().FindMode("Default"), device.DefaultLayout)
	if err != nil {
		t.Fatal(err)
	}
	sched := mode.NewScheduler(s, mode.Options{Logger: zap.NewNop().Sugar()})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sched.Run(ctx) }()
	defer func() {
		cancel()
		<-errc
	}()

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := sched.SwitchTo(sctx, m); err != nil {
		t.Fatalf("switch over a failing link = %v", err)
	}
	if o.count() != 2 {
		t.Fatalf("port opened %d times, want 2", o.count())
	}
	if !slices.Contains(s.Callbacks.Bound(), action.DialPress) {
		t.Errorf("dial toggle not bound: %v", s.Callbacks.Bound())
	}
	if seq, ok := s.Action(action.ButtonPress(5)); !ok || seq.String() != "consumer:EMAIL_READER:press" {
		t.Errorf("button 5 press = %v %v", seq, ok)
	}
	if !slices.Contains(o.last().lines(), "A SW5_PRESS consumer:EMAIL_READER:press") {
		t.Errorf("assignment not replayed: %q", o.last().lines())
	}
}

func TestLEDLoopReopensLink(t *testing.T) {
	o := &opener{}
	s := New(o.open, device.DefaultLayout)
	s.redial = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	s.SetText(device.RegionTitle, "Scenes", true)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	o.last().fail()
	s.SetLeds([]colorful.Color{{R: 1}})

	deadline := time.Now().Add(2 * time.Second)
	for o.count() < 2 || !strings.Contains(o.last().raw(), "L ff0000") {
		if time.Now().After(deadline) {
			t.Fatalf("link not reopened: %d ports", o.count())
		}
		time.Sleep(2 * time.Millisecond)
	}
	equalLines(t, o.last().lines(), []string{"T 0 1 Scenes", "R"})
}

func TestResetReplaysState(t *testing.T) {
	s, o := startSession(t)
	if err := s.AssignAction(action.ButtonPress(3), action.Seq(action.Key("B"))); err != nil {
		t.Fatal(err)
	}
	s.SetText(device.RegionTitle, "Blender", true)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	before := len(o.last().lines())

	o.last().send("READY")
	deadline := time.Now().Add(2 * time.Second)
	for !s.reset.Load() {
		if time.Now().After(deadline) {
			t.Fatal("reset not noticed")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	equalLines(t, o.last().lines()[before:], []string{"A SW3_PRESS key:B", "T 0 1 Blender", "R"})
	if o.count() != 1 {
		t.Error("reset reopened the port")
	}
}

func TestLEDLine(t *testing.T) {
	got := ledLine([]colorful.Color{{R: 1}, {G: 1, B: 1}, {}})
	if got != "L ff0000 00ffff 000000" {
		t.Errorf("ledLine = %q", got)
	}
}

func TestFlushAfterClose(t *testing.T) {
	s, _ := startSession(t)
	s.Close()
	if err := s.Flush(); !errcode.IsDeviceUnavailable(err) {
		t.Errorf("flush after close = %v", err)
	}
}
