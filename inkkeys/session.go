// Package inkkeys drives the e-ink macro pad over its USB serial port.
//
// The link is line based. Host to device:
//
//	A <INPUT> [event...]       assign a sequence, none clears it
//	T <region> <0|1> <text>    text, 1 = inverted
//	I <region> <flags> <icon>  icon, flags from "cmx" or "-"
//	B <region>                 blank
//	R                          refresh the display with what was sent
//	L <rrggbb>...              one colour per LED
//
// Device to host: "E <INPUT>" for every control transition and "READY"
// after a reset.
package inkkeys

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/tarm/serial"
	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/debug"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
)

const (
	ledFPS      = 30 // LED refresh rate
	redialEvery = time.Second
)

// Opener (re)opens the link to the pad
type Opener func() (io.ReadWriteCloser, error)

// SerialOpener opens a serial port with tarm/serial
func SerialOpener(port string, baud int) Opener {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	}
}

// Session is a device.Session on the serial pad. Sequences are stored on
// the device, which plays them itself; only callbacks run on the host.
type Session struct {
	*device.State

	open   Opener
	log    *zap.SugaredLogger
	redial time.Duration // LED loop reopen interval while broken

	wmu  sync.Mutex
	port io.ReadWriteCloser
	w    *bufio.Writer
	link uint64 // bumped on every (re)open

	broken atomic.Bool // link failed, reopen before the next write
	reset  atomic.Bool // device lost its state, replay before the next write
	closed atomic.Bool
	lines  atomic.Int64
}

// Dial opens the pad on port and starts its reader and LED loop
func Dial(ctx context.Context, port string, baud int, l device.Layout) (*Session, error) {
	s := New(SerialOpener(port, baud), l)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// New creates an unopened Session
func New(open Opener, l device.Layout) *Session {
	return &Session{
		State:  device.NewState(l),
		open:   open,
		log:    debug.Logger("inkkeys"),
		redial: redialEvery,
	}
}

// Start opens the link, then runs the LED loop until ctx is done
func (s *Session) Start(ctx context.Context) error {
	s.wmu.Lock()
	err := s.connect()
	s.wmu.Unlock()
	if err != nil {
		return err
	}
	go s.ledLoop(ctx)
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

// connect opens the port and starts a reader for it. Caller holds wmu.
func (s *Session) connect() error {
	port, err := s.open()
	if err != nil {
		s.broken.Store(true)
		return errcode.Wrap(errcode.DeviceUnavailable, "open", err)
	}
	s.port = port
	s.w = bufio.NewWriter(port)
	s.link++
	s.broken.Store(false)
	go s.readLoop(port, s.link)
	s.log.Infow("pad connected", "link", s.link)
	return nil
}

// reconnect reopens a broken link and replays device state. Caller holds wmu.
func (s *Session) reconnect() error {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	if err := s.connect(); err != nil {
		return err
	}
	s.State.Invalidate()
	if err := s.replayAssignments(); err != nil {
		return s.fail("replay", err)
	}
	return nil
}

func (s *Session) replayAssignments() error {
	actions := s.State.Actions()
	ins := make([]action.Input, 0, len(actions))
	for in := range actions {
		ins = append(ins, in)
	}
	slices.Sort(ins)
	for _, in := range ins {
		s.writeLine(assignLine(in, actions[in]))
	}
	return s.w.Flush()
}

// fail marks the link broken; the next Flush or the LED loop reopens it
func (s *Session) fail(op string, err error) error {
	if !s.broken.Swap(true) {
		s.log.Warnw("pad link lost", "op", op, "error", err)
	}
	return errcode.Wrap(errcode.DeviceUnavailable, op, err)
}

func (s *Session) writeLine(line string) {
	s.w.WriteString(line)
	s.w.WriteByte('\n')
	s.lines.Add(1)
}

// Lines counts lines written to the device
func (s *Session) Lines() int64 {
	return s.lines.Load()
}

func (s *Session) AssignAction(in action.Input, seq action.Sequence) error {
	if !in.Valid() {
		return errcode.New(errcode.Error, "assign", in.String())
	}
	s.State.Assign(in, seq)

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.broken.Load() || s.w == nil {
		// replayed on reconnect
		return nil
	}
	s.writeLine(assignLine(in, seq))
	if err := s.w.Flush(); err != nil {
		// kept in State; the reconnect replays it
		s.fail("assign", err)
	}
	return nil
}

func assignLine(in action.Input, seq action.Sequence) string {
	if len(seq) == 0 {
		return "A " + in.String()
	}
	return "A " + in.String() + " " + seq.String()
}

// Flush sends changed regions followed by a refresh
func (s *Session) Flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.closed.Load() {
		return errcode.New(errcode.DeviceUnavailable, "flush", "closed")
	}
	if s.broken.Load() || s.w == nil {
		if err := s.reconnect(); err != nil {
			return err
		}
	} else if s.reset.Swap(false) {
		s.State.Invalidate()
		if err := s.replayAssignments(); err != nil {
			return s.fail("replay", err)
		}
	}

	changes := s.State.Changes()
	if len(changes) == 0 {
		return nil
	}
	regions := make([]device.Region, 0, len(changes))
	for r := range changes {
		regions = append(regions, r)
	}
	slices.Sort(regions)
	for _, r := range regions {
		s.writeLine(regionLine(r, changes[r]))
	}
	s.writeLine("R")
	if err := s.w.Flush(); err != nil {
		return s.fail("flush", err)
	}
	s.State.Commit(changes)
	return nil
}

func regionLine(r device.Region, c device.Content) string {
	switch c.Kind {
	case device.KindIcon:
		flags := ""
		if c.Centered {
			flags += "c"
		}
		if c.Marked {
			flags += "m"
		}
		if c.Crossed {
			flags += "x"
		}
		if flags == "" {
			flags = "-"
		}
		return fmt.Sprintf("I %d %s %s", int(r), flags, c.Icon)
	case device.KindText:
		inv := 0
		if c.Inverted {
			inv = 1
		}
		return fmt.Sprintf("T %d %d %s", int(r), inv, strings.ReplaceAll(c.Text, "\n", " "))
	default:
		return fmt.Sprintf("B %d", int(r))
	}
}

func ledLine(colors []colorful.Color) string {
	var b strings.Builder
	b.WriteString("L")
	for _, c := range colors {
		rgb := device.RGB8(c)
		fmt.Fprintf(&b, " %02x%02x%02x", rgb[0], rgb[1], rgb[2])
	}
	return b.String()
}

// ledLoop pushes the strip at a fixed rate when it changed, and reopens
// a broken link so LED-only modes recover without a Flush
func (s *Session) ledLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	var since time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.broken.Load() {
				since = time.Time{}
				s.pushLEDs()
				continue
			}
			if since.IsZero() {
				since = now
			}
			if now.Sub(since) >= s.redial {
				since = now
				s.repair()
			}
		}
	}
}

// repair reopens a broken link and repaints what the display last showed.
// Staged regions stay pending for the mode's next Flush.
func (s *Session) repair() {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed.Load() || !s.broken.Load() {
		return
	}
	shown := s.State.Shown()
	if err := s.reconnect(); err != nil {
		debug.Log("inkkeys", "redial failed: %v", err)
		return
	}
	if len(shown) == 0 {
		return
	}
	regions := make([]device.Region, 0, len(shown))
	for r := range shown {
		regions = append(regions, r)
	}
	slices.Sort(regions)
	for _, r := range regions {
		s.writeLine(regionLine(r, shown[r]))
	}
	s.writeLine("R")
	if err := s.w.Flush(); err != nil {
		s.fail("repaint", err)
	}
}

func (s *Session) pushLEDs() {
	if s.broken.Load() {
		return
	}
	colors, dirty := s.LEDs.Take()
	if !dirty {
		return
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.w == nil {
		return
	}
	s.writeLine(ledLine(colors))
	if err := s.w.Flush(); err != nil {
		s.LEDs.MarkDirty()
		s.fail("leds", err)
	}
}

// readLoop dispatches device events until the port fails
func (s *Session) readLoop(r io.Reader, link uint64) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.handleLine(sc.Text())
	}

	s.wmu.Lock()
	current := link == s.link
	s.wmu.Unlock()
	if current {
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		s.fail("read", err)
	}
}

func (s *Session) handleLine(line string) {
	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
	case "E":
		in, err := action.ParseInput(arg)
		if err != nil {
			debug.LogEvery(20, "inkkeys", "bad event %q", line)
			return
		}
		s.dispatch(in)
	case "READY":
		// the pad reset and lost its display and assignments
		s.log.Infow("pad reset")
		s.reset.Store(true)
	default:
		debug.Log("inkkeys", "device: %s", line)
	}
}

func (s *Session) dispatch(in action.Input) {
	s.Callbacks.Dispatch(in)
	if in == action.DialCW || in == action.DialCCW {
		s.Callbacks.Dispatch(action.Dial)
	}
}

// Close releases the port
func (s *Session) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.link++
	s.closed.Store(true)
	s.broken.Store(true)
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.w = nil
	return err
}
