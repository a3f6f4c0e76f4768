// Package devicetest provides a recording Session for tests of modes and
// of the scheduler.
package devicetest

import (
	"fmt"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/action"
	"go-inkdeck/device"
)

// Recorder is an in-memory Session that logs every call
type Recorder struct {
	*device.State

	mu      sync.Mutex
	ops     []string
	flushes []map[device.Region]device.Content
	failing error
}

// NewRecorder creates a Recorder with the given layout
func NewRecorder(l device.Layout) *Recorder {
	return &Recorder{State: device.NewState(l)}
}

func (r *Recorder) record(format string, args ...any) {
	r.mu.Lock()
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *Recorder) SetText(reg device.Region, text string, inverted bool) {
	r.record("text %s %q", reg, text)
	r.State.SetText(reg, text, inverted)
}

func (r *Recorder) SetIcon(reg device.Region, icon string, style device.IconStyle) {
	r.record("icon %s %s", reg, icon)
	r.State.SetIcon(reg, icon, style)
}

func (r *Recorder) SetLeds(colors []colorful.Color) {
	r.record("leds %d", len(colors))
	r.State.SetLeds(colors)
}

func (r *Recorder) FadeLeds() {
	r.State.FadeLeds()
}

func (r *Recorder) AssignAction(in action.Input, seq action.Sequence) error {
	r.record("assign %s [%s]", in, seq)
	r.State.Assign(in, seq)
	return nil
}

func (r *Recorder) RegisterCallback(in action.Input, fn func()) {
	r.record("register %s", in)
	r.State.RegisterCallback(in, fn)
}

func (r *Recorder) ClearCallback(in action.Input) {
	r.record("clear %s", in)
	r.State.ClearCallback(in)
}

func (r *Recorder) ClearAllCallbacks() {
	r.record("clear-all")
	r.State.ClearAllCallbacks()
}

// Flush commits staged regions, or returns the error set with FailFlush
func (r *Recorder) Flush() error {
	r.mu.Lock()
	err := r.failing
	r.mu.Unlock()
	if err != nil {
		r.record("flush failed")
		return err
	}

	changes := r.State.Changes()
	r.State.Commit(changes)

	r.mu.Lock()
	r.ops = append(r.ops, "flush")
	r.flushes = append(r.flushes, changes)
	r.mu.Unlock()
	return nil
}

// Post runs fn immediately, standing in for the scheduler's event queue
func (r *Recorder) Post(fn func()) {
	fn()
}

// FailFlush makes every Flush return err until called again with nil
func (r *Recorder) FailFlush(err error) {
	r.mu.Lock()
	r.failing = err
	r.mu.Unlock()
}

// Press runs the input the way the hardware would: sequence then callback
func (r *Recorder) Press(in action.Input) {
	r.State.Trigger(in, nil)
}

// Ops returns the call log
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// Flushes returns the region changes committed by each successful flush
func (r *Recorder) Flushes() []map[device.Region]device.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[device.Region]device.Content(nil), r.flushes...)
}

// FlushCount returns the number of successful flushes
func (r *Recorder) FlushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

// Reset clears the call and flush logs, keeping device state
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
	r.flushes = nil
}
