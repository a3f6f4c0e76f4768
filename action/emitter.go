package action

import (
	"sync"

	"go-inkdeck/debug"
)

// Emitter plays a sequence on the host. Keystroke injection itself lives
// outside this module; transports that cannot play sequences on the device
// hand them to an Emitter.
type Emitter interface {
	Emit(in Input, seq Sequence) error
}

// LogEmitter only records what would have been emitted
type LogEmitter struct {
	mu   sync.Mutex
	last []string
}

// NewLogEmitter creates an emitter that logs sequences
func NewLogEmitter() *LogEmitter {
	return &LogEmitter{}
}

func (l *LogEmitter) Emit(in Input, seq Sequence) error {
	if len(seq) == 0 {
		return nil
	}
	line := in.String() + " " + seq.String()
	debug.Log("emit", "%s", line)

	l.mu.Lock()
	l.last = append(l.last, line)
	if len(l.last) > 8 {
		l.last = l.last[len(l.last)-8:]
	}
	l.mu.Unlock()
	return nil
}

// Recent returns the last few emitted lines, oldest first
func (l *LogEmitter) Recent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.last))
	copy(out, l.last)
	return out
}
