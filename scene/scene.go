// Package scene models a remote scene-composition application as an
// asynchronous event source: the current scene, the visibility of items
// inside scenes, and requests to change either.
package scene

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"go-inkdeck/errcode"
)

// Item addresses an item inside a scene. An empty Scene means the current
// scene.
type Item struct {
	Scene string
	Name  string
}

func (it Item) String() string {
	return it.Scene + "/" + it.Name
}

// ParseItem parses "scene/item"; a value without a slash names an item of
// the current scene
func ParseItem(s string) Item {
	scene, name, ok := strings.Cut(s, "/")
	if !ok {
		return Item{Name: strings.TrimSpace(s)}
	}
	return Item{Scene: strings.TrimSpace(scene), Name: strings.TrimSpace(name)}
}

// EventKind tells what changed
type EventKind uint8

const (
	SceneSwitched EventKind = iota
	VisibilityChanged
	Exiting
)

func (k EventKind) String() string {
	switch k {
	case SceneSwitched:
		return "scene"
	case VisibilityChanged:
		return "visibility"
	case Exiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Event is one push notification from the application
type Event struct {
	Kind    EventKind
	Scene   string
	Item    string // VisibilityChanged only
	Visible bool
}

// Snapshot is the full state, read once on activation
type Snapshot struct {
	Current string
	Visible map[Item]bool
}

// Source is the application connection a scene mode drives.
// Subscribers are called from the source's own goroutine.
type Source interface {
	Subscribe(fn func(Event)) (cancel func())
	Snapshot() (Snapshot, error)
	SetScene(name string) error
	SetItemVisible(it Item, visible bool) error
}

// Memory is an in-process Source, used by the simulator and in tests
type Memory struct {
	mu      sync.Mutex
	scenes  []string
	current string
	visible map[Item]bool
	subs    map[int]func(Event)
	nextSub int
	closed  bool
}

// NewMemory creates a source with the given scenes, the first one current
func NewMemory(scenes ...string) *Memory {
	m := &Memory{
		scenes:  scenes,
		visible: make(map[Item]bool),
		subs:    make(map[int]func(Event)),
	}
	if len(scenes) > 0 {
		m.current = scenes[0]
	}
	return m
}

// AddItem places an item into a scene
func (m *Memory) AddItem(it Item, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible[it] = visible
}

func (m *Memory) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Subscribers returns the number of live subscriptions
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) Snapshot() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, errcode.New(errcode.DeviceUnavailable, "snapshot", "source closed")
	}
	return Snapshot{Current: m.current, Visible: maps.Clone(m.visible)}, nil
}

func (m *Memory) SetScene(name string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errcode.New(errcode.DeviceUnavailable, "set scene", "source closed")
	}
	if !slices.Contains(m.scenes, name) {
		m.mu.Unlock()
		return errcode.New(errcode.Error, "set scene", fmt.Sprintf("no scene %q", name))
	}
	changed := m.current != name
	m.current = name
	m.mu.Unlock()

	if changed {
		m.publish(Event{Kind: SceneSwitched, Scene: name})
	}
	return nil
}

func (m *Memory) SetItemVisible(it Item, visible bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errcode.New(errcode.DeviceUnavailable, "set visible", "source closed")
	}
	if it.Scene == "" {
		it.Scene = m.current
	}
	old, known := m.visible[it]
	if !known {
		m.mu.Unlock()
		return errcode.New(errcode.Error, "set visible", fmt.Sprintf("no item %s", it))
	}
	m.visible[it] = visible
	m.mu.Unlock()

	if old != visible {
		m.publish(Event{Kind: VisibilityChanged, Scene: it.Scene, Item: it.Name, Visible: visible})
	}
	return nil
}

// Close simulates the application shutting down
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.publish(Event{Kind: Exiting})
}

func (m *Memory) publish(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, id := range slices.Sorted(maps.Keys(m.subs)) {
		subs = append(subs, m.subs[id])
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
