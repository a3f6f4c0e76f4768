package modes

import (
	"errors"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/debug"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
	"go-inkdeck/mode"
	"go-inkdeck/scene"
)

const defaultFlash = 3 * time.Second

type sceneButton struct {
	name   string
	icon   string
	button int
}

type stateButton struct {
	icon    string
	button  int
	items   []scene.Item
	mute    bool
	visible bool
}

type flashButton struct {
	icon   string
	button int
	item   scene.Item
	dur    time.Duration
}

// Scene mirrors a scene-composition application: buttons switch scenes or
// toggle item visibility, and their icons follow the application's state
// as it is pushed. Only regions whose icon changed are redrawn.
type Scene struct {
	name      string
	title     string
	layout    device.Layout
	src       scene.Source
	scenes    []sceneButton
	states    []stateButton
	flash     *flashButton
	muteScene string
	live      colorful.Color
	muted     colorful.Color

	current    string
	vis        map[scene.Item]bool // last known visibility of every item
	shown      map[device.Region]device.Content
	cancel     func()
	flashTimer *time.Timer
}

// NewScene builds a scene mode driving src
func NewScene(spec config.ModeSpec, layout device.Layout, src scene.Source) (*Scene, error) {
	m := &Scene{
		name:      spec.Name,
		title:     spec.Title,
		layout:    layout,
		src:       src,
		muteScene: spec.Scene.MuteScene,
		live:      colorful.Color{G: 1},
		muted:     colorful.Color{R: 1},
	}
	if m.title == "" {
		m.title = spec.Name
	}

	used := make(map[int]bool)
	claim := func(n int) error {
		if n < 2 || n > layout.Buttons {
			return invalid(spec.Name, "button %d outside 2..%d", n, layout.Buttons)
		}
		if used[n] {
			return invalid(spec.Name, "button %d used twice", n)
		}
		used[n] = true
		return nil
	}

	for _, sc := range spec.Scene.Scenes {
		if err := claim(sc.Button); err != nil {
			return nil, err
		}
		m.scenes = append(m.scenes, sceneButton{name: sc.Name, icon: sc.Icon, button: sc.Button})
	}
	for _, st := range spec.Scene.States {
		if err := claim(st.Button); err != nil {
			return nil, err
		}
		b := stateButton{icon: st.Icon, button: st.Button, mute: st.Mute, visible: true}
		for _, it := range st.Items {
			b.items = append(b.items, scene.ParseItem(it))
		}
		m.states = append(m.states, b)
	}
	if f := spec.Scene.Flash; f != nil {
		if err := claim(f.Button); err != nil {
			return nil, err
		}
		dur := f.For
		if dur <= 0 {
			dur = defaultFlash
		}
		m.flash = &flashButton{icon: f.Icon, button: f.Button, item: scene.ParseItem(f.Item), dur: dur}
	}

	var err error
	if spec.Scene.Live != "" {
		if m.live, err = device.ParseColor(spec.Scene.Live); err != nil {
			return nil, invalid(spec.Name, "live: %v", err)
		}
	}
	if spec.Scene.Muted != "" {
		if m.muted, err = device.ParseColor(spec.Scene.Muted); err != nil {
			return nil, invalid(spec.Name, "muted: %v", err)
		}
	}
	return m, nil
}

func (m *Scene) Name() string { return m.name }

func (m *Scene) Regions() []device.Region {
	return m.layout.Regions()
}

// render maps the current state to region content
func (m *Scene) render() map[device.Region]device.Content {
	out := make(map[device.Region]device.Content, len(m.scenes)+len(m.states)+1)
	for _, sc := range m.scenes {
		out[device.Button(sc.button)] = device.Icon(sc.icon, device.IconStyle{Centered: true, Marked: sc.name == m.current})
	}
	for _, st := range m.states {
		out[device.Button(st.button)] = device.Icon(st.icon, device.IconStyle{Centered: true, Crossed: !st.visible})
	}
	if m.flash != nil {
		out[device.Button(m.flash.button)] = device.Icon(m.flash.icon, device.IconStyle{Centered: true})
	}
	return out
}

// apply folds one pushed event into the mode state
func (m *Scene) apply(ev scene.Event) {
	switch ev.Kind {
	case scene.SceneSwitched:
		m.current = ev.Scene
		// unscoped items now refer to the new scene
		m.refresh()
	case scene.VisibilityChanged:
		it := scene.Item{Scene: ev.Scene, Name: ev.Item}
		m.vis[it] = ev.Visible
		for i := range m.states {
			for _, x := range m.states[i].items {
				if m.resolve(x) == it {
					m.states[i].visible = ev.Visible
				}
			}
		}
	}
}

// refresh recomputes every state button from the visibility cache
func (m *Scene) refresh() {
	for i := range m.states {
		m.states[i].visible = true
		for _, it := range m.states[i].items {
			if v, ok := m.vis[m.resolve(it)]; ok {
				m.states[i].visible = v
			}
		}
	}
}

// resolve pins an item of the current scene to that scene
func (m *Scene) resolve(it scene.Item) scene.Item {
	if it.Scene == "" {
		it.Scene = m.current
	}
	return it
}

func (m *Scene) isMuted() bool {
	if m.muteScene != "" && m.current == m.muteScene {
		return true
	}
	for _, st := range m.states {
		if st.mute && !st.visible {
			return true
		}
	}
	return false
}

func (m *Scene) updateLEDs(s mode.Session) {
	c := m.live
	if m.isMuted() {
		c = m.muted
	}
	s.SetLeds(fill([]colorful.Color{c}, m.layout.LEDs))
}

func (m *Scene) load() error {
	snap, err := m.src.Snapshot()
	if err != nil {
		m.vis = make(map[scene.Item]bool)
		return err
	}
	m.current = snap.Current
	m.vis = snap.Visible
	if m.vis == nil {
		m.vis = make(map[scene.Item]bool)
	}
	m.refresh()
	return nil
}

func (m *Scene) Activate(s mode.Session) error {
	loadErr := m.load()
	if loadErr != nil {
		loadErr = errcode.Wrap(errcode.Of(loadErr), "scene snapshot", loadErr)
	}

	// assignment errors do not stop the rest of the activation
	var errs []error
	s.SetText(device.RegionTitle, m.title, true)
	for _, in := range []action.Input{action.DialCW, action.DialCCW} {
		errs = append(errs, s.AssignAction(in, nil))
	}

	next := m.render()
	for n := 1; n <= m.layout.Buttons; n++ {
		if _, ok := next[device.Button(n)]; !ok {
			s.SetText(device.Button(n), "", false)
		}
		// buttons only run callbacks in this mode
		errs = append(errs, assignPair(s, n, nil, nil))
	}

	for _, sc := range m.scenes {
		name := sc.name
		s.RegisterCallback(action.ButtonPress(sc.button), func() {
			if err := m.src.SetScene(name); err != nil {
				debug.Log("scene", "set scene %s: %v", name, err)
			}
		})
	}
	for i := range m.states {
		st := &m.states[i]
		s.RegisterCallback(action.ButtonPress(st.button), func() {
			m.toggle(st)
		})
	}
	if m.flash != nil {
		s.RegisterCallback(action.ButtonPress(m.flash.button), m.playFlash)
	}

	m.cancel = m.src.Subscribe(func(ev scene.Event) {
		s.Post(func() { m.handle(s, ev) })
	})

	device.Redraw(s, nil, next, true)
	m.shown = next
	m.updateLEDs(s)
	errs = append(errs, s.Flush(), loadErr)
	return errors.Join(errs...)
}

func (m *Scene) toggle(st *stateButton) {
	visible := !st.visible
	for _, it := range st.items {
		if err := m.src.SetItemVisible(it, visible); err != nil {
			debug.Log("scene", "toggle %s: %v", it, err)
		}
	}
}

func (m *Scene) playFlash() {
	f := m.flash
	if err := m.src.SetItemVisible(f.item, true); err != nil {
		debug.Log("scene", "flash %s: %v", f.item, err)
		return
	}
	if m.flashTimer != nil {
		m.flashTimer.Stop()
	}
	src, item := m.src, f.item
	m.flashTimer = time.AfterFunc(f.dur, func() {
		if err := src.SetItemVisible(item, false); err != nil {
			debug.Log("scene", "flash end %s: %v", item, err)
		}
	})
}

// handle runs on the scheduler for each pushed event
func (m *Scene) handle(s mode.Session, ev scene.Event) {
	if ev.Kind == scene.Exiting {
		debug.Log("scene", "%s: application exiting", m.name)
		return
	}
	m.apply(ev)
	next := m.render()
	if device.Redraw(s, m.shown, next, false) {
		if err := s.Flush(); err != nil {
			debug.Log("scene", "flush: %v", err)
		}
	}
	m.shown = next
	m.updateLEDs(s)
}

func (m *Scene) Poll(mode.Session) (time.Duration, error) {
	return mode.NoPoll, nil
}

// Animate leaves the LEDs alone: they show mute state permanently
func (m *Scene) Animate(mode.Session) error {
	return nil
}

func (m *Scene) Deactivate(s mode.Session) error {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.flashTimer != nil {
		m.flashTimer.Stop()
		m.flashTimer = nil
	}
	s.ClearAllCallbacks()
	return nil
}
