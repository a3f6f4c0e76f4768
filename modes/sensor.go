package modes

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/errcode"
	"go-inkdeck/mode"
)

// Probe reads one value from a sensor
type Probe interface {
	Read() (float64, error)
}

// FileProbe reads a number from a file, as written by sysfs or a helper
// daemon
type FileProbe struct {
	Path string
}

func (p FileProbe) Read() (float64, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, errcode.Wrap(errcode.DeviceUnavailable, "read "+p.Path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, errcode.Wrap(errcode.Error, "parse "+p.Path, err)
	}
	return v, nil
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func() (float64, error)

func (f ProbeFunc) Read() (float64, error) { return f() }

// Sensor is a table mode with one region showing a polled reading. The
// LEDs blend from the good to the bad colour as the reading rises.
type Sensor struct {
	*Table
	probe    Probe
	region   device.Region
	format   string
	interval time.Duration
	good     float64
	bad      float64
	goodC    colorful.Color
	badC     colorful.Color

	shown string
	read  bool // a reading has coloured the LEDs this activation
}

// NewSensor builds a sensor mode reading from probe
func NewSensor(spec config.ModeSpec, layout device.Layout, probe Probe) (*Sensor, error) {
	t, err := NewTable(spec, layout)
	if err != nil {
		return nil, err
	}
	ss := spec.Sensor
	if ss.Button < 1 || ss.Button > layout.Buttons {
		return nil, invalid(spec.Name, "sensor button %d outside 1..%d", ss.Button, layout.Buttons)
	}
	if _, taken := t.buttons[ss.Button]; taken || (ss.Button == 1 && t.jog != nil) {
		return nil, invalid(spec.Name, "sensor button %d is already bound", ss.Button)
	}
	m := &Sensor{
		Table:    t,
		probe:    probe,
		region:   device.Button(ss.Button),
		format:   ss.Format,
		interval: ss.Interval,
		good:     ss.Good,
		bad:      ss.Bad,
		goodC:    colorful.Color{G: 1},
		badC:     colorful.Color{R: 1},
	}
	if m.format == "" {
		m.format = "%.1f"
	}
	if m.interval <= 0 {
		m.interval = 10 * time.Second
	}
	if ss.GoodColor != "" {
		if m.goodC, err = device.ParseColor(ss.GoodColor); err != nil {
			return nil, invalid(spec.Name, "good_color: %v", err)
		}
	}
	if ss.BadColor != "" {
		if m.badC, err = device.ParseColor(ss.BadColor); err != nil {
			return nil, invalid(spec.Name, "bad_color: %v", err)
		}
	}
	return m, nil
}

func (m *Sensor) Activate(s mode.Session) error {
	err := m.stage(s)
	m.shown = "--"
	m.read = false
	s.SetText(m.region, m.shown, false)
	return errors.Join(err, s.Flush())
}

// Poll reads the probe and redraws only when the formatted value changed
func (m *Sensor) Poll(s mode.Session) (time.Duration, error) {
	v, err := m.probe.Read()
	if err != nil {
		return m.interval, err
	}

	s.SetLeds(fill([]colorful.Color{m.color(v)}, m.layout.LEDs))
	m.read = true

	text := fmt.Sprintf(m.format, v)
	if text != m.shown {
		m.shown = text
		s.SetText(m.region, text, false)
		if err := s.Flush(); err != nil {
			return m.interval, err
		}
	}
	return m.interval, nil
}

// color maps v onto the good..bad blend
func (m *Sensor) color(v float64) colorful.Color {
	if m.bad == m.good {
		if v >= m.bad {
			return m.badC
		}
		return m.goodC
	}
	t := (v - m.good) / (m.bad - m.good)
	switch {
	case t <= 0:
		return m.goodC
	case t >= 1:
		return m.badC
	}
	return m.goodC.BlendLab(m.badC, t).Clamped()
}

// Animate keeps the reading colour once there is one, and behaves like
// the table until then
func (m *Sensor) Animate(s mode.Session) error {
	if m.read {
		return nil
	}
	return m.Table.Animate(s)
}
