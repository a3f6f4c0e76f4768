package modes

import (
	"slices"

	"go.uber.org/zap"

	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/mode"
	"go-inkdeck/scene"
)

// Deps are the collaborators modes need beyond the device
type Deps struct {
	// Source drives scene modes. When nil each scene mode gets an
	// in-process source built from its own table.
	Source scene.Source
	// Probe opens the sensor of a sensor mode; nil reads spec.Path
	Probe func(config.SensorSpec) Probe
}

// Build creates the mode described by spec
func Build(spec config.ModeSpec, layout device.Layout, deps Deps) (mode.Mode, error) {
	switch spec.Kind {
	case config.KindScene:
		src := deps.Source
		if src == nil {
			src = MemorySource(spec.Scene)
		}
		return NewScene(spec, layout, src)
	case config.KindSensor:
		var p Probe = FileProbe{Path: spec.Sensor.Path}
		if deps.Probe != nil {
			p = deps.Probe(spec.Sensor)
		}
		return NewSensor(spec, layout, p)
	case config.KindTable, "":
		return NewTable(spec, layout)
	default:
		return nil, invalid(spec.Name, "unknown kind %q", spec.Kind)
	}
}

// BuildAll builds every configured mode. Modes that fail to build are
// logged and skipped; an empty result is an error.
func BuildAll(cfg *config.Config, layout device.Layout, deps Deps, logger *zap.SugaredLogger) (*mode.Registry, error) {
	reg := mode.NewRegistry()
	for _, spec := range cfg.Modes {
		m, err := Build(spec, layout, deps)
		if err != nil {
			logger.Warnw("Skipping mode", "name", spec.Name, "error", err)
			continue
		}
		reg.Add(m)
	}
	if reg.Len() == 0 {
		return nil, invalid("*", "no usable modes")
	}
	return reg, nil
}

// MemorySource builds an in-process source holding every scene and item a
// scene table refers to. State items start visible, the flash item hidden.
func MemorySource(spec config.SceneSpec) *scene.Memory {
	var names []string
	for _, sc := range spec.Scenes {
		if !slices.Contains(names, sc.Name) {
			names = append(names, sc.Name)
		}
	}
	if spec.MuteScene != "" && !slices.Contains(names, spec.MuteScene) {
		names = append(names, spec.MuteScene)
	}

	mem := scene.NewMemory(names...)
	for _, st := range spec.States {
		for _, raw := range st.Items {
			it := scene.ParseItem(raw)
			if it.Scene == "" {
				for _, n := range names {
					mem.AddItem(scene.Item{Scene: n, Name: it.Name}, true)
				}
				continue
			}
			mem.AddItem(it, true)
		}
	}
	if spec.Flash != nil {
		it := scene.ParseItem(spec.Flash.Item)
		if it.Scene != "" {
			mem.AddItem(it, false)
		} else {
			for _, n := range names {
				mem.AddItem(scene.Item{Scene: n, Name: it.Name}, false)
			}
		}
	}
	return mem
}
