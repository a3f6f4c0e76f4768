package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"go-inkdeck/errcode"
)

func observed() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Device.Transport != TransportSim || cfg.Device.Buttons != 9 || cfg.Device.LEDs != 20 {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Scheduler.FPS != 30 || cfg.Scheduler.Retry != 250*time.Millisecond {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}

	var names []string
	for _, m := range cfg.Modes {
		names = append(names, m.Name)
	}
	if got := strings.Join(names, ","); got != "Default,Gimp,Blender,OBS,Air" {
		t.Errorf("modes = %s", got)
	}

	obs := cfg.FindMode("OBS")
	if obs == nil || obs.Kind != KindScene {
		t.Fatalf("OBS mode = %+v", obs)
	}
	if len(obs.Scene.Scenes) != 4 || len(obs.Scene.States) != 3 {
		t.Errorf("OBS scene spec = %+v", obs.Scene)
	}
	if obs.Scene.Flash == nil || obs.Scene.Flash.For != 3*time.Second || obs.Scene.Flash.Item != "Order" {
		t.Errorf("flash = %+v", obs.Scene.Flash)
	}
	if got := obs.Scene.States[2].Items[0]; got != "Moderation/Mic: Moderation" {
		t.Errorf("state item = %q", got)
	}

	gimp := cfg.FindMode("Gimp")
	if len(gimp.Jog) != 2 || gimp.Jog[1].Label != "Tool opacity" {
		t.Errorf("gimp jog = %+v", gimp.Jog)
	}
	if got := gimp.Buttons[0].Press[0]; got != "key:LEFT_ALT:press" {
		t.Errorf("gimp press = %q", got)
	}
	if air := cfg.FindMode("Air"); air.Kind != KindSensor || air.Sensor.Interval != 10*time.Second {
		t.Errorf("air = %+v", air)
	}
	if cfg.FindMode("Word") != nil {
		t.Error("FindMode found a mode that does not exist")
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	logger, logs := observed()
	cfg, err := Parse(strings.NewReader(`
device:
  transport: usb
  buttons: 40
  baud: -1
scheduler:
  fps: 120
  retry: 10ms
  max_retry: 1ms
selector:
  fallback: Nope
modes:
  - name: Only
`), logger)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Device.Transport != TransportSim || cfg.Device.Buttons != 9 || cfg.Device.Baud != 115200 {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Scheduler.FPS != 30 || cfg.Scheduler.Retry != 10*time.Millisecond || cfg.Scheduler.MaxRetry != 5*time.Second {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Selector.Fallback != "Only" {
		t.Errorf("fallback = %q", cfg.Selector.Fallback)
	}
	if cfg.Modes[0].Kind != KindTable {
		t.Errorf("kind = %q, want table by default", cfg.Modes[0].Kind)
	}
	if n := logs.FilterMessage("Invalid value specified, using default value").Len(); n != 6 {
		t.Errorf("warnings = %d, want 6", n)
	}
}

func TestUnusableModesSkipped(t *testing.T) {
	logger, logs := observed()
	cfg, err := Parse(strings.NewReader(`
modes:
  - title: nameless
  - name: A
  - name: A
  - name: B
    kind: spreadsheet
  - name: C
    kind: scene
`), logger)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Modes) != 2 || cfg.Modes[0].Name != "A" || cfg.Modes[1].Name != "C" {
		t.Errorf("modes = %+v", cfg.Modes)
	}
	for _, msg := range []string{"Skipping mode without a name", "Skipping duplicate mode", "Skipping mode of unknown kind"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("missing warning %q", msg)
		}
	}
}

func TestNoModesIsInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader("device:\n  transport: sim\n"), zap.NewNop().Sugar())
	if errcode.Of(err) != errcode.InvalidConfig {
		t.Errorf("err = %v, want invalid_config", err)
	}
	_, err = Parse(strings.NewReader("modes: [\n"), zap.NewNop().Sugar())
	if errcode.Of(err) != errcode.InvalidConfig {
		t.Errorf("malformed yaml err = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inkdeck.yaml")
	if err := os.WriteFile(path, []byte("device:\n  transport: serial\n  port: /dev/ttyACM0\nmodes:\n  - name: Default\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != path || cfg.Device.Transport != TransportSerial || cfg.Device.Port != "/dev/ttyACM0" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop().Sugar()); errcode.Of(err) != errcode.InvalidConfig {
		t.Errorf("missing file err = %v", err)
	}

	builtin, err := Load("", zap.NewNop().Sugar())
	if err != nil || builtin.Path != "" || len(builtin.Modes) != 5 {
		t.Errorf("built-in load = %v, %v", builtin, err)
	}
	if Find(path) != path {
		t.Error("Find ignored the explicit path")
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("modes:\n  - name: A\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan *Config, 4)
	go Watch(ctx, path, zap.NewNop().Sugar(), func(cfg *Config) { reloaded <- cfg })

	// let the watcher start before writing
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("modes:\n  - name: A\n  - name: B\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Modes) != 2 {
			t.Errorf("reloaded modes = %+v", cfg.Modes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change not picked up")
	}
}
