package config

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"go-inkdeck/errcode"
)

// Transport identifies how the pad is reached
type Transport string

const (
	TransportSim       Transport = "sim"
	TransportSerial    Transport = "serial"
	TransportLaunchpad Transport = "launchpad"
)

// Mode kinds
const (
	KindTable  = "table"
	KindScene  = "scene"
	KindSensor = "sensor"
)

// DeviceConfig selects and sizes the device
type DeviceConfig struct {
	Transport Transport `mapstructure:"transport"`
	Port      string    `mapstructure:"port"` // serial device or MIDI port name
	Baud      int       `mapstructure:"baud"`
	Buttons   int       `mapstructure:"buttons"`
	LEDs      int       `mapstructure:"leds"`
}

// SchedulerConfig tunes the mode scheduler
type SchedulerConfig struct {
	FPS         int           `mapstructure:"fps"`
	Strict      bool          `mapstructure:"strict"`
	Retry       time.Duration `mapstructure:"retry"`
	MaxRetry    time.Duration `mapstructure:"max_retry"`
	SwitchQueue int           `mapstructure:"switch_queue"`
}

// LogConfig controls the debug log
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// SelectorConfig drives automatic mode selection from the focused window
type SelectorConfig struct {
	Command  string        `mapstructure:"command"`
	Interval time.Duration `mapstructure:"interval"`
	Fallback string        `mapstructure:"fallback"`
}

// ButtonSpec is the content and bindings of one button
type ButtonSpec struct {
	Button   int      `mapstructure:"button"`
	Text     string   `mapstructure:"text"`
	Icon     string   `mapstructure:"icon"`
	Inverted bool     `mapstructure:"inverted"`
	Centered bool     `mapstructure:"centered"`
	Marked   bool     `mapstructure:"marked"`
	Crossed  bool     `mapstructure:"crossed"`
	Press    []string `mapstructure:"press"` // events, see action.ParseEvent
	Release  []string `mapstructure:"release"`
}

// JogSpec is one dial function
type JogSpec struct {
	Label string   `mapstructure:"label"`
	CW    []string `mapstructure:"cw"`
	CCW   []string `mapstructure:"ccw"`
	Next  string   `mapstructure:"next"` // label selected by a dial press, default the following entry
}

// LEDSpec is the LED behaviour of a mode
type LEDSpec struct {
	Colors []string `mapstructure:"colors"` // repeated to fill the strip
	Fade   bool     `mapstructure:"fade"`   // fade every tick
}

// SceneButton switches to a scene
type SceneButton struct {
	Name   string `mapstructure:"name"`
	Icon   string `mapstructure:"icon"`
	Button int    `mapstructure:"button"`
}

// StateButton toggles the visibility of items, given as "scene/item"
type StateButton struct {
	Icon   string   `mapstructure:"icon"`
	Button int      `mapstructure:"button"`
	Items  []string `mapstructure:"items"`
	Mute   bool     `mapstructure:"mute"` // LEDs turn red while hidden
}

// FlashButton shows an item for a while
type FlashButton struct {
	Icon   string        `mapstructure:"icon"`
	Button int           `mapstructure:"button"`
	Item   string        `mapstructure:"item"`
	For    time.Duration `mapstructure:"for"`
}

// SceneSpec configures a scene mode
type SceneSpec struct {
	Scenes    []SceneButton `mapstructure:"scenes"`
	States    []StateButton `mapstructure:"states"`
	Flash     *FlashButton  `mapstructure:"flash"`
	MuteScene string        `mapstructure:"mute_scene"`
	Live      string        `mapstructure:"live"`  // LED colour when live
	Muted     string        `mapstructure:"muted"` // LED colour when muted
}

// SensorSpec configures a sensor mode
type SensorSpec struct {
	Path      string        `mapstructure:"path"`
	Button    int           `mapstructure:"button"`
	Format    string        `mapstructure:"format"`
	Interval  time.Duration `mapstructure:"interval"`
	Good      float64       `mapstructure:"good"`
	Bad       float64       `mapstructure:"bad"`
	GoodColor string        `mapstructure:"good_color"`
	BadColor  string        `mapstructure:"bad_color"`
}

// ModeSpec is one mode table. Kind selects how it is built.
type ModeSpec struct {
	Name    string       `mapstructure:"name"`
	Kind    string       `mapstructure:"kind"`
	Title   string       `mapstructure:"title"`
	Match   []string     `mapstructure:"match"` // window title regexps
	Buttons []ButtonSpec `mapstructure:"buttons"`
	Jog     []JogSpec    `mapstructure:"jog"`
	LEDs    LEDSpec      `mapstructure:"leds"`
	Scene   SceneSpec    `mapstructure:"scene"`
	Sensor  SensorSpec   `mapstructure:"sensor"`
}

// Config is the main configuration structure
type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Selector  SelectorConfig  `mapstructure:"selector"`
	Modes     []ModeSpec      `mapstructure:"modes"`

	// Path is the file the config was read from, "" for the built-in one
	Path string `mapstructure:"-"`
}

//go:embed default.yaml
var defaultYAML []byte

const (
	configName = "config.yaml"
	localName  = "inkdeck.yaml"
	configType = "yaml"

	defaultTransport = TransportSim
	defaultBaud      = 115200
	defaultButtons   = 9
	defaultLEDs      = 20
	defaultFPS       = 30
	defaultRetry     = 250 * time.Millisecond
	defaultMaxRetry  = 5 * time.Second
	defaultQueue     = 4
	defaultInterval  = time.Second
	defaultFallback  = "Default"
)

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "inkdeck"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName), nil
}

// Find returns the first config file that exists: explicit, ./inkdeck.yaml,
// then ~/.config/inkdeck/config.yaml. "" means use the built-in config.
func Find(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{localName}
	if p, err := ConfigPath(); err == nil {
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType(configType)

	v.SetDefault("device.transport", string(defaultTransport))
	v.SetDefault("device.baud", defaultBaud)
	v.SetDefault("device.buttons", defaultButtons)
	v.SetDefault("device.leds", defaultLEDs)
	v.SetDefault("scheduler.fps", defaultFPS)
	v.SetDefault("scheduler.retry", defaultRetry)
	v.SetDefault("scheduler.max_retry", defaultMaxRetry)
	v.SetDefault("scheduler.switch_queue", defaultQueue)
	v.SetDefault("selector.interval", defaultInterval)
	v.SetDefault("selector.fallback", defaultFallback)
	v.SetDefault("log.level", "debug")
	return v
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	cfg, err := Parse(bytes.NewReader(defaultYAML), zap.NewNop().Sugar())
	if err != nil {
		panic(fmt.Sprintf("built-in config: %v", err))
	}
	return cfg
}

// Parse reads YAML from r
func Parse(r io.Reader, logger *zap.SugaredLogger) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "parse", err)
	}
	return fromViper(v, logger)
}

// Load reads the config at path, or the built-in config when path is ""
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	logger = logger.Named("config")
	if path == "" {
		logger.Debug("No config file, using built-in config")
		return Parse(bytes.NewReader(defaultYAML), logger)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("Viper failed to read config", "path", path, "error", err)
		return nil, errcode.Wrap(errcode.InvalidConfig, "load", err)
	}
	cfg, err := fromViper(v, logger)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	logger.Infow("Loaded config", "path", path, "modes", len(cfg.Modes), "transport", cfg.Device.Transport)
	return cfg, nil
}

func fromViper(v *viper.Viper, logger *zap.SugaredLogger) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "decode", err)
	}
	cfg.sanitize(logger)
	if len(cfg.Modes) == 0 {
		return nil, errcode.New(errcode.InvalidConfig, "decode", "no modes defined")
	}
	return &cfg, nil
}

func warnDefault(logger *zap.SugaredLogger, key string, invalid, def any) {
	logger.Warnw("Invalid value specified, using default value",
		"key", key,
		"invalidValue", invalid,
		"defaultValue", def)
}

// sanitize replaces invalid values with defaults and drops unusable modes
func (c *Config) sanitize(logger *zap.SugaredLogger) {
	switch c.Device.Transport {
	case TransportSim, TransportSerial, TransportLaunchpad:
	default:
		warnDefault(logger, "device.transport", c.Device.Transport, defaultTransport)
		c.Device.Transport = defaultTransport
	}
	if c.Device.Baud <= 0 {
		warnDefault(logger, "device.baud", c.Device.Baud, defaultBaud)
		c.Device.Baud = defaultBaud
	}
	if c.Device.Buttons < 1 || c.Device.Buttons > 16 {
		warnDefault(logger, "device.buttons", c.Device.Buttons, defaultButtons)
		c.Device.Buttons = defaultButtons
	}
	if c.Device.LEDs < 0 {
		warnDefault(logger, "device.leds", c.Device.LEDs, defaultLEDs)
		c.Device.LEDs = defaultLEDs
	}
	if c.Scheduler.FPS < 1 || c.Scheduler.FPS > defaultFPS {
		warnDefault(logger, "scheduler.fps", c.Scheduler.FPS, defaultFPS)
		c.Scheduler.FPS = defaultFPS
	}
	if c.Scheduler.Retry <= 0 {
		warnDefault(logger, "scheduler.retry", c.Scheduler.Retry, defaultRetry)
		c.Scheduler.Retry = defaultRetry
	}
	if c.Scheduler.MaxRetry < c.Scheduler.Retry {
		warnDefault(logger, "scheduler.max_retry", c.Scheduler.MaxRetry, defaultMaxRetry)
		c.Scheduler.MaxRetry = max(defaultMaxRetry, c.Scheduler.Retry)
	}
	if c.Scheduler.SwitchQueue < 1 {
		warnDefault(logger, "scheduler.switch_queue", c.Scheduler.SwitchQueue, defaultQueue)
		c.Scheduler.SwitchQueue = defaultQueue
	}
	if c.Selector.Interval <= 0 {
		warnDefault(logger, "selector.interval", c.Selector.Interval, defaultInterval)
		c.Selector.Interval = defaultInterval
	}

	seen := make(map[string]bool)
	modes := c.Modes[:0]
	for i, m := range c.Modes {
		if m.Kind == "" {
			m.Kind = KindTable
		}
		switch {
		case m.Name == "":
			logger.Warnw("Skipping mode without a name", "index", i)
			continue
		case seen[m.Name]:
			logger.Warnw("Skipping duplicate mode", "name", m.Name)
			continue
		case m.Kind != KindTable && m.Kind != KindScene && m.Kind != KindSensor:
			logger.Warnw("Skipping mode of unknown kind", "name", m.Name, "kind", m.Kind)
			continue
		}
		seen[m.Name] = true
		modes = append(modes, m)
	}
	c.Modes = modes

	if c.Selector.Fallback != "" && !seen[c.Selector.Fallback] && len(c.Modes) > 0 {
		warnDefault(logger, "selector.fallback", c.Selector.Fallback, c.Modes[0].Name)
		c.Selector.Fallback = c.Modes[0].Name
	}
}

// FindMode finds a mode spec by name
func (c *Config) FindMode(name string) *ModeSpec {
	for i := range c.Modes {
		if c.Modes[i].Name == name {
			return &c.Modes[i]
		}
	}
	return nil
}

// Watch reloads the config file whenever it is written and hands the new
// config to onChange. It blocks until ctx is done. Nothing is watched for
// the built-in config.
func Watch(ctx context.Context, path string, parent *zap.SugaredLogger, onChange func(*Config)) error {
	logger := parent.Named("config")
	if path == "" {
		<-ctx.Done()
		return nil
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errcode.Wrap(errcode.InvalidConfig, "watch", err)
	}

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)
	lastAttemptedReload := time.Now().Add(-minTimeBetweenReloadAttempts)

	logger.Debugw("Starting to watch config file for changes", "path", path)
	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		now := time.Now()
		if now.Before(lastAttemptedReload.Add(minTimeBetweenReloadAttempts)) {
			return
		}
		lastAttemptedReload = now
		<-time.After(delayBetweenEventAndReload)

		cfg, err := Load(path, parent)
		if err != nil {
			logger.Warnw("Failed to reload config file", "error", err)
			return
		}
		logger.Info("Reloaded config successfully")
		onChange(cfg)
	})
	v.WatchConfig()

	<-ctx.Done()
	logger.Debug("Stopping config file watcher")
	v.OnConfigChange(func(fsnotify.Event) {})
	return nil
}
