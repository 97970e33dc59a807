package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/pkg/model"
)

// Config is the runtime configuration loaded from a YAML file.
type Config struct {
	// Scheduler
	UpdatesPerSecond int `yaml:"updates_per_second"` // Tick rate (default 20, a 50ms period)
	YieldThreshold   int `yaml:"yield_threshold"`    // Queue length from which the event pass yields (default 3)

	// Ambient
	Addr      string `yaml:"addr"`       // Control API listen address (default "127.0.0.1:8420"); empty disables the API
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // History database (default ~/.gametools/history.db, ":memory:" for testing)

	HistoryRetention time.Duration `yaml:"history_retention"` // Entries older than this are pruned at startup (default 168h, 0 keeps everything)

	// Domain
	Windows      []WindowConfig   `yaml:"windows"`
	States       []StateConfig    `yaml:"states"`
	InitialState string           `yaml:"initial_state"` // State entered when the main window opens
	Events       []EventConfig    `yaml:"events"`
	Listeners    []ListenerConfig `yaml:"listeners"`
	LogWatch     *LogWatchConfig  `yaml:"log_watch,omitempty"`
}

// WindowConfig describes a tracked top-level window.
type WindowConfig struct {
	ID    int    `yaml:"id"`    // 0..99
	Name  string `yaml:"name"`  // Title, or a substring of it unless Exact
	Exact bool   `yaml:"exact"` // Match the whole title
	Main  bool   `yaml:"main"`  // Drives the initial/closed state transitions
}

// StateConfig is a JavaScript-defined state.
type StateConfig struct {
	Name   string `yaml:"name"`
	Script string `yaml:"script"`
}

// EventConfig is a named JavaScript event template.
type EventConfig struct {
	Name     string `yaml:"name"`
	Priority string `yaml:"priority"` // INSTANT, FIRST, LAST (default LAST)
	Group    string `yaml:"group"`
	Script   string `yaml:"script"`
}

// ListenerConfig binds a key to an event template or to an instant action.
type ListenerConfig struct {
	Key       string `yaml:"key"`
	Event     string `yaml:"event,omitempty"`     // Event template created on press
	Action    string `yaml:"action,omitempty"`    // JavaScript run directly on press
	AlwaysNew bool   `yaml:"always_new"`          // Create a new event even if the previous one is still registered
	Condition string `yaml:"condition,omitempty"` // JavaScript expression gating activation
	Disabled  bool   `yaml:"disabled"`
}

// LogWatchConfig configures the game log tailer.
type LogWatchConfig struct {
	Path      string          `yaml:"path"`
	FromStart bool            `yaml:"from_start"` // Read existing content instead of starting at the end
	Patterns  []PatternConfig `yaml:"patterns"`
}

// PatternConfig maps matching log lines to an event template.
type PatternConfig struct {
	Name     string `yaml:"name"`
	Regex    string `yaml:"regex"`
	JSONPath string `yaml:"json_path,omitempty"` // Match Regex against this gjson path of JSON lines
	Event    string `yaml:"event"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpdatesPerSecond: 20,
		YieldThreshold:   3,
		Addr:             "127.0.0.1:8420",
		LogLevel:         "info",
		LogFormat:        "text",
		HistoryRetention: 7 * 24 * time.Hour,
	}
}

// Load reads a YAML file on top of DefaultConfig and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of DefaultConfig and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Event returns the event template with the given name.
func (c Config) Event(name string) (EventConfig, bool) {
	for _, e := range c.Events {
		if e.Name == name {
			return e, true
		}
	}
	return EventConfig{}, false
}

// Validate reports every problem found, joined into one error.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.UpdatesPerSecond <= 0 {
		add("updates_per_second must be positive, got %d", c.UpdatesPerSecond)
	}
	if c.YieldThreshold < 0 {
		add("yield_threshold must not be negative, got %d", c.YieldThreshold)
	}
	if c.HistoryRetention < 0 {
		add("history_retention must not be negative, got %s", c.HistoryRetention)
	}
	if c.LogFormat != "" && !logging.ValidFormat(c.LogFormat) {
		add("log_format must be text or json, got %q", c.LogFormat)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); c.LogLevel != "" && !ok {
		add("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	ids := map[int]bool{}
	mains := 0
	for i, w := range c.Windows {
		if w.Name == "" {
			add("windows[%d]: name is required", i)
		}
		if w.ID < 0 || w.ID > 99 {
			add("windows[%d]: id %d out of range 0..99", i, w.ID)
		} else if ids[w.ID] {
			add("windows[%d]: duplicate id %d", i, w.ID)
		}
		ids[w.ID] = true
		if w.Main {
			mains++
		}
	}
	if mains > 1 {
		add("windows: %d windows flagged main, at most one allowed", mains)
	}

	states := map[string]bool{}
	for i, s := range c.States {
		switch {
		case s.Name == "":
			add("states[%d]: name is required", i)
		case strings.EqualFold(s.Name, "closed"):
			add("states[%d]: name %q is reserved", i, s.Name)
		case states[s.Name]:
			add("states[%d]: duplicate name %q", i, s.Name)
		}
		states[s.Name] = true
		if strings.TrimSpace(s.Script) == "" {
			add("states[%d]: script is required", i)
		}
	}
	if c.InitialState != "" && !states[c.InitialState] {
		add("initial_state %q is not a configured state", c.InitialState)
	}

	events := map[string]bool{}
	for i, e := range c.Events {
		if e.Name == "" {
			add("events[%d]: name is required", i)
		} else if events[e.Name] {
			add("events[%d]: duplicate name %q", i, e.Name)
		}
		events[e.Name] = true
		if _, err := model.ParsePriority(e.Priority); err != nil {
			add("events[%d]: %w", i, err)
		}
		if strings.TrimSpace(e.Script) == "" {
			add("events[%d]: script is required", i)
		}
	}

	for i, l := range c.Listeners {
		if l.Key == "" {
			add("listeners[%d]: key is required", i)
		}
		switch {
		case l.Event == "" && l.Action == "":
			add("listeners[%d]: one of event or action is required", i)
		case l.Event != "" && l.Action != "":
			add("listeners[%d]: event and action are mutually exclusive", i)
		case l.Event != "" && !events[l.Event]:
			add("listeners[%d]: unknown event %q", i, l.Event)
		}
	}

	if lw := c.LogWatch; lw != nil {
		if lw.Path == "" {
			add("log_watch: path is required")
		}
		for i, p := range lw.Patterns {
			if p.Regex == "" {
				add("log_watch.patterns[%d]: regex is required", i)
			} else if _, err := regexp2.Compile(p.Regex, regexp2.None); err != nil {
				add("log_watch.patterns[%d]: invalid regex: %w", i, err)
			}
			if !events[p.Event] {
				add("log_watch.patterns[%d]: unknown event %q", i, p.Event)
			}
		}
	}

	return errors.Join(errs...)
}

// DatabasePath returns DBPath, or ~/.gametools/history.db when it is empty.
// The directory is created if needed.
func (c Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".gametools")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}
