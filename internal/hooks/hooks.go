// Package hooks runs operator-configured shell commands when ledger events
// appear on the bus, e.g. paging someone on an integrity violation.
//
// Hooks are declared in a TOML file:
//
//	[[hook]]
//	name    = "page-on-tamper"
//	topic   = "cafetrace.integrity.violation"
//	command = "notify-oncall \"$CAFETRACE_MICROLOT_ID\""
//	timeout = 10
package hooks

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// OnFailure values.
const (
	OnFailureWarn   = "warn"
	OnFailureIgnore = "ignore"
)

// Hook is one command bound to a topic pattern.
type Hook struct {
	Name      string `toml:"name"`
	Topic     string `toml:"topic"` // NATS-style pattern
	Command   string `toml:"command"`
	Timeout   int    `toml:"timeout"` // seconds; 0 means DefaultTimeout
	Dir       string `toml:"dir"`
	OnFailure string `toml:"on_failure"` // "warn" (default) or "ignore"
}

type hookFile struct {
	Hooks []Hook `toml:"hook"`
}

// LoadFile reads hook definitions from a TOML file.
func LoadFile(path string) ([]Hook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hooks file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes and validates hook definitions.
func Parse(data string) ([]Hook, error) {
	var f hookFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("parsing hooks: %w", err)
	}
	for i := range f.Hooks {
		h := &f.Hooks[i]
		if h.Name == "" {
			h.Name = fmt.Sprintf("hook-%d", i+1)
		}
		if h.Topic == "" {
			return nil, fmt.Errorf("hook %s: topic is required", h.Name)
		}
		if h.Command == "" {
			return nil, fmt.Errorf("hook %s: command is required", h.Name)
		}
		if h.Timeout < 0 || h.Timeout > int(MaxTimeout.Seconds()) {
			return nil, fmt.Errorf("hook %s: timeout must be between 0 and %d seconds", h.Name, int(MaxTimeout.Seconds()))
		}
		switch h.OnFailure {
		case "":
			h.OnFailure = OnFailureWarn
		case OnFailureWarn, OnFailureIgnore:
		default:
			return nil, fmt.Errorf("hook %s: unknown on_failure %q", h.Name, h.OnFailure)
		}
	}
	return f.Hooks, nil
}
