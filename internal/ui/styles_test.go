package ui

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	noColor = false
	t.Cleanup(func() { noColor = false })

	got := RenderFail("BROKEN")
	if !strings.HasPrefix(got, "\x1b[38;5;203m") || !strings.HasSuffix(got, "BROKEN\x1b[0m") {
		t.Errorf("RenderFail = %q", got)
	}
	if got := RenderCheck(true, "valid", "broken"); !strings.Contains(got, "valid") || !strings.Contains(got, "114") {
		t.Errorf("RenderCheck(true) = %q", got)
	}

	ForceNoColor()
	if got := RenderCheck(false, "valid", "broken"); got != "broken" {
		t.Errorf("RenderCheck without color = %q", got)
	}
	if got := RenderAccent("Microlots:"); got != "Microlots:" {
		t.Errorf("RenderAccent without color = %q", got)
	}
}

func TestColorEnabled(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty", nil, true, true},
		{"pipe", nil, false, false},
		{"no_color", map[string]string{"NO_COLOR": "1"}, true, false},
		{"no_color beats force", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, true, false},
		{"force on pipe", map[string]string{"CLICOLOR_FORCE": "1"}, false, true},
		{"clicolor off", map[string]string{"CLICOLOR": "0"}, true, false},
		{"dumb terminal", map[string]string{"TERM": "dumb"}, true, false},
		{"force beats dumb", map[string]string{"TERM": "dumb", "CLICOLOR_FORCE": "1"}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			getenv := func(k string) string { return tc.env[k] }
			if got := colorEnabled(getenv, tc.tty); got != tc.want {
				t.Errorf("colorEnabled = %v, want %v", got, tc.want)
			}
		})
	}
}
