// Package ui holds the terminal styling shared by ct commands.
package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderOK returns s in green: verified chains, passed tests, active certificates.
func RenderOK(s string) string { return render(colorOK, s) }

// RenderWarn returns s in amber.
func RenderWarn(s string) string { return render(colorWarn, s) }

// RenderFail returns s in red: broken chains, failed tests, revocations.
func RenderFail(s string) string { return render(colorFail, s) }

// RenderCheck renders a pass/fail word.
func RenderCheck(ok bool, pass, fail string) string {
	if ok {
		return RenderOK(pass)
	}
	return RenderFail(fail)
}

// ShouldUseColor reports whether stdout should get ANSI colors, following
// NO_COLOR, CLICOLOR_FORCE, CLICOLOR and TERM=dumb before falling back to
// TTY detection.
func ShouldUseColor() bool {
	return colorEnabled(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

func colorEnabled(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0", getenv("TERM") == "dumb":
		return false
	}
	return tty
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
