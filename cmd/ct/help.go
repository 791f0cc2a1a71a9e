package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/cafetrace/internal/ui"
	"github.com/spf13/cobra"
)

var (
	reFlagType = regexp.MustCompile(`^(\s+(?:-\S, )?--\S+ )(string|strings|stringArray|int|float|duration)\b`)
	reDefault  = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc renders cobra's usage into a buffer and styles it line
// by line before writing it out.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		if noColor || !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = colorizeHelpLine(line)
	}
	return strings.Join(lines, "\n")
}

func colorizeHelpLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return line
	case line[0] != ' ' && strings.HasSuffix(trimmed, ":"):
		// Section header such as "Chain:" or "Flags:".
		return ui.RenderAccent(trimmed)
	case strings.HasPrefix(trimmed, "-"):
		if m := reFlagType.FindStringSubmatchIndex(line); m != nil {
			line = line[:m[3]] + ui.RenderMuted(line[m[4]:m[5]]) + line[m[5]:]
		}
		return reDefault.ReplaceAllStringFunc(line, ui.RenderMuted)
	case strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   "):
		// Command listing: "  name   description".
		name, rest, ok := strings.Cut(line[2:], " ")
		if ok && strings.HasPrefix(rest, " ") {
			return "  " + ui.RenderCommand(name) + " " + rest
		}
	}
	return line
}
