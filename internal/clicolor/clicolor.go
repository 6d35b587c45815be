// Package clicolor colorizes CLI output: one exported function per
// semantic color, each building a fatih/color.Color on the fly and
// deciding at call time whether to actually emit escape codes.
package clicolor

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Enabled reports whether color escapes should be written to stdout,
// mirroring the standard "only colorize a real terminal" rule: a piped
// or redirected stdout gets plain text.
func Enabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func paint(attr color.Attribute, s string, enabled bool) string {
	c := color.New(attr)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.SprintFunc()(s)
}

// Cyan renders informational lines, e.g. a "started" reload-progress event.
func Cyan(s string, enabled bool) string { return paint(color.FgHiCyan, s, enabled) }

// Green renders a successful outcome, e.g. a "finished" event with Success.
func Green(s string, enabled bool) string { return paint(color.FgHiGreen, s, enabled) }

// Yellow renders a reload-progress warn line.
func Yellow(s string, enabled bool) string { return paint(color.FgHiYellow, s, enabled) }

// Red renders a reload-progress error line or a failed ExecuteCommand.
func Red(s string, enabled bool) string { return paint(color.FgHiRed, s, enabled) }

// Magenta renders a verbose raw-packet dump line.
func Magenta(s string, enabled bool) string { return paint(color.FgHiMagenta, s, enabled) }
