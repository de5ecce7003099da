package logging

import "github.com/fatih/color"

// Per-level colors for the leveled logger's "LEVEL/tag[file:line]" prefix.
// Error is bold so it stands out scrolling past in a terminal.
var levelColor = map[Level]*color.Color{
	Error: color.New(color.FgRed, color.Bold),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgGreen),
	Debug: color.New(color.FgCyan),
}

// colorize returns s wrapped in this level's color escape codes, or s
// unchanged if color output is disabled (NO_COLOR, non-tty, etc — handled
// by the color package itself).
func (l Level) colorize(s string) string {
	c, ok := levelColor[l]
	if !ok {
		c = color.New(color.FgWhite)
	}
	return c.Sprint(s)
}
