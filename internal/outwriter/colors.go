package outwriter

import (
	"github.com/fatih/color"
	"github.com/ktestci/ktestci/schema"
)

var (
	passedColor     = color.New(color.FgGreen)
	failedColor     = color.New(color.FgRed, color.Bold)
	inProgressColor = color.New(color.FgYellow)
	notRunColor     = color.New(color.FgHiBlack)
	unknownColor    = color.New(color.FgMagenta)
	idleColor       = color.New(color.FgHiBlack)
)

// ColorStatus renders a status name in its display color. Coloring follows
// color.NoColor, which the root command sets from --color.
func ColorStatus(s schema.TestStatus) string {
	switch s {
	case schema.StatusPassed:
		return passedColor.Sprint(s.String())
	case schema.StatusFailed:
		return failedColor.Sprint(s.String())
	case schema.StatusInProgress:
		return inProgressColor.Sprint(s.String())
	case schema.StatusNotRun, schema.StatusNotStarted:
		return notRunColor.Sprint(s.String())
	default:
		return unknownColor.Sprint(s.String())
	}
}

// colorCount highlights a nonzero count in the status color.
func colorCount(n uint32, c *color.Color) string {
	if n == 0 {
		return "0"
	}
	return c.Sprint(n)
}
