package outwriter

import (
	"os"

	"github.com/ktestci/ktestci/internal/contract"
	"golang.org/x/term"
)

// terminalWidth returns the width override, the detected terminal width,
// or a conservative default.
func terminalWidth(cfg *contract.Config) int {
	if cfg.Width > 0 {
		return cfg.Width
	}
	detected, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || detected <= 0 {
		return 80 // Conservative default for narrow terminals and CI
	}
	return detected
}

// GetMaxTextWidth calculates how wide a free-text column (commit subject,
// test list) may grow given fixed columns taking reserved cells.
func GetMaxTextWidth(cfg *contract.Config, reserved int) int {
	available := terminalWidth(cfg) - reserved - 20 // borders, separators, padding
	if available < 15 {
		return 15
	}
	if available > 80 {
		return 80
	}
	return available
}
