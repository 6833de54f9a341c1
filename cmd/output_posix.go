//go:build !windows

package cmd

const (
	// statusLineFormat truncates and pads printed content to exactly 80
	// characters, so each redraw fully overwrites the previous line's
	// content without the cursor flashing between positions or overflowing
	// an 80-column terminal.
	statusLineFormat = "\r%-80.80s"
	// statusLineClearFormat adds a trailing carriage return so the cursor
	// returns to the start of the line after clearing it.
	statusLineClearFormat = statusLineFormat + "\r"
)
