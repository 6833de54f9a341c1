package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// StatusLinePrinter prints a dynamically updating, single-line status
// message (e.g. "watching for changes...") to the console, overwriting its
// own previous content on each call rather than scrolling the terminal.
type StatusLinePrinter struct {
	// UseStandardError routes output to standard error instead of standard
	// output.
	UseStandardError bool
	nonEmpty         bool
}

// Print overwrites the status line with message. Color escape sequences
// are supported; the message is truncated or padded to the platform's
// status line width.
func (p *StatusLinePrinter) Print(message string) {
	output := color.Output
	if p.UseStandardError {
		output = color.Error
	}
	fmt.Fprintf(output, statusLineFormat, message)
	p.nonEmpty = true
}

// Clear wipes any existing status line content and returns the cursor to
// the start of the line.
func (p *StatusLinePrinter) Clear() {
	p.Print("")
	output := os.Stdout
	if p.UseStandardError {
		output = os.Stderr
	}
	fmt.Fprint(output, "\r")
	p.nonEmpty = false
}

// BreakIfNonEmpty prints a newline if the status line currently holds
// content, so a subsequent log line doesn't run into it.
func (p *StatusLinePrinter) BreakIfNonEmpty() {
	if !p.nonEmpty {
		return
	}
	output := os.Stdout
	if p.UseStandardError {
		output = os.Stderr
	}
	fmt.Fprintln(output)
	p.nonEmpty = false
}
