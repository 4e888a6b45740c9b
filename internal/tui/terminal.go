// Package tui renders the speed test gauge in a terminal.
package tui

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// fder is implemented by *os.File.
type fder interface {
	Fd() uintptr
}

// Terminal writes to an output that may or may not be a terminal and
// provides ANSI escape helpers.
type Terminal struct {
	out    io.Writer
	fd     int
	isTerm bool
}

// NewTerminal creates a Terminal writing to out. Escape sequences are only
// meaningful when out is a terminal; see IsTerminal.
func NewTerminal(out io.Writer) *Terminal {
	t := &Terminal{out: out, fd: -1}
	if f, ok := out.(fder); ok {
		t.fd = int(f.Fd())
		t.isTerm = term.IsTerminal(t.fd)
	}
	return t
}

// IsTerminal reports whether the output is an interactive terminal.
func (t *Terminal) IsTerminal() bool {
	return t.isTerm
}

// Size returns the current terminal width and height.
func (t *Terminal) Size() (width, height int, err error) {
	if !t.isTerm {
		return 0, 0, fmt.Errorf("output is not a terminal")
	}
	width, height, err = term.GetSize(t.fd)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get terminal size: %w", err)
	}
	return width, height, nil
}

// ANSI escape sequences
const (
	// Screen control
	ClearScreen = "\033[2J"   // Clear entire screen
	ClearLine   = "\033[K"    // Clear from cursor to end of line
	CursorHome  = "\033[H"    // Move cursor to home position (1,1)
	CursorHide  = "\033[?25l" // Hide cursor
	CursorShow  = "\033[?25h" // Show cursor

	// Text attributes
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	// Foreground colors
	FgRed     = "\033[31m"
	FgGreen   = "\033[32m"
	FgYellow  = "\033[33m"
	FgBlue    = "\033[34m"
	FgMagenta = "\033[35m"
	FgCyan    = "\033[36m"

	// Bright foreground colors
	FgBrightBlack = "\033[90m"
	FgBrightGreen = "\033[92m"

	// Bell
	Bell = "\a"
)

// CursorUp returns an ANSI escape sequence to move the cursor up n lines.
func CursorUp(n int) string {
	return fmt.Sprintf("\033[%dA", n)
}

// HideCursor hides the cursor.
func (t *Terminal) HideCursor() {
	fmt.Fprint(t.out, CursorHide)
}

// ShowCursor shows the cursor.
func (t *Terminal) ShowCursor() {
	fmt.Fprint(t.out, CursorShow)
}

// RingBell sounds the terminal bell.
func (t *Terminal) RingBell() {
	fmt.Fprint(t.out, Bell)
}

// MoveUp moves the cursor up n lines. It does nothing for n <= 0.
func (t *Terminal) MoveUp(n int) {
	if n > 0 {
		fmt.Fprint(t.out, CursorUp(n))
	}
}

// Write writes the given string to the terminal output.
func (t *Terminal) Write(s string) {
	fmt.Fprint(t.out, s)
}

// WriteLine writes a string followed by a newline to the terminal output.
func (t *Terminal) WriteLine(s string) {
	fmt.Fprintln(t.out, s)
}

// Writef writes a formatted string to the terminal output.
func (t *Terminal) Writef(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

// OverwriteLine replaces the current line with s and moves to the next.
func (t *Terminal) OverwriteLine(s string) {
	fmt.Fprint(t.out, "\r"+s+ClearLine+"\n")
}
