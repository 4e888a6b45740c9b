package tui

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestANSIEscapeConstants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		constant string
		want     string
	}{
		{"ClearScreen", ClearScreen, "\033[2J"},
		{"ClearLine", ClearLine, "\033[K"},
		{"CursorHome", CursorHome, "\033[H"},
		{"CursorHide", CursorHide, "\033[?25l"},
		{"CursorShow", CursorShow, "\033[?25h"},
		{"Reset", Reset, "\033[0m"},
		{"Bold", Bold, "\033[1m"},
		{"FgRed", FgRed, "\033[31m"},
		{"FgGreen", FgGreen, "\033[32m"},
		{"FgBrightGreen", FgBrightGreen, "\033[92m"},
		{"Bell", Bell, "\a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.constant)
		})
	}
}

func TestCursorUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "\033[1A", CursorUp(1))
	assert.Equal(t, "\033[12A", CursorUp(12))
}

func TestTerminal_NotATerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	term := NewTerminal(&buf)
	assert.False(t, term.IsTerminal())

	_, _, err := term.Size()
	assert.Error(t, err)

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, NewTerminal(f).IsTerminal())
}

func TestTerminal_Writes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.HideCursor()
	term.Write("a")
	term.WriteLine("b")
	term.Writef("%d", 3)
	term.MoveUp(0)
	term.MoveUp(2)
	term.OverwriteLine("line")
	term.RingBell()
	term.ShowCursor()

	assert.Equal(t, CursorHide+"ab\n3"+"\033[2A"+"\rline"+ClearLine+"\n"+Bell+CursorShow, buf.String())
}
