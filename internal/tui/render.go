package tui

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/speedtest"
)

// Box drawing characters (Unicode)
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
)

// Dial characters
const (
	DialArc    = '·'
	DialNeedle = '•'
	DialHub    = '◉'
)

// Box draws a box with the given dimensions.
// Returns a slice of strings, one per line.
func Box(width, height int) []string {
	if width < 2 || height < 2 {
		return nil
	}

	lines := make([]string, height)
	lines[0] = BoxTopLeft + strings.Repeat(BoxHorizontal, width-2) + BoxTopRight
	middle := BoxVertical + strings.Repeat(" ", width-2) + BoxVertical
	for i := 1; i < height-1; i++ {
		lines[i] = middle
	}
	lines[height-1] = BoxBottomLeft + strings.Repeat(BoxHorizontal, width-2) + BoxBottomRight

	return lines
}

// BoxWithContent draws a box containing the given content lines.
// Each line is padded/truncated to fit within the box.
func BoxWithContent(width int, content []string) []string {
	if width < 4 {
		return nil
	}

	innerWidth := width - 4 // Account for borders and padding
	lines := make([]string, 0, len(content)+2)
	lines = append(lines, BoxTopLeft+strings.Repeat(BoxHorizontal, width-2)+BoxTopRight)
	for _, line := range content {
		lines = append(lines, BoxVertical+" "+PadOrTruncate(line, innerWidth)+" "+BoxVertical)
	}
	lines = append(lines, BoxBottomLeft+strings.Repeat(BoxHorizontal, width-2)+BoxBottomRight)

	return lines
}

// PadOrTruncate pads or truncates a string to exactly width characters.
// Width is visual: runes are counted and ANSI escape sequences are not.
func PadOrTruncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	visual := VisualWidth(s)
	if visual == width {
		return s
	}
	if visual < width {
		return s + strings.Repeat(" ", width-visual)
	}
	return truncateVisible(s, width)
}

// Truncate truncates a string to max width, adding ellipsis if needed.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if VisualWidth(s) <= width {
		return s
	}
	return truncateVisible(s, width)
}

// truncateVisible keeps the escape sequences of s but only width visible
// runes, the last three replaced by an ellipsis when width allows.
func truncateVisible(s string, width int) string {
	keep, ellipsis := width, ""
	if width >= 3 {
		keep, ellipsis = width-3, "..."
	}

	var b strings.Builder
	visible := 0
	for i := 0; i < len(s); {
		if n := escapeLen(s[i:]); n > 0 {
			b.WriteString(s[i : i+n])
			i += n
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if visible < keep {
			b.WriteRune(r)
			visible++
		}
		i += size
	}
	return b.String() + ellipsis
}

// escapeLen returns the length of the ANSI CSI sequence at the start of s,
// or 0 if s does not start with one.
func escapeLen(s string) int {
	if len(s) < 2 || s[0] != '\033' || s[1] != '[' {
		return 0
	}
	for i := 2; i < len(s); i++ {
		if s[i] >= 0x40 && s[i] <= 0x7e {
			return i + 1
		}
	}
	return len(s)
}

// StripAnsi removes ANSI escape sequences from s.
func StripAnsi(s string) string {
	if !strings.Contains(s, "\033[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if n := escapeLen(s[i:]); n > 0 {
			i += n
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// VisualWidth returns the number of runes s occupies on screen.
func VisualWidth(s string) int {
	return utf8.RuneCountInString(StripAnsi(s))
}

// CenterText centers text within the given width.
func CenterText(s string, width int) string {
	runeLen := VisualWidth(s)
	if runeLen >= width {
		return PadOrTruncate(s, width)
	}

	leftPad := (width - runeLen) / 2
	rightPad := width - runeLen - leftPad

	return strings.Repeat(" ", leftPad) + s + strings.Repeat(" ", rightPad)
}

// RightAlign right-aligns text within the given width.
func RightAlign(s string, width int) string {
	runeLen := VisualWidth(s)
	if runeLen >= width {
		return PadOrTruncate(s, width)
	}

	return strings.Repeat(" ", width-runeLen) + s
}

// ProgressBar renders a progress bar for a fraction in [0, 1].
// Returns a string like "[████████░░░░░░░░]  50%"
func ProgressBar(fraction float64, width int) string {
	if width < 10 {
		return ""
	}
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	fraction = min(fraction, 1)

	barWidth := width - 7 // Space for "[] XXX%"
	filled := int(fraction * float64(barWidth))
	empty := barWidth - filled

	bar := "[" +
		strings.Repeat("█", filled) +
		strings.Repeat("░", empty) +
		"]"

	return bar + " " + fmt.Sprintf("%3d", int(fraction*100)) + "%"
}

// Dial draws a half-circle gauge with the needle at angle degrees, where
// gauge.MinAngle points left, 0 points up and gauge.MaxAngle points right.
// Terminal cells are about twice as tall as they are wide, so the dial is
// 4*radius+1 columns by radius+1 rows. Angles outside the range are clamped.
func Dial(angle float64, radius int) []string {
	if radius < 2 {
		return nil
	}

	width, height := 4*radius+1, radius+1
	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	cx, cy := 2*radius, radius
	plot := func(deg, dist float64, r rune) {
		rad := deg * math.Pi / 180
		x := cx + int(math.Round(2*dist*math.Sin(rad)))
		y := cy - int(math.Round(dist*math.Cos(rad)))
		if y >= 0 && y < height && x >= 0 && x < width {
			grid[y][x] = r
		}
	}

	for deg := gauge.MinAngle; deg <= gauge.MaxAngle; deg += 5 {
		plot(deg, float64(radius), DialArc)
	}

	angle = math.Max(gauge.MinAngle, math.Min(gauge.MaxAngle, angle))
	for step := 1; step < radius; step++ {
		plot(angle, float64(step), DialNeedle)
	}
	grid[cy][cx] = DialHub

	lines := make([]string, height)
	for i, row := range grid {
		lines[i] = string(row)
	}
	return lines
}

// Style applies ANSI style codes to text.
func Style(s string, codes ...string) string {
	if len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + Reset
}

// StatusColor returns an appropriate color code for the given state.
func StatusColor(state speedtest.State) string {
	switch state {
	case speedtest.StatePinging:
		return FgYellow
	case speedtest.StateDownloading:
		return FgCyan
	case speedtest.StateUploading:
		return FgMagenta
	case speedtest.StateCompleted:
		return FgBrightGreen
	case speedtest.StateFailed:
		return FgRed
	case speedtest.StateIdle:
		return FgBrightBlack
	default:
		return ""
	}
}

// FormatState formats a state name with its color.
func FormatState(state speedtest.State) string {
	color := StatusColor(state)
	if color == "" {
		return state.String()
	}
	return Style(state.String(), color, Bold)
}
