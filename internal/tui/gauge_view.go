package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/speedtest"
)

const (
	// DefaultViewWidth is the width of the boxed view in columns.
	DefaultViewWidth = 44

	minViewWidth = 24
	maxDialSize  = 6
	viewTitle    = "Speed test"
)

// GaugeView renders speed test progress to a terminal. It implements
// speedtest.Sink.
//
// On an interactive terminal the whole view is redrawn in place after every
// update. Any other writer gets one plain line per phase change, result and
// error.
type GaugeView struct {
	mu          sync.Mutex
	term        *Terminal
	mapping     gauge.Mapping
	interactive bool
	color       bool
	bell        bool
	width       int

	state    speedtest.State
	phase    speedtest.Phase
	mbps     float64
	progress float64
	result   *speedtest.Session
	message  string

	// drawn is the number of lines of the last frame.
	drawn int
}

// ViewOption configures a GaugeView.
type ViewOption func(*GaugeView)

// WithInteractive forces in-place redrawing on or off.
func WithInteractive(on bool) ViewOption {
	return func(v *GaugeView) { v.interactive = on }
}

// WithColor forces ANSI colors on or off.
func WithColor(on bool) ViewOption {
	return func(v *GaugeView) { v.color = on }
}

// WithBell rings the terminal bell when a session ends.
func WithBell(on bool) ViewOption {
	return func(v *GaugeView) { v.bell = on }
}

// WithWidth sets the view width in columns.
func WithWidth(width int) ViewOption {
	return func(v *GaugeView) { v.width = max(width, minViewWidth) }
}

// NewGaugeView creates a view writing to out. Redrawing and colors default
// to on when out is a terminal.
func NewGaugeView(out io.Writer, mapping gauge.Mapping, opts ...ViewOption) *GaugeView {
	term := NewTerminal(out)
	v := &GaugeView{
		term:        term,
		mapping:     mapping,
		interactive: term.IsTerminal(),
		color:       term.IsTerminal(),
		width:       DefaultViewWidth,
		state:       speedtest.StateIdle,
	}
	if w, _, err := term.Size(); err == nil && w < v.width {
		v.width = max(w, minViewWidth)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Interactive reports whether the view redraws in place.
func (v *GaugeView) Interactive() bool {
	return v.interactive
}

// PhaseChanged implements speedtest.Sink.
func (v *GaugeView) PhaseChanged(state speedtest.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = state
	if phase, ok := state.Phase(); ok {
		v.phase = phase
	}
	switch state {
	case speedtest.StatePinging:
		v.mbps, v.progress = 0, 0
		v.result = nil
		v.message = ""
	case speedtest.StateIdle:
		v.phase = ""
		v.mbps, v.progress = 0, 0
	case speedtest.StateCompleted, speedtest.StateFailed:
		if v.bell {
			v.term.RingBell()
		}
	}

	if !v.interactive {
		v.term.WriteLine("phase: " + state.String())
		return
	}
	v.redraw()
}

// Sample implements speedtest.Sink.
func (v *GaugeView) Sample(sample speedtest.Sample) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.phase = sample.Phase
	v.mbps = sample.Mbps
	v.progress = sample.Progress
	if v.interactive {
		v.redraw()
	}
}

// Result implements speedtest.Sink.
func (v *GaugeView) Result(session speedtest.Session) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.result = &session
	if !v.interactive {
		v.term.WriteLine("result: " + Summary(session))
		return
	}
	v.redraw()
}

// Error implements speedtest.Sink.
func (v *GaugeView) Error(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.message = message
	if !v.interactive {
		v.term.WriteLine("error: " + message)
		return
	}
	v.redraw()
}

// Reset implements speedtest.Sink. The needle returns to zero; readouts of
// the last session stay visible.
func (v *GaugeView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.phase = ""
	v.mbps, v.progress = 0, 0
	if v.interactive {
		v.redraw()
	}
}

// Close restores the cursor if the view hid it.
func (v *GaugeView) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.interactive && v.drawn > 0 {
		v.term.ShowCursor()
	}
	return nil
}

// Frame returns the lines of the current view.
func (v *GaugeView) Frame() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame()
}

func (v *GaugeView) redraw() {
	if v.drawn == 0 {
		v.term.HideCursor()
	}
	v.term.MoveUp(v.drawn)
	lines := v.frame()
	for _, line := range lines {
		v.term.OverwriteLine(line)
	}
	v.drawn = len(lines)
}

func (v *GaugeView) frame() []string {
	inner := v.width - 4
	radius := min(maxDialSize, (inner-1)/4)

	state := v.state.String()
	gap := max(inner-len(viewTitle)-len(state), 1)
	content := []string{
		v.style(viewTitle, Bold) + strings.Repeat(" ", gap) + v.style(state, StatusColor(v.state), Bold),
	}

	for _, line := range Dial(v.mapping.Angle(v.mbps), radius) {
		content = append(content, CenterText(line, inner))
	}

	content = append(content, v.style(CenterText(fmt.Sprintf("%.1f Mbps", v.mbps), inner), Bold))

	switch v.phase {
	case speedtest.PhaseDownload:
		content = append(content, ProgressBar(v.progress, inner))
	case speedtest.PhaseUpload:
		content = append(content, v.style(CenterText("upload (simulated)", inner), Dim))
	default:
		content = append(content, "")
	}

	content = append(content, v.readouts())

	if v.message != "" {
		content = append(content, v.style(Truncate(v.message, inner), FgRed))
	} else {
		content = append(content, "")
	}

	return BoxWithContent(v.width, content)
}

func (v *GaugeView) readouts() string {
	ping, down, up := "--", "--", "--"
	if r := v.result; r != nil {
		ping = fmt.Sprintf("%.0f ms", r.PingMs)
		down = fmt.Sprintf("%.1f", r.DownloadMbps)
		up = fmt.Sprintf("%.1f", r.UploadMbps)
	}
	return fmt.Sprintf("Ping %s  Down %s  Up %s", ping, down, up)
}

func (v *GaugeView) style(s string, codes ...string) string {
	if !v.color {
		return s
	}
	return Style(s, codes...)
}

// Summary formats a completed session on one line.
func Summary(s speedtest.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ping %.0f ms", s.PingMs)
	if s.PingFallback {
		b.WriteString(" (estimated)")
	}
	fmt.Fprintf(&b, ", download %.2f Mbps", s.DownloadMbps)
	if s.DownloadError != "" {
		b.WriteString(" (failed: " + s.DownloadError + ")")
	}
	fmt.Fprintf(&b, ", upload %.2f Mbps", s.UploadMbps)
	if s.UploadSimulated {
		b.WriteString(" (simulated)")
	}
	return b.String()
}
