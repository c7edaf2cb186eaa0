// Copyright (c) 2014-2020 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package logview

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// UseLiveViewer decides between the interactive bordered frame and a plain
// scrolling dump: a live viewer only makes sense on a real terminal, and
// even then CI can force the plain path since a redrawing frame is
// unreadable in captured build logs (§6, PGCTL_FORCE_ENABLE_LOG_VIEWER).
func UseLiveViewer(fd int, forceEnable bool) bool {
	if forceEnable {
		return true
	}
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(fd)
}

// LogViewer renders a fixed-height bordered frame showing the most recent
// lines tailed from a set of named log files, following log_viewer.py's
// LogViewer class.
type LogViewer struct {
	tailer      *Tailer
	nameToPath  map[string]string
	pathToName  map[string]string
	height      int
	prevWidth   int
	hasDrawn    bool
	visibleLine []string
}

// NewLogViewer starts tailing every path in nameToPath and returns a
// viewer that renders them in a frame of the given height (including the
// top and bottom border rows).
func NewLogViewer(height int, nameToPath map[string]string) (*LogViewer, error) {
	paths := make([]string, 0, len(nameToPath))
	pathToName := make(map[string]string, len(nameToPath))
	for name, path := range nameToPath {
		paths = append(paths, path)
		pathToName[path] = name
	}

	tailer, err := NewTailer(paths)
	if err != nil {
		return nil, err
	}

	return &LogViewer{
		tailer:     tailer,
		nameToPath: nameToPath,
		pathToName: pathToName,
		height:     height,
	}, nil
}

// terminalWidth returns the terminal's column count, defaulting to 80 for
// the degenerate sizes pty spawning often reports (log_viewer.py's guard
// against a 0x0 winsize).
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 5 {
		return 80
	}
	return width
}

// MoveCursorToTop returns the escape sequence that moves the cursor back to
// the top-left of the previously drawn frame, or the empty string before
// the first frame has been drawn.
func (v *LogViewer) MoveCursorToTop() string {
	if !v.hasDrawn {
		return ""
	}
	return fmt.Sprintf("\x1b[%dF", v.height+1)
}

// RedrawNeeded reports whether new log lines have arrived or the terminal
// has been resized since the last draw.
func (v *LogViewer) RedrawNeeded() bool {
	return v.tailer.NewLinesAvailable() || v.prevWidth != terminalWidth()
}

// ClearBelow returns the escape sequence clearing everything below the
// cursor, used before redrawing a frame whose content shrank.
func (v *LogViewer) ClearBelow() string {
	return "\x1b[0J"
}

// DrawLogs renders the next frame: it drains any newly tailed lines,
// appends them (stripped of ANSI escapes and prefixed with their service
// name) to the scrollback, and returns the full escape sequence for the
// bordered frame. The construction order --- disable wrap, draw title,
// re-enable wrap, draw box --- matches log_viewer.py's draw_logs exactly.
func (v *LogViewer) DrawLogs(title string) (string, error) {
	width := terminalWidth()

	events, err := v.tailer.GetLogs(0)
	if err != nil {
		return "", err
	}
	for _, event := range events {
		name := v.pathToName[event.Path]
		for _, line := range event.LogLines {
			v.visibleLine = append(v.visibleLine, fmt.Sprintf("[%s] %s", name, StripANSI(line)))
		}
	}

	maxLines := v.height - 2
	if maxLines < 0 {
		maxLines = 0
	}
	if len(v.visibleLine) > maxLines {
		v.visibleLine = v.visibleLine[len(v.visibleLine)-maxLines:]
	}

	var b strings.Builder
	b.WriteString("\x1b[?7l") // disable screen wrap
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString("\x1b[?7h") // re-enable screen wrap
	b.WriteString(drawnBox(width-1, v.height, v.visibleLine))

	v.prevWidth = width
	v.hasDrawn = true
	return b.String(), nil
}

// drawnBox renders the bordered frame itself: top border, one row per
// content line (padded/truncated to inner width), bottom border, cursor
// hide/show and wrap toggling bracketing the whole thing.
func drawnBox(width, height int, contentLines []string) string {
	innerWidth := width - 2
	innerHeight := height - 2
	if innerWidth < 0 {
		innerWidth = 0
	}
	if innerHeight < 0 {
		innerHeight = 0
	}

	var b strings.Builder
	b.WriteString("\x1b[?7l")                      // disable screen wrap
	b.WriteString("\x1b[?25l")                     // hide cursor
	b.WriteString("\x1b[1m╔" + strings.Repeat("═", innerWidth) + "╗\x1b[0K\x1b[0m\n")

	for i := 0; i < innerHeight; i++ {
		line := ""
		if i < len(contentLines) {
			line = contentLines[i]
		}
		line = padOrTruncate(line, innerWidth)
		fmt.Fprintf(&b, "\x1b[1m║\x1b[0m%s\x1b[%dG\x1b[1m║\x1b[0K\x1b[0m\n", line, width)
	}

	b.WriteString("\x1b[1m╚" + strings.Repeat("═", innerWidth) + "╝\x1b[0K\x1b[0m\n")
	b.WriteString("\x1b[?7h")  // re-enable screen wrap
	b.WriteString("\x1b[?25h") // show cursor

	return b.String()
}

func padOrTruncate(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}

// StopTailing stops tailing the log file registered under name.
func (v *LogViewer) StopTailing(name string) error {
	path, ok := v.nameToPath[name]
	if !ok {
		return nil
	}
	return v.tailer.StopTailing(path)
}

// Cleanup stops every tail child started by this viewer.
func (v *LogViewer) Cleanup() {
	v.tailer.Cleanup()
}
