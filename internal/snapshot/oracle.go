// Package snapshot implements the terminal snapshot oracle: a byte-driven
// VT parser that maintains a deterministic character grid and produces
// hashable frames for the stream server's session.snapshot command and for
// the differential runner (internal/diffrunner).
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"

	"github.com/vito/midterm"
)

// CursorInfo is the cursor position and visibility within a Frame.
type CursorInfo struct {
	Row     int  `json:"row"`
	Col     int  `json:"col"`
	Visible bool `json:"visible"`
}

// Frame is a deterministic, hashable projection of the terminal grid at a
// point in time.
type Frame struct {
	Rows         int        `json:"rows"`
	Cols         int        `json:"cols"`
	ActiveScreen string     `json:"activeScreen"`
	Cursor       CursorInfo `json:"cursor"`
	Lines        []string   `json:"lines"`
	FrameHash    string     `json:"frameHash"`
}

// Oracle owns the VT state for one session. Rendering of the actual
// character grid, cursor movement, and scrolling is delegated to
// vito/midterm; the Oracle layers on top of it the deterministic
// bookkeeping that isn't exposed by midterm's public surface: cursor
// visibility and which screen (primary/alternate) is active.
type Oracle struct {
	mu           sync.Mutex
	term         *midterm.Terminal
	rows, cols   int
	activeScreen string
	cursorVis    bool
	scan         modeScanner
}

// New creates an Oracle with a blank (rows, cols) grid. Cursor starts
// visible on the primary screen, matching a freshly spawned terminal.
func New(rows, cols int) *Oracle {
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}
	return &Oracle{
		term:         midterm.NewTerminal(rows, cols),
		rows:         rows,
		cols:         cols,
		activeScreen: "primary",
		cursorVis:    true,
	}
}

// Write feeds child PTY output into the oracle. Safe for concurrent use
// with Snapshot/Resize (guarded by the same mutex the broker would use to
// serialize writes, though Oracle guards itself independently so callers
// needn't coordinate).
func (o *Oracle) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scan.feed(p, o)
	return o.term.Write(p)
}

// Resize changes the grid extent, preserving the top-left overlap of
// existing cells and clamping the cursor into the new extent (delegated to
// midterm.Terminal.Resize, which implements exactly this contract).
func (o *Oracle) Resize(rows, cols int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}
	o.rows, o.cols = rows, cols
	o.term.Resize(rows, cols)
}

// Snapshot returns the current frame: rows/cols, active screen, cursor
// position+visibility (clamped into [0,rows) x [0,cols)), trailing-space-
// trimmed lines, and a deterministic hash of the hashless serialization.
func (o *Oracle) Snapshot() Frame {
	o.mu.Lock()
	defer o.mu.Unlock()

	lines := make([]string, o.rows)
	content := o.term.Content
	for i := 0; i < o.rows; i++ {
		if i < len(content) {
			lines[i] = strings.TrimRight(string(content[i]), " ")
		}
	}

	row := clamp(o.term.Cursor.Y, 0, o.rows-1)
	col := clamp(o.term.Cursor.X, 0, o.cols-1)

	f := Frame{
		Rows:         o.rows,
		Cols:         o.cols,
		ActiveScreen: o.activeScreen,
		Cursor:       CursorInfo{Row: row, Col: col, Visible: o.cursorVis},
		Lines:        lines,
	}
	f.FrameHash = hashFrame(f)
	return f
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// hashFrame computes a deterministic cryptographic digest over the frame
// minus the hash field itself, so Snapshot's output is reproducible given
// the same byte prefix + resize sequence.
func hashFrame(f Frame) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(f.Rows))
	b.WriteByte('x')
	b.WriteString(strconv.Itoa(f.Cols))
	b.WriteByte('|')
	b.WriteString(f.ActiveScreen)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(f.Cursor.Row))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(f.Cursor.Col))
	b.WriteByte(',')
	if f.Cursor.Visible {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	b.WriteByte('|')
	for _, line := range f.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// modeScanner is a minimal byte-level tokenizer that watches for the
// private-mode CSI sequences whose side effects aren't otherwise visible
// through midterm.Terminal's public fields: cursor visibility (mode 25)
// and alternate-screen selection (modes 1047 and 1049; mode 1048 is not
// tracked here). It does not interpret any other escape sequence; those
// are left entirely to midterm. Unknown/partial sequences are simply carried across calls.
type modeScanner struct {
	state  scanState
	params []byte
	priv   bool
}

type scanState int

const (
	scanNormal scanState = iota
	scanEsc
	scanCSI
)

func (s *modeScanner) feed(data []byte, o *Oracle) {
	for _, b := range data {
		switch s.state {
		case scanNormal:
			if b == 0x1B {
				s.state = scanEsc
			}
		case scanEsc:
			if b == '[' {
				s.state = scanCSI
				s.params = s.params[:0]
				s.priv = false
			} else {
				s.state = scanNormal
			}
		case scanCSI:
			switch {
			case b == '?' && len(s.params) == 0:
				s.priv = true
			case b >= '0' && b <= '9' || b == ';':
				s.params = append(s.params, b)
			case b == 'h' || b == 'l':
				if s.priv {
					s.applyPrivateMode(string(s.params), b == 'h', o)
				}
				s.state = scanNormal
			case b >= 0x40 && b <= 0x7E:
				// any other CSI final byte: sequence consumed, ignored here.
				s.state = scanNormal
			default:
				// unexpected byte inside a CSI sequence; bail out safely.
				s.state = scanNormal
			}
		}
	}
}

func (s *modeScanner) applyPrivateMode(params string, set bool, o *Oracle) {
	for _, p := range strings.Split(params, ";") {
		switch p {
		case "25":
			o.cursorVis = set
		case "1047", "1049":
			if set {
				o.activeScreen = "alternate"
			} else {
				o.activeScreen = "primary"
			}
		}
	}
}
