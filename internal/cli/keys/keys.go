// Package keys reads single keypresses from the controlling terminal in
// raw mode, backing the live command's key surface (arrows, PgUp/PgDn,
// s/n/r/q), grounded on src/serial_port.go's use of pkg/term for raw
// terminal I/O (there applied to a serial device, here to stdin).
package keys

import (
	"github.com/pkg/term"

	"github.com/openfmrx/hvylya/internal/hvylyaerr"
)

// Key is a decoded keypress: either a plain rune or one of the named
// special keys below.
type Key int

const (
	KeyNone Key = iota
	KeyLeft
	KeyRight
	KeyPageUp
	KeyPageDown
	KeyRune // Value holds the literal rune for anything not listed above.
)

// Event is one decoded keypress.
type Event struct {
	Key   Key
	Value rune
}

// Reader reads raw keypresses from the controlling terminal.
type Reader struct {
	t *term.Term
}

// Open puts the controlling terminal into raw mode for single-keypress
// reads. Call Close to restore the terminal's prior mode.
func Open() (*Reader, error) {
	t, err := term.Open("/dev/tty", term.RawMode)
	if err != nil {
		return nil, hvylyaerr.NewIoError("/dev/tty", "open terminal for raw key input", err)
	}
	return &Reader{t: t}, nil
}

// Close restores the terminal.
func (r *Reader) Close() error {
	return r.t.Restore()
}

// Read blocks for the next keypress and decodes it, recognising the
// common ANSI escape sequences for arrow keys and PgUp/PgDn.
func (r *Reader) Read() (Event, error) {
	var buf [3]byte
	n, err := r.t.Read(buf[:1])
	if err != nil {
		return Event{}, hvylyaerr.NewIoError("/dev/tty", "read key", err)
	}
	if n == 0 {
		return Event{}, nil
	}

	if buf[0] != 0x1b {
		return Event{Key: KeyRune, Value: rune(buf[0])}, nil
	}

	// Escape sequence: ESC '[' <code>.
	if _, err := r.t.Read(buf[:2]); err != nil {
		return Event{}, hvylyaerr.NewIoError("/dev/tty", "read escape sequence", err)
	}
	if buf[0] != '[' {
		return Event{Key: KeyRune, Value: 0x1b}, nil
	}
	switch buf[1] {
	case 'C':
		return Event{Key: KeyRight}, nil
	case 'D':
		return Event{Key: KeyLeft}, nil
	case '5':
		r.t.Read(buf[:1]) // trailing '~'
		return Event{Key: KeyPageUp}, nil
	case '6':
		r.t.Read(buf[:1]) // trailing '~'
		return Event{Key: KeyPageDown}, nil
	default:
		return Event{Key: KeyNone}, nil
	}
}
