package keypad

import "time"

type Mode int

const (
	// ModeStandard appends digits and letters until Enter.
	ModeStandard Mode = iota
	// ModeEncoded expects every keypress as a sequence closed by Enter.
	ModeEncoded
)

func (m Mode) String() string {
	if m == ModeEncoded {
		return "encoded"
	}
	return "standard"
}

type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

const (
	DefaultMaxInputLength = 20
	DefaultRfidLength     = 10
)

type Options struct {
	Mode    Mode
	Timeout time.Duration // max gap between two keys of one candidate; 0 disables

	// PinLength auto-submits an encoded-mode PIN once it has this many
	// digits. 0 waits for '#'.
	PinLength int

	RfidLength     int // cap on an encoded-mode sub-sequence
	MaxInputLength int // cap on the candidate buffer
}

// Listener is the input session of one device. It is not safe for
// concurrent use; each device goroutine owns its own Listener.
type Listener struct {
	opts  Options
	buf   []rune
	seq   []rune
	last  time.Time
	state State
}

func NewListener(opts Options) *Listener {
	if opts.MaxInputLength <= 0 {
		opts.MaxInputLength = DefaultMaxInputLength
	}
	if opts.RfidLength <= 0 {
		opts.RfidLength = DefaultRfidLength
	}
	if opts.PinLength < 0 {
		opts.PinLength = 0
	}
	return &Listener{opts: opts}
}

func (l *Listener) State() State { return l.state }

// Reset discards any partial input.
func (l *Listener) Reset() {
	l.buf = l.buf[:0]
	l.seq = l.seq[:0]
	l.state = StateIdle
	l.last = time.Time{}
}

// Feed applies one key pressed at the given time and returns the completed
// candidate, if this key completed one.
func (l *Listener) Feed(k Key, at time.Time) (string, bool) {
	if l.state == StateAccumulating && l.opts.Timeout > 0 && at.Sub(l.last) > l.opts.Timeout {
		l.Reset()
	}
	l.last = at

	if l.opts.Mode == ModeEncoded {
		return l.feedEncoded(k)
	}
	return l.feedStandard(k)
}

func (l *Listener) feedStandard(k Key) (string, bool) {
	switch {
	case k == KeyEnter:
		return l.emit(string(l.buf))
	case k.IsDigit() || k.IsLetter():
		l.buf = appendBounded(l.buf, rune(k), l.opts.MaxInputLength)
		l.state = StateAccumulating
	}
	return "", false
}

func (l *Listener) feedEncoded(k Key) (string, bool) {
	if k != KeyEnter {
		l.seq = appendBounded(l.seq, rune(k), l.opts.RfidLength)
		l.state = StateAccumulating
		return "", false
	}

	raw := string(l.seq)
	l.seq = l.seq[:0]
	if raw == "" {
		l.settle()
		return "", false
	}

	decoded, ok := DecodeSequence(raw)
	switch {
	case !ok:
		// Not a keypress: the reader typed an RFID payload. Any partial
		// PIN is discarded.
		return l.emit(raw)
	case decoded == '#':
		return l.emit(string(l.buf))
	case decoded == '*':
		l.Reset()
		return "", false
	}

	l.buf = appendBounded(l.buf, rune(decoded), l.opts.MaxInputLength)
	if l.opts.PinLength > 0 && len(l.buf) >= l.opts.PinLength {
		return l.emit(string(l.buf))
	}
	l.state = StateAccumulating
	return "", false
}

// emit ends the session, reporting candidate only when it is non-empty.
func (l *Listener) emit(candidate string) (string, bool) {
	l.Reset()
	return candidate, candidate != ""
}

func (l *Listener) settle() {
	if len(l.buf) == 0 && len(l.seq) == 0 {
		l.state = StateIdle
	}
}

func appendBounded(buf []rune, r rune, limit int) []rune {
	if len(buf) >= limit {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	return append(buf, r)
}
