// Package keypad turns raw key-down events from one input device into
// completed credential candidates.
package keypad

// Key is a logical key: a digit, an upper-case letter, '*', '#' or KeyEnter.
type Key rune

const KeyEnter Key = '\n'

func (k Key) IsDigit() bool  { return k >= '0' && k <= '9' }
func (k Key) IsLetter() bool { return k >= 'A' && k <= 'Z' }

// Linux input-event-codes.h values for the keys a keypad or a keyboard
// wedge RFID reader can send.
const (
	codeKey1       = 2
	codeKey0       = 11
	codeEnter      = 28
	codeKPAsterisk = 55
	codeKP7        = 71
	codeKP8        = 72
	codeKP9        = 73
	codeKP4        = 75
	codeKP5        = 76
	codeKP6        = 77
	codeKP1        = 79
	codeKP2        = 80
	codeKP3        = 81
	codeKP0        = 82
	codeKPEnter    = 96
	codeNumeric0   = 0x200
	codeNumeric9   = 0x209
	codeNumStar    = 0x20a
	codeNumPound   = 0x20b
)

// Letter rows on a US layout, indexed from their first code.
var letterRows = []struct {
	first uint16
	keys  string
}{
	{16, "QWERTYUIOP"},
	{30, "ASDFGHJKL"},
	{44, "ZXCVBNM"},
}

var keypadDigits = map[uint16]Key{
	codeKP0: '0', codeKP1: '1', codeKP2: '2', codeKP3: '3', codeKP4: '4',
	codeKP5: '5', codeKP6: '6', codeKP7: '7', codeKP8: '8', codeKP9: '9',
}

// DecodeKey maps an evdev key code to a logical key. Unknown codes report
// false.
func DecodeKey(code uint16) (Key, bool) {
	switch {
	case code >= codeKey1 && code < codeKey0:
		return Key('1' + code - codeKey1), true
	case code == codeKey0:
		return '0', true
	case code == codeEnter || code == codeKPEnter:
		return KeyEnter, true
	case code == codeKPAsterisk || code == codeNumStar:
		return '*', true
	case code == codeNumPound:
		return '#', true
	case code >= codeNumeric0 && code <= codeNumeric9:
		return Key('0' + code - codeNumeric0), true
	}
	if k, ok := keypadDigits[code]; ok {
		return k, true
	}
	for _, row := range letterRows {
		if code >= row.first && int(code-row.first) < len(row.keys) {
			return Key(row.keys[code-row.first]), true
		}
	}
	return 0, false
}

// Keypads in encoded mode send every physical key as a four-digit
// sequence followed by Enter.
var sequences = map[string]Key{
	"0225": '1',
	"0210": '2',
	"0195": '3',
	"0180": '4',
	"0165": '5',
	"0150": '6',
	"0135": '7',
	"0120": '8',
	"0105": '9',
	"0240": '0',
	"0090": '*',
	"0075": '#',
}

var encodings = func() map[Key]string {
	m := make(map[Key]string, len(sequences))
	for seq, k := range sequences {
		m[k] = seq
	}
	return m
}()

// DecodeSequence looks up an encoded keypress. A miss means seq is not a
// keypress at all, usually an RFID payload.
func DecodeSequence(seq string) (Key, bool) {
	k, ok := sequences[seq]
	return k, ok
}

// EncodeSequence is the inverse of DecodeSequence.
func EncodeSequence(k Key) (string, bool) {
	seq, ok := encodings[k]
	return seq, ok
}
