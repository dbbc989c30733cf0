package jsbridge

import (
	"encoding/binary"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeUTF16 converts a UTF-8 string to UTF-16 code units.
func encodeUTF16(s string) (UTF16String, error) {
	b, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	units := make(UTF16String, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return units, nil
}

// decodeUTF16 converts UTF-16 code units to a UTF-8 string. Lone surrogates
// become U+FFFD.
func decodeUTF16(units []uint16) (string, error) {
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	out, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// encodeLatin1 converts a UTF-8 string to ISO-8859-1. Runes outside
// Latin-1 are replaced with the charmap substitute byte.
func encodeLatin1(s string) (Latin1String, error) {
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	return Latin1String(b), nil
}

func decodeLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NewUTF16String converts s to UTF-16 code units.
func NewUTF16String(s string) UTF16String {
	units, err := encodeUTF16(s)
	if err != nil {
		return nil
	}
	return units
}

// NewLatin1String converts s to ISO-8859-1.
func NewLatin1String(s string) Latin1String {
	b, err := encodeLatin1(s)
	if err != nil {
		return nil
	}
	return b
}
