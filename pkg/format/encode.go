package format

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

var le = binary.LittleEndian

// Marshal encodes a fixed-size record of this package.
func Marshal(v any) []byte {
	var buf bytes.Buffer
	buf.Grow(binary.Size(v))
	// Fixed-size values never fail to encode.
	_ = binary.Write(&buf, le, v)
	return buf.Bytes()
}

// Unmarshal decodes a fixed-size record; data must be at least
// binary.Size(v) long.
func Unmarshal(data []byte, v any) error {
	return binary.Read(bytes.NewReader(data), le, v)
}

// EncodeString encodes s as a length-prefixed UTF-16LE string followed by
// a 2-byte terminator. The length excludes the terminator.
func EncodeString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 4+2*len(units)+2)
	le.PutUint32(out, uint32(2*len(units)))
	for i, u := range units {
		le.PutUint16(out[4+2*i:], u)
	}
	return out
}

// EncodeCVInfoELF encodes a CodeView record carrying an ELF build id.
func EncodeCVInfoELF(buildID []byte) []byte {
	out := make([]byte, 4+len(buildID))
	le.PutUint32(out, CVSignatureELF)
	copy(out[4:], buildID)
	return out
}
