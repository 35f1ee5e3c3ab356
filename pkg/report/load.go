package report

import (
	"bytes"
	"os"

	"github.com/klauspost/compress/zstd"
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Load reads a document from disk, plain or zstd compressed.
func Load(path string) (*format.File, errors.E) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Decode(data)
}

// Decode parses data, decompressing it first when it is a zstd frame.
func Decode(data []byte) (*format.File, errors.E) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, errors.Errorf("decompress: %w", err)
		}
	}
	f, err := format.Parse(data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return f, nil
}
