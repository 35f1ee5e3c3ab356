package minidump

import (
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/format"
)

const (
	alignment = 4
	// maxDocument is the first offset a 32-bit RVA cannot address.
	maxDocument = 1 << 32
)

// Buffer is the growing document and its RVA allocator. Offsets only
// move forward and every allocation starts 4-byte aligned.
type Buffer struct {
	data  []byte
	limit uint64
}

func NewBuffer() *Buffer {
	return &Buffer{limit: maxDocument}
}

// Len is the current end of the document.
func (b *Buffer) Len() uint64 {
	return uint64(len(b.data))
}

// Alloc reserves size zeroed bytes and returns where they start.
func (b *Buffer) Alloc(size int) (format.RVA, errors.E) {
	start := (b.Len() + alignment - 1) &^ (alignment - 1)
	end := start + uint64(size)
	if size < 0 || end > b.limit {
		return 0, dumperr.New(dumperr.SerializationOverflow,
			errors.Errorf("%d bytes at %#x do not fit below %#x", size, start, b.limit))
	}
	b.data = append(b.data, make([]byte, end-b.Len())...)
	return format.RVA(start), nil
}

// WriteAt overwrites already allocated bytes.
func (b *Buffer) WriteAt(rva format.RVA, data []byte) {
	copy(b.data[rva:], data)
}

// Write copies data into a fresh allocation. Empty data gets the zero
// location so that nothing points at the end of the document.
func (b *Buffer) Write(data []byte) (format.Location, errors.E) {
	if len(data) == 0 {
		return format.Location{}, nil
	}
	rva, err := b.Alloc(len(data))
	if err != nil {
		return format.Location{}, err
	}
	b.WriteAt(rva, data)
	return format.Location{DataSize: uint32(len(data)), RVA: rva}, nil
}

// WriteRecord encodes one fixed-size record of package format.
func (b *Buffer) WriteRecord(v any) (format.Location, errors.E) {
	return b.Write(format.Marshal(v))
}

// WriteString writes an MDString and returns its RVA.
func (b *Buffer) WriteString(s string) (format.RVA, errors.E) {
	loc, err := b.Write(format.EncodeString(s))
	return loc.RVA, err
}

func (b *Buffer) Bytes() []byte {
	return b.data
}
