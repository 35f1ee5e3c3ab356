// Package binary identifies loaded ELF images by their build id, the key
// symbol servers use to match a module with its debug files.
package binary

import (
	"gitlab.com/tozd/go/errors"
)

var (
	ErrBinaryNotFound    = errors.New("binary file not found")
	ErrInvalidExecutable = errors.New("invalid or unsupported executable format")
	ErrBuildIDNotFound   = errors.New("build id not found")
)

// Memory reads the target's address space. Short reads return the bytes
// that were readable.
type Memory interface {
	ReadMemory(addr uint64, length int) ([]byte, error)
}

// Source records where an identifier came from.
type Source int

const (
	SourceNone Source = iota
	SourceMemoryNote
	SourceFileNote
	SourceTextHash
)

func (s Source) String() string {
	switch s {
	case SourceMemoryNote:
		return "memory note"
	case SourceFileNote:
		return "file note"
	case SourceTextHash:
		return "text hash"
	}
	return "none"
}

type Identity struct {
	BuildID []byte
	Source  Source
}

// TextHash folds the first page of a .text section into 16 bytes by
// XOR. It is the identifier of last resort for images without a build
// id note.
func TextHash(text []byte) []byte {
	const pageSize = 4096
	id := make([]byte, 16)
	if len(text) > pageSize {
		text = text[:pageSize]
	}
	for i, b := range text {
		id[i%16] ^= b
	}
	return id
}
