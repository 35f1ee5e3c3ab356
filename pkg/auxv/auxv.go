// Package auxv reads the ELF auxiliary vector of a process.
package auxv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	AT_NULL         = 0
	AT_PHDR         = 3
	AT_PHENT        = 4
	AT_PHNUM        = 5
	AT_PAGESZ       = 6
	AT_BASE         = 7
	AT_ENTRY        = 9
	AT_SYSINFO_EHDR = 33
)

// Vector maps auxv tags to values. Later duplicates win, as in the
// kernel's own lookups.
type Vector map[uint64]uint64

func (v Vector) Get(tag uint64) (uint64, bool) {
	val, ok := v[tag]
	return val, ok
}

// Entry returns AT_ENTRY, the main executable's entry point.
func (v Vector) Entry() uint64 {
	return v[AT_ENTRY]
}

// Read returns the parsed vector of pid and the raw bytes it was parsed
// from.
func Read(pid int, order binary.ByteOrder, ptrSize int) (Vector, []byte, error) {
	auxvPath := filepath.Join("/proc", fmt.Sprintf("%d", pid), "auxv")
	data, err := os.ReadFile(auxvPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read auxv: %w", err)
	}
	v, err := Parse(data, order, ptrSize)
	if err != nil {
		return nil, data, err
	}
	return v, data, nil
}

// Parse decodes pairs of pointer-sized words up to AT_NULL or the end of
// data. A trailing partial pair is ignored.
func Parse(data []byte, order binary.ByteOrder, ptrSize int) (Vector, error) {
	if ptrSize != 4 && ptrSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size: %d", ptrSize)
	}
	v := make(Vector)
	rd := bytes.NewReader(data)
	for {
		tag, err := readUintRaw(rd, order, ptrSize)
		if err != nil {
			return v, nil
		}
		val, err := readUintRaw(rd, order, ptrSize)
		if err != nil {
			return v, nil
		}
		if tag == AT_NULL {
			return v, nil
		}
		v[tag] = val
	}
}

func readUintRaw(rd io.Reader, order binary.ByteOrder, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 4:
		var v uint32
		if err := binary.Read(rd, order, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 8:
		var v uint64
		if err := binary.Read(rd, order, &v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported pointer size: %d", ptrSize)
	}
}
