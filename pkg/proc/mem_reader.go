package proc

import (
	"bytes"
	"encoding/binary"

	"gitlab.com/tozd/go/errors"

	gbin "github.com/monsterxx03/godump/pkg/binary"
)

// MemReader decodes target words of a given byte order and pointer size.
type MemReader struct {
	Mem     gbin.Memory
	Order   binary.ByteOrder
	PtrSize int
}

func (r *MemReader) read(addr uint64, n int) ([]byte, error) {
	buf, err := r.Mem.ReadMemory(addr, n)
	if len(buf) < n {
		if err == nil {
			err = errors.New("short read")
		}
		return nil, errors.Errorf("read %d bytes at %#x: %w", n, addr, err)
	}
	return buf, nil
}

func (r *MemReader) ReadUint32(addr uint64) (uint32, error) {
	buf, err := r.read(addr, 4)
	if err != nil {
		return 0, err
	}
	return r.Order.Uint32(buf), nil
}

func (r *MemReader) ReadUint64(addr uint64) (uint64, error) {
	buf, err := r.read(addr, 8)
	if err != nil {
		return 0, err
	}
	return r.Order.Uint64(buf), nil
}

// ReadPtr reads a pointer-sized word.
func (r *MemReader) ReadPtr(addr uint64) (uint64, error) {
	if r.PtrSize == 4 {
		v, err := r.ReadUint32(addr)
		return uint64(v), err
	}
	return r.ReadUint64(addr)
}

// ReadPtrs reads n consecutive pointer-sized words.
func (r *MemReader) ReadPtrs(addr uint64, n int) ([]uint64, error) {
	buf, err := r.read(addr, n*r.PtrSize)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		if r.PtrSize == 4 {
			out[i] = uint64(r.Order.Uint32(buf[4*i:]))
		} else {
			out[i] = r.Order.Uint64(buf[8*i:])
		}
	}
	return out, nil
}

// ReadCString reads a NUL terminated string of at most max bytes. Pages
// are fetched one at a time so a string near the end of a mapping is
// still readable.
func (r *MemReader) ReadCString(addr uint64, max int) (string, error) {
	var out []byte
	for len(out) < max {
		cur := addr + uint64(len(out))
		chunk := int(pageSize - cur%pageSize)
		if chunk > max-len(out) {
			chunk = max - len(out)
		}
		buf, err := r.Mem.ReadMemory(cur, chunk)
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return string(append(out, buf[:i]...)), nil
		}
		out = append(out, buf...)
		if err != nil || len(buf) < chunk {
			return "", errors.Errorf("unterminated string at %#x", addr)
		}
	}
	return string(out), nil
}
