package binary

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"gitlab.com/tozd/go/errors"
)

const (
	ntGNUBuildID = 3
	maxPhnum     = 256
	maxNoteSize  = 1 << 16
)

var gnuNoteName = []byte("GNU\x00")

// image is the part of an ELF file that is mapped at runtime.
type image struct {
	order binary.ByteOrder
	class elf.Class
	progs []elf.ProgHeader
}

func (im *image) firstLoad() (elf.ProgHeader, bool) {
	for _, p := range im.progs {
		if p.Type == elf.PT_LOAD {
			return p, true
		}
	}
	return elf.ProgHeader{}, false
}

// readImage decodes the ELF and program headers of the image mapped at
// base.
func readImage(mem Memory, base uint64) (*image, errors.E) {
	ident, err := mem.ReadMemory(base, elf.EI_NIDENT)
	if err != nil || len(ident) < elf.EI_NIDENT {
		return nil, errors.Errorf("%w: elf ident at %#x unreadable", ErrInvalidExecutable, base)
	}
	if !bytes.Equal(ident[:4], []byte(elf.ELFMAG)) {
		return nil, errors.Errorf("%w: no elf magic at %#x", ErrInvalidExecutable, base)
	}
	im := &image{class: elf.Class(ident[elf.EI_CLASS])}
	switch elf.Data(ident[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		im.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		im.order = binary.BigEndian
	default:
		return nil, errors.Errorf("%w: bad data encoding %d", ErrInvalidExecutable, ident[elf.EI_DATA])
	}

	var phoff uint64
	var phnum, phentsize int
	switch im.class {
	case elf.ELFCLASS64:
		var h elf.Header64
		if err := readStruct(mem, base, im.order, &h); err != nil {
			return nil, err
		}
		phoff, phnum, phentsize = h.Phoff, int(h.Phnum), int(h.Phentsize)
	case elf.ELFCLASS32:
		var h elf.Header32
		if err := readStruct(mem, base, im.order, &h); err != nil {
			return nil, err
		}
		phoff, phnum, phentsize = uint64(h.Phoff), int(h.Phnum), int(h.Phentsize)
	default:
		return nil, errors.Errorf("%w: bad class %d", ErrInvalidExecutable, im.class)
	}
	if phnum == 0 || phnum > maxPhnum {
		return nil, errors.Errorf("%w: %d program headers", ErrInvalidExecutable, phnum)
	}

	raw, err := mem.ReadMemory(base+phoff, phnum*phentsize)
	if err != nil || len(raw) < phnum*phentsize {
		return nil, errors.Errorf("%w: program headers at %#x unreadable", ErrInvalidExecutable, base+phoff)
	}
	rd := bytes.NewReader(raw)
	for i := 0; i < phnum; i++ {
		rd.Reset(raw[i*phentsize:])
		p, err := readProg(rd, im.order, im.class)
		if err != nil {
			return nil, err
		}
		im.progs = append(im.progs, p)
	}
	return im, nil
}

func readStruct(mem Memory, addr uint64, order binary.ByteOrder, v any) errors.E {
	size := binary.Size(v)
	raw, err := mem.ReadMemory(addr, size)
	if err != nil || len(raw) < size {
		return errors.Errorf("%w: %d bytes at %#x unreadable", ErrInvalidExecutable, size, addr)
	}
	return errors.WithStack(binary.Read(bytes.NewReader(raw), order, v))
}

func readProg(rd *bytes.Reader, order binary.ByteOrder, class elf.Class) (elf.ProgHeader, errors.E) {
	if class == elf.ELFCLASS64 {
		var p elf.Prog64
		if err := binary.Read(rd, order, &p); err != nil {
			return elf.ProgHeader{}, errors.WithStack(err)
		}
		return elf.ProgHeader{
			Type: elf.ProgType(p.Type), Flags: elf.ProgFlag(p.Flags),
			Off: p.Off, Vaddr: p.Vaddr, Paddr: p.Paddr,
			Filesz: p.Filesz, Memsz: p.Memsz, Align: p.Align,
		}, nil
	}
	var p elf.Prog32
	if err := binary.Read(rd, order, &p); err != nil {
		return elf.ProgHeader{}, errors.WithStack(err)
	}
	return elf.ProgHeader{
		Type: elf.ProgType(p.Type), Flags: elf.ProgFlag(p.Flags),
		Off: uint64(p.Off), Vaddr: uint64(p.Vaddr), Paddr: uint64(p.Paddr),
		Filesz: uint64(p.Filesz), Memsz: uint64(p.Memsz), Align: uint64(p.Align),
	}, nil
}

// IdentifyMemory reads the GNU build id note of the image mapped at base.
func IdentifyMemory(mem Memory, base uint64) (*Identity, errors.E) {
	im, err := readImage(mem, base)
	if err != nil {
		return nil, err
	}
	load, ok := im.firstLoad()
	if !ok {
		return nil, errors.Errorf("%w: no PT_LOAD", ErrInvalidExecutable)
	}
	bias := base - (load.Vaddr &^ 0xfff)
	for _, p := range im.progs {
		if p.Type != elf.PT_NOTE || p.Filesz == 0 || p.Filesz > maxNoteSize {
			continue
		}
		notes, e := mem.ReadMemory(bias+p.Vaddr, int(p.Filesz))
		if e != nil && len(notes) == 0 {
			continue
		}
		if id, ok := findBuildID(notes, im.order); ok {
			return &Identity{BuildID: id, Source: SourceMemoryNote}, nil
		}
	}
	return nil, errors.Errorf("%w: no note in memory at %#x", ErrBuildIDNotFound, base)
}

// findBuildID walks a PT_NOTE payload for NT_GNU_BUILD_ID owned by "GNU".
func findBuildID(notes []byte, order binary.ByteOrder) ([]byte, bool) {
	align := func(n uint64) uint64 { return (n + 3) &^ 3 }
	for len(notes) >= 12 {
		namesz := uint64(order.Uint32(notes[0:]))
		descsz := uint64(order.Uint32(notes[4:]))
		typ := order.Uint32(notes[8:])
		nameEnd := 12 + align(namesz)
		descEnd := nameEnd + align(descsz)
		if nameEnd+descsz > uint64(len(notes)) {
			return nil, false
		}
		if typ == ntGNUBuildID && bytes.Equal(notes[12:12+namesz], gnuNoteName) && descsz > 0 {
			return append([]byte(nil), notes[nameEnd:nameEnd+descsz]...), true
		}
		if descEnd >= uint64(len(notes)) {
			return nil, false
		}
		notes = notes[descEnd:]
	}
	return nil, false
}
