package binary

import (
	"debug/elf"
	"io"
	"os"

	"gitlab.com/tozd/go/errors"
)

// IdentifyFile reads the build id note of the ELF file at path, falling
// back to TextHash of its .text section.
func IdentifyFile(path string) (*Identity, errors.E) {
	f, err := elf.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Errorf("%w: %s", ErrBinaryNotFound, path)
	}
	if err != nil {
		return nil, errors.Errorf("%w: %s: %v", ErrInvalidExecutable, path, err)
	}
	defer f.Close()

	order := f.ByteOrder
	if s := f.Section(".note.gnu.build-id"); s != nil {
		if data, err := s.Data(); err == nil {
			if id, ok := findBuildID(data, order); ok {
				return &Identity{BuildID: id, Source: SourceFileNote}, nil
			}
		}
	}
	for _, p := range f.Progs {
		if p.Type != elf.PT_NOTE || p.Filesz == 0 || p.Filesz > maxNoteSize {
			continue
		}
		data, err := io.ReadAll(p.Open())
		if err != nil {
			continue
		}
		if id, ok := findBuildID(data, order); ok {
			return &Identity{BuildID: id, Source: SourceFileNote}, nil
		}
	}

	if s := f.Section(".text"); s != nil && s.Type != elf.SHT_NOBITS {
		data, err := io.ReadAll(io.LimitReader(s.Open(), 4096))
		if err == nil && len(data) > 0 {
			return &Identity{BuildID: TextHash(data), Source: SourceTextHash}, nil
		}
	}
	return nil, errors.Errorf("%w: %s", ErrBuildIDNotFound, path)
}
