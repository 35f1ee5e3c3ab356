package minidump

import (
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

// writeMemoryList lists the thread stacks, which the thread list already
// wrote, followed by the other captured blocks.
func writeMemoryList(w *writer) (format.Location, bool, errors.E) {
	var records []byte
	n := 0
	for _, th := range w.m.threads {
		d, ok := w.stacks[th.tid]
		if !ok || d.Memory.DataSize == 0 {
			continue
		}
		records = append(records, format.Marshal(&d)...)
		n++
	}
	for _, b := range w.m.blocks {
		loc, err := w.buf.Write(b.data)
		if err != nil {
			return format.Location{}, false, err
		}
		records = append(records, format.Marshal(&format.MemoryDescriptor{StartOfMemoryRange: b.start, Memory: loc})...)
		n++
	}
	loc, err := w.writeList(n, records)
	return loc, err == nil, err
}
