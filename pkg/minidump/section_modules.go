package minidump

import (
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

func writeModuleList(w *writer) (format.Location, bool, errors.E) {
	var records []byte
	for _, mod := range w.m.modules {
		name, err := w.buf.WriteString(mod.Name)
		if err != nil {
			return format.Location{}, false, err
		}
		cv, err := w.buf.Write(format.EncodeCVInfoELF(mod.buildID))
		if err != nil {
			return format.Location{}, false, err
		}
		size := mod.Size()
		if size > 0xffffffff {
			size = 0xffffffff
		}
		records = append(records, format.Marshal(&format.Module{
			BaseOfImage:   mod.Start,
			SizeOfImage:   uint32(size),
			ModuleNameRVA: name,
			CVRecord:      cv,
		})...)
	}
	loc, err := w.writeList(len(w.m.modules), records)
	return loc, err == nil, err
}
