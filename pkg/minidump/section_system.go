package minidump

import (
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

func writeSystemInfo(w *writer) (format.Location, bool, errors.E) {
	info := w.m.system.Info
	csd, err := w.buf.WriteString(w.m.system.CSDVersion)
	if err != nil {
		return format.Location{}, false, err
	}
	info.CSDVersionRVA = csd
	loc, err := w.buf.WriteRecord(&info)
	return loc, err == nil, err
}

func writeMiscInfo(w *writer) (format.Location, bool, errors.E) {
	info := format.MiscInfo{
		SizeOfInfo: format.MiscInfoSize,
		Flags1:     format.MiscInfoFlagsProcessID,
		ProcessID:  uint32(w.m.pid),
	}
	if t := w.m.times; t != nil {
		info.Flags1 |= format.MiscInfoFlagsProcessTimes
		info.ProcessCreateTime = t.Create
		info.ProcessUserTime = t.User
		info.ProcessKernelTime = t.Kernel
	}
	loc, err := w.buf.WriteRecord(&info)
	return loc, err == nil, err
}
