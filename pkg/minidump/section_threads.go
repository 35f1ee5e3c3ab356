package minidump

import (
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

// writeThreadList writes each thread's context and stack, then the list
// that points at them.
func writeThreadList(w *writer) (format.Location, bool, errors.E) {
	var records []byte
	for _, th := range w.m.threads {
		ctxLoc, err := w.buf.Write(th.ctx.Bytes())
		if err != nil {
			return format.Location{}, false, err
		}
		stackLoc, err := w.buf.Write(th.stack.data)
		if err != nil {
			return format.Location{}, false, err
		}
		stack := format.MemoryDescriptor{StartOfMemoryRange: th.stack.start, Memory: stackLoc}
		w.contexts[th.tid] = ctxLoc
		w.stacks[th.tid] = stack
		records = append(records, format.Marshal(&format.Thread{
			ThreadID:      uint32(th.tid),
			Stack:         stack,
			ThreadContext: ctxLoc,
		})...)
	}
	loc, err := w.writeList(len(w.m.threads), records)
	return loc, err == nil, err
}

// writeException reuses the crashing thread's context from the thread
// list and writes its own only when that thread is not listed.
func writeException(w *writer) (format.Location, bool, errors.E) {
	crash := w.m.crash
	if crash == nil {
		return format.Location{}, false, nil
	}
	ctxLoc, ok := w.contexts[crash.Tid]
	if !ok && w.m.crashCtx != nil {
		var err errors.E
		if ctxLoc, err = w.buf.Write(w.m.crashCtx.Bytes()); err != nil {
			return format.Location{}, false, err
		}
	}
	rec := format.ExceptionStreamRecord{
		ThreadID: uint32(crash.Tid),
		ExceptionRecord: format.Exception{
			ExceptionCode:    crash.Signal,
			ExceptionFlags:   crash.Code,
			ExceptionAddress: crash.Address,
		},
		ThreadContext: ctxLoc,
	}
	loc, err := w.buf.WriteRecord(&rec)
	return loc, err == nil, err
}

func writeThreadNames(w *writer) (format.Location, bool, errors.E) {
	tids := w.m.sortedNames()
	if len(tids) == 0 {
		return format.Location{}, false, nil
	}
	var records []byte
	for _, tid := range tids {
		rva, err := w.buf.WriteString(w.m.names[tid])
		if err != nil {
			return format.Location{}, false, err
		}
		records = append(records, format.Marshal(&format.ThreadName{ThreadID: uint32(tid), ThreadNameRVA: uint64(rva)})...)
	}
	loc, err := w.writeList(len(tids), records)
	return loc, err == nil, err
}
