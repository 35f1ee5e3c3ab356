package minidump

import (
	"encoding/binary"

	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/auxv"
	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/format"
	"github.com/monsterxx03/godump/pkg/proc"
)

const (
	ptDynamic = 2
	ptPhdr    = 6
	dtNull    = 0
	dtDebug   = 21

	maxPhnum    = 256
	maxDynamic  = 4096
	maxLinkMaps = 4096
	maxPathLen  = 4096
)

type linkMapEntry struct {
	addr uint64
	name string
	ld   uint64
}

// dsoDebug is the dynamic loader's r_debug and the link map it heads.
type dsoDebug struct {
	version uint32
	brk     uint64
	ldbase  uint64
	dynamic uint64
	// dynamicData is the main executable's dynamic section up to and
	// including DT_NULL.
	dynamicData []byte
	entries     []linkMapEntry
}

func (g *gatherer) dsoDebug() {
	if g.opts.skipped(format.LinuxDSODebugStream) {
		return
	}
	phdr, ok := g.m.auxv.Get(auxv.AT_PHDR)
	phnum, ok2 := g.m.auxv.Get(auxv.AT_PHNUM)
	if !ok || !ok2 {
		g.warn(dumperr.PartialMemoryRead, format.LinuxDSODebugStream, errors.New("auxv has no program headers"))
		return
	}
	r := &proc.MemReader{Mem: g.t, Order: binary.NativeEndian, PtrSize: g.m.arch.PtrSize()}
	d, err := readDSODebug(r, phdr, phnum)
	if err != nil {
		g.warn(dumperr.PartialMemoryRead, format.LinuxDSODebugStream, err)
	}
	g.m.dso = d
}

// readDSODebug follows PT_DYNAMIC to DT_DEBUG and walks the link map.
// A chain that breaks part way is returned as far as it was read, along
// with the error.
func readDSODebug(r *proc.MemReader, phdr, phnum uint64) (*dsoDebug, error) {
	ptr := uint64(r.PtrSize)
	ent, vaddrOff := uint64(32), uint64(8)
	if ptr == 8 {
		ent, vaddrOff = 56, 16
	}
	if phnum > maxPhnum {
		return nil, errors.Errorf("%d program headers", phnum)
	}
	// Without PT_PHDR the executable is not position independent.
	var bias, dynVaddr uint64
	var hasDynamic bool
	for i := uint64(0); i < phnum; i++ {
		at := phdr + i*ent
		typ, err := r.ReadUint32(at)
		if err != nil {
			return nil, errors.Errorf("program header %d: %w", i, err)
		}
		if typ != ptDynamic && typ != ptPhdr {
			continue
		}
		vaddr, err := r.ReadPtr(at + vaddrOff)
		if err != nil {
			return nil, errors.Errorf("program header %d: %w", i, err)
		}
		if typ == ptPhdr {
			bias = phdr - vaddr
		} else {
			dynVaddr, hasDynamic = vaddr, true
		}
	}
	if !hasDynamic {
		return nil, errors.New("no PT_DYNAMIC, executable is static")
	}

	d := &dsoDebug{dynamic: bias + dynVaddr}
	var rdebug uint64
	n := uint64(0)
	for n < maxDynamic {
		pair, err := r.ReadPtrs(d.dynamic+n*2*ptr, 2)
		if err != nil {
			return nil, errors.Errorf("dynamic entry %d: %w", n, err)
		}
		n++
		if pair[0] == dtDebug {
			rdebug = pair[1]
		}
		if pair[0] == dtNull {
			break
		}
	}
	d.dynamicData, _ = r.Mem.ReadMemory(d.dynamic, int(n*2*ptr))
	if rdebug == 0 {
		return d, errors.New("DT_DEBUG is not set")
	}

	version, err := r.ReadUint32(rdebug)
	if err != nil {
		return d, errors.Errorf("r_debug: %w", err)
	}
	fields, err := r.ReadPtrs(rdebug+ptr, 4)
	if err != nil {
		return d, errors.Errorf("r_debug: %w", err)
	}
	d.version = version
	d.brk = fields[1]
	d.ldbase = fields[3]

	seen := map[uint64]bool{}
	for cur := fields[0]; cur != 0 && !seen[cur]; {
		if len(d.entries) == maxLinkMaps {
			return d, errors.Errorf("link map longer than %d entries", maxLinkMaps)
		}
		seen[cur] = true
		lm, err := r.ReadPtrs(cur, 4)
		if err != nil {
			return d, errors.Errorf("link map entry %d: %w", len(d.entries), err)
		}
		e := linkMapEntry{addr: lm[0], ld: lm[2]}
		if lm[1] != 0 {
			if e.name, err = r.ReadCString(lm[1], maxPathLen); err != nil {
				return d, errors.Errorf("link map entry %d name: %w", len(d.entries), err)
			}
		}
		d.entries = append(d.entries, e)
		cur = lm[3]
	}
	return d, nil
}

func writeDSODebug(w *writer) (format.Location, bool, errors.E) {
	d := w.m.dso
	if d == nil {
		return format.Location{}, false, nil
	}
	names := make([]format.RVA, len(d.entries))
	for i, e := range d.entries {
		rva, err := w.buf.WriteString(e.name)
		if err != nil {
			return format.Location{}, false, err
		}
		names[i] = rva
	}
	var maps []byte
	for i, e := range d.entries {
		maps = append(maps, format.Marshal(&format.LinkMap{Addr: e.addr, Name: names[i], LD: e.ld})...)
	}
	mapLoc, err := w.buf.Write(maps)
	if err != nil {
		return format.Location{}, false, err
	}
	rec := format.Debug{
		Version:  d.version,
		Map:      mapLoc.RVA,
		DSOCount: uint32(len(d.entries)),
		Brk:      d.brk,
		LDBase:   d.ldbase,
		Dynamic:  d.dynamic,
	}
	loc, err := w.buf.Write(append(format.Marshal(&rec), d.dynamicData...))
	return loc, err == nil, err
}
