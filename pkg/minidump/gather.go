package minidump

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/auxv"
	gbin "github.com/monsterxx03/godump/pkg/binary"
	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/format"
	"github.com/monsterxx03/godump/pkg/proc"
	"github.com/monsterxx03/godump/pkg/sysinfo"
	"github.com/monsterxx03/godump/pkgs/procmaps"
)

// placeholderBuildID is written for modules whose identity is unknown.
var placeholderBuildID = make([]byte, 16)

type block struct {
	start uint64
	data  []byte
}

func (b block) end() uint64 {
	return b.start + uint64(len(b.data))
}

type thread struct {
	tid   int
	ctx   *cpu.Context
	stack block
}

type module struct {
	proc.Module
	buildID []byte
}

// model is everything read from the target, before any encoding.
type model struct {
	pid     int
	arch    cpu.Arch
	time    uint32
	threads []thread
	// blocks are memory list entries besides thread stacks.
	blocks  []block
	maps    []procmaps.Mapping
	modules []module
	auxv    auxv.Vector
	rawAuxv []byte
	system  *sysinfo.System
	times   *sysinfo.Times
	names   map[int]string
	crash   *CrashContext
	// crashCtx is the crashing thread's context when that thread is not
	// in the thread list.
	crashCtx *cpu.Context
	files    map[format.StreamType][]byte
	dso      *dsoDebug
}

type gatherer struct {
	t    Target
	opts *Options
	ws   *dumperr.Warnings
	log  log.FieldLogger
	m    *model
}

func gather(t Target, crash *CrashContext, opts *Options, ws *dumperr.Warnings, l log.FieldLogger) *model {
	g := &gatherer{
		t:    t,
		opts: opts,
		ws:   ws,
		log:  l,
		m: &model{
			pid:   t.PID(),
			arch:  t.Arch(),
			time:  uint32(opts.Clock().Unix()),
			crash: crash,
			names: map[int]string{},
			files: map[format.StreamType][]byte{},
		},
	}
	g.mappings()
	g.auxv()
	g.threads()
	g.crashThread()
	g.extraMemory()
	g.modules()
	g.system()
	g.threadNames()
	g.files()
	g.dsoDebug()
	return g.m
}

func (g *gatherer) warn(kind dumperr.Kind, stream format.StreamType, err error) {
	g.log.WithField("stream", stream).WithError(err).Debug(kind)
	g.ws.Add(kind, stream.String(), err)
}

func (g *gatherer) mappings() {
	maps, err := g.t.Mappings()
	if err != nil {
		g.warn(dumperr.PartialMemoryRead, format.MemoryListStream, errors.Errorf("read mappings: %w", err))
		return
	}
	g.m.maps = maps
}

func (g *gatherer) auxv() {
	v, raw, err := g.t.Auxv()
	if err != nil {
		g.warn(dumperr.PartialMemoryRead, format.LinuxAuxvStream, errors.Errorf("read auxv: %w", err))
	}
	g.m.auxv = v
	g.m.rawAuxv = raw
}

// read returns what is readable of [addr, addr+size) and records a
// warning when that is less than asked for.
func (g *gatherer) read(stream format.StreamType, addr, size uint64) block {
	data, err := g.t.ReadMemory(addr, int(size))
	if uint64(len(data)) < size {
		if err == nil {
			err = dumperr.Memory(dumperr.PartialMemoryRead, addr+uint64(len(data)), errors.New("short read"))
		}
		g.warn(dumperr.PartialMemoryRead, stream, err)
	}
	return block{start: addr, data: data}
}

// readMapped is read limited to what the mappings say is readable, so
// a large region at an unmapped address costs nothing.
func (g *gatherer) readMapped(stream format.StreamType, addr, size uint64) block {
	r := proc.ReadableRange(addr, size, g.m.maps)
	if r.Size == size {
		return g.read(stream, addr, size)
	}
	b := block{start: addr}
	if r.Size > 0 {
		b = g.read(stream, addr, r.Size)
		if uint64(len(b.data)) < r.Size {
			return b
		}
	}
	g.warn(dumperr.PartialMemoryRead, stream, dumperr.Memory(dumperr.PartialMemoryRead, r.End(), errors.New("not mapped readable")))
	return b
}

func (g *gatherer) threads() {
	crash := g.m.crash
	for _, tid := range g.t.ThreadIDs() {
		var ctx *cpu.Context
		if crash != nil && crash.Tid == tid && crash.Context != nil {
			ctx = crash.Context
		} else {
			c, err := g.t.Capture(tid)
			if err != nil {
				g.warn(dumperr.ThreadUnavailable, format.ThreadListStream, dumperr.Thread(dumperr.ThreadUnavailable, tid, err))
				continue
			}
			ctx = c
		}
		th := thread{tid: tid, ctx: ctx}
		sp := ctx.SP()
		if r, ok := proc.StackRange(sp, g.m.maps, g.opts.MaxStackBytes); ok {
			th.stack = g.read(format.ThreadListStream, r.Start, r.Size)
		} else {
			th.stack = block{start: sp}
			if g.opts.MaxStackBytes > 0 {
				g.warn(dumperr.PartialMemoryRead, format.ThreadListStream,
					dumperr.Memory(dumperr.PartialMemoryRead, sp, errors.Errorf("stack pointer of thread %d is not mapped", tid)))
			}
		}
		g.m.threads = append(g.m.threads, th)
	}
}

func (g *gatherer) crashThread() {
	crash := g.m.crash
	if crash == nil {
		return
	}
	for _, th := range g.m.threads {
		if th.tid == crash.Tid {
			return
		}
	}
	if crash.Context != nil {
		g.m.crashCtx = crash.Context
		return
	}
	ctx, err := g.t.Capture(crash.Tid)
	if err != nil {
		g.warn(dumperr.ThreadUnavailable, format.ExceptionStream, dumperr.Thread(dumperr.ThreadUnavailable, crash.Tid, err))
		return
	}
	g.m.crashCtx = ctx
}

func (g *gatherer) covered(start, end uint64) bool {
	for _, th := range g.m.threads {
		if start >= th.stack.start && end <= th.stack.end() {
			return true
		}
	}
	for _, b := range g.m.blocks {
		if start >= b.start && end <= b.end() {
			return true
		}
	}
	return false
}

// extraMemory collects the code around each thread's instruction pointer
// and the caller's app memory regions.
func (g *gatherer) extraMemory() {
	for _, th := range g.m.threads {
		r, ok := proc.IPRange(th.ctx.IP(), g.m.maps, g.opts.IPContextBytes)
		if !ok || g.covered(r.Start, r.End()) {
			continue
		}
		g.m.blocks = append(g.m.blocks, g.read(format.MemoryListStream, r.Start, r.Size))
	}
	for _, r := range g.opts.AppMemory {
		g.m.blocks = append(g.m.blocks, g.readMapped(format.MemoryListStream, r.Address, r.Length))
	}
}

func (g *gatherer) modules() {
	exe, err := g.t.ExePath()
	if err != nil {
		g.log.WithError(err).Debug("exe link")
	}
	entry := g.m.auxv.Entry()
	for _, pm := range proc.BuildModules(g.m.maps, entry, exe) {
		mod := module{Module: pm}
		var mem gbin.Memory
		if pm.Offset == 0 {
			mem = g.t
		}
		key := gbin.FileKey{Path: pm.Path, Dev: pm.Dev, Inode: pm.Inode}
		var open string
		if pm.Path != "" {
			open = g.t.RootPath(pm.Path)
		}
		id, err := g.opts.Resolver.Resolve(mem, pm.Start, key, open)
		if err != nil {
			g.warn(dumperr.ModuleResolutionFailed, format.ModuleListStream, errors.Errorf("%s: %w", pm.Name, err))
			mod.buildID = placeholderBuildID
		} else {
			g.log.WithField("module", pm.Name).WithField("source", id.Source).Debug("build id")
			mod.buildID = id.BuildID
		}
		g.m.modules = append(g.m.modules, mod)
	}
}

func (g *gatherer) system() {
	sys, problems := sysinfo.Collect(g.opts.Host, g.m.arch)
	for _, err := range problems {
		g.warn(dumperr.PartialMemoryRead, format.SystemInfoStream, err)
	}
	g.m.system = sys
	times, err := sysinfo.ProcessTimes(g.opts.Host, g.m.pid)
	if err != nil {
		g.warn(dumperr.PartialMemoryRead, format.MiscInfoStream, errors.Errorf("process times: %w", err))
		return
	}
	g.m.times = &times
}

func (g *gatherer) threadNames() {
	if g.opts.skipped(format.ThreadNameListStream) {
		return
	}
	for _, th := range g.m.threads {
		name, err := g.t.ThreadName(th.tid)
		if err != nil {
			g.warn(dumperr.PartialMemoryRead, format.ThreadNameListStream, dumperr.Thread(dumperr.PartialMemoryRead, th.tid, err))
			continue
		}
		g.m.names[th.tid] = name
	}
}

type hostFile struct {
	stream format.StreamType
	paths  []string
}

type procFile struct {
	stream format.StreamType
	name   string
}

// hostFiles are copied from the dumping host, procFiles from the target.
var (
	hostFiles = []hostFile{
		{format.LinuxCPUInfoStream, []string{"/proc/cpuinfo"}},
		{format.LinuxLSBReleaseStream, []string{"/etc/lsb-release", "/etc/os-release"}},
	}
	procFiles = []procFile{
		{format.LinuxProcStatusStream, "status"},
		{format.LinuxCmdLineStream, "cmdline"},
		{format.LinuxEnvironStream, "environ"},
		{format.LinuxMapsStream, "maps"},
	}
)

func (g *gatherer) files() {
	for _, f := range hostFiles {
		if g.opts.skipped(f.stream) {
			continue
		}
		var errs []error
		for _, p := range f.paths {
			data, err := g.opts.Host.ReadFile(p)
			if err == nil {
				g.m.files[f.stream] = data
				errs = nil
				break
			}
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			g.warn(dumperr.PartialMemoryRead, f.stream, errors.Join(errs...))
		}
	}
	for _, f := range procFiles {
		if g.opts.skipped(f.stream) {
			continue
		}
		data, err := g.t.ProcFile(f.name)
		if err != nil {
			g.warn(dumperr.PartialMemoryRead, f.stream, err)
			continue
		}
		g.m.files[f.stream] = data
	}
	if !g.opts.skipped(format.LinuxAuxvStream) && g.m.rawAuxv != nil {
		g.m.files[format.LinuxAuxvStream] = g.m.rawAuxv
	}
}

// sortedNames returns the ids of named threads in ascending order.
func (m *model) sortedNames() []int {
	tids := make([]int, 0, len(m.names))
	for tid := range m.names {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids
}
