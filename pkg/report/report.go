// Package report decodes a minidump into plain values for display and
// for the MCP inspect tool.
package report

import (
	"encoding/hex"
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/format"
)

type Stream struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
	RVA  uint32 `json:"rva"`
	Size uint32 `json:"size"`
}

type System struct {
	Arch       string `json:"arch"`
	Processors uint8  `json:"processors"`
	Level      uint16 `json:"level"`
	Revision   uint16 `json:"revision"`
	OSVersion  string `json:"os_version"`
	CSDVersion string `json:"csd_version"`
	Vendor     string `json:"vendor,omitempty"`
}

type Process struct {
	PID     uint32    `json:"pid"`
	Created time.Time `json:"created,omitempty"`
	// Age is how long the process had run when it was dumped.
	Age    string `json:"age,omitempty"`
	User   uint32 `json:"user_seconds"`
	Kernel uint32 `json:"kernel_seconds"`
}

type Thread struct {
	ID         uint32         `json:"id"`
	Name       string         `json:"name,omitempty"`
	IP         uint64         `json:"ip"`
	SP         uint64         `json:"sp"`
	FP         uint64         `json:"fp"`
	StackStart uint64         `json:"stack_start"`
	StackSize  uint32         `json:"stack_size"`
	Registers  []cpu.Register `json:"registers,omitempty"`
}

type Module struct {
	Base    uint64 `json:"base"`
	Size    uint32 `json:"size"`
	Name    string `json:"name"`
	BuildID string `json:"build_id"`
}

type Memory struct {
	Start uint64 `json:"start"`
	Size  uint32 `json:"size"`
}

type Exception struct {
	ThreadID uint32 `json:"thread_id"`
	Signal   string `json:"signal"`
	Code     uint32 `json:"code"`
	Address  uint64 `json:"address"`
}

type LinkMap struct {
	Addr uint64 `json:"addr"`
	Name string `json:"name"`
	LD   uint64 `json:"ld"`
}

// Summary is a decoded document. Streams that fail to decode are listed
// in Problems and leave their fields empty.
type Summary struct {
	Timestamp time.Time  `json:"timestamp"`
	Size      int        `json:"size"`
	Streams   []Stream   `json:"streams"`
	System    *System    `json:"system,omitempty"`
	Process   *Process   `json:"process,omitempty"`
	Threads   []Thread   `json:"threads"`
	Modules   []Module   `json:"modules"`
	Memory    []Memory   `json:"memory"`
	Exception *Exception `json:"exception,omitempty"`
	LinkMaps  []LinkMap  `json:"link_maps,omitempty"`
	Problems  []string   `json:"problems,omitempty"`
}

type summarizer struct {
	f    *format.File
	s    *Summary
	arch cpu.Arch
}

func (z *summarizer) problem(stream format.StreamType, err error) {
	if errors.Is(err, format.ErrNoStream) {
		return
	}
	z.s.Problems = append(z.s.Problems, fmt.Sprintf("%s: %v", stream, err))
}

func Summarize(f *format.File) *Summary {
	z := &summarizer{f: f, s: &Summary{
		Timestamp: time.Unix(int64(f.Header.TimeDateStamp), 0).UTC(),
		Size:      len(f.Data),
	}}
	for _, d := range f.Directory {
		z.s.Streams = append(z.s.Streams, Stream{
			Type: d.StreamType.String(),
			ID:   uint32(d.StreamType),
			RVA:  d.Location.RVA,
			Size: d.Location.DataSize,
		})
	}
	z.system()
	z.process()
	z.threads()
	z.modules()
	z.memory()
	z.exception()
	z.linkMaps()
	return z.s
}

func (z *summarizer) system() {
	si, err := z.f.SystemInfo()
	if err != nil {
		z.problem(format.SystemInfoStream, err)
		return
	}
	z.arch = cpu.FromProcessorArchitecture(si.ProcessorArchitecture)
	sys := &System{
		Arch:       z.arch.String(),
		Processors: si.NumberOfProcessors,
		Level:      si.ProcessorLevel,
		Revision:   si.ProcessorRevision,
		OSVersion:  fmt.Sprintf("%d.%d.%d", si.MajorVersion, si.MinorVersion, si.BuildNumber),
	}
	if z.arch == cpu.X86 || z.arch == cpu.AMD64 {
		sys.Vendor = si.CPU.VendorID()
	}
	if csd, err := z.f.ReadString(si.CSDVersionRVA); err == nil {
		sys.CSDVersion = csd
	}
	z.s.System = sys
}

func (z *summarizer) process() {
	mi, err := z.f.MiscInfo()
	if err != nil {
		z.problem(format.MiscInfoStream, err)
		return
	}
	p := &Process{PID: mi.ProcessID}
	if mi.Flags1&format.MiscInfoFlagsProcessTimes != 0 {
		p.Created = time.Unix(int64(mi.ProcessCreateTime), 0).UTC()
		p.User = mi.ProcessUserTime
		p.Kernel = mi.ProcessKernelTime
		if age := z.s.Timestamp.Sub(p.Created); age >= 0 {
			p.Age = FormatDuration(age)
		}
	}
	z.s.Process = p
}

func (z *summarizer) threads() {
	threads, err := z.f.Threads()
	if err != nil {
		z.problem(format.ThreadListStream, err)
		return
	}
	names, err := z.f.ThreadNames()
	if err != nil {
		z.problem(format.ThreadNameListStream, err)
	}
	for _, th := range threads {
		t := Thread{
			ID:         th.ThreadID,
			Name:       names[th.ThreadID],
			StackStart: th.Stack.StartOfMemoryRange,
			StackSize:  th.Stack.Memory.DataSize,
		}
		if raw, err := z.f.Slice(th.ThreadContext); err == nil && len(raw) > 0 {
			if ctx, err := cpu.FromBytes(z.arch, raw); err == nil {
				t.IP, t.SP, t.FP = ctx.IP(), ctx.SP(), ctx.FP()
				t.Registers = ctx.Registers()
			} else {
				z.problem(format.ThreadListStream, fmt.Errorf("thread %d: %w", th.ThreadID, err))
			}
		}
		z.s.Threads = append(z.s.Threads, t)
	}
}

func (z *summarizer) modules() {
	mods, err := z.f.Modules()
	if err != nil {
		z.problem(format.ModuleListStream, err)
		return
	}
	for _, m := range mods {
		z.s.Modules = append(z.s.Modules, Module{
			Base:    m.BaseOfImage,
			Size:    m.SizeOfImage,
			Name:    m.Name,
			BuildID: hex.EncodeToString(m.BuildID),
		})
	}
}

func (z *summarizer) memory() {
	mems, err := z.f.MemoryList()
	if err != nil {
		z.problem(format.MemoryListStream, err)
		return
	}
	for _, m := range mems {
		z.s.Memory = append(z.s.Memory, Memory{Start: m.StartOfMemoryRange, Size: m.Memory.DataSize})
	}
}

func (z *summarizer) exception() {
	e, err := z.f.Exception()
	if err != nil {
		z.problem(format.ExceptionStream, err)
		return
	}
	sig := unix.SignalName(syscall.Signal(e.ExceptionRecord.ExceptionCode))
	if sig == "" {
		sig = fmt.Sprintf("signal %d", e.ExceptionRecord.ExceptionCode)
	}
	z.s.Exception = &Exception{
		ThreadID: e.ThreadID,
		Signal:   sig,
		Code:     e.ExceptionRecord.ExceptionFlags,
		Address:  e.ExceptionRecord.ExceptionAddress,
	}
}

func (z *summarizer) linkMaps() {
	_, maps, err := z.f.DSODebug()
	if err != nil {
		z.problem(format.LinuxDSODebugStream, err)
		return
	}
	for _, lm := range maps {
		name, _ := z.f.ReadString(lm.Name)
		z.s.LinkMaps = append(z.s.LinkMaps, LinkMap{Addr: lm.Addr, Name: name, LD: lm.LD})
	}
}

// Stack returns the captured stack bytes of a thread.
func Stack(f *format.File, tid uint32) ([]byte, error) {
	threads, err := f.Threads()
	if err != nil {
		return nil, err
	}
	for _, th := range threads {
		if th.ThreadID == tid {
			return f.Slice(th.Stack.Memory)
		}
	}
	return nil, fmt.Errorf("thread %d not in dump", tid)
}
