package minidump

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"sort"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/auxv"
	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/format"
	"github.com/monsterxx03/godump/pkg/sysinfo"
	"github.com/monsterxx03/godump/pkgs/procmaps"
)

const (
	fakePID   = 4242
	exeBase   = 0x555555554000
	exeSize   = 0x2000
	stackBase = 0x7ffe00000000
	stackSize = 0x21000
	unmapped  = 0x10000000
	libcBase  = 0x7ffff7c00000
)

var testBuildID = []byte{0x8c, 0x1d, 0x52, 0x7e, 0x3a, 0x10, 0x44, 0x90, 0xaa, 0x0b, 0xcc, 0x61, 0x02, 0xf4, 0x77, 0x19, 0x35, 0xe0, 0x4d, 0x3b}

const fakeMaps = `555555554000-555555556000 r-xp 00000000 08:01 1234 /usr/bin/fake
7ffe00000000-7ffe00021000 rw-p 00000000 00:00 0 [stack]
`

const fakeCPUInfo = `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 158
model name	: Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz
stepping	: 10
flags		: fpu vme de pse tsc msr pae mce cx8 apic sep

`

type region struct {
	start uint64
	data  []byte
}

type fakeTarget struct {
	tids     []int
	contexts map[int]*cpu.Context
	regions  []region
	maps     string
	vector   auxv.Vector
	files    map[string][]byte
	names    map[int]string
	exe      string
}

func amd64Context(ip, sp uint64) *cpu.Context {
	return &cpu.Context{Arch: cpu.AMD64, AMD64: &format.ContextAMD64{
		ContextFlags: format.ContextAMD64Full,
		Rip:          ip,
		Rsp:          sp,
		Rbp:          sp + 0x40,
	}}
}

func putPtr(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:], v)
}

// buildExe lays out a position independent executable image: program
// headers, a build id note, a dynamic section and the loader's r_debug
// with a two entry link map.
func buildExe(buildID []byte) []byte {
	img := make([]byte, exeSize)
	var note bytes.Buffer
	binary.Write(&note, binary.LittleEndian, [3]uint32{4, uint32(len(buildID)), 3})
	note.WriteString("GNU\x00")
	note.Write(buildID)

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, elf.Header64{
		Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(elf.EM_X86_64), Version: 1,
		Entry: 0x1000, Phoff: 64, Ehsize: 64, Phentsize: 56, Phnum: 4,
	})
	for _, p := range []elf.Prog64{
		{Type: uint32(elf.PT_PHDR), Flags: uint32(elf.PF_R), Off: 0x40, Vaddr: 0x40, Filesz: 4 * 56, Memsz: 4 * 56, Align: 8},
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X), Filesz: exeSize, Memsz: exeSize, Align: 0x1000},
		{Type: uint32(elf.PT_NOTE), Flags: uint32(elf.PF_R), Off: 0x200, Vaddr: 0x200, Filesz: uint64(note.Len()), Memsz: uint64(note.Len()), Align: 4},
		{Type: uint32(elf.PT_DYNAMIC), Flags: uint32(elf.PF_R | elf.PF_W), Off: 0x300, Vaddr: 0x300, Filesz: 48, Memsz: 48, Align: 8},
	} {
		binary.Write(&hdr, binary.LittleEndian, p)
	}
	copy(img, hdr.Bytes())
	copy(img[0x200:], note.Bytes())

	// DT_DEBUG, DT_STRTAB, DT_NULL
	putPtr(img, 0x300, 21)
	putPtr(img, 0x308, exeBase+0x400)
	putPtr(img, 0x310, 5)
	putPtr(img, 0x318, exeBase+0x700)

	// r_debug
	binary.LittleEndian.PutUint32(img[0x400:], 1)
	putPtr(img, 0x408, exeBase+0x500)
	putPtr(img, 0x410, 0x7ffff7fd1000)
	putPtr(img, 0x420, 0x7ffff7fc3000)

	// link_map entries: the executable, then libc
	putPtr(img, 0x500, 0)
	putPtr(img, 0x508, exeBase+0x600)
	putPtr(img, 0x510, exeBase+0x300)
	putPtr(img, 0x518, exeBase+0x540)
	putPtr(img, 0x540, libcBase)
	putPtr(img, 0x548, exeBase+0x610)
	putPtr(img, 0x550, 0x7ffff7e1d000)
	putPtr(img, 0x560, exeBase+0x500)
	copy(img[0x610:], "/lib/libc.so.6\x00")
	return img
}

func newFakeTarget() *fakeTarget {
	stack := make([]byte, stackSize)
	for i := range stack {
		stack[i] = byte(i * 7)
	}
	return &fakeTarget{
		tids: []int{fakePID, fakePID + 1, fakePID + 2},
		contexts: map[int]*cpu.Context{
			fakePID:     amd64Context(exeBase+0x1100, stackBase+0x1ff00),
			fakePID + 1: amd64Context(exeBase+0x1100, stackBase+0x10010),
			fakePID + 2: amd64Context(exeBase+0x1800, stackBase+0x8000),
		},
		regions: []region{
			{exeBase, buildExe(testBuildID)},
			{stackBase, stack},
		},
		maps: fakeMaps,
		vector: auxv.Vector{
			auxv.AT_PHDR:   exeBase + 0x40,
			auxv.AT_PHNUM:  4,
			auxv.AT_PAGESZ: 4096,
			auxv.AT_ENTRY:  exeBase + 0x1000,
		},
		files: map[string][]byte{
			"status":  []byte("Name:\tfake\nState:\tt (tracing stop)\nPid:\t4242\n"),
			"cmdline": []byte("/usr/bin/fake\x00--serve\x00"),
			"environ": []byte("HOME=/root\x00LANG=C\x00"),
			"maps":    []byte(fakeMaps),
		},
		names: map[int]string{fakePID: "fake", fakePID + 1: "worker-1", fakePID + 2: "worker-2"},
		exe:   "/usr/bin/fake",
	}
}

func (f *fakeTarget) PID() int         { return fakePID }
func (f *fakeTarget) Arch() cpu.Arch   { return cpu.AMD64 }
func (f *fakeTarget) ThreadIDs() []int { return f.tids }

func (f *fakeTarget) Capture(tid int) (*cpu.Context, error) {
	ctx, ok := f.contexts[tid]
	if !ok || ctx == nil {
		return nil, errors.New("no such process")
	}
	return ctx, nil
}

func (f *fakeTarget) ReadMemory(addr uint64, length int) ([]byte, error) {
	for _, r := range f.regions {
		end := r.start + uint64(len(r.data))
		if addr < r.start || addr >= end {
			continue
		}
		b := r.data[addr-r.start:]
		if len(b) >= length {
			return append([]byte(nil), b[:length]...), nil
		}
		return append([]byte(nil), b...), dumperr.Memory(dumperr.PartialMemoryRead, end, errors.New("input/output error"))
	}
	return nil, dumperr.Memory(dumperr.PartialMemoryRead, addr, errors.New("input/output error"))
}

func (f *fakeTarget) Mappings() ([]procmaps.Mapping, error) {
	return procmaps.Parse(strings.NewReader(f.maps))
}

func (f *fakeTarget) Auxv() (auxv.Vector, []byte, error) {
	tags := make([]uint64, 0, len(f.vector))
	for tag := range f.vector {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	var raw []byte
	for _, tag := range append(tags, auxv.AT_NULL) {
		raw = binary.LittleEndian.AppendUint64(raw, tag)
		raw = binary.LittleEndian.AppendUint64(raw, f.vector[tag])
	}
	return f.vector, raw, nil
}

func (f *fakeTarget) ProcFile(name string) ([]byte, error) {
	if data, ok := f.files[name]; ok {
		return data, nil
	}
	return nil, os.ErrNotExist
}

func (f *fakeTarget) ThreadName(tid int) (string, error) {
	if n, ok := f.names[tid]; ok {
		return n, nil
	}
	return "", os.ErrNotExist
}

func (f *fakeTarget) ExePath() (string, error) {
	return f.exe, nil
}

func (f *fakeTarget) RootPath(path string) string {
	return "/nonexistent-root" + path
}

type fakeHost map[string]string

func (h fakeHost) ReadFile(path string) ([]byte, error) {
	if s, ok := h[path]; ok {
		return []byte(s), nil
	}
	return nil, os.ErrNotExist
}

func (h fakeHost) Uname() (sysinfo.Uname, error) {
	return sysinfo.Uname{Sysname: "Linux", Release: "6.1.0-13-amd64", Version: "#1 SMP PREEMPT_DYNAMIC", Machine: "x86_64"}, nil
}

func newFakeHost() fakeHost {
	return fakeHost{
		"/proc/cpuinfo":                   fakeCPUInfo,
		"/sys/devices/system/cpu/present": "0-3\n",
		"/proc/4242/stat":                 "4242 (fake) S 1 4242 4242 0 -1 0 0 0 0 0 350 120 0 0 20 0 3 0 50000 0 0\n",
		"/proc/stat":                      "cpu  1 2 3\nbtime 1700000000\n",
		"/etc/os-release":                 "ID=debian\nVERSION_ID=\"12\"\n",
	}
}

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	o := DefaultOptions()
	o.Host = newFakeHost()
	o.Clock = func() time.Time { return fixedTime }
	o.AppMemory = []Region{{Address: unmapped, Length: 64}, {Address: stackBase, Length: 32}}
	return o
}
