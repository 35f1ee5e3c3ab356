package sysinfo

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/format"
)

type fakeHost struct {
	files map[string]string
	uname Uname
}

func (h fakeHost) ReadFile(path string) ([]byte, error) {
	s, ok := h.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(s), nil
}

func (h fakeHost) Uname() (Uname, error) {
	return h.uname, nil
}

const x86CPUInfo = `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 158
model name	: Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz
stepping	: 10
flags		: fpu vme de pse tsc msr pae mce cx8 apic sep mtrr pge mca cmov pat pse36 clflush dts acpi mmx fxsr sse sse2 ss ht tm pbe syscall nx

processor	: 1
vendor_id	: GenuineIntel
cpu family	: 6
model		: 158
stepping	: 10
`

const armCPUInfo = `processor	: 0
model name	: ARMv7 Processor rev 4 (v7l)
Features	: half thumb fastmult vfp edsp neon vfpv3 tls vfpv4 idiva idivt
CPU implementer	: 0x41
CPU architecture: 7
CPU variant	: 0x0
CPU part	: 0xd03
CPU revision	: 4
`

func TestParseCPUInfo(t *testing.T) {
	ci := ParseCPUInfo([]byte(x86CPUInfo))
	if ci.Processors != 2 || ci.VendorID != "GenuineIntel" || ci.Family != 6 || ci.Model != 158 || ci.Stepping != 10 {
		t.Fatalf("parsed %+v", ci)
	}
	// family 6, model 0x9e, stepping 10
	if got := ci.X86Version(); got != 0x906ea {
		t.Errorf("X86Version = %#x", got)
	}
	if got := ci.X86Features(); got != 0xbfebfbff {
		t.Errorf("X86Features = %#x", got)
	}

	arm := ParseCPUInfo([]byte(armCPUInfo))
	if arm.Architecture != 7 || arm.Implementer != 0x41 || arm.Part != 0xd03 || arm.Revision != 4 {
		t.Fatalf("parsed %+v", arm)
	}
	if got := arm.ARMCPUID(); got != 0x4107d034 {
		t.Errorf("ARMCPUID = %#x", got)
	}
	if got := arm.ARMHWCaps(); got&(1<<12) == 0 || got&1 != 0 {
		t.Errorf("ARMHWCaps = %#x", got)
	}
}

func TestCountCPUs(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0\n", 1},
		{"0-3", 4},
		{"0-3,5", 5},
		{"0,2-3,8-11\n", 7},
		{"", 0},
		{"3-1", 0},
		{"x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CountCPUs(tt.in); got != tt.want {
				t.Errorf("CountCPUs(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRelease(t *testing.T) {
	tests := []struct {
		in   string
		want Release
	}{
		{"5.15.0-91-generic", Release{5, 15, 0}},
		{"6.1.55", Release{6, 1, 55}},
		{"4.9", Release{4, 9, 0}},
		{"3.10rc1.2", Release{3, 10, 0}},
		{"", Release{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseRelease(tt.in); got != tt.want {
				t.Errorf("ParseRelease(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStat(t *testing.T) {
	data := []byte("1234 (my (odd) prog) S 1 1234 1234 0 -1 4194560 100 0 0 0 250 75 0 0 20 0 3 0 4200 12345678 300 18446744073709551615\n")
	st, err := ParseStat(data)
	if err != nil {
		t.Fatal(err)
	}
	if st.PID != 1234 || st.Comm != "my (odd) prog" || st.State != "S" {
		t.Errorf("parsed %+v", st)
	}
	if st.UTime != 250 || st.STime != 75 || st.StartTime != 4200 {
		t.Errorf("times %d %d %d", st.UTime, st.STime, st.StartTime)
	}

	if _, err := ParseStat([]byte("1234 (x) S 1 2")); !errors.Is(err, ErrMalformed) {
		t.Errorf("short stat err = %v", err)
	}
}

func TestCollect(t *testing.T) {
	h := fakeHost{
		files: map[string]string{
			"/proc/cpuinfo":                   x86CPUInfo,
			"/sys/devices/system/cpu/present": "0-7\n",
		},
		uname: Uname{Sysname: "Linux", Release: "5.15.0-91-generic", Version: "#101-Ubuntu SMP", Machine: "x86_64"},
	}
	s, problems := Collect(h, cpu.AMD64)
	if len(problems) != 0 {
		t.Fatalf("problems: %v", problems)
	}
	if s.Info.ProcessorArchitecture != format.ArchAMD64 || s.Info.PlatformID != format.PlatformLinux {
		t.Errorf("arch/platform = %#x %#x", s.Info.ProcessorArchitecture, s.Info.PlatformID)
	}
	if s.Info.NumberOfProcessors != 8 {
		t.Errorf("processors = %d", s.Info.NumberOfProcessors)
	}
	if s.Info.ProcessorLevel != 6 || s.Info.ProcessorRevision != 158<<8|10 {
		t.Errorf("level/revision = %d %#x", s.Info.ProcessorLevel, s.Info.ProcessorRevision)
	}
	if s.Info.MajorVersion != 5 || s.Info.MinorVersion != 15 {
		t.Errorf("version = %d.%d", s.Info.MajorVersion, s.Info.MinorVersion)
	}
	if s.CSDVersion != "Linux 5.15.0-91-generic #101-Ubuntu SMP x86_64" {
		t.Errorf("csd = %q", s.CSDVersion)
	}
	if s.Info.CPU.VendorID() != "GenuineIntel" {
		t.Errorf("vendor = %q", s.Info.CPU.VendorID())
	}

	// Without the sysfs file the cpuinfo count is used.
	delete(h.files, "/sys/devices/system/cpu/present")
	s, _ = Collect(h, cpu.AMD64)
	if s.Info.NumberOfProcessors != 2 {
		t.Errorf("fallback processors = %d", s.Info.NumberOfProcessors)
	}

	s, problems = Collect(fakeHost{}, cpu.ARM64)
	if len(problems) != 1 {
		t.Errorf("problems = %v", problems)
	}
	if s.Info.ProcessorArchitecture != format.ArchARM64 {
		t.Errorf("arch = %#x", s.Info.ProcessorArchitecture)
	}
}

func TestProcessTimes(t *testing.T) {
	h := fakeHost{files: map[string]string{
		"/proc/42/stat": "42 (sleep) S 1 42 42 0 -1 0 0 0 0 0 350 120 0 0 20 0 1 0 50000 0 0\n",
		"/proc/stat":    "cpu  1 2 3\nbtime 1700000000\nprocesses 10\n",
	}}
	times, err := ProcessTimes(h, 42)
	if err != nil {
		t.Fatal(err)
	}
	want := Times{Create: 1700000500, User: 3, Kernel: 1}
	if times != want {
		t.Errorf("times = %+v, want %+v", times, want)
	}
	if _, err := ProcessTimes(h, 7); err == nil {
		t.Error("missing pid accepted")
	}
}
