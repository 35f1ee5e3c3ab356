package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/monsterxx03/godump/pkg/format"
	"github.com/monsterxx03/godump/pkg/minidump"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"only seconds", 45 * time.Second, "45s"},
		{"rounds", 1500 * time.Millisecond, "2s"},
		{"minutes and seconds", 5*time.Minute + 30*time.Second, "5m30s"},
		{"hours", 2*time.Hour + 5*time.Minute + 3*time.Second, "2h5m3s"},
		{"days", 73*time.Hour + time.Second, "3d1h0m1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.duration)
			if got != tt.expected {
				t.Errorf("FormatDuration(%v) = %v, want %v", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestHumanateBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0B"},
		{1023, "1023B"},
		{1024, "1.00KB"},
		{32 * 1024, "32.00KB"},
		{3 << 19, "1.50MB"},
		{5 << 30, "5.00GB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := HumanateBytes(tt.in); got != tt.want {
				t.Errorf("HumanateBytes(%d) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

type stream struct {
	typ  format.StreamType
	data func(b *minidump.Buffer) []byte
}

// document lays out a header, a directory and the payloads the stream
// callbacks produce. Callbacks may write referenced blobs first.
func document(t *testing.T, stamp uint32, streams []stream) []byte {
	t.Helper()
	b := minidump.NewBuffer()
	if _, err := b.Alloc(format.HeaderSize); err != nil {
		t.Fatal(err)
	}
	dirRVA, err := b.Alloc(len(streams) * format.DirectorySize)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range streams {
		loc, err := b.Write(s.data(b))
		if err != nil {
			t.Fatal(err)
		}
		b.WriteAt(dirRVA+format.RVA(i*format.DirectorySize), format.Marshal(format.Directory{StreamType: s.typ, Location: loc}))
	}
	b.WriteAt(0, format.Marshal(format.Header{
		Signature:          format.Signature,
		Version:            format.Version,
		StreamCount:        uint32(len(streams)),
		StreamDirectoryRVA: dirRVA,
		TimeDateStamp:      stamp,
	}))
	return b.Bytes()
}

func mustString(t *testing.T, b *minidump.Buffer, s string) format.RVA {
	t.Helper()
	rva, err := b.WriteString(s)
	if err != nil {
		t.Fatal(err)
	}
	return rva
}

func mustWrite(t *testing.T, b *minidump.Buffer, data []byte) format.Location {
	t.Helper()
	loc, err := b.Write(data)
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func list(count uint32, records ...any) []byte {
	out := format.Marshal(count)
	for _, r := range records {
		out = append(out, format.Marshal(r)...)
	}
	return out
}

func sample(t *testing.T) []byte {
	return document(t, 1700003725, []stream{
		{format.SystemInfoStream, func(b *minidump.Buffer) []byte {
			return format.Marshal(format.SystemInfo{
				ProcessorArchitecture: format.ArchAMD64,
				ProcessorLevel:        6,
				NumberOfProcessors:    4,
				MajorVersion:          6,
				MinorVersion:          1,
				PlatformID:            0x8201,
				CSDVersionRVA:         mustString(t, b, "Linux 6.1.0 #1 SMP x86_64"),
				CPU:                   format.X86CPUInformation([3]uint32{0x756e6547, 0x49656e69, 0x6c65746e}, 0, 0, 0),
			})
		}},
		{format.ThreadListStream, func(b *minidump.Buffer) []byte {
			ctx := format.ContextAMD64{ContextFlags: format.ContextAMD64Full, Rip: 0x401000, Rsp: 0x7ffe1000, Rbp: 0x7ffe1100}
			loc := mustWrite(t, b, format.Marshal(ctx))
			stack := mustWrite(t, b, []byte{1, 2, 3, 4, 5, 6, 7, 8})
			return list(1, format.Thread{
				ThreadID:      77,
				Stack:         format.MemoryDescriptor{StartOfMemoryRange: 0x7ffe1000, Memory: stack},
				ThreadContext: loc,
			})
		}},
		{format.MemoryListStream, func(b *minidump.Buffer) []byte {
			return list(1, format.MemoryDescriptor{StartOfMemoryRange: 0x7ffe1000, Memory: format.Location{DataSize: 8, RVA: 0}})
		}},
		// Claims two modules but carries none.
		{format.ModuleListStream, func(b *minidump.Buffer) []byte {
			return list(2)
		}},
		{format.ExceptionStream, func(b *minidump.Buffer) []byte {
			return format.Marshal(format.ExceptionStreamRecord{
				ThreadID: 77,
				ExceptionRecord: format.Exception{
					ExceptionCode:    11,
					ExceptionFlags:   1,
					ExceptionAddress: 0xdead,
				},
			})
		}},
		{format.MiscInfoStream, func(b *minidump.Buffer) []byte {
			return format.Marshal(format.MiscInfo{
				SizeOfInfo:        format.MiscInfoSize,
				Flags1:            format.MiscInfoFlagsProcessID | format.MiscInfoFlagsProcessTimes,
				ProcessID:         4242,
				ProcessCreateTime: 1700000000,
				ProcessUserTime:   3,
				ProcessKernelTime: 1,
			})
		}},
		{format.ThreadNameListStream, func(b *minidump.Buffer) []byte {
			return list(1, format.ThreadName{ThreadID: 77, ThreadNameRVA: uint64(mustString(t, b, "worker"))})
		}},
	})
}

func TestSummarize(t *testing.T) {
	f, err := format.Parse(sample(t))
	if err != nil {
		t.Fatal(err)
	}
	s := Summarize(f)

	if len(s.Streams) != 7 || s.Streams[0].Type != "system_info" || s.Streams[6].Type != "thread_names" {
		t.Errorf("streams = %+v", s.Streams)
	}
	if s.System == nil || s.System.Arch != "amd64" || s.System.Vendor != "GenuineIntel" || s.System.CSDVersion != "Linux 6.1.0 #1 SMP x86_64" {
		t.Errorf("system = %+v", s.System)
	}
	if s.System != nil && s.System.OSVersion != "6.1.0" {
		t.Errorf("os version = %s", s.System.OSVersion)
	}
	if s.Process == nil || s.Process.PID != 4242 || s.Process.Age != "1h2m5s" || s.Process.User != 3 {
		t.Errorf("process = %+v", s.Process)
	}
	if len(s.Threads) != 1 {
		t.Fatalf("threads = %+v", s.Threads)
	}
	th := s.Threads[0]
	if th.ID != 77 || th.Name != "worker" || th.IP != 0x401000 || th.SP != 0x7ffe1000 || th.FP != 0x7ffe1100 || th.StackSize != 8 {
		t.Errorf("thread = %+v", th)
	}
	if len(th.Registers) == 0 || th.Registers[0].Name != "rax" {
		t.Errorf("registers = %+v", th.Registers)
	}
	if len(s.Memory) != 1 || s.Memory[0].Start != 0x7ffe1000 {
		t.Errorf("memory = %+v", s.Memory)
	}
	if s.Exception == nil || s.Exception.Signal != "SIGSEGV" || s.Exception.Code != 1 || s.Exception.Address != 0xdead {
		t.Errorf("exception = %+v", s.Exception)
	}
	if len(s.Modules) != 0 {
		t.Errorf("modules = %+v", s.Modules)
	}
	// The broken module list is the only problem; the absent dso stream
	// is not reported.
	if len(s.Problems) != 1 || !strings.HasPrefix(s.Problems[0], "module_list:") {
		t.Errorf("problems = %q", s.Problems)
	}
}

func TestStack(t *testing.T) {
	f, err := format.Parse(sample(t))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Stack(f, 77)
	if err != nil || len(got) != 8 || got[7] != 8 {
		t.Errorf("Stack(77) = %v, %v", got, err)
	}
	if _, err := Stack(f, 78); err == nil {
		t.Error("Stack(78) succeeded")
	}
}

func TestDecode(t *testing.T) {
	raw := sample(t)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll(raw, nil)
	enc.Close()

	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{"plain", raw, true},
		{"zstd", compressed, true},
		{"truncated zstd", compressed[:len(compressed)/2], false},
		{"garbage", []byte("not a dump at all, clearly"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data)
			if tt.ok != (err == nil) {
				t.Fatalf("Decode err = %v, want ok %v", err, tt.ok)
			}
			if tt.ok && len(f.Data) != len(raw) {
				t.Errorf("decoded %d bytes, want %d", len(f.Data), len(raw))
			}
		})
	}
}

func TestCreate(t *testing.T) {
	raw := sample(t)
	dir := t.TempDir()
	for _, compress := range []bool{false, true} {
		path := OutputPath(dir, compress)
		if filepath.Dir(path) != dir {
			t.Fatalf("OutputPath(%s) = %s", dir, path)
		}
		if got := strings.HasSuffix(path, ".zst"); got != compress {
			t.Errorf("path %s for compress=%v", path, compress)
		}
		w, err := Create(path, compress)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(raw); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		f, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", path, err)
		}
		if len(f.Directory) != 7 {
			t.Errorf("directory = %d entries", len(f.Directory))
		}
	}
	if got := OutputPath(filepath.Join(dir, "x.dmp"), true); got != filepath.Join(dir, "x.dmp") {
		t.Errorf("explicit path rewritten to %s", got)
	}
}
