package proc

import (
	"strings"
	"testing"

	"github.com/monsterxx03/godump/pkgs/procmaps"
)

const testMaps = `555555554000-555555556000 r--p 00000000 08:01 100 /usr/bin/app (deleted)
555555556000-55555555a000 r-xp 00002000 08:01 100 /usr/bin/app (deleted)
55555555a000-55555555c000 rw-p 00006000 08:01 100 /usr/bin/app (deleted)
55555555c000-55555557d000 rw-p 00000000 00:00 0 [heap]
7ffff7c00000-7ffff7c28000 r--p 00000000 08:01 200 /lib/libc.so.6
7ffff7c28000-7ffff7dbd000 r-xp 00028000 08:01 200 /lib/libc.so.6
7ffff7dbd000-7ffff7e15000 r--p 001bd000 08:01 200 /lib/libc.so.6
7ffff7e20000-7ffff7e21000 r-xp 00000000 08:01 300 /lib/tiny.so
7ffff7e30000-7ffff7e40000 r--p 00000000 08:01 400 /usr/share/locale.bin
7ffff7e40000-7ffff7e50000 rw-s 00000000 00:05 9 /dev/shm/ring
7ffff7e50000-7ffff7e60000 r-xp 00000000 00:05 10 /dev/zero
7ffff7f00000-7ffff7f02000 r-xp 00000000 08:01 200 /lib/libc.so.6
7ffff7fc1000-7ffff7fc3000 r-xp 00000000 00:00 0 [vdso]
7ffffffde000-7ffffffff000 rw-p 00000000 00:00 0 [stack]
`

func parseMaps(t *testing.T, s string) []procmaps.Mapping {
	t.Helper()
	maps, err := procmaps.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return maps
}

func TestBuildModules(t *testing.T) {
	mods := BuildModules(parseMaps(t, testMaps), 0x555555557000, "/proc/1/exe")

	want := []Module{
		{Start: 0x555555554000, End: 0x55555555c000, Name: "/proc/1/exe", Path: "/usr/bin/app", Inode: 100, Main: true},
		{Start: 0x7ffff7c00000, End: 0x7ffff7e15000, Name: "/lib/libc.so.6", Path: "/lib/libc.so.6", Inode: 200},
		{Start: 0x7ffff7e20000, End: 0x7ffff7e21000, Name: "/lib/tiny.so", Path: "/lib/tiny.so", Inode: 300},
		{Start: 0x7ffff7fc1000, End: 0x7ffff7fc3000, Name: VDSOName, VDSO: true},
	}
	if len(mods) != len(want) {
		t.Fatalf("got %d modules: %+v", len(mods), mods)
	}
	for i, w := range want {
		m := mods[i]
		t.Run(w.Name, func(t *testing.T) {
			if m.Start != w.Start || m.End != w.End {
				t.Errorf("range = %#x-%#x, want %#x-%#x", m.Start, m.End, w.Start, w.End)
			}
			if m.Name != w.Name || m.Path != w.Path {
				t.Errorf("name/path = %q/%q, want %q/%q", m.Name, m.Path, w.Name, w.Path)
			}
			if m.Inode != w.Inode || m.Main != w.Main || m.VDSO != w.VDSO {
				t.Errorf("got %+v, want %+v", m, w)
			}
		})
	}
}

func TestBuildModulesNotDeleted(t *testing.T) {
	maps := parseMaps(t, "400000-402000 r-xp 00000000 08:01 7 /opt/bin/server\n")
	mods := BuildModules(maps, 0x400100, "/other")
	if len(mods) != 1 || !mods[0].Main || mods[0].Name != "/opt/bin/server" {
		t.Errorf("mods = %+v", mods)
	}
}

func TestRanges(t *testing.T) {
	maps := parseMaps(t, `400000-408000 r-xp 00000000 08:01 7 /bin/a
408000-410000 rw-p 00000000 00:00 0
7ffe00000000-7ffe00021000 rw-p 00000000 00:00 0 [stack]
`)
	tests := []struct {
		name string
		fn   func() (Range, bool)
		want Range
		ok   bool
	}{
		{"stack capped", func() (Range, bool) { return StackRange(0x7ffe00001234, maps, 0x8000) }, Range{0x7ffe00001000, 0x8000}, true},
		{"stack to mapping end", func() (Range, bool) { return StackRange(0x7ffe0001f010, maps, 0x8000) }, Range{0x7ffe0001f000, 0x2000}, true},
		{"stack unmapped", func() (Range, bool) { return StackRange(0x10, maps, 0x8000) }, Range{}, false},
		{"ip centred", func() (Range, bool) { return IPRange(0x404000, maps, 256) }, Range{0x403f80, 256}, true},
		{"ip near start", func() (Range, bool) { return IPRange(0x400010, maps, 256) }, Range{0x400000, 256}, true},
		{"ip near end", func() (Range, bool) { return IPRange(0x407ff0, maps, 256) }, Range{0x407f70, 0x90}, true},
		{"ip not executable", func() (Range, bool) { return IPRange(0x409000, maps, 256) }, Range{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.fn()
			if ok != tt.ok || got != tt.want {
				t.Errorf("got %#x,%v want %#x,%v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFindMapping(t *testing.T) {
	maps := parseMaps(t, testMaps)
	tests := []struct {
		addr uint64
		path string
		ok   bool
	}{
		{0x555555554000, "/usr/bin/app", true},
		{0x55555555bfff, "/usr/bin/app", true},
		{0x55555555c000, "[heap]", true},
		{0x7ffff7e15000, "", false},
		{0x10, "", false},
		{0xffffffffffff, "", false},
	}
	for _, tt := range tests {
		m, ok := FindMapping(maps, tt.addr)
		if ok != tt.ok || m.Path != tt.path {
			t.Errorf("FindMapping(%#x) = %q,%v", tt.addr, m.Path, ok)
		}
	}
}
