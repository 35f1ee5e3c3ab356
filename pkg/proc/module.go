package proc

import (
	"strings"

	"github.com/monsterxx03/godump/pkgs/procmaps"
)

// VDSOName is the module name written for the kernel's vDSO image.
const VDSOName = "linux-gate.so"

// Module is one loaded image: a run of mappings of the same file.
type Module struct {
	Start uint64
	End   uint64
	// Name is written into the dump. Path is the mapping path as the
	// target sees it; empty for the vDSO.
	Name   string
	Path   string
	Offset uint64
	Dev    string
	Inode  uint64
	Main   bool
	VDSO   bool
}

func (m Module) Size() uint64 {
	return m.End - m.Start
}

func (m Module) Contains(addr uint64) bool {
	return addr >= m.Start && addr < m.End
}

func includable(m *procmaps.Mapping) bool {
	if m.Path == "[vdso]" {
		return true
	}
	if m.Path == "" || m.IsPseudo() || strings.HasPrefix(m.Path, "/dev/") {
		return false
	}
	return true
}

// BuildModules groups consecutive mappings of one file into modules,
// ordered by start address. Runs without an executable mapping, runs
// smaller than a page and later runs of an already seen file are
// dropped. The run containing entry is the main executable; it is named
// exe when its mapping path is marked deleted.
func BuildModules(maps []procmaps.Mapping, entry uint64, exe string) []Module {
	var mods []Module
	seen := map[string]bool{}
	for i := 0; i < len(maps); {
		m := &maps[i]
		if !includable(m) {
			i++
			continue
		}
		cur := Module{
			Start:  m.Start,
			End:    m.End,
			Path:   m.Path,
			Offset: m.Offset,
			Dev:    m.Dev,
			Inode:  m.Inode,
		}
		exec := m.IsExe()
		deleted := m.Deleted
		j := i + 1
		for ; j < len(maps); j++ {
			n := &maps[j]
			if n.Path != m.Path || n.Start != cur.End || n.Inode != m.Inode {
				break
			}
			cur.End = n.End
			exec = exec || n.IsExe()
		}
		i = j

		key := cur.Dev + ":" + cur.Path
		if !exec || cur.Size() < pageSize || seen[key] {
			continue
		}
		seen[key] = true

		cur.Name = cur.Path
		if m.Path == "[vdso]" {
			cur.VDSO = true
			cur.Name = VDSOName
			cur.Path = ""
		}
		if entry != 0 && cur.Contains(entry) {
			cur.Main = true
			if deleted && exe != "" {
				cur.Name = exe
			}
		}
		mods = append(mods, cur)
	}
	return mods
}
