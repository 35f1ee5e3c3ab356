package proc

import (
	"sort"

	"github.com/monsterxx03/godump/pkgs/procmaps"
)

// Range is a span of target memory.
type Range struct {
	Start uint64
	Size  uint64
}

func (r Range) End() uint64 {
	return r.Start + r.Size
}

// FindMapping returns the mapping containing addr. maps must be sorted.
func FindMapping(maps []procmaps.Mapping, addr uint64) (procmaps.Mapping, bool) {
	i := sort.Search(len(maps), func(i int) bool { return maps[i].End > addr })
	if i < len(maps) && maps[i].Contains(addr) {
		return maps[i], true
	}
	return procmaps.Mapping{}, false
}

// StackRange is the stack memory to capture for a thread: from the page
// holding sp to the end of sp's mapping, at most max bytes.
func StackRange(sp uint64, maps []procmaps.Mapping, max uint64) (Range, bool) {
	m, ok := FindMapping(maps, sp)
	if !ok || max == 0 {
		return Range{}, false
	}
	start := sp &^ (pageSize - 1)
	if start < m.Start {
		start = m.Start
	}
	size := m.End - start
	if size > max {
		size = max
	}
	return Range{Start: start, Size: size}, true
}

// IPRange is size bytes centred on ip, clamped to ip's mapping. There is
// no range unless ip is in an executable mapping.
func IPRange(ip uint64, maps []procmaps.Mapping, size uint64) (Range, bool) {
	m, ok := FindMapping(maps, ip)
	if !ok || !m.IsExe() || size == 0 {
		return Range{}, false
	}
	start := m.Start
	if ip-m.Start > size/2 {
		start = ip - size/2
	}
	end := start + size
	if end > m.End || end < start {
		end = m.End
	}
	return Range{Start: start, Size: end - start}, true
}

// ReadableRange is the prefix of [addr, addr+size) covered by a run of
// adjacent readable mappings. It is empty when addr is not readable.
func ReadableRange(addr, size uint64, maps []procmaps.Mapping) Range {
	r := Range{Start: addr}
	end := addr + size
	if end < addr {
		end = ^uint64(0)
	}
	i := sort.Search(len(maps), func(i int) bool { return maps[i].End > addr })
	cur := addr
	for ; i < len(maps) && cur < end; i++ {
		m := maps[i]
		if !m.Contains(cur) || !m.IsRead() {
			break
		}
		cur = m.End
	}
	if cur > end {
		cur = end
	}
	r.Size = cur - addr
	return r
}
