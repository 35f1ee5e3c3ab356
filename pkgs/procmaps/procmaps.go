// Package procmaps reads the memory mappings of a process from
// /proc/<pid>/maps.
package procmaps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const deletedSuffix = " (deleted)"

var ErrUnordered = errors.New("mappings are not ordered by start address")

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start   uint64
	End     uint64
	Perm    string
	Offset  uint64
	Dev     string
	Inode   uint64
	Path    string
	Deleted bool
}

func (m *Mapping) Size() uint64 {
	return m.End - m.Start
}

func (m *Mapping) Contains(addr uint64) bool {
	return addr >= m.Start && addr < m.End
}

func (m *Mapping) perm(i int, c byte) bool {
	return len(m.Perm) > i && m.Perm[i] == c
}

func (m *Mapping) IsRead() bool {
	return m.perm(0, 'r')
}

func (m *Mapping) IsWrite() bool {
	return m.perm(1, 'w')
}

func (m *Mapping) IsExe() bool {
	return m.perm(2, 'x')
}

func (m *Mapping) IsPrivate() bool {
	return m.perm(3, 'p')
}

func (m *Mapping) IsShare() bool {
	return m.perm(3, 's')
}

// IsPseudo reports kernel-named mappings such as [stack] or [vdso].
func (m *Mapping) IsPseudo() bool {
	return strings.HasPrefix(m.Path, "[")
}

func ReadProcMaps(pid int) ([]Mapping, error) {
	return parseProcMaps(fmt.Sprintf("/proc/%d/maps", pid))
}

func parseProcMaps(path string) ([]Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads maps-formatted text. Mappings must come in increasing,
// non-overlapping order, as the kernel emits them.
func Parse(r io.Reader) ([]Mapping, error) {
	reader := bufio.NewReader(r)
	result := make([]Mapping, 0)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if strings.TrimSpace(line) != "" {
			m, perr := parseLine(strings.TrimRight(line, "\n"))
			if perr != nil {
				return nil, perr
			}
			if n := len(result); n > 0 && m.Start < result[n-1].End {
				return nil, fmt.Errorf("%w: %#x after %#x", ErrUnordered, m.Start, result[n-1].End)
			}
			result = append(result, m)
		}
		if err == io.EOF {
			break
		}
	}
	return result, nil
}

// cutField splits off the first space-separated field of s.
func cutField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func parseLine(line string) (Mapping, error) {
	var fields [5]string
	rest := line
	for i := range fields {
		fields[i], rest = cutField(rest)
		if fields[i] == "" {
			return Mapping{}, fmt.Errorf("invalid map range: %s", line)
		}
	}
	rangeSplit := strings.SplitN(fields[0], "-", 2)
	if len(rangeSplit) != 2 {
		return Mapping{}, fmt.Errorf("invalid map range: %s", line)
	}
	start, err := strconv.ParseUint(rangeSplit[0], 16, 64)
	if err != nil {
		return Mapping{}, err
	}
	end, err := strconv.ParseUint(rangeSplit[1], 16, 64)
	if err != nil {
		return Mapping{}, err
	}
	if end < start {
		return Mapping{}, fmt.Errorf("invalid map range: %s", line)
	}
	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Mapping{}, err
	}
	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return Mapping{}, err
	}
	m := Mapping{
		Start:  start,
		End:    end,
		Perm:   fields[1],
		Offset: offset,
		Dev:    fields[3],
		Inode:  inode,
		Path:   strings.TrimLeft(rest, " \t"),
	}
	if strings.HasSuffix(m.Path, deletedSuffix) {
		m.Path = strings.TrimSuffix(m.Path, deletedSuffix)
		m.Deleted = true
	}
	return m, nil
}
