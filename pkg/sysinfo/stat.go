package sysinfo

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// TicksPerSecond is USER_HZ, fixed at 100 on every Linux ABI.
const TicksPerSecond = 100

var ErrMalformed = errors.New("malformed proc file")

// ProcStat holds the /proc/<pid>/stat fields a dump records. Times are
// in clock ticks.
type ProcStat struct {
	PID       int
	Comm      string
	State     string
	UTime     uint64
	STime     uint64
	StartTime uint64
}

// ParseStat decodes /proc/<pid>/stat. The command name may contain spaces
// and parentheses, so fields are counted from the last ')'.
func ParseStat(data []byte) (ProcStat, errors.E) {
	s := string(bytes.TrimSpace(data))
	open := strings.IndexByte(s, '(')
	closing := strings.LastIndexByte(s, ')')
	if open < 0 || closing < open {
		return ProcStat{}, errors.Errorf("%w: stat has no command field", ErrMalformed)
	}
	var st ProcStat
	pid, err := strconv.Atoi(strings.TrimSpace(s[:open]))
	if err != nil {
		return ProcStat{}, errors.Errorf("%w: stat pid: %v", ErrMalformed, err)
	}
	st.PID = pid
	st.Comm = s[open+1 : closing]
	// fields[0] is field 3 (state).
	fields := strings.Fields(s[closing+1:])
	if len(fields) < 20 {
		return ProcStat{}, errors.Errorf("%w: stat has %d fields", ErrMalformed, len(fields)+2)
	}
	st.State = fields[0]
	for _, f := range []struct {
		dst *uint64
		idx int
	}{
		{&st.UTime, 14}, {&st.STime, 15}, {&st.StartTime, 22},
	} {
		v, err := strconv.ParseUint(fields[f.idx-3], 10, 64)
		if err != nil {
			return ProcStat{}, errors.Errorf("%w: stat field %d: %v", ErrMalformed, f.idx, err)
		}
		*f.dst = v
	}
	return st, nil
}

// ParseBootTime returns the btime line of /proc/stat, in seconds since
// the epoch.
func ParseBootTime(data []byte) (uint64, errors.E) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "btime "); ok {
			bt, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0, errors.Errorf("%w: btime: %v", ErrMalformed, err)
			}
			return bt, nil
		}
	}
	return 0, errors.Errorf("%w: no btime in /proc/stat", ErrMalformed)
}

// Release is the numeric prefix of a kernel release string.
type Release struct {
	Major, Minor, Patch uint32
}

// ParseRelease reads "5.15.0-91-generic" as 5.15.0. Missing components
// are zero.
func ParseRelease(s string) Release {
	var out [3]uint32
	for i, part := range strings.SplitN(s, ".", 3) {
		end := 0
		for end < len(part) && part[end] >= '0' && part[end] <= '9' {
			end++
		}
		v, _ := strconv.ParseUint(part[:end], 10, 32)
		out[i] = uint32(v)
		if end < len(part) {
			break
		}
	}
	return Release{Major: out[0], Minor: out[1], Patch: out[2]}
}
