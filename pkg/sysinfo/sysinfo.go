package sysinfo

import (
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/format"
)

// System is the system info record plus its CSD version string, which
// the record references by RVA.
type System struct {
	Info       format.SystemInfo
	CSDVersion string
	CPUInfo    CPUInfo
}

// Collect builds the system info record of the host. Problems reading
// individual sources are returned alongside a record that lacks those
// fields.
func Collect(h Host, arch cpu.Arch) (*System, []error) {
	var problems []error
	s := &System{}
	s.Info.ProcessorArchitecture = arch.ProcessorArchitecture()
	s.Info.PlatformID = format.PlatformLinux

	if data, err := h.ReadFile("/proc/cpuinfo"); err != nil {
		problems = append(problems, errors.Errorf("cpuinfo: %w", err))
	} else {
		s.CPUInfo = ParseCPUInfo(data)
	}
	ci := s.CPUInfo

	n := 0
	if data, err := h.ReadFile("/sys/devices/system/cpu/present"); err == nil {
		n = CountCPUs(string(data))
	}
	if n == 0 {
		n = ci.Processors
	}
	if n > 255 {
		n = 255
	}
	s.Info.NumberOfProcessors = uint8(n)

	switch arch {
	case cpu.X86, cpu.AMD64:
		s.Info.ProcessorLevel = uint16(ci.Family)
		s.Info.ProcessorRevision = uint16(ci.Model<<8 | ci.Stepping)
		s.Info.CPU = format.X86CPUInformation(ci.X86Vendor(), ci.X86Version(), ci.X86Features(), 0)
	case cpu.ARM, cpu.ARM64:
		s.Info.ProcessorLevel = uint16(ci.Architecture)
		s.Info.ProcessorRevision = uint16(ci.Variant<<8 | ci.Revision)
		// cpuid and elf_hwcaps overlay the first feature word.
		s.Info.CPU = format.OtherCPUInformation([2]uint64{uint64(ci.ARMCPUID()) | uint64(ci.ARMHWCaps())<<32, 0})
	}

	u, err := h.Uname()
	if err != nil {
		problems = append(problems, errors.Errorf("uname: %w", err))
		return s, problems
	}
	rel := ParseRelease(u.Release)
	s.Info.MajorVersion = rel.Major
	s.Info.MinorVersion = rel.Minor
	s.Info.BuildNumber = rel.Patch
	s.CSDVersion = strings.Join([]string{u.Sysname, u.Release, u.Version, u.Machine}, " ")
	return s, problems
}

// Times are process times in the units of the misc info record: seconds
// since the epoch for Create, seconds of CPU time for User and Kernel.
type Times struct {
	Create uint32
	User   uint32
	Kernel uint32
}

func ProcessTimes(h Host, pid int) (Times, errors.E) {
	data, err := h.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return Times{}, errors.WithStack(err)
	}
	st, e := ParseStat(data)
	if e != nil {
		return Times{}, e
	}
	data, err = h.ReadFile("/proc/stat")
	if err != nil {
		return Times{}, errors.WithStack(err)
	}
	btime, e := ParseBootTime(data)
	if e != nil {
		return Times{}, e
	}
	return Times{
		Create: uint32(btime + st.StartTime/TicksPerSecond),
		User:   uint32(st.UTime / TicksPerSecond),
		Kernel: uint32(st.STime / TicksPerSecond),
	}, nil
}
