// Package cpu captures thread register state and converts it into the
// per-architecture context records of pkg/format.
package cpu

import (
	"runtime"

	"github.com/monsterxx03/godump/pkg/format"
)

type Arch int

const (
	Unknown Arch = iota
	X86
	AMD64
	ARM
	ARM64
	MIPS
	MIPS64
)

var archNames = map[Arch]string{
	Unknown: "unknown",
	X86:     "x86",
	AMD64:   "amd64",
	ARM:     "arm",
	ARM64:   "arm64",
	MIPS:    "mips",
	MIPS64:  "mips64",
}

func (a Arch) String() string {
	return archNames[a]
}

var goarchs = map[string]Arch{
	"386":      X86,
	"amd64":    AMD64,
	"arm":      ARM,
	"arm64":    ARM64,
	"mips":     MIPS,
	"mipsle":   MIPS,
	"mips64":   MIPS64,
	"mips64le": MIPS64,
}

// HostArch is the architecture the dumper runs on. Targets are always
// dumped with the host's layout.
func HostArch() Arch {
	return FromGOARCH(runtime.GOARCH)
}

func FromGOARCH(goarch string) Arch {
	return goarchs[goarch]
}

// PtrSize is the size of a target pointer in bytes.
func (a Arch) PtrSize() int {
	switch a {
	case X86, ARM, MIPS:
		return 4
	case AMD64, ARM64, MIPS64:
		return 8
	}
	return 0
}

// ProcessorArchitecture is the system info architecture id of a.
func (a Arch) ProcessorArchitecture() uint16 {
	switch a {
	case X86:
		return format.ArchX86
	case AMD64:
		return format.ArchAMD64
	case ARM:
		return format.ArchARM
	case ARM64:
		return format.ArchARM64
	case MIPS:
		return format.ArchMIPS
	case MIPS64:
		return format.ArchMIPS64
	}
	return 0xffff
}

// FromProcessorArchitecture maps a system info architecture id back to
// an Arch.
func FromProcessorArchitecture(id uint16) Arch {
	for _, a := range []Arch{X86, AMD64, ARM, ARM64, MIPS, MIPS64} {
		if a.ProcessorArchitecture() == id {
			return a
		}
	}
	return Unknown
}

// ContextSize is the encoded size of a's context record.
func (a Arch) ContextSize() int {
	switch a {
	case X86:
		return format.ContextX86Size
	case AMD64:
		return format.ContextAMD64Size
	case ARM:
		return format.ContextARMSize
	case ARM64:
		return format.ContextARM64Size
	case MIPS, MIPS64:
		return format.ContextMIPSSize
	}
	return 0
}
