// Package format describes the minidump container: the header, the stream
// directory and the fixed-size records each stream is made of.
//
// Every multi-byte integer is little-endian. Structs in this package have
// no implicit padding; their encoded size is binary.Size of the struct and
// field order is the on-disk order. Downstream tools decode this exact
// layout, so any change here is a breaking change.
package format

import (
	"fmt"
)

const (
	Signature = 0x504d444d // 'MDMP'
	Version   = 0xa793

	// CVSignatureELF prefixes the build id in a module's CodeView record.
	CVSignatureELF = 0x4270454c // 'BpEL'

	PlatformLinux = 0x8201

	MiscInfoFlagsProcessID    = 0x1
	MiscInfoFlagsProcessTimes = 0x2
)

const (
	HeaderSize           = 32
	DirectorySize        = 12
	LocationSize         = 8
	MemoryDescriptorSize = 16
	ThreadSize           = 48
	ModuleSize           = 108
	ExceptionStreamSize  = 168
	SystemInfoSize       = 56
	MiscInfoSize         = 24
	ThreadNameSize       = 12
	DebugSize            = 40
	LinkMapSize          = 24
)

// RVA is an offset from the start of the document.
type RVA = uint32

// StreamType identifies a stream in the directory.
type StreamType uint32

const (
	UnusedStream         StreamType = 0
	ThreadListStream     StreamType = 3
	ModuleListStream     StreamType = 4
	MemoryListStream     StreamType = 5
	ExceptionStream      StreamType = 6
	SystemInfoStream     StreamType = 7
	MiscInfoStream       StreamType = 15
	ThreadNameListStream StreamType = 24

	LinuxCPUInfoStream    StreamType = 0x47670003
	LinuxProcStatusStream StreamType = 0x47670004
	LinuxLSBReleaseStream StreamType = 0x47670005
	LinuxCmdLineStream    StreamType = 0x47670006
	LinuxEnvironStream    StreamType = 0x47670007
	LinuxAuxvStream       StreamType = 0x47670008
	LinuxMapsStream       StreamType = 0x47670009
	LinuxDSODebugStream   StreamType = 0x4767000a
)

var streamNames = map[StreamType]string{
	UnusedStream:          "unused",
	ThreadListStream:      "thread_list",
	ModuleListStream:      "module_list",
	MemoryListStream:      "memory_list",
	ExceptionStream:       "exception",
	SystemInfoStream:      "system_info",
	MiscInfoStream:        "misc_info",
	ThreadNameListStream:  "thread_names",
	LinuxCPUInfoStream:    "linux_cpu_info",
	LinuxProcStatusStream: "linux_proc_status",
	LinuxLSBReleaseStream: "linux_lsb_release",
	LinuxCmdLineStream:    "linux_cmd_line",
	LinuxEnvironStream:    "linux_environ",
	LinuxAuxvStream:       "linux_auxv",
	LinuxMapsStream:       "linux_maps",
	LinuxDSODebugStream:   "linux_dso_debug",
}

func (t StreamType) String() string {
	if s, ok := streamNames[t]; ok {
		return s
	}
	return fmt.Sprintf("stream(%#x)", uint32(t))
}

// StreamTypeByName is the inverse of StreamType.String for known streams.
func StreamTypeByName(name string) (StreamType, bool) {
	for t, n := range streamNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// ProcessorArchitecture values of SystemInfo.ProcessorArchitecture.
const (
	ArchX86    uint16 = 0
	ArchMIPS   uint16 = 1
	ArchARM    uint16 = 5
	ArchAMD64  uint16 = 9
	ArchARM64  uint16 = 12
	ArchMIPS64 uint16 = 0x8002
)

// Context flags. The low bits select register groups and are only
// meaningful together with an architecture bit.
const (
	ContextFlagsX86      = 0x00010000
	ContextX86Control    = ContextFlagsX86 | 0x01
	ContextX86Integer    = ContextFlagsX86 | 0x02
	ContextX86Segments   = ContextFlagsX86 | 0x04
	ContextX86FloatingPt = ContextFlagsX86 | 0x08
	ContextX86Extended   = ContextFlagsX86 | 0x20
	ContextX86Full       = ContextX86Control | ContextX86Integer | ContextX86Segments
	ContextFlagsAMD64    = 0x00100000
	ContextAMD64Control  = ContextFlagsAMD64 | 0x01
	ContextAMD64Integer  = ContextFlagsAMD64 | 0x02
	ContextAMD64Segments = ContextFlagsAMD64 | 0x04
	ContextAMD64FloatPt  = ContextFlagsAMD64 | 0x08
	ContextAMD64Full     = ContextAMD64Control | ContextAMD64Integer | ContextAMD64FloatPt
	ContextFlagsARM      = 0x40000000
	ContextARMInteger    = ContextFlagsARM | 0x02
	ContextARMFloatPt    = ContextFlagsARM | 0x04
	ContextFlagsARM64    = 0x00400000
	ContextARM64Control  = ContextFlagsARM64 | 0x01
	ContextARM64Integer  = ContextFlagsARM64 | 0x02
	ContextARM64FloatPt  = ContextFlagsARM64 | 0x04
	ContextFlagsMIPS     = 0x00040000
	ContextFlagsMIPS64   = 0x00080000
	ContextMIPSInteger   = 0x02
	ContextMIPSFloatPt   = 0x04
)

type Header struct {
	Signature          uint32
	Version            uint32
	StreamCount        uint32
	StreamDirectoryRVA RVA
	Checksum           uint32
	TimeDateStamp      uint32
	Flags              uint64
}

// Location is the (size, RVA) pair every cross reference uses.
type Location struct {
	DataSize uint32
	RVA      RVA
}

// End is the offset one past the last byte of the location.
func (l Location) End() uint64 {
	return uint64(l.RVA) + uint64(l.DataSize)
}

type Directory struct {
	StreamType StreamType
	Location   Location
}

type MemoryDescriptor struct {
	StartOfMemoryRange uint64
	Memory             Location
}
