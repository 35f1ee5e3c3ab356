package format

type Thread struct {
	ThreadID      uint32
	SuspendCount  uint32
	PriorityClass uint32
	Priority      uint32
	Teb           uint64
	Stack         MemoryDescriptor
	ThreadContext Location
}

type VSFixedFileInfo struct {
	Signature        uint32
	StructVersion    uint32
	FileVersionHi    uint32
	FileVersionLo    uint32
	ProductVersionHi uint32
	ProductVersionLo uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateHi       uint32
	FileDateLo       uint32
}

type Module struct {
	BaseOfImage   uint64
	SizeOfImage   uint32
	Checksum      uint32
	TimeDateStamp uint32
	ModuleNameRVA RVA
	VersionInfo   VSFixedFileInfo
	CVRecord      Location
	MiscRecord    Location
	Reserved0     uint64
	Reserved1     uint64
}

type Exception struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uint64
	ExceptionAddress     uint64
	NumberParameters     uint32
	Align                uint32
	ExceptionInformation [15]uint64
}

type ExceptionStreamRecord struct {
	ThreadID        uint32
	Align           uint32
	ExceptionRecord Exception
	ThreadContext   Location
}

// CPUInformation is the 24-byte union at the end of SystemInfo. Use
// X86CPUInformation or OtherCPUInformation to fill it.
type CPUInformation [24]byte

func X86CPUInformation(vendor [3]uint32, version, features, amdExtended uint32) CPUInformation {
	var c CPUInformation
	le.PutUint32(c[0:], vendor[0])
	le.PutUint32(c[4:], vendor[1])
	le.PutUint32(c[8:], vendor[2])
	le.PutUint32(c[12:], version)
	le.PutUint32(c[16:], features)
	le.PutUint32(c[20:], amdExtended)
	return c
}

func OtherCPUInformation(features [2]uint64) CPUInformation {
	var c CPUInformation
	le.PutUint64(c[0:], features[0])
	le.PutUint64(c[8:], features[1])
	return c
}

// VendorID decodes the x86 vendor string, e.g. "GenuineIntel".
func (c CPUInformation) VendorID() string {
	b := make([]byte, 0, 12)
	for _, ch := range c[:12] {
		if ch == 0 {
			break
		}
		b = append(b, ch)
	}
	return string(b)
}

type SystemInfo struct {
	ProcessorArchitecture uint16
	ProcessorLevel        uint16
	ProcessorRevision     uint16
	NumberOfProcessors    uint8
	ProductType           uint8
	MajorVersion          uint32
	MinorVersion          uint32
	BuildNumber           uint32
	PlatformID            uint32
	CSDVersionRVA         RVA
	SuiteMask             uint16
	Reserved2             uint16
	CPU                   CPUInformation
}

type MiscInfo struct {
	SizeOfInfo        uint32
	Flags1            uint32
	ProcessID         uint32
	ProcessCreateTime uint32
	ProcessUserTime   uint32
	ProcessKernelTime uint32
}

type ThreadName struct {
	ThreadID      uint32
	ThreadNameRVA uint64
}

type Debug struct {
	Version  uint32
	Map      RVA
	DSOCount uint32
	Pad      uint32
	Brk      uint64
	LDBase   uint64
	Dynamic  uint64
}

type LinkMap struct {
	Addr uint64
	Name RVA
	Pad  uint32
	LD   uint64
}
