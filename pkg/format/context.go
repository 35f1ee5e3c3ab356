package format

// Register layouts of the thread context blobs. Each struct mirrors the
// record downstream tools expect for that architecture.

const (
	ContextX86Size   = 716
	ContextAMD64Size = 1232
	ContextARMSize   = 368
	ContextARM64Size = 912
	ContextMIPSSize  = 600
)

type Uint128 struct {
	Low  uint64
	High uint64
}

type FloatingSaveAreaX86 struct {
	ControlWord   uint32
	StatusWord    uint32
	TagWord       uint32
	ErrorOffset   uint32
	ErrorSelector uint32
	DataOffset    uint32
	DataSelector  uint32
	RegisterArea  [80]byte
	Cr0NpxState   uint32
}

type ContextX86 struct {
	ContextFlags uint32

	Dr0 uint32
	Dr1 uint32
	Dr2 uint32
	Dr3 uint32
	Dr6 uint32
	Dr7 uint32

	FloatSave FloatingSaveAreaX86

	Gs uint32
	Fs uint32
	Es uint32
	Ds uint32

	Edi uint32
	Esi uint32
	Ebx uint32
	Edx uint32
	Ecx uint32
	Eax uint32

	Ebp    uint32
	Eip    uint32
	Cs     uint32
	EFlags uint32
	Esp    uint32
	Ss     uint32

	ExtendedRegisters [512]byte
}

// XMMSaveArea32 is the fxsave image.
type XMMSaveArea32 struct {
	ControlWord    uint16
	StatusWord     uint16
	TagWord        uint8
	Reserved1      uint8
	ErrorOpcode    uint16
	ErrorOffset    uint32
	ErrorSelector  uint16
	Reserved2      uint16
	DataOffset     uint32
	DataSelector   uint16
	Reserved3      uint16
	MxCsr          uint32
	MxCsrMask      uint32
	FloatRegisters [8]Uint128
	XMMRegisters   [16]Uint128
	Reserved4      [96]byte
}

type ContextAMD64 struct {
	P1Home uint64
	P2Home uint64
	P3Home uint64
	P4Home uint64
	P5Home uint64
	P6Home uint64

	ContextFlags uint32
	MxCsr        uint32

	Cs     uint16
	Ds     uint16
	Es     uint16
	Fs     uint16
	Gs     uint16
	Ss     uint16
	EFlags uint32

	Dr0 uint64
	Dr1 uint64
	Dr2 uint64
	Dr3 uint64
	Dr6 uint64
	Dr7 uint64

	Rax uint64
	Rcx uint64
	Rdx uint64
	Rbx uint64
	Rsp uint64
	Rbp uint64
	Rsi uint64
	Rdi uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
	Rip uint64

	FltSave XMMSaveArea32

	VectorRegister [26]Uint128
	VectorControl  uint64

	DebugControl         uint64
	LastBranchToRip      uint64
	LastBranchFromRip    uint64
	LastExceptionToRip   uint64
	LastExceptionFromRip uint64
}

type FloatingSaveAreaARM struct {
	Fpscr uint64
	Regs  [32]uint64
	Extra [8]uint32
}

// ContextARM holds r0-r15 in Iregs; r13 is sp, r14 lr, r15 pc.
type ContextARM struct {
	ContextFlags uint32
	Iregs        [16]uint32
	Cpsr         uint32
	FloatSave    FloatingSaveAreaARM
}

const (
	ARMRegFP = 11
	ARMRegSP = 13
	ARMRegLR = 14
	ARMRegPC = 15
)

// ContextARM64 holds x0-x28, fp (x29) and lr (x30) in Iregs.
type ContextARM64 struct {
	ContextFlags uint32
	Cpsr         uint32
	Iregs        [31]uint64
	Sp           uint64
	Pc           uint64
	FloatRegs    [32]Uint128
	Fpcr         uint32
	Fpsr         uint32
	Bcr          [8]uint32
	Bvr          [8]uint64
	Wcr          [2]uint32
	Wvr          [2]uint64
}

const (
	ARM64RegFP = 29
	ARM64RegLR = 30
)

type FloatingSaveAreaMIPS struct {
	Regs  [32]uint64
	Fpcsr uint32
	Fir   uint32
}

// ContextMIPS serves both the 32 and 64-bit ABIs; 32-bit values are
// zero-extended.
type ContextMIPS struct {
	ContextFlags uint32
	Pad0         uint32
	Iregs        [32]uint64
	Mdhi         uint64
	Mdlo         uint64
	Hi           [3]uint32
	Lo           [3]uint32
	DSPControl   uint32
	Pad1         uint32
	Epc          uint64
	BadVAddr     uint64
	Status       uint32
	Cause        uint32
	FloatSave    FloatingSaveAreaMIPS
}

const (
	MIPSRegGP = 28
	MIPSRegSP = 29
	MIPSRegFP = 30
	MIPSRegRA = 31
)
