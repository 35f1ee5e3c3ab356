package cpu

import (
	"encoding/binary"

	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

// Regsets holds the raw PTRACE_GETREGSET payloads of one thread. FP and
// FPX are empty when the kernel refused them.
type Regsets struct {
	GP  []byte // NT_PRSTATUS
	FP  []byte // NT_PRFPREG, or NT_ARM_VFP on arm
	FPX []byte // NT_PRXFPREG, x86 only
}

// Sizes of the kernel regsets.
const (
	gpSizeX86    = 17 * 4
	gpSizeAMD64  = 27 * 8
	gpSizeARM    = 18 * 4
	gpSizeARM64  = 34 * 8
	gpSizeMIPS   = 45 * 4
	gpSizeMIPS64 = 45 * 8

	fpSizeX86   = 108
	fpxSizeX86  = 512
	fpSizeAMD64 = 512
	fpSizeARM   = 32*8 + 4
	fpSizeARM64 = 32*16 + 16
	fpSizeMIPS  = 32*8 + 8
)

func gpSize(a Arch) int {
	switch a {
	case X86:
		return gpSizeX86
	case AMD64:
		return gpSizeAMD64
	case ARM:
		return gpSizeARM
	case ARM64:
		return gpSizeARM64
	case MIPS:
		return gpSizeMIPS
	case MIPS64:
		return gpSizeMIPS64
	}
	return 0
}

// FromRegsets converts raw regsets, encoded in the target's byte order,
// into a context record. Only GP is required.
func FromRegsets(arch Arch, order binary.ByteOrder, rs Regsets) (*Context, errors.E) {
	need := gpSize(arch)
	if need == 0 {
		return nil, errors.Errorf("%w: %s", ErrUnsupportedArch, arch)
	}
	if len(rs.GP) < need {
		return nil, errors.Errorf("%s general purpose regset is %d bytes, want %d", arch, len(rs.GP), need)
	}
	switch arch {
	case X86:
		return &Context{Arch: arch, X86: convertX86(order, rs)}, nil
	case AMD64:
		return &Context{Arch: arch, AMD64: convertAMD64(order, rs)}, nil
	case ARM:
		return &Context{Arch: arch, ARM: convertARM(order, rs)}, nil
	case ARM64:
		return &Context{Arch: arch, ARM64: convertARM64(order, rs)}, nil
	default:
		return &Context{Arch: arch, MIPS: convertMIPS(arch, order, rs)}, nil
	}
}

func words32(order binary.ByteOrder, b []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = order.Uint32(b[4*i:])
	}
	return out
}

func words64(order binary.ByteOrder, b []byte, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = order.Uint64(b[8*i:])
	}
	return out
}

// i386 user_regs_struct order.
const (
	x86EBX = iota
	x86ECX
	x86EDX
	x86ESI
	x86EDI
	x86EBP
	x86EAX
	x86DS
	x86ES
	x86FS
	x86GS
	x86OrigEAX
	x86EIP
	x86CS
	x86EFLAGS
	x86ESP
	x86SS
)

func convertX86(order binary.ByteOrder, rs Regsets) *format.ContextX86 {
	r := words32(order, rs.GP, 17)
	c := &format.ContextX86{
		ContextFlags: format.ContextX86Full,
		Gs:           r[x86GS] & 0xffff,
		Fs:           r[x86FS] & 0xffff,
		Es:           r[x86ES] & 0xffff,
		Ds:           r[x86DS] & 0xffff,
		Edi:          r[x86EDI],
		Esi:          r[x86ESI],
		Ebx:          r[x86EBX],
		Edx:          r[x86EDX],
		Ecx:          r[x86ECX],
		Eax:          r[x86EAX],
		Ebp:          r[x86EBP],
		Eip:          r[x86EIP],
		Cs:           r[x86CS] & 0xffff,
		EFlags:       r[x86EFLAGS],
		Esp:          r[x86ESP],
		Ss:           r[x86SS] & 0xffff,
	}
	if len(rs.FP) >= fpSizeX86 {
		// cwd swd twd fip fcs foo fos, then 80 bytes of st registers
		f := words32(order, rs.FP, 7)
		c.FloatSave = format.FloatingSaveAreaX86{
			ControlWord:   f[0],
			StatusWord:    f[1],
			TagWord:       f[2],
			ErrorOffset:   f[3],
			ErrorSelector: f[4],
			DataOffset:    f[5],
			DataSelector:  f[6],
		}
		copy(c.FloatSave.RegisterArea[:], rs.FP[28:108])
		c.ContextFlags |= format.ContextX86FloatingPt
	}
	if len(rs.FPX) >= fpxSizeX86 {
		copy(c.ExtendedRegisters[:], rs.FPX[:fpxSizeX86])
		c.ContextFlags |= format.ContextX86Extended
	}
	return c
}

// x86_64 user_regs_struct order.
const (
	amd64R15 = iota
	amd64R14
	amd64R13
	amd64R12
	amd64RBP
	amd64RBX
	amd64R11
	amd64R10
	amd64R9
	amd64R8
	amd64RAX
	amd64RCX
	amd64RDX
	amd64RSI
	amd64RDI
	amd64OrigRAX
	amd64RIP
	amd64CS
	amd64EFLAGS
	amd64RSP
	amd64SS
	amd64FSBase
	amd64GSBase
	amd64DS
	amd64ES
	amd64FS
	amd64GS
)

func convertAMD64(order binary.ByteOrder, rs Regsets) *format.ContextAMD64 {
	r := words64(order, rs.GP, 27)
	c := &format.ContextAMD64{
		ContextFlags: format.ContextAMD64Control | format.ContextAMD64Integer | format.ContextAMD64Segments,
		Cs:           uint16(r[amd64CS]),
		Ds:           uint16(r[amd64DS]),
		Es:           uint16(r[amd64ES]),
		Fs:           uint16(r[amd64FS]),
		Gs:           uint16(r[amd64GS]),
		Ss:           uint16(r[amd64SS]),
		EFlags:       uint32(r[amd64EFLAGS]),
		Rax:          r[amd64RAX],
		Rcx:          r[amd64RCX],
		Rdx:          r[amd64RDX],
		Rbx:          r[amd64RBX],
		Rsp:          r[amd64RSP],
		Rbp:          r[amd64RBP],
		Rsi:          r[amd64RSI],
		Rdi:          r[amd64RDI],
		R8:           r[amd64R8],
		R9:           r[amd64R9],
		R10:          r[amd64R10],
		R11:          r[amd64R11],
		R12:          r[amd64R12],
		R13:          r[amd64R13],
		R14:          r[amd64R14],
		R15:          r[amd64R15],
		Rip:          r[amd64RIP],
	}
	if len(rs.FP) >= fpSizeAMD64 {
		// user_fpregs_struct: cwd swd ftw fop (u16), rip rdp (u64),
		// mxcsr mxcr_mask (u32), st_space at 32, xmm_space at 160.
		fp := rs.FP
		s := &c.FltSave
		s.ControlWord = order.Uint16(fp[0:])
		s.StatusWord = order.Uint16(fp[2:])
		s.TagWord = uint8(order.Uint16(fp[4:]))
		s.ErrorOpcode = order.Uint16(fp[6:])
		s.ErrorOffset = uint32(order.Uint64(fp[8:]))
		s.DataOffset = uint32(order.Uint64(fp[16:]))
		s.MxCsr = order.Uint32(fp[24:])
		s.MxCsrMask = order.Uint32(fp[28:])
		for i := range s.FloatRegisters {
			s.FloatRegisters[i] = uint128(order, fp[32+16*i:])
		}
		for i := range s.XMMRegisters {
			s.XMMRegisters[i] = uint128(order, fp[160+16*i:])
		}
		c.MxCsr = s.MxCsr
		c.ContextFlags |= format.ContextAMD64FloatPt
	}
	return c
}

func uint128(order binary.ByteOrder, b []byte) format.Uint128 {
	return format.Uint128{Low: order.Uint64(b), High: order.Uint64(b[8:])}
}

func convertARM(order binary.ByteOrder, rs Regsets) *format.ContextARM {
	// uregs[18]: r0-r15, cpsr, orig_r0
	r := words32(order, rs.GP, 18)
	c := &format.ContextARM{ContextFlags: format.ContextARMInteger, Cpsr: r[16]}
	copy(c.Iregs[:], r[:16])
	if len(rs.FP) >= fpSizeARM {
		copy(c.FloatSave.Regs[:], words64(order, rs.FP, 32))
		c.FloatSave.Fpscr = uint64(order.Uint32(rs.FP[256:]))
		c.ContextFlags |= format.ContextARMFloatPt
	}
	return c
}

func convertARM64(order binary.ByteOrder, rs Regsets) *format.ContextARM64 {
	// regs[31], sp, pc, pstate
	r := words64(order, rs.GP, 34)
	c := &format.ContextARM64{
		ContextFlags: format.ContextARM64Control | format.ContextARM64Integer,
		Cpsr:         uint32(r[33]),
		Sp:           r[31],
		Pc:           r[32],
	}
	copy(c.Iregs[:], r[:31])
	if len(rs.FP) >= fpSizeARM64 {
		for i := range c.FloatRegs {
			c.FloatRegs[i] = uint128(order, rs.FP[16*i:])
		}
		c.Fpsr = order.Uint32(rs.FP[512:])
		c.Fpcr = order.Uint32(rs.FP[516:])
		c.ContextFlags |= format.ContextARM64FloatPt
	}
	return c
}

// Offsets into the MIPS elf_gregset. The 32-bit ABI starts with six
// padding words.
type mipsLayout struct {
	r0, lo, hi, epc, badVAddr, status, cause int
}

var (
	mips32Layout = mipsLayout{r0: 6, lo: 38, hi: 39, epc: 40, badVAddr: 41, status: 42, cause: 43}
	mips64Layout = mipsLayout{r0: 0, lo: 32, hi: 33, epc: 34, badVAddr: 35, status: 36, cause: 37}
)

func convertMIPS(arch Arch, order binary.ByteOrder, rs Regsets) *format.ContextMIPS {
	var r []uint64
	l := mips64Layout
	flags := uint32(format.ContextFlagsMIPS64)
	if arch == MIPS {
		l = mips32Layout
		flags = format.ContextFlagsMIPS
		for _, w := range words32(order, rs.GP, 45) {
			r = append(r, uint64(w))
		}
	} else {
		r = words64(order, rs.GP, 45)
	}
	c := &format.ContextMIPS{
		ContextFlags: flags | format.ContextMIPSInteger,
		Mdlo:         r[l.lo],
		Mdhi:         r[l.hi],
		Epc:          r[l.epc],
		BadVAddr:     r[l.badVAddr],
		Status:       uint32(r[l.status]),
		Cause:        uint32(r[l.cause]),
	}
	copy(c.Iregs[:], r[l.r0:l.r0+32])
	if len(rs.FP) >= fpSizeMIPS {
		copy(c.FloatSave.Regs[:], words64(order, rs.FP, 32))
		c.FloatSave.Fpcsr = order.Uint32(rs.FP[256:])
		c.FloatSave.Fir = order.Uint32(rs.FP[260:])
		c.ContextFlags |= format.ContextMIPSFloatPt
	}
	return c
}
