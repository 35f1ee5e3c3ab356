package cpu

import (
	"fmt"

	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/format"
)

var ErrUnsupportedArch = errors.New("unsupported architecture")

// Context is a register snapshot of one thread. Exactly one of the
// layout pointers is set, the one matching Arch.
type Context struct {
	Arch  Arch
	X86   *format.ContextX86
	AMD64 *format.ContextAMD64
	ARM   *format.ContextARM
	ARM64 *format.ContextARM64
	MIPS  *format.ContextMIPS
}

func (c *Context) record() any {
	switch c.Arch {
	case X86:
		return c.X86
	case AMD64:
		return c.AMD64
	case ARM:
		return c.ARM
	case ARM64:
		return c.ARM64
	case MIPS, MIPS64:
		return c.MIPS
	}
	return nil
}

// IP returns the instruction pointer.
func (c *Context) IP() uint64 {
	switch c.Arch {
	case X86:
		return uint64(c.X86.Eip)
	case AMD64:
		return c.AMD64.Rip
	case ARM:
		return uint64(c.ARM.Iregs[format.ARMRegPC])
	case ARM64:
		return c.ARM64.Pc
	case MIPS, MIPS64:
		return c.MIPS.Epc
	}
	return 0
}

// SP returns the stack pointer.
func (c *Context) SP() uint64 {
	switch c.Arch {
	case X86:
		return uint64(c.X86.Esp)
	case AMD64:
		return c.AMD64.Rsp
	case ARM:
		return uint64(c.ARM.Iregs[format.ARMRegSP])
	case ARM64:
		return c.ARM64.Sp
	case MIPS, MIPS64:
		return c.MIPS.Iregs[format.MIPSRegSP]
	}
	return 0
}

// FP returns the frame pointer.
func (c *Context) FP() uint64 {
	switch c.Arch {
	case X86:
		return uint64(c.X86.Ebp)
	case AMD64:
		return c.AMD64.Rbp
	case ARM:
		return uint64(c.ARM.Iregs[format.ARMRegFP])
	case ARM64:
		return c.ARM64.Iregs[format.ARM64RegFP]
	case MIPS, MIPS64:
		return c.MIPS.Iregs[format.MIPSRegFP]
	}
	return 0
}

func (c *Context) Flags() uint32 {
	switch c.Arch {
	case X86:
		return c.X86.ContextFlags
	case AMD64:
		return c.AMD64.ContextFlags
	case ARM:
		return c.ARM.ContextFlags
	case ARM64:
		return c.ARM64.ContextFlags
	case MIPS, MIPS64:
		return c.MIPS.ContextFlags
	}
	return 0
}

// HasFloatingPoint reports whether the floating point bank was captured.
func (c *Context) HasFloatingPoint() bool {
	f := c.Flags()
	switch c.Arch {
	case X86:
		return f&format.ContextX86FloatingPt == format.ContextX86FloatingPt
	case AMD64:
		return f&format.ContextAMD64FloatPt == format.ContextAMD64FloatPt
	case ARM:
		return f&format.ContextARMFloatPt == format.ContextARMFloatPt
	case ARM64:
		return f&format.ContextARM64FloatPt == format.ContextARM64FloatPt
	case MIPS, MIPS64:
		return f&format.ContextMIPSFloatPt != 0
	}
	return false
}

// Size is the encoded size of the context record.
func (c *Context) Size() int {
	return c.Arch.ContextSize()
}

// Bytes encodes the context record.
func (c *Context) Bytes() []byte {
	r := c.record()
	if r == nil {
		return nil
	}
	return format.Marshal(r)
}

// FromBytes decodes a context record of arch.
func FromBytes(arch Arch, raw []byte) (*Context, errors.E) {
	if arch.ContextSize() == 0 {
		return nil, errors.Errorf("%w: %s", ErrUnsupportedArch, arch)
	}
	if len(raw) < arch.ContextSize() {
		return nil, errors.Errorf("%s context needs %d bytes, got %d", arch, arch.ContextSize(), len(raw))
	}
	c := &Context{Arch: arch}
	switch arch {
	case X86:
		c.X86 = new(format.ContextX86)
	case AMD64:
		c.AMD64 = new(format.ContextAMD64)
	case ARM:
		c.ARM = new(format.ContextARM)
	case ARM64:
		c.ARM64 = new(format.ContextARM64)
	case MIPS, MIPS64:
		c.MIPS = new(format.ContextMIPS)
	}
	if err := format.Unmarshal(raw, c.record()); err != nil {
		return nil, errors.WithStack(err)
	}
	return c, nil
}

type Register struct {
	Name  string
	Value uint64
}

// Registers lists the general purpose bank in the order a debugger shows
// it.
func (c *Context) Registers() []Register {
	var regs []Register
	add := func(name string, v uint64) {
		regs = append(regs, Register{Name: name, Value: v})
	}
	switch c.Arch {
	case X86:
		r := c.X86
		for _, x := range []struct {
			n string
			v uint32
		}{
			{"eax", r.Eax}, {"ebx", r.Ebx}, {"ecx", r.Ecx}, {"edx", r.Edx},
			{"esi", r.Esi}, {"edi", r.Edi}, {"ebp", r.Ebp}, {"esp", r.Esp},
			{"eip", r.Eip}, {"eflags", r.EFlags},
			{"cs", r.Cs}, {"ds", r.Ds}, {"es", r.Es}, {"fs", r.Fs}, {"gs", r.Gs}, {"ss", r.Ss},
		} {
			add(x.n, uint64(x.v))
		}
	case AMD64:
		r := c.AMD64
		for _, x := range []struct {
			n string
			v uint64
		}{
			{"rax", r.Rax}, {"rbx", r.Rbx}, {"rcx", r.Rcx}, {"rdx", r.Rdx},
			{"rsi", r.Rsi}, {"rdi", r.Rdi}, {"rbp", r.Rbp}, {"rsp", r.Rsp},
			{"r8", r.R8}, {"r9", r.R9}, {"r10", r.R10}, {"r11", r.R11},
			{"r12", r.R12}, {"r13", r.R13}, {"r14", r.R14}, {"r15", r.R15},
			{"rip", r.Rip}, {"eflags", uint64(r.EFlags)},
			{"cs", uint64(r.Cs)}, {"ss", uint64(r.Ss)},
		} {
			add(x.n, x.v)
		}
	case ARM:
		for i, v := range c.ARM.Iregs {
			add(armRegName(i), uint64(v))
		}
		add("cpsr", uint64(c.ARM.Cpsr))
	case ARM64:
		for i, v := range c.ARM64.Iregs {
			switch i {
			case format.ARM64RegFP:
				add("fp", v)
			case format.ARM64RegLR:
				add("lr", v)
			default:
				add(fmt.Sprintf("x%d", i), v)
			}
		}
		add("sp", c.ARM64.Sp)
		add("pc", c.ARM64.Pc)
		add("cpsr", uint64(c.ARM64.Cpsr))
	case MIPS, MIPS64:
		for i, v := range c.MIPS.Iregs {
			add(mipsRegNames[i], v)
		}
		add("hi", c.MIPS.Mdhi)
		add("lo", c.MIPS.Mdlo)
		add("epc", c.MIPS.Epc)
		add("badvaddr", c.MIPS.BadVAddr)
		add("status", uint64(c.MIPS.Status))
		add("cause", uint64(c.MIPS.Cause))
	}
	return regs
}

func armRegName(i int) string {
	switch i {
	case format.ARMRegFP:
		return "fp"
	case format.ARMRegSP:
		return "sp"
	case format.ARMRegLR:
		return "lr"
	case format.ARMRegPC:
		return "pc"
	}
	return fmt.Sprintf("r%d", i)
}

var mipsRegNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}
