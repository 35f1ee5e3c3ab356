package cpu

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/monsterxx03/godump/pkg/format"
)

func put32(order binary.ByteOrder, vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		order.PutUint32(b[4*i:], v)
	}
	return b
}

func put64(order binary.ByteOrder, vals ...uint64) []byte {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		order.PutUint64(b[8*i:], v)
	}
	return b
}

func seq64(n int, base uint64) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = base + uint64(i)
	}
	return out
}

func seq32(n int, base uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = base + uint32(i)
	}
	return out
}

func TestFromGOARCH(t *testing.T) {
	tests := []struct {
		goarch string
		want   Arch
		ptr    int
		id     uint16
	}{
		{"386", X86, 4, format.ArchX86},
		{"amd64", AMD64, 8, format.ArchAMD64},
		{"arm", ARM, 4, format.ArchARM},
		{"arm64", ARM64, 8, format.ArchARM64},
		{"mipsle", MIPS, 4, format.ArchMIPS},
		{"mips64", MIPS64, 8, format.ArchMIPS64},
	}
	for _, tt := range tests {
		t.Run(tt.goarch, func(t *testing.T) {
			a := FromGOARCH(tt.goarch)
			if a != tt.want {
				t.Fatalf("FromGOARCH = %s, want %s", a, tt.want)
			}
			if a.PtrSize() != tt.ptr {
				t.Errorf("PtrSize = %d", a.PtrSize())
			}
			if a.ProcessorArchitecture() != tt.id {
				t.Errorf("ProcessorArchitecture = %#x", a.ProcessorArchitecture())
			}
			if FromProcessorArchitecture(tt.id) != a {
				t.Errorf("FromProcessorArchitecture(%#x) = %s", tt.id, FromProcessorArchitecture(tt.id))
			}
		})
	}
	if FromGOARCH("riscv64") != Unknown {
		t.Error("riscv64 should be unknown")
	}
}

func TestAMD64(t *testing.T) {
	le := binary.LittleEndian
	gp := seq64(27, 100)
	gp[amd64RIP] = 0x401000
	gp[amd64RSP] = 0x7ffc0000
	gp[amd64RBP] = 0x7ffc0040
	gp[amd64CS] = 0x33
	gp[amd64EFLAGS] = 0x246
	fp := make([]byte, fpSizeAMD64)
	le.PutUint16(fp[0:], 0x37f)
	le.PutUint32(fp[24:], 0x1f80)
	le.PutUint64(fp[160:], 0xdeadbeef) // xmm0 low

	tests := []struct {
		name  string
		rs    Regsets
		flags uint32
		fp    bool
	}{
		{"with fp", Regsets{GP: put64(le, gp...), FP: fp}, 0x10000f, true},
		{"integer only", Regsets{GP: put64(le, gp...)}, 0x100007, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromRegsets(AMD64, le, tt.rs)
			if err != nil {
				t.Fatal(err)
			}
			if c.Flags() != tt.flags {
				t.Errorf("flags = %#x, want %#x", c.Flags(), tt.flags)
			}
			if c.HasFloatingPoint() != tt.fp {
				t.Errorf("HasFloatingPoint = %v", c.HasFloatingPoint())
			}
			if c.IP() != 0x401000 || c.SP() != 0x7ffc0000 || c.FP() != 0x7ffc0040 {
				t.Errorf("ip/sp/fp = %#x %#x %#x", c.IP(), c.SP(), c.FP())
			}
			if c.AMD64.Rax != gp[amd64RAX] || c.AMD64.R15 != gp[amd64R15] || c.AMD64.Cs != 0x33 {
				t.Errorf("registers misplaced: %+v", c.AMD64)
			}
			if len(c.Bytes()) != format.ContextAMD64Size {
				t.Errorf("encoded size = %d", len(c.Bytes()))
			}
			if tt.fp {
				if c.AMD64.FltSave.ControlWord != 0x37f || c.AMD64.MxCsr != 0x1f80 {
					t.Errorf("fp header = %+v", c.AMD64.FltSave)
				}
				if c.AMD64.FltSave.XMMRegisters[0].Low != 0xdeadbeef {
					t.Errorf("xmm0 = %+v", c.AMD64.FltSave.XMMRegisters[0])
				}
			}
		})
	}
}

func TestX86(t *testing.T) {
	le := binary.LittleEndian
	gp := seq32(17, 1)
	gp[x86EIP] = 0x8048000
	gp[x86ESP] = 0xbffff000
	fp := make([]byte, fpSizeX86)
	le.PutUint32(fp, 0x37f)
	fp[28] = 0xaa
	c, err := FromRegsets(X86, le, Regsets{GP: put32(le, gp...), FP: fp, FPX: make([]byte, fpxSizeX86)})
	if err != nil {
		t.Fatal(err)
	}
	if c.Flags() != 0x1002f {
		t.Errorf("flags = %#x", c.Flags())
	}
	if c.IP() != 0x8048000 || c.SP() != 0xbffff000 {
		t.Errorf("ip/sp = %#x %#x", c.IP(), c.SP())
	}
	if c.X86.Eax != gp[x86EAX] || c.X86.Ebx != gp[x86EBX] {
		t.Errorf("eax/ebx = %d %d", c.X86.Eax, c.X86.Ebx)
	}
	if c.X86.FloatSave.ControlWord != 0x37f || c.X86.FloatSave.RegisterArea[0] != 0xaa {
		t.Errorf("float save = %+v", c.X86.FloatSave)
	}
	if len(c.Bytes()) != format.ContextX86Size {
		t.Errorf("encoded size = %d", len(c.Bytes()))
	}
}

func TestARM(t *testing.T) {
	le := binary.LittleEndian
	gp := seq32(18, 0)
	gp[15] = 0x10000
	gp[13] = 0x20000
	gp[16] = 0x60000010
	fp := put64(le, seq64(32, 1)...)
	fp = append(fp, put32(le, 0x3000000)...)
	c, err := FromRegsets(ARM, le, Regsets{GP: put32(le, gp...), FP: fp})
	if err != nil {
		t.Fatal(err)
	}
	if c.Flags() != 0x40000006 {
		t.Errorf("flags = %#x", c.Flags())
	}
	if c.IP() != 0x10000 || c.SP() != 0x20000 || c.ARM.Cpsr != 0x60000010 {
		t.Errorf("pc/sp/cpsr = %#x %#x %#x", c.IP(), c.SP(), c.ARM.Cpsr)
	}
	if c.ARM.FloatSave.Regs[31] != 32 || c.ARM.FloatSave.Fpscr != 0x3000000 {
		t.Errorf("vfp = %+v", c.ARM.FloatSave)
	}
}

func TestARM64(t *testing.T) {
	le := binary.LittleEndian
	gp := seq64(34, 0)
	gp[31] = 0xfffff000 // sp
	gp[32] = 0x400000   // pc
	gp[33] = 0x80000000 // pstate
	fp := make([]byte, fpSizeARM64)
	le.PutUint64(fp[8:], 7) // v0 high
	le.PutUint32(fp[512:], 0x10)
	le.PutUint32(fp[516:], 0x20)
	c, err := FromRegsets(ARM64, le, Regsets{GP: put64(le, gp...), FP: fp})
	if err != nil {
		t.Fatal(err)
	}
	if c.Flags() != 0x400007 {
		t.Errorf("flags = %#x", c.Flags())
	}
	if c.IP() != 0x400000 || c.SP() != 0xfffff000 || c.FP() != 29 {
		t.Errorf("pc/sp/fp = %#x %#x %#x", c.IP(), c.SP(), c.FP())
	}
	if c.ARM64.FloatRegs[0].High != 7 || c.ARM64.Fpsr != 0x10 || c.ARM64.Fpcr != 0x20 {
		t.Errorf("fpsimd = %+v %#x %#x", c.ARM64.FloatRegs[0], c.ARM64.Fpsr, c.ARM64.Fpcr)
	}
	if len(c.Bytes()) != format.ContextARM64Size {
		t.Errorf("encoded size = %d", len(c.Bytes()))
	}
}

func TestMIPS(t *testing.T) {
	tests := []struct {
		name  string
		arch  Arch
		order binary.ByteOrder
		flags uint32
		gp    func() []byte
	}{
		{"mips32 big endian", MIPS, binary.BigEndian, 0x40006, func() []byte {
			w := seq32(45, 0)
			w[6+29] = 0x7fff0000
			w[40] = 0x400100
			w[38] = 11
			return put32(binary.BigEndian, w...)
		}},
		{"mips64 little endian", MIPS64, binary.LittleEndian, 0x80006, func() []byte {
			w := seq64(45, 0)
			w[29] = 0x7fff0000
			w[34] = 0x400100
			w[32] = 11
			return put64(binary.LittleEndian, w...)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := put64(tt.order, seq64(32, 0)...)
			fp = append(fp, put32(tt.order, 1, 2)...)
			c, err := FromRegsets(tt.arch, tt.order, Regsets{GP: tt.gp(), FP: fp})
			if err != nil {
				t.Fatal(err)
			}
			if c.Flags() != tt.flags {
				t.Errorf("flags = %#x, want %#x", c.Flags(), tt.flags)
			}
			if c.SP() != 0x7fff0000 || c.IP() != 0x400100 || c.MIPS.Mdlo != 11 {
				t.Errorf("sp/epc/lo = %#x %#x %d", c.SP(), c.IP(), c.MIPS.Mdlo)
			}
			if c.MIPS.FloatSave.Fpcsr != 1 || c.MIPS.FloatSave.Fir != 2 {
				t.Errorf("fcsr/fir = %d %d", c.MIPS.FloatSave.Fpcsr, c.MIPS.FloatSave.Fir)
			}
		})
	}
}

func TestFromRegsetsErrors(t *testing.T) {
	if _, err := FromRegsets(AMD64, binary.LittleEndian, Regsets{GP: make([]byte, 10)}); err == nil {
		t.Error("short regset accepted")
	}
	if _, err := FromRegsets(Unknown, binary.LittleEndian, Regsets{}); !errors.Is(err, ErrUnsupportedArch) {
		t.Errorf("unknown arch err = %v", err)
	}
}

func TestFromBytes(t *testing.T) {
	le := binary.LittleEndian
	gp := seq64(34, 0)
	gp[32] = 0x1234
	orig, err := FromRegsets(ARM64, le, Regsets{GP: put64(le, gp...)})
	if err != nil {
		t.Fatal(err)
	}
	got, err := FromBytes(ARM64, orig.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if *got.ARM64 != *orig.ARM64 {
		t.Error("decoded context differs")
	}
	if _, err := FromBytes(ARM64, orig.Bytes()[:100]); err == nil {
		t.Error("short context accepted")
	}
}

func TestRegisters(t *testing.T) {
	c := &Context{Arch: AMD64, AMD64: &format.ContextAMD64{Rip: 5}}
	var rip uint64
	for _, r := range c.Registers() {
		if r.Name == "rip" {
			rip = r.Value
		}
	}
	if rip != 5 {
		t.Errorf("rip = %d", rip)
	}
	m := &Context{Arch: MIPS, MIPS: &format.ContextMIPS{}}
	if regs := m.Registers(); regs[29].Name != "sp" {
		t.Errorf("mips reg 29 = %s", regs[29].Name)
	}
}
