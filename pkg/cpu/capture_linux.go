package cpu

import (
	"encoding/binary"
	"unsafe"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// ELF note types accepted by PTRACE_GETREGSET.
const (
	NT_PRSTATUS = 1
	NT_PRFPREG  = 2
	NT_PRXFPREG = 0x46e62b7f
	NT_ARM_VFP  = 0x400
)

// Capture reads the register sets of a ptrace-stopped thread. It must run
// on the OS thread that attached tid. A missing floating point set is not
// an error; the context then lacks the floating point flag.
func Capture(tid int, arch Arch) (*Context, errors.E) {
	var rs Regsets
	gp, err := getRegset(tid, NT_PRSTATUS, gpSize(arch))
	if err != nil {
		return nil, errors.Errorf("ptrace getregset prstatus: %w", err)
	}
	rs.GP = gp
	switch arch {
	case X86:
		rs.FP, _ = getRegset(tid, NT_PRFPREG, fpSizeX86)
		rs.FPX, _ = getRegset(tid, NT_PRXFPREG, fpxSizeX86)
	case AMD64:
		rs.FP, _ = getRegset(tid, NT_PRFPREG, fpSizeAMD64)
	case ARM:
		rs.FP, _ = getRegset(tid, NT_ARM_VFP, fpSizeARM)
	case ARM64:
		rs.FP, _ = getRegset(tid, NT_PRFPREG, fpSizeARM64)
	case MIPS, MIPS64:
		rs.FP, _ = getRegset(tid, NT_PRFPREG, fpSizeMIPS)
	}
	return FromRegsets(arch, binary.NativeEndian, rs)
}

func getRegset(tid, note, size int) ([]byte, errors.E) {
	if size == 0 {
		return nil, errors.WithStack(ErrUnsupportedArch)
	}
	buf := make([]byte, size)
	iov := unix.Iovec{Base: &buf[0]}
	iov.SetLen(size)
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETREGSET,
		uintptr(tid), uintptr(note), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return nil, errors.WithStack(errno)
	}
	return buf[:iov.Len], nil
}
