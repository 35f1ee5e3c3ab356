package sysinfo

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// CPUInfo is the first processor block of /proc/cpuinfo plus the number
// of processor entries.
type CPUInfo struct {
	Processors int

	// x86
	VendorID string
	Family   int
	Model    int
	Stepping int
	Flags    []string

	// arm
	Architecture int
	Implementer  int
	Variant      int
	Part         int
	Revision     int
	Features     []string
}

func ParseCPUInfo(data []byte) CPUInfo {
	var ci CPUInfo
	seen := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if key == "processor" {
			ci.Processors++
			continue
		}
		// Later processors repeat the same keys.
		if seen[key] {
			continue
		}
		seen[key] = true
		switch key {
		case "vendor_id":
			ci.VendorID = val
		case "cpu family":
			ci.Family = atoi(val)
		case "model":
			ci.Model = atoi(val)
		case "stepping":
			ci.Stepping = atoi(val)
		case "flags":
			ci.Flags = strings.Fields(val)
		case "CPU architecture":
			ci.Architecture = atoi(val)
		case "CPU implementer":
			ci.Implementer = atoi(val)
		case "CPU variant":
			ci.Variant = atoi(val)
		case "CPU part":
			ci.Part = atoi(val)
		case "CPU revision":
			ci.Revision = atoi(val)
		case "Features":
			ci.Features = strings.Fields(val)
		}
	}
	return ci
}

// atoi accepts decimal and 0x-prefixed hex; garbage reads as 0. Old arm
// kernels print "CPU architecture: 7" but some print "AArch64".
func atoi(s string) int {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0
	}
	return int(n)
}

// X86Version rebuilds the CPUID leaf 1 EAX value from family, model and
// stepping.
func (ci CPUInfo) X86Version() uint32 {
	family, model := ci.Family, ci.Model
	var extFamily, extModel int
	if family > 0xf {
		extFamily = family - 0xf
		family = 0xf
	}
	if model > 0xf {
		extModel = model >> 4
		model &= 0xf
	}
	return uint32(ci.Stepping&0xf) | uint32(model)<<4 | uint32(family)<<8 |
		uint32(extModel&0xf)<<16 | uint32(extFamily&0xff)<<20
}

// CPUID leaf 1 EDX bits by their cpuinfo flag names.
var x86EDXFlags = map[string]uint{
	"fpu": 0, "vme": 1, "de": 2, "pse": 3, "tsc": 4, "msr": 5, "pae": 6, "mce": 7,
	"cx8": 8, "apic": 9, "sep": 11, "mtrr": 12, "pge": 13, "mca": 14, "cmov": 15,
	"pat": 16, "pse36": 17, "pn": 18, "clflush": 19, "dts": 21, "acpi": 22, "mmx": 23,
	"fxsr": 24, "sse": 25, "sse2": 26, "ss": 27, "ht": 28, "tm": 29, "ia64": 30, "pbe": 31,
}

func (ci CPUInfo) X86Features() uint32 {
	var edx uint32
	for _, f := range ci.Flags {
		if bit, ok := x86EDXFlags[f]; ok {
			edx |= 1 << bit
		}
	}
	return edx
}

// X86Vendor splits the vendor string into the three CPUID registers.
func (ci CPUInfo) X86Vendor() [3]uint32 {
	var raw [12]byte
	copy(raw[:], ci.VendorID)
	var v [3]uint32
	for i := range v {
		v[i] = uint32(raw[4*i]) | uint32(raw[4*i+1])<<8 | uint32(raw[4*i+2])<<16 | uint32(raw[4*i+3])<<24
	}
	return v
}

// arm HWCAP bits by their cpuinfo feature names.
var armHWCaps = map[string]uint{
	"swp": 0, "half": 1, "thumb": 2, "26bit": 3, "fastmult": 4, "fpa": 5,
	"vfp": 6, "edsp": 7, "java": 8, "iwmmxt": 9, "crunch": 10, "thumbee": 11,
	"neon": 12, "vfpv3": 13, "vfpv3d16": 14, "tls": 15, "vfpv4": 16,
	"idiva": 17, "idivt": 18, "vfpd32": 19, "lpae": 20, "evtstrm": 21,
}

// ARMCPUID rebuilds the MIDR register.
func (ci CPUInfo) ARMCPUID() uint32 {
	return uint32(ci.Implementer&0xff)<<24 | uint32(ci.Variant&0xf)<<20 |
		uint32(ci.Architecture&0xf)<<16 | uint32(ci.Part&0xfff)<<4 | uint32(ci.Revision&0xf)
}

func (ci CPUInfo) ARMHWCaps() uint32 {
	var caps uint32
	for _, f := range ci.Features {
		if bit, ok := armHWCaps[f]; ok {
			caps |= 1 << bit
		}
	}
	return caps
}

// CountCPUs counts the CPUs of a kernel cpu list such as "0-3,5". It
// returns 0 for a malformed list.
func CountCPUs(list string) int {
	list = strings.TrimSpace(list)
	if list == "" {
		return 0
	}
	n := 0
	for _, part := range strings.Split(list, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return 0
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil || b < a {
				return 0
			}
		}
		n += b - a + 1
	}
	return n
}
