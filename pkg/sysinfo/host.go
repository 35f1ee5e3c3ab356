// Package sysinfo reads host and process facts from procfs: CPU
// identification, kernel version and process times.
package sysinfo

import (
	"os"

	"golang.org/x/sys/unix"
)

type Uname struct {
	Sysname string
	Release string
	Version string
	Machine string
}

// Host is the machine a dump is taken on.
type Host interface {
	ReadFile(path string) ([]byte, error)
	Uname() (Uname, error)
}

// Local reads the real filesystem and kernel.
type Local struct{}

func (Local) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (Local) Uname() (Uname, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return Uname{}, err
	}
	return Uname{
		Sysname: unix.ByteSliceToString(u.Sysname[:]),
		Release: unix.ByteSliceToString(u.Release[:]),
		Version: unix.ByteSliceToString(u.Version[:]),
		Machine: unix.ByteSliceToString(u.Machine[:]),
	}, nil
}
