//go:build !linux

package cpu

import "gitlab.com/tozd/go/errors"

func Capture(tid int, arch Arch) (*Context, errors.E) {
	return nil, errors.Errorf("%w: register capture needs linux", ErrUnsupportedArch)
}
