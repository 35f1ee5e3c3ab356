//go:build !linux

package proc

import (
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/cpu"
)

var errUnsupported = errors.New("process tracing needs linux")

type unsupportedTracer struct{}

func NewTracer() Tracer {
	return unsupportedTracer{}
}

func (unsupportedTracer) Tasks(int) ([]int, error) { return nil, errUnsupported }
func (unsupportedTracer) ThreadState(int, int) (string, error) { return "", errUnsupported }
func (unsupportedTracer) Attach(int) error { return errUnsupported }
func (unsupportedTracer) Detach(int) error { return errUnsupported }
func (unsupportedTracer) Capture(int, cpu.Arch) (*cpu.Context, error) {
	return nil, errUnsupported
}
func (unsupportedTracer) PeekData(int, uint64, []byte) (int, error) { return 0, errUnsupported }
