package proc

import (
	"github.com/monsterxx03/godump/pkg/cpu"
)

// Tracer is the kernel surface a Process drives. Attach, Detach, Capture
// and PeekData are always issued from the ptrace goroutine.
type Tracer interface {
	// Tasks lists the thread ids of pid in ascending order.
	Tasks(pid int) ([]int, error)
	// ThreadState is the one-letter state of /proc/<pid>/task/<tid>/stat.
	ThreadState(pid, tid int) (string, error)
	// Attach stops tid and waits until the stop is reported.
	Attach(tid int) error
	// Detach resumes tid.
	Detach(tid int) error
	Capture(tid int, arch cpu.Arch) (*cpu.Context, error)
	PeekData(tid int, addr uint64, out []byte) (int, error)
}
