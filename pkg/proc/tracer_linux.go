package proc

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"

	"github.com/monsterxx03/godump/pkg/cpu"
)

type ptraceTracer struct{}

// NewTracer returns the Tracer backed by ptrace(2) and procfs.
func NewTracer() Tracer {
	return ptraceTracer{}
}

func (ptraceTracer) Tasks(pid int) ([]int, error) {
	files, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	tids := make([]int, 0, len(files))
	for _, f := range files {
		tid, err := strconv.Atoi(f.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids, nil
}

func (ptraceTracer) ThreadState(pid, tid int) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/stat", pid, tid))
	if err != nil {
		return "", errors.WithStack(err)
	}
	s := string(b)
	// the state follows the parenthesised command name
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return "", errors.Errorf("malformed stat for thread %d", tid)
	}
	return s[i+2 : i+3], nil
}

func (ptraceTracer) Attach(tid int) error {
	if err := unix.PtraceAttach(tid); err != nil {
		return errors.Errorf("ptrace attach: %w", errors.WithStack(err))
	}
	for {
		var s unix.WaitStatus
		_, err := unix.Wait4(tid, &s, unix.WALL, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return errors.Errorf("wait4: %w", errors.WithStack(err))
		}
		if s.Exited() || s.Signaled() {
			return errors.Errorf("thread %d exited while attaching: %w", tid, unix.ESRCH)
		}
		if s.Stopped() {
			return nil
		}
	}
}

func (ptraceTracer) Detach(tid int) error {
	if err := unix.PtraceDetach(tid); err != nil {
		return errors.Errorf("ptrace detach: %w", errors.WithStack(err))
	}
	return nil
}

func (ptraceTracer) Capture(tid int, arch cpu.Arch) (*cpu.Context, error) {
	ctx, err := cpu.Capture(tid, arch)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

func (ptraceTracer) PeekData(tid int, addr uint64, out []byte) (int, error) {
	n, err := unix.PtracePeekData(tid, uintptr(addr), out)
	if err != nil {
		return n, errors.Errorf("ptrace peekdata: %w", errors.WithStack(err))
	}
	return n, nil
}
