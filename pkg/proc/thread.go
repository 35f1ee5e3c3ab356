package proc

import (
	"github.com/monsterxx03/godump/pkg/cpu"
)

// Thread wrap operations on a system thread
type Thread struct {
	ID    int
	proc  *Process
	state string
}

// State is the procfs state of the thread, read on first use.
func (t *Thread) State() string {
	if t.state == "" {
		if s, err := t.proc.tracer.ThreadState(t.proc.ID, t.ID); err == nil {
			t.state = s
		}
	}
	return threadStateStrings[t.state]
}

func (t *Thread) Attach() error {
	var err error
	t.proc.execPtraceFunc(func() { err = t.proc.tracer.Attach(t.ID) })
	return err
}

func (t *Thread) Detach() error {
	var err error
	t.proc.execPtraceFunc(func() { err = t.proc.tracer.Detach(t.ID) })
	return err
}

// Capture reads the thread's registers via PTRACE_GETREGSET.
func (t *Thread) Capture() (*cpu.Context, error) {
	var ctx *cpu.Context
	var err error
	t.proc.execPtraceFunc(func() { ctx, err = t.proc.tracer.Capture(t.ID, t.proc.arch) })
	if err != nil {
		return nil, err
	}
	return ctx, nil
}
