// Package minidump writes the state of a live Linux process as a
// minidump: threads with their registers and stacks, loaded modules,
// selected memory and a set of procfs snapshots.
package minidump

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/auxv"
	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/format"
	"github.com/monsterxx03/godump/pkg/proc"
	"github.com/monsterxx03/godump/pkgs/procmaps"
)

// Target is a stopped process. *proc.Process implements it once its
// threads are suspended.
type Target interface {
	PID() int
	Arch() cpu.Arch
	ThreadIDs() []int
	Capture(tid int) (*cpu.Context, error)
	ReadMemory(addr uint64, length int) ([]byte, error)
	Mappings() ([]procmaps.Mapping, error)
	Auxv() (auxv.Vector, []byte, error)
	ProcFile(name string) ([]byte, error)
	ThreadName(tid int) (string, error)
	ExePath() (string, error)
	RootPath(path string) string
}

// CrashContext describes the signal that triggered the dump. Context is
// the faulting thread's registers as the signal handler saw them; when
// nil they are read from the thread after attach.
type CrashContext struct {
	Signal  uint32
	Code    uint32
	Address uint64
	Tid     int
	Context *cpu.Context
}

type State int

const (
	Idle State = iota
	Attached
	Suspended
	Gathered
	Serialized
	Finalized
	Failed
)

var stateNames = map[State]string{
	Idle:       "Idle",
	Attached:   "Attached",
	Suspended:  "Suspended",
	Gathered:   "Gathered",
	Serialized: "Serialized",
	Finalized:  "Finalized",
	Failed:     "Failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is a finished document, or on failure the state the session
// stopped in and the warnings gathered until then. Bytes is nil unless
// State is Finalized.
type Result struct {
	Bytes     []byte
	Warnings  dumperr.Warnings
	State     State
	Directory []format.Directory
	Suspend   *proc.SuspendReport
}

type session struct {
	target Target
	crash  *CrashContext
	opts   Options
	log    log.FieldLogger
	res    *Result
}

func newSession(t Target, crash *CrashContext, opts *Options, state State) (*session, errors.E) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &session{
		target: t,
		crash:  crash,
		opts:   o,
		log:    o.Logger.WithField("pid", t.PID()),
		res:    &Result{State: state},
	}, nil
}

func (s *session) transition(to State) {
	s.log.WithField("from", s.res.State).WithField("to", to).Debug("dump state")
	s.res.State = to
}

func (s *session) fail(err error) (*Result, error) {
	s.transition(Failed)
	s.res.Bytes = nil
	return s.res, err
}

// run takes a suspended target to a finalized document.
func (s *session) run(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return s.fail(errors.WithStack(err))
	}
	m := gather(s.target, s.crash, &s.opts, &s.res.Warnings, s.log)
	s.transition(Gathered)

	if err := ctx.Err(); err != nil {
		return s.fail(errors.WithStack(err))
	}
	w := newWriter(m, &s.opts, &s.res.Warnings, s.log)
	if err := w.writeStreams(); err != nil {
		return s.fail(err)
	}
	s.transition(Serialized)

	if err := w.finalize(); err != nil {
		return s.fail(err)
	}
	s.res.Bytes = w.buf.Bytes()
	s.res.Directory = w.dir
	s.transition(Finalized)
	return s.res, nil
}

// Write produces a document from a target whose threads are already
// suspended. The target is not detached.
func Write(ctx context.Context, t Target, crash *CrashContext, opts Options) (*Result, error) {
	s, err := newSession(t, crash, &opts, Suspended)
	if err != nil {
		return &Result{State: Failed}, err
	}
	return s.run(ctx)
}

// Dump attaches to pid, suspends every thread, writes the document to
// sink and resumes the process. The main thread and the crashing thread
// must be suspendable; any other thread that is not is left out and
// reported in Result.Warnings. Nothing reaches sink unless the whole
// document was built.
func Dump(ctx context.Context, pid int, crash *CrashContext, opts Options, sink io.Writer) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return &Result{State: Failed}, err
	}
	if err := ctx.Err(); err != nil {
		return &Result{State: Failed}, errors.WithStack(err)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return &Result{State: Failed}, err
	}
	var required []int
	if crash != nil {
		required = append(required, crash.Tid)
	}
	p, aerr := proc.Attach(pid, proc.WithRequiredThreads(required...), proc.WithLogger(opts.Logger))
	if aerr != nil {
		return &Result{State: Failed}, aerr
	}
	defer p.Detach()
	return dumpProcess(ctx, p, crash, opts, sink)
}

func dumpProcess(ctx context.Context, p *proc.Process, crash *CrashContext, opts Options, sink io.Writer) (*Result, error) {
	s, err := newSession(p, crash, &opts, Attached)
	if err != nil {
		return &Result{State: Failed}, err
	}
	report, err := p.SuspendAll(s.opts.MaxRescans)
	if err != nil {
		return s.fail(err)
	}
	s.res.Suspend = report
	s.transition(Suspended)
	reportSuspend(report, &s.res.Warnings)

	res, rerr := s.run(ctx)
	if derr := p.Detach(); derr != nil {
		s.log.WithError(derr).Debug("detach")
	}
	if rerr != nil {
		return res, rerr
	}
	if _, err := sink.Write(res.Bytes); err != nil {
		res.State = Failed
		res.Bytes = nil
		return res, dumperr.New(dumperr.IoFailure, errors.WithStack(err))
	}
	return res, nil
}

func reportSuspend(r *proc.SuspendReport, ws *dumperr.Warnings) {
	for _, f := range r.Failed {
		ws.Add(dumperr.ThreadUnavailable, format.ThreadListStream.String(), dumperr.Thread(dumperr.ThreadUnavailable, f.Tid, f.Err))
	}
	for _, tid := range r.Vanished {
		ws.Add(dumperr.ThreadUnavailable, format.ThreadListStream.String(), dumperr.Thread(dumperr.ThreadUnavailable, tid, errors.New("exited during suspend")))
	}
	for _, tid := range r.Late {
		ws.Add(dumperr.ThreadUnavailable, format.ThreadListStream.String(), dumperr.Thread(dumperr.ThreadUnavailable, tid, errors.New("spawned after final rescan")))
	}
}
