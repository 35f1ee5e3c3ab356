// Package proc attaches to a live process with ptrace, keeps its threads
// stopped while a dump is taken and reads its memory, registers and
// procfs entries.
package proc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/auxv"
	"github.com/monsterxx03/godump/pkg/cpu"
	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkgs/procmaps"
)

// Process wrap operations on target process
type Process struct {
	ID       int
	arch     cpu.Arch
	required []int
	tracer   Tracer
	log      log.FieldLogger

	threads map[int]*Thread
	failed  map[int]bool
	mem     *os.File
	memErr  error

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}
	detached       bool
}

type Option func(*Process)

// WithRequiredThreads names threads besides the main thread whose attach
// failure is fatal, such as the thread that crashed.
func WithRequiredThreads(tids ...int) Option {
	return func(p *Process) {
		for _, tid := range tids {
			if tid != 0 && tid != p.ID {
				p.required = append(p.required, tid)
			}
		}
	}
}

func WithLogger(l log.FieldLogger) Option {
	return func(p *Process) { p.log = l }
}

func WithTracer(t Tracer) Option {
	return func(p *Process) { p.tracer = t }
}

// WithArch overrides the host architecture.
func WithArch(a cpu.Arch) Option {
	return func(p *Process) { p.arch = a }
}

func discardLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// Attach stops the main thread of pid and any required threads. The
// returned Process must be released with Detach.
func Attach(pid int, opts ...Option) (*Process, errors.E) {
	if pid <= 0 {
		return nil, dumperr.New(dumperr.AttachFailed, errors.Errorf("invalid pid %d", pid))
	}
	if pid == os.Getpid() {
		return nil, dumperr.New(dumperr.AttachFailed, errors.New("cannot trace the dumping process itself"))
	}
	p := &Process{
		ID:             pid,
		arch:           cpu.HostArch(),
		tracer:         NewTracer(),
		log:            discardLogger(),
		threads:        make(map[int]*Thread),
		failed:         make(map[int]bool),
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.required = append([]int{pid}, p.required...)
	p.log = p.log.WithField("pid", pid)

	tids, err := p.tracer.Tasks(pid)
	if err != nil {
		return nil, dumperr.New(dumperr.AttachFailed, errors.Errorf("list threads: %w", err))
	}
	present := make(map[int]bool, len(tids))
	for _, tid := range tids {
		present[tid] = true
	}

	go p.handlePtraceFuncs()
	for _, tid := range p.required {
		if !present[tid] {
			p.Detach()
			return nil, dumperr.Thread(dumperr.AttachFailed, tid, errors.New("thread not found"))
		}
		if err := p.attachThread(tid); err != nil {
			p.Detach()
			return nil, dumperr.Thread(dumperr.AttachFailed, tid, err)
		}
	}
	return p, nil
}

// borrowed from delve/proc/native/proc.go
func (p *Process) execPtraceFunc(fn func()) {
	p.ptraceChan <- fn
	<-p.ptraceDoneChan
}

// borrowed from delve/proc/native/proc.go
func (p *Process) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range p.ptraceChan {
		fn()
		p.ptraceDoneChan <- nil
	}
}

func (p *Process) attachThread(tid int) error {
	t := &Thread{ID: tid, proc: p}
	if err := t.Attach(); err != nil {
		p.log.WithField("tid", tid).WithError(err).Debug("attach failed")
		return err
	}
	p.threads[tid] = t
	p.log.WithField("tid", tid).Debug("attached")
	return nil
}

func (p *Process) isRequired(tid int) bool {
	for _, r := range p.required {
		if r == tid {
			return true
		}
	}
	return false
}

// ThreadFailure is a thread that could not be suspended.
type ThreadFailure struct {
	Tid int
	Err error
}

type SuspendReport struct {
	Suspended int
	Failed    []ThreadFailure
	// Vanished threads were attached and exited before the last rescan.
	Vanished []int
	// Late threads appeared after the final rescan and are not traced.
	Late   []int
	Passes int
}

// SuspendAll attaches every thread of the process. The task list is read
// again after the first pass, up to maxRescans more times, until a pass
// sees no change. Per-thread failures are reported, not returned; the
// error is reserved for losing a required thread.
func (p *Process) SuspendAll(maxRescans int) (*SuspendReport, errors.E) {
	if p.detached {
		return nil, dumperr.New(dumperr.AttachFailed, errors.New("process already detached"))
	}
	r := &SuspendReport{}
	changed, err := p.suspendPass(r)
	if err != nil {
		return nil, err
	}
	for i := 0; changed && i < maxRescans; i++ {
		if changed, err = p.suspendPass(r); err != nil {
			return nil, err
		}
	}
	if changed {
		if tids, err := p.tracer.Tasks(p.ID); err == nil {
			for _, tid := range tids {
				if p.threads[tid] == nil && !p.failed[tid] {
					r.Late = append(r.Late, tid)
				}
			}
		}
	}
	r.Suspended = len(p.threads)
	return r, nil
}

func (p *Process) suspendPass(r *SuspendReport) (bool, errors.E) {
	r.Passes++
	tids, err := p.tracer.Tasks(p.ID)
	if err != nil {
		return false, dumperr.New(dumperr.AttachFailed, errors.Errorf("list threads: %w", err))
	}
	changed := false
	seen := make(map[int]bool, len(tids))
	for _, tid := range tids {
		seen[tid] = true
		if p.threads[tid] != nil || p.failed[tid] {
			continue
		}
		changed = true
		if state, err := p.tracer.ThreadState(p.ID, tid); err == nil && (state == "Z" || state == "X" || state == "x") {
			p.failed[tid] = true
			r.Failed = append(r.Failed, ThreadFailure{Tid: tid, Err: errors.Errorf("thread is %s", threadStateStrings[state])})
			continue
		}
		if err := p.attachThread(tid); err != nil {
			p.failed[tid] = true
			r.Failed = append(r.Failed, ThreadFailure{Tid: tid, Err: err})
		}
	}
	for tid := range p.threads {
		if seen[tid] {
			continue
		}
		if p.isRequired(tid) {
			return false, dumperr.Thread(dumperr.AttachFailed, tid, errors.New("required thread exited"))
		}
		changed = true
		delete(p.threads, tid)
		r.Vanished = append(r.Vanished, tid)
	}
	return changed, nil
}

// ThreadIDs returns the attached threads in ascending order.
func (p *Process) ThreadIDs() []int {
	tids := make([]int, 0, len(p.threads))
	for tid := range p.threads {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids
}

func (p *Process) PID() int {
	return p.ID
}

func (p *Process) Arch() cpu.Arch {
	return p.arch
}

// Capture reads the registers of an attached thread.
func (p *Process) Capture(tid int) (*cpu.Context, error) {
	t, ok := p.threads[tid]
	if !ok {
		return nil, dumperr.Thread(dumperr.ThreadUnavailable, tid, errors.New("thread not attached"))
	}
	ctx, err := t.Capture()
	if err != nil {
		if state := t.State(); state != "" {
			err = errors.Errorf("%s: %w", strings.ToLower(state), err)
		}
		return nil, dumperr.Thread(dumperr.ThreadUnavailable, tid, err)
	}
	return ctx, nil
}

// ReadMemory reads length bytes at addr. When only a prefix is readable
// the prefix is returned with a PartialMemoryRead error naming the first
// unreadable address.
func (p *Process) ReadMemory(addr uint64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	n, err := p.readAt(buf, addr)
	if n == length {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return buf[:n], dumperr.Memory(dumperr.PartialMemoryRead, addr+uint64(n), err)
}

// readAt reads from /proc/<pid>/mem, then page by page, and finally with
// PTRACE_PEEKDATA for pages the mem file refuses.
func (p *Process) readAt(buf []byte, addr uint64) (int, error) {
	if addr > math.MaxInt64 || addr+uint64(len(buf)) < addr {
		return 0, errors.Errorf("address %#x out of range", addr)
	}
	f := p.memFile()
	if f != nil {
		if n, err := f.ReadAt(buf, int64(addr)); err == nil && n == len(buf) {
			return n, nil
		}
	}
	var lastErr error
	done := 0
	for done < len(buf) {
		cur := addr + uint64(done)
		chunk := int(pageSize - cur%pageSize)
		if chunk > len(buf)-done {
			chunk = len(buf) - done
		}
		part := buf[done : done+chunk]
		n := 0
		if f != nil {
			n, lastErr = f.ReadAt(part, int64(cur))
		}
		if n < chunk {
			var m int
			m, lastErr = p.peek(part[n:], cur+uint64(n))
			n += m
		}
		done += n
		if n < chunk {
			break
		}
	}
	return done, lastErr
}

func (p *Process) peek(out []byte, addr uint64) (int, error) {
	if p.detached || len(p.threads) == 0 {
		return 0, errors.New("no attached thread to peek through")
	}
	var n int
	var err error
	p.execPtraceFunc(func() { n, err = p.tracer.PeekData(p.ID, addr, out) })
	return n, err
}

func (p *Process) memFile() *os.File {
	if p.mem == nil && p.memErr == nil {
		p.mem, p.memErr = os.Open(fmt.Sprintf("/proc/%d/mem", p.ID))
		if p.memErr != nil {
			p.log.WithError(p.memErr).Debug("mem file unavailable, falling back to peekdata")
		}
	}
	return p.mem
}

func (p *Process) procPath(name string) string {
	return filepath.Join("/proc", fmt.Sprintf("%d", p.ID), name)
}

// ProcFile reads /proc/<pid>/<name>.
func (p *Process) ProcFile(name string) ([]byte, error) {
	return os.ReadFile(p.procPath(name))
}

func (p *Process) Mappings() ([]procmaps.Mapping, error) {
	return procmaps.ReadProcMaps(p.ID)
}

func (p *Process) Auxv() (auxv.Vector, []byte, error) {
	return auxv.Read(p.ID, binary.NativeEndian, p.arch.PtrSize())
}

// ThreadName is the comm of a thread.
func (p *Process) ThreadName(tid int) (string, error) {
	b, err := os.ReadFile(p.procPath(fmt.Sprintf("task/%d/comm", tid)))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\n"), nil
}

// ExePath is the target of /proc/<pid>/exe without a deleted marker.
func (p *Process) ExePath() (string, error) {
	s, err := os.Readlink(p.procPath("exe"))
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(s, " (deleted)"), nil
}

// RootPath maps a path inside the target's mount namespace to one the
// dumper can open.
func (p *Process) RootPath(path string) string {
	return p.procPath("root") + path
}

// Detach resumes every attached thread. It is safe to call more than
// once; only the first call does anything.
func (p *Process) Detach() error {
	if p.detached {
		return nil
	}
	var errs []error
	for _, tid := range p.ThreadIDs() {
		if err := p.threads[tid].Detach(); err != nil {
			errs = append(errs, err)
		}
		delete(p.threads, tid)
	}
	close(p.ptraceChan)
	if p.mem != nil {
		p.mem.Close()
	}
	p.detached = true
	p.log.Debug("detached")
	return errors.Join(errs...)
}
