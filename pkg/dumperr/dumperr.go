// Package dumperr defines the failure kinds of a dump session and the
// warning list that carries the soft ones alongside a successful result.
package dumperr

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// Kind classifies a dump failure. A Kind is itself an error so it can be
// used as an errors.Is target.
type Kind int

const (
	// AttachFailed is fatal: the required thread could not be suspended.
	AttachFailed Kind = iota + 1
	// ThreadUnavailable is soft: one thread was skipped.
	ThreadUnavailable
	// PartialMemoryRead is soft: a region was truncated.
	PartialMemoryRead
	// ModuleResolutionFailed is soft: a module got a placeholder identifier.
	ModuleResolutionFailed
	// SerializationOverflow is fatal: the document outgrew 32-bit RVAs.
	SerializationOverflow
	// IoFailure is fatal: the document could not be written to the sink.
	IoFailure
)

var kindNames = map[Kind]string{
	AttachFailed:           "AttachFailed",
	ThreadUnavailable:      "ThreadUnavailable",
	PartialMemoryRead:      "PartialMemoryRead",
	ModuleResolutionFailed: "ModuleResolutionFailed",
	SerializationOverflow:  "SerializationOverflow",
	IoFailure:              "IoFailure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.String()
}

// Fatal reports whether a failure of this kind aborts the dump.
func (k Kind) Fatal() bool {
	switch k {
	case AttachFailed, SerializationOverflow, IoFailure:
		return true
	}
	return false
}

// Error is a classified failure. Tid and Addr are zero when they do not apply.
type Error struct {
	Kind Kind
	Tid  int
	Addr uint64
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Tid != 0 {
		msg += fmt.Sprintf(" tid=%d", e.Tid)
	}
	if e.Addr != 0 {
		msg += fmt.Sprintf(" addr=%#x", e.Addr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns a classified error annotated with a stack trace.
func New(kind Kind, err error) errors.E {
	return errors.WithStack(&Error{Kind: kind, Err: err})
}

// Thread returns a classified error about one thread.
func Thread(kind Kind, tid int, err error) errors.E {
	return errors.WithStack(&Error{Kind: kind, Tid: tid, Err: err})
}

// Memory returns a classified error about a memory address.
func Memory(kind Kind, addr uint64, err error) errors.E {
	return errors.WithStack(&Error{Kind: kind, Addr: addr, Err: err})
}

// KindOf extracts the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
