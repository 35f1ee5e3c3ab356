package dumperr

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// Warning is a soft failure recorded during a dump.
type Warning struct {
	Kind   Kind
	Stream string
	Tid    int
	Addr   uint64
	Err    error
}

func (w Warning) String() string {
	s := w.Kind.String()
	if w.Stream != "" {
		s += " stream=" + w.Stream
	}
	if w.Tid != 0 {
		s += fmt.Sprintf(" tid=%d", w.Tid)
	}
	if w.Addr != 0 {
		s += fmt.Sprintf(" addr=%#x", w.Addr)
	}
	if w.Err != nil {
		s += ": " + w.Err.Error()
	}
	return s
}

// Warnings accumulates soft failures in the order they happened.
type Warnings []Warning

// Add records err as a warning of the given kind. Tid and Addr are taken
// from err when it is a classified *Error.
func (ws *Warnings) Add(kind Kind, stream string, err error) {
	w := Warning{Kind: kind, Stream: stream, Err: err}
	var e *Error
	if errors.As(err, &e) {
		w.Tid = e.Tid
		w.Addr = e.Addr
		if e.Err != nil {
			w.Err = e.Err
		}
	}
	*ws = append(*ws, w)
}

// Count returns how many warnings have the given kind.
func (ws Warnings) Count(kind Kind) int {
	n := 0
	for _, w := range ws {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
