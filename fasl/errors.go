package fasl

import (
	"fmt"

	"github.com/daedaluz/scanlisp/port"
)

// Kind classifies a decode error the way spec.md's error-handling design
// does: not Go types, but a small fixed taxonomy a caller can branch on.
type Kind int

const (
	// Structural: wrong operand type, or the stream ran out mid-composite.
	Structural Kind = iota
	// Resource: loader stack over/underflow, bad definition-table index.
	Resource
	// Lookup: unknown package, subr, or struct layout.
	Lookup
	// Usage: loader opcode outside loader mode, or a usage precondition
	// violated (e.g. a raw operation on the wrong port mode).
	Usage
)

func (k Kind) String() string {
	switch k {
	case Structural:
		return "structural"
	case Resource:
		return "resource"
	case Lookup:
		return "lookup"
	case Usage:
		return "usage"
	}
	return "unknown"
}

// Error is a FASL decode error. Per spec.md §7, user-visible messages must
// include the port's byte offset and, for text ports, row/column; the
// Offset, Row, Col and Binary fields capture both shapes so callers can
// format as needed.
type Error struct {
	Kind     Kind
	Msg      string
	Offset   uint64
	Row, Col int
	Binary   bool
	Err      error
}

func (e *Error) Error() string {
	var loc string
	if e.Binary {
		loc = fmt.Sprintf("offset %d", e.Offset)
	} else {
		loc = fmt.Sprintf("row %d, col %d", e.Row, e.Col)
	}
	if e.Err != nil {
		return fmt.Sprintf("fasl: %s (%s): %s: %v", e.Kind, loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("fasl: %s (%s): %s", e.Kind, loc, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// errAt builds an Error located at p's current position.
func errAt(p *port.Port, kind Kind, wrapped error, format string, args ...interface{}) error {
	offset, row, col, isBinary := p.Location()
	return &Error{
		Kind:   kind,
		Msg:    fmt.Sprintf(format, args...),
		Offset: offset,
		Row:    row,
		Col:    col,
		Binary: isBinary,
		Err:    wrapped,
	}
}
