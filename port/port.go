// Package port implements the polymorphic byte/character stream the FASL
// decoder reads from: binary and text modes, CR/LF translation on input and
// output, a small bounded peek/unread buffer, and byte and position
// counters. A Port's behavior (how bytes actually move) is supplied by a
// Class, a small capability record of function fields — analogous to a
// vtable — rather than a deep type hierarchy.
package port

import (
	"sync/atomic"
)

// Mode describes a port's direction and whether it carries binary or text
// semantics. It mirrors the bitfield the decoder's source material used:
// direction bits plus a single binary bit.
type Mode uint8

const (
	Closed Mode = 0
	Input  Mode = 1 << 0
	Output Mode = 1 << 1

	InputOutput = Input | Output
	Direction   = Input | Output

	// Binary marks a port as carrying raw bytes with no line-ending
	// translation and no unread buffer. Ports without this bit are text
	// ports.
	Binary Mode = 1 << 3
)

func (m Mode) IsInput() bool  { return m&Input != 0 }
func (m Mode) IsOutput() bool { return m&Output != 0 }
func (m Mode) IsBinary() bool { return m&Binary != 0 }

// UnreadBufferSize bounds the text-port unread/peek buffer. A small
// compile-time constant, matching the spec's "small bounded size" (e.g. 4).
const UnreadBufferSize = 4

// Class is the capability record a concrete port implementation supplies.
// Any field left nil means "not supported" for that operation; callers
// must tolerate that by reporting false/EOF where sensible, never by
// panicking.
type Class struct {
	Name string

	// Open is invoked once, after the Port's bookkeeping state has been
	// initialized, to let the class acquire whatever resource it wraps.
	Open func(p *Port) error

	// Read pulls up to len(buf) raw bytes. It returns (0, nil) at EOF.
	Read func(p *Port, buf []byte) (int, error)

	// Write pushes len(buf) raw bytes verbatim (CRLF translation, if any,
	// has already been applied by the Port before Write is called).
	Write func(p *Port, buf []byte) (int, error)

	// Flush pushes out any buffering the class itself performs.
	Flush func(p *Port) error

	// Close releases the underlying resource. Close is called before
	// GCFree during teardown.
	Close func(p *Port) error

	// GCFree releases any class-held memory once the port is otherwise
	// dead. In this Go port this runs at explicit Close time rather than
	// at GC time, since Go ports are not finalizer-driven.
	GCFree func(p *Port)

	// ReadReady reports whether a read would return data immediately.
	// Classes that can't answer this leave it nil.
	ReadReady func(p *Port) (bool, error)

	// RichWrite lets a class accept a pre-formatted representation of an
	// arbitrary value directly (used by textual writers; the FASL core
	// never calls this). Returns false if the class declines.
	RichWrite func(p *Port, v interface{}, machineReadable bool) (bool, error)

	// Length reports the total size of the underlying stream, when known.
	Length func(p *Port) (int64, bool)
}

type textInfo struct {
	unreadBuffer [UnreadBufferSize]rune
	unreadValid  int

	crlfTranslate bool
	needsLF       bool

	column             int
	row                int
	previousLineLength int
}

// Options configures a Port at construction time. Mirrors the builder shape
// used elsewhere in this codebase: a NewOptions() zero value plus chainable
// Set* methods.
type Options struct {
	CRLFTranslate bool
}

func NewOptions() *Options {
	return &Options{CRLFTranslate: false}
}

func (o *Options) SetCRLFTranslate(v bool) *Options {
	o.CRLFTranslate = v
	return o
}

// Port is a single input/output/input-output stream, binary or text, with
// its own position and translation state. The FASL reader in package fasl
// attaches its per-stream decode state (definition table, loader stack,
// accumulator) via Extra.
type Port struct {
	class *Class
	name  string
	mode  Mode

	closed atomic.Bool

	userObject interface{}
	userData   interface{}

	text *textInfo

	bytesRead    uint64
	bytesWritten uint64

	// Extra is an attachment slot for higher-level readers (the FASL
	// decoder) to hang per-port state off of, without package port needing
	// to know the FASL table/loader-stack types.
	Extra interface{}
}

// Open constructs a Port over the given Class and calls the class's Open
// hook, if any.
func Open(cls *Class, name string, mode Mode, userObject interface{}, userData interface{}, opts *Options) (*Port, error) {
	if cls == nil {
		return nil, errf("port class must not be nil")
	}
	if opts == nil {
		opts = NewOptions()
	}

	p := &Port{
		class:      cls,
		name:       name,
		mode:       mode,
		userObject: userObject,
		userData:   userData,
	}

	if !mode.IsBinary() {
		p.text = &textInfo{
			crlfTranslate:      opts.CRLFTranslate,
			row:                1,
			column:             0,
			previousLineLength: 0,
		}
	}

	if cls.Open != nil {
		if err := cls.Open(p); err != nil {
			return nil, wrapErr("opening port", err)
		}
	}

	return p, nil
}

func (p *Port) Name() string          { return p.name }
func (p *Port) Mode() Mode            { return p.mode }
func (p *Port) IsBinary() bool        { return p.mode.IsBinary() }
func (p *Port) UserObject() interface{} { return p.userObject }
func (p *Port) UserData() interface{}   { return p.userData }
func (p *Port) Closed() bool           { return p.closed.Load() }

// IOCounts returns the raw byte counts transferred through this port.
// Counts reflect bytes moved through the Class, before any line-ending
// translation is applied on read, and after translation on write.
func (p *Port) IOCounts() (read, written uint64) {
	return atomic.LoadUint64(&p.bytesRead), atomic.LoadUint64(&p.bytesWritten)
}

// Location reports the port's current position: a byte offset for binary
// ports, or (row, column) for text ports.
func (p *Port) Location() (offset uint64, row, column int, isBinary bool) {
	if p.IsBinary() {
		read, _ := p.IOCounts()
		return read, 0, 0, true
	}
	return 0, p.text.row, p.text.column, false
}

// TranslateMode reports whether CRLF translation is active. Always false
// for binary ports.
func (p *Port) TranslateMode() bool {
	if p.IsBinary() {
		return false
	}
	return p.text.crlfTranslate
}

// SetTranslateMode flips CRLF translation, flushing first (matching the
// original's "changing this mid-stream needs fresh buffering state"
// behavior), and returns the previous mode.
func (p *Port) SetTranslateMode(v bool) (bool, error) {
	if p.IsBinary() {
		return false, ErrBinaryUnread
	}
	if err := p.Flush(); err != nil {
		return false, err
	}
	old := p.text.crlfTranslate
	p.text.crlfTranslate = v
	return old, nil
}

func (p *Port) requireOpenFor(mode Mode) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.mode&mode == 0 {
		return errf("port does not support %v", mode)
	}
	return nil
}

// ReadRaw reads up to len(buf) raw bytes from the underlying class,
// updating the byte counter by the number of bytes actually read.
func (p *Port) ReadRaw(buf []byte) (int, error) {
	if err := p.requireOpenFor(Input); err != nil {
		return 0, err
	}
	if p.class.Read == nil {
		return 0, ErrNoReader
	}
	n, err := p.class.Read(p, buf)
	atomic.AddUint64(&p.bytesRead, uint64(n))
	return n, err
}

// WriteRaw writes len(buf) raw bytes verbatim through the underlying class,
// updating the byte counter.
func (p *Port) WriteRaw(buf []byte) (int, error) {
	if err := p.requireOpenFor(Output); err != nil {
		return 0, err
	}
	if p.class.Write == nil {
		return 0, ErrNoWriter
	}
	n, err := p.class.Write(p, buf)
	atomic.AddUint64(&p.bytesWritten, uint64(n))
	return n, err
}

// Flush pushes out any pending write buffering. For a translating text
// port with a dangling needs-lf state, a trailing '\n' is emitted first.
func (p *Port) Flush() error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.IsBinary() && p.text.crlfTranslate && p.text.needsLF {
		if err := p.WriteChar('\n'); err != nil {
			return err
		}
	}
	if p.class.Flush != nil {
		return p.class.Flush(p)
	}
	return nil
}

// Close flushes (if output) then invokes the class's Close and GCFree
// hooks, in that order, and marks the port closed.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	var err error
	if p.mode.IsOutput() {
		err = p.flushOnClose()
	}
	if p.class.Close != nil {
		if cerr := p.class.Close(p); cerr != nil && err == nil {
			err = cerr
		}
	}
	if p.class.GCFree != nil {
		p.class.GCFree(p)
	}
	return err
}

// flushOnClose does the same work as Flush, but runs after the closed flag
// has already been claimed by Close, so it talks to the class directly
// instead of going through the closed-checking Flush/WriteRaw wrappers.
func (p *Port) flushOnClose() error {
	if !p.IsBinary() && p.text.crlfTranslate && p.text.needsLF {
		if p.class.Write != nil {
			n, err := p.class.Write(p, []byte{'\n'})
			atomic.AddUint64(&p.bytesWritten, uint64(n))
			if err != nil {
				return err
			}
		}
		p.text.needsLF = false
		p.text.row++
		p.text.column = 0
	}
	if p.class.Flush != nil {
		return p.class.Flush(p)
	}
	return nil
}

// ReadReady reports whether a read would return data without blocking. If
// the class does not support the query, binary ports report unsupported
// and text ports fall back to a peek.
func (p *Port) ReadReady() (bool, error) {
	if p.closed.Load() {
		return false, ErrClosed
	}
	if p.class.ReadReady != nil {
		return p.class.ReadReady(p)
	}
	if p.IsBinary() {
		return false, errf("char-ready? not supported on binary ports")
	}
	ch, err := p.PeekChar()
	if err != nil {
		return false, err
	}
	return ch != -1, nil
}

// Length reports the underlying stream length, if the class knows it.
func (p *Port) Length() (int64, bool) {
	if p.class.Length == nil {
		return 0, false
	}
	return p.class.Length(p)
}
