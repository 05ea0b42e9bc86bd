// Package fasl implements the FASL binary deserializer: the per-port
// definition table (C4), the opcode decoder (C5), and the loader execution
// layer (C6) described by fasl.cpp. It reads from a binary port.Port and
// materializes values through a host-provided value.Factory.
package fasl

import (
	"go.uber.org/zap"

	"github.com/daedaluz/scanlisp/debugflags"
	"github.com/daedaluz/scanlisp/port"
	"github.com/daedaluz/scanlisp/value"
)

// Options configures a Reader. Follows the same builder shape used by
// port.Options: a NewOptions() zero value plus chainable Set* methods.
type Options struct {
	Debug *debugflags.Flags
}

func NewOptions() *Options {
	return &Options{}
}

func (o *Options) SetDebug(d *debugflags.Flags) *Options {
	o.Debug = d
	return o
}

// Reader decodes FASL streams against a value.Factory. One Reader may be
// reused across many ports; per-port decode state (definition table,
// loader stack, load-unit trail) lives on the port itself, not the Reader.
type Reader struct {
	factory value.Factory
	debug   *debugflags.Flags
}

// NewReader builds a Reader over factory. opts may be nil.
func NewReader(factory value.Factory, opts *Options) *Reader {
	if opts == nil {
		opts = NewOptions()
	}
	return &Reader{factory: factory, debug: opts.Debug}
}

func (r *Reader) logger() *zap.Logger {
	return r.debug.Logger()
}

// ReadValue reads exactly one value from p with loader opcodes disabled —
// spec.md's fast_read(port) / fast_read(port, allow_loader_ops=false).
func (r *Reader) ReadValue(p *port.Port) (value.Value, error) {
	return r.read(p, false, nil)
}

// Load drives p to EOF with loader opcodes enabled — spec.md's
// fasl_load(port). Values produced by plain (non-loader) top-level opcodes
// are discarded, matching fasl.cpp: only LOADER_PUSH threads a value
// (the accumulator) out of the read loop and onto the loader stack.
func (r *Reader) Load(p *port.Port) error {
	for {
		v, err := r.read(p, true, nil)
		if err != nil {
			return err
		}
		if _, ok := v.(value.EOF); ok {
			return nil
		}
	}
}

// LoadUnitTrail returns the names of load units entered/left on p so far,
// in order, each prefixed "+" (BEGIN_LOAD_UNIT) or "-" (END_LOAD_UNIT).
// Supplements spec.md's "diagnostics only" BEGIN/END_LOAD_UNIT handling
// with something a caller can actually inspect after a Load.
func (r *Reader) LoadUnitTrail(p *port.Port) []string {
	st := stateFor(p)
	return append([]string(nil), st.loadUnitTrail...)
}

// read is fast_read: reads one opcode, dispatches, and either returns a
// value or — for tail-recursive opcodes — loops for the next opcode. Loop
// iteration replaces the source's current_read_complete flag so recursion
// depth is bounded by value nesting, not by the number of no-op opcodes.
//
// install, when non-nil, is the out-parameter the source's pointer-aliased
// *retval provided for free: a callback the composite decoders below
// (list/vector/structure/hash/instance-map/instance/fast-op) invoke the
// moment they have allocated — but not yet populated — their container,
// so a READER_DEFINITION slot is visible to a nested READER_REFERENCE
// before the container's children are read. Only readDefinition passes a
// non-nil install; every recursive sub-read (lengths, elements, fields)
// passes nil, since only the value sitting directly under a
// READER_DEFINITION can be the target of its own slot.
func (r *Reader) read(p *port.Port, allowLoaderOps bool, install func(value.Value)) (value.Value, error) {
	st := stateFor(p)

	for {
		op, err := r.readOpcode(p)
		if err != nil {
			return nil, err
		}

		if r.debug.Enabled(debugflags.FaslShowOpcodes) {
			offset, row, col, isBinary := p.Location()
			if isBinary {
				r.logger().Debug("fasl opcode", zap.String("op", op.String()), zap.Uint64("offset", offset))
			} else {
				r.logger().Debug("fasl opcode", zap.String("op", op.String()), zap.Int("row", row), zap.Int("col", col))
			}
		}

		if isLoaderOnly(op) && !allowLoaderOps {
			return nil, errAt(p, Usage, nil, "loader ops not allowed outside loader (%s)", op)
		}

		var v value.Value
		switch op {
		case OpNil:
			v = value.Nil{}
		case OpTrue:
			v = value.Bool{V: true}
		case OpFalse:
			v = value.Bool{V: false}
		case OpCharacter:
			v, err = r.readCharacter(p)
		case OpFix8:
			v, err = r.readFixnum(p, 1)
		case OpFix16:
			v, err = r.readFixnum(p, 2)
		case OpFix32:
			v, err = r.readFixnum(p, 4)
		case OpFix64:
			v, err = r.readFixnum(p, 8)
		case OpFloat:
			v, err = r.readFloat(p, false)
		case OpComplex:
			v, err = r.readFloat(p, true)
		case OpString:
			v, err = r.readString(p)
		case OpList:
			v, err = r.readList(p, false, install)
		case OpListD:
			v, err = r.readList(p, true, install)
		case OpVector:
			v, err = r.readVector(p, install)
		case OpStructure:
			v, err = r.readStructure(p, install)
		case OpStructureLayout:
			v, err = r.readStructureLayout(p)
		case OpHash:
			v, err = r.readHash(p, install)
		case OpInstanceMap:
			v, err = r.readInstanceMap(p, install)
		case OpInstance:
			v, err = r.readInstance(p, install)
		case OpClosure:
			v, err = r.readClosure(p)
		case OpMacro:
			v, err = r.readMacro(p)
		case OpSymbol:
			v, err = r.readSymbol(p)
		case OpPackage:
			v, err = r.readPackage(p)
		case OpSubr:
			v, err = r.readSubr(p)
		case OpFastOp0:
			v, err = r.readFastOp(p, 0, install)
		case OpFastOp1:
			v, err = r.readFastOp(p, 1, install)
		case OpFastOp2:
			v, err = r.readFastOp(p, 2, install)
		case OpFastOp3:
			v, err = r.readFastOp(p, 3, install)
		case OpNop1, OpNop2, OpNop3:
			continue
		case OpComment1, OpComment2:
			if err := r.skipComment(p); err != nil {
				return nil, err
			}
			continue
		case OpResetReaderDefs:
			st.table.Reset()
			continue
		case OpReaderDefinition:
			v, err = r.readDefinition(p, st, allowLoaderOps)
		case OpReaderReference:
			v, err = r.readReference(p, st)
		case OpEOF:
			v = value.EOF{}
		case OpLoaderDefineQ, OpLoaderDefineA0:
			if err := r.loaderDefinition(p, op); err != nil {
				return nil, err
			}
			continue
		case OpLoaderApply0, OpLoaderApplyN:
			if err := r.loaderApplication(p, st, op); err != nil {
				return nil, err
			}
			v = value.Nil{}
		case OpBeginLoadUnit:
			name, nerr := r.read(p, allowLoaderOps, nil)
			if nerr != nil {
				return nil, nerr
			}
			st.loadUnitTrail = append(st.loadUnitTrail, "+"+describeUnit(name))
			if r.debug.Enabled(debugflags.ShowFastLoadUnits) {
				r.logger().Debug("entering load unit", zap.Any("name", name))
			}
			v = value.Nil{}
		case OpEndLoadUnit:
			name, nerr := r.read(p, allowLoaderOps, nil)
			if nerr != nil {
				return nil, nerr
			}
			st.loadUnitTrail = append(st.loadUnitTrail, "-"+describeUnit(name))
			if r.debug.Enabled(debugflags.ShowFastLoadUnits) {
				r.logger().Debug("leaving load unit", zap.Any("name", name))
			}
			v = value.Nil{}
		case OpLoaderPush:
			if err := st.stack.Push(st.stack.Accumulator()); err != nil {
				return nil, errAt(p, Resource, err, "%v", err)
			}
			v = value.Nil{}
		case OpLoaderDrop:
			if _, err := st.stack.Pop(); err != nil {
				return nil, errAt(p, Resource, err, "%v", err)
			}
			v = value.Nil{}
		default:
			return nil, errAt(p, Structural, nil, "invalid opcode")
		}

		if err != nil {
			return nil, err
		}
		if install != nil {
			// Idempotent for the composite cases above, which already
			// installed their container early; this is what makes the
			// non-composite opcodes (atoms, symbols, closures, ...)
			// work under READER_DEFINITION without each of them needing
			// their own early-install logic.
			install(v)
		}
		return v, nil
	}
}

func describeUnit(v value.Value) string {
	if s, ok := v.(*value.String); ok {
		return s.String()
	}
	return v.Kind().String()
}

// readOpcode reads a single unsigned byte naming the next opcode. A short
// read (EOF) yields OpEOF rather than an error, matching fast_read_opcode.
func (r *Reader) readOpcode(p *port.Port) (Opcode, error) {
	v, ok, err := p.ReadBinaryFixnum(1, false)
	if err != nil {
		return 0, errAt(p, Structural, err, "reading opcode")
	}
	if !ok {
		return OpEOF, nil
	}
	return Opcode(v), nil
}

func (r *Reader) readCharacter(p *port.Port) (value.Value, error) {
	v, ok, err := p.ReadBinaryFixnum(1, false)
	if err != nil {
		return nil, errAt(p, Structural, err, "reading character")
	}
	if !ok {
		return value.EOF{}, nil
	}
	return r.factory.NewChar(rune(v)), nil
}

func (r *Reader) readFixnum(p *port.Port, length int) (value.Value, error) {
	v, ok, err := p.ReadBinaryFixnum(length, true)
	if err != nil {
		return nil, errAt(p, Structural, err, "reading fixnum")
	}
	if !ok {
		return value.EOF{}, nil
	}
	return r.factory.NewFixnum(v), nil
}

func (r *Reader) readFloat(p *port.Port, complex bool) (value.Value, error) {
	re, ok, err := p.ReadBinaryFlonum()
	if err != nil {
		return nil, errAt(p, Structural, err, "reading float")
	}
	if !ok {
		return value.EOF{}, nil
	}
	if !complex {
		return r.factory.NewFlonum(re), nil
	}
	im, ok, err := p.ReadBinaryFlonum()
	if err != nil {
		return nil, errAt(p, Structural, err, "reading complex imaginary part")
	}
	if !ok {
		return nil, errAt(p, Structural, nil, "incomplete complex number")
	}
	return r.factory.NewComplex(re, im), nil
}

func (r *Reader) readString(p *port.Port) (value.Value, error) {
	lv, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	length, ok := lv.(value.Fixnum)
	if !ok {
		return nil, errAt(p, Structural, nil, "expected fixnum for string length")
	}
	if length.V < 0 {
		return nil, errAt(p, Structural, nil, "negative string length")
	}

	buf := make([]byte, length.V)
	n, err := p.ReadRaw(buf)
	if err != nil {
		return nil, errAt(p, Structural, err, "reading string data")
	}
	if int64(n) != length.V {
		return nil, errAt(p, Structural, nil, "incomplete string data")
	}

	runes := make([]rune, len(buf))
	for i, b := range buf {
		runes[i] = rune(b)
	}
	return r.factory.NewString(runes), nil
}

// readList implements LIST/LISTD. The growing cons chain is installed into
// the out-parameter as soon as its first cell is allocated — matching
// fasl.cpp's fast_read_list, where *list (aliased to the table slot when
// called from READER_DEFINITION) is assigned the head cell before that
// cell's own car is decoded. A READER_REFERENCE encountered while decoding
// element 0 therefore observes the (still car=nil) head cell.
func (r *Reader) readList(p *port.Port, listD bool, install func(value.Value)) (value.Value, error) {
	lv, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	length, ok := lv.(value.Fixnum)
	if !ok {
		return nil, errAt(p, Structural, nil, "expected fixnum for list length")
	}

	var head value.Value = value.Nil{}
	var tailCons value.Value

	for i := int64(0); i < length.V; i++ {
		cell := r.factory.NewCons(r.factory.NewNil(), r.factory.NewNil())
		if tailCons == nil {
			head = cell
			if install != nil {
				install(head)
			}
		} else {
			if err := r.factory.SetCdr(tailCons, cell); err != nil {
				return nil, errAt(p, Structural, err, "linking list cell")
			}
		}
		tailCons = cell

		elem, err := r.read(p, false, nil)
		if err != nil {
			return nil, err
		}
		if _, isEOF := elem.(value.EOF); isEOF {
			return nil, errAt(p, Structural, nil, "incomplete list definition")
		}
		if err := r.factory.SetCar(cell, elem); err != nil {
			return nil, errAt(p, Structural, err, "setting list element")
		}
	}

	if listD {
		if tailCons == nil {
			return nil, errAt(p, Structural, nil, "LISTD requires at least one element")
		}
		tail, err := r.read(p, false, nil)
		if err != nil {
			return nil, err
		}
		if _, isEOF := tail.(value.EOF); isEOF {
			return nil, errAt(p, Structural, nil, "incomplete list definition, missing cdr")
		}
		if err := r.factory.SetCdr(tailCons, tail); err != nil {
			return nil, errAt(p, Structural, err, "setting list tail")
		}
	}

	return head, nil
}

func (r *Reader) readVector(p *port.Port, install func(value.Value)) (value.Value, error) {
	lv, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	length, ok := lv.(value.Fixnum)
	if !ok {
		return nil, errAt(p, Structural, nil, "expected fixnum for vector length")
	}

	vec := r.factory.NewVector(int(length.V))
	if install != nil {
		install(vec)
	}
	for i := int64(0); i < length.V; i++ {
		elem, err := r.read(p, false, nil)
		if err != nil {
			return nil, err
		}
		if _, isEOF := elem.(value.EOF); isEOF {
			return nil, errAt(p, Structural, nil, "incomplete vector definition")
		}
		if err := r.factory.SetVectorElem(vec, int(i), elem); err != nil {
			return nil, errAt(p, Structural, err, "setting vector element")
		}
	}
	return vec, nil
}

func (r *Reader) readStructureLayout(p *port.Port) (value.Value, error) {
	v, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	layout, err := r.factory.ResolveStructLayout(v)
	if err != nil {
		return nil, errAt(p, Lookup, err, "resolving structure layout")
	}
	return layout, nil
}

func (r *Reader) readStructure(p *port.Port, install func(value.Value)) (value.Value, error) {
	meta, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	if meta.Kind() != value.KindCons {
		return nil, errAt(p, Structural, nil, "expected list for structure metadata")
	}

	lv, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	length, ok := lv.(value.Fixnum)
	if !ok {
		return nil, errAt(p, Structural, nil, "expected fixnum for structure length")
	}

	st := r.factory.NewStructure(meta, int(length.V))
	if install != nil {
		install(st)
	}
	for i := int64(0); i < length.V; i++ {
		elem, err := r.read(p, false, nil)
		if err != nil {
			return nil, err
		}
		if _, isEOF := elem.(value.EOF); isEOF {
			return nil, errAt(p, Structural, nil, "incomplete structure definition")
		}
		if err := r.factory.SetStructureElem(st, int(i), elem); err != nil {
			return nil, errAt(p, Structural, err, "setting structure element")
		}
	}
	return st, nil
}

func (r *Reader) readInstanceMap(p *port.Port, install func(value.Value)) (value.Value, error) {
	proto, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	switch proto.Kind() {
	case value.KindInstance, value.KindBool, value.KindSymbol:
	default:
		return nil, errAt(p, Structural, nil, "bad prototype instance, must be false, a symbol, or an instance")
	}

	namesList, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	names, err := flattenSymbolList(namesList)
	if err != nil {
		return nil, errAt(p, Structural, err, "bad instance map slot names")
	}

	inst, err := r.factory.NewInstance(proto, names)
	if err != nil {
		return nil, errAt(p, Structural, err, "allocating instance")
	}
	if install != nil {
		install(inst)
	}
	return inst, nil
}

func flattenSymbolList(v value.Value) ([]string, error) {
	var names []string
	for {
		if _, ok := v.(value.Nil); ok {
			return names, nil
		}
		cons, ok := v.(*value.Cons)
		if !ok {
			return nil, &FactoryListError{Msg: "expected proper list of symbols"}
		}
		sym, ok := cons.Car.(*value.Symbol)
		if !ok {
			return nil, &FactoryListError{Msg: "expected symbol in slot name list"}
		}
		names = append(names, sym.Name)
		v = cons.Cdr
	}
}

// FactoryListError reports a malformed list where a proper list was
// required (slot-name lists, hash key/value lists).
type FactoryListError struct{ Msg string }

func (e *FactoryListError) Error() string { return e.Msg }

func (r *Reader) readInstance(p *port.Port, install func(value.Value)) (value.Value, error) {
	base, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	if base.Kind() != value.KindInstance {
		return nil, errAt(p, Structural, nil, "bad base instance")
	}

	inst, err := r.factory.CloneInstance(base)
	if err != nil {
		return nil, errAt(p, Structural, err, "cloning instance")
	}
	if install != nil {
		install(inst)
	}

	valsList, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}

	i := 1
	v := valsList
	for {
		if _, ok := v.(value.Nil); ok {
			break
		}
		cons, ok := v.(*value.Cons)
		if !ok {
			return nil, errAt(p, Structural, nil, "bad slot value list, must be a proper list")
		}
		if err := r.factory.SetInstanceSlotIndex(inst, i, cons.Car); err != nil {
			return nil, errAt(p, Structural, err, "setting instance slot")
		}
		i++
		v = cons.Cdr
	}

	return inst, nil
}

func (r *Reader) readHash(p *port.Port, install func(value.Value)) (value.Value, error) {
	shallowV, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	shallow, ok := shallowV.(value.Bool)
	if !ok {
		return nil, errAt(p, Structural, nil, "expected boolean for hash table shallow")
	}

	h := r.factory.NewHash(shallow.V)
	if install != nil {
		install(h)
	}

	elements, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}

	v := elements
	for {
		if _, ok := v.(value.Nil); ok {
			break
		}
		cons, ok := v.(*value.Cons)
		if !ok {
			return nil, errAt(p, Structural, nil, "malformed key/value list for hash table")
		}
		kv, ok := cons.Car.(*value.Cons)
		if !ok {
			return nil, errAt(p, Structural, nil, "malformed key/value in hash table")
		}
		if err := r.factory.HashSet(h, kv.Car, kv.Cdr); err != nil {
			return nil, errAt(p, Structural, err, "setting hash entry")
		}
		v = cons.Cdr
	}

	return h, nil
}

func (r *Reader) readClosure(p *port.Port) (value.Value, error) {
	env, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	if _, ok := env.(value.EOF); ok {
		return nil, errAt(p, Structural, nil, "incomplete closure, missing environment")
	}
	if !isNilOrCons(env) {
		return nil, errAt(p, Structural, nil, "malformed closure, bad environment")
	}

	code, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	if _, ok := code.(value.EOF); ok {
		return nil, errAt(p, Structural, nil, "incomplete closure, missing code")
	}
	if !isNilOrCons(code) {
		return nil, errAt(p, Structural, nil, "malformed closure, bad code")
	}

	props, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	if _, ok := props.(value.EOF); ok {
		return nil, errAt(p, Structural, nil, "incomplete closure, missing property list")
	}
	if !isNilOrCons(props) {
		return nil, errAt(p, Structural, nil, "malformed closure, bad property list")
	}

	return r.factory.NewClosure(env, code, props), nil
}

func isNilOrCons(v value.Value) bool {
	switch v.Kind() {
	case value.KindNil, value.KindCons:
		return true
	}
	return false
}

func (r *Reader) readMacro(p *port.Port) (value.Value, error) {
	transformer, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	if transformer.Kind() != value.KindClosure {
		return nil, errAt(p, Structural, nil, "malformed macro, bad transformer")
	}
	return r.factory.NewMacro(transformer), nil
}

func (r *Reader) readSymbol(p *port.Port) (value.Value, error) {
	nameV, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	name, ok := nameV.(*value.String)
	if !ok {
		return nil, errAt(p, Structural, nil, "symbols must have string print names")
	}

	home, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}

	switch h := home.(type) {
	case value.Nil:
		return r.factory.MakeUninternedSymbol(name.String()), nil
	case value.Bool:
		if h.V {
			return nil, errAt(p, Structural, nil, "a symbol must either have a package or nil/false for home")
		}
		return r.factory.MakeUninternedSymbol(name.String()), nil
	case *value.Package:
		sym, err := r.factory.Intern(name.String(), h)
		if err != nil {
			return nil, errAt(p, Structural, err, "interning symbol")
		}
		return sym, nil
	default:
		return nil, errAt(p, Structural, nil, "a symbol must either have a package or nil/false for home")
	}
}

func (r *Reader) readPackage(p *port.Port) (value.Value, error) {
	nameV, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	name, ok := nameV.(*value.String)
	if !ok {
		return nil, errAt(p, Structural, nil, "packages must have string names")
	}

	if pkg, ok := r.factory.FindPackageByName(name.String()); ok {
		return pkg, nil
	}
	if pkg, ok := findConfiguredPackage(name.String()); ok {
		return pkg, nil
	}
	return nil, errAt(p, Lookup, nil, "package not found: %q", name.String())
}

func (r *Reader) readSubr(p *port.Port) (value.Value, error) {
	nameV, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	name, ok := nameV.(*value.String)
	if !ok {
		return nil, errAt(p, Structural, nil, "subrs must have string names")
	}

	subr, ok := r.factory.FindSubrByName(name.String())
	if !ok {
		return nil, errAt(p, Lookup, nil, "subr not found: %q", name.String())
	}
	return subr, nil
}

func (r *Reader) readFastOp(p *port.Port, arity int, install func(value.Value)) (value.Value, error) {
	opV, err := r.read(p, false, nil)
	if err != nil {
		return nil, err
	}
	opcode, ok := opV.(value.Fixnum)
	if !ok {
		return nil, errAt(p, Structural, nil, "expected fixnum for fast-op opcode")
	}

	fop, err := r.factory.NewFastOp(opcode.V, arity)
	if err != nil {
		return nil, errAt(p, Structural, err, "allocating fast-op")
	}
	if install != nil {
		install(fop)
	}

	setters := [3]func(value.Value, value.Value) error{
		r.factory.SetFastOpArg1, r.factory.SetFastOpArg2, r.factory.SetFastOpArg3,
	}
	for i := 0; i < arity; i++ {
		arg, err := r.read(p, false, nil)
		if err != nil {
			return nil, err
		}
		if err := setters[i](fop, arg); err != nil {
			return nil, errAt(p, Structural, err, "setting fast-op argument")
		}
	}
	return fop, nil
}

func (r *Reader) skipComment(p *port.Port) error {
	var buf [1]byte
	for {
		n, err := p.ReadRaw(buf[:])
		if err != nil {
			return errAt(p, Structural, err, "skipping comment")
		}
		if n == 0 {
			return nil
		}
		if buf[0] == '\n' || buf[0] == '\r' {
			return nil
		}
	}
}

func (r *Reader) readTableIndex(p *port.Port) (int, error) {
	iv, err := r.read(p, false, nil)
	if err != nil {
		return 0, err
	}
	idx, ok := iv.(value.Fixnum)
	if !ok {
		return 0, errAt(p, Structural, nil, "expected fixnum for FASL table index")
	}
	if idx.V < 0 {
		return 0, errAt(p, Resource, nil, "FASL table indices must be >=0")
	}
	return int(idx.V), nil
}

// readDefinition implements READER_DEFINITION's out-parameter contract:
// the table slot is ensured, then the nested read is given an install
// callback that composite decoders invoke the moment their container
// exists, before any children are filled in — so a READER_REFERENCE to
// this same index, encountered while decoding those children, observes
// the partially built container. See the read() doc comment for why this
// stands in for the source's pointer-aliased *retval out-parameter.
func (r *Reader) readDefinition(p *port.Port, st *portState, allowLoaderOps bool) (value.Value, error) {
	idx, err := r.readTableIndex(p)
	if err != nil {
		return nil, err
	}

	st.table.Get(idx) // ensure the slot exists before the nested read

	install := func(v value.Value) {
		st.table.Set(idx, v)
	}

	if _, err := r.read(p, allowLoaderOps, install); err != nil {
		return nil, err
	}

	return st.table.Get(idx), nil
}

func (r *Reader) readReference(p *port.Port, st *portState) (value.Value, error) {
	idx, err := r.readTableIndex(p)
	if err != nil {
		return nil, err
	}
	return st.table.Get(idx), nil
}

func (r *Reader) loaderDefinition(p *port.Port, op Opcode) error {
	symV, err := r.read(p, true, nil)
	if err != nil {
		return err
	}
	sym, ok := symV.(*value.Symbol)
	if !ok {
		return errAt(p, Structural, nil, "expected symbol for definition")
	}

	def, err := r.read(p, true, nil)
	if err != nil {
		return err
	}

	if r.debug.Enabled(debugflags.ShowFastLoadForms) {
		r.logger().Debug("fasl defining", zap.String("symbol", sym.Name))
	}

	switch op {
	case OpLoaderDefineQ:
		// quoted definition, use as-is.
	case OpLoaderDefineA0:
		applied, err := r.factory.Apply(def, nil)
		if err != nil {
			return errAt(p, Structural, err, "applying zero-arg definition")
		}
		def = applied
	}

	if err := r.factory.GloballyBind(sym, def); err != nil {
		return errAt(p, Structural, err, "binding global")
	}
	return nil
}

func (r *Reader) loaderApplication(p *port.Port, st *portState, op Opcode) error {
	proc, err := r.read(p, true, nil)
	if err != nil {
		return err
	}
	switch proc.Kind() {
	case value.KindSubr, value.KindClosure:
	default:
		return errAt(p, Structural, nil, "invalid function to apply")
	}

	var args []value.Value
	if op == OpLoaderApplyN {
		argcV, err := r.read(p, true, nil)
		if err != nil {
			return err
		}
		argc, ok := argcV.(value.Fixnum)
		if !ok {
			return errAt(p, Structural, nil, "expected fixnum for loader application argc")
		}
		if argc.V < 0 || argc.V > LoaderStackDepth {
			return errAt(p, Resource, nil, "loader application argc too high")
		}
		// Popped in last-pushed-first order and placed starting at
		// position 0, matching fast_read_loader_application's
		// argv[ii+1] = fast_loader_stack_pop(port) loop (argv[0] is the
		// procedure, filled in separately above).
		args = make([]value.Value, argc.V)
		for i := int64(0); i < argc.V; i++ {
			v, err := st.stack.Pop()
			if err != nil {
				return errAt(p, Resource, err, "%v", err)
			}
			args[i] = v
		}
	}

	if r.debug.Enabled(debugflags.ShowFastLoadForms) {
		r.logger().Debug("fasl applying", zap.Int("argc", len(args)))
	}

	result, err := r.factory.Apply(proc, args)
	if err != nil {
		return errAt(p, Structural, err, "applying loader function")
	}
	st.stack.SetAccumulator(result)
	return nil
}
