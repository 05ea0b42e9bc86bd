package value

import "sync"

// Heap is a reference, in-memory Factory implementation: plain Go values
// with a package registry, a subr registry, and a global-binding table.
// It exists for tests and for the faslinfo CLI's in-memory staging area;
// a real interpreter would implement Factory against its own
// garbage-collected heap instead.
type Heap struct {
	mu sync.Mutex

	packages map[string]*Package
	subrs    map[string]*Subr
	globals  map[*Symbol]Value
	symbols  map[*Package]map[string]*Symbol

	// ApplyFunc is a host-supplied evaluator hook (spec's "apply(proc, argv)").
	// The reference Heap has no evaluator of its own, so loader APPLY
	// opcodes need a caller-supplied function; if nil, Apply errors.
	ApplyFunc func(proc Value, args []Value) (Value, error)
}

// NewHeap returns an empty Heap. RegisterPackage/RegisterSubr populate the
// lookup tables the FASL decoder's PACKAGE/SUBR opcodes consult.
func NewHeap() *Heap {
	return &Heap{
		packages: make(map[string]*Package),
		subrs:    make(map[string]*Subr),
		globals:  make(map[*Symbol]Value),
		symbols:  make(map[*Package]map[string]*Symbol),
	}
}

func (h *Heap) RegisterPackage(name string) *Package {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := &Package{Name: name}
	h.packages[name] = p
	return p
}

func (h *Heap) RegisterSubr(name string) *Subr {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &Subr{Name: name}
	h.subrs[name] = s
	return s
}

func (h *Heap) NewNil() Value            { return Nil{} }
func (h *Heap) NewBool(v bool) Value     { return Bool{V: v} }
func (h *Heap) NewChar(c rune) Value     { return Char{V: c} }
func (h *Heap) NewFixnum(v int64) Value  { return Fixnum{V: v} }
func (h *Heap) NewFlonum(v float64) Value { return Flonum{V: v} }
func (h *Heap) NewComplex(re, im float64) Value {
	return Complex{Re: re, Im: im}
}
func (h *Heap) NewString(runes []rune) Value {
	cp := make([]rune, len(runes))
	copy(cp, runes)
	return &String{Runes: cp}
}
func (h *Heap) NewCons(car, cdr Value) Value {
	return &Cons{Car: car, Cdr: cdr}
}
func (h *Heap) NewVector(n int) Value {
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = Nil{}
	}
	return &Vector{Elems: elems}
}
func (h *Heap) NewStructure(meta Value, n int) Value {
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = Nil{}
	}
	return &Structure{Meta: meta, Elems: elems}
}
func (h *Heap) NewHash(shallow bool) Value {
	return &Hash{Shallow: shallow}
}
func (h *Heap) NewInstance(proto Value, slotNames []string) (Value, error) {
	switch proto.(type) {
	case *Instance, Bool, *Symbol:
	default:
		return nil, wrongKind("NewInstance", "instance, false, or symbol", proto)
	}
	slots := make([]Value, len(slotNames))
	for i := range slots {
		slots[i] = Nil{}
	}
	return &Instance{Proto: proto, SlotNames: append([]string(nil), slotNames...), Slots: slots}, nil
}
func (h *Heap) NewClosure(env, code, props Value) Value {
	return &Closure{Env: env, Code: code, Props: props}
}
func (h *Heap) NewMacro(closure Value) Value {
	return &Macro{Closure: closure}
}
func (h *Heap) NewFastOp(opcode int64, argc int) (Value, error) {
	if argc < 0 || argc > 3 {
		return nil, &FactoryError{Op: "NewFastOp", Want: "argc in 0..3"}
	}
	return &FastOp{Opcode: opcode, Argc: argc}, nil
}
func (h *Heap) NewEOF() Value     { return EOF{} }
func (h *Heap) NewUnbound() Value { return Unbound{} }

func (h *Heap) SetCar(cons Value, v Value) error {
	c, ok := cons.(*Cons)
	if !ok {
		return wrongKind("SetCar", "cons", cons)
	}
	c.Car = v
	return nil
}

func (h *Heap) SetCdr(cons Value, v Value) error {
	c, ok := cons.(*Cons)
	if !ok {
		return wrongKind("SetCdr", "cons", cons)
	}
	c.Cdr = v
	return nil
}

func (h *Heap) SetVectorElem(vec Value, i int, v Value) error {
	vv, ok := vec.(*Vector)
	if !ok {
		return wrongKind("SetVectorElem", "vector", vec)
	}
	if i < 0 || i >= len(vv.Elems) {
		return &FactoryError{Op: "SetVectorElem", Want: "index in range"}
	}
	vv.Elems[i] = v
	return nil
}

func (h *Heap) SetStructureElem(st Value, i int, v Value) error {
	s, ok := st.(*Structure)
	if !ok {
		return wrongKind("SetStructureElem", "structure", st)
	}
	if i < 0 || i >= len(s.Elems) {
		return &FactoryError{Op: "SetStructureElem", Want: "index in range"}
	}
	s.Elems[i] = v
	return nil
}

func (h *Heap) SetInstanceSlot(inst Value, name string, v Value) error {
	i, ok := inst.(*Instance)
	if !ok {
		return wrongKind("SetInstanceSlot", "instance", inst)
	}
	for idx, n := range i.SlotNames {
		if n == name {
			i.Slots[idx] = v
			return nil
		}
	}
	i.SlotNames = append(i.SlotNames, name)
	i.Slots = append(i.Slots, v)
	return nil
}

func (h *Heap) CloneInstance(proto Value) (Value, error) {
	p, ok := proto.(*Instance)
	if !ok {
		return nil, wrongKind("CloneInstance", "instance", proto)
	}
	slots := make([]Value, len(p.Slots))
	copy(slots, p.Slots)
	names := make([]string, len(p.SlotNames))
	copy(names, p.SlotNames)
	return &Instance{Proto: p.Proto, SlotNames: names, Slots: slots}, nil
}

func (h *Heap) SetInstanceSlotIndex(inst Value, i int, v Value) error {
	ii, ok := inst.(*Instance)
	if !ok {
		return wrongKind("SetInstanceSlotIndex", "instance", inst)
	}
	if i < 0 {
		return &FactoryError{Op: "SetInstanceSlotIndex", Want: "index >= 0"}
	}
	for len(ii.Slots) <= i {
		ii.Slots = append(ii.Slots, Nil{})
		ii.SlotNames = append(ii.SlotNames, "")
	}
	ii.Slots[i] = v
	return nil
}

func (h *Heap) SetFastOpArg1(fop Value, v Value) error { return setFastOpArg(fop, 0, v) }
func (h *Heap) SetFastOpArg2(fop Value, v Value) error { return setFastOpArg(fop, 1, v) }
func (h *Heap) SetFastOpArg3(fop Value, v Value) error { return setFastOpArg(fop, 2, v) }

func setFastOpArg(fop Value, idx int, v Value) error {
	f, ok := fop.(*FastOp)
	if !ok {
		return wrongKind("SetFastOpArg", "fast-op", fop)
	}
	if idx >= f.Argc {
		return &FactoryError{Op: "SetFastOpArg", Want: "index within declared argc"}
	}
	f.Args[idx] = v
	return nil
}

func (h *Heap) HashSet(hv Value, k, v Value) error {
	hh, ok := hv.(*Hash)
	if !ok {
		return wrongKind("HashSet", "hash", hv)
	}
	hh.Keys = append(hh.Keys, k)
	hh.Values = append(hh.Values, v)
	return nil
}

func (h *Heap) FindPackageByName(name string) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.packages[name]
	if !ok {
		return nil, false
	}
	return p, true
}

func (h *Heap) FindSubrByName(name string) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subrs[name]
	if !ok {
		return nil, false
	}
	return s, true
}

// Intern returns the single canonical *Symbol for (name, pkg) when pkg is a
// *Package, creating it on first use — two Intern calls for the same pair
// yield the same pointer, since FASL SYMBOL identity (and therefore
// object-identity tests downstream of READER_REFERENCE) depends on it. A
// nil, Nil or false pkg yields a fresh home-less symbol on every call.
func (h *Heap) Intern(name string, pkg Value) (Value, error) {
	switch p := pkg.(type) {
	case nil:
		return &Symbol{Name: name}, nil
	case Nil:
		return &Symbol{Name: name}, nil
	case Bool:
		if !p.V {
			return &Symbol{Name: name}, nil
		}
		return nil, wrongKind("Intern", "package, nil, or false", pkg)
	case *Package:
		h.mu.Lock()
		defer h.mu.Unlock()
		table, ok := h.symbols[p]
		if !ok {
			table = make(map[string]*Symbol)
			h.symbols[p] = table
		}
		if sym, ok := table[name]; ok {
			return sym, nil
		}
		sym := &Symbol{Name: name, Home: p}
		table[name] = sym
		return sym, nil
	default:
		return nil, wrongKind("Intern", "package, nil, or false", pkg)
	}
}

func (h *Heap) MakeUninternedSymbol(name string) Value {
	return &Symbol{Name: name}
}

func (h *Heap) GloballyBind(sym Value, v Value) error {
	s, ok := sym.(*Symbol)
	if !ok {
		return wrongKind("GloballyBind", "symbol", sym)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals[s] = v
	return nil
}

// Global looks up a binding made via GloballyBind, for tests/inspection.
func (h *Heap) Global(sym *Symbol) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.globals[sym]
	return v, ok
}

func (h *Heap) Apply(proc Value, args []Value) (Value, error) {
	if h.ApplyFunc == nil {
		return nil, &FactoryError{Op: "Apply", Want: "ApplyFunc configured"}
	}
	return h.ApplyFunc(proc, args)
}

func (h *Heap) ResolveStructLayout(v Value) (Value, error) {
	// The reference Heap has no struct-layout registry of its own; FASL
	// streams that use STRUCTURE_LAYOUT against a bare Heap get the raw
	// decoded value back unresolved, which is sufficient for round-trip
	// tests that only check identity/shape, not host type semantics.
	return v, nil
}
