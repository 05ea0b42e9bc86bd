package value

import "fmt"

// Factory is the host-provided value-constructor contract (C3). The FASL
// decoder talks to a Factory exclusively through these methods; it never
// knows Value's concrete layout. Mutators exist because composite values
// must be installed into the definition table before their children are
// decoded (the READER_DEFINITION out-parameter contract) — the decoder
// allocates the empty shape, publishes it, then mutates it in place as
// fields arrive.
type Factory interface {
	NewNil() Value
	NewBool(v bool) Value
	NewChar(c rune) Value
	NewFixnum(v int64) Value
	NewFlonum(v float64) Value
	NewComplex(re, im float64) Value
	NewString(runes []rune) Value
	NewCons(car, cdr Value) Value
	NewVector(n int) Value
	NewStructure(meta Value, n int) Value
	NewHash(shallow bool) Value
	NewInstance(proto Value, slotNames []string) (Value, error)
	NewClosure(env, code, props Value) Value
	NewMacro(closure Value) Value
	NewFastOp(opcode int64, argc int) (Value, error)
	NewEOF() Value
	NewUnbound() Value

	SetCar(cons Value, v Value) error
	SetCdr(cons Value, v Value) error
	SetVectorElem(vec Value, i int, v Value) error
	SetStructureElem(st Value, i int, v Value) error
	SetInstanceSlot(inst Value, name string, v Value) error
	// CloneInstance makes a positional copy of proto (fast_read_instance):
	// same slot layout, slots 1..n overwritten by the caller afterward.
	CloneInstance(proto Value) (Value, error)
	SetInstanceSlotIndex(inst Value, i int, v Value) error
	SetFastOpArg1(fop Value, v Value) error
	SetFastOpArg2(fop Value, v Value) error
	SetFastOpArg3(fop Value, v Value) error
	HashSet(h Value, k, v Value) error

	FindPackageByName(name string) (Value, bool)
	FindSubrByName(name string) (Value, bool)
	Intern(name string, pkg Value) (Value, error)
	MakeUninternedSymbol(name string) Value
	GloballyBind(sym Value, v Value) error
	Apply(proc Value, args []Value) (Value, error)
	ResolveStructLayout(v Value) (Value, error)
}

// FactoryError reports a constructor/mutator precondition violation (wrong
// Kind passed where a specific one was required), analogous to a host
// type-check trap.
type FactoryError struct {
	Op   string
	Want string
	Got  Kind
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Op, e.Want, e.Got)
}

func wrongKind(op, want string, got Value) error {
	k := KindNil
	if got != nil {
		k = got.Kind()
	}
	return &FactoryError{Op: op, Want: want, Got: k}
}
