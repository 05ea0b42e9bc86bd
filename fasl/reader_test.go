package fasl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daedaluz/scanlisp/port"
	"github.com/daedaluz/scanlisp/value"
)

// streamBuilder assembles a FASL byte stream using the same opcode/fixnum
// encoding the Reader decodes, so tests read like the wire format they
// exercise instead of raw byte literals.
type streamBuilder struct {
	t *testing.T
	p *port.Port
}

func newStream(t *testing.T) *streamBuilder {
	t.Helper()
	p, err := port.OpenBufferOutput("test-out")
	require.NoError(t, err)
	return &streamBuilder{t: t, p: p}
}

func (s *streamBuilder) op(o Opcode) *streamBuilder {
	_, err := s.p.WriteRaw([]byte{byte(o)})
	require.NoError(s.t, err)
	return s
}

func (s *streamBuilder) fixnum(v int64) *streamBuilder {
	s.op(OpFix64)
	_, err := s.p.WriteBinaryFixnum(v, 8)
	require.NoError(s.t, err)
	return s
}

func (s *streamBuilder) char(c rune) *streamBuilder {
	s.op(OpCharacter)
	_, err := s.p.WriteBinaryFixnum(int64(c), 1)
	require.NoError(s.t, err)
	return s
}

func (s *streamBuilder) str(str string) *streamBuilder {
	s.op(OpString)
	s.fixnum(int64(len(str)))
	_, err := s.p.WriteRaw([]byte(str))
	require.NoError(s.t, err)
	return s
}

func (s *streamBuilder) tableIndex(i int) *streamBuilder {
	return s.fixnum(int64(i))
}

func (s *streamBuilder) reader(t *testing.T) (*port.Port, *value.Heap) {
	t.Helper()
	in, err := port.OpenBufferInput("test-in", port.BufferContents(s.p))
	require.NoError(t, err)
	return in, value.NewHeap()
}

func TestReadAtoms(t *testing.T) {
	s := newStream(t)
	s.op(OpNil)
	s.op(OpTrue)
	s.op(OpFalse)
	s.char('x')
	s.fixnum(42)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Nil{}, v)

	v, err = r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Bool{V: true}, v)

	v, err = r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Bool{V: false}, v)

	v, err = r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Char{V: 'x'}, v)

	v, err = r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Fixnum{V: 42}, v)

	_, err = r.ReadValue(in)
	require.NoError(t, err)
}

func TestReadString(t *testing.T) {
	s := newStream(t)
	s.str("hi")

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	str, ok := v.(*value.String)
	require.True(t, ok)
	require.Equal(t, "hi", str.String())
}

func TestReadProperList(t *testing.T) {
	s := newStream(t)
	s.op(OpList)
	s.fixnum(3)
	s.fixnum(1)
	s.fixnum(2)
	s.fixnum(3)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)

	var got []int64
	cur := v
	for {
		if _, ok := cur.(value.Nil); ok {
			break
		}
		cons, ok := cur.(*value.Cons)
		require.True(t, ok)
		got = append(got, cons.Car.(value.Fixnum).V)
		cur = cons.Cdr
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestReadDottedList(t *testing.T) {
	s := newStream(t)
	s.op(OpListD)
	s.fixnum(1)
	s.fixnum(1)
	s.fixnum(2)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	cons, ok := v.(*value.Cons)
	require.True(t, ok)
	require.Equal(t, value.Fixnum{V: 1}, cons.Car)
	require.Equal(t, value.Fixnum{V: 2}, cons.Cdr)
}

// TestSharedStructure exercises object identity via READER_REFERENCE: a
// vector of two elements, both pointing at the same defined cons cell.
func TestSharedStructure(t *testing.T) {
	s := newStream(t)
	s.op(OpVector)
	s.fixnum(2)
	s.op(OpReaderDefinition)
	s.tableIndex(0)
	s.op(OpList)
	s.fixnum(1)
	s.fixnum(99)
	s.op(OpReaderReference)
	s.tableIndex(0)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	vec, ok := v.(*value.Vector)
	require.True(t, ok)
	require.Len(t, vec.Elems, 2)
	require.Same(t, vec.Elems[0], vec.Elems[1])
}

// TestCyclicList builds a one-element list whose sole element is itself —
// the canonical case that requires the table slot to be installed with the
// in-progress container before its children are decoded, not after.
func TestCyclicList(t *testing.T) {
	s := newStream(t)
	s.op(OpReaderDefinition)
	s.tableIndex(0)
	s.op(OpList)
	s.fixnum(1)
	s.op(OpReaderReference)
	s.tableIndex(0)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	cons, ok := v.(*value.Cons)
	require.True(t, ok)
	require.Same(t, cons, cons.Car)
}

// TestCyclicVector mirrors TestCyclicList for a self-referencing vector,
// confirming the install-before-recurse contract holds for every composite
// decoder, not just lists.
func TestCyclicVector(t *testing.T) {
	s := newStream(t)
	s.op(OpReaderDefinition)
	s.tableIndex(0)
	s.op(OpVector)
	s.fixnum(1)
	s.op(OpReaderReference)
	s.tableIndex(0)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	vec, ok := v.(*value.Vector)
	require.True(t, ok)
	require.Same(t, vec, vec.Elems[0])
}

func TestTableGrowsPastDefault(t *testing.T) {
	idx := DefaultTableSize + 5
	s := newStream(t)
	s.op(OpReaderDefinition)
	s.tableIndex(idx)
	s.fixnum(7)
	s.op(OpReaderReference)
	s.tableIndex(idx)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Fixnum{V: 7}, v)

	st := stateFor(in)
	require.GreaterOrEqual(t, st.table.Capacity(), idx+1)
}

func TestResetReaderDefs(t *testing.T) {
	s := newStream(t)
	s.op(OpReaderDefinition)
	s.tableIndex(0)
	s.fixnum(1)
	s.op(OpResetReaderDefs)
	s.op(OpReaderReference)
	s.tableIndex(0)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	v, err := r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Fixnum{V: 1}, v)

	v, err = r.ReadValue(in)
	require.NoError(t, err)
	require.Equal(t, value.Nil{}, v)
}

func TestLoaderOpsRejectedOutsideLoad(t *testing.T) {
	s := newStream(t)
	s.op(OpLoaderPush)

	in, heap := s.reader(t)
	r := NewReader(heap, nil)

	_, err := r.ReadValue(in)
	require.Error(t, err)
	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, Usage, ferr.Kind)
}

func TestLoaderDefineAndApply(t *testing.T) {
	heap := value.NewHeap()
	pkg := heap.RegisterPackage("USER")
	subr := heap.RegisterSubr("+")
	heap.ApplyFunc = func(proc value.Value, args []value.Value) (value.Value, error) {
		sum := int64(0)
		for _, a := range args {
			sum += a.(value.Fixnum).V
		}
		return value.Fixnum{V: sum}, nil
	}

	s := newStream(t)
	// LOADER_DEFINEQ sym <value>
	s.op(OpLoaderDefineQ)
	s.op(OpSymbol)
	s.str("X")
	s.op(OpPackage)
	s.str(pkg.Name)
	s.fixnum(5)

	// LOADER_APPLYN proc argc <args popped from loader stack>
	s.op(OpLoaderPush) // push current accumulator (nil) so stack isn't empty for Drop test below, ignored
	s.op(OpLoaderDrop)
	s.op(OpLoaderApplyN)
	s.op(OpSubr)
	s.str(subr.Name)
	s.fixnum(0)

	in, _ := s.reader(t)
	r := NewReader(heap, nil)

	require.NoError(t, r.Load(in))

	symV, err := heap.Intern("X", pkg)
	require.NoError(t, err)
	bound, ok := heap.Global(symV.(*value.Symbol))
	require.True(t, ok)
	require.Equal(t, value.Fixnum{V: 5}, bound)
}
