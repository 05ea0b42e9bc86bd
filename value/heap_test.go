package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsMutation(t *testing.T) {
	h := NewHeap()
	c := h.NewCons(h.NewNil(), h.NewNil())
	require.NoError(t, h.SetCar(c, h.NewFixnum(7)))
	require.NoError(t, h.SetCdr(c, h.NewFixnum(8)))

	cons := c.(*Cons)
	require.Equal(t, int64(7), cons.Car.(Fixnum).V)
	require.Equal(t, int64(8), cons.Cdr.(Fixnum).V)
}

func TestCycleViaSetCar(t *testing.T) {
	h := NewHeap()
	c := h.NewCons(h.NewNil(), h.NewNil())
	require.NoError(t, h.SetCar(c, c))
	require.Same(t, c, c.(*Cons).Car)
}

func TestVectorBounds(t *testing.T) {
	h := NewHeap()
	v := h.NewVector(2)
	require.NoError(t, h.SetVectorElem(v, 0, h.NewFixnum(1)))
	err := h.SetVectorElem(v, 2, h.NewFixnum(1))
	require.Error(t, err)
}

func TestInstanceMapThenClone(t *testing.T) {
	h := NewHeap()
	proto, err := h.NewInstance(h.NewBool(false), []string{"x", "y"})
	require.NoError(t, err)
	require.NoError(t, h.SetInstanceSlot(proto, "x", h.NewFixnum(1)))

	clone, err := h.CloneInstance(proto)
	require.NoError(t, err)
	require.NoError(t, h.SetInstanceSlotIndex(clone, 1, h.NewFixnum(99)))

	p := proto.(*Instance)
	cl := clone.(*Instance)
	require.Equal(t, int64(1), p.Slots[0].(Fixnum).V)
	require.Equal(t, int64(99), cl.Slots[1].(Fixnum).V)
}

func TestInternVsUninterned(t *testing.T) {
	h := NewHeap()
	pkg := h.RegisterPackage("USER")

	sym, err := h.Intern("foo", pkg)
	require.NoError(t, err)
	s := sym.(*Symbol)
	require.Equal(t, "USER", s.Home.Name)

	un := h.MakeUninternedSymbol("bar")
	require.Nil(t, un.(*Symbol).Home)
}

func TestInternReturnsSamePointer(t *testing.T) {
	h := NewHeap()
	pkg := h.RegisterPackage("USER")

	a, err := h.Intern("foo", pkg)
	require.NoError(t, err)
	b, err := h.Intern("foo", pkg)
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestGloballyBindAndApply(t *testing.T) {
	h := NewHeap()
	h.ApplyFunc = func(proc Value, args []Value) (Value, error) {
		return h.NewFixnum(int64(len(args))), nil
	}

	sym := h.MakeUninternedSymbol("x").(*Symbol)
	require.NoError(t, h.GloballyBind(sym, h.NewFixnum(5)))
	v, ok := h.Global(sym)
	require.True(t, ok)
	require.Equal(t, int64(5), v.(Fixnum).V)

	result, err := h.Apply(nil, []Value{h.NewFixnum(1), h.NewFixnum(2)})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.(Fixnum).V)
}
