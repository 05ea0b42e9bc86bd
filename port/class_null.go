package port

// NewNullClass returns a Class whose input side always reports EOF and
// whose output side accepts and discards every write. Adapted from the
// original io.cpp null_port_class: a minimal Class, useful as a
// placeholder port and in tests that don't care about the underlying
// transport.
func NewNullClass() *Class {
	return &Class{
		Name: "NULL",
		Read: func(p *Port, buf []byte) (int, error) {
			return 0, nil
		},
		Write: func(p *Port, buf []byte) (int, error) {
			return len(buf), nil
		},
	}
}

// OpenNull opens an input/output binary port backed by NewNullClass.
func OpenNull() (*Port, error) {
	return Open(NewNullClass(), "", InputOutput|Binary, nil, nil, nil)
}
