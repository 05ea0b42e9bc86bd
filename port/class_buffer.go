package port

import (
	"bytes"
	"io"
)

// NewBufferClass returns a Class backed by an in-process byte buffer. It is
// the workhorse transport for tests: reads pull from (and writes append to)
// a bytes.Buffer stored in the Port's user data.
func NewBufferClass() *Class {
	return &Class{
		Name: "BUFFER",
		Read: func(p *Port, buf []byte) (int, error) {
			b := p.UserData().(*bytes.Buffer)
			n, err := b.Read(buf)
			if err == io.EOF {
				return n, nil
			}
			return n, err
		},
		Write: func(p *Port, buf []byte) (int, error) {
			b := p.UserData().(*bytes.Buffer)
			return b.Write(buf)
		},
		Length: func(p *Port) (int64, bool) {
			b := p.UserData().(*bytes.Buffer)
			return int64(b.Len()), true
		},
	}
}

// OpenBufferInput opens a binary input port that reads from data.
func OpenBufferInput(name string, data []byte) (*Port, error) {
	buf := bytes.NewBuffer(append([]byte(nil), data...))
	return Open(NewBufferClass(), name, Input|Binary, nil, buf, nil)
}

// OpenBufferOutput opens a binary output port that writes into an internal
// buffer; use BufferContents to retrieve what has been written.
func OpenBufferOutput(name string) (*Port, error) {
	buf := &bytes.Buffer{}
	return Open(NewBufferClass(), name, Output|Binary, nil, buf, nil)
}

// BufferContents returns the bytes accumulated by a port opened with
// OpenBufferOutput (or remaining to be read from OpenBufferInput).
func BufferContents(p *Port) []byte {
	return p.UserData().(*bytes.Buffer).Bytes()
}
