//go:build unix

package port

import "syscall"

// fdState is the per-port state an fd-backed Class keeps in UserData:
// the raw file descriptor, adapted from the teacher's Port struct (which
// kept the fd directly on the serial Port). Here it lives behind the
// generic Class/Port split so the same Class value can back many ports.
type fdState struct {
	fd int
}

// NewFDClass returns a Class backed directly by a raw OS file descriptor,
// using syscall.Read/Write/Close the way the teacher's serial.Port did for
// tty devices. Unlike the teacher, this class is transport-agnostic: it
// works for any already-open fd (a regular file, a pipe, a socket), not
// just a serial line, and carries none of the termios-specific ioctl
// plumbing the teacher used for baud rate and line discipline control.
func NewFDClass() *Class {
	return &Class{
		Name: "FD",
		Read: func(p *Port, buf []byte) (int, error) {
			st := p.UserData().(*fdState)
			n, err := syscall.Read(st.fd, buf)
			if err != nil {
				return n, wrapErr("read", err)
			}
			return n, nil
		},
		Write: func(p *Port, buf []byte) (int, error) {
			st := p.UserData().(*fdState)
			n, err := syscall.Write(st.fd, buf)
			if err != nil {
				return n, wrapErr("write", err)
			}
			return n, nil
		},
		Close: func(p *Port) error {
			st := p.UserData().(*fdState)
			if st.fd < 0 {
				return nil
			}
			fd := st.fd
			st.fd = -1
			return wrapErr("close", syscall.Close(fd))
		},
	}
}

// OpenFD opens a binary port over an existing, already-open file
// descriptor. The caller retains ownership of name resolution; Close on
// the returned Port closes fd.
func OpenFD(name string, fd int, mode Mode) (*Port, error) {
	return Open(NewFDClass(), name, mode|Binary, nil, &fdState{fd: fd}, nil)
}

// OpenFile opens name via syscall.Open with the given flags, the same way
// the teacher's serial.Open did, and wraps the resulting fd as a binary
// Port.
func OpenFile(name string, flags int, perm uint32) (*Port, error) {
	fd, err := syscall.Open(name, flags, perm)
	if err != nil {
		return nil, wrapErr("opening "+name, err)
	}
	mode := Mode(0)
	switch flags & (syscall.O_RDONLY | syscall.O_WRONLY | syscall.O_RDWR) {
	case syscall.O_RDONLY:
		mode = Input
	case syscall.O_WRONLY:
		mode = Output
	default:
		mode = InputOutput
	}
	return OpenFD(name, fd, mode)
}
