package port

import "fmt"

// Error wraps a port-level failure with a short message and, where known,
// an underlying cause. It mirrors the error shape used throughout this
// repository: a message plus an Unwrap-able cause, rather than bare
// fmt.Errorf strings.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		msg := e.msg
		if e.err != nil {
			msg += ": " + e.err.Error()
		}
		return msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

func wrapErr(msg string, e error) error {
	if e == nil {
		return nil
	}
	return Error{msg: msg, err: e}
}

func errf(format string, args ...interface{}) error {
	return Error{msg: fmt.Sprintf(format, args...)}
}

var (
	// ErrClosed is returned by any operation attempted on a closed port.
	ErrClosed = Error{msg: "port already closed"}

	// ErrUnreadOverflow is returned when the small unread buffer on a text
	// port would need to hold more than UnreadBufferSize characters.
	ErrUnreadOverflow = Error{msg: "unget buffer exceeded"}

	// ErrBinaryUnread is returned when Unread/Peek-style operations are
	// attempted on a binary port; binary ports carry no translation state.
	ErrBinaryUnread = Error{msg: "cannot unread on binary ports"}

	// ErrRawOnText is returned when a raw binary operation (ReadBinaryFixnum,
	// ReadBinaryFlonum, ...) is attempted on a text-mode port.
	ErrRawOnText = Error{msg: "raw port operations not supported on text ports"}

	// ErrNoWriter / ErrNoReader are returned when the port's Class does not
	// implement the requested direction.
	ErrNoWriter = Error{msg: "port class does not support writing"}
	ErrNoReader = Error{msg: "port class does not support reading"}
)
