package port

import (
	"io"

	"github.com/DataDog/zstd"
)

// zstdState holds the underlying compressed-byte source/sink plus the
// streaming (de)compressor wrapped around it.
type zstdState struct {
	under  *Port
	reader io.ReadCloser
	writer io.WriteCloser
}

// NewZstdClass returns a Class that transparently zstd-compresses writes
// and decompresses reads against an underlying binary Port. This gives the
// FASL decoder a second concrete Class beside the null port (io.cpp's
// null_port_class), exercising the "dispatch table as capability record"
// design: the decoder never knows or cares that bytes are passing through
// a decompressor before it sees them.
func NewZstdClass() *Class {
	return &Class{
		Name: "ZSTD",
		Read: func(p *Port, buf []byte) (int, error) {
			st := p.UserData().(*zstdState)
			if st.reader == nil {
				st.reader = zstd.NewReader(&portReader{st.under})
			}
			n, err := st.reader.Read(buf)
			if err == io.EOF {
				return n, nil
			}
			return n, err
		},
		Write: func(p *Port, buf []byte) (int, error) {
			st := p.UserData().(*zstdState)
			if st.writer == nil {
				st.writer = zstd.NewWriter(&portWriter{st.under})
			}
			return st.writer.Write(buf)
		},
		Flush: func(p *Port) error {
			st := p.UserData().(*zstdState)
			if st.writer != nil {
				return st.writer.Close()
			}
			return nil
		},
		Close: func(p *Port) error {
			st := p.UserData().(*zstdState)
			var err error
			if st.reader != nil {
				err = st.reader.Close()
			}
			if st.writer != nil {
				if werr := st.writer.Close(); werr != nil && err == nil {
					err = werr
				}
			}
			if cerr := st.under.Close(); cerr != nil && err == nil {
				err = cerr
			}
			return err
		},
	}
}

// OpenZstd wraps an already-open binary Port with zstd framing: reads off
// the returned Port yield decompressed bytes, writes are compressed before
// reaching under.
func OpenZstd(under *Port, mode Mode) (*Port, error) {
	return Open(NewZstdClass(), under.Name(), mode|Binary, nil, &zstdState{under: under}, nil)
}

// portReader/portWriter adapt a *Port to io.Reader/io.Writer so the zstd
// streaming codec (which wants stdlib io interfaces) can sit on top of it.
type portReader struct{ p *Port }

func (r *portReader) Read(buf []byte) (int, error) {
	n, err := r.p.ReadRaw(buf)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type portWriter struct{ p *Port }

func (w *portWriter) Write(buf []byte) (int, error) {
	return w.p.WriteRaw(buf)
}
