package port

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinaryFixnumRoundTrip(t *testing.T) {
	p, err := OpenBufferOutput("out")
	require.NoError(t, err)

	_, err = p.WriteBinaryFixnum(-42, 1)
	require.NoError(t, err)
	_, err = p.WriteBinaryFixnum(40000, 2)
	require.NoError(t, err)

	data := BufferContents(p)

	in, err := OpenBufferInput("in", data)
	require.NoError(t, err)

	v, ok, err := in.ReadBinaryFixnum(1, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, -42, v)

	v, ok, err = in.ReadBinaryFixnum(2, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 40000, v)
}

func TestBinaryFixnumEOF(t *testing.T) {
	p, err := OpenBufferInput("in", []byte{0x01})
	require.NoError(t, err)

	_, ok, err := p.ReadBinaryFixnum(4, true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBinaryFlonumRoundTrip(t *testing.T) {
	out, err := OpenBufferOutput("out")
	require.NoError(t, err)
	_, err = out.WriteBinaryFlonum(3.14159)
	require.NoError(t, err)

	in, err := OpenBufferInput("in", BufferContents(out))
	require.NoError(t, err)
	v, ok, err := in.ReadBinaryFlonum()
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 3.14159, v, 1e-12)
}

func TestCRLFTranslationInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []rune
	}{
		{"bare-cr", "\r", []rune{'\n'}},
		{"bare-lf", "\n", []rune{'\n'}},
		{"crlf", "\r\n", []rune{'\n'}},
		{"lfcr", "\n\r", []rune{'\n', '\r'}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := Open(textBufferClass([]byte(c.in)), "in", Input, nil, newRuneBuf([]byte(c.in)), NewOptions().SetCRLFTranslate(true))
			require.NoError(t, err)

			var got []rune
			for {
				ch, err := p.ReadChar()
				require.NoError(t, err)
				if ch == -1 {
					break
				}
				got = append(got, ch)
			}
			require.Equal(t, c.want, got)
		})
	}
}

func TestPeekIsIdempotent(t *testing.T) {
	p, err := Open(textBufferClass([]byte("ab")), "in", Input, nil, newRuneBuf([]byte("ab")), nil)
	require.NoError(t, err)

	ch1, err := p.PeekChar()
	require.NoError(t, err)
	ch2, err := p.PeekChar()
	require.NoError(t, err)
	require.Equal(t, ch1, ch2)
	require.Equal(t, 'a', ch1)

	ch3, err := p.ReadChar()
	require.NoError(t, err)
	require.Equal(t, 'a', ch3)
}

func TestUnreadOverflow(t *testing.T) {
	p, err := Open(textBufferClass(nil), "in", Input, nil, newRuneBuf(nil), nil)
	require.NoError(t, err)

	for i := 0; i < UnreadBufferSize; i++ {
		require.NoError(t, p.UnreadChar('x'))
	}
	err = p.UnreadChar('x')
	require.ErrorIs(t, err, ErrUnreadOverflow)
}

func TestCRLFTranslationOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	out, err := Open(NewBufferClass(), "out", Output, nil, buf, NewOptions().SetCRLFTranslate(true))
	require.NoError(t, err)

	_, err = out.WriteText([]rune("a\nb"))
	require.NoError(t, err)

	require.Equal(t, "a\r\nb", buf.String())
}

func TestRowColumnTracking(t *testing.T) {
	text := "ab\ncd"
	p, err := Open(textBufferClass([]byte(text)), "in", Input, nil, newRuneBuf([]byte(text)), nil)
	require.NoError(t, err)

	for range text {
		_, err := p.ReadChar()
		require.NoError(t, err)
	}

	_, row, col, _ := p.Location()
	require.Equal(t, 2, row)
	require.Equal(t, 2, col)
}

func TestCloseIsIdempotentError(t *testing.T) {
	p, err := OpenNull()
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Close(), ErrClosed)
}

// --- helpers: a minimal byte-slice-backed text Class for the CRLF tests ---

type runeBuf struct {
	data []byte
	pos  int
}

func newRuneBuf(data []byte) *runeBuf {
	return &runeBuf{data: data}
}

func textBufferClass(_ []byte) *Class {
	return &Class{
		Name: "TEXTBUF",
		Read: func(p *Port, buf []byte) (int, error) {
			rb := p.UserData().(*runeBuf)
			if rb.pos >= len(rb.data) {
				return 0, nil
			}
			n := copy(buf, rb.data[rb.pos:])
			rb.pos += n
			return n, nil
		},
		Write: func(p *Port, buf []byte) (int, error) {
			rb := p.UserData().(*runeBuf)
			rb.data = append(rb.data, buf...)
			return len(buf), nil
		},
	}
}
