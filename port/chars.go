package port

// ReadChar reads one character. Binary ports return one raw byte verbatim.
// Text ports first drain the unread buffer (LIFO), then read one raw byte
// and apply CRLF translation: a CR is reported as '\n' and arms needsLF; if
// needsLF is armed and the next character is '\n', that '\n' is swallowed
// (read again, recursively) so it isn't double-counted against position.
// Returns -1 at EOF.
func (p *Port) ReadChar() (rune, error) {
	if err := p.requireOpenFor(Input); err != nil {
		return -1, err
	}

	var ch rune = -1

	if !p.IsBinary() && p.text.unreadValid > 0 {
		p.text.unreadValid--
		ch = p.text.unreadBuffer[p.text.unreadValid]
	} else {
		var buf [1]byte
		n, err := p.ReadRaw(buf[:])
		if err != nil {
			return -1, err
		}
		if n == 0 {
			return -1, nil
		}
		ch = rune(buf[0])

		if !p.IsBinary() {
			if p.text.crlfTranslate {
				switch {
				case ch == '\r':
					ch = '\n'
					p.text.needsLF = true
				case p.text.needsLF:
					p.text.needsLF = false
					if ch == '\n' {
						// Swallow the paired LF; re-read so the position
						// counters below aren't double-counted.
						return p.ReadChar()
					}
				}
			}
		}
	}

	if !p.IsBinary() {
		if ch == '\n' {
			p.text.row++
			p.text.previousLineLength = p.text.column
			p.text.column = 0
		} else {
			p.text.column++
		}
	}

	return ch, nil
}

// UnreadChar pushes ch back onto the bounded unread buffer, rewinding
// position counters to match. Binary ports cannot unread.
func (p *Port) UnreadChar(ch rune) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.IsBinary() {
		return ErrBinaryUnread
	}

	if p.text.unreadValid >= UnreadBufferSize {
		return ErrUnreadOverflow
	}

	switch ch {
	case '\n':
		p.text.row--
		p.text.column = p.text.previousLineLength
	case '\r':
		// no-op for counters
	default:
		p.text.column--
	}

	p.text.unreadBuffer[p.text.unreadValid] = ch
	p.text.unreadValid++

	return nil
}

// PeekChar reads one character then immediately unreads it. Idempotent:
// repeated peeks return the same character without advancing position.
func (p *Port) PeekChar() (rune, error) {
	ch, err := p.ReadChar()
	if err != nil {
		return -1, err
	}
	if ch == -1 {
		return -1, nil
	}
	if err := p.UnreadChar(ch); err != nil {
		return -1, err
	}
	return ch, nil
}

// WriteChar writes one character, translating it if the port is a
// CRLF-translating text port, and flushes immediately on '\n' for text
// ports (matching line-buffered terminal semantics).
func (p *Port) WriteChar(ch rune) error {
	if _, err := p.WriteText([]rune{ch}); err != nil {
		return err
	}
	if !p.IsBinary() && ch == '\n' {
		return p.Flush()
	}
	return nil
}

// WriteText writes a run of characters, applying CRLF translation for
// text ports in translate mode: '\n' becomes "\r\n", a bare '\r' is
// emitted and arms needsLF (so a following '\n' is swallowed rather than
// doubled). Binary ports, and non-translating text ports, write straight
// through (still tracking row/column on non-translating text ports).
func (p *Port) WriteText(buf []rune) (int, error) {
	if err := p.requireOpenFor(Output); err != nil {
		return 0, err
	}

	if p.IsBinary() {
		return p.writeRunesRaw(buf)
	}

	if !p.text.crlfTranslate {
		for _, c := range buf {
			if c == '\n' {
				p.text.row++
				p.text.column = 0
			} else {
				p.text.column++
			}
		}
		return p.writeRunesRaw(buf)
	}

	total := 0
	i := 0
	for i < len(buf) {
		if p.text.needsLF {
			if buf[i] == '\n' {
				i++
			}
			n, err := p.writeRunesRaw([]rune{'\n'})
			total += n
			if err != nil {
				return total, err
			}
			p.text.needsLF = false
			p.text.row++
			continue
		}

		switch buf[i] {
		case '\n':
			n, err := p.writeRunesRaw([]rune{'\r', '\n'})
			total += n
			if err != nil {
				return total, err
			}
			p.text.column = 0
			p.text.row++
			i++
		case '\r':
			n, err := p.writeRunesRaw([]rune{'\r'})
			total += n
			if err != nil {
				return total, err
			}
			p.text.column = 0
			p.text.needsLF = true
			i++
		default:
			start := i
			for i < len(buf) && buf[i] != '\n' && buf[i] != '\r' {
				i++
			}
			n, err := p.writeRunesRaw(buf[start:i])
			total += n
			p.text.column += i - start
			if err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

func (p *Port) writeRunesRaw(buf []rune) (int, error) {
	raw := make([]byte, len(buf))
	for i, c := range buf {
		raw[i] = byte(c)
	}
	n, err := p.WriteRaw(raw)
	return n, err
}

// WriteString is a convenience wrapper over WriteText for Go strings.
func (p *Port) WriteString(s string) (int, error) {
	return p.WriteText([]rune(s))
}
