package matcher

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"
)

// Bytes adapts an owned buffer. The buffer must not change during a match.
func Bytes(b []byte) io.ByteScanner { return bytes.NewReader(b) }

// BytesCopy adapts a borrowed buffer by copying it first.
func BytesCopy(b []byte) io.ByteScanner { return bytes.NewReader(bytes.Clone(b)) }

// String adapts text as its UTF-8 bytes.
func String(s string) io.ByteScanner { return strings.NewReader(s) }

// Reader adapts r without reading ahead of the match: readers that can
// already unread are returned as-is, byte readers get a one-byte pushback
// and anything else is read one byte per call.
func Reader(r io.Reader) io.ByteScanner {
	switch rr := r.(type) {
	case io.ByteScanner:
		return rr
	case io.ByteReader:
		return Pushback(rr)
	}
	return Pushback(&singleByteReader{r: r})
}

var errInvalidUnread = errors.New("matcher: invalid UnreadByte")

// PushbackSource gives any io.ByteReader room for one unread byte, so a
// prefix match leaves the following byte for the next read.
type PushbackSource struct {
	r        io.ByteReader
	last     byte
	haveLast bool
	unread   bool
}

func Pushback(r io.ByteReader) *PushbackSource {
	return &PushbackSource{r: r}
}

func (p *PushbackSource) ReadByte() (byte, error) {
	if p.unread {
		p.unread = false
		return p.last, nil
	}
	b, err := p.r.ReadByte()
	if err != nil {
		p.haveLast = false
		return 0, err
	}
	p.last, p.haveLast = b, true
	return b, nil
}

// UnreadByte pushes back the last byte read. Only one byte can be pending.
func (p *PushbackSource) UnreadByte() error {
	if !p.haveLast || p.unread {
		return errInvalidUnread
	}
	p.unread = true
	return nil
}

type singleByteReader struct {
	r   io.Reader
	buf [1]byte
	err error
}

func (s *singleByteReader) ReadByte() (byte, error) {
	for s.err == nil {
		n, err := s.r.Read(s.buf[:])
		s.err = err
		if n == 1 {
			return s.buf[0], nil
		}
	}
	return 0, s.err
}

// SeqSource pulls from a sequence of (byte, error) pairs. A non-nil error
// element is returned as-is from ReadByte; the end of the sequence is
// io.EOF. Close releases the underlying iterator.
type SeqSource struct {
	next     func() (byte, error, bool)
	stop     func()
	last     byte
	haveLast bool
	unread   bool
	done     bool
}

// Seq adapts a fallible byte sequence.
func Seq(seq iter.Seq2[byte, error]) *SeqSource {
	next, stop := iter.Pull2(seq)
	return &SeqSource{next: next, stop: stop}
}

func (s *SeqSource) ReadByte() (byte, error) {
	if s.unread {
		s.unread = false
		return s.last, nil
	}
	if s.done {
		return 0, io.EOF
	}
	b, err, ok := s.next()
	if !ok {
		s.done = true
		s.haveLast = false
		return 0, io.EOF
	}
	if err != nil {
		s.haveLast = false
		return 0, err
	}
	s.last, s.haveLast = b, true
	return b, nil
}

// UnreadByte pushes back the last byte read. Only one byte can be pending.
func (s *SeqSource) UnreadByte() error {
	if !s.haveLast || s.unread {
		return errInvalidUnread
	}
	s.unread = true
	return nil
}

func (s *SeqSource) Close() error {
	s.stop()
	s.done = true
	return nil
}

// LowerASCII folds A-Z to a-z as bytes are read. Rule sets whose literals
// were lowercased need their input folded the same way.
func LowerASCII(src io.ByteScanner) io.ByteScanner {
	return lowerASCII{src}
}

type lowerASCII struct{ io.ByteScanner }

func (l lowerASCII) ReadByte() (byte, error) {
	b, err := l.ByteScanner.ReadByte()
	if err == nil && 'A' <= b && b <= 'Z' {
		b += 'a' - 'A'
	}
	return b, err
}
