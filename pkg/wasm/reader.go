package wasm

import "unicode/utf8"

// reader is a byte-offset cursor over module data. Every failure is
// reported as a *MalformedError carrying the offset where it was detected.
type reader struct {
	data []byte
	off  int
	end  int // exclusive bound for the current region
}

func newReader(data []byte) *reader {
	return &reader{data: data, end: len(data)}
}

func (r *reader) remaining() int {
	return r.end - r.off
}

func (r *reader) readByte(what string) (byte, error) {
	if r.off >= r.end {
		return 0, malformed(r.off, ErrTruncated, "reading %s", what)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) readBytes(n int, what string) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, malformed(r.off, ErrTruncated, "reading %d bytes of %s", n, what)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) readU32(what string) (uint32, error) {
	v, n, err := Uvarint32(r.data[:r.end], r.off)
	if err != nil {
		return 0, malformed(r.off, err, "reading %s", what)
	}
	r.off += n
	return v, nil
}

func (r *reader) readI32(what string) (int32, error) {
	v, n, err := Varint32(r.data[:r.end], r.off)
	if err != nil {
		return 0, malformed(r.off, err, "reading %s", what)
	}
	r.off += n
	return v, nil
}

// readCount reads a vector length and rejects counts that cannot possibly
// fit in the remaining bytes, given a minimum encoded size per element.
func (r *reader) readCount(what string, minSize int) (uint32, error) {
	start := r.off
	n, err := r.readU32(what)
	if err != nil {
		return 0, err
	}
	if minSize > 0 && int(n) > r.remaining()/minSize {
		return 0, malformed(start, ErrTruncated, "%s %d exceeds remaining payload", what, n)
	}
	return n, nil
}

func (r *reader) readName(what string) (string, error) {
	start := r.off
	n, err := r.readU32(what + " length")
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n), what)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", malformed(start, nil, "%s is not valid UTF-8", what)
	}
	return string(b), nil
}

func (r *reader) readValueType(what string) (ValueType, error) {
	start := r.off
	b, err := r.readByte(what)
	if err != nil {
		return 0, err
	}
	t := ValueType(b)
	if !t.IsNumeric() {
		return 0, malformed(start, nil, "unknown value type 0x%02x for %s", b, what)
	}
	return t, nil
}

func (r *reader) readLimits(what string) (Limits, error) {
	start := r.off
	flag, err := r.readByte(what + " limits flag")
	if err != nil {
		return Limits{}, err
	}
	if flag > 1 {
		return Limits{}, malformed(start, nil, "invalid %s limits flag 0x%02x", what, flag)
	}
	var l Limits
	if l.Min, err = r.readU32(what + " initial pages"); err != nil {
		return Limits{}, err
	}
	if flag == 1 {
		l.HasMax = true
		if l.Max, err = r.readU32(what + " maximum pages"); err != nil {
			return Limits{}, err
		}
	}
	return l, nil
}

func (r *reader) readGlobalType() (GlobalType, error) {
	t, err := r.readValueType("global type")
	if err != nil {
		return GlobalType{}, err
	}
	start := r.off
	mut, err := r.readByte("global mutability")
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, malformed(start, nil, "invalid global mutability 0x%02x", mut)
	}
	return GlobalType{Type: t, Mutable: mut == 1}, nil
}

// expect consumes one byte and checks it against want.
func (r *reader) expect(want byte, what string) error {
	start := r.off
	b, err := r.readByte(what)
	if err != nil {
		return err
	}
	if b != want {
		return malformed(start, nil, "expected %s (0x%02x), found 0x%02x", what, want, b)
	}
	return nil
}

// sub returns a reader bounded to the next n bytes and advances r past them.
func (r *reader) sub(n int, what string) (*reader, error) {
	if n < 0 || n > r.remaining() {
		return nil, malformed(r.off, ErrTruncated, "%s of %d bytes overruns its container", what, n)
	}
	s := &reader{data: r.data, off: r.off, end: r.off + n}
	r.off += n
	return s, nil
}
