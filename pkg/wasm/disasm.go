package wasm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Line is one row of an annotated disassembly.
type Line struct {
	Offset  int    // offset of the first byte in Bytes
	Bytes   []byte // raw bytes covered by the row (may be empty)
	Comment string // annotation
	Gap     int    // blank lines to print before the row
}

// bytesPerRow is the width of string and memory dumps.
const bytesPerRow = 8

var errStop = errors.New("disassembly stopped")

type disassembler struct {
	data  []byte
	yield func(Line, error) bool
	gap   int
}

// Disassemble walks data and yields one annotated Line per field. The
// sequence is lazy and finite; each iteration starts again from offset 0.
// On the first inconsistency it yields a zero Line with a *MalformedError
// and ends.
func Disassemble(data []byte) iter.Seq2[Line, error] {
	return func(yield func(Line, error) bool) {
		d := &disassembler{data: data, yield: yield}
		if err := d.run(); err != nil && !errors.Is(err, errStop) {
			yield(Line{}, err)
		}
	}
}

// WriteDisassembly renders Disassemble(data) as text, one row per line:
// a hex offset padded to the width of the largest offset, up to eight
// hex bytes, then the annotation.
func WriteDisassembly(w io.Writer, data []byte) error {
	digits := 1
	if len(data) > 1 {
		digits = max(1, int(math.Ceil(math.Log2(float64(len(data)))/4)))
	}
	bw := bufio.NewWriter(w)
	for line, err := range Disassemble(data) {
		if err != nil {
			bw.Flush()
			return err
		}
		for range line.Gap {
			bw.WriteByte('\n')
		}
		row := fmt.Sprintf("%0*x: %-24s%s", digits, line.Offset, hexBytes(line.Bytes), line.Comment)
		bw.WriteString(strings.TrimRight(row, " "))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

// escapeText makes embedded text printable on a single row.
func escapeText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "�")
	s = strings.ReplaceAll(s, "\n", `\n`)
	return strings.ReplaceAll(s, "\x00", `\0`)
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (d *disassembler) emit(start, end int, comment string) error {
	line := Line{Offset: start, Bytes: d.data[start:end], Comment: comment, Gap: d.gap}
	d.gap = 0
	if !d.yield(line, nil) {
		return errStop
	}
	return nil
}

func (d *disassembler) emitf(start, end int, format string, args ...any) error {
	return d.emit(start, end, fmt.Sprintf(format, args...))
}

// u32 reads a varuint32 and emits it with a formatted comment.
func (d *disassembler) u32(r *reader, what, format string) (uint32, error) {
	start := r.off
	v, err := r.readU32(what)
	if err != nil {
		return 0, err
	}
	return v, d.emitf(start, r.off, format, v)
}

// chars emits a string's bytes: the whole text on the first row, the rest
// of the bytes in uncommented rows.
func (d *disassembler) chars(begin, end int, prefix string) error {
	first := min(begin+bytesPerRow, end)
	if err := d.emit(begin, first, prefix+`"`+escapeText(d.data[begin:end])+`"`); err != nil {
		return err
	}
	for off := first; off < end; off += bytesPerRow {
		if err := d.emit(off, min(off+bytesPerRow, end), ""); err != nil {
			return err
		}
	}
	return nil
}

// memory emits a byte range in rows annotated with their text.
func (d *disassembler) memory(begin, end int, annotate bool) error {
	for off := begin; off < end; off += bytesPerRow {
		rowEnd := min(off+bytesPerRow, end)
		comment := ""
		if annotate {
			comment = escapeText(d.data[off:rowEnd])
		}
		if err := d.emit(off, rowEnd, comment); err != nil {
			return err
		}
	}
	return nil
}

// name reads a length-prefixed string and emits its length and text.
func (d *disassembler) name(r *reader, label string) (string, error) {
	n, err := d.u32(r, label+" length", label+": %d bytes")
	if err != nil {
		return "", err
	}
	begin := r.off
	if _, err := r.readBytes(int(n), label); err != nil {
		return "", err
	}
	return string(d.data[begin:r.off]), d.chars(begin, r.off, "")
}

func (d *disassembler) limits(r *reader) error {
	start := r.off
	flag, err := r.readByte("limits flag")
	if err != nil {
		return err
	}
	if flag > 1 {
		return malformed(start, nil, "invalid limits flag 0x%02x", flag)
	}
	comment := "no allocation limit"
	if flag == 1 {
		comment = "allocation limit specified"
	}
	if err := d.emit(start, r.off, comment); err != nil {
		return err
	}
	if _, err := d.u32(r, "initial pages", "initial allocation: %d pages"); err != nil {
		return err
	}
	if flag == 1 {
		_, err = d.u32(r, "maximum pages", "max allocation: %d pages")
	}
	return err
}

func (d *disassembler) valueType(r *reader, label string) error {
	start := r.off
	t, err := r.readValueType(label)
	if err != nil {
		return err
	}
	if label == "" {
		return d.emit(start, r.off, t.String())
	}
	return d.emitf(start, r.off, "%s: %s", label, t)
}

func (d *disassembler) globalType(r *reader) error {
	if err := d.valueType(r, "global type"); err != nil {
		return err
	}
	start := r.off
	mut, err := r.readByte("global mutability")
	if err != nil {
		return err
	}
	switch mut {
	case 0:
		return d.emit(start, r.off, "immutable")
	case 1:
		return d.emit(start, r.off, "mutable")
	}
	return malformed(start, nil, "invalid global mutability 0x%02x", mut)
}

// instructions emits decoded instructions until the end opcode closing the
// outermost level, indenting by nesting depth.
func (d *disassembler) instructions(r *reader) error {
	depth := 0
	for {
		inst, err := DecodeInstruction(d.data[:r.end], r.off)
		if err != nil {
			return malformed(r.off, err, "decoding instruction")
		}
		indent := depth
		switch {
		case inst.Op == OpEnd:
			depth--
			indent = max(depth, 0)
		case inst.Op == OpElse:
			indent = depth - 1
		}
		r.off += inst.Size
		if err := d.emit(inst.Offset, r.off, strings.Repeat("  ", indent)+inst.String()); err != nil {
			return err
		}
		if inst.Op.IsBlock() {
			depth++
		}
		if depth < 0 {
			return nil
		}
	}
}

// ---------------------------------------------------------------------------
// Module walk
// ---------------------------------------------------------------------------

func (d *disassembler) run() error {
	if len(d.data) < 4 || !bytes.Equal(d.data[:4], Magic[:]) {
		return malformed(0, nil, "missing magic number")
	}
	if err := d.chars(0, 4, "Wasm magic number: "); err != nil {
		return err
	}
	if len(d.data) < 8 {
		return malformed(4, ErrTruncated, "reading version")
	}
	version := binary.LittleEndian.Uint32(d.data[4:8])
	if err := d.emitf(4, 8, "Wasm version: %d", version); err != nil {
		return err
	}
	if version != Version {
		return malformed(4, nil, "unsupported version %d", version)
	}

	r := newReader(d.data)
	r.off = 8
	for r.remaining() > 0 {
		start := r.off
		id, _ := r.readByte("section id")
		d.gap = 2
		if err := d.emitf(start, r.off, "section %s (%d)", SectionID(id), id); err != nil {
			return err
		}
		size, err := d.u32(r, "section size", "section size: %d bytes")
		if err != nil {
			return err
		}
		sec, err := r.sub(int(size), "section "+SectionID(id).String())
		if err != nil {
			return err
		}
		if err := d.section(SectionID(id), sec); err != nil {
			return err
		}
		if sec.remaining() != 0 {
			return malformed(sec.off, nil, "section %s declares %d bytes but its content ends %d bytes early",
				SectionID(id), size, sec.remaining())
		}
	}
	return nil
}

func (d *disassembler) section(id SectionID, r *reader) error {
	switch id {
	case SectionType:
		n, err := d.u32(r, "count of types", "count of types: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d.gap = 1
			start := r.off
			if err := r.expect(byte(FuncForm), "func form"); err != nil {
				return err
			}
			if err := d.emitf(start, r.off, "form: %s", FuncForm); err != nil {
				return err
			}
			for _, label := range []string{"param count: %d", "return count: %d"} {
				count, err := d.u32(r, "type arity", label)
				if err != nil {
					return err
				}
				for j := uint32(0); j < count; j++ {
					if err := d.valueType(r, ""); err != nil {
						return err
					}
				}
			}
		}

	case SectionImport:
		n, err := d.u32(r, "count of imports", "count of imports: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d.gap = 1
			if _, err := d.name(r, "module name"); err != nil {
				return err
			}
			if _, err := d.name(r, "field name"); err != nil {
				return err
			}
			start := r.off
			kind, err := r.readByte("external kind")
			if err != nil {
				return err
			}
			if !ExternalKind(kind).Valid() {
				return malformed(start, ErrInvalidKind, "import kind 0x%02x", kind)
			}
			if err := d.emitf(start, r.off, "external kind: %s", ExternalKind(kind)); err != nil {
				return err
			}
			switch ExternalKind(kind) {
			case KindFunction:
				_, err = d.u32(r, "signature type index", "signature: type index %d")
			case KindTable:
				start := r.off
				var elem byte
				if elem, err = r.readByte("table element type"); err == nil {
					if err = d.emitf(start, r.off, "element type: %s", ValueType(elem)); err == nil {
						err = d.limits(r)
					}
				}
			case KindMemory:
				err = d.limits(r)
			case KindGlobal:
				err = d.globalType(r)
			}
			if err != nil {
				return err
			}
		}

	case SectionFunction:
		n, err := d.u32(r, "defined function count", "defined function count: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := d.u32(r, "signature type index", "signature: type index %d"); err != nil {
				return err
			}
		}

	case SectionMemory:
		n, err := d.u32(r, "count of memories", "count of memories: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := d.limits(r); err != nil {
				return err
			}
		}

	case SectionGlobal:
		n, err := d.u32(r, "count of globals", "count of globals: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d.gap = 1
			if err := d.globalType(r); err != nil {
				return err
			}
			if err := d.instructions(r); err != nil {
				return err
			}
		}

	case SectionExport:
		n, err := d.u32(r, "count of exports", "count of exports: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d.gap = 1
			if _, err := d.name(r, "field name"); err != nil {
				return err
			}
			start := r.off
			kind, err := r.readByte("external kind")
			if err != nil {
				return err
			}
			if !ExternalKind(kind).Valid() {
				return malformed(start, ErrInvalidKind, "export kind 0x%02x", kind)
			}
			if err := d.emitf(start, r.off, "external kind: %s", ExternalKind(kind)); err != nil {
				return err
			}
			if _, err := d.u32(r, "export index", ExternalKind(kind).String()+" index: %d"); err != nil {
				return err
			}
		}

	case SectionStart:
		if _, err := d.u32(r, "start function index", "start function index: %d"); err != nil {
			return err
		}

	case SectionCode:
		n, err := d.u32(r, "count of function bodies", "count of function bodies: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d.gap = 1
			size, err := d.u32(r, "body size", "body size: %d bytes")
			if err != nil {
				return err
			}
			body, err := r.sub(int(size), "function body")
			if err != nil {
				return err
			}
			groups, err := d.u32(body, "local declaration count", "local declaration count: %d")
			if err != nil {
				return err
			}
			for j := uint32(0); j < groups; j++ {
				if _, err := d.u32(body, "local count", "local count: %d"); err != nil {
					return err
				}
				if err := d.valueType(body, "local type"); err != nil {
					return err
				}
			}
			if err := d.instructions(body); err != nil {
				return err
			}
			if body.remaining() != 0 {
				return malformed(body.off, nil, "function body has %d bytes after its final end", body.remaining())
			}
		}

	case SectionData:
		n, err := d.u32(r, "count of data segments", "count of data segments: %d")
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			d.gap = 1
			if _, err := d.u32(r, "linear memory index", "linear memory index: %d"); err != nil {
				return err
			}
			start := r.off
			if err := r.expect(byte(OpI32Const), "i32.const"); err != nil {
				return err
			}
			if err := d.emit(start, r.off, OpI32Const.String()); err != nil {
				return err
			}
			start = r.off
			offset, err := r.readI32("data offset")
			if err != nil {
				return err
			}
			if err := d.emitf(start, r.off, "%d", offset); err != nil {
				return err
			}
			start = r.off
			if err := r.expect(byte(OpEnd), "end"); err != nil {
				return err
			}
			if err := d.emit(start, r.off, OpEnd.String()); err != nil {
				return err
			}
			size, err := d.u32(r, "size of data", "size of data: %d bytes")
			if err != nil {
				return err
			}
			begin := r.off
			if _, err := r.readBytes(int(size), "data segment"); err != nil {
				return err
			}
			if err := d.memory(begin, r.off, true); err != nil {
				return err
			}
		}

	case SectionCustom:
		if _, err := d.name(r, "custom section name"); err != nil {
			return err
		}
		begin := r.off
		r.off = r.end
		return d.memory(begin, r.end, false)

	default:
		begin := r.off
		r.off = r.end
		return d.memory(begin, r.end, false)
	}
	return nil
}
