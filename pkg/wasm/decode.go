package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode parses a binary module.
//
// Sections may appear in any order. Type, Import, Function, Memory, Global,
// Export, Start, Code and Data sections are decoded structurally; all other
// sections are preserved in Module.Raw. Decoding stops at the first
// inconsistency with a *MalformedError.
func Decode(data []byte) (*Module, error) {
	if err := checkHeader(data); err != nil {
		return nil, err
	}

	r := newReader(data)
	r.off = 8
	m := &Module{}
	for r.remaining() > 0 {
		idOff := r.off
		id, _ := r.readByte("section id")
		size, err := r.readU32("section size")
		if err != nil {
			return nil, err
		}
		sec, err := r.sub(int(size), fmt.Sprintf("section %s (%d)", SectionID(id), id))
		if err != nil {
			return nil, err
		}
		if err := decodeSection(m, SectionID(id), sec); err != nil {
			return nil, err
		}
		if sec.remaining() != 0 {
			return nil, malformed(sec.off, nil, "section %s at 0x%x declares %d bytes but content ends after %d",
				SectionID(id), idOff, size, sec.off-(sec.end-int(size)))
		}
	}
	return m, nil
}

func checkHeader(data []byte) error {
	if len(data) < 4 || !bytes.Equal(data[:4], Magic[:]) {
		return malformed(0, nil, "missing magic number")
	}
	if len(data) < 8 {
		return malformed(4, ErrTruncated, "reading version")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		return malformed(4, nil, "unsupported version %d", v)
	}
	return nil
}

func decodeSection(m *Module, id SectionID, r *reader) error {
	switch id {
	case SectionType:
		return decodeTypes(m, r)
	case SectionImport:
		return decodeImports(m, r)
	case SectionFunction:
		n, err := r.readCount("defined function count", 1)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			idx, err := r.readU32("function type index")
			if err != nil {
				return err
			}
			m.Functions = append(m.Functions, idx)
		}
	case SectionMemory:
		n, err := r.readCount("memory count", 2)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			l, err := r.readLimits("memory")
			if err != nil {
				return err
			}
			m.Memories = append(m.Memories, l)
		}
	case SectionGlobal:
		return decodeGlobals(m, r)
	case SectionExport:
		return decodeExports(m, r)
	case SectionStart:
		idx, err := r.readU32("start function index")
		if err != nil {
			return err
		}
		m.Start = &idx
	case SectionCode:
		return decodeCode(m, r)
	case SectionData:
		return decodeData(m, r)
	case SectionCustom:
		name, err := r.readName("custom section name")
		if err != nil {
			return err
		}
		payload, _ := r.readBytes(r.remaining(), "custom section")
		m.Raw = append(m.Raw, RawSection{ID: id, Name: name, Payload: bytes.Clone(payload)})
	default:
		payload, _ := r.readBytes(r.remaining(), "section payload")
		m.Raw = append(m.Raw, RawSection{ID: id, Payload: bytes.Clone(payload)})
	}
	return nil
}

func decodeTypes(m *Module, r *reader) error {
	n, err := r.readCount("count of types", 3)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := r.expect(byte(FuncForm), "func form"); err != nil {
			return err
		}
		var ft FuncType
		pc, err := r.readCount("param count", 1)
		if err != nil {
			return err
		}
		for j := uint32(0); j < pc; j++ {
			t, err := r.readValueType("param")
			if err != nil {
				return err
			}
			ft.Params = append(ft.Params, t)
		}
		rc, err := r.readCount("return count", 1)
		if err != nil {
			return err
		}
		for j := uint32(0); j < rc; j++ {
			t, err := r.readValueType("result")
			if err != nil {
				return err
			}
			ft.Results = append(ft.Results, t)
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func decodeImports(m *Module, r *reader) error {
	n, err := r.readCount("count of imports", 4)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var imp Import
		if imp.Module, err = r.readName("module name"); err != nil {
			return err
		}
		if imp.Field, err = r.readName("field name"); err != nil {
			return err
		}
		kindOff := r.off
		kind, err := r.readByte("external kind")
		if err != nil {
			return err
		}
		imp.Kind = ExternalKind(kind)
		switch imp.Kind {
		case KindFunction:
			imp.TypeIndex, err = r.readU32("signature type index")
		case KindTable:
			var elem byte
			if elem, err = r.readByte("table element type"); err == nil {
				imp.Table.ElemType = ValueType(elem)
				imp.Table.Limits, err = r.readLimits("table")
			}
		case KindMemory:
			imp.Memory, err = r.readLimits("memory")
		case KindGlobal:
			imp.Global, err = r.readGlobalType()
		default:
			return malformed(kindOff, ErrInvalidKind, "import %s.%s has kind 0x%02x", imp.Module, imp.Field, kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

// readConstExpr reads instructions up to and including the end opcode and
// returns them without the end.
func readConstExpr(r *reader, what string) ([]byte, error) {
	start := r.off
	for {
		inst, err := DecodeInstruction(r.data[:r.end], r.off)
		if err != nil {
			return nil, malformed(r.off, err, "reading %s", what)
		}
		r.off += inst.Size
		if inst.Op == OpEnd {
			return bytes.Clone(r.data[start : r.off-1]), nil
		}
	}
}

func decodeGlobals(m *Module, r *reader) error {
	n, err := r.readCount("global count", 3)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		gt, err := r.readGlobalType()
		if err != nil {
			return err
		}
		init, err := readConstExpr(r, "global initializer")
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func decodeExports(m *Module, r *reader) error {
	n, err := r.readCount("export count", 3)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var e Export
		if e.Name, err = r.readName("export name"); err != nil {
			return err
		}
		kindOff := r.off
		kind, err := r.readByte("export kind")
		if err != nil {
			return err
		}
		e.Kind = ExternalKind(kind)
		if !e.Kind.Valid() {
			return malformed(kindOff, ErrInvalidKind, "export %q has kind 0x%02x", e.Name, kind)
		}
		if e.Index, err = r.readU32("export index"); err != nil {
			return err
		}
		m.Exports = append(m.Exports, e)
	}
	return nil
}

func decodeCode(m *Module, r *reader) error {
	n, err := r.readCount("function body count", 2)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		size, err := r.readU32("function body size")
		if err != nil {
			return err
		}
		body, err := r.sub(int(size), "function body")
		if err != nil {
			return err
		}
		var fb FunctionBody
		groups, err := body.readCount("local declaration count", 2)
		if err != nil {
			return err
		}
		for j := uint32(0); j < groups; j++ {
			var l LocalEntry
			if l.Count, err = body.readU32("local count"); err != nil {
				return err
			}
			if l.Type, err = body.readValueType("local"); err != nil {
				return err
			}
			fb.Locals = append(fb.Locals, l)
		}
		code, _ := body.readBytes(body.remaining(), "function code")
		if len(code) == 0 || code[len(code)-1] != byte(OpEnd) {
			return malformed(body.end-1, nil, "function body %d does not terminate with end", i)
		}
		fb.Code = bytes.Clone(code)
		m.Code = append(m.Code, fb)
	}
	return nil
}

func decodeData(m *Module, r *reader) error {
	n, err := r.readCount("count of data segments", 4)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var seg DataSegment
		if seg.MemoryIndex, err = r.readU32("linear memory index"); err != nil {
			return err
		}
		if err := r.expect(byte(OpI32Const), "i32.const"); err != nil {
			return err
		}
		if seg.Offset, err = r.readI32("data offset"); err != nil {
			return err
		}
		if err := r.expect(byte(OpEnd), "end"); err != nil {
			return err
		}
		size, err := r.readU32("size of data")
		if err != nil {
			return err
		}
		b, err := r.readBytes(int(size), "data segment")
		if err != nil {
			return err
		}
		seg.Bytes = bytes.Clone(b)
		m.Data = append(m.Data, seg)
	}
	return nil
}
