package wasm

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode serializes m into the binary module format.
//
// Sections are written in canonical id order and empty sections are omitted.
// Raw sections with a known id are placed at their canonical position after
// any structural section of the same id; custom and unknown raw sections are
// appended last in the order given. The output depends only on m.
func Encode(m *Module) ([]byte, error) {
	out := make([]byte, 0, 256)
	out = append(out, Magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, Version)

	raw := make([]RawSection, len(m.Raw))
	copy(raw, m.Raw)
	sort.SliceStable(raw, func(i, j int) bool {
		return rawRank(raw[i].ID) < rawRank(raw[j].ID)
	})

	ri := 0
	flushRaw := func(upTo SectionID) {
		for ri < len(raw) && raw[ri].ID >= SectionType && raw[ri].ID <= upTo {
			out = appendSection(out, raw[ri].ID, encodeRaw(raw[ri]))
			ri++
		}
	}

	for id := SectionType; id <= SectionData; id++ {
		payload, err := encodeSection(m, id)
		if err != nil {
			return nil, fmt.Errorf("encoding %s section: %w", id, err)
		}
		if payload != nil {
			out = appendSection(out, id, payload)
		}
		flushRaw(id)
	}
	for ; ri < len(raw); ri++ {
		out = appendSection(out, raw[ri].ID, encodeRaw(raw[ri]))
	}
	return out, nil
}

// rawRank orders known section ids canonically and everything else after.
func rawRank(id SectionID) int {
	if id >= SectionType && id <= SectionData {
		return int(id)
	}
	return int(SectionData) + 1
}

func encodeRaw(s RawSection) []byte {
	if s.ID != SectionCustom {
		return s.Payload
	}
	payload := appendName(nil, s.Name)
	return append(payload, s.Payload...)
}

func appendSection(out []byte, id SectionID, payload []byte) []byte {
	out = append(out, byte(id))
	out = AppendUvarint(out, uint64(len(payload)))
	return append(out, payload...)
}

func appendName(out []byte, name string) []byte {
	out = AppendUvarint(out, uint64(len(name)))
	return append(out, name...)
}

func appendLimits(out []byte, l Limits) []byte {
	if l.HasMax {
		out = append(out, 1)
		out = AppendUvarint(out, uint64(l.Min))
		return AppendUvarint(out, uint64(l.Max))
	}
	out = append(out, 0)
	return AppendUvarint(out, uint64(l.Min))
}

func appendGlobalType(out []byte, g GlobalType) []byte {
	mut := byte(0)
	if g.Mutable {
		mut = 1
	}
	return append(out, byte(g.Type), mut)
}

// encodeSection returns the payload for a structural section, or nil when
// the module has no content for it.
func encodeSection(m *Module, id SectionID) ([]byte, error) {
	var p []byte
	switch id {
	case SectionType:
		if len(m.Types) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Types)))
		for _, ft := range m.Types {
			p = append(p, byte(FuncForm))
			p = AppendUvarint(p, uint64(len(ft.Params)))
			for _, t := range ft.Params {
				p = append(p, byte(t))
			}
			p = AppendUvarint(p, uint64(len(ft.Results)))
			for _, t := range ft.Results {
				p = append(p, byte(t))
			}
		}

	case SectionImport:
		if len(m.Imports) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Imports)))
		for _, imp := range m.Imports {
			p = appendName(p, imp.Module)
			p = appendName(p, imp.Field)
			p = append(p, byte(imp.Kind))
			switch imp.Kind {
			case KindFunction:
				p = AppendUvarint(p, uint64(imp.TypeIndex))
			case KindTable:
				p = append(p, byte(imp.Table.ElemType))
				p = appendLimits(p, imp.Table.Limits)
			case KindMemory:
				p = appendLimits(p, imp.Memory)
			case KindGlobal:
				p = appendGlobalType(p, imp.Global)
			default:
				return nil, fmt.Errorf("import %s.%s: %w %d", imp.Module, imp.Field, ErrInvalidKind, imp.Kind)
			}
		}

	case SectionFunction:
		if len(m.Functions) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Functions)))
		for _, idx := range m.Functions {
			p = AppendUvarint(p, uint64(idx))
		}

	case SectionMemory:
		if len(m.Memories) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Memories)))
		for _, l := range m.Memories {
			p = appendLimits(p, l)
		}

	case SectionGlobal:
		if len(m.Globals) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Globals)))
		for _, g := range m.Globals {
			p = appendGlobalType(p, g.Type)
			p = append(p, g.Init...)
			p = append(p, byte(OpEnd))
		}

	case SectionExport:
		if len(m.Exports) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Exports)))
		for _, e := range m.Exports {
			if !e.Kind.Valid() {
				return nil, fmt.Errorf("export %q: %w %d", e.Name, ErrInvalidKind, e.Kind)
			}
			p = appendName(p, e.Name)
			p = append(p, byte(e.Kind))
			p = AppendUvarint(p, uint64(e.Index))
		}

	case SectionStart:
		if m.Start == nil {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(*m.Start))

	case SectionCode:
		if len(m.Code) == 0 {
			return nil, nil
		}
		if len(m.Code) != len(m.Functions) {
			return nil, fmt.Errorf("%d bodies for %d declared functions", len(m.Code), len(m.Functions))
		}
		p = AppendUvarint(p, uint64(len(m.Code)))
		for _, body := range m.Code {
			var b []byte
			b = AppendUvarint(b, uint64(len(body.Locals)))
			for _, l := range body.Locals {
				b = AppendUvarint(b, uint64(l.Count))
				b = append(b, byte(l.Type))
			}
			b = append(b, body.Code...)
			p = AppendUvarint(p, uint64(len(b)))
			p = append(p, b...)
		}

	case SectionData:
		if len(m.Data) == 0 {
			return nil, nil
		}
		p = AppendUvarint(p, uint64(len(m.Data)))
		for _, seg := range m.Data {
			p = AppendUvarint(p, uint64(seg.MemoryIndex))
			p = append(p, byte(OpI32Const))
			p = AppendVarint(p, int64(seg.Offset))
			p = append(p, byte(OpEnd))
			p = AppendUvarint(p, uint64(len(seg.Bytes)))
			p = append(p, seg.Bytes...)
		}

	default:
		return nil, nil
	}
	return p, nil
}
