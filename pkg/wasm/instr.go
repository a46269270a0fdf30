package wasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Op     Opcode
	Offset int     // offset of the opcode byte
	Size   int     // opcode plus immediates, in bytes
	Args   []int64 // integer immediates in encoding order
	Float  float64 // f32.const / f64.const value
}

// DecodeInstruction decodes the instruction starting at data[offset].
func DecodeInstruction(data []byte, offset int) (Instruction, error) {
	if offset < 0 || offset >= len(data) {
		return Instruction{}, ErrTruncated
	}
	op := Opcode(data[offset])
	info := GetOpcodeInfo(op)
	if !op.Known() {
		return Instruction{}, fmt.Errorf("%w 0x%02x", ErrUnknownOpcode, byte(op))
	}

	inst := Instruction{Op: op, Offset: offset}
	pos := offset + 1
	u32 := func() error {
		v, n, err := Uvarint32(data, pos)
		if err != nil {
			return err
		}
		inst.Args = append(inst.Args, int64(v))
		pos += n
		return nil
	}
	fixed := func(n int) ([]byte, error) {
		if pos+n > len(data) {
			return nil, ErrTruncated
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	var err error
	switch info.Immediate {
	case ImmNone:
	case ImmBlockType:
		var b []byte
		if b, err = fixed(1); err == nil {
			t := ValueType(b[0])
			if t != BlockVoid && !t.IsNumeric() {
				return Instruction{}, fmt.Errorf("invalid block type 0x%02x", b[0])
			}
			inst.Args = append(inst.Args, int64(b[0]))
		}
	case ImmIndex:
		err = u32()
	case ImmBranchTable:
		if err = u32(); err == nil {
			count := inst.Args[0]
			for i := int64(0); i <= count && err == nil; i++ {
				err = u32()
			}
		}
	case ImmCallIndirect:
		if err = u32(); err == nil {
			_, err = fixed(1)
		}
	case ImmMemArg:
		if err = u32(); err == nil {
			err = u32()
		}
	case ImmReserved:
		_, err = fixed(1)
	case ImmI32:
		var v int32
		var n int
		if v, n, err = Varint32(data, pos); err == nil {
			inst.Args = append(inst.Args, int64(v))
			pos += n
		}
	case ImmI64:
		var v int64
		var n int
		if v, n, err = Varint(data, pos); err == nil {
			inst.Args = append(inst.Args, v)
			pos += n
		}
	case ImmF32:
		var b []byte
		if b, err = fixed(4); err == nil {
			inst.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	case ImmF64:
		var b []byte
		if b, err = fixed(8); err == nil {
			inst.Float = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
	}
	if err != nil {
		return Instruction{}, fmt.Errorf("%s immediate: %w", info.Name, err)
	}
	inst.Size = pos - offset
	return inst, nil
}

// String renders the instruction in text-format style, e.g. "local.get 2".
func (inst Instruction) String() string {
	info := GetOpcodeInfo(inst.Op)
	var sb strings.Builder
	sb.WriteString(info.Name)
	switch info.Immediate {
	case ImmBlockType:
		if t := ValueType(inst.Args[0]); t != BlockVoid {
			sb.WriteString(" (result " + t.String() + ")")
		}
	case ImmMemArg:
		fmt.Fprintf(&sb, " align=%d offset=%d", inst.Args[0], inst.Args[1])
	case ImmF32, ImmF64:
		sb.WriteString(" " + strconv.FormatFloat(inst.Float, 'g', -1, 64))
	case ImmBranchTable:
		for _, target := range inst.Args[1:] {
			sb.WriteString(" " + strconv.FormatInt(target, 10))
		}
	default:
		for _, a := range inst.Args {
			sb.WriteString(" " + strconv.FormatInt(a, 10))
		}
	}
	return sb.String()
}
