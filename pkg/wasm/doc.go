// Package wasm encodes and decodes the WebAssembly MVP binary module format
// produced by the TouchScript compiler.
//
// The same framing rules serve both directions:
//
//   - Varints: unsigned and signed LEB128. Decoders return the value and the
//     number of bytes consumed so callers can advance an offset cursor over a
//     plain byte slice.
//
//   - Module: 4-byte magic "\0asm", 4-byte little-endian version 1, then a
//     sequence of sections framed as {id byte, varuint32 payload length,
//     payload}.
//
//   - Encode writes sections in canonical order and is deterministic: the
//     same logical Module always yields the same bytes.
//
//   - Decode rebuilds a Module structurally without assuming section order.
//     Sections it does not interpret are preserved as RawSection payloads.
//
//   - Disassemble walks the bytes lazily and yields one annotated Line per
//     field, stopping with a *MalformedError at the first inconsistency.
package wasm
