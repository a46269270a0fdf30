// Package document stores programs as rows of identifier items.
//
// The saved form is CBOR in canonical mode so equal documents always encode
// to equal bytes. Items are written as compiler.Record values that refer to
// each other by id; loading resolves them in two passes so a reference may
// appear before the definition it names.
package document

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/touchscript/compiler"
)

// FormatVersion is written into every saved document.
const FormatVersion = 1

var (
	ErrUnsupportedVersion = errors.New("document: unsupported format version")
	ErrDuplicateVariable  = errors.New("document: variable defined twice")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("document: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Row is one editor line.
type Row struct {
	Indent int
	Items  []compiler.Item
}

// Document is an ordered list of rows.
type Document struct {
	Rows []Row
}

type wireRow struct {
	Indent int               `cbor:"indent,omitempty"`
	Items  []compiler.Record `cbor:"items"`
}

type wireDocument struct {
	Version int       `cbor:"version"`
	Rows    []wireRow `cbor:"rows"`
}

// Append adds a row and returns it for chaining in tests and tools.
func (d *Document) Append(indent int, items ...compiler.Item) *Document {
	d.Rows = append(d.Rows, Row{Indent: indent, Items: items})
	return d
}

// Variables returns every variable defined in the document, in order.
func (d *Document) Variables() []*compiler.VariableDef {
	var out []*compiler.VariableDef
	for _, row := range d.Rows {
		for _, it := range row.Items {
			if v, ok := it.(*compiler.VariableDef); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// Marshal serializes d.
func Marshal(d *Document) ([]byte, error) {
	w := wireDocument{Version: FormatVersion, Rows: make([]wireRow, len(d.Rows))}
	for i, row := range d.Rows {
		recs := make([]compiler.Record, len(row.Items))
		for j, it := range row.Items {
			recs[j] = it.Record()
		}
		w.Rows[i] = wireRow{Indent: row.Indent, Items: recs}
	}
	return cborEncMode.Marshal(&w)
}

// Unmarshal loads a document into ctx. Every variable id found is marked
// as used in ctx so new variables never collide with loaded ones.
func Unmarshal(ctx *compiler.Context, data []byte) (*Document, error) {
	var w wireDocument
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("document: unmarshal: %w", err)
	}
	if w.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.Version)
	}

	vars := make(map[int]*compiler.VariableDef)
	for i, row := range w.Rows {
		for j, r := range row.Items {
			if !r.IsVariableDef() {
				continue
			}
			v, err := ctx.DefineFromRecord(r)
			if err != nil {
				return nil, fmt.Errorf("document: row %d item %d: %w", i, j, err)
			}
			if _, dup := vars[v.ID]; dup {
				return nil, fmt.Errorf("%w: id %d", ErrDuplicateVariable, v.ID)
			}
			vars[v.ID] = v
		}
	}

	d := &Document{Rows: make([]Row, len(w.Rows))}
	for i, row := range w.Rows {
		items := make([]compiler.Item, len(row.Items))
		for j, r := range row.Items {
			it, err := ctx.ItemFromRecord(r, vars, nil)
			if err != nil {
				return nil, fmt.Errorf("document: row %d item %d: %w", i, j, err)
			}
			items[j] = it
		}
		d.Rows[i] = Row{Indent: row.Indent, Items: items}
	}
	return d, nil
}

// Render writes the document as plain text, one row per line. Qualified
// names are joined with a dot.
func Render(w io.Writer, d *Document) error {
	var sb strings.Builder
	for _, row := range d.Rows {
		sb.WriteString(strings.Repeat("  ", row.Indent))
		for j, it := range row.Items {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strings.ReplaceAll(it.Display().Text, "\n", "."))
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
