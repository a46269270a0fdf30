package compiler

import (
	"strconv"
	"strings"
)

// NumericLiteral is a number as the user typed it. Its type comes from the
// text alone: a '.', 'e' or 'E' makes it a float, anything else an int.
type NumericLiteral struct {
	Text string
}

func (n NumericLiteral) Type() *Type {
	if strings.ContainsAny(n.Text, ".eE") {
		return TypeF32
	}
	return TypeI32
}

func (n NumericLiteral) Display() Display {
	return Display{Text: n.Text, Style: StyleNumber + " " + StyleLiteral}
}

func (n NumericLiteral) Record() Record {
	return Record{NumLit: ptr(n.Text)}
}

// StringLiteral is a quoted string.
type StringLiteral struct {
	Text string
}

func (s StringLiteral) Type() *Type {
	return TypeString
}

func (s StringLiteral) Display() Display {
	return Display{Text: `"` + s.Text + `"`, Style: StyleString + " " + StyleLiteral}
}

func (s StringLiteral) Record() Record {
	return Record{StrLit: ptr(s.Text)}
}

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	Value bool
}

var (
	True  = BooleanLiteral{Value: true}
	False = BooleanLiteral{Value: false}
)

func (b BooleanLiteral) Type() *Type {
	return TypeBool
}

func (b BooleanLiteral) Display() Display {
	return Display{Text: strconv.FormatBool(b.Value), Style: StyleKeyword + " " + StyleLiteral}
}

func (b BooleanLiteral) Record() Record {
	return Record{BoolLit: ptr(b.Value)}
}
