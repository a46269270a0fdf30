package compiler

import (
	"fmt"
	"slices"
	"sync"
)

// KeywordID identifies a keyword in saved documents.
type KeywordID int

const (
	KwLet KeywordID = iota
	KwVar
	KwIf
	KwElse
	KwFor
	KwIn
	KwWhile
	KwPostWhile
	KwBreak
	KwContinue
	KwReturn
	KwStep
	KwFn
)

// Keyword is a statement keyword. Suggestion names a related keyword the
// editor offers as an alternative; it carries no meaning for compilation.
type Keyword struct {
	ID                 KeywordID
	Text               string
	PrecedesExpression bool
	Suggestion         *Keyword
}

func (k *Keyword) String() string {
	return k.Text
}

// KeywordTable is the immutable keyword catalogue.
type KeywordTable struct {
	keywords []*Keyword
}

// DefaultKeywords returns the shared keyword catalogue.
var DefaultKeywords = sync.OnceValue(func() *KeywordTable {
	kw := func(id KeywordID, text string, precedesExpr bool) *Keyword {
		return &Keyword{ID: id, Text: text, PrecedesExpression: precedesExpr}
	}
	keywords := []*Keyword{
		kw(KwLet, "let", false),
		kw(KwVar, "var", false),
		kw(KwIf, "if", true),
		kw(KwElse, "else", false),
		kw(KwFor, "for", false),
		kw(KwIn, "in", true),
		kw(KwWhile, "while", true),
		kw(KwPostWhile, "post while", true),
		kw(KwBreak, "break", false),
		kw(KwContinue, "continue", false),
		kw(KwReturn, "return", false),
		kw(KwStep, "step", true),
		kw(KwFn, "fn", false),
	}
	suggest := func(a, b KeywordID) {
		keywords[a].Suggestion = keywords[b]
		keywords[b].Suggestion = keywords[a]
	}
	suggest(KwLet, KwVar)
	suggest(KwWhile, KwPostWhile)
	suggest(KwBreak, KwContinue)
	return &KeywordTable{keywords: keywords}
})

// Keyword returns the keyword with the given id.
func (t *KeywordTable) Keyword(id KeywordID) (*Keyword, error) {
	if id < 0 || int(id) >= len(t.keywords) {
		return nil, fmt.Errorf("keyword id %d: %w", id, ErrUnknownSymbol)
	}
	return t.keywords[id], nil
}

// Keywords returns the catalogue in id order.
func (t *KeywordTable) Keywords() []*Keyword {
	return slices.Clone(t.keywords)
}

// ByText returns the keyword spelled text.
func (t *KeywordTable) ByText(text string) (*Keyword, bool) {
	for _, k := range t.keywords {
		if k.Text == text {
			return k, true
		}
	}
	return nil, false
}
