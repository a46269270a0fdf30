// Package server exposes the built-in catalogue to editors over the
// Language Server Protocol: completion and hover over keywords, types and
// routines, and bracket diagnostics for rendered documents.
package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/touchscript/compiler"
)

const lspName = "touchscript-lsp"

// LspServer answers editor requests from a compiler context.
type LspServer struct {
	cc  *compiler.Context
	log commonlog.Logger

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server over the built-in registries.
func NewLSP() *LspServer {
	s := &LspServer{
		cc:      compiler.NewContext(),
		log:     commonlog.GetLogger("touchscript.lsp"),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("TouchScript LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) text(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.text(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.text(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(word), nil
}

// complete matches prefix against keywords, types and named routines. A
// prefix of the form "Namespace.name" only offers routines of that
// namespace.
func (s *LspServer) complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	ns, name, qualified := strings.Cut(prefix, ".")
	if !qualified {
		name = prefix
	}
	lowerName := strings.ToLower(name)
	matches := func(text string) bool {
		return strings.HasPrefix(strings.ToLower(text), lowerName)
	}

	if !qualified {
		for _, k := range s.cc.Keywords.Keywords() {
			if matches(k.Text) {
				add(k.Text, "keyword", protocol.CompletionItemKindKeyword)
			}
		}
		for _, t := range s.cc.Types.Types() {
			if matches(t.Text) {
				kind := protocol.CompletionItemKindClass
				if t == compiler.TypeSystem || t == compiler.TypeMath {
					kind = protocol.CompletionItemKindModule
				}
				add(t.Text, "type", kind)
			}
		}
	}

	seen := make(map[string]bool)
	for _, r := range s.cc.Library.Named() {
		sig := r.Signature()
		if qualified && sig.Namespace.Text != ns {
			continue
		}
		if !matches(sig.Name) {
			continue
		}
		label := sig.Name
		if !qualified {
			label = sig.Namespace.Text + "." + sig.Name
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		add(label, signature(r), protocol.CompletionItemKindFunction)
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

// signature renders a routine as "Namespace.name(type param, ...) → type".
func signature(r compiler.Routine) string {
	sig := r.Signature()
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Type.Text + " " + p.Name
		if p.Default != "" {
			params[i] += " = " + p.Default
		}
	}
	out := fmt.Sprintf("%s.%s(%s)", sig.Namespace.Text, sig.Name, strings.Join(params, ", "))
	if sig.Returns != compiler.TypeVoid {
		out += " → " + sig.Returns.Text
	}
	return out
}

func (s *LspServer) hover(word string) *protocol.Hover {
	var b strings.Builder

	if k, ok := s.cc.Keywords.ByText(word); ok {
		fmt.Fprintf(&b, "**%s** keyword", k.Text)
		if k.Suggestion != nil {
			fmt.Fprintf(&b, "\n\nSee also: `%s`", k.Suggestion.Text)
		}
	}

	for _, t := range s.cc.Types.Types() {
		if t.Text != word {
			continue
		}
		fmt.Fprintf(&b, "**%s** type", t.Text)
		if t.Size > 0 {
			fmt.Fprintf(&b, ", %d bytes", t.Size)
		}
		if sources := t.CastSources(); len(sources) > 0 {
			var names []string
			for _, id := range sources {
				if from, err := s.cc.Types.Lookup(id); err == nil {
					names = append(names, from.Text)
				}
			}
			sort.Strings(names)
			fmt.Fprintf(&b, "\n\nConverts from: %s", strings.Join(names, ", "))
		}
		if routines := s.cc.Library.InNamespace(t); len(routines) > 0 {
			fmt.Fprintf(&b, "\n\n%d routines", len(routines))
		}
	}

	var overloads []string
	for _, r := range s.cc.Library.Named() {
		if r.Signature().Name == word {
			overloads = append(overloads, signature(r))
		}
	}
	if len(overloads) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString("```\n")
		b.WriteString(strings.Join(overloads, "\n"))
		b.WriteString("\n```")
	}

	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// --- Diagnostics ---

// bracketDiagnostics checks that every row closes the brackets it opens.
func (s *LspServer) bracketDiagnostics(text string) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic
	report := func(line, col int, msg string) {
		severity := protocol.DiagnosticSeverityError
		source := lspName
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
				End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col + 1)},
			},
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}

	for ln, line := range strings.Split(text, "\n") {
		var stack compiler.BracketStack
		inString, failed := false, false
		for col, r := range []rune(line) {
			if r == '"' {
				inString = !inString
			}
			if inString {
				continue
			}
			syms := s.cc.Operators.ByText(string(r))
			if len(syms) != 1 || !syms[0].IsBracket() {
				continue
			}
			var err error
			if syms[0].Direction > 0 {
				err = stack.Push(syms[0])
			} else {
				err = stack.Close(syms[0])
			}
			if err != nil {
				report(ln, col, err.Error())
				failed = true
				break
			}
		}
		if !failed && stack.Depth() > 0 {
			report(ln, len([]rune(line)), fmt.Sprintf("%d unclosed bracket(s)", stack.Depth()))
		}
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.bracketDiagnostics(text)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r) || r == '_' || r == '↲' || r == '^'
}

// lineRunes returns the line at pos and the cursor column clamped to it.
func lineRunes(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(lines[pos.Line])
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the word fragment before the cursor for completion,
// including one namespace qualifier such as "Math.".
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && (isIdentRune(line[start-1]) || line[start-1] == '.') {
		start--
	}

	if start == col {
		return ""
	}

	return string(line[start:col])
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return ""
	}

	// Find start
	start := col
	for start > 0 && isIdentRune(line[start-1]) {
		start--
	}

	// Find end
	end := col
	for end < len(line) && isIdentRune(line[end]) {
		end++
	}

	if start == end {
		return ""
	}

	return string(line[start:end])
}

func boolPtr(b bool) *bool {
	return &b
}
