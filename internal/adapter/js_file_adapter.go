package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/mouse-blink/relocator/internal/jsast"
	m "github.com/mouse-blink/relocator/internal/model"
)

// ErrSyntax is returned when a source file does not parse as JavaScript.
var ErrSyntax = errors.New("javascript syntax error")

// JSFileAdapter encapsulates JavaScript parsing so the domain layer works on
// the closed jsast tree instead of parser-specific nodes.
type JSFileAdapter interface {
	// Parse builds a jsast.Program for the given source. Files with top-level
	// import/export statements are flagged as ES modules.
	Parse(ctx context.Context, filename m.Path, src []byte) (*jsast.Program, error)
}

// LocalJSFileAdapter provides a JSFileAdapter backed by tree-sitter.
type LocalJSFileAdapter struct{}

// NewLocalJSFileAdapter constructs a LocalJSFileAdapter.
func NewLocalJSFileAdapter() *LocalJSFileAdapter {
	return &LocalJSFileAdapter{}
}

// Parse runs tree-sitter over src and converts the result. Any syntax error
// in the tree is fatal.
func (a *LocalJSFileAdapter) Parse(ctx context.Context, filename m.Path, src []byte) (*jsast.Program, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s:%s", ErrSyntax, filename, errorPosition(root))
	}

	conv := &converter{src: src}
	program := &jsast.Program{
		Root:   conv.convert(root),
		Source: src,
	}
	program.Module = conv.module

	return program, nil
}

func errorPosition(n *sitter.Node) string {
	var found *sitter.Node

	var search func(*sitter.Node)
	search = func(n *sitter.Node) {
		if found != nil || n == nil {
			return
		}

		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			search(n.Child(i))
		}
	}
	search(n)

	if found == nil {
		return "?"
	}

	p := found.StartPoint()

	return fmt.Sprintf("%d:%d", p.Row+1, p.Column+1)
}

type converter struct {
	src    []byte
	module bool
}

func (c *converter) text(n *sitter.Node) string {
	return string(c.src[n.StartByte():n.EndByte()])
}

func (c *converter) newNode(kind jsast.Kind, n *sitter.Node) *jsast.Node {
	return &jsast.Node{Kind: kind, Start: n.StartByte(), End: n.EndByte()}
}

func (c *converter) named(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)

	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}

		out = append(out, child)
	}

	return out
}

func (c *converter) firstNamed(n *sitter.Node) *sitter.Node {
	children := c.named(n)
	if len(children) == 0 {
		return nil
	}

	return children[0]
}

func (c *converter) all(nodes []*sitter.Node) []*jsast.Node {
	out := make([]*jsast.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, c.convert(n))
	}

	return out
}

func appendNonNil(dst []*jsast.Node, nodes ...*jsast.Node) []*jsast.Node {
	for _, n := range nodes {
		if n != nil {
			dst = append(dst, n)
		}
	}

	return dst
}

//nolint:gocyclo,funlen // one case per grammar node type
func (c *converter) convert(n *sitter.Node) *jsast.Node {
	if n == nil {
		return nil
	}

	switch n.Type() {
	case "program":
		out := c.newNode(jsast.KindProgram, n)
		for _, child := range c.named(n) {
			switch child.Type() {
			case "hash_bang_line":
				continue
			case "import_statement", "export_statement":
				c.module = true
			}

			out.Elements = append(out.Elements, c.convert(child))
		}
		out.Children = out.Elements

		return out

	case "expression_statement":
		out := c.newNode(jsast.KindExpressionStatement, n)
		out.Arg = c.convert(c.firstNamed(n))
		out.Children = appendNonNil(nil, out.Arg)

		return out

	case "variable_declaration", "lexical_declaration":
		return c.declaration(n)

	case "identifier", "undefined":
		out := c.newNode(jsast.KindIdentifier, n)
		out.Name = c.text(n)

		return out

	case "property_identifier", "private_property_identifier", "statement_identifier",
		"shorthand_property_identifier_pattern":
		out := c.newNode(jsast.KindPropertyKey, n)
		out.Name = c.text(n)

		return out

	case "string":
		out := c.newNode(jsast.KindString, n)
		out.Str = cookString(c.text(n))

		return out

	case "template_string":
		return c.template(n)

	case "number":
		f, ok := parseNumber(c.text(n))
		if !ok {
			return c.newNode(jsast.KindOther, n)
		}

		out := c.newNode(jsast.KindNumber, n)
		out.Num = f

		return out

	case "true", "false":
		out := c.newNode(jsast.KindBoolean, n)
		out.Bool = n.Type() == "true"

		return out

	case "null":
		return c.newNode(jsast.KindNull, n)

	case "this":
		return c.newNode(jsast.KindThis, n)

	case "array":
		out := c.newNode(jsast.KindArray, n)
		out.Elements = c.all(c.named(n))
		out.Children = out.Elements

		return out

	case "object":
		return c.object(n)

	case "spread_element":
		out := c.newNode(jsast.KindSpread, n)
		out.Arg = c.convert(c.firstNamed(n))
		out.Children = appendNonNil(nil, out.Arg)

		return out

	case "unary_expression":
		out := c.newNode(jsast.KindUnary, n)
		out.Op = fieldType(n, "operator")
		out.Arg = c.convert(n.ChildByFieldName("argument"))
		out.Children = appendNonNil(nil, out.Arg)

		return out

	case "binary_expression":
		out := c.newNode(jsast.KindBinary, n)
		out.Op = fieldType(n, "operator")
		out.Left = c.convert(n.ChildByFieldName("left"))
		out.Right = c.convert(n.ChildByFieldName("right"))
		out.Children = appendNonNil(nil, out.Left, out.Right)

		return out

	case "assignment_expression", "augmented_assignment_expression":
		out := c.newNode(jsast.KindAssignment, n)
		out.Op = "="
		if n.Type() == "augmented_assignment_expression" {
			out.Op = fieldType(n, "operator")
		}

		out.Left = c.assignTarget(n.ChildByFieldName("left"))
		out.Right = c.convert(n.ChildByFieldName("right"))
		out.Children = appendNonNil(nil, out.Left, out.Right)

		return out

	case "ternary_expression":
		out := c.newNode(jsast.KindConditional, n)
		out.Test = c.convert(n.ChildByFieldName("condition"))
		out.Then = c.convert(n.ChildByFieldName("consequence"))
		out.Else = c.convert(n.ChildByFieldName("alternative"))
		out.Children = appendNonNil(nil, out.Test, out.Then, out.Else)

		return out

	case "call_expression":
		return c.call(n)

	case "new_expression":
		out := c.newNode(jsast.KindNew, n)
		out.Callee = c.convert(n.ChildByFieldName("constructor"))
		if args := n.ChildByFieldName("arguments"); args != nil {
			out.Args = c.all(c.named(args))
		}
		out.Children = appendNonNil([]*jsast.Node{out.Callee}, out.Args...)

		return out

	case "member_expression":
		out := c.newNode(jsast.KindMember, n)
		out.Object = c.convert(n.ChildByFieldName("object"))
		if prop := n.ChildByFieldName("property"); prop != nil {
			out.Name = c.text(prop)
		}
		out.Children = appendNonNil(nil, out.Object)

		return out

	case "subscript_expression":
		out := c.newNode(jsast.KindMember, n)
		out.Computed = true
		out.Object = c.convert(n.ChildByFieldName("object"))
		out.Property = c.convert(n.ChildByFieldName("index"))
		out.Children = appendNonNil(nil, out.Object, out.Property)

		return out

	case "parenthesized_expression":
		out := c.newNode(jsast.KindParen, n)
		out.Arg = c.convert(c.firstNamed(n))
		out.Children = appendNonNil(nil, out.Arg)

		return out

	case "sequence_expression":
		out := c.newNode(jsast.KindSequence, n)
		out.Elements = c.all(c.named(n))
		out.Children = out.Elements

		return out

	case "function", "function_expression", "generator_function":
		return c.function(n, "expression")

	case "function_declaration", "generator_function_declaration":
		return c.function(n, "declaration")

	case "arrow_function":
		return c.function(n, "arrow")

	case "method_definition":
		return c.function(n, "method")

	case "class", "class_declaration":
		return c.class(n)

	case "statement_block":
		out := c.newNode(jsast.KindBlock, n)
		out.Elements = c.all(c.named(n))
		out.Children = out.Elements

		return out

	case "return_statement":
		out := c.newNode(jsast.KindReturn, n)
		out.Arg = c.convert(c.firstNamed(n))
		out.Children = appendNonNil(nil, out.Arg)

		return out

	case "catch_clause":
		out := c.newNode(jsast.KindCatch, n)
		if param := n.ChildByFieldName("parameter"); param != nil {
			out.Left = c.pattern(param)
		}
		out.Body = c.convert(n.ChildByFieldName("body"))
		out.Children = appendNonNil(nil, out.Left, out.Body)

		return out

	case "for_statement":
		out := c.newNode(jsast.KindFor, n)
		out.Left = c.convert(n.ChildByFieldName("initializer"))
		out.Test = c.convert(n.ChildByFieldName("condition"))
		out.Right = c.convert(n.ChildByFieldName("increment"))
		out.Body = c.convert(n.ChildByFieldName("body"))
		out.Children = appendNonNil(nil, out.Left, out.Test, out.Right, out.Body)

		return out

	case "for_in_statement":
		return c.forIn(n)

	case "import_statement":
		return c.importStatement(n)

	case "meta_property":
		// import.meta only parses in modules.
		if strings.HasPrefix(c.text(n), "import") {
			c.module = true
		}

		out := c.newNode(jsast.KindOther, n)
		out.Name = n.Type()

		return out

	case "export_statement":
		out := c.newNode(jsast.KindExport, n)
		if source := n.ChildByFieldName("source"); source != nil {
			out.Source = cookString(c.text(source))
		}

		out.Children = appendNonNil(nil,
			c.convert(n.ChildByFieldName("declaration")),
			c.convert(n.ChildByFieldName("value")),
		)

		return out
	}

	out := c.newNode(jsast.KindOther, n)
	out.Name = n.Type()
	out.Children = c.all(c.named(n))

	return out
}

func fieldType(n *sitter.Node, field string) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}

	return child.Type()
}

func (c *converter) declaration(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindVariableDeclaration, n)

	out.Name = "var"
	if n.Type() == "lexical_declaration" {
		out.Name = fieldType(n, "kind")
		if out.Name == "" {
			out.Name = strings.Fields(c.text(n))[0]
		}
	}

	for _, child := range c.named(n) {
		if child.Type() != "variable_declarator" {
			continue
		}

		decl := c.newNode(jsast.KindVariableDeclarator, child)
		decl.Left = c.pattern(child.ChildByFieldName("name"))
		decl.Right = c.convert(child.ChildByFieldName("value"))
		decl.Children = appendNonNil(nil, decl.Left, decl.Right)

		out.Elements = append(out.Elements, decl)
	}

	out.Children = out.Elements

	return out
}

func (c *converter) binding(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindIdentifier, n)
	out.Name = c.text(n)
	out.Binding = true

	return out
}

// pattern converts a declaration target. Identifiers inside it are marked as
// bindings; default values stay ordinary expressions.
func (c *converter) pattern(n *sitter.Node) *jsast.Node {
	if n == nil {
		return nil
	}

	switch n.Type() {
	case "identifier", "undefined", "shorthand_property_identifier_pattern":
		return c.binding(n)

	case "object_pattern":
		out := c.newNode(jsast.KindObjectPattern, n)
		for _, child := range c.named(n) {
			out.Elements = append(out.Elements, c.patternProperty(child))
		}
		out.Children = out.Elements

		return out

	case "array_pattern":
		out := c.newNode(jsast.KindArrayPattern, n)
		for _, child := range c.named(n) {
			out.Elements = append(out.Elements, c.pattern(child))
		}
		out.Children = out.Elements

		return out

	case "assignment_pattern":
		out := c.newNode(jsast.KindAssignmentPattern, n)
		out.Left = c.pattern(n.ChildByFieldName("left"))
		out.Right = c.convert(n.ChildByFieldName("right"))
		out.Children = appendNonNil(nil, out.Left, out.Right)

		return out

	case "rest_pattern":
		out := c.newNode(jsast.KindRest, n)
		out.Arg = c.pattern(c.firstNamed(n))
		out.Children = appendNonNil(nil, out.Arg)

		return out
	}

	return c.convert(n)
}

func (c *converter) patternProperty(n *sitter.Node) *jsast.Node {
	switch n.Type() {
	case "shorthand_property_identifier_pattern":
		out := c.newNode(jsast.KindProperty, n)
		out.Shorthand = true
		out.Key = c.propertyKeyFromText(n)
		out.Value = c.binding(n)
		out.Children = []*jsast.Node{out.Value}

		return out

	case "object_assignment_pattern":
		left := n.ChildByFieldName("left")

		out := c.newNode(jsast.KindProperty, n)
		out.Shorthand = true
		if left != nil && left.Type() == "shorthand_property_identifier_pattern" {
			out.Key = c.propertyKeyFromText(left)
		}

		value := c.newNode(jsast.KindAssignmentPattern, n)
		value.Left = c.pattern(left)
		value.Right = c.convert(n.ChildByFieldName("right"))
		value.Children = appendNonNil(nil, value.Left, value.Right)

		out.Value = value
		out.Children = []*jsast.Node{value}

		return out

	case "pair_pattern":
		out := c.newNode(jsast.KindProperty, n)
		out.Key, out.Computed = c.propertyKey(n.ChildByFieldName("key"))
		out.Value = c.pattern(n.ChildByFieldName("value"))

		if out.Computed {
			out.Children = appendNonNil(out.Children, out.Key)
		}
		out.Children = appendNonNil(out.Children, out.Value)

		return out
	}

	return c.pattern(n)
}

func (c *converter) assignTarget(n *sitter.Node) *jsast.Node {
	if n == nil {
		return nil
	}

	switch n.Type() {
	case "object_pattern", "array_pattern":
		return c.pattern(n)
	}

	return c.convert(n)
}

func (c *converter) propertyKeyFromText(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindPropertyKey, n)
	out.Name = c.text(n)

	return out
}

// propertyKey converts an object key. Computed keys are returned as ordinary
// expressions with computed set.
func (c *converter) propertyKey(n *sitter.Node) (*jsast.Node, bool) {
	if n == nil {
		return nil, false
	}

	switch n.Type() {
	case "computed_property_name":
		return c.convert(c.firstNamed(n)), true

	case "string":
		out := c.newNode(jsast.KindPropertyKey, n)
		out.Name = cookString(c.text(n))
		out.Str = out.Name

		return out, false

	case "number":
		out := c.newNode(jsast.KindPropertyKey, n)
		if f, ok := parseNumber(c.text(n)); ok {
			out.Num = f
			out.Name = strconv.FormatFloat(f, 'f', -1, 64)
		} else {
			out.Name = c.text(n)
		}

		return out, false
	}

	return c.propertyKeyFromText(n), false
}

func (c *converter) object(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindObject, n)

	for _, child := range c.named(n) {
		switch child.Type() {
		case "pair":
			prop := c.newNode(jsast.KindProperty, child)
			prop.Key, prop.Computed = c.propertyKey(child.ChildByFieldName("key"))
			prop.Value = c.convert(child.ChildByFieldName("value"))

			if prop.Computed {
				prop.Children = appendNonNil(prop.Children, prop.Key)
			}
			prop.Children = appendNonNil(prop.Children, prop.Value)

			out.Elements = append(out.Elements, prop)

		case "shorthand_property_identifier":
			prop := c.newNode(jsast.KindProperty, child)
			prop.Shorthand = true
			prop.Key = c.propertyKeyFromText(child)

			value := c.newNode(jsast.KindIdentifier, child)
			value.Name = c.text(child)
			prop.Value = value
			prop.Children = []*jsast.Node{value}

			out.Elements = append(out.Elements, prop)

		default:
			out.Elements = append(out.Elements, c.convert(child))
		}
	}

	out.Children = out.Elements

	return out
}

func (c *converter) call(n *sitter.Node) *jsast.Node {
	callee := c.convert(n.ChildByFieldName("function"))
	args := n.ChildByFieldName("arguments")

	if args != nil && args.Type() == "template_string" {
		out := c.newNode(jsast.KindOther, n)
		out.Name = "tagged_template"
		out.Children = appendNonNil(nil, callee, c.convert(args))

		return out
	}

	out := c.newNode(jsast.KindCall, n)
	out.Callee = callee
	if args != nil {
		out.Args = c.all(c.named(args))
	}
	out.Children = appendNonNil([]*jsast.Node{callee}, out.Args...)

	return out
}

func (c *converter) function(n *sitter.Node, form string) *jsast.Node {
	out := c.newNode(jsast.KindFunction, n)
	out.Name = form

	var keyChild *jsast.Node

	if name := n.ChildByFieldName("name"); name != nil {
		if form == "method" {
			var computed bool

			out.Key, computed = c.propertyKey(name)
			if computed {
				keyChild = out.Key
			}
		} else {
			out.Id = c.binding(name)
		}
	}

	if param := n.ChildByFieldName("parameter"); param != nil {
		out.Params = append(out.Params, c.pattern(param))
	}

	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, p := range c.named(params) {
			out.Params = append(out.Params, c.pattern(p))
		}
	}

	out.Body = c.convert(n.ChildByFieldName("body"))

	out.Children = appendNonNil(out.Children, keyChild)
	out.Children = appendNonNil(out.Children, out.Params...)
	out.Children = appendNonNil(out.Children, out.Body)

	return out
}

func (c *converter) class(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindClass, n)

	out.Name = "expression"
	if n.Type() == "class_declaration" {
		out.Name = "declaration"
	}

	name := n.ChildByFieldName("name")
	if name != nil {
		out.Id = c.binding(name)
	}

	for _, child := range c.named(n) {
		if name != nil && child.StartByte() == name.StartByte() && child.EndByte() == name.EndByte() {
			continue
		}

		out.Children = append(out.Children, c.convert(child))
	}

	return out
}

func (c *converter) forIn(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindForIn, n)
	out.Name = fieldType(n, "kind")

	left := n.ChildByFieldName("left")
	if out.Name != "" {
		out.Left = c.pattern(left)
	} else {
		out.Left = c.assignTarget(left)
	}

	out.Right = c.convert(n.ChildByFieldName("right"))
	out.Body = c.convert(n.ChildByFieldName("body"))
	out.Children = appendNonNil(nil, out.Left, out.Right, out.Body)

	return out
}

func (c *converter) importStatement(n *sitter.Node) *jsast.Node {
	c.module = true

	out := c.newNode(jsast.KindImport, n)
	if source := n.ChildByFieldName("source"); source != nil {
		out.Source = cookString(c.text(source))
	}

	for _, child := range c.named(n) {
		if child.Type() != "import_clause" {
			continue
		}

		for _, part := range c.named(child) {
			switch part.Type() {
			case "identifier":
				out.Specifiers = append(out.Specifiers, jsast.ImportSpecifier{
					Imported: "default",
					Local:    c.binding(part),
				})

			case "namespace_import":
				if id := c.firstNamed(part); id != nil {
					out.Specifiers = append(out.Specifiers, jsast.ImportSpecifier{
						Imported: "*",
						Local:    c.binding(id),
					})
				}

			case "named_imports":
				for _, spec := range c.named(part) {
					if spec.Type() != "import_specifier" {
						continue
					}

					name := spec.ChildByFieldName("name")
					if name == nil {
						continue
					}

					local := spec.ChildByFieldName("alias")
					if local == nil {
						local = name
					}

					imported := c.text(name)
					if name.Type() == "string" {
						imported = cookString(imported)
					}

					out.Specifiers = append(out.Specifiers, jsast.ImportSpecifier{
						Imported: imported,
						Local:    c.binding(local),
					})
				}
			}
		}
	}

	return out
}

func (c *converter) template(n *sitter.Node) *jsast.Node {
	out := c.newNode(jsast.KindTemplate, n)

	start := n.StartByte() + 1
	end := n.EndByte() - 1

	for _, child := range c.named(n) {
		if child.Type() != "template_substitution" {
			continue
		}

		out.Quasis = append(out.Quasis, cookTemplate(string(c.src[start:child.StartByte()])))
		out.Elements = append(out.Elements, c.convert(c.firstNamed(child)))
		start = child.EndByte()
	}

	if end < start {
		end = start
	}

	out.Quasis = append(out.Quasis, cookTemplate(string(c.src[start:end])))
	out.Children = appendNonNil(nil, out.Elements...)

	return out
}

// cookString decodes a quoted JavaScript string literal.
func cookString(raw string) string {
	if len(raw) >= 2 {
		raw = raw[1 : len(raw)-1]
	}

	return unescape(raw)
}

func cookTemplate(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return unescape(raw)
}

//nolint:gocyclo // escape table
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder

	var pendingHigh rune = -1

	flush := func() {
		if pendingHigh >= 0 {
			b.WriteRune(utf8.RuneError)
			pendingHigh = -1
		}
	}

	writeUnit := func(r rune) {
		if utf16.IsSurrogate(r) {
			if r < 0xDC00 {
				flush()
				pendingHigh = r

				return
			}

			if pendingHigh >= 0 {
				b.WriteRune(utf16.DecodeRune(pendingHigh, r))
				pendingHigh = -1

				return
			}
		}

		flush()
		b.WriteRune(r)
	}

	for i := 0; i < len(s); {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			r, size := utf8.DecodeRuneInString(s[i:])
			writeUnit(r)
			i += size

			continue
		}

		i++
		esc := s[i]
		i++

		switch esc {
		case 'n':
			writeUnit('\n')
		case 't':
			writeUnit('\t')
		case 'r':
			writeUnit('\r')
		case 'b':
			writeUnit('\b')
		case 'f':
			writeUnit('\f')
		case 'v':
			writeUnit('\v')
		case '\n':
		case '\r':
			if i < len(s) && s[i] == '\n' {
				i++
			}
		case 'x':
			if i+2 <= len(s) {
				if v, err := strconv.ParseUint(s[i:i+2], 16, 8); err == nil {
					writeUnit(rune(v))
					i += 2

					continue
				}
			}

			writeUnit('x')
		case 'u':
			if i < len(s) && s[i] == '{' {
				if closeIdx := strings.IndexByte(s[i:], '}'); closeIdx > 0 {
					if v, err := strconv.ParseUint(s[i+1:i+closeIdx], 16, 32); err == nil {
						writeUnit(rune(v))
						i += closeIdx + 1

						continue
					}
				}
			} else if i+4 <= len(s) {
				if v, err := strconv.ParseUint(s[i:i+4], 16, 16); err == nil {
					writeUnit(rune(v))
					i += 4

					continue
				}
			}

			writeUnit('u')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j-i < 2 && s[j] >= '0' && s[j] <= '7' {
				j++
			}

			v, _ := strconv.ParseUint(string(esc)+s[i:j], 8, 16)
			writeUnit(rune(v))
			i = j
		default:
			r, size := utf8.DecodeRuneInString(s[i-1:])
			writeUnit(r)
			i += size - 1
		}
	}

	flush()

	return b.String()
}

// parseNumber converts a JavaScript numeric literal. BigInt literals are
// rejected.
func parseNumber(text string) (float64, bool) {
	text = strings.ReplaceAll(text, "_", "")
	if text == "" || strings.HasSuffix(text, "n") {
		return 0, false
	}

	lower := strings.ToLower(text)

	base := 0
	digits := lower

	switch {
	case strings.HasPrefix(lower, "0x"):
		base, digits = 16, lower[2:]
	case strings.HasPrefix(lower, "0o"):
		base, digits = 8, lower[2:]
	case strings.HasPrefix(lower, "0b"):
		base, digits = 2, lower[2:]
	case len(lower) > 1 && lower[0] == '0' && strings.Trim(lower, "01234567") == "":
		base, digits = 8, lower[1:]
	}

	if base != 0 {
		v, err := strconv.ParseUint(digits, base, 64)
		if err != nil {
			return 0, false
		}

		return float64(v), true
	}

	f, err := strconv.ParseFloat(lower, 64)
	if err != nil {
		return 0, false
	}

	return f, true
}
