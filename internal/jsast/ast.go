// Package jsast holds the small, closed JavaScript syntax tree the relocator
// works on, together with lexical scope attachment.
//
// The tree only models the node kinds the evaluator and the walker care
// about. Everything else is kept as KindOther so its children are still
// visited.
package jsast

// Kind tags a Node.
type Kind uint8

// Node kinds.
const (
	KindOther Kind = iota
	KindProgram
	KindExpressionStatement
	KindVariableDeclaration
	KindVariableDeclarator
	KindFunction
	KindClass
	KindBlock
	KindReturn
	KindCatch
	KindFor
	KindForIn
	KindImport
	KindExport
	KindIdentifier
	KindPropertyKey
	KindString
	KindNumber
	KindBoolean
	KindNull
	KindThis
	KindTemplate
	KindArray
	KindObject
	KindProperty
	KindSpread
	KindUnary
	KindBinary
	KindAssignment
	KindConditional
	KindCall
	KindNew
	KindMember
	KindParen
	KindObjectPattern
	KindArrayPattern
	KindAssignmentPattern
	KindRest
	KindSequence
)

var kindNames = [...]string{
	KindOther:               "Other",
	KindProgram:             "Program",
	KindExpressionStatement: "ExpressionStatement",
	KindVariableDeclaration: "VariableDeclaration",
	KindVariableDeclarator:  "VariableDeclarator",
	KindFunction:            "Function",
	KindClass:               "Class",
	KindBlock:               "Block",
	KindReturn:              "Return",
	KindCatch:               "Catch",
	KindFor:                 "For",
	KindForIn:               "ForIn",
	KindImport:              "Import",
	KindExport:              "Export",
	KindIdentifier:          "Identifier",
	KindPropertyKey:         "PropertyKey",
	KindString:              "String",
	KindNumber:              "Number",
	KindBoolean:             "Boolean",
	KindNull:                "Null",
	KindThis:                "This",
	KindTemplate:            "Template",
	KindArray:               "Array",
	KindObject:              "Object",
	KindProperty:            "Property",
	KindSpread:              "Spread",
	KindUnary:               "Unary",
	KindBinary:              "Binary",
	KindAssignment:          "Assignment",
	KindConditional:         "Conditional",
	KindCall:                "Call",
	KindNew:                 "New",
	KindMember:              "Member",
	KindParen:               "Paren",
	KindObjectPattern:       "ObjectPattern",
	KindArrayPattern:        "ArrayPattern",
	KindAssignmentPattern:   "AssignmentPattern",
	KindRest:                "Rest",
	KindSequence:            "Sequence",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "Unknown"
}

// ScopeID indexes Program.Scopes. The zero value means "no scope".
type ScopeID int32

// NoScope marks a node that does not open a scope.
const NoScope ScopeID = 0

// Node is a syntax tree node. Only the fields relevant to a node's Kind are
// populated; Children always lists the traversable sub-nodes in source order.
//
// Field usage by kind:
//
//	Identifier          Name, Binding
//	PropertyKey         Name (identifier keys) or Str (string/number keys)
//	String              Str (cooked value)
//	Number              Num
//	Boolean             Bool
//	Template            Quasis (cooked chunks), Elements (substitutions)
//	Array               Elements
//	Object              Elements (Property / Spread / method Function nodes)
//	Property            Key, Value, Computed, Shorthand
//	Unary               Op, Arg
//	Binary              Op, Left, Right
//	Assignment          Op, Left, Right
//	Conditional         Test, Then, Else
//	Call, New           Callee, Args
//	Member              Object, Name (non-computed) or Property (computed)
//	Paren               Arg
//	ExpressionStatement Arg
//	Return              Arg
//	VariableDeclaration Name ("var", "let", "const"), Elements (declarators)
//	VariableDeclarator  Left (pattern), Right (initializer, may be nil)
//	Function            Id, Params, Body, Name ("declaration", "expression", "arrow", "method")
//	Class               Id, Name ("declaration", "expression")
//	Block, Program      Elements (statements)
//	Catch               Left (parameter, may be nil), Body
//	For                 Left (initializer), Body
//	ForIn               Name (declaration kind or ""), Left, Right, Body
//	Import              Source, Specifiers
//	Export              Source (re-exports only)
//	Spread, Rest        Arg
//	AssignmentPattern   Left, Right
type Node struct {
	Kind     Kind
	Start    uint32
	End      uint32
	Children []*Node

	Name      string
	Op        string
	Str       string
	Num       float64
	Bool      bool
	Binding   bool
	Computed  bool
	Shorthand bool

	Left, Right      *Node
	Test, Then, Else *Node
	Object, Property *Node
	Callee           *Node
	Args             []*Node
	Arg              *Node
	Elements         []*Node
	Quasis           []string
	Key, Value       *Node
	Id               *Node
	Params           []*Node
	Body             *Node
	Source           string
	Specifiers       []ImportSpecifier
	Scope            ScopeID
}

// ImportSpecifier describes one binding introduced by an import declaration.
type ImportSpecifier struct {
	// Imported is the exported name, "default" or "*" for namespace imports.
	Imported string
	Local    *Node
}

// Program is a parsed source file.
type Program struct {
	Root   *Node
	Source []byte
	// Module is true when the file uses import/export syntax.
	Module bool
	// Scopes is the scope arena filled by AttachScopes; index 0 is unused.
	Scopes []Scope
	// RootScope is the program-level scope. It is never attached to Root.
	RootScope ScopeID
}

// Text returns the original source text spanned by n.
func (p *Program) Text(n *Node) string {
	if n == nil || int(n.End) > len(p.Source) || n.Start > n.End {
		return ""
	}

	return string(p.Source[n.Start:n.End])
}

// Scope returns the scope record for id, or nil.
func (p *Program) Scope(id ScopeID) *Scope {
	if id <= NoScope || int(id) >= len(p.Scopes) {
		return nil
	}

	return &p.Scopes[id]
}

// IsFunction reports whether n is any kind of function.
func (n *Node) IsFunction() bool {
	return n != nil && n.Kind == KindFunction
}

// Unparen strips any number of enclosing parentheses.
func Unparen(n *Node) *Node {
	for n != nil && n.Kind == KindParen {
		n = n.Arg
	}

	return n
}

// IsIdentifier reports whether n is a reference to the given name.
func IsIdentifier(n *Node, name string) bool {
	return n != nil && n.Kind == KindIdentifier && n.Name == name
}

// StaticMemberName returns the property name of a member expression whose
// key is known without evaluation (`a.b`, `a['b']`).
func StaticMemberName(n *Node) (string, bool) {
	if n == nil || n.Kind != KindMember {
		return "", false
	}

	if !n.Computed {
		return n.Name, true
	}

	if n.Property != nil && n.Property.Kind == KindString {
		return n.Property.Str, true
	}

	return "", false
}

// Visitor receives enter and leave callbacks from Walk. Returning false from
// Enter skips the node's children and its Leave call.
type Visitor interface {
	Enter(n, parent *Node) bool
	Leave(n, parent *Node)
}

// Walk traverses the tree rooted at n depth-first in source order.
func Walk(n *Node, v Visitor) {
	walk(n, nil, v)
}

func walk(n, parent *Node, v Visitor) {
	if n == nil {
		return
	}

	if !v.Enter(n, parent) {
		return
	}

	for _, child := range n.Children {
		walk(child, n, v)
	}

	v.Leave(n, parent)
}

// Inspect calls fn for every node in depth-first order. If fn returns false
// the node's children are skipped.
func Inspect(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	for _, child := range n.Children {
		Inspect(child, fn)
	}
}
