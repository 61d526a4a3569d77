package jsast

// Scope is one lexical scope record in Program.Scopes.
type Scope struct {
	Parent ScopeID
	// Block is true for block scopes (`{}`, catch clauses, for heads); var
	// declarations skip them and land in the nearest function scope.
	Block bool
	names map[string]struct{}
	order []string
}

// Declares reports whether name is declared directly in s.
func (s *Scope) Declares(name string) bool {
	if s == nil {
		return false
	}

	_, ok := s.names[name]

	return ok
}

// Names returns the names declared in s, in declaration order.
func (s *Scope) Names() []string {
	if s == nil {
		return nil
	}

	return s.order
}

func (s *Scope) add(name string) {
	if s.names == nil {
		s.names = make(map[string]struct{})
	}

	if _, ok := s.names[name]; ok {
		return
	}

	s.names[name] = struct{}{}
	s.order = append(s.order, name)
}

// DeclaringScope returns the nearest scope from id outwards that declares
// name, or NoScope.
func (p *Program) DeclaringScope(id ScopeID, name string) ScopeID {
	for id != NoScope {
		s := p.Scope(id)
		if s == nil {
			return NoScope
		}

		if s.Declares(name) {
			return id
		}

		id = s.Parent
	}

	return NoScope
}

// AttachScopes builds the scope arena for p and tags every scope-opening node
// with its ScopeID. Functions, non-function blocks, catch clauses and
// for-heads declaring let/const open scopes. var, function and class
// declarations hoist past block scopes.
func AttachScopes(p *Program) {
	p.Scopes = []Scope{{}}
	p.RootScope = p.newScope(NoScope, false)

	b := &scopeBuilder{program: p}
	for _, child := range p.Root.Children {
		b.visit(child, p.Root, p.RootScope)
	}
}

func (p *Program) newScope(parent ScopeID, block bool) ScopeID {
	p.Scopes = append(p.Scopes, Scope{Parent: parent, Block: block})
	return ScopeID(len(p.Scopes) - 1)
}

type scopeBuilder struct {
	program *Program
}

func (b *scopeBuilder) declare(id ScopeID, name string, block bool) {
	for {
		s := b.program.Scope(id)
		if s == nil {
			return
		}

		if block || !s.Block || s.Parent == NoScope {
			s.add(name)
			return
		}

		id = s.Parent
	}
}

func (b *scopeBuilder) declarePattern(id ScopeID, pattern *Node, block bool) {
	for _, name := range PatternNames(pattern) {
		b.declare(id, name, block)
	}
}

func (b *scopeBuilder) visit(n, parent *Node, cur ScopeID) {
	if n == nil {
		return
	}

	next := cur

	switch n.Kind {
	case KindFunction:
		if n.Name == "declaration" && n.Id != nil {
			b.declare(cur, n.Id.Name, false)
		}

		next = b.program.newScope(cur, false)
		for _, param := range n.Params {
			b.declarePattern(next, param, false)
		}

		if n.Name == "expression" && n.Id != nil {
			b.declare(next, n.Id.Name, false)
		}

	case KindClass:
		if n.Name == "declaration" && n.Id != nil {
			b.declare(cur, n.Id.Name, false)
		}

	case KindVariableDeclaration:
		block := n.Name != "var"
		for _, decl := range n.Elements {
			b.declarePattern(cur, decl.Left, block)
		}

	case KindBlock:
		if parent == nil || parent.Kind != KindFunction {
			next = b.program.newScope(cur, true)
		}

	case KindCatch:
		next = b.program.newScope(cur, true)
		if n.Left != nil {
			b.declarePattern(next, n.Left, true)
		}

	case KindFor:
		if n.Left != nil && n.Left.Kind == KindVariableDeclaration && n.Left.Name != "var" {
			next = b.program.newScope(cur, true)
		}

	case KindForIn:
		switch n.Name {
		case "let", "const":
			next = b.program.newScope(cur, true)
			b.declarePattern(next, n.Left, true)
		case "var":
			b.declarePattern(cur, n.Left, false)
		}
	}

	if next != cur {
		n.Scope = next
	}

	for _, child := range n.Children {
		b.visit(child, n, next)
	}
}

// PatternNames lists the identifiers bound by a declaration pattern.
func PatternNames(n *Node) []string {
	var names []string

	var collect func(*Node)
	collect = func(n *Node) {
		if n == nil {
			return
		}

		switch n.Kind {
		case KindIdentifier:
			names = append(names, n.Name)
		case KindObjectPattern, KindArrayPattern:
			for _, el := range n.Elements {
				collect(el)
			}
		case KindProperty:
			collect(n.Value)
		case KindAssignmentPattern:
			collect(n.Left)
		case KindRest:
			collect(n.Arg)
		}
	}

	collect(n)

	return names
}
