package staticeval

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/mouse-blink/relocator/internal/jsast"
)

// Eval computes the static value of an expression node. Free identifiers are
// resolved through env; anything else the evaluator does not model is
// Unknown. Eval never panics on behalf of modeled functions.
func Eval(n *jsast.Node, env Env) Value {
	if env == nil {
		env = Vars{}
	}

	e := &evaluator{env: env}

	return e.eval(n)
}

type evaluator struct {
	env Env
}

//nolint:gocyclo // one case per node kind
func (e *evaluator) eval(n *jsast.Node) Value {
	if n == nil {
		return Unknown{}
	}

	switch n.Kind {
	case jsast.KindParen:
		return e.eval(n.Arg)
	case jsast.KindString:
		return Concrete{V: n.Str}
	case jsast.KindNumber:
		return Concrete{V: n.Num}
	case jsast.KindBoolean:
		return Concrete{V: n.Bool}
	case jsast.KindNull:
		return Concrete{V: nil}
	case jsast.KindIdentifier:
		return e.identifier(n)
	case jsast.KindTemplate:
		return e.template(n)
	case jsast.KindArray:
		return e.array(n)
	case jsast.KindObject:
		return e.object(n)
	case jsast.KindUnary:
		return e.unary(n)
	case jsast.KindBinary:
		return e.binary(n)
	case jsast.KindConditional:
		return e.conditional(n)
	case jsast.KindMember:
		return e.member(n)
	case jsast.KindCall:
		return e.call(n)
	}

	return Unknown{}
}

func (e *evaluator) identifier(n *jsast.Node) Value {
	if n.Binding {
		return Unknown{}
	}

	if v, ok := e.env.Lookup(n.Name); ok {
		return Concrete{V: v}
	}

	switch n.Name {
	case "undefined":
		return Concrete{V: Undefined}
	case "NaN":
		return Concrete{V: math.NaN()}
	case "Infinity":
		return Concrete{V: math.Inf(1)}
	}

	return Unknown{}
}

// lift1 applies fn to a Concrete value or to both arms of a Branch.
func lift1(v Value, fn func(any) (any, bool)) Value {
	switch v := v.(type) {
	case Concrete:
		out, ok := fn(v.V)
		if !ok {
			return Unknown{}
		}

		return Concrete{V: out}
	case Branch:
		then, ok1 := fn(v.Then)
		els, ok2 := fn(v.Else)

		if !ok1 || !ok2 {
			return Unknown{}
		}

		return Branch{Test: v.Test, Then: then, Else: els}
	}

	return Unknown{}
}

// lift2 combines two values. At most one side may be a Branch.
func lift2(a, b Value, fn func(any, any) (any, bool)) Value {
	switch av := a.(type) {
	case Concrete:
		switch bv := b.(type) {
		case Concrete:
			out, ok := fn(av.V, bv.V)
			if !ok {
				return Unknown{}
			}

			return Concrete{V: out}
		case Branch:
			return lift1(bv, func(x any) (any, bool) { return fn(av.V, x) })
		}
	case Branch:
		if bv, ok := b.(Concrete); ok {
			return lift1(av, func(x any) (any, bool) { return fn(x, bv.V) })
		}
	}

	return Unknown{}
}

func (e *evaluator) template(n *jsast.Node) Value {
	if len(n.Quasis) != len(n.Elements)+1 {
		return Unknown{}
	}

	concat := func(a, b any) (any, bool) {
		as, ok1 := ToString(a)
		bs, ok2 := ToString(b)

		return as + bs, ok1 && ok2
	}

	var acc Value = Concrete{V: n.Quasis[0]}

	for i, el := range n.Elements {
		acc = lift2(acc, e.eval(el), concat)
		if IsUnknown(acc) {
			return acc
		}

		acc = lift2(acc, Concrete{V: n.Quasis[i+1]}, concat)
	}

	return acc
}

func (e *evaluator) array(n *jsast.Node) Value {
	out := make([]any, 0, len(n.Elements))

	for _, el := range n.Elements {
		c, ok := e.eval(el).(Concrete)
		if !ok {
			return Unknown{}
		}

		out = append(out, c.V)
	}

	return Concrete{V: out}
}

func (e *evaluator) object(n *jsast.Node) Value {
	obj := NewObject()

	for _, prop := range n.Elements {
		if prop.Kind != jsast.KindProperty {
			return Unknown{}
		}

		key, ok := e.propertyKey(prop)
		if !ok {
			return Unknown{}
		}

		c, ok := e.eval(prop.Value).(Concrete)
		if !ok {
			return Unknown{}
		}

		obj.Set(key, c.V)
	}

	return Concrete{V: obj}
}

func (e *evaluator) propertyKey(prop *jsast.Node) (string, bool) {
	if prop.Key == nil {
		return "", false
	}

	if !prop.Computed {
		return prop.Key.Name, true
	}

	c, ok := e.eval(prop.Key).(Concrete)
	if !ok {
		return "", false
	}

	return ToString(c.V)
}

func (e *evaluator) unary(n *jsast.Node) Value {
	switch n.Op {
	case "+", "-", "~", "!":
	default:
		return Unknown{}
	}

	return lift1(e.eval(n.Arg), func(v any) (any, bool) { return unaryOp(n.Op, v) })
}

func (e *evaluator) binary(n *jsast.Node) Value {
	left := e.eval(n.Left)

	if c, ok := left.(Concrete); ok {
		switch {
		case n.Op == "&&" && !Truthy(c.V),
			n.Op == "||" && Truthy(c.V),
			n.Op == "??" && c.V != nil && c.V != Undefined:
			return c
		}
	}

	if IsUnknown(left) {
		return Unknown{}
	}

	return lift2(left, e.eval(n.Right), func(a, b any) (any, bool) { return binaryOp(n.Op, a, b) })
}

func (e *evaluator) conditional(n *jsast.Node) Value {
	if c, ok := e.eval(n.Test).(Concrete); ok {
		if Truthy(c.V) {
			return e.eval(n.Then)
		}

		return e.eval(n.Else)
	}

	then, ok1 := e.eval(n.Then).(Concrete)
	els, ok2 := e.eval(n.Else).(Concrete)

	if !ok1 || !ok2 {
		return Unknown{}
	}

	return Branch{Test: n.Test, Then: then.V, Else: els.V}
}

func (e *evaluator) member(n *jsast.Node) Value {
	obj, ok := e.eval(n.Object).(Concrete)
	if !ok {
		return Unknown{}
	}

	if _, isFunc := obj.V.(Func); isFunc {
		return Unknown{}
	}

	key, ok := e.memberKey(n)
	if !ok {
		return Unknown{}
	}

	v, ok := lookup(obj.V, key)
	if !ok {
		return Unknown{}
	}

	return Concrete{V: v}
}

func (e *evaluator) memberKey(n *jsast.Node) (string, bool) {
	if !n.Computed {
		return n.Name, n.Name != ""
	}

	c, ok := e.eval(n.Property).(Concrete)
	if !ok {
		return "", false
	}

	return ToString(c.V)
}

func lookup(obj any, key string) (any, bool) {
	switch o := obj.(type) {
	case *Object:
		return o.Get(key)
	case string:
		units := utf16.Encode([]rune(o))
		if key == "length" {
			return float64(len(units)), true
		}

		if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(units) {
			return string(utf16.Decode(units[idx : idx+1])), true
		}
	case []any:
		if key == "length" {
			return float64(len(o)), true
		}

		if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(o) {
			return o[idx], true
		}
	}

	return nil, false
}

func (e *evaluator) call(n *jsast.Node) Value {
	var (
		this any
		fn   any
	)

	callee := jsast.Unparen(n.Callee)
	if callee == nil {
		return Unknown{}
	}

	if callee.Kind == jsast.KindMember {
		obj, ok := e.eval(callee.Object).(Concrete)
		if !ok {
			return Unknown{}
		}

		if _, isFunc := obj.V.(Func); isFunc {
			return Unknown{}
		}

		key, ok := e.memberKey(callee)
		if !ok {
			return Unknown{}
		}

		fn, ok = lookup(obj.V, key)
		if !ok {
			return Unknown{}
		}

		this = obj.V
	} else {
		c, ok := e.eval(callee).(Concrete)
		if !ok {
			return Unknown{}
		}

		fn = c.V
	}

	f, ok := fn.(Func)
	if !ok {
		return Unknown{}
	}

	return e.apply(f, this, n.Args)
}

// apply evaluates the arguments and calls f. A single Branch argument maps
// the call over both arms.
func (e *evaluator) apply(f Func, this any, argNodes []*jsast.Node) Value {
	args := make([]any, len(argNodes))
	branchAt := -1

	var branch Branch

	for i, node := range argNodes {
		if node.Kind == jsast.KindSpread {
			return Unknown{}
		}

		switch v := e.eval(node).(type) {
		case Concrete:
			args[i] = v.V
		case Branch:
			if branchAt >= 0 {
				return Unknown{}
			}

			branchAt, branch = i, v
		default:
			return Unknown{}
		}
	}

	if branchAt < 0 {
		out, err := safeCall(f, this, args)
		if err != nil {
			return Unknown{}
		}

		return Concrete{V: out}
	}

	return lift1(branch, func(arm any) (any, bool) {
		armArgs := append([]any(nil), args...)
		armArgs[branchAt] = arm

		out, err := safeCall(f, this, armArgs)

		return out, err == nil
	})
}

func safeCall(f Func, this any, args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("modeled call panicked: %v", r)
		}
	}()

	return f(this, args)
}
