// Package staticeval computes build-time values of JavaScript expressions.
//
// Evaluation is partial: a node either yields a Concrete value, a Branch over
// an undecidable conditional whose two arms are known, or Unknown. Only a
// small set of modeled host functions (path, fs.existsSync, bindings,
// node-pre-gyp, nbind) can be called.
package staticeval

import (
	"fmt"

	"github.com/mouse-blink/relocator/internal/jsast"
)

// Value is the result of evaluating an expression.
type Value interface {
	isValue()
}

// Concrete is a fully known value.
type Concrete struct {
	V any
}

// Branch is a value that depends on a condition the evaluator cannot decide.
// Test is the original condition node; Then and Else are the concrete values
// of the two arms.
type Branch struct {
	Test *jsast.Node
	Then any
	Else any
}

// Unknown marks an expression that cannot be evaluated statically.
type Unknown struct{}

func (Concrete) isValue() {}
func (Branch) isValue()   {}
func (Unknown) isValue()  {}

// IsUnknown reports whether v carries no information.
func IsUnknown(v Value) bool {
	if v == nil {
		return true
	}

	_, ok := v.(Unknown)

	return ok
}

// undefinedValue is JavaScript's undefined.
type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined is the evaluator's representation of `undefined`. JavaScript null
// is represented by Go nil.
var Undefined any = undefinedValue{}

// Func is a modeled host function. this is the receiver object for method
// calls and nil otherwise.
type Func func(this any, args []any) (any, error)

// Object is a plain JavaScript object with insertion-ordered keys.
type Object struct {
	keys  []string
	props map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{props: make(map[string]any)}
}

// Set assigns a property.
func (o *Object) Set(key string, v any) *Object {
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}

	o.props[key] = v

	return o
}

// Get looks a property up.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.props[key]
	return v, ok
}

// Keys returns the property names in insertion order.
func (o *Object) Keys() []string {
	return o.keys
}

// Env resolves free identifiers during evaluation.
type Env interface {
	Lookup(name string) (any, bool)
}

// Vars is a map-backed Env.
type Vars map[string]any

// Lookup implements Env.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

func describe(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case Func:
		return "function"
	case *Object:
		return "object"
	case []any:
		return fmt.Sprintf("array(%d)", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}
