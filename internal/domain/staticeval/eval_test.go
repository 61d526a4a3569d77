package staticeval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/relocator/internal/adapter"
	"github.com/mouse-blink/relocator/internal/jsast"
)

func parseExpr(t *testing.T, src string) *jsast.Node {
	t.Helper()

	program, err := adapter.NewLocalJSFileAdapter().Parse(context.Background(), "expr.js", []byte("("+src+");"))
	require.NoError(t, err)
	require.Len(t, program.Root.Children, 1)

	stmt := program.Root.Children[0]
	require.Equal(t, jsast.KindExpressionStatement, stmt.Kind)

	return stmt.Arg
}

func testEnv() Vars {
	return Vars{
		"__dirname":  "/src",
		"__filename": "/src/index.js",
		"path":       NewPathModule("/src"),
	}
}

func TestEvalConcrete(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"number addition", "1 + 2", 3.0},
		{"string concatenation", "'a' + 1", "a1"},
		{"boolean concatenation", `"x" + true`, "xtrue"},
		{"template", "`a${1 + 1}b`", "a2b"},
		{"not", "!0", true},
		{"negated string", "-'3'", -3.0},
		{"bitwise not", "~5", -6.0},
		{"array length", "[1, 'a'].length", 2.0},
		{"object member", "({ a: 'b' }).a", "b"},
		{"computed object key", "({ ['k' + 1]: 2 }).k1", 2.0},
		{"string index", "'abc'[1]", "b"},
		{"modulo", "7 % 4", 3.0},
		{"less than", "1 < 2", true},
		{"string comparison", "'a' < 'b'", true},
		{"loose equality", "'10' == 10", true},
		{"strict equality", "'10' === 10", false},
		{"null equals undefined", "null == undefined", true},
		{"nullish", "null ?? 'x'", "x"},
		{"or", "0 || 'd'", "d"},
		{"and short circuit", "false && unknownThing", false},
		{"unsigned shift", "5 >>> 1", 2.0},
		{"exponent", "2 ** 10", 1024.0},
		{"dirname concat", "__dirname + '/x.json'", "/src/x.json"},
		{"path join", "path.join(__dirname, 'a', '../b.json')", "/src/b.json"},
		{"path basename", "path.basename(__filename, '.js')", "index"},
		{"decided conditional", "true ? 'a' : unknownThing", "a"},
		{"number formatting", "'v' + 1.5", "v1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Eval(parseExpr(t, tt.src), testEnv())

			c, ok := got.(Concrete)
			require.True(t, ok, "expected concrete value, got %#v", got)
			assert.Equal(t, tt.want, c.V)
		})
	}
}

func TestEvalUnknown(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"free identifier", "someVar"},
		{"function expression", "function () { return 1 }"},
		{"arrow function", "() => __dirname"},
		{"member of function value", "path.join.name"},
		{"unmodeled call", "foo('x')"},
		{"wrong argument type", "path.join(1)"},
		{"missing property", "path.nope"},
		{"two branches", "(a ? 'x' : 'y') + (b ? 'z' : 'w')"},
		{"branch in array", "[c ? 1 : 2]"},
		{"branch in object", "({ k: c ? 1 : 2 })"},
		{"template with two branches", "`${a ? 'x' : 'y'}/${b ? 'z' : 'w'}`"},
		{"one unknown arm", "c ? 'a' : other"},
		{"typeof", "typeof __dirname"},
		{"assignment", "x = 1"},
		{"new expression", "new Foo()"},
		{"spread argument", "path.join(...parts)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Eval(parseExpr(t, tt.src), testEnv())
			assert.True(t, IsUnknown(got), "expected unknown, got %#v", got)
		})
	}
}

func TestEvalBranch(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantThen any
		wantElse any
		wantTest string
	}{
		{
			name:     "bare conditional",
			src:      "cond ? './a.json' : './b.json'",
			wantThen: "./a.json",
			wantElse: "./b.json",
			wantTest: "cond",
		},
		{
			name:     "operator maps over arms",
			src:      "(cond ? 'a' : 'b') + '.json'",
			wantThen: "a.json",
			wantElse: "b.json",
			wantTest: "cond",
		},
		{
			name:     "call maps over a branch argument",
			src:      "path.join(__dirname, flag ? 'a.json' : 'b.json')",
			wantThen: "/src/a.json",
			wantElse: "/src/b.json",
			wantTest: "flag",
		},
		{
			name:     "template carries one branch",
			src:      "`${__dirname}/${x.y ? 'one' : 'two'}.node`",
			wantThen: "/src/one.node",
			wantElse: "/src/two.node",
			wantTest: "x.y",
		},
		{
			name:     "unary maps over arms",
			src:      "!(cond ? 0 : 1)",
			wantThen: true,
			wantElse: false,
			wantTest: "cond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "(" + tt.src + ");"

			program, err := adapter.NewLocalJSFileAdapter().Parse(context.Background(), "expr.js", []byte(src))
			require.NoError(t, err)

			got := Eval(program.Root.Children[0].Arg, testEnv())

			b, ok := got.(Branch)
			require.True(t, ok, "expected branch, got %#v", got)
			assert.Equal(t, tt.wantThen, b.Then)
			assert.Equal(t, tt.wantElse, b.Else)
			assert.Equal(t, tt.wantTest, program.Text(b.Test))
		})
	}
}

func TestEvalSwallowsModeledFailures(t *testing.T) {
	env := Vars{
		"boom": Func(func(any, []any) (any, error) {
			panic("modeled function exploded")
		}),
		"fail": Func(func(any, []any) (any, error) {
			return nil, errors.New("no")
		}),
	}

	assert.True(t, IsUnknown(Eval(parseExpr(t, "boom('x')"), env)))
	assert.True(t, IsUnknown(Eval(parseExpr(t, "fail('x')"), env)))
}

func TestEvalMethodReceiver(t *testing.T) {
	obj := NewObject().Set("tag", "T")
	obj.Set("get", Func(func(this any, _ []any) (any, error) {
		o, ok := this.(*Object)
		if !ok {
			return nil, errors.New("no receiver")
		}

		v, _ := o.Get("tag")

		return v, nil
	}))

	got := Eval(parseExpr(t, "obj.get()"), Vars{"obj": obj})
	assert.Equal(t, Concrete{V: "T"}, got)
}

func TestEvalNilEnv(t *testing.T) {
	assert.Equal(t, Concrete{V: "ab"}, Eval(parseExpr(t, "'a' + 'b'"), nil))
	assert.True(t, IsUnknown(Eval(nil, nil)))
}
