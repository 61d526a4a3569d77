package wrappers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/relocator/internal/adapter"
	"github.com/mouse-blink/relocator/internal/domain/rewrite"
	"github.com/mouse-blink/relocator/internal/jsast"
)

const amdSource = `(function (define) { 'use strict';
  define(function (require) {
    var data = require('./data.json');
  });
})(typeof define === 'function' && define.amd ? define : function (factory) { module.exports = factory(require); });
`

const browserifyPrelude = `(function(f){if(typeof exports==="object"&&typeof module!=="undefined"){module.exports=f()}})(function(){var define,module,exports;return (function(){function r(e,n,t){return e}return r})()(`

func parse(t *testing.T, src string) (*jsast.Program, *rewrite.Rewriter) {
	t.Helper()

	program, err := adapter.NewLocalJSFileAdapter().Parse(context.Background(), "bundle.js", []byte(src))
	require.NoError(t, err)

	return program, rewrite.New(program.Source)
}

func requireParams(p *jsast.Program) int {
	count := 0

	jsast.Inspect(p.Root, func(n *jsast.Node) bool {
		if n.IsFunction() {
			for _, param := range n.Params {
				if jsast.IsIdentifier(param, "require") {
					count++
				}
			}
		}

		return true
	})

	return count
}

func TestNormalize_AMD(t *testing.T) {
	program, r := parse(t, amdSource)
	require.Equal(t, 1, requireParams(program))

	wrapper, err := Normalize(program, r)
	require.NoError(t, err)

	assert.Equal(t, AMD, wrapper)
	assert.Contains(t, r.String(), "define(function () {")
	assert.Contains(t, r.String(), "factory(require)")
	assert.Equal(t, 0, requireParams(program))

	jsast.AttachScopes(program)

	for i := range program.Scopes {
		assert.False(t, program.Scopes[i].Declares("require"))
	}
}

func TestNormalize_AMDNearMisses(t *testing.T) {
	tests := map[string]string{
		"different property": strings.Replace(amdSource, "define.amd", "define.cmd", 1),
		"typeof other":       strings.Replace(amdSource, "typeof define", "typeof exports", 1),
		"factory arg":        strings.Replace(amdSource, "factory(require)", "factory(exports)", 1),
		"inner param name":   strings.Replace(amdSource, "function (require)", "function (req)", 1),
		"extra statement":    strings.Replace(amdSource, "'use strict';", "'use strict'; var x = 1;", 1),
		"arrow factory":      strings.Replace(amdSource, "define(function (require) {", "define((require) => {", 1),
		"two statements":     amdSource + "var y = 2;\n",
	}

	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			program, r := parse(t, src)

			wrapper, err := Normalize(program, r)
			require.NoError(t, err)

			assert.Equal(t, None, wrapper)
			assert.False(t, r.Changed())
		})
	}
}

func TestNormalize_Browserify(t *testing.T) {
	tests := []struct {
		name    string
		modules string
		cache   string
		want    Wrapper
		wantOut string
	}{
		{
			name: "externals are injected into the cache",
			modules: `{1:[function(require,module,exports){
var ext = require("external");
var other = require("other");
},{"external":undefined,"./local":2,"other":undefined}],2:[function(require,module,exports){
},{"external":undefined}]}`,
			cache: "{}",
			want:  Browserify,
			wantOut: `{"external": { exports: require("external") },
  "other": { exports: require("other") }}`,
		},
		{
			name: "existing cache entries are kept",
			modules: `{1:[function(require,module,exports){
},{"ext":undefined}]}`,
			cache:   `{"seed":{exports:1}}`,
			want:    Browserify,
			wantOut: `{"seed":{exports:1}, "ext": { exports: require("ext") }}`,
		},
		{
			name: "no externals",
			modules: `{1:[function(require,module,exports){
},{"./local":2}],2:[function(require,module,exports){
},{}]}`,
			cache: "{}",
			want:  None,
		},
		{
			name: "identifier module key",
			modules: `{a:[function(require,module,exports){
},{"ext":undefined}]}`,
			cache: "{}",
			want:  None,
		},
		{
			name: "computed dependency value",
			modules: `{1:[function(require,module,exports){
},{"ext":undefined,"x":a.b}]}`,
			cache: "{}",
			want:  None,
		},
		{
			name: "identifier dependency key",
			modules: `{1:[function(require,module,exports){
},{ext:undefined}]}`,
			cache: "{}",
			want:  None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := browserifyPrelude + tt.modules + "," + tt.cache + ",[1])(1)\n});\n"
			program, r := parse(t, src)

			wrapper, err := Normalize(program, r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, wrapper)

			if tt.want == None {
				assert.False(t, r.Changed())
				return
			}

			assert.Contains(t, r.String(), ","+tt.wantOut+",[1])(1)")
		})
	}
}

func TestNormalize_PlainProgram(t *testing.T) {
	program, r := parse(t, "module.exports = require('./x');\n")

	wrapper, err := Normalize(program, r)
	require.NoError(t, err)

	assert.Equal(t, None, wrapper)
	assert.Equal(t, "none", wrapper.String())
	assert.False(t, r.Changed())
}
