package script

import (
	"strings"
	"testing"
)

func TestHasModuleSyntax(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"export function", `export function handle() {}`, true},
		{"export default", `export default handle;`, true},
		{"import named", `import { x } from "./a.js";`, true},
		{"import bare", `import "./a.js";`, true},
		{"indented export", "  export const x = 1;", true},
		{"classic function", `function handle() {}`, false},
		{"word inside string", `const s = "export nothing";`, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasModuleSyntax(tt.source); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTransformModule(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "export function",
			source: "export function handle(x) {\n  return x;\n}",
			want:   []string{"function handle(x) {", "module.exports.handle = handle;"},
		},
		{
			name:   "export async function",
			source: "export async function handle(x) { return x; }",
			want:   []string{"async function handle(x)", "module.exports.handle = handle;"},
		},
		{
			name:   "export const",
			source: "export const limit = 3;",
			want:   []string{"const limit = 3;", "module.exports.limit = limit;"},
		},
		{
			name:   "export list with rename",
			source: "function a() {}\nexport { a, a as b };",
			want:   []string{"module.exports.a = a;", "module.exports.b = a;"},
		},
		{
			name:   "export default",
			source: "export default 42;",
			want:   []string{"module.exports.default = 42;"},
		},
		{
			name:   "export star",
			source: `export * from "./lib.js";`,
			want:   []string{`Object.assign(module.exports, require("./lib.js"));`},
		},
		{
			name:   "import named",
			source: `import { a, b as c } from "./lib.js";`,
			want:   []string{`const { a, b: c } = require("./lib.js");`},
		},
		{
			name:   "import namespace",
			source: `import * as lib from "./lib.js";`,
			want:   []string{`const lib = require("./lib.js");`},
		},
		{
			name:   "import default",
			source: `import lib from "./lib.js";`,
			want: []string{
				`const lib = __requireDefault(require("./lib.js"));`,
				"function __requireDefault(m)",
			},
		},
		{
			name:   "import default plus named",
			source: `import lib, { a } from "./lib.js";`,
			want: []string{
				`const lib = __requireDefault(require("./lib.js"));`,
				`const { a } = require("./lib.js");`,
			},
		},
		{
			name:   "import bare",
			source: `import "./side.js";`,
			want:   []string{`require("./side.js");`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := transformModule(tt.source)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
			if strings.Contains(out, "export ") || strings.Contains(out, "import ") {
				t.Errorf("expected module syntax to be rewritten, got:\n%s", out)
			}
		})
	}
}

func TestTransformKeepsLineNumbers(t *testing.T) {
	source := "import { a } from \"./lib.js\";\n\nexport function handle() {\n  return a;\n}"
	out := transformModule(source)
	srcLines := strings.Count(source, "\n")
	outLines := strings.Count(out, "\n")
	if outLines < srcLines {
		t.Fatalf("expected transformed source to keep original lines, got %d < %d", outLines, srcLines)
	}
	for i, line := range strings.Split(out, "\n")[:srcLines+1] {
		if strings.HasPrefix(strings.TrimSpace(line), "export ") {
			t.Errorf("line %d still has export syntax: %q", i+1, line)
		}
	}
}
