package script

import (
	"fmt"
	"regexp"
	"strings"
)

// The interpreter only speaks classic scripts and CommonJS modules, so
// module sources are rewritten line by line before evaluation. Line
// numbers survive the rewrite; support code is appended after the last
// line. The detection is a per-line heuristic, close enough for handler
// scripts.

var (
	exportDefaultRe = regexp.MustCompile(`^(\s*)export\s+default\s+`)
	exportDeclRe    = regexp.MustCompile(`^(\s*)export\s+((?:async\s+)?function\s+|class\s+|const\s+|let\s+|var\s+)([A-Za-z_$][\w$]*)`)
	exportListRe    = regexp.MustCompile(`^\s*export\s*\{([^}]*)\}\s*;?\s*$`)
	exportStarRe    = regexp.MustCompile(`^\s*export\s*\*\s*from\s*(['"][^'"]+['"])\s*;?\s*$`)
	importFromRe    = regexp.MustCompile(`^\s*import\s+(.+?)\s+from\s*(['"][^'"]+['"])\s*;?\s*$`)
	importBareRe    = regexp.MustCompile(`^\s*import\s*(['"][^'"]+['"])\s*;?\s*$`)
)

// hasModuleSyntax reports whether a source uses import or export
// statements and must be treated as a module.
func hasModuleSyntax(source string) bool {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		for _, prefix := range []string{"export ", "export{", "export*", "import ", "import{", "import'", `import"`} {
			if strings.HasPrefix(trimmed, prefix) {
				return true
			}
		}
	}
	return false
}

// transformModule rewrites import/export statements onto the module
// object require provides.
func transformModule(source string) string {
	lines := strings.Split(source, "\n")
	var exported []string
	needHelper := false

	for i, raw := range lines {
		line := strings.TrimSuffix(raw, "\r")

		if m := exportDeclRe.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + strings.TrimPrefix(strings.TrimSpace(line), "export ")
			exported = append(exported, m[3])
			continue
		}
		if m := exportDefaultRe.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + "module.exports.default = " + line[len(m[0]):]
			continue
		}
		if m := exportListRe.FindStringSubmatch(line); m != nil {
			lines[i] = rewriteExportList(m[1])
			continue
		}
		if m := exportStarRe.FindStringSubmatch(line); m != nil {
			lines[i] = fmt.Sprintf("Object.assign(module.exports, require(%s));", m[1])
			continue
		}
		if m := importFromRe.FindStringSubmatch(line); m != nil {
			var usedDefault bool
			lines[i], usedDefault = rewriteImport(m[1], m[2])
			needHelper = needHelper || usedDefault
			continue
		}
		if m := importBareRe.FindStringSubmatch(line); m != nil {
			lines[i] = fmt.Sprintf("require(%s);", m[1])
			continue
		}
	}

	var tail []string
	if len(exported) > 0 {
		assigns := make([]string, len(exported))
		for i, name := range exported {
			assigns[i] = fmt.Sprintf("module.exports.%s = %s;", name, name)
		}
		tail = append(tail, strings.Join(assigns, " "))
	}
	if needHelper {
		// Function declarations hoist, so the helper is callable from
		// the first line even though it sits at the end.
		tail = append(tail, "function __requireDefault(m) { return m && m.default !== undefined ? m.default : m; }")
	}

	out := strings.Join(lines, "\n")
	if len(tail) > 0 {
		out += "\n" + strings.Join(tail, "\n")
	}
	return out
}

// rewriteExportList turns "a, b as c" into module.exports assignments.
func rewriteExportList(list string) string {
	var assigns []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		src, dst := item, item
		if parts := strings.SplitN(item, " as ", 2); len(parts) == 2 {
			src = strings.TrimSpace(parts[0])
			dst = strings.TrimSpace(parts[1])
		}
		assigns = append(assigns, fmt.Sprintf("module.exports.%s = %s;", dst, src))
	}
	return strings.Join(assigns, " ")
}

// rewriteImport converts one import clause into require declarations and
// reports whether the default-unwrapping helper is needed.
func rewriteImport(clause, path string) (string, bool) {
	clause = strings.TrimSpace(clause)
	var decls []string
	needHelper := false

	for clause != "" {
		switch {
		case strings.HasPrefix(clause, "{"):
			end := strings.Index(clause, "}")
			if end < 0 {
				decls = append(decls, fmt.Sprintf("const %s = require(%s);", clause, path))
				clause = ""
				break
			}
			names := rewriteNamedImports(clause[1:end])
			decls = append(decls, fmt.Sprintf("const { %s } = require(%s);", names, path))
			clause = strings.TrimPrefix(strings.TrimSpace(clause[end+1:]), ",")
			clause = strings.TrimSpace(clause)
		case strings.HasPrefix(clause, "*"):
			rest := strings.TrimSpace(strings.TrimPrefix(clause, "*"))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "as"))
			decls = append(decls, fmt.Sprintf("const %s = require(%s);", rest, path))
			clause = ""
		default:
			name := clause
			rest := ""
			if idx := strings.Index(clause, ","); idx >= 0 {
				name = strings.TrimSpace(clause[:idx])
				rest = strings.TrimSpace(clause[idx+1:])
			}
			decls = append(decls, fmt.Sprintf("const %s = __requireDefault(require(%s));", name, path))
			needHelper = true
			clause = rest
		}
	}
	return strings.Join(decls, " "), needHelper
}

// rewriteNamedImports maps "a, b as c" to destructuring form "a, b: c".
func rewriteNamedImports(list string) string {
	items := strings.Split(list, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if parts := strings.SplitN(item, " as ", 2); len(parts) == 2 {
			out = append(out, strings.TrimSpace(parts[0])+": "+strings.TrimSpace(parts[1]))
		} else {
			out = append(out, item)
		}
	}
	return strings.Join(out, ", ")
}
