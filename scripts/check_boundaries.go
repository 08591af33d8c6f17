package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "notary"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// Third-party packages the application layer may use directly.
var applicationLibraries = []string{
	"github.com/google/uuid",
	"golang.org/x/sync",
}

func main() {
	root := "contexts"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations := collectViolations(root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// collectViolations walks root laid out as <context>/<service>/<layer>/... and
// checks every non-test file against its layer's import rules.
func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil
		}
		contextName, serviceName := parts[0], parts[1]
		layer := ""
		if len(parts) > 3 {
			layer = parts[2]
		}
		modulePrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, contextName, serviceName)

		violations = append(violations, validateFile(path, "contexts/"+filepath.ToSlash(rel), layer, modulePrefix)...)
		return nil
	})

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				if violations[i].Import == violations[j].Import {
					return violations[i].Rule < violations[j].Rule
				}
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})
	return violations
}

func validateFile(path string, displayPath string, layer string, modulePrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: displayPath, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		add := func(rule string) {
			violations = append(violations, violation{File: displayPath, Line: line, Import: importPath, Rule: rule})
		}

		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, modulePrefix) {
			add("cross-module imports are forbidden")
		}

		switch layer {
		case "domain":
			if strings.Contains(importPath, "/adapters/") {
				add("domain must not import adapters")
			}
			if hasPrefix(importPath, modulePath+"/internal") {
				add("domain must not import runtime infrastructure")
			}
			if !isStdlib(importPath) && !isAllowed(importPath, []string{modulePrefix + "/domain"}) {
				add("domain import is outside explicit allowlist")
			}
		case "application", "ports":
			if strings.Contains(importPath, "/adapters/") {
				add(layer + " must not import adapters")
			}
			if hasPrefix(importPath, modulePath+"/internal/platform") || hasPrefix(importPath, modulePath+"/internal/app") {
				add(layer + " must not import runtime infrastructure")
			}
			allowed := append([]string{
				modulePrefix + "/application",
				modulePrefix + "/domain",
				modulePrefix + "/ports",
				modulePath + "/internal/shared",
			}, applicationLibraries...)
			if !isStdlib(importPath) && !isAllowed(importPath, allowed) {
				add(layer + " import is outside explicit allowlist")
			}
		}
	}
	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

// isStdlib treats any import whose first element has no dot as standard library.
func isStdlib(importPath string) bool {
	first := strings.SplitN(importPath, "/", 2)[0]
	return !strings.Contains(first, ".") && first != modulePath
}
