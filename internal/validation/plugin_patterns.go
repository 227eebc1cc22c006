// Package validation checks ledger plugin sources for patterns that bypass
// the datamodel's change tracking or the service boundary.
package validation

import (
	"bufio"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Error is a single violation found in plugin code.
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

type antiPattern struct {
	re      *regexp.Regexp
	message string
}

var antiPatterns = []antiPattern{
	{regexp.MustCompile(`\.PropertySet\(\)\.ID\(\)\s*[!=]=`), "Compare property sets with IsDerivedFrom instead of by id"},
	{regexp.MustCompile(`\btime\.Now\(\)`), "Take dates from operation inputs instead of the wall clock"},
	{regexp.MustCompile(`\bpanic\(`), "Return an error from the operation instead of panicking"},
	{regexp.MustCompile(`"ledgercore/internal/infra/`), "Plugins must not import storage or blob adapters"},
}

// hostOnlyCalls are package functions reserved for the host service.
var hostOnlyCalls = map[string]string{
	"datamodel.OpenSession":      "Plugins receive sessions from the host service",
	"datamodel.NewDataOperation": "Plugins hand operations to the service instead of running them",
	"datamodel.NewRegistry":      "Plugins register through core.PluginRegistry",
}

// editBypassMethods are methods that reach around the Edit token.
var editBypassMethods = map[string]string{
	"Changes":            "Record changes through the Edit passed to Execute",
	"StartRecording":     "Record changes through the Edit passed to Execute",
	"TakeUndoableChange": "Record changes through the Edit passed to Execute",
	"Rollback":           "Failed operations are rolled back by the service",
}

// ValidatePluginDirectory checks every non-test Go file below dir.
func ValidatePluginDirectory(dir string) []Error {
	var errs []Error
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		errs = append(errs, validatePluginFile(path)...)
		return nil
	})
	if err != nil {
		errs = append(errs, Error{File: dir, Message: "Failed to walk directory: " + err.Error()})
	}
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].File != errs[j].File {
			return errs[i].File < errs[j].File
		}
		return errs[i].Line < errs[j].Line
	})
	return errs
}

func validatePluginFile(path string) []Error {
	errs := validateFileText(path)
	return append(errs, validateFileAST(path)...)
}

func validateFileText(path string) []Error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return []Error{{File: path, Message: "Failed to open file: " + err.Error()}}
	}
	defer func() {
		_ = file.Close()
	}()

	var errs []Error
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || isCommentLine(line) {
			continue
		}
		for _, p := range antiPatterns {
			if p.re.MatchString(line) {
				errs = append(errs, Error{File: path, Line: lineNum, Message: p.message, Code: strings.TrimSpace(line)})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{File: path, Line: lineNum, Message: "Failed to read file: " + err.Error()})
	}
	return errs
}

func validateFileAST(path string) []Error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return []Error{{File: path, Message: "Failed to parse file: " + err.Error()}}
	}
	var errs []Error
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pos := fset.Position(call.Pos())
		if ident, ok := sel.X.(*ast.Ident); ok {
			name := ident.Name + "." + sel.Sel.Name
			if msg, bad := hostOnlyCalls[name]; bad {
				errs = append(errs, Error{File: pos.Filename, Line: pos.Line, Message: msg, Code: name + "(...)"})
				return true
			}
		}
		if msg, bad := editBypassMethods[sel.Sel.Name]; bad {
			errs = append(errs, Error{File: pos.Filename, Line: pos.Line, Message: msg, Code: "." + sel.Sel.Name + "(...)"})
		}
		return true
	})
	return errs
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*")
}
