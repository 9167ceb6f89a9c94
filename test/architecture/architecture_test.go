package architecture_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

// Layer boundaries the compiler cannot enforce: domain depends on nothing
// above it, and the service layer never reaches into transport.

func TestDomainLayerStaysPure(t *testing.T) {
	forbidden := []string{
		"transaction-risk-engine/internal/service",
		"transaction-risk-engine/internal/infrastructure",
		"transaction-risk-engine/internal/api",
		"transaction-risk-engine/internal/metrics",
		"net/http",
		"github.com/redis/go-redis",
		"github.com/knadh/koanf",
		"go.opentelemetry.io",
		"github.com/prometheus",
		"go.uber.org/zap",
	}

	for _, file := range goFiles(t, "../../internal/domain") {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		for _, imp := range fileImports(t, file) {
			for _, bad := range forbidden {
				if strings.Contains(imp, bad) {
					t.Errorf("domain file %s imports %s", file, imp)
				}
			}
		}
	}
}

func TestServiceLayerDoesNotImportTransport(t *testing.T) {
	for _, file := range goFiles(t, "../../internal/service") {
		for _, imp := range fileImports(t, file) {
			if strings.Contains(imp, "transaction-risk-engine/internal/api") {
				t.Errorf("service file %s imports transport package %s", file, imp)
			}
		}
	}
}

func TestValueObjectsHaveNoSetters(t *testing.T) {
	for _, file := range goFiles(t, "../../internal/domain/values") {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, file, nil, 0)
		if err != nil {
			t.Fatalf("parsing %s: %v", file, err)
		}

		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil {
				continue
			}
			if strings.HasPrefix(fn.Name.Name, "Set") {
				t.Errorf("value object in %s has setter %s", file, fn.Name.Name)
			}
		}
	}
}

// Helper functions

func goFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".go") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
	if len(files) == 0 {
		t.Fatalf("no Go files under %s", root)
	}
	return files
}

func fileImports(t *testing.T, file string) []string {
	t.Helper()

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
	if err != nil {
		t.Fatalf("parsing %s: %v", file, err)
	}

	imports := make([]string, 0, len(node.Imports))
	for _, imp := range node.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}
	return imports
}
