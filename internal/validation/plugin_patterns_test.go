package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePluginFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestValidatePluginDirectoryFlagsViolations(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "valid.go", `package budget

import (
	"context"

	"ledgercore/pkg/datamodel"
)

type Op struct{ limit datamodel.Scalar[datamodel.Money] }

func (op Op) Execute(_ context.Context, edit *datamodel.Edit) error {
	// time.Now() in a comment is fine
	return nil
}
`)
	writePluginFile(t, dir, "valid_test.go", `package budget

import "time"

var _ = time.Now()
`)
	writePluginFile(t, dir, "invalid.go", `package budget

import (
	"time"

	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/pkg/datamodel"
)

func bad(obj *datamodel.ExtendableObject, s *datamodel.Session, store *memory.Store) {
	if obj.PropertySet().ID() == "entry" {
		_ = time.Now()
	}
	s.Changes().StartRecording()
	_, _ = datamodel.OpenSession(nil, store, nil)
	panic("unreachable")
}
`)

	errs := ValidatePluginDirectory(dir)
	if len(errs) == 0 {
		t.Fatal("expected violations")
	}
	want := map[string]bool{
		"IsDerivedFrom":            false,
		"wall clock":               false,
		"instead of panicking":     false,
		"storage or blob adapters": false,
		"Edit passed to Execute":   false,
		"host service":             false,
	}
	for _, e := range errs {
		if !strings.HasSuffix(e.File, "invalid.go") {
			t.Errorf("unexpected violation in %s: %s", e.File, e.Message)
		}
		for frag := range want {
			if strings.Contains(e.Message, frag) {
				want[frag] = true
			}
		}
	}
	for frag, found := range want {
		if !found {
			t.Errorf("expected a violation mentioning %q, got %+v", frag, errs)
		}
	}
	for i := 1; i < len(errs); i++ {
		if errs[i].Line < errs[i-1].Line {
			t.Fatalf("violations not sorted by line: %+v", errs)
		}
	}
}

func TestValidatePluginDirectoryReportsParseAndWalkErrors(t *testing.T) {
	dir := t.TempDir()
	writePluginFile(t, dir, "broken.go", "package broken\nfunc {\n")
	errs := ValidatePluginDirectory(dir)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "Failed to parse") {
		t.Fatalf("expected a parse error, got %+v", errs)
	}

	errs = ValidatePluginDirectory(filepath.Join(dir, "missing"))
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "Failed to walk") {
		t.Fatalf("expected a walk error, got %+v", errs)
	}
}

func TestBundledPluginsAreClean(t *testing.T) {
	for _, dir := range []string{"../../plugins/loan", "../../plugins/reconcile"} {
		if errs := ValidatePluginDirectory(dir); len(errs) > 0 {
			t.Errorf("%s: %+v", dir, errs)
		}
	}
}

func TestIsCommentLine(t *testing.T) {
	cases := map[string]bool{
		"// note":       true,
		"  /* block */": true,
		"x := 1 // end": false,
		"":              false,
	}
	for line, want := range cases {
		if got := isCommentLine(line); got != want {
			t.Errorf("isCommentLine(%q) = %v, want %v", line, got, want)
		}
	}
}
