package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"classicalc/internal/errors"
)

// fakeCapp builds a tiny shell script standing in for ./capp: it copies
// its first argument to its second, matching the real preprocessor's
// contract well enough to exercise Run's plumbing.
func fakeCapp(t *testing.T, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "capp.sh")
	script := "#!/bin/sh\n"
	if exitCode == 0 {
		script += "cp \"$1\" \"$2\"\nexit 0\n"
	} else {
		script += "exit 1\n"
	}
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSucceeds(t *testing.T) {
	capp := fakeCapp(t, 0)
	in := filepath.Join(t.TempDir(), "in.cl")
	if err := os.WriteFile(in, []byte("u8 x;"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := Run(capp, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != OutputPath {
		t.Fatalf("expected %q, got %q", OutputPath, out)
	}
}

func TestRunFailureIsInvocationError(t *testing.T) {
	capp := fakeCapp(t, 1)
	in := filepath.Join(t.TempDir(), "in.cl")
	os.WriteFile(in, []byte("u8 x;"), 0644)

	_, err := Run(capp, in)
	if err == nil {
		t.Fatal("expected an error")
	}
	ce, ok := err.(*errors.CompilerError)
	if !ok {
		t.Fatalf("expected *errors.CompilerError, got %T", err)
	}
	if ce.Kind != errors.Invocation {
		t.Fatalf("expected Invocation kind, got %v", ce.Kind)
	}
}
