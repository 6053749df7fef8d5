package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"classicalc/internal/ast"
	"classicalc/internal/errors"
)

func TestRunRejectsUnsupportedOptLevel(t *testing.T) {
	cfg := Config{InFile: "in.cl", OutFile: "out.s", OptLevel: 1, Parse: func(string) (*ast.Node, error) { return nil, nil }}
	_, err := Run(cfg)
	ce, ok := err.(*errors.CompilerError)
	if !ok || ce.Kind != errors.Invocation {
		t.Fatalf("expected an Invocation error for -O 1, got %v", err)
	}
}

func TestRunRequiresAParser(t *testing.T) {
	cfg := Config{InFile: "in.cl", OutFile: "out.s"}
	_, err := Run(cfg)
	ce, ok := err.(*errors.CompilerError)
	if !ok || ce.Kind != errors.Invocation {
		t.Fatalf("expected an Invocation error when no parser is configured, got %v", err)
	}
}

// fakeCapp builds a shell script standing in for ./capp, copying its
// input straight through.
func fakeCapp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "capp.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncp \"$1\" \"$2\"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEndToEndWithInjectedParser(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.cl")
	if err := os.WriteFile(in, []byte("u8 x;"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out.s")

	cfg := Config{
		InFile:   in,
		OutFile:  out,
		CappPath: fakeCapp(t),
		Parse: func(string) (*ast.Node, error) {
			return &ast.Node{Kind: ast.TProgram}, nil
		},
	}

	stats, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.BytesEmitted == 0 {
		t.Error("expected some assembly to be emitted")
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected output file to contain the emitted assembly")
	}
}
