// Command classicalc drives the compiler middle/back end: preprocess,
// parse (via an external frontend, per spec.md §1/§6), linearize,
// allocate registers, and emit export-framed RISC-V-style assembly.
//
// Flags follow spec.md §6 and the teacher's convention of a manual
// flag set rather than a CLI framework.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"

	"classicalc/internal/ast"
	"classicalc/internal/diagserver"
	"classicalc/internal/errors"
	"classicalc/internal/pipeline"
)

// frontendParse is the seam the lexer/parser plugs into. spec.md §1
// treats the frontend as an external collaborator this repo only
// consumes the AST of; this build carries no embedded frontend, so it
// reports that plainly rather than guessing at one.
func frontendParse(preprocessedPath string) (*ast.Node, error) {
	return nil, errors.NewInvocation("no frontend wired into this build: classicalc consumes an AST, it does not lex/parse %q itself", preprocessedPath)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (exitCode int) {
	fs := flag.NewFlagSet("classicalc", flag.ContinueOnError)
	inFile := fs.String("i", "", "input source file (required)")
	outFile := fs.String("o", "", "output assembly file (required)")
	optLevel := fs.Int("O", 0, "optimization level (only 0 implemented)")
	linLevel := fs.Int("l", 0, "linearizer level (only 0 implemented)")
	regLevel := fs.Int("r", 0, "register allocator level (only 0 implemented)")
	codeLevel := fs.Int("c", 0, "codegen level (only 0 implemented)")
	verbosity := fs.Int("v", 0, "verbosity: 0 quiet, 1 phase banners, 2 symbol table dumps")
	cappPath := fs.String("capp", "./capp", "path to the preprocessor binary")
	cacheDSN := fs.String("cache", "", "build cache DSN, e.g. sqlite:/path/to/cache.db (disabled if empty)")
	diagAddr := fs.String("diag", "", "address to serve live diagnostics over WebSocket, e.g. :8787 (disabled if empty)")

	if err := fs.Parse(args); err != nil {
		return errors.Invocation.ExitCode()
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "classicalc: internal error: %v\n", r)
			exitCode = errors.Internal.ExitCode()
		}
	}()

	if *inFile == "" || *outFile == "" {
		return reportError(errors.NewInvocation("both -i and -o are required"))
	}

	var diag *diagserver.Server
	if *diagAddr != "" {
		diag = diagserver.New()
		go func() {
			if err := http.ListenAndServe(*diagAddr, diag); err != nil {
				fmt.Fprintf(os.Stderr, "classicalc: diagnostics server stopped: %v\n", err)
			}
		}()
	}

	cfg := pipeline.Config{
		InFile:          *inFile,
		OutFile:         *outFile,
		OptLevel:        *optLevel,
		LinearizerLevel: *linLevel,
		RegallocLevel:   *regLevel,
		CodegenLevel:    *codeLevel,
		Verbosity:       pipeline.Verbosity(*verbosity),
		CappPath:        *cappPath,
		CacheDSN:        *cacheDSN,
		Diag:            diag,
		Parse:           frontendParse,
	}

	stats, err := pipeline.Run(cfg)
	if err != nil {
		return reportError(err)
	}
	if *verbosity > 0 {
		fmt.Fprintln(os.Stderr, stats.Summary())
	}
	return 0
}

// reportError prints ce to stderr, colorized when the descriptor is a
// terminal and the error is attributable to the source program (a Code
// error), and returns the exit code its Kind maps to.
func reportError(err error) int {
	ce, ok := err.(*errors.CompilerError)
	if !ok {
		fmt.Fprintf(os.Stderr, "classicalc: %v\n", err)
		return errors.Internal.ExitCode()
	}

	msg := ce.Error()
	if ce.Kind == errors.Code && isatty.IsTerminal(os.Stderr.Fd()) {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	fmt.Fprintln(os.Stderr, msg)
	return ce.Kind.ExitCode()
}
