// Package pipeline orchestrates one whole-program compile: preprocess,
// parse (an injected, out-of-scope collaborator per spec.md §1/§6),
// linearize, collapse scopes, generate code, and frame the export
// markers — optionally consulting internal/buildcache first and
// broadcasting per-phase progress to internal/diagserver.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"classicalc/internal/ast"
	"classicalc/internal/buildcache"
	"classicalc/internal/buildutil"
	"classicalc/internal/codegen"
	"classicalc/internal/diagserver"
	"classicalc/internal/errors"
	"classicalc/internal/export"
	"classicalc/internal/linearizer"
	"classicalc/internal/preprocess"
	"classicalc/internal/symtab"
)

// Verbosity mirrors compiler.c's argc-gated verbosity checks: 0 is
// silent, 1 prints phase banners to stderr, 2 additionally dumps the
// symbol table before and after scope collapse.
type Verbosity int

const (
	Quiet Verbosity = iota
	Phases
	SymbolDumps
)

// ParseFunc produces an AST from a preprocessed source file. The
// lexer/parser is an out-of-scope external collaborator (spec.md §1);
// Config.Parse lets the driver supply whichever one it's wired to.
type ParseFunc func(preprocessedPath string) (*ast.Node, error)

// Config collects the CLI-level knobs (spec.md §6's -O/-l/-r/-c) plus
// the domain-stack additions: an optional shared build-cache DSN and an
// optional live-diagnostics server (already constructed and served by
// the driver) that Run broadcasts phase events to.
type Config struct {
	InFile, OutFile                                        string
	OptLevel, LinearizerLevel, RegallocLevel, CodegenLevel int
	Verbosity                                              Verbosity
	CappPath                                               string
	CacheDSN                                               string
	Diag                                                   *diagserver.Server
	Parse                                                  ParseFunc
}

// validateLevels enforces spec.md §6: only level 0 is currently
// supported for any of the four optimization knobs.
func validateLevels(cfg Config) error {
	for name, v := range map[string]int{
		"-O": cfg.OptLevel, "-l": cfg.LinearizerLevel, "-r": cfg.RegallocLevel, "-c": cfg.CodegenLevel,
	} {
		if v != 0 {
			return errors.NewInvocation("%s %d: only level 0 is implemented", name, v)
		}
	}
	return nil
}

// Run executes the full pipeline and returns build statistics for the
// verbose summary line.
func Run(cfg Config) (buildutil.Stats, error) {
	start := time.Now()
	var stats buildutil.Stats

	if err := validateLevels(cfg); err != nil {
		return stats, err
	}
	if cfg.Parse == nil {
		return stats, errors.NewInvocation("no parser configured: AST acquisition is an out-of-scope collaborator the driver must supply")
	}
	if cfg.CappPath == "" {
		cfg.CappPath = "./capp"
	}

	sessionID := uuid.NewString()
	broadcast := func(phase, detail string) {
		if cfg.Diag != nil {
			cfg.Diag.Broadcast(diagserver.Event{SessionID: sessionID, Phase: phase, Detail: detail})
		}
	}

	logPhase := func(format string, args ...interface{}) {
		if cfg.Verbosity >= Phases {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	logPhase("[%s] preprocessing %s", sessionID, cfg.InFile)
	broadcast("preprocess", cfg.InFile)
	preprocessed, err := preprocess.Run(cfg.CappPath, cfg.InFile)
	if err != nil {
		return stats, err
	}

	src, err := os.ReadFile(preprocessed)
	if err != nil {
		return stats, errors.NewInvocation("reading preprocessed file %q: %v", preprocessed, err)
	}

	var cache *buildcache.Cache
	var cacheKey buildcache.Key
	if cfg.CacheDSN != "" {
		cache, err = buildcache.Open(cfg.CacheDSN)
		if err != nil {
			return stats, errors.NewInvocation("opening build cache: %v", err)
		}
		defer cache.Close()
		cacheKey = buildcache.Key{
			ContentHash:     buildcache.HashSource(src),
			OptLevel:        cfg.OptLevel,
			LinearizerLevel: cfg.LinearizerLevel,
			RegallocLevel:   cfg.RegallocLevel,
			Codegen:         cfg.CodegenLevel,
		}
		if cached, hit, err := cache.Get(cacheKey); err == nil && hit {
			logPhase("[%s] cache hit, skipping emission", sessionID)
			broadcast("cache", "hit")
			if err := os.WriteFile(cfg.OutFile, []byte(cached), 0644); err != nil {
				return stats, errors.NewInvocation("writing %q: %v", cfg.OutFile, err)
			}
			stats.CacheHits = 1
			stats.BytesEmitted = uint64(len(cached))
			stats.Elapsed = time.Since(start)
			return stats, nil
		}
		stats.CacheMisses = 1
		broadcast("cache", "miss")
	}

	logPhase("[%s] parsing %s", sessionID, preprocessed)
	broadcast("parse", preprocessed)
	root, err := cfg.Parse(preprocessed)
	if err != nil {
		return stats, err
	}

	logPhase("[%s] linearizing", sessionID)
	broadcast("linearize", "")
	prog, err := linearizer.BuildProgram(root)
	if err != nil {
		return stats, err
	}

	if cfg.Verbosity >= SymbolDumps {
		fmt.Fprintln(os.Stderr, "--- symbol table before scope collapse ---")
		prog.Global.Dump(os.Stderr, 0)
	}

	logPhase("[%s] collapsing scopes", sessionID)
	broadcast("collapse", "")
	symtab.CollapseScopes(symtab.NewInterner(), prog.Global)

	if cfg.Verbosity >= SymbolDumps {
		fmt.Fprintln(os.Stderr, "--- symbol table after scope collapse ---")
		prog.Global.Dump(os.Stderr, 0)
	}

	functionCount := countFunctions(prog.Global)

	logPhase("[%s] generating code", sessionID)
	broadcast("codegen", fmt.Sprintf("%d functions", functionCount))

	out, err := os.Create(cfg.OutFile)
	if err != nil {
		return stats, errors.NewInvocation("creating %q: %v", cfg.OutFile, err)
	}
	defer out.Close()

	var buf strings.Builder
	classLookup := func(name string) (*symtab.ClassEntry, bool) { return prog.Global.LookupClass(name) }
	gen := codegen.New(&buf, classLookup)
	if err := export.Frame(&buf, prog.Global, prog.UserStart, prog.GlobalAsmBlk, gen); err != nil {
		return stats, err
	}

	assembly := buf.String()
	if _, err := io.WriteString(out, assembly); err != nil {
		return stats, errors.NewInvocation("writing %q: %v", cfg.OutFile, err)
	}

	if cache != nil {
		if err := cache.Put(cacheKey, assembly, sessionID); err != nil {
			logPhase("[%s] warning: failed to populate build cache: %v", sessionID, err)
		}
	}

	stats.FunctionCount = functionCount
	stats.BytesEmitted = uint64(len(assembly))
	stats.Elapsed = time.Since(start)
	broadcast("done", sessionID)
	return stats, nil
}

func countFunctions(global *symtab.Scope) int {
	n := 0
	for _, m := range global.Entries {
		if m.Kind == symtab.KindFunction && m.Function.IsDefined {
			n++
		}
	}
	return n
}
