package buildutil

import (
	"strings"
	"testing"
	"time"
)

func TestSummarySingularFunction(t *testing.T) {
	s := Stats{BytesEmitted: 1024, CacheHits: 1, CacheMisses: 0, FunctionCount: 1, Elapsed: 5 * time.Millisecond}
	got := s.Summary()
	if !strings.Contains(got, "1 function,") {
		t.Fatalf("expected singular 'function', got %q", got)
	}
	if !strings.Contains(got, "1 hit / 0 miss") {
		t.Fatalf("expected cache summary, got %q", got)
	}
}

func TestSummaryPluralFunctionsAndDisabledCache(t *testing.T) {
	s := Stats{BytesEmitted: 2048, FunctionCount: 3, Elapsed: time.Millisecond}
	got := s.Summary()
	if !strings.Contains(got, "3 functions,") {
		t.Fatalf("expected plural 'functions', got %q", got)
	}
	if !strings.Contains(got, "cache disabled") {
		t.Fatalf("expected 'cache disabled' with zero hits/misses, got %q", got)
	}
}
