// Package buildutil formats build-cache statistics (bytes emitted,
// cache hit/miss counts, elapsed time) for the verbose/-v summary line
// internal/pipeline prints at the end of a compile.
package buildutil

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats accumulates the numbers internal/pipeline reports once a
// compilation finishes.
type Stats struct {
	BytesEmitted  uint64
	CacheHits     int
	CacheMisses   int
	FunctionCount int
	Elapsed       time.Duration
}

// Summary renders Stats as the one-line verbose summary, e.g.:
// "12 functions, 4.2 kB emitted, cache 3 hit / 1 miss, in 18ms".
func (s Stats) Summary() string {
	cache := fmt.Sprintf("cache %d hit / %d miss", s.CacheHits, s.CacheMisses)
	if s.CacheHits+s.CacheMisses == 0 {
		cache = "cache disabled"
	}
	return fmt.Sprintf("%d function%s, %s emitted, %s, in %s",
		s.FunctionCount, plural(s.FunctionCount),
		humanize.Bytes(s.BytesEmitted),
		cache,
		s.Elapsed.Round(time.Microsecond),
	)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
