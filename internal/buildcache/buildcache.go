// Package buildcache stores a content-hash -> emitted-assembly mapping
// so repeat compiles of an unchanged input (same preprocessed bytes,
// same four optimization-level flags) skip straight to re-emitting
// cached text. Backed by modernc.org/sqlite by default, with
// DSN-selectable mysql/postgres/mssql backends for a shared team cache
// — grounded in internal/database/db_manager.go's *sql.DB wrapper and
// dbType-switched driver selection.
package buildcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Key identifies one cache row: the preprocessed input's content hash
// plus the four optimization-level flags that influence emitted text.
type Key struct {
	ContentHash                                       string
	OptLevel, LinearizerLevel, RegallocLevel, Codegen int
}

// HashSource derives a Key's ContentHash from preprocessed source bytes.
func HashSource(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

func (k Key) rowKey() string {
	return fmt.Sprintf("%s:%d:%d:%d:%d", k.ContentHash, k.OptLevel, k.LinearizerLevel, k.RegallocLevel, k.Codegen)
}

// Cache wraps a *sql.DB holding one table of cached emissions, selected
// by DSN scheme the same way db_manager.go switches on a dbType string.
type Cache struct {
	db     *sql.DB
	driver string
}

// Open opens (and, if necessary, creates) the build cache at dsn.
// dsn forms: "sqlite:<path>" (default backend), "mysql:<dsn>",
// "postgres:<dsn>", "sqlserver:<dsn>".
func Open(dsn string) (*Cache, error) {
	driver, source, err := splitDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("buildcache: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("buildcache: ping %s: %w", driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("buildcache: schema: %w", err)
	}
	return &Cache{db: db, driver: driver}, nil
}

// placeholder renders the nth (1-based) bind parameter in driver's
// native style: "?" for sqlite/mysql, "$n" for postgres, "@pN" for
// sqlserver.
func placeholder(driver string, n int) string {
	switch driver {
	case "postgres":
		return fmt.Sprintf("$%d", n)
	case "sqlserver":
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS build_cache (
	row_key TEXT PRIMARY KEY,
	assembly TEXT NOT NULL,
	session_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

func splitDSN(dsn string) (driver, source string, err error) {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' {
			scheme := dsn[:i]
			rest := dsn[i+1:]
			switch scheme {
			case "sqlite":
				return "sqlite", rest, nil
			case "mysql":
				return "mysql", rest, nil
			case "postgres":
				return "postgres", rest, nil
			case "sqlserver":
				return "sqlserver", rest, nil
			default:
				return "", "", fmt.Errorf("buildcache: unknown DSN scheme %q", scheme)
			}
		}
	}
	return "", "", fmt.Errorf("buildcache: DSN %q has no scheme prefix", dsn)
}

// Get returns the cached assembly for key, if present.
func (c *Cache) Get(key Key) (assembly string, hit bool, err error) {
	q := fmt.Sprintf(`SELECT assembly FROM build_cache WHERE row_key = %s`, placeholder(c.driver, 1))
	row := c.db.QueryRow(q, key.rowKey())
	if err := row.Scan(&assembly); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return assembly, true, nil
}

// Put stores assembly under key, stamped with sessionID (a
// google/uuid-generated compilation session identifier, per
// internal/pipeline) as the row's provenance column. Implemented as
// delete-then-insert rather than a dialect-specific upsert so the same
// code path works unchanged across all four backends.
func (c *Cache) Put(key Key, assembly, sessionID string) error {
	del := fmt.Sprintf(`DELETE FROM build_cache WHERE row_key = %s`, placeholder(c.driver, 1))
	if _, err := c.db.Exec(del, key.rowKey()); err != nil {
		return err
	}
	ins := fmt.Sprintf(`INSERT INTO build_cache (row_key, assembly, session_id, created_at) VALUES (%s, %s, %s, %s)`,
		placeholder(c.driver, 1), placeholder(c.driver, 2), placeholder(c.driver, 3), placeholder(c.driver, 4))
	_, err := c.db.Exec(ins, key.rowKey(), assembly, sessionID, time.Now())
	return err
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.db.Close() }
