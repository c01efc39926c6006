// Package engine owns the process's single embedded database connection.
//
// The handle wraps database/sql over modernc.org/sqlite with durability
// enabled: WAL journaling plus synchronous=FULL so every commit is flushed
// to storage. Cross-process write serialization is the engine's own file
// locking; within the process the transaction queue serializes writers.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/sqlhint"
)

const stmtCacheSize = 128

// ResultSet is the uniform result of a statement execution. Read-only
// statements fill Columns and Rows; mutating statements fill RowsAffected
// and LastInsertID.
type ResultSet struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}

// Handle is the process-wide embedded database connection.
type Handle struct {
	db     *sql.DB
	path   string
	logger *logger.Logger

	mu     sync.Mutex // guards stmts and closed
	stmts  *lru.Cache[string, *sql.Stmt]
	closed bool
}

// Open constructs the connection against the shared database file with
// durability enabled.
func Open(ctx context.Context, path string, log *logger.Logger) (*Handle, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// One embedded connection per process; mutual exclusion of writers is
	// the queue's job, not a pool's.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	cache, err := lru.NewWithEvict[string, *sql.Stmt](stmtCacheSize, func(_ string, s *sql.Stmt) {
		s.Close()
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Handle{
		db:     db,
		path:   path,
		logger: log,
		stmts:  cache,
	}, nil
}

// Path returns the database file path this handle is bound to.
func (h *Handle) Path() string {
	return h.path
}

// Verify runs a trivial round-trip statement against the connection.
func (h *Handle) Verify(ctx context.Context) error {
	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return &apperrors.VerificationError{Err: err}
	}
	if one != 1 {
		return &apperrors.VerificationError{Err: fmt.Errorf("round-trip returned %d", one)}
	}
	return nil
}

func (h *Handle) prepare(ctx context.Context, stmt string) (*sql.Stmt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperrors.ErrSessionClosed
	}
	if s, ok := h.stmts.Get(stmt); ok {
		return s, nil
	}
	s, err := h.db.PrepareContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	h.stmts.Add(stmt, s)
	return s, nil
}

// Exec runs one statement and returns its result set. Statements are
// prepared once and cached; eviction closes the prepared statement.
func (h *Handle) Exec(ctx context.Context, stmt string, params []any) (*ResultSet, error) {
	prepared, err := h.prepare(ctx, stmt)
	if err != nil {
		return nil, err
	}

	if sqlhint.IsModifying(stmt) {
		res, err := prepared.ExecContext(ctx, params...)
		if err != nil {
			return nil, err
		}
		rs := &ResultSet{}
		// Not every engine statement reports these; keep zero on error.
		if n, err := res.RowsAffected(); err == nil {
			rs.RowsAffected = n
		}
		if id, err := res.LastInsertId(); err == nil {
			rs.LastInsertID = id
		}
		return rs, nil
	}

	rows, err := prepared.QueryContext(ctx, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Close releases cached statements and the underlying connection. Safe to
// call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.stmts.Purge() // eviction callback closes each prepared statement
	h.mu.Unlock()

	return h.db.Close()
}
