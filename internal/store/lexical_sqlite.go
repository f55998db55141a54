package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// SQLiteLexicalIndex is a BM25 full-text index over chunk content backed by
// an FTS5 virtual table. It shares the DocumentStore's database so a chunk
// and its lexical entry commit through the same handle.
type SQLiteLexicalIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	ownsDB bool
	closed bool
}

// NewSQLiteLexicalIndex builds the lexical index on top of an existing
// database handle, creating the FTS5 table if needed.
func NewSQLiteLexicalIndex(db *sql.DB) (*SQLiteLexicalIndex, error) {
	idx := &SQLiteLexicalIndex{db: db}
	if err := idx.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize fts schema: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteLexicalIndex) initSchema() error {
	const schema = `
	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize='porter unicode61'
	);
	`
	_, err := idx.db.Exec(schema)
	return err
}

// Index adds or replaces lexical entries. FTS5 has no primary key, so
// replacement is delete-then-insert keyed on chunk_id.
func (idx *SQLiteLexicalIndex) Index(ctx context.Context, entries []*LexicalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM chunk_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO chunk_fts (chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer ins.Close()

	for _, e := range entries {
		if _, err := del.ExecContext(ctx, e.ChunkID); err != nil {
			return fmt.Errorf("failed to delete stale entry %d: %w", e.ChunkID, err)
		}
		if _, err := ins.ExecContext(ctx, e.ChunkID, e.Content); err != nil {
			return fmt.Errorf("failed to index chunk %d: %w", e.ChunkID, err)
		}
	}

	return tx.Commit()
}

// Search runs a BM25 ranked query. SQLite's bm25() returns negative values
// where lower is better, so scores are negated to positive higher-is-better.
// A query that produces no usable FTS tokens returns empty results.
func (idx *SQLiteLexicalIndex) Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return []*LexicalResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := idx.db.QueryContext(ctx, `
	SELECT chunk_id, -bm25(chunk_fts) AS score
	FROM chunk_fts
	WHERE chunk_fts MATCH ?
	ORDER BY bm25(chunk_fts)
	LIMIT ?;
	`, ftsQuery, limit)
	if err != nil {
		// Queries full of punctuation can still trip the fts5 parser.
		// Treat syntax errors as "no matches" rather than failing the search.
		if strings.Contains(err.Error(), "fts5: syntax error") {
			return []*LexicalResult{}, nil
		}
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var results []*LexicalResult
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Delete removes lexical entries by chunk ID.
func (idx *SQLiteLexicalIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunk_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete entry %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// Close releases the index. The shared database handle is owned by the
// document store and is not closed here.
func (idx *SQLiteLexicalIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

// buildFTSQuery converts free text into a safe FTS5 query: each alphanumeric
// token is quoted and the tokens are ANDed implicitly. Punctuation-only
// input yields an empty query.
func buildFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !isAlphanumeric(r)
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r > 127
}
