package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DocumentStore persists documents and chunks in SQLite.
// WAL mode with a single writer connection keeps concurrent readers cheap.
type DocumentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenDocumentStore opens (or creates) the document store at path.
// If path is empty, an in-memory store is created for testing.
func OpenDocumentStore(path string) (*DocumentStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params; set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &DocumentStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the relational tables. Idempotent.
func (s *DocumentStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL UNIQUE,
		title TEXT,
		url TEXT,
		checksum TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying handle so the FTS5 lexical index can share it.
func (s *DocumentStore) DB() *sql.DB {
	return s.db
}

// UpsertDocument inserts a document by source ID or, on conflict, updates
// title, url and checksum in place. The document's identity (id) is stable
// across re-ingestion. Returns the document ID.
func (s *DocumentStore) UpsertDocument(ctx context.Context, sourceID, title, url, checksum string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	const stmt = `
	INSERT INTO documents (source_id, title, url, checksum)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(source_id) DO UPDATE SET
		title = excluded.title,
		url = excluded.url,
		checksum = excluded.checksum
	RETURNING id;
	`

	var id int64
	if err := s.db.QueryRowContext(ctx, stmt, sourceID, title, url, checksum).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert document %s: %w", sourceID, err)
	}
	return id, nil
}

// GetDocumentBySourceID returns the document with the given source ID, or
// sql.ErrNoRows if absent.
func (s *DocumentStore) GetDocumentBySourceID(ctx context.Context, sourceID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	const stmt = `
	SELECT id, source_id, title, url, checksum, created_at
	FROM documents WHERE source_id = ?;
	`

	var doc Document
	var createdAt string
	err := s.db.QueryRowContext(ctx, stmt, sourceID).Scan(
		&doc.ID, &doc.SourceID, &doc.Title, &doc.URL, &doc.Checksum, &createdAt)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = parseTimestamp(createdAt)
	return &doc, nil
}

// DeleteChunksByDocument removes every chunk owned by the document and
// returns the removed chunk IDs so the caller can purge the lexical and
// vector indexes.
func (s *DocumentStore) DeleteChunksByDocument(ctx context.Context, documentID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks for document %d: %w", documentID, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return nil, fmt.Errorf("failed to delete chunks for document %d: %w", documentID, err)
	}

	return ids, nil
}

// InsertChunks inserts the full chunk set of a document. Chunk IDs are
// assigned by the database and written back into the passed structs.
func (s *DocumentStore) InsertChunks(ctx context.Context, documentID int64, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO chunks (document_id, chunk_index, content, token_count, embedding)
	VALUES (?, ?, ?, ?, ?) RETURNING id;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		var blob []byte
		if len(c.Embedding) > 0 {
			blob = EncodeVector(c.Embedding)
		}
		if err := stmt.QueryRowContext(ctx, documentID, i, c.Content, c.TokenCount, blob).Scan(&c.ID); err != nil {
			return fmt.Errorf("failed to insert chunk %d of document %d: %w", i, documentID, err)
		}
		c.DocumentID = documentID
		c.ChunkIndex = i
	}

	return tx.Commit()
}

// GetChunks fetches chunks by ID with their document's title and url joined
// in. Results are returned in the order of the requested IDs; missing IDs
// are skipped.
func (s *DocumentStore) GetChunks(ctx context.Context, ids []int64) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`
	SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.created_at,
	       d.title, d.url
	FROM chunks c
	JOIN documents d ON d.id = c.document_id
	WHERE c.id IN (%s);
	`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Chunk, len(ids))
	for rows.Next() {
		var c Chunk
		var createdAt string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
			&c.TokenCount, &createdAt, &c.SourceTitle, &c.SourceURL); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTimestamp(createdAt)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// ChunksByDocument returns all chunks of a document ordered by chunk index.
func (s *DocumentStore) ChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, document_id, chunk_index, content, token_count, embedding
	FROM chunks WHERE document_id = ? ORDER BY chunk_index;
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
			&c.TokenCount, &blob); err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			c.Embedding = DecodeVector(blob)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// AllEmbeddings streams every persisted chunk embedding to fn. Used to
// rebuild the vector index without re-embedding.
func (s *DocumentStore) AllEmbeddings(ctx context.Context, fn func(chunkID int64, vector []float32) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to stream embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		if len(blob) == 0 {
			continue
		}
		if err := fn(id, DecodeVector(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats returns document and chunk counts.
func (s *DocumentStore) Stats(ctx context.Context) (documents, chunks int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, 0, fmt.Errorf("store is closed")
	}

	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return documents, chunks, nil
}

// Close closes the database.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// EncodeVector serializes a float32 vector as little-endian bytes for BLOB
// storage.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes a little-endian BLOB back into a float32 vector.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// parseTimestamp parses SQLite's default CURRENT_TIMESTAMP format.
// Returns the zero time on failure; callers treat timestamps as advisory.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
