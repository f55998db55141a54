package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
)

// LexicalBackend selects the full-text index implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses SQLite FTS5 inside the document database
	// (default). Lexical entries commit alongside their chunks.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses a standalone Bleve v2 index. BoltDB takes an
	// exclusive file lock, so this backend is single process only.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a lexical index for the chosen backend. The SQLite
// backend shares the document store's database handle; the Bleve backend
// gets its own directory under dataDir.
func NewLexicalIndex(backend string, db *sql.DB, dataDir string) (LexicalIndex, error) {
	switch backend {
	case string(LexicalBackendSQLite), "":
		return NewSQLiteLexicalIndex(db)

	case string(LexicalBackendBleve):
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "lexical.bleve")
		}
		return NewBleveLexicalIndex(path)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}
