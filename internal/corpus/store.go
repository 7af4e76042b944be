package corpus

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store provides persistence for ingested documents, chunks, and embeddings.
type Store interface {
	// GetDocHash returns the stored hash for a path, or "" if not ingested.
	GetDocHash(path string) (string, error)
	// UpsertDoc inserts or updates a document record and returns its ID.
	// It also deletes any existing chunks and embeddings for the document.
	UpsertDoc(d DocRecord) (int64, error)
	// InsertChunks inserts chunks for a document and returns their row IDs.
	InsertChunks(docID int64, chunks []Chunk) ([]int64, error)
	// InsertEmbeddings stores embeddings keyed by chunk row ID.
	InsertEmbeddings(rowIDs []int64, embeddings [][]float32) error
	// GetChunk returns the chunk with the given stable chunk ID.
	GetChunk(chunkID string) (Chunk, error)
	// ListChunks returns all chunks ordered by source file and sequence.
	ListChunks() ([]Chunk, error)
	// HasEmbeddings reports whether any chunk embeddings are stored.
	HasEmbeddings() (bool, error)
	// VectorSearch finds the top-k chunks closest to the query embedding.
	VectorSearch(queryEmbedding []float32, k int) ([]Scored, error)
	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(key, value string) error
	// DeleteAll removes all documents, chunks, and embeddings.
	DeleteAll() error
	// Close closes the underlying database.
	Close() error
}

// SQLiteStore implements Store backed by SQLite + sqlite-vec.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the corpus index at the given path and initializes the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetDocHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM docs WHERE path = ?", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

func (s *SQLiteStore) UpsertDoc(d DocRecord) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRow("SELECT id FROM docs WHERE path = ?", d.Path).Scan(&existingID)
	if err == nil {
		// Document exists — delete old chunks and embeddings.
		rows, err := tx.Query("SELECT id FROM chunks WHERE doc_id = ?", existingID)
		if err != nil {
			return 0, err
		}
		var rowIDs []int64
		for rows.Next() {
			var cid int64
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return 0, err
			}
			rowIDs = append(rowIDs, cid)
		}
		rows.Close()

		for _, cid := range rowIDs {
			if _, err := tx.Exec("DELETE FROM vec_chunks WHERE chunk_id = ?", cid); err != nil {
				return 0, err
			}
		}
		if _, err := tx.Exec("DELETE FROM chunks WHERE doc_id = ?", existingID); err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			"UPDATE docs SET hash = ?, ingested_at = CURRENT_TIMESTAMP, size_bytes = ? WHERE id = ?",
			d.Hash, d.SizeBytes, existingID,
		)
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.Exec(
		"INSERT INTO docs (path, hash, size_bytes) VALUES (?, ?, ?)",
		d.Path, d.Hash, d.SizeBytes,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) InsertChunks(docID int64, chunks []Chunk) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO chunks (doc_id, chunk_id, source, seq, content) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		res, err := stmt.Exec(docID, c.ChunkID, c.Source, c.Seq, c.Content)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteStore) InsertEmbeddings(rowIDs []int64, embeddings [][]float32) error {
	if len(rowIDs) != len(embeddings) {
		return fmt.Errorf("mismatched chunk IDs (%d) and embeddings (%d)", len(rowIDs), len(embeddings))
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, cid := range rowIDs {
		blob, err := sqlite_vec.SerializeFloat32(embeddings[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %d: %w", cid, err)
		}
		if _, err := stmt.Exec(cid, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %d: %w", cid, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetChunk(chunkID string) (Chunk, error) {
	var c Chunk
	err := s.db.QueryRow(
		"SELECT id, doc_id, chunk_id, source, seq, content FROM chunks WHERE chunk_id = ?",
		chunkID,
	).Scan(&c.ID, &c.DocID, &c.ChunkID, &c.Source, &c.Seq, &c.Content)
	if err == sql.ErrNoRows {
		return Chunk{}, fmt.Errorf("chunk %q not found", chunkID)
	}
	return c, err
}

func (s *SQLiteStore) ListChunks() ([]Chunk, error) {
	rows, err := s.db.Query(
		"SELECT id, doc_id, chunk_id, source, seq, content FROM chunks ORDER BY source, seq",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.ChunkID, &c.Source, &c.Seq, &c.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) HasEmbeddings() (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM vec_chunks").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) VectorSearch(queryEmbedding []float32, k int) ([]Scored, error) {
	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := s.db.Query(`
		SELECT v.distance, c.id, c.doc_id, c.chunk_id, c.source, c.seq, c.content
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ?
		ORDER BY v.distance
		LIMIT ?
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var r Scored
		var distance float64
		err := rows.Scan(&distance, &r.Chunk.ID, &r.Chunk.DocID, &r.Chunk.ChunkID,
			&r.Chunk.Source, &r.Chunk.Seq, &r.Chunk.Content)
		if err != nil {
			return nil, err
		}
		// Convert distance to a similarity-flavored score so vector and
		// TF-IDF results sort the same way.
		r.Score = 1.0 / (1.0 + distance)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) DeleteAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM vec_chunks"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM docs"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
