// Package storage persists the reference catalogue (with embeddings, so
// re-runs skip the provider for unchanged rows) and the classified match
// results with their full evidence trail.
//
// The backing store is SQLite behind database/sql. Two drivers are supported
// through build tags; see build_cgo.go and build_purego.go.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"specmatch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// New opens (or creates) the database at dbPath and applies pending
// migrations.
func New(dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// HashItem fingerprints the embedded content of a reference item. Rows whose
// hash is unchanged between runs can reuse their stored embedding.
func HashItem(item *types.ReferenceItem) string {
	h := sha256.New()
	h.Write([]byte(item.Description))
	h.Write([]byte{0})
	h.Write([]byte(item.Unit))
	h.Write([]byte{0})
	h.Write([]byte(item.Category))
	return hex.EncodeToString(h.Sum(nil))
}

// SaveCorpus upserts the reference items, replacing any stored embedding.
// provider and model record where the vectors came from so a provider switch
// invalidates the cache.
func (s *Store) SaveCorpus(ctx context.Context, items []types.ReferenceItem, provider, model string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin corpus save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO reference_items (code, description, unit, category, content_hash, embedding, dimension, provider, model, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			description = excluded.description,
			unit = excluded.unit,
			category = excluded.category,
			content_hash = excluded.content_hash,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	for i := range items {
		item := &items[i]
		var blob []byte
		var dim any
		if len(item.Embedding) > 0 {
			blob = serializeVector(item.Embedding)
			dim = len(item.Embedding)
		}
		if _, err := tx.ExecContext(ctx, query,
			item.Code, item.Description, item.Unit, item.Category,
			HashItem(item), blob, dim, provider, model, now); err != nil {
			return fmt.Errorf("failed to save reference item %s: %w", item.Code, err)
		}
	}

	return tx.Commit()
}

// LoadCorpus returns every stored reference item, embeddings included,
// ordered by code.
func (s *Store) LoadCorpus(ctx context.Context) ([]types.ReferenceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, description, unit, category, embedding
		FROM reference_items
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	defer rows.Close()

	var items []types.ReferenceItem
	for rows.Next() {
		var item types.ReferenceItem
		var unit, category sql.NullString
		var blob []byte
		if err := rows.Scan(&item.Code, &item.Description, &unit, &category, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan reference item: %w", err)
		}
		item.Unit = unit.String
		item.Category = category.String
		if len(blob) > 0 {
			item.Embedding = deserializeVector(blob)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CachedVectors returns stored embeddings keyed by content hash, restricted
// to the given provider and model. Items whose content changed since the
// last run are simply absent.
func (s *Store) CachedVectors(ctx context.Context, provider, model string) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_hash, embedding
		FROM reference_items
		WHERE embedding IS NOT NULL AND provider = ? AND model = ?
	`, provider, model)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached vectors: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string][]float32)
	for rows.Next() {
		var hash string
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan cached vector: %w", err)
		}
		vectors[hash] = deserializeVector(blob)
	}
	return vectors, rows.Err()
}

// SaveResults persists a batch of match results with their evidence rows.
// The best candidate is stored at rank 0, alternatives at ranks 1 and up.
func (s *Store) SaveResults(ctx context.Context, results []types.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	resultQuery := `
		INSERT INTO match_results (query_id, query_code, query_description, status, confidence, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	evidenceQuery := `
		INSERT INTO match_evidence (result_id, rank, reference_code, reference_description, semantic_score, fuzzy_score, combined_score, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range results {
		res := &results[i]
		out, err := tx.ExecContext(ctx, resultQuery,
			res.QueryID, res.QueryCode, res.QueryDescription,
			string(res.Status), res.Confidence, res.Elapsed.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save result for query %s: %w", res.QueryID, err)
		}

		resultID, err := out.LastInsertId()
		if err != nil {
			return err
		}

		rank := 0
		if res.Best != nil {
			if err := insertEvidence(ctx, tx, evidenceQuery, resultID, rank, res.Best); err != nil {
				return err
			}
			rank++
		}
		for j := range res.Alternatives {
			if err := insertEvidence(ctx, tx, evidenceQuery, resultID, rank, &res.Alternatives[j]); err != nil {
				return err
			}
			rank++
		}
	}

	return tx.Commit()
}

func insertEvidence(ctx context.Context, tx *sql.Tx, query string, resultID int64, rank int, e *types.CandidateEvidence) error {
	_, err := tx.ExecContext(ctx, query,
		resultID, rank, e.ReferenceCode, e.ReferenceDescription,
		e.SemanticScore, e.FuzzyScore, e.CombinedScore, string(e.Method))
	if err != nil {
		return fmt.Errorf("failed to save evidence rank %d: %w", rank, err)
	}
	return nil
}

// Results reloads every stored match result with its evidence, in insertion
// order.
func (s *Store) Results(ctx context.Context) ([]types.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_id, query_code, query_description, status, confidence, elapsed_ms
		FROM match_results
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	var results []types.MatchResult
	var ids []int64
	for rows.Next() {
		var id int64
		var res types.MatchResult
		var code sql.NullString
		var elapsedMs int64
		if err := rows.Scan(&id, &res.QueryID, &code, &res.QueryDescription, &res.Status, &res.Confidence, &elapsedMs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.QueryCode = code.String
		res.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		results = append(results, res)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		evidence, err := s.evidenceFor(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(evidence) > 0 {
			best := evidence[0]
			results[i].Best = &best
			results[i].Alternatives = evidence[1:]
		}
	}

	return results, nil
}

func (s *Store) evidenceFor(ctx context.Context, resultID int64) ([]types.CandidateEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reference_code, reference_description, semantic_score, fuzzy_score, combined_score, method
		FROM match_evidence
		WHERE result_id = ?
		ORDER BY rank
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence: %w", err)
	}
	defer rows.Close()

	var evidence []types.CandidateEvidence
	for rows.Next() {
		var e types.CandidateEvidence
		if err := rows.Scan(&e.ReferenceCode, &e.ReferenceDescription, &e.SemanticScore, &e.FuzzyScore, &e.CombinedScore, &e.Method); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		evidence = append(evidence, e)
	}
	return evidence, rows.Err()
}

// StatusCounts aggregates stored results by status.
func (s *Store) StatusCounts(ctx context.Context) (map[types.MatchStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM match_results GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.MatchStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[types.MatchStatus(status)] = n
	}
	return counts, rows.Err()
}
