// Package store is the SQLite journal of extraction runs: what each pass
// processed, how every document ended, the graph it produced, and the
// similarity history that drove convergence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/herbex/graph"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("store: run not found")

// Run represents a row in the runs table.
type Run struct {
	ID         string    `json:"id"`
	Pass       int       `json:"pass"`
	Mode       string    `json:"mode"`
	Input      string    `json:"input"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	RunTotals
}

// RunTotals are the counters written when a run finishes.
type RunTotals struct {
	Total     int  `json:"total"`
	Merged    int  `json:"merged"`
	Aborted   int  `json:"aborted"`
	Converged bool `json:"converged"`
}

// DocumentRecord is the journal entry for one processed document. The
// similarities are nil when the document never reached the merge.
type DocumentRecord struct {
	RunID              string                  `json:"run_id"`
	Seq                int                     `json:"seq"`
	Path               string                  `json:"path"`
	Filename           string                  `json:"filename"`
	Mode               string                  `json:"mode"`
	FinalState         string                  `json:"final_state"`
	Trail              []string                `json:"trail"`
	ValidationSkipped  bool                    `json:"validation_skipped"`
	EntitySimilarity   *float64                `json:"entity_similarity,omitempty"`
	RelationSimilarity *float64                `json:"relation_similarity,omitempty"`
	Error              string                  `json:"error,omitempty"`
	ContentHash        string                  `json:"content_hash,omitempty"`
	TotalTokens        int                     `json:"total_tokens"`
	Result             *graph.ExtractionResult `json:"result,omitempty"`
}

// ScorePoint is one merged document's similarity pair.
type ScorePoint struct {
	Seq                int     `json:"seq"`
	Filename           string  `json:"filename"`
	EntitySimilarity   float64 `json:"entity_similarity"`
	RelationSimilarity float64 `json:"relation_similarity"`
}

// DocumentState is the final state of one document in a run.
type DocumentState struct {
	Seq      int    `json:"seq"`
	Filename string `json:"filename"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// DBStats holds row counts for the journal tables.
type DBStats struct {
	Runs          int `json:"runs"`
	Documents     int `json:"documents"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// Store wraps the SQLite journal database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, now: time.Now}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Run operations ---

// BeginRun inserts r and returns its ID, generating one when r.ID is empty.
func (s *Store) BeginRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	if r.Pass == 0 {
		r.Pass = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pass, mode, input, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Pass, r.Mode, r.Input, formatTime(r.StartedAt))
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return r.ID, nil
}

// FinishRun stamps the run's end time and totals.
func (s *Store) FinishRun(ctx context.Context, runID string, t RunTotals) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, total = ?, merged = ?, aborted = ?, converged = ?
		WHERE id = ?
	`, formatTime(s.now()), t.Total, t.Merged, t.Aborted, t.Converged, runID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	r := &Run{}
	var started string
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pass, mode, input, started_at, finished_at, total, merged, aborted, converged
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.Pass, &r.Mode, &r.Input, &started, &finished,
		&r.Total, &r.Merged, &r.Aborted, &r.Converged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	return r, nil
}

// --- Document operations ---

// RecordDocument journals one document outcome together with the graph it
// produced, in a single transaction. Returns the document row ID.
func (s *Store) RecordDocument(ctx context.Context, d DocumentRecord) (int64, error) {
	trail, err := json.Marshal(d.Trail)
	if err != nil {
		return 0, fmt.Errorf("encoding trail: %w", err)
	}

	var docID int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (run_id, seq, path, filename, mode, final_state, trail,
				validation_skipped, entity_similarity, relation_similarity, error, content_hash, total_tokens)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, path) DO UPDATE SET
				seq = excluded.seq,
				mode = excluded.mode,
				final_state = excluded.final_state,
				trail = excluded.trail,
				validation_skipped = excluded.validation_skipped,
				entity_similarity = excluded.entity_similarity,
				relation_similarity = excluded.relation_similarity,
				error = excluded.error,
				content_hash = excluded.content_hash,
				total_tokens = excluded.total_tokens
		`, d.RunID, d.Seq, d.Path, d.Filename, d.Mode, d.FinalState, string(trail),
			d.ValidationSkipped, nullFloat(d.EntitySimilarity), nullFloat(d.RelationSimilarity),
			d.Error, d.ContentHash, d.TotalTokens)
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.New("inserting document: no row written")
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM documents WHERE run_id = ? AND path = ?", d.RunID, d.Path,
		).Scan(&docID); err != nil {
			return fmt.Errorf("reading document id: %w", err)
		}

		// A re-recorded document replaces its graph.
		if _, err := tx.ExecContext(ctx, "DELETE FROM document_entities WHERE document_id = ?", docID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM relationships WHERE document_id = ?", docID); err != nil {
			return err
		}
		if d.Result == nil {
			return nil
		}
		return insertGraph(ctx, tx, docID, d.Result)
	})
	if err != nil {
		return 0, err
	}
	return docID, nil
}

func insertGraph(ctx context.Context, tx *sql.Tx, docID int64, res *graph.ExtractionResult) error {
	for _, e := range res.Entities {
		if e.Name == "" || e.Type == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (name, entity_type) VALUES (?, ?)
			ON CONFLICT(name, entity_type) DO NOTHING
		`, e.Name, e.Type); err != nil {
			return fmt.Errorf("inserting entity %q: %w", e.Name, err)
		}
		var entityID int64
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM entities WHERE name = ? AND entity_type = ?", e.Name, e.Type,
		).Scan(&entityID); err != nil {
			return fmt.Errorf("reading entity id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO document_entities (document_id, entity_id) VALUES (?, ?)",
			docID, entityID); err != nil {
			return fmt.Errorf("linking entity: %w", err)
		}
	}
	for _, r := range res.Relationships {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO relationships (document_id, head, predicate, tail) VALUES (?, ?, ?, ?)",
			docID, r.Head, r.Predicate, r.Tail); err != nil {
			return fmt.Errorf("inserting relationship: %w", err)
		}
	}
	return nil
}

// ScoreHistory returns the similarity pairs of a run's merged documents in
// processing order.
func (s *Store) ScoreHistory(ctx context.Context, runID string) ([]ScorePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, filename, entity_similarity, relation_similarity
		FROM documents
		WHERE run_id = ? AND entity_similarity IS NOT NULL AND relation_similarity IS NOT NULL
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScorePoint
	for rows.Next() {
		var p ScorePoint
		if err := rows.Scan(&p.Seq, &p.Filename, &p.EntitySimilarity, &p.RelationSimilarity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DocumentStates returns every document of a run with its final state.
func (s *Store) DocumentStates(ctx context.Context, runID string) ([]DocumentState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, filename, final_state, COALESCE(error, '')
		FROM documents WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentState
	for rows.Next() {
		var d DocumentState
		if err := rows.Scan(&d.Seq, &d.Filename, &d.State, &d.Error); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DocumentGraph reads back the relationships journaled for a document of
// a run, in insertion order.
func (s *Store) DocumentGraph(ctx context.Context, runID, path string) ([]graph.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.head, r.predicate, r.tail
		FROM relationships r
		JOIN documents d ON d.id = r.document_id
		WHERE d.run_id = ? AND d.path = ?
		ORDER BY r.id
	`, runID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Relation
	for rows.Next() {
		var r graph.Relation
		if err := rows.Scan(&r.Head, &r.Predicate, &r.Tail); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DBStats returns counts of runs, documents, entities and relationships.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM entities", &stats.Entities},
		{"SELECT COUNT(*) FROM relationships", &stats.Relationships},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
