package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/dataset"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// ErrNoDataset is returned when nothing has been loaded into the store yet
var ErrNoDataset = errors.New("no dataset loaded")

const keyColumns = "year, grade, subject, municipality, school"

// Repository reads and replaces the record collections
type Repository struct {
	db *DB

	mu      sync.RWMutex
	current *DatasetInfo
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// ReplaceAll swaps the stored collections for ds in a single transaction and
// records a new dataset version.
func (r *Repository) ReplaceAll(ctx context.Context, ds *dataset.Dataset) (*DatasetInfo, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"mark_records", "score_records", "bias_records"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := r.insertMarks(ctx, tx, ds.Marks); err != nil {
		return nil, err
	}
	if err := r.insertScores(ctx, tx, ds.Scores); err != nil {
		return nil, err
	}
	if err := r.insertBias(ctx, tx, ds.Bias); err != nil {
		return nil, err
	}

	info := NewDatasetInfo(len(ds.Marks), len(ds.Scores), len(ds.Bias))
	stmt, err := r.db.GetPreparedStatement("insert_dataset")
	if err != nil {
		return nil, err
	}
	if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx,
		info.ID, info.MarkRows, info.ScoreRows, info.BiasRows, info.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dataset: %w", err)
	}

	r.mu.Lock()
	r.current = info
	r.mu.Unlock()

	slog.Info("Dataset stored",
		"version", info.ID,
		"marks", info.MarkRows,
		"scores", info.ScoreRows,
		"bias", info.BiasRows)

	return info, nil
}

func (r *Repository) insertMarks(ctx context.Context, tx *sql.Tx, marks []types.MarkRecord) error {
	prepared, err := r.db.GetPreparedStatement("insert_mark")
	if err != nil {
		return err
	}
	stmt := tx.StmtContext(ctx, prepared)
	for _, m := range marks {
		if _, err := stmt.ExecContext(ctx,
			m.Year, m.Grade, m.Subject, m.Municipality, m.School,
			m.Participants, m.Mark2, m.Mark3, m.Mark4, m.Mark5); err != nil {
			return fmt.Errorf("failed to insert mark record: %w", err)
		}
	}
	return nil
}

func (r *Repository) insertScores(ctx context.Context, tx *sql.Tx, scores []types.ScoreRecord) error {
	prepared, err := r.db.GetPreparedStatement("insert_score")
	if err != nil {
		return err
	}
	stmt := tx.StmtContext(ctx, prepared)
	for _, s := range scores {
		data, err := json.Marshal(s.Scores)
		if err != nil {
			return fmt.Errorf("failed to marshal scores: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			s.Year, s.Grade, s.Subject, s.Municipality, s.School,
			s.Participants, string(data)); err != nil {
			return fmt.Errorf("failed to insert score record: %w", err)
		}
	}
	return nil
}

func (r *Repository) insertBias(ctx context.Context, tx *sql.Tx, bias []types.BiasRecord) error {
	prepared, err := r.db.GetPreparedStatement("insert_bias")
	if err != nil {
		return err
	}
	stmt := tx.StmtContext(ctx, prepared)
	for _, b := range bias {
		data, err := json.Marshal(b.Indicators)
		if err != nil {
			return fmt.Errorf("failed to marshal indicators: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			b.Year, b.Grade, b.Subject, b.Municipality, b.School, string(data)); err != nil {
			return fmt.Errorf("failed to insert bias record: %w", err)
		}
	}
	return nil
}

// LatestDataset returns the most recently stored dataset and makes it the
// current version.
func (r *Repository) LatestDataset(ctx context.Context) (*DatasetInfo, error) {
	stmt, err := r.db.GetPreparedStatement("latest_dataset")
	if err != nil {
		return nil, err
	}

	var info DatasetInfo
	err = stmt.QueryRowContext(ctx).Scan(&info.ID, &info.MarkRows, &info.ScoreRows, &info.BiasRows, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset: %w", err)
	}

	r.mu.Lock()
	r.current = &info
	r.mu.Unlock()

	return &info, nil
}

// Version returns the identity of the current dataset, or "" if none is loaded
func (r *Repository) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current == nil {
		return ""
	}
	return r.current.ID
}

// Counts returns the number of stored rows per collection
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM mark_records),
			(SELECT COUNT(*) FROM score_records),
			(SELECT COUNT(*) FROM bias_records)
	`).Scan(&c.Marks, &c.Scores, &c.Bias)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}

// whereClause turns the filter predicates into an SQL condition. Column
// names come from filter.Conditions and are never user supplied.
func whereClause(f filter.Filter) (string, []any) {
	conds := f.Conditions()
	if len(conds) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, c.Column+" = ?")
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// QueryMarks returns the mark records matching f in key order
func (r *Repository) QueryMarks(ctx context.Context, f filter.Filter) ([]types.MarkRecord, error) {
	where, args := whereClause(f)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+keyColumns+", participants, mark2, mark3, mark4, mark5 FROM mark_records"+
			where+" ORDER BY "+keyColumns, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mark records: %w", err)
	}
	defer rows.Close()

	marks := []types.MarkRecord{}
	for rows.Next() {
		var m types.MarkRecord
		if err := rows.Scan(&m.Year, &m.Grade, &m.Subject, &m.Municipality, &m.School,
			&m.Participants, &m.Mark2, &m.Mark3, &m.Mark4, &m.Mark5); err != nil {
			return nil, fmt.Errorf("failed to scan mark record: %w", err)
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mark records: %w", err)
	}
	return marks, nil
}

// QueryScores returns the score records matching f in key order
func (r *Repository) QueryScores(ctx context.Context, f filter.Filter) ([]types.ScoreRecord, error) {
	where, args := whereClause(f)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+keyColumns+", participants, scores FROM score_records"+
			where+" ORDER BY "+keyColumns, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score records: %w", err)
	}
	defer rows.Close()

	scores := []types.ScoreRecord{}
	for rows.Next() {
		var (
			s   types.ScoreRecord
			raw string
		)
		if err := rows.Scan(&s.Year, &s.Grade, &s.Subject, &s.Municipality, &s.School,
			&s.Participants, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan score record: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &s.Scores); err != nil {
			return nil, fmt.Errorf("failed to decode scores: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score records: %w", err)
	}
	return scores, nil
}

// QueryBias returns the bias records matching f in key order
func (r *Repository) QueryBias(ctx context.Context, f filter.Filter) ([]types.BiasRecord, error) {
	where, args := whereClause(f)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+keyColumns+", indicators FROM bias_records"+
			where+" ORDER BY "+keyColumns, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bias records: %w", err)
	}
	defer rows.Close()

	bias := []types.BiasRecord{}
	for rows.Next() {
		var (
			b   types.BiasRecord
			raw string
		)
		if err := rows.Scan(&b.Year, &b.Grade, &b.Subject, &b.Municipality, &b.School, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan bias record: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &b.Indicators); err != nil {
			return nil, fmt.Errorf("failed to decode indicators: %w", err)
		}
		bias = append(bias, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bias records: %w", err)
	}
	return bias, nil
}

// Distinct lists the sorted distinct values of one dimension among mark
// records matching f.
func (r *Repository) Distinct(ctx context.Context, dim Dimension, f filter.Filter) ([]string, error) {
	if _, err := ParseDimension(string(dim)); err != nil {
		return nil, err
	}

	where, args := whereClause(f)
	column := string(dim)
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT "+column+" FROM mark_records"+where+" ORDER BY "+column, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", column, err)
	}
	return values, nil
}

// Snapshot reads every collection back into a Dataset
func (r *Repository) Snapshot(ctx context.Context) (*dataset.Dataset, error) {
	all := filter.Filter{}

	marks, err := r.QueryMarks(ctx, all)
	if err != nil {
		return nil, err
	}
	scores, err := r.QueryScores(ctx, all)
	if err != nil {
		return nil, err
	}
	bias, err := r.QueryBias(ctx, all)
	if err != nil {
		return nil, err
	}
	return &dataset.Dataset{Marks: marks, Scores: scores, Bias: bias}, nil
}
