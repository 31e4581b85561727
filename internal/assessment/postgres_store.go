package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mbd888/dealscope/internal/pagination"
	"github.com/mbd888/dealscope/internal/scoring"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Save(ctx context.Context, a *Assessment) error {
	dropped, err := json.Marshal(nonNil(a.Dropped))
	if err != nil {
		return fmt.Errorf("encode dropped edges: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assessments (id, kind, request_id, company_count, edge_count, dropped_edges, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Kind, a.RequestID, len(a.Companies), a.EdgeCount, dropped, a.CreatedAt)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO company_scores
			(assessment_id, position, company_id, company_name, direct_score, propagated_score,
			 total_score, display_score, risk_level, categories, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range a.Companies {
		cats, err := json.Marshal(nonNil(c.Categories))
		if err != nil {
			return fmt.Errorf("encode categories of %s: %w", c.CompanyID, err)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, i, c.CompanyID, c.Name,
			c.DirectScore, c.PropagatedScore, c.TotalScore, c.DisplayScore,
			string(c.RiskLevel), cats, a.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Assessment, error) {
	a := &Assessment{}
	var dropped []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT id, kind, request_id, edge_count, dropped_edges, created_at
		FROM assessments WHERE id = $1`, id).
		Scan(&a.ID, &a.Kind, &a.RequestID, &a.EdgeCount, &dropped, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dropped, &a.Dropped); err != nil {
		return nil, fmt.Errorf("decode dropped edges: %w", err)
	}
	if len(a.Dropped) == 0 {
		a.Dropped = nil
	}
	a.CreatedAt = a.CreatedAt.UTC()

	rows, err := p.db.QueryContext(ctx, `
		SELECT assessment_id, created_at, `+scoreColumns+`
		FROM company_scores WHERE assessment_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	a.Companies = make([]CompanyResult, len(entries))
	for i, e := range entries {
		a.Companies[i] = e.CompanyResult
	}
	return a, nil
}

func (p *PostgresStore) History(ctx context.Context, companyID string, limit int, cursor *pagination.Cursor) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	query := `
		SELECT assessment_id, created_at, ` + scoreColumns + `
		FROM company_scores
		WHERE company_id = $1`
	args := []interface{}{companyID}
	if cursor != nil {
		query += ` AND (created_at, assessment_id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, assessment_id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

const scoreColumns = `company_id, company_name, direct_score, propagated_score,
		       total_score, display_score, risk_level, categories`

func scanEntries(rows *sql.Rows) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for rows.Next() {
		var (
			e     HistoryEntry
			level string
			cats  []byte
		)
		if err := rows.Scan(&e.AssessmentID, &e.CreatedAt,
			&e.CompanyID, &e.Name, &e.DirectScore, &e.PropagatedScore,
			&e.TotalScore, &e.DisplayScore, &level, &cats); err != nil {
			return nil, err
		}
		e.RiskLevel = scoring.RiskLevel(level)
		e.CreatedAt = e.CreatedAt.UTC()
		if err := json.Unmarshal(cats, &e.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		if len(e.Categories) == 0 {
			e.Categories = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
