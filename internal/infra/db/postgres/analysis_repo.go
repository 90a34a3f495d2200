package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

const schema = `
CREATE TABLE IF NOT EXISTS contract_analyses (
  token                TEXT PRIMARY KEY,
  owner_id             TEXT        NOT NULL,
  created_at           TIMESTAMPTZ NOT NULL,
  clause_analysis      TEXT        NOT NULL,
  recommendation       TEXT        NOT NULL,
  extraction           TEXT        NOT NULL,
  paid                 BOOLEAN     NOT NULL DEFAULT FALSE,
  checkout_session_id  TEXT        NOT NULL DEFAULT '',
  checkouts            JSONB       NOT NULL DEFAULT '[]'::jsonb,
  payment_confirmed_at TIMESTAMPTZ NULL,
  updated_at           TIMESTAMPTZ NOT NULL,
  archive_key          TEXT        NOT NULL DEFAULT ''
);
`

const selectColumns = `
SELECT token, owner_id, created_at, clause_analysis, recommendation, extraction,
       paid, checkout_session_id, checkouts, payment_confirmed_at, updated_at, archive_key
FROM contract_analyses
WHERE token=$1`

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save inserts a new analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO contract_analyses
  (token, owner_id, created_at, clause_analysis, recommendation, extraction,
   paid, checkout_session_id, checkouts, payment_confirmed_at, updated_at, archive_key)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
`
	checkouts, err := encodeCheckouts(a.Checkouts)
	if err != nil {
		return err
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = r.db.ExecContext(ctx, q,
		string(a.Token), stringOrDash(a.OwnerID), createdAt, a.ClauseAnalysis, a.Recommendation,
		string(a.Extraction), a.Paid, a.CheckoutSessionID, checkouts,
		nullTime(a.PaymentConfirmedAt), updatedAt, a.ArchiveKey)
	return err
}

func (r *AnalysisRepository) Get(ctx context.Context, token domain.Token) (*domain.Analysis, error) {
	return scanAnalysis(r.db.QueryRowContext(ctx, selectColumns+";", string(token)))
}

// Update holds a row lock until fn returns and the new values are written.
func (r *AnalysisRepository) Update(ctx context.Context, token domain.Token, fn func(*domain.Analysis) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := scanAnalysis(tx.QueryRowContext(ctx, selectColumns+" FOR UPDATE;", string(token)))
	if err != nil {
		return err
	}
	if err := fn(a); err != nil {
		return err
	}

	const q = `
UPDATE contract_analyses SET
  owner_id=$1, clause_analysis=$2, recommendation=$3, extraction=$4, paid=$5,
  checkout_session_id=$6, checkouts=$7, payment_confirmed_at=$8, updated_at=$9, archive_key=$10
WHERE token=$11;
`
	checkouts, err := encodeCheckouts(a.Checkouts)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q,
		stringOrDash(a.OwnerID), a.ClauseAnalysis, a.Recommendation, string(a.Extraction), a.Paid,
		a.CheckoutSessionID, checkouts, nullTime(a.PaymentConfirmedAt), a.UpdatedAt, a.ArchiveKey,
		string(token)); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *AnalysisRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var (
		a          domain.Analysis
		token      string
		extraction string
		checkouts  []byte
		confirmed  sql.NullTime
	)
	err := row.Scan(&token, &a.OwnerID, &a.CreatedAt, &a.ClauseAnalysis, &a.Recommendation, &extraction,
		&a.Paid, &a.CheckoutSessionID, &checkouts, &confirmed, &a.UpdatedAt, &a.ArchiveKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Token = domain.Token(token)
	a.Extraction = domain.ExtractionStatus(extraction)
	if a.Checkouts, err = decodeCheckouts(checkouts); err != nil {
		return nil, err
	}
	if confirmed.Valid {
		t := confirmed.Time.UTC()
		a.PaymentConfirmedAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func encodeCheckouts(c []domain.CheckoutAttempt) (string, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func decodeCheckouts(b []byte) ([]domain.CheckoutAttempt, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out []domain.CheckoutAttempt
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode checkouts: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
