package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

const schema = `
CREATE TABLE IF NOT EXISTS contract_analyses (
  token                VARCHAR(128) NOT NULL PRIMARY KEY,
  owner_id             VARCHAR(255) NOT NULL,
  created_at           DATETIME(6)  NOT NULL,
  clause_analysis      MEDIUMTEXT   NOT NULL,
  recommendation       TEXT         NOT NULL,
  extraction           VARCHAR(16)  NOT NULL,
  paid                 BOOLEAN      NOT NULL DEFAULT FALSE,
  checkout_session_id  VARCHAR(255) NOT NULL DEFAULT '',
  checkouts            JSON         NULL,
  payment_confirmed_at DATETIME(6)  NULL,
  updated_at           DATETIME(6)  NOT NULL,
  archive_key          VARCHAR(512) NOT NULL DEFAULT ''
);
`

const selectColumns = `
SELECT token, owner_id, created_at, clause_analysis, recommendation, extraction,
       paid, checkout_session_id, checkouts, payment_confirmed_at, updated_at, archive_key
FROM contract_analyses
WHERE token=?`

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// EnsureSchema creates the contract_analyses table when missing.
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
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);
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

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
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
  owner_id=?, clause_analysis=?, recommendation=?, extraction=?, paid=?,
  checkout_session_id=?, checkouts=?, payment_confirmed_at=?, updated_at=?, archive_key=?
WHERE token=?;
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

func scanAnalysis(row *sql.Row) (*domain.Analysis, error) {
	var (
		a          domain.Analysis
		token      string
		extraction string
		checkouts  sql.NullString
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
		return nil, fmt.Errorf("decode checkouts: %w", err)
	}
	if confirmed.Valid {
		t := confirmed.Time
		a.PaymentConfirmedAt = &t
	}
	return &a, nil
}
