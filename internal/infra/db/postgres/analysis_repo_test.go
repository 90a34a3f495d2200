package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

// fakeRow assigns vals to Scan destinations in column order.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d destinations, %d values", len(dest), len(r.vals))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *bool:
			*p = r.vals[i].(bool)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		case *[]byte:
			*p = r.vals[i].([]byte)
		case *sql.NullTime:
			*p = r.vals[i].(sql.NullTime)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanAnalysisRoundTripsCheckouts(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	in := []domain.CheckoutAttempt{
		{SessionID: "cs_1", Provider: "stripe", URL: "https://checkout/1", CreatedAt: at.UTC()},
		{SessionID: "cs_2", Provider: "stripe", CreatedAt: at.UTC().Add(time.Minute)},
	}
	jsonb, err := encodeCheckouts(in)
	if err != nil {
		t.Fatal(err)
	}
	confirmed := at.Add(time.Hour)

	a, err := scanAnalysis(fakeRow{vals: []any{
		"0123456789abcdef0123456789abcdef", "user-1", at, "A multa é abusiva.", "", "extracted",
		true, "cs_2", []byte(jsonb), sql.NullTime{Time: confirmed, Valid: true}, at, "",
	}})
	if err != nil {
		t.Fatalf("scanAnalysis error: %v", err)
	}
	if a.Token != "0123456789abcdef0123456789abcdef" || a.Extraction != domain.ExtractionExtracted || !a.Paid {
		t.Errorf("record = %+v", a)
	}
	if len(a.Checkouts) != 2 || a.Checkouts[1].SessionID != "cs_2" || a.Checkouts[0].URL != "https://checkout/1" {
		t.Errorf("checkouts = %+v", a.Checkouts)
	}
	if a.PaymentConfirmedAt == nil || !a.PaymentConfirmedAt.Equal(confirmed) || a.PaymentConfirmedAt.Location() != time.UTC {
		t.Errorf("PaymentConfirmedAt = %v", a.PaymentConfirmedAt)
	}
	if a.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt not normalized to UTC: %v", a.CreatedAt)
	}
}

func TestScanAnalysisEmptyCheckouts(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, col := range [][]byte{nil, []byte("[]")} {
		a, err := scanAnalysis(fakeRow{vals: []any{
			"0123456789abcdef0123456789abcdef", "-", at, "x", "", "degraded",
			false, "", col, sql.NullTime{}, at, "",
		}})
		if err != nil {
			t.Fatalf("scanAnalysis(%q) error: %v", col, err)
		}
		if a.Checkouts != nil || a.PaymentConfirmedAt != nil {
			t.Errorf("scanAnalysis(%q) = %+v", col, a)
		}
	}
	if s, _ := encodeCheckouts(nil); s != "[]" {
		t.Errorf("encodeCheckouts(nil) = %q", s)
	}
}

func TestScanAnalysisErrors(t *testing.T) {
	if _, err := scanAnalysis(fakeRow{err: sql.ErrNoRows}); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("no rows: err = %v; want ErrTokenNotFound", err)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := scanAnalysis(fakeRow{vals: []any{
		"0123456789abcdef0123456789abcdef", "-", at, "x", "", "extracted",
		false, "", []byte("{"), sql.NullTime{}, at, "",
	}})
	if err == nil || errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("bad jsonb: err = %v; want decode error", err)
	}
}

func TestStringOrDash(t *testing.T) {
	if stringOrDash("  ") != "-" || stringOrDash("user-1") != "user-1" {
		t.Error("stringOrDash mismatch")
	}
}
