package repository

import (
	"database/sql"
	"testing"
	"time"
)

// 実装がインターフェースを満たすことを検証
var (
	_ PageRepository   = (*PostgresPageRepo)(nil)
	_ TagRepository    = (*PostgresTagRepo)(nil)
	_ StatusRepository = (*PostgresStatusRepo)(nil)
	_ TxManager        = (*PostgresTxManager)(nil)
	_ Tx               = (*txRepos)(nil)
)

// DBTXが*sql.DBと*sql.Txの双方で満たされることを検証
var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

func TestNullString(t *testing.T) {
	if got := nullString(""); got.Valid {
		t.Errorf("nullString(\"\") = %+v, want invalid", got)
	}
	got := nullString("value")
	if !got.Valid || got.String != "value" {
		t.Errorf("nullString(\"value\") = %+v", got)
	}
}

func TestNullTime(t *testing.T) {
	if got := nullTime(nil); got.Valid {
		t.Errorf("nullTime(nil) = %+v, want invalid", got)
	}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := nullTime(&now)
	if !got.Valid || !got.Time.Equal(now) {
		t.Errorf("nullTime = %+v", got)
	}
}

func TestTimePtr(t *testing.T) {
	if got := timePtr(sql.NullTime{}); got != nil {
		t.Errorf("timePtr(invalid) = %v, want nil", got)
	}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := timePtr(sql.NullTime{Time: now, Valid: true})
	if got == nil || !got.Equal(now) {
		t.Errorf("timePtr = %v", got)
	}
}

// nullString/timePtrの往復で値が保存されることを検証
func TestNullHelpers_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)
	if got := timePtr(nullTime(&now)); got == nil || !got.Equal(now) {
		t.Errorf("round trip = %v", got)
	}
	if got := timePtr(nullTime(nil)); got != nil {
		t.Errorf("round trip nil = %v", got)
	}
}
