package tombstones

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO tombstones .* ON CONFLICT \(user_id, data_type, record_id\)\s+DO UPDATE SET\s+deleted_at = EXCLUDED\.deleted_at,.*expires_at = EXCLUDED\.expires_at;`)

	deletedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := deletedAt.Add(90 * 24 * time.Hour)

	mock.ExpectExec(q.String()).
		WithArgs("u1", "contacts", "r1", deletedAt, "laptop", expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Tombstone{
		UserID:            "u1",
		DataType:          "contacts",
		RecordID:          "r1",
		DeletedAt:         deletedAt,
		DeletedByDeviceID: "laptop",
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO tombstones .* ON CONFLICT`)
	mock.ExpectExec(q.String()).WillReturnError(errors.New("db is down"))

	err := repo.Upsert(context.Background(), &models.Tombstone{UserID: "u1", DataType: "contacts", RecordID: "r1"})
	if err == nil || !regexp.MustCompile(`failed to upsert tombstone: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped upsert error, got %v", err)
	}
}

func TestSelectSince_FiltersExpiryInQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// The read-time filter is part of the contract: an expired marker must
	// vanish from results even before the sweep removes the row.
	q := regexp.MustCompile(`SELECT user_id, data_type, record_id, deleted_at, deleted_by_device_id, expires_at\s+FROM tombstones\s+WHERE user_id = \$1 AND data_type = \$2 AND deleted_at > \$3 AND expires_at > NOW\(\)\s+ORDER BY deleted_at ASC, record_id ASC\s+LIMIT \$4 OFFSET \$5;`)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d1 := since.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"user_id", "data_type", "record_id", "deleted_at", "deleted_by_device_id", "expires_at",
	}).AddRow("u1", "contacts", "r1", d1, "laptop", d1.Add(90*24*time.Hour))

	mock.ExpectQuery(q.String()).WithArgs("u1", "contacts", since, 50, 0).WillReturnRows(rows)

	got, err := repo.SelectSince(context.Background(), "u1", "contacts", since, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].RecordID != "r1" || got[0].DeletedByDeviceID != "laptop" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestSelectSince_ScanRowError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM tombstones`)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"user_id", "data_type", "record_id", "deleted_at", "deleted_by_device_id", "expires_at",
	}).AddRow("u1", "contacts", "r1", "not-a-time", "laptop", since)

	mock.ExpectQuery(q.String()).WithArgs("u1", "contacts", since, 50, 0).WillReturnRows(rows)

	_, err := repo.SelectSince(context.Background(), "u1", "contacts", since, 50, 0)
	if err == nil {
		t.Fatalf("expected scan error, got nil")
	}
}

func TestCountSince_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT COUNT\(\*\) FROM tombstones WHERE user_id = \$1 AND data_type = \$2 AND deleted_at > \$3 AND expires_at > NOW\(\);`)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q.String()).WithArgs("u1", "contacts", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := repo.CountSince(context.Background(), "u1", "contacts", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3, got %d", n)
	}
}

func TestSweepExpired_ReportsRemoved(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`DELETE FROM tombstones WHERE expires_at < \$1;`)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(q.String()).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 9))

	n, err := repo.SweepExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 9 {
		t.Fatalf("want 9 removed, got %d", n)
	}
}

func TestSweepExpired_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`DELETE FROM tombstones WHERE expires_at < \$1;`)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(q.String()).WithArgs(now).WillReturnError(errors.New("db is down"))

	_, err := repo.SweepExpired(context.Background(), now)
	if err == nil || !regexp.MustCompile(`failed to sweep tombstones: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped sweep error, got %v", err)
	}
}
