package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

var recordingCols = []string{"id", "live_account_id", "recording_key", "started_at", "ended_at", "duration_sec",
	"size_bytes", "storage_prefix", "status", "poster_storage_path", "created_at", "updated_at",
	"platform", "account_id", "canonical_url"}

func newTestCatalog(t *testing.T) (*Catalog, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	return New(mock), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func addRecordingRow(rows *pgxmock.Rows, id, accountID int64, status string, startedAt time.Time) *pgxmock.Rows {
	return rows.AddRow(id, accountID, (*string)(nil), startedAt, (*time.Time)(nil), int64Ptr(3600),
		int64Ptr(1024*1024*50), strPtr("rec/1"), status, (*string)(nil), startedAt, startedAt,
		"twitch", "streamer", "https://twitch.tv/streamer")
}

func TestCountFollows(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM follows WHERE user_id = $1`) + `$`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := c.CountFollows(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFollowedAccountIDs(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`SELECT live_account_id FROM follows WHERE user_id = $1`) + `$`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"live_account_id"}).AddRow(int64(7)).AddRow(int64(9)))

	ids, err := c.FollowedAccountIDs(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestFollowedAccountIDs_EmptyIsNonNil(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`SELECT live_account_id FROM follows WHERE user_id = $1`) + `$`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"live_account_id"}))

	ids, err := c.FollowedAccountIDs(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", ids)
	}
}

func TestCountRecordings_WithAndWithoutStatus(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	ids := []int64{1, 2}
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM recordings WHERE live_account_id = ANY($1)`)).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(10)))
	mock.ExpectQuery(q(`AND status = $2`)).
		WithArgs(ids, "ready").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	total, err := c.CountRecordings(context.Background(), ids, "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	ready, err := c.CountRecordings(context.Background(), ids, StatusReady)
	if err != nil {
		t.Fatalf("count ready: %v", err)
	}
	if total != 10 || ready != 4 {
		t.Errorf("expected 10/4, got %d/%d", total, ready)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecentRecordings_ScansJoinedAccount(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(recordingCols)
	addRecordingRow(rows, 11, 1, "ready", now)

	mock.ExpectQuery(q(`ORDER BY r.started_at DESC`)).
		WithArgs([]int64{1}, 5).
		WillReturnRows(rows)

	recs, err := c.RecentRecordings(context.Background(), []int64{1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recording, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Account == nil || rec.Account.AccountID != "streamer" || rec.Account.Platform != "twitch" {
		t.Errorf("expected joined account, got %+v", rec.Account)
	}
	if rec.Account.ID != 1 {
		t.Errorf("expected account id 1, got %d", rec.Account.ID)
	}
	if !rec.Playable() {
		t.Error("expected ready recording to be playable")
	}
}

func TestListRecordings_StatusFilterAddsParameter(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`AND r.status = $2 ORDER BY r.started_at DESC`)).
		WithArgs([]int64{1}, "failed").
		WillReturnRows(pgxmock.NewRows(recordingCols))

	recs, err := c.ListRecordings(context.Background(), []int64{1}, StatusFailed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no recordings, got %d", len(recs))
	}
}

func TestGetRecording_NotFound(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`WHERE r.id = $1`)).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := c.GetRecording(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFollows_AttachesSortedRecordings(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q(`FROM follows f`)).
		WithArgs("user-1", visibleFollowStatuses).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "live_account_id", "status", "created_at", "updated_at",
			"id", "platform", "account_id", "canonical_url", "status", "created_at", "updated_at"}).
			AddRow("user-1", int64(1), "active", created, created, int64(1), "twitch", "streamer", "https://twitch.tv/streamer", "active", created, created).
			AddRow("user-1", int64(2), "temporary_inactive", created, created, int64(2), "youtube", "other", "https://youtube.com/@other", "paused", created, created))

	older := created.Add(time.Hour)
	newer := created.Add(2 * time.Hour)
	rows := pgxmock.NewRows(recordingCols)
	addRecordingRow(rows, 1, 1, "ready", older)
	addRecordingRow(rows, 2, 1, "live_recording", newer)
	mock.ExpectQuery(q(`WHERE r.live_account_id = ANY($1) ORDER BY r.started_at DESC`)).
		WithArgs([]int64{1, 2}).
		WillReturnRows(rows)

	follows, err := c.ListFollows(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(follows) != 2 {
		t.Fatalf("expected 2 follows, got %d", len(follows))
	}
	first := follows[0].Account.Recordings
	if len(first) != 2 {
		t.Fatalf("expected 2 recordings on first follow, got %d", len(first))
	}
	if first[0].ID != 2 || first[1].ID != 1 {
		t.Errorf("expected recordings sorted newest first, got ids %d,%d", first[0].ID, first[1].ID)
	}
	if follows[1].Account.Recordings == nil || len(follows[1].Account.Recordings) != 0 {
		t.Errorf("expected empty recordings on second follow, got %#v", follows[1].Account.Recordings)
	}
	if follows[1].Status != FollowTemporaryInactive {
		t.Errorf("expected temporary_inactive, got %s", follows[1].Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListFollows_NoFollowsSkipsRecordingsQuery(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`FROM follows f`)).
		WithArgs("user-1", visibleFollowStatuses).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "live_account_id", "status", "created_at", "updated_at",
			"id", "platform", "account_id", "canonical_url", "status", "created_at", "updated_at"}))

	follows, err := c.ListFollows(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(follows) != 0 {
		t.Errorf("expected no follows, got %d", len(follows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertFollow_UniqueViolation(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectExec(q(`INSERT INTO follows`)).
		WithArgs("user-1", int64(5), "active").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := c.InsertFollow(context.Background(), "user-1", 5)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInsertFollow_Success(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectExec(q(`INSERT INTO follows`)).
		WithArgs("user-1", int64(5), "active").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := c.InsertFollow(context.Background(), "user-1", 5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetFollowStatus(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectExec(q(`UPDATE follows SET status = $3`)).
		WithArgs("user-1", int64(5), "inactive").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q(`UPDATE follows SET status = $3`)).
		WithArgs("user-1", int64(6), "inactive").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := c.SetFollowStatus(context.Background(), "user-1", 5, FollowInactive); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.SetFollowStatus(context.Background(), "user-1", 6, FollowInactive); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing follow, got %v", err)
	}
}

func TestToggleFollow(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`WHERE user_id = $1 AND live_account_id = $2 AND status = ANY($3)`)).
		WithArgs("user-1", int64(5), visibleFollowStatuses).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("inactive"))

	status, err := c.ToggleFollow(context.Background(), "user-1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != FollowInactive {
		t.Errorf("expected inactive, got %s", status)
	}
}

func TestToggleFollow_RemovedFollowNotFound(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectQuery(q(`AND status = ANY($3)`)).
		WithArgs("user-1", int64(5), visibleFollowStatuses).
		WillReturnError(pgx.ErrNoRows)

	if _, err := c.ToggleFollow(context.Background(), "user-1", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteFollow_NotFound(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	mock.ExpectExec(q(`DELETE FROM follows`)).
		WithArgs("user-1", int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := c.DeleteFollow(context.Background(), "user-1", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAppUser(t *testing.T) {
	c, mock := newTestCatalog(t)
	defer mock.Close()

	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q(`FROM app_users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "display_name", "status", "created_at"}).
			AddRow("user-1", strPtr("Alice"), "active", created))

	u, err := c.GetAppUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.DisplayName == nil || *u.DisplayName != "Alice" {
		t.Errorf("expected display name Alice, got %v", u.DisplayName)
	}
	if u.Status != UserActive {
		t.Errorf("expected active, got %s", u.Status)
	}
}

func TestSortByStartedDesc(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []Recording{
		{ID: 1, StartedAt: base},
		{ID: 2, StartedAt: base.Add(2 * time.Hour)},
		{ID: 3, StartedAt: base.Add(time.Hour)},
	}
	SortByStartedDesc(recs)
	if recs[0].ID != 2 || recs[1].ID != 3 || recs[2].ID != 1 {
		t.Errorf("unexpected order: %d,%d,%d", recs[0].ID, recs[1].ID, recs[2].ID)
	}
}
