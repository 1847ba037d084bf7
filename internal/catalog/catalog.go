package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/streamcatch/streamcatch/internal/database"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// visibleFollowStatuses are the follow states that still count as following.
var visibleFollowStatuses = []string{string(FollowActive), string(FollowTemporaryInactive)}

// Catalog runs the typed queries behind every page against the relational store.
type Catalog struct {
	db database.DBTX
}

func New(db database.DBTX) *Catalog {
	return &Catalog{db: db}
}

// CountFollows counts every follow row of the user regardless of status.
func (c *Catalog) CountFollows(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := c.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM follows WHERE user_id = $1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count follows: %w", err)
	}
	return n, nil
}

// FollowedAccountIDs returns the live account id of every follow row of the
// user, paused or removed ones included, so their recordings stay browsable.
func (c *Catalog) FollowedAccountIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := c.db.Query(ctx,
		`SELECT live_account_id FROM follows WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query followed accounts: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan followed account: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate followed accounts: %w", err)
	}
	return ids, nil
}

// CountRecordings counts recordings of the given accounts. An empty status
// counts every status.
func (c *Catalog) CountRecordings(ctx context.Context, accountIDs []int64, status RecordingStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM recordings WHERE live_account_id = ANY($1)`
	args := []any{accountIDs}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}

	var n int64
	if err := c.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recordings: %w", err)
	}
	return n, nil
}

const recordingColumns = `r.id, r.live_account_id, r.recording_key, r.started_at, r.ended_at, r.duration_sec,
		r.size_bytes, r.storage_prefix, r.status, r.poster_storage_path, r.created_at, r.updated_at,
		la.platform, la.account_id, la.canonical_url`

// RecentRecordings returns the newest recordings of the given accounts.
func (c *Catalog) RecentRecordings(ctx context.Context, accountIDs []int64, limit int) ([]Recording, error) {
	rows, err := c.db.Query(ctx,
		`SELECT `+recordingColumns+`
		 FROM recordings r
		 JOIN live_accounts la ON la.id = r.live_account_id
		 WHERE r.live_account_id = ANY($1)
		 ORDER BY r.started_at DESC
		 LIMIT $2`,
		accountIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent recordings: %w", err)
	}
	return collectRecordings(rows)
}

// ListRecordings returns the recordings of the given accounts, newest first,
// optionally restricted to one status.
func (c *Catalog) ListRecordings(ctx context.Context, accountIDs []int64, status RecordingStatus) ([]Recording, error) {
	query := `SELECT ` + recordingColumns + `
		 FROM recordings r
		 JOIN live_accounts la ON la.id = r.live_account_id
		 WHERE r.live_account_id = ANY($1)`
	args := []any{accountIDs}
	if status != "" {
		query += ` AND r.status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY r.started_at DESC`

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	return collectRecordings(rows)
}

func (c *Catalog) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	row := c.db.QueryRow(ctx,
		`SELECT `+recordingColumns+`
		 FROM recordings r
		 JOIN live_accounts la ON la.id = r.live_account_id
		 WHERE r.id = $1`,
		id,
	)
	rec, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %d: %w", id, err)
	}
	return &rec, nil
}

// ListFollows returns the user's visible follows, newest first, each with its
// live account and that account's recordings sorted newest first.
func (c *Catalog) ListFollows(ctx context.Context, userID string) ([]Follow, error) {
	rows, err := c.db.Query(ctx,
		`SELECT f.user_id, f.live_account_id, f.status, f.created_at, f.updated_at,
		        la.id, la.platform, la.account_id, la.canonical_url, la.status, la.created_at, la.updated_at
		 FROM follows f
		 JOIN live_accounts la ON la.id = f.live_account_id
		 WHERE f.user_id = $1 AND f.status = ANY($2)
		 ORDER BY f.created_at DESC`,
		userID, visibleFollowStatuses,
	)
	if err != nil {
		return nil, fmt.Errorf("query follows: %w", err)
	}

	follows := []Follow{}
	for rows.Next() {
		var f Follow
		var la LiveAccount
		var followStatus, accountStatus string
		if err := rows.Scan(&f.UserID, &f.LiveAccountID, &followStatus, &f.CreatedAt, &f.UpdatedAt,
			&la.ID, &la.Platform, &la.AccountID, &la.CanonicalURL, &accountStatus, &la.CreatedAt, &la.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		f.Status = FollowStatus(followStatus)
		la.Status = AccountStatus(accountStatus)
		la.Recordings = []Recording{}
		f.Account = &la
		follows = append(follows, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follows: %w", err)
	}
	if len(follows) == 0 {
		return follows, nil
	}

	accountIDs := make([]int64, 0, len(follows))
	for _, f := range follows {
		accountIDs = append(accountIDs, f.LiveAccountID)
	}
	recordings, err := c.ListRecordings(ctx, accountIDs, "")
	if err != nil {
		return nil, err
	}

	byAccount := make(map[int64][]Recording, len(follows))
	for _, rec := range recordings {
		byAccount[rec.LiveAccountID] = append(byAccount[rec.LiveAccountID], rec)
	}
	for i := range follows {
		recs := byAccount[follows[i].LiveAccountID]
		SortByStartedDesc(recs)
		if recs != nil {
			follows[i].Account.Recordings = recs
		}
	}
	return follows, nil
}

// InsertFollow creates an active follow. A duplicate (user, account) pair
// returns ErrAlreadyExists.
func (c *Catalog) InsertFollow(ctx context.Context, userID string, accountID int64) error {
	_, err := c.db.Exec(ctx,
		`INSERT INTO follows (user_id, live_account_id, status) VALUES ($1, $2, $3)`,
		userID, accountID, string(FollowActive),
	)
	if database.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}

func (c *Catalog) SetFollowStatus(ctx context.Context, userID string, accountID int64, status FollowStatus) error {
	tag, err := c.db.Exec(ctx,
		`UPDATE follows SET status = $3, updated_at = now() WHERE user_id = $1 AND live_account_id = $2`,
		userID, accountID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update follow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleFollow flips a listed follow between active and inactive and returns the
// new status. Soft-removed follows are not listed and report ErrNotFound.
func (c *Catalog) ToggleFollow(ctx context.Context, userID string, accountID int64) (FollowStatus, error) {
	var status string
	err := c.db.QueryRow(ctx,
		`UPDATE follows
		 SET status = CASE WHEN status = 'active' THEN 'inactive' ELSE 'active' END, updated_at = now()
		 WHERE user_id = $1 AND live_account_id = $2 AND status = ANY($3)
		 RETURNING status`,
		userID, accountID, visibleFollowStatuses,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("toggle follow: %w", err)
	}
	return FollowStatus(status), nil
}

func (c *Catalog) DeleteFollow(ctx context.Context, userID string, accountID int64) error {
	tag, err := c.db.Exec(ctx,
		`DELETE FROM follows WHERE user_id = $1 AND live_account_id = $2`,
		userID, accountID,
	)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Catalog) GetAppUser(ctx context.Context, id string) (*AppUser, error) {
	var u AppUser
	var status string
	err := c.db.QueryRow(ctx,
		`SELECT id, display_name, status, created_at FROM app_users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName, &status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get app user: %w", err)
	}
	u.Status = UserStatus(status)
	return &u, nil
}

// SortByStartedDesc orders recordings newest first, in place.
func SortByStartedDesc(recs []Recording) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
}

func collectRecordings(rows pgx.Rows) ([]Recording, error) {
	defer rows.Close()

	recs := []Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return recs, nil
}

func scanRecording(row pgx.Row) (Recording, error) {
	var rec Recording
	var la LiveAccount
	var status string
	var startedAt time.Time
	err := row.Scan(&rec.ID, &rec.LiveAccountID, &rec.RecordingKey, &startedAt, &rec.EndedAt, &rec.DurationSec,
		&rec.SizeBytes, &rec.StoragePrefix, &status, &rec.PosterStoragePath, &rec.CreatedAt, &rec.UpdatedAt,
		&la.Platform, &la.AccountID, &la.CanonicalURL)
	if err != nil {
		return Recording{}, err
	}
	rec.StartedAt = startedAt
	rec.Status = RecordingStatus(status)
	la.ID = rec.LiveAccountID
	rec.Account = &la
	return rec, nil
}
