package catalog

import "time"

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserBlocked  UserStatus = "blocked"
	UserInactive UserStatus = "inactive"
)

type AppUser struct {
	ID          string     `json:"id"`
	DisplayName *string    `json:"displayName"`
	Status      UserStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountPaused AccountStatus = "paused"
	AccountError  AccountStatus = "error"
)

// LiveAccount is a tracked channel on an external streaming platform.
type LiveAccount struct {
	ID           int64         `json:"id"`
	Platform     string        `json:"platform"`
	AccountID    string        `json:"accountId"`
	CanonicalURL string        `json:"canonicalUrl"`
	Status       AccountStatus `json:"status,omitempty"`
	CreatedAt    time.Time     `json:"createdAt,omitzero"`
	UpdatedAt    time.Time     `json:"updatedAt,omitzero"`
	Recordings   []Recording   `json:"recordings,omitempty"`
}

type FollowStatus string

const (
	FollowActive            FollowStatus = "active"
	FollowInactive          FollowStatus = "inactive"
	FollowTemporaryInactive FollowStatus = "temporary_inactive"
)

// Follow links a user to a live account. There is at most one row per
// (user, live account) pair.
type Follow struct {
	UserID        string       `json:"userId"`
	LiveAccountID int64        `json:"liveAccountId"`
	Status        FollowStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Account       *LiveAccount `json:"liveAccount,omitempty"`
}

type RecordingStatus string

// Recording lifecycle: live_recording → live_end → waiting_upload → uploading → ready | failed.
const (
	StatusLiveRecording RecordingStatus = "live_recording"
	StatusLiveEnd       RecordingStatus = "live_end"
	StatusWaitingUpload RecordingStatus = "waiting_upload"
	StatusUploading     RecordingStatus = "uploading"
	StatusReady         RecordingStatus = "ready"
	StatusFailed        RecordingStatus = "failed"
	// StatusProcessing is offered by the status filter; the pipeline may
	// report it while post-processing.
	StatusProcessing RecordingStatus = "processing"
)

type Recording struct {
	ID                int64           `json:"id"`
	LiveAccountID     int64           `json:"liveAccountId"`
	RecordingKey      *string         `json:"recordingKey"`
	StartedAt         time.Time       `json:"startedAt"`
	EndedAt           *time.Time      `json:"endedAt"`
	DurationSec       *int64          `json:"durationSec"`
	SizeBytes         *int64          `json:"sizeBytes"`
	StoragePrefix     *string         `json:"storagePrefix"`
	Status            RecordingStatus `json:"status"`
	PosterStoragePath *string         `json:"posterStoragePath"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	Account           *LiveAccount    `json:"liveAccount,omitempty"`
}

// Playable reports whether the backend can hand out a media URL for r.
func (r Recording) Playable() bool {
	return r.Status == StatusReady
}

// IsLive reports whether the recording is still being captured.
func (r Recording) IsLive() bool {
	return r.Status == StatusLiveRecording
}
