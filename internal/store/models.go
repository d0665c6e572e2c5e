package store

import (
	"errors"
	"time"
)

// ErrDuplicate is returned when an insert violates a uniqueness
// constraint (currently only signatures).
var ErrDuplicate = errors.New("duplicate row")

type Log struct {
	ID         string
	Title      string
	Message    string
	Author     string
	ImageURL   string
	Version    string
	Pinned     bool
	UnpinnedAt *time.Time
	Archived   bool
	ArchivedAt *time.Time
	CreatedAt  time.Time
}

type Signature struct {
	ID        string
	LogID     string
	Name      string
	CreatedAt time.Time
}

// Comment is one node of the two-level comment tree. ParentID is nil
// for top-level comments and always references a top-level comment for
// replies; the tree never nests deeper.
type Comment struct {
	ID        string
	LogID     string
	ParentID  *string
	Author    string
	Message   string
	CreatedAt time.Time
}

type Reaction struct {
	ID        string
	LogID     string
	Emoji     string
	CreatedAt time.Time
}

type Attachment struct {
	ID           string
	LogID        string
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	URL          string
	CreatedAt    time.Time
}

type Meeting struct {
	ID          string
	Title       string
	ScheduledAt time.Time
	Archived    bool
	ArchivedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MeetingPoint struct {
	ID          string
	MeetingID   string
	Title       string
	Description string
	Author      string
	Completed   bool
	CompletedAt *time.Time
	Notes       string
	CreatedAt   time.Time
}

// MeetingPointPatch carries a partial update. A nil field means
// "leave untouched", never "clear".
type MeetingPointPatch struct {
	Title       *string
	Author      *string
	Description *string
	Completed   *bool
	Notes       *string
}

// Principal identifies an authenticated caller. Loggen has no user
// accounts: a principal is a display name plus a role granted by which
// shared password was presented at login.
type Principal struct {
	Name string
	Role string
}
