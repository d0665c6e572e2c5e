package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hellzicke/loggen/internal/config"
	"github.com/Hellzicke/loggen/internal/export"
	"github.com/Hellzicke/loggen/internal/retention"
	"github.com/Hellzicke/loggen/internal/store"
)

// fakeStore is an in-memory dataStore used by the service and handler
// tests. It mirrors the SQL layer's contract: sql.ErrNoRows for missing
// rows, store.ErrDuplicate for signature uniqueness, FK-style cascades
// on delete.
type fakeStore struct {
	mu          sync.Mutex
	logs        []store.Log
	signatures  []store.Signature
	comments    []store.Comment
	reactions   []store.Reaction
	attachments []store.Attachment
	meetings    []store.Meeting
	points      []store.MeetingPoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) ListActiveLogs(context.Context) ([]store.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Log, 0)
	for _, item := range f.logs {
		if !item.Archived {
			items = append(items, item)
		}
	}
	sortLogsByCreatedDesc(items)
	return items, nil
}

func (f *fakeStore) ListArchivedLogs(context.Context) ([]store.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Log, 0)
	for _, item := range f.logs {
		if item.Archived {
			items = append(items, item)
		}
	}
	return items, nil
}

func sortLogsByCreatedDesc(items []store.Log) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].CreatedAt.After(items[j-1].CreatedAt); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func (f *fakeStore) GetLog(_ context.Context, logID string) (store.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.logs {
		if item.ID == logID {
			return item, nil
		}
	}
	return store.Log{}, sql.ErrNoRows
}

func (f *fakeStore) InsertLog(_ context.Context, item store.Log) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, item)
	return nil
}

func (f *fakeStore) UpdateLogContent(_ context.Context, logID, title, message, imageURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.logs {
		if f.logs[i].ID == logID {
			f.logs[i].Title = title
			f.logs[i].Message = message
			f.logs[i].ImageURL = imageURL
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetLogPinned(_ context.Context, logID string, pinned bool, unpinnedAt *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.logs {
		if f.logs[i].ID == logID && !f.logs[i].Archived {
			f.logs[i].Pinned = pinned
			f.logs[i].UnpinnedAt = unpinnedAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ArchiveLog(_ context.Context, logID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.logs {
		if f.logs[i].ID == logID {
			f.logs[i].Archived = true
			f.logs[i].ArchivedAt = &now
			f.logs[i].Pinned = false
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UnarchiveLog(_ context.Context, logID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.logs {
		if f.logs[i].ID == logID {
			f.logs[i].Archived = false
			f.logs[i].ArchivedAt = nil
			f.logs[i].UnpinnedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ArchiveLogsBefore(_ context.Context, cutoff, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var swept int64
	for i := range f.logs {
		item := f.logs[i]
		if item.Archived || item.Pinned {
			continue
		}
		if !retention.Reference(item.CreatedAt, item.UnpinnedAt).After(cutoff) {
			f.logs[i].Archived = true
			f.logs[i].ArchivedAt = &now
			swept++
		}
	}
	return swept, nil
}

func (f *fakeStore) DeleteLog(_ context.Context, logID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	kept := f.logs[:0]
	for _, item := range f.logs {
		if item.ID == logID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	f.logs = kept
	if found {
		sigs := f.signatures[:0]
		for _, item := range f.signatures {
			if item.LogID != logID {
				sigs = append(sigs, item)
			}
		}
		f.signatures = sigs
		cmts := f.comments[:0]
		for _, item := range f.comments {
			if item.LogID != logID {
				cmts = append(cmts, item)
			}
		}
		f.comments = cmts
		rcts := f.reactions[:0]
		for _, item := range f.reactions {
			if item.LogID != logID {
				rcts = append(rcts, item)
			}
		}
		f.reactions = rcts
		atts := f.attachments[:0]
		for _, item := range f.attachments {
			if item.LogID != logID {
				atts = append(atts, item)
			}
		}
		f.attachments = atts
	}
	return found, nil
}

func (f *fakeStore) ListSignatures(_ context.Context, logID string) ([]store.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Signature, 0)
	for _, item := range f.signatures {
		if item.LogID == logID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) InsertSignature(_ context.Context, item store.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.signatures {
		if existing.LogID == item.LogID && existing.Name == item.Name {
			return store.ErrDuplicate
		}
	}
	f.signatures = append(f.signatures, item)
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, logID string) ([]store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Comment, 0)
	for _, item := range f.comments {
		if item.LogID == logID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) GetComment(_ context.Context, commentID string) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.comments {
		if item.ID == commentID {
			return item, nil
		}
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) InsertComment(_ context.Context, item store.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, item)
	return nil
}

func (f *fakeStore) DeleteComment(_ context.Context, commentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	kept := f.comments[:0]
	for _, item := range f.comments {
		if item.ID == commentID {
			found = true
			continue
		}
		if item.ParentID != nil && *item.ParentID == commentID {
			continue
		}
		kept = append(kept, item)
	}
	f.comments = kept
	return found, nil
}

func (f *fakeStore) ListReactions(_ context.Context, logID string) ([]store.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Reaction, 0)
	for _, item := range f.reactions {
		if item.LogID == logID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) InsertReaction(_ context.Context, item store.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, item)
	return nil
}

func (f *fakeStore) ListAttachments(_ context.Context, logID string) ([]store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Attachment, 0)
	for _, item := range f.attachments {
		if item.LogID == logID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) ReplaceAttachments(_ context.Context, logID string, items []store.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.attachments[:0]
	for _, item := range f.attachments {
		if item.LogID != logID {
			kept = append(kept, item)
		}
	}
	f.attachments = append(kept, items...)
	return nil
}

func (f *fakeStore) ListUpcomingMeetings(context.Context) ([]store.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Meeting, 0)
	for _, item := range f.meetings {
		if !item.Archived {
			items = append(items, item)
		}
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].ScheduledAt.Before(items[j-1].ScheduledAt); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items, nil
}

func (f *fakeStore) ListArchivedMeetings(context.Context) ([]store.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Meeting, 0)
	for _, item := range f.meetings {
		if item.Archived {
			items = append(items, item)
		}
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && archivedTime(items[j]).After(archivedTime(items[j-1])); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items, nil
}

func archivedTime(item store.Meeting) time.Time {
	if item.ArchivedAt == nil {
		return time.Time{}
	}
	return *item.ArchivedAt
}

func (f *fakeStore) GetMeeting(_ context.Context, meetingID string) (store.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.meetings {
		if item.ID == meetingID {
			return item, nil
		}
	}
	return store.Meeting{}, sql.ErrNoRows
}

func (f *fakeStore) InsertMeeting(_ context.Context, item store.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetings = append(f.meetings, item)
	return nil
}

func (f *fakeStore) UpdateMeeting(_ context.Context, meetingID, title string, scheduledAt, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.meetings {
		if f.meetings[i].ID == meetingID {
			f.meetings[i].Title = title
			f.meetings[i].ScheduledAt = scheduledAt
			f.meetings[i].UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetMeetingArchived(_ context.Context, meetingID string, archived bool, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.meetings {
		if f.meetings[i].ID == meetingID {
			f.meetings[i].Archived = archived
			if archived {
				f.meetings[i].ArchivedAt = &now
			} else {
				f.meetings[i].ArchivedAt = nil
			}
			f.meetings[i].UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeleteMeeting(_ context.Context, meetingID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	kept := f.meetings[:0]
	for _, item := range f.meetings {
		if item.ID == meetingID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	f.meetings = kept
	if found {
		pts := f.points[:0]
		for _, item := range f.points {
			if item.MeetingID != meetingID {
				pts = append(pts, item)
			}
		}
		f.points = pts
	}
	return found, nil
}

func (f *fakeStore) ListMeetingPoints(_ context.Context, meetingID string) ([]store.MeetingPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.MeetingPoint, 0)
	for _, item := range f.points {
		if item.MeetingID == meetingID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) GetMeetingPoint(_ context.Context, pointID string) (store.MeetingPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.points {
		if item.ID == pointID {
			return item, nil
		}
	}
	return store.MeetingPoint{}, sql.ErrNoRows
}

func (f *fakeStore) InsertMeetingPoint(_ context.Context, item store.MeetingPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, item)
	return nil
}

func (f *fakeStore) UpdateMeetingPoint(_ context.Context, pointID string, patch store.MeetingPointPatch, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.points {
		if f.points[i].ID != pointID {
			continue
		}
		if patch.Title != nil {
			f.points[i].Title = *patch.Title
		}
		if patch.Author != nil {
			f.points[i].Author = *patch.Author
		}
		if patch.Description != nil {
			f.points[i].Description = *patch.Description
		}
		if patch.Notes != nil {
			f.points[i].Notes = *patch.Notes
		}
		if patch.Completed != nil {
			f.points[i].Completed = *patch.Completed
			if *patch.Completed {
				f.points[i].CompletedAt = &now
			} else {
				f.points[i].CompletedAt = nil
			}
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) DeleteMeetingPoint(_ context.Context, pointID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	kept := f.points[:0]
	for _, item := range f.points {
		if item.ID == pointID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	f.points = kept
	return found, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.Principal
	revoked  map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions: make(map[string]store.Principal),
		revoked:  make(map[string]bool),
	}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, principal store.Principal, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = principal
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	principal, ok := f.sessions[tokenHash]
	if !ok {
		return store.Principal{}, fmt.Errorf("token not found or expired")
	}
	return principal, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func testConfig() config.Config {
	return config.Config{
		AppVersion:    "test",
		JWTSecret:     "test-secret",
		StaffPassword: "staff-pw",
		AdminPassword: "admin-pw",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	}
}

func newTestService(fake *fakeStore) *Service {
	svc := &Service{
		cfg:      testConfig(),
		store:    fake,
		sessions: newFakeSessions(),
	}
	svc.exporter = export.NewService(minutesSource{store: fake})
	return svc
}

func TestAggregateReactionsFirstOccurrenceOrder(t *testing.T) {
	reactions := []store.Reaction{
		{Emoji: "🎉"},
		{Emoji: "👍"},
		{Emoji: "🎉"},
		{Emoji: "❤️"},
		{Emoji: "🎉"},
	}

	got := aggregateReactions(reactions)
	if len(got) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(got))
	}
	if got[0]["emoji"] != "🎉" || got[0]["count"] != 3 {
		t.Errorf("first group = %v, want 🎉 ×3", got[0])
	}
	if got[1]["emoji"] != "👍" || got[1]["count"] != 1 {
		t.Errorf("second group = %v, want 👍 ×1", got[1])
	}
	if got[2]["emoji"] != "❤️" || got[2]["count"] != 1 {
		t.Errorf("third group = %v, want ❤️ ×1", got[2])
	}
}

func TestAggregateReactionsEmpty(t *testing.T) {
	got := aggregateReactions(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<p>hello</p>", "hello"},
		{"<p><br></p>", ""},
		{"  <div>  </div>  ", ""},
		{"<b>bold</b> and <i>italic</i>", "bold and italic"},
	}
	for _, tt := range tests {
		if got := stripMarkup(tt.in); got != tt.want {
			t.Errorf("stripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCommentTreeTwoLevels(t *testing.T) {
	parentID := "cmt_1"
	comments := []store.Comment{
		{ID: "cmt_1", LogID: "log_1", Author: "Anna", Message: "top"},
		{ID: "cmt_2", LogID: "log_1", ParentID: &parentID, Author: "Ben", Message: "reply"},
		{ID: "cmt_3", LogID: "log_1", Author: "Cleo", Message: "another top"},
	}

	tree := commentTree(comments)
	if len(tree) != 2 {
		t.Fatalf("expected 2 top-level comments, got %d", len(tree))
	}
	replies := tree[0]["replies"].([]map[string]any)
	if len(replies) != 1 || replies[0]["id"] != "cmt_2" {
		t.Fatalf("expected one reply under cmt_1, got %v", replies)
	}
	if len(tree[1]["replies"].([]map[string]any)) != 0 {
		t.Error("cmt_3 should have no replies")
	}
}

func TestCreateLogStampsVersion(t *testing.T) {
	fake := newFakeStore()
	svc := newTestService(fake)

	payload, err := svc.CreateLog(context.Background(), CreateLogInput{
		Author:  "Anna",
		Message: "<p>hello</p>",
	})
	if err != nil {
		t.Fatalf("CreateLog() error = %v", err)
	}
	if payload["version"] != "test" {
		t.Errorf("version = %v, want configured app version", payload["version"])
	}
	if payload["pinned"] != false || payload["archived"] != false {
		t.Error("new post must start active and unpinned")
	}
}

func TestCreateLogRejectsMarkupOnlyMessage(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.CreateLog(context.Background(), CreateLogInput{
		Author:  "Anna",
		Message: "<p><br></p>",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestArchivedImpliesUnpinned(t *testing.T) {
	fake := newFakeStore()
	svc := newTestService(fake)
	ctx := context.Background()

	payload, err := svc.CreateLog(ctx, CreateLogInput{Author: "Anna", Message: "pin me"})
	if err != nil {
		t.Fatalf("CreateLog() error = %v", err)
	}
	logID := payload["id"].(string)

	if _, err := svc.TogglePin(ctx, logID); err != nil {
		t.Fatalf("TogglePin() error = %v", err)
	}
	archived, err := svc.ArchiveLog(ctx, logID)
	if err != nil {
		t.Fatalf("ArchiveLog() error = %v", err)
	}
	if archived["archived"] != true || archived["pinned"] != false {
		t.Fatalf("archive must force-clear pinned: %v", archived)
	}
}

func TestTogglePinOnArchivedPostConflicts(t *testing.T) {
	fake := newFakeStore()
	svc := newTestService(fake)
	ctx := context.Background()

	payload, _ := svc.CreateLog(ctx, CreateLogInput{Author: "Anna", Message: "hi"})
	logID := payload["id"].(string)
	if _, err := svc.ArchiveLog(ctx, logID); err != nil {
		t.Fatalf("ArchiveLog() error = %v", err)
	}

	_, err := svc.TogglePin(ctx, logID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
}

func TestUnarchiveRestartsCountdown(t *testing.T) {
	fake := newFakeStore()
	svc := newTestService(fake)
	ctx := context.Background()

	old := store.Log{ID: "log_old", Message: "old", Author: "Anna", CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}
	_ = fake.InsertLog(ctx, old)
	if _, err := svc.ArchiveLog(ctx, "log_old"); err != nil {
		t.Fatalf("ArchiveLog() error = %v", err)
	}

	payload, err := svc.UnarchiveLog(ctx, "log_old")
	if err != nil {
		t.Fatalf("UnarchiveLog() error = %v", err)
	}
	if payload["archived"] != false || payload["archivedAt"] != (*time.Time)(nil) {
		t.Fatalf("unarchive must clear archival state: %v", payload)
	}
	unpinnedAt, ok := payload["unpinnedAt"].(*time.Time)
	if !ok || unpinnedAt == nil || time.Since(*unpinnedAt) > 5*time.Second {
		t.Fatalf("unarchive must restart the countdown from now, got %v", payload["unpinnedAt"])
	}

	// The restored post survives the next sweep.
	items, err := svc.ListLogs(ctx)
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(items) != 1 || items[0]["id"] != "log_old" {
		t.Fatalf("restored post missing from active list: %v", items)
	}
}
