package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Hellzicke/loggen/internal/store"
)

func createMeeting(t *testing.T, env *testEnv, token string, scheduledAt time.Time) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/meetings", token, map[string]any{
		"title":       "Weekly sync",
		"scheduledAt": scheduledAt.Format(time.RFC3339),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create meeting status = %d body %s", rec.Code, rec.Body.String())
	}
	return decodeMap(t, rec)["id"].(string)
}

func addPoint(t *testing.T, env *testEnv, token, meetingID string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/points", token, map[string]any{
		"title":  "Review rota",
		"author": "Anna",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add point status = %d body %s", rec.Code, rec.Body.String())
	}
	return decodeMap(t, rec)["id"].(string)
}

func TestCreateMeetingValidation(t *testing.T) {
	env := newTestEnv()
	token := env.login(t, "Anna", "staff-pw")

	rec := env.do(t, http.MethodPost, "/api/meetings", token, map[string]any{"title": "No date"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing scheduledAt status = %d, want 422", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/meetings", token, map[string]any{
		"title":       "   ",
		"scheduledAt": time.Now().Format(time.RFC3339),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank title status = %d, want 422", rec.Code)
	}
}

func TestMeetingListsPartitionByArchived(t *testing.T) {
	env := newTestEnv()
	admin := env.login(t, "Boss", "admin-pw")

	pastID := createMeeting(t, env, admin, time.Now().Add(-48*time.Hour))
	upcomingID := createMeeting(t, env, admin, time.Now().Add(48*time.Hour))
	env.do(t, http.MethodPost, "/api/meetings/"+pastID+"/archive", admin, nil)

	rec := env.do(t, http.MethodGet, "/api/meetings", admin, nil)
	upcoming := decodeMap(t, rec)["meetings"].([]any)
	if len(upcoming) != 1 || upcoming[0].(map[string]any)["id"] != upcomingID {
		t.Fatalf("unexpected upcoming list: %v", upcoming)
	}

	rec = env.do(t, http.MethodGet, "/api/meetings/archived", admin, nil)
	archived := decodeMap(t, rec)["meetings"].([]any)
	if len(archived) != 1 || archived[0].(map[string]any)["id"] != pastID {
		t.Fatalf("unexpected archived list: %v", archived)
	}
}

func TestArchivedMeetingsOrderedByArchivalTime(t *testing.T) {
	env := newTestEnv()
	admin := env.login(t, "Boss", "admin-pw")
	now := time.Now()

	// Archived last week, but held only yesterday.
	lastWeek := now.Add(-7 * 24 * time.Hour)
	_ = env.fake.InsertMeeting(context.Background(), store.Meeting{
		ID: "mtg_stale", Title: "Planning", ScheduledAt: now.Add(-24 * time.Hour),
		Archived: true, ArchivedAt: &lastWeek,
	})
	// Archived just now, held a month ago.
	justNow := now.Add(-time.Minute)
	_ = env.fake.InsertMeeting(context.Background(), store.Meeting{
		ID: "mtg_recent", Title: "Retro", ScheduledAt: now.Add(-30 * 24 * time.Hour),
		Archived: true, ArchivedAt: &justNow,
	})

	rec := env.do(t, http.MethodGet, "/api/meetings/archived", admin, nil)
	archived := decodeMap(t, rec)["meetings"].([]any)
	if len(archived) != 2 {
		t.Fatalf("expected 2 archived meetings, got %d", len(archived))
	}
	if archived[0].(map[string]any)["id"] != "mtg_recent" || archived[1].(map[string]any)["id"] != "mtg_stale" {
		t.Fatalf("archive must order by archival time, newest first: %v", archived)
	}
}

func TestStaffCannotArchiveFutureMeeting(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(24*time.Hour))
	rec := env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/archive", staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestStaffCanArchivePastMeeting(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(-24*time.Hour))
	rec := env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/archive", staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if decodeMap(t, rec)["archived"] != true {
		t.Error("meeting should be archived")
	}
}

func TestAdminCanArchiveFutureMeeting(t *testing.T) {
	env := newTestEnv()
	admin := env.login(t, "Boss", "admin-pw")

	meetingID := createMeeting(t, env, admin, time.Now().Add(24*time.Hour))
	rec := env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/archive", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestUnarchiveMeetingIsAdminOnly(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")
	admin := env.login(t, "Boss", "admin-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(-24*time.Hour))
	env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/archive", staff, nil)

	rec := env.do(t, http.MethodPost, "/api/admin/meetings/"+meetingID+"/unarchive", staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff unarchive status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/admin/meetings/"+meetingID+"/unarchive", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin unarchive status = %d body %s", rec.Code, rec.Body.String())
	}
	if decodeMap(t, rec)["archived"] != false {
		t.Error("meeting should be active again")
	}
}

func TestDeleteMeetingIsAdminOnly(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")
	admin := env.login(t, "Boss", "admin-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(24*time.Hour))
	addPoint(t, env, staff, meetingID)

	rec := env.do(t, http.MethodDelete, "/api/admin/meetings/"+meetingID, staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff delete status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/admin/meetings/"+meetingID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin delete status = %d", rec.Code)
	}
	if len(env.fake.points) != 0 {
		t.Error("meeting points must go with the meeting")
	}
}

func TestArchivedMeetingRejectsPointMutations(t *testing.T) {
	env := newTestEnv()
	admin := env.login(t, "Boss", "admin-pw")

	meetingID := createMeeting(t, env, admin, time.Now().Add(-24*time.Hour))
	pointID := addPoint(t, env, admin, meetingID)
	env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/archive", admin, nil)

	rec := env.do(t, http.MethodPost, "/api/meetings/"+meetingID+"/points", admin, map[string]any{
		"title": "Late addition", "author": "Boss",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("add point status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/api/meetings/"+meetingID+"/points/"+pointID, admin, map[string]any{
		"notes": "too late",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("patch point status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/meetings/"+meetingID+"/points/"+pointID, admin, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete point status = %d, want 409", rec.Code)
	}
}

func TestPatchPointCompletedTogglesTimestamp(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(24*time.Hour))
	pointID := addPoint(t, env, staff, meetingID)

	rec := env.do(t, http.MethodPatch, "/api/meetings/"+meetingID+"/points/"+pointID, staff, map[string]any{
		"completed": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d body %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if payload["completed"] != true || payload["completedAt"] == nil {
		t.Fatalf("completing must stamp completedAt: %v", payload)
	}

	rec = env.do(t, http.MethodPatch, "/api/meetings/"+meetingID+"/points/"+pointID, staff, map[string]any{
		"completed": false,
	})
	payload = decodeMap(t, rec)
	if payload["completed"] != false || payload["completedAt"] != nil {
		t.Fatalf("reopening must clear completedAt: %v", payload)
	}
}

func TestPatchPointLeavesAbsentFieldsUntouched(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(24*time.Hour))
	pointID := addPoint(t, env, staff, meetingID)

	rec := env.do(t, http.MethodPatch, "/api/meetings/"+meetingID+"/points/"+pointID, staff, map[string]any{
		"notes": "bring slides",
	})
	payload := decodeMap(t, rec)
	if payload["notes"] != "bring slides" {
		t.Errorf("notes = %v", payload["notes"])
	}
	if payload["title"] != "Review rota" || payload["author"] != "Anna" {
		t.Errorf("absent fields must keep their values: %v", payload)
	}
}

func TestPatchPointRejectsBlankTitle(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(24*time.Hour))
	pointID := addPoint(t, env, staff, meetingID)

	rec := env.do(t, http.MethodPatch, "/api/meetings/"+meetingID+"/points/"+pointID, staff, map[string]any{
		"title": "   ",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestUpdateMeetingReplacesTitleAndDate(t *testing.T) {
	env := newTestEnv()
	staff := env.login(t, "Anna", "staff-pw")

	meetingID := createMeeting(t, env, staff, time.Now().Add(24*time.Hour))
	newDate := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)

	rec := env.do(t, http.MethodPut, "/api/meetings/"+meetingID, staff, map[string]any{
		"title":       "Rescheduled sync",
		"scheduledAt": newDate.Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if payload["title"] != "Rescheduled sync" {
		t.Errorf("title = %v", payload["title"])
	}
	got, err := time.Parse(time.RFC3339, payload["scheduledAt"].(string))
	if err != nil || !got.Equal(newDate) {
		t.Errorf("scheduledAt = %v, want %v", payload["scheduledAt"], newDate)
	}
}
