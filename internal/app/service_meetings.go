package app

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/Hellzicke/loggen/internal/export"
	"github.com/Hellzicke/loggen/internal/store"
	"github.com/Hellzicke/loggen/internal/util"
)

type MeetingInput struct {
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type MeetingPointInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Notes       string `json:"notes"`
}

// MeetingPointPatchInput distinguishes absent fields from empty ones;
// a missing field leaves the column untouched.
type MeetingPointPatchInput struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
	Notes       *string `json:"notes"`
}

func (s *Service) ListMeetings(ctx context.Context) ([]map[string]any, error) {
	meetings, err := s.store.ListUpcomingMeetings(ctx)
	if err != nil {
		return nil, err
	}
	return s.meetingPayloads(ctx, meetings)
}

func (s *Service) ListArchivedMeetings(ctx context.Context) ([]map[string]any, error) {
	meetings, err := s.store.ListArchivedMeetings(ctx)
	if err != nil {
		return nil, err
	}
	return s.meetingPayloads(ctx, meetings)
}

func (s *Service) GetMeeting(ctx context.Context, meetingID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return s.meetingPayload(ctx, meeting)
}

func (s *Service) CreateMeeting(ctx context.Context, input MeetingInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.ScheduledAt.IsZero() {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "scheduledAt is required", nil)
	}

	now := time.Now()
	meeting := store.Meeting{
		ID:          util.NewID("mtg"),
		Title:       title,
		ScheduledAt: input.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertMeeting(ctx, meeting); err != nil {
		return nil, err
	}
	return s.meetingPayload(ctx, meeting)
}

func (s *Service) UpdateMeeting(ctx context.Context, meetingID string, input MeetingInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.ScheduledAt.IsZero() {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "scheduledAt is required", nil)
	}

	ok, err := s.store.UpdateMeeting(ctx, meetingID, title, input.ScheduledAt, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.GetMeeting(ctx, meetingID)
}

// ArchiveMeeting flips the archived flag only; the meeting's points
// keep their state. Staff may archive only once the meeting's scheduled
// time has passed; admins may archive at any time.
func (s *Service) ArchiveMeeting(ctx context.Context, meetingID string, session Session) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !session.IsAdmin() && now.Before(meeting.ScheduledAt) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only an admin can archive a meeting before it has taken place", nil)
	}

	if _, err := s.store.SetMeetingArchived(ctx, meetingID, true, now); err != nil {
		return nil, err
	}
	return s.GetMeeting(ctx, meetingID)
}

// UnarchiveMeeting is admin-only.
func (s *Service) UnarchiveMeeting(ctx context.Context, meetingID string, session Session) (map[string]any, error) {
	if !session.IsAdmin() {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only an admin can unarchive a meeting", nil)
	}

	ok, err := s.store.SetMeetingArchived(ctx, meetingID, false, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.GetMeeting(ctx, meetingID)
}

func (s *Service) DeleteMeeting(ctx context.Context, meetingID string, session Session) error {
	if !session.IsAdmin() {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only an admin can delete a meeting", nil)
	}

	ok, err := s.store.DeleteMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) AddMeetingPoint(ctx context.Context, meetingID string, input MeetingPointInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	author := strings.TrimSpace(input.Author)
	if author == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "author is required", nil)
	}

	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.Archived {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Archived meetings cannot be modified", nil)
	}

	point := store.MeetingPoint{
		ID:          util.NewID("pt"),
		MeetingID:   meetingID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Author:      author,
		Notes:       strings.TrimSpace(input.Notes),
		CreatedAt:   time.Now(),
	}
	if err := s.store.InsertMeetingPoint(ctx, point); err != nil {
		return nil, err
	}
	return meetingPointPayload(point), nil
}

// PatchMeetingPoint applies a partial update. Toggling completed sets
// or clears completedAt in the same statement.
func (s *Service) PatchMeetingPoint(ctx context.Context, pointID string, input MeetingPointPatchInput) (map[string]any, error) {
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title must not be blank", nil)
	}
	if input.Author != nil && strings.TrimSpace(*input.Author) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "author must not be blank", nil)
	}

	point, err := s.store.GetMeetingPoint(ctx, pointID)
	if err != nil {
		return nil, err
	}
	meeting, err := s.store.GetMeeting(ctx, point.MeetingID)
	if err != nil {
		return nil, err
	}
	if meeting.Archived {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Archived meetings cannot be modified", nil)
	}

	patch := store.MeetingPointPatch{
		Title:       input.Title,
		Author:      input.Author,
		Description: input.Description,
		Completed:   input.Completed,
		Notes:       input.Notes,
	}
	ok, err := s.store.UpdateMeetingPoint(ctx, pointID, patch, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}

	updated, err := s.store.GetMeetingPoint(ctx, pointID)
	if err != nil {
		return nil, err
	}
	return meetingPointPayload(updated), nil
}

func (s *Service) DeleteMeetingPoint(ctx context.Context, pointID string) error {
	point, err := s.store.GetMeetingPoint(ctx, pointID)
	if err != nil {
		return err
	}
	meeting, err := s.store.GetMeeting(ctx, point.MeetingID)
	if err != nil {
		return err
	}
	if meeting.Archived {
		return domainError(http.StatusConflict, "CONFLICT", "Archived meetings cannot be modified", nil)
	}

	ok, err := s.store.DeleteMeetingPoint(ctx, pointID)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

// ExportMinutes renders a meeting's agenda to a PDF.
func (s *Service) ExportMinutes(ctx context.Context, meetingID string) (*export.Result, error) {
	return s.exporter.Export(ctx, export.Request{MeetingID: meetingID})
}

func (s *Service) meetingPayloads(ctx context.Context, meetings []store.Meeting) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(meetings))
	for _, meeting := range meetings {
		payload, err := s.meetingPayload(ctx, meeting)
		if err != nil {
			return nil, err
		}
		items = append(items, payload)
	}
	return items, nil
}

func (s *Service) meetingPayload(ctx context.Context, meeting store.Meeting) (map[string]any, error) {
	points, err := s.store.ListMeetingPoints(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}
	pointItems := make([]map[string]any, 0, len(points))
	for _, point := range points {
		pointItems = append(pointItems, meetingPointPayload(point))
	}

	return map[string]any{
		"id":          meeting.ID,
		"title":       meeting.Title,
		"scheduledAt": meeting.ScheduledAt,
		"archived":    meeting.Archived,
		"archivedAt":  meeting.ArchivedAt,
		"createdAt":   meeting.CreatedAt,
		"updatedAt":   meeting.UpdatedAt,
		"points":      pointItems,
	}, nil
}

func meetingPointPayload(point store.MeetingPoint) map[string]any {
	return map[string]any{
		"id":          point.ID,
		"meetingId":   point.MeetingID,
		"title":       point.Title,
		"description": point.Description,
		"author":      point.Author,
		"completed":   point.Completed,
		"completedAt": point.CompletedAt,
		"notes":       point.Notes,
		"createdAt":   point.CreatedAt,
	}
}

// minutesSource adapts the data store to what the PDF exporter needs.
type minutesSource struct {
	store dataStore
}

func (m minutesSource) GetMeetingInfo(ctx context.Context, id string) (export.MeetingInfo, error) {
	meeting, err := m.store.GetMeeting(ctx, id)
	if err != nil {
		return export.MeetingInfo{}, err
	}
	return export.MeetingInfo{
		ID:          meeting.ID,
		Title:       meeting.Title,
		ScheduledAt: meeting.ScheduledAt,
		Archived:    meeting.Archived,
	}, nil
}

func (m minutesSource) ListPointInfos(ctx context.Context, meetingID string) ([]export.PointInfo, error) {
	points, err := m.store.ListMeetingPoints(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.PointInfo, 0, len(points))
	for _, point := range points {
		infos = append(infos, export.PointInfo{
			Title:       point.Title,
			Description: point.Description,
			Author:      point.Author,
			Completed:   point.Completed,
			Notes:       point.Notes,
		})
	}
	return infos, nil
}
