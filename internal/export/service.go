package export

import (
	"context"
	"fmt"
	"time"
)

// MeetingStore defines the data access the exporter needs
type MeetingStore interface {
	GetMeetingInfo(ctx context.Context, id string) (MeetingInfo, error)
	ListPointInfos(ctx context.Context, meetingID string) ([]PointInfo, error)
}

// Service renders meeting minutes to PDF
type Service struct {
	store MeetingStore
	now   func() time.Time
}

// NewService creates a new export service
func NewService(store MeetingStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Export loads a meeting with its agenda points and renders the minutes PDF
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	meeting, err := s.store.GetMeetingInfo(ctx, req.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}

	points, err := s.store.ListPointInfos(ctx, req.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("list meeting points: %w", err)
	}

	data := TemplateData{
		Title:       meeting.Title,
		ScheduledAt: meeting.ScheduledAt,
		GeneratedAt: s.now(),
		Points:      make([]TemplatePoint, 0, len(points)),
	}
	for _, p := range points {
		data.Points = append(data.Points, TemplatePoint{
			Title:       p.Title,
			Description: p.Description,
			Author:      p.Author,
			Completed:   p.Completed,
			Notes:       p.Notes,
		})
	}

	html, err := RenderMinutesHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return renderPDF(html, meeting.Title)
}
