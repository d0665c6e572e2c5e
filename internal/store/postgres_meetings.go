package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const meetingColumns = `id, title, scheduled_at, archived, archived_at, created_at, updated_at`

func scanMeeting(row interface{ Scan(...any) error }) (Meeting, error) {
	var item Meeting
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.ScheduledAt,
		&item.Archived,
		&item.ArchivedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// ListUpcomingMeetings returns every unarchived meeting, soonest first.
// A past meeting stays here until it is explicitly archived.
func (s *PostgresStore) ListUpcomingMeetings(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE NOT archived
		ORDER BY scheduled_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list upcoming meetings: %w", err)
	}
	defer rows.Close()

	items := make([]Meeting, 0)
	for rows.Next() {
		item, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meetings: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListArchivedMeetings(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE archived
		ORDER BY archived_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list archived meetings: %w", err)
	}
	defer rows.Close()

	items := make([]Meeting, 0)
	for rows.Next() {
		item, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meetings: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMeeting(ctx context.Context, meetingID string) (Meeting, error) {
	item, err := scanMeeting(s.db.QueryRowContext(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE id=$1
	`, meetingID))
	if err != nil {
		return Meeting{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertMeeting(ctx context.Context, item Meeting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, title, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Title, item.ScheduledAt, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMeeting(ctx context.Context, meetingID, title string, scheduledAt, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET title=$2, scheduled_at=$3, updated_at=$4
		WHERE id=$1
	`, meetingID, title, scheduledAt, now)
	if err != nil {
		return false, fmt.Errorf("update meeting: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) SetMeetingArchived(ctx context.Context, meetingID string, archived bool, now time.Time) (bool, error) {
	var archivedAt *time.Time
	if archived {
		archivedAt = &now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET archived=$2, archived_at=$3, updated_at=$4
		WHERE id=$1
	`, meetingID, archived, archivedAt, now)
	if err != nil {
		return false, fmt.Errorf("set meeting archived: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// DeleteMeeting removes the meeting; its points follow via ON DELETE
// CASCADE.
func (s *PostgresStore) DeleteMeeting(ctx context.Context, meetingID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id=$1`, meetingID)
	if err != nil {
		return false, fmt.Errorf("delete meeting: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

const pointColumns = `id, meeting_id, title, COALESCE(description, ''), author, completed, completed_at, COALESCE(notes, ''), created_at`

func scanMeetingPoint(row interface{ Scan(...any) error }) (MeetingPoint, error) {
	var item MeetingPoint
	err := row.Scan(
		&item.ID,
		&item.MeetingID,
		&item.Title,
		&item.Description,
		&item.Author,
		&item.Completed,
		&item.CompletedAt,
		&item.Notes,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListMeetingPoints(ctx context.Context, meetingID string) ([]MeetingPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pointColumns+`
		FROM meeting_points
		WHERE meeting_id=$1
		ORDER BY created_at ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list meeting points: %w", err)
	}
	defer rows.Close()

	items := make([]MeetingPoint, 0)
	for rows.Next() {
		item, err := scanMeetingPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting point: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting points: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMeetingPoint(ctx context.Context, pointID string) (MeetingPoint, error) {
	item, err := scanMeetingPoint(s.db.QueryRowContext(ctx, `
		SELECT `+pointColumns+`
		FROM meeting_points
		WHERE id=$1
	`, pointID))
	if err != nil {
		return MeetingPoint{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertMeetingPoint(ctx context.Context, item MeetingPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meeting_points (id, meeting_id, title, description, author, notes, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7)
	`, item.ID, item.MeetingID, item.Title, item.Description, item.Author, item.Notes, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert meeting point: %w", err)
	}
	return nil
}

// UpdateMeetingPoint applies a partial update. Flipping Completed to
// true stamps completed_at with now; flipping it back clears it.
func (s *PostgresStore) UpdateMeetingPoint(ctx context.Context, pointID string, patch MeetingPointPatch, now time.Time) (bool, error) {
	var sets []string
	var args []any
	args = append(args, pointID)

	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Title != nil {
		add("title=$%d", *patch.Title)
	}
	if patch.Author != nil {
		add("author=$%d", *patch.Author)
	}
	if patch.Description != nil {
		add("description=NULLIF($%d, '')", *patch.Description)
	}
	if patch.Notes != nil {
		add("notes=NULLIF($%d, '')", *patch.Notes)
	}
	if patch.Completed != nil {
		add("completed=$%d", *patch.Completed)
		if *patch.Completed {
			add("completed_at=$%d", now)
		} else {
			sets = append(sets, "completed_at=NULL")
		}
	}
	if len(sets) == 0 {
		// Nothing to change; report whether the row exists.
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM meeting_points WHERE id=$1)`, pointID).Scan(&exists); err != nil {
			return false, fmt.Errorf("check meeting point: %w", err)
		}
		return exists, nil
	}

	query := `UPDATE meeting_points SET ` + strings.Join(sets, ", ") + ` WHERE id=$1`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update meeting point: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) DeleteMeetingPoint(ctx context.Context, pointID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meeting_points WHERE id=$1`, pointID)
	if err != nil {
		return false, fmt.Errorf("delete meeting point: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
