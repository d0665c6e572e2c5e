package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const logColumns = `id, COALESCE(title, ''), message, author, COALESCE(image_url, ''), app_version, pinned, unpinned_at, archived, archived_at, created_at`

func scanLog(row interface{ Scan(...any) error }) (Log, error) {
	var item Log
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Message,
		&item.Author,
		&item.ImageURL,
		&item.Version,
		&item.Pinned,
		&item.UnpinnedAt,
		&item.Archived,
		&item.ArchivedAt,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListActiveLogs(ctx context.Context) ([]Log, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM logs
		WHERE NOT archived
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active logs: %w", err)
	}
	defer rows.Close()

	items := make([]Log, 0)
	for rows.Next() {
		item, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListArchivedLogs(ctx context.Context) ([]Log, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM logs
		WHERE archived
		ORDER BY archived_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list archived logs: %w", err)
	}
	defer rows.Close()

	items := make([]Log, 0)
	for rows.Next() {
		item, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLog(ctx context.Context, logID string) (Log, error) {
	item, err := scanLog(s.db.QueryRowContext(ctx, `
		SELECT `+logColumns+`
		FROM logs
		WHERE id=$1
	`, logID))
	if err != nil {
		return Log{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertLog(ctx context.Context, item Log) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (id, title, message, author, image_url, app_version, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, item.ID, item.Title, item.Message, item.Author, item.ImageURL, item.Version, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// UpdateLogContent replaces the mutable content fields only; lifecycle
// columns are never touched here.
func (s *PostgresStore) UpdateLogContent(ctx context.Context, logID, title, message, imageURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE logs
		SET title=$2, message=$3, image_url=NULLIF($4, '')
		WHERE id=$1
	`, logID, title, message, imageURL)
	if err != nil {
		return false, fmt.Errorf("update log content: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) SetLogPinned(ctx context.Context, logID string, pinned bool, unpinnedAt *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE logs
		SET pinned=$2, unpinned_at=$3
		WHERE id=$1 AND NOT archived
	`, logID, pinned, unpinnedAt)
	if err != nil {
		return false, fmt.Errorf("set log pinned: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ArchiveLog force-clears the pinned flag; archived posts are never
// pinned.
func (s *PostgresStore) ArchiveLog(ctx context.Context, logID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE logs
		SET archived=TRUE, archived_at=$2, pinned=FALSE
		WHERE id=$1
	`, logID, now)
	if err != nil {
		return false, fmt.Errorf("archive log: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// UnarchiveLog restarts the retention countdown by stamping
// unpinned_at with the restoration time.
func (s *PostgresStore) UnarchiveLog(ctx context.Context, logID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE logs
		SET archived=FALSE, archived_at=NULL, unpinned_at=$2
		WHERE id=$1
	`, logID, now)
	if err != nil {
		return false, fmt.Errorf("unarchive log: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ArchiveLogsBefore is the bulk auto-archive sweep: every unarchived,
// unpinned log whose archive-reference timestamp (unpinned_at if set,
// else created_at) is at or before the cutoff gets archived. Only flips
// false to true, so concurrent sweeps are harmless.
func (s *PostgresStore) ArchiveLogsBefore(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE logs
		SET archived=TRUE, archived_at=$2
		WHERE NOT archived
		  AND NOT pinned
		  AND COALESCE(unpinned_at, created_at) <= $1
	`, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("sweep logs: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// DeleteLog removes the row; signatures, comments, reactions and
// attachments go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteLog(ctx context.Context, logID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE id=$1`, logID)
	if err != nil {
		return false, fmt.Errorf("delete log: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) ListSignatures(ctx context.Context, logID string) ([]Signature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log_id, name, created_at
		FROM signatures
		WHERE log_id=$1
		ORDER BY created_at ASC
	`, logID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	items := make([]Signature, 0)
	for rows.Next() {
		var item Signature
		if err := rows.Scan(&item.ID, &item.LogID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return items, nil
}

// InsertSignature returns ErrDuplicate when (log_id, name) already
// exists; the race of two simultaneous identical signatures resolves at
// the unique index.
func (s *PostgresStore) InsertSignature(ctx context.Context, item Signature) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signatures (id, log_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.LogID, item.Name, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, logID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log_id, parent_id, author, message, created_at
		FROM comments
		WHERE log_id=$1
		ORDER BY created_at ASC
	`, logID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.LogID, &item.ParentID, &item.Author, &item.Message, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, log_id, parent_id, author, message, created_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.LogID, &item.ParentID, &item.Author, &item.Message, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, log_id, parent_id, author, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.LogID, item.ParentID, item.Author, item.Message, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// DeleteComment removes one comment; replies of a top-level comment go
// with it through the self-referencing ON DELETE CASCADE.
func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) ListReactions(ctx context.Context, logID string) ([]Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log_id, emoji, created_at
		FROM reactions
		WHERE log_id=$1
		ORDER BY created_at ASC, id ASC
	`, logID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	items := make([]Reaction, 0)
	for rows.Next() {
		var item Reaction
		if err := rows.Scan(&item.ID, &item.LogID, &item.Emoji, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertReaction(ctx context.Context, item Reaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (id, log_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.LogID, item.Emoji, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, logID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log_id, filename, original_name, mime_type, size_bytes, url, created_at
		FROM attachments
		WHERE log_id=$1
		ORDER BY created_at ASC
	`, logID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.LogID, &item.Filename, &item.OriginalName, &item.MimeType, &item.Size, &item.URL, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

// ReplaceAttachments swaps a log's attachment metadata in one
// transaction; edit semantics are whole-set replacement.
func (s *PostgresStore) ReplaceAttachments(ctx context.Context, logID string, items []Attachment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attachments tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE log_id=$1`, logID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear attachments: %w", err)
	}
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, log_id, filename, original_name, mime_type, size_bytes, url, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, logID, item.Filename, item.OriginalName, item.MimeType, item.Size, item.URL, item.CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attachments: %w", err)
	}
	return nil
}
