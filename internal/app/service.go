package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Hellzicke/loggen/internal/auth"
	"github.com/Hellzicke/loggen/internal/config"
	"github.com/Hellzicke/loggen/internal/export"
	"github.com/Hellzicke/loggen/internal/retention"
	"github.com/Hellzicke/loggen/internal/search"
	"github.com/Hellzicke/loggen/internal/store"
	"github.com/Hellzicke/loggen/internal/util"
)

const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

type Session struct {
	Token        string
	RefreshToken string
	Name         string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

type CreateLogInput struct {
	Author      string            `json:"author"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	ImageURL    string            `json:"imageUrl"`
	Attachments []AttachmentInput `json:"attachments"`
}

type EditLogInput struct {
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	ImageURL    string            `json:"imageUrl"`
	Attachments []AttachmentInput `json:"attachments"`
}

type AttachmentInput struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

type CommentInput struct {
	Author   string  `json:"author"`
	Message  string  `json:"message"`
	ParentID *string `json:"parentId"`
}

type dataStore interface {
	ListActiveLogs(context.Context) ([]store.Log, error)
	ListArchivedLogs(context.Context) ([]store.Log, error)
	GetLog(context.Context, string) (store.Log, error)
	InsertLog(context.Context, store.Log) error
	UpdateLogContent(context.Context, string, string, string, string) (bool, error)
	SetLogPinned(context.Context, string, bool, *time.Time) (bool, error)
	ArchiveLog(context.Context, string, time.Time) (bool, error)
	UnarchiveLog(context.Context, string, time.Time) (bool, error)
	ArchiveLogsBefore(context.Context, time.Time, time.Time) (int64, error)
	DeleteLog(context.Context, string) (bool, error)
	ListSignatures(context.Context, string) ([]store.Signature, error)
	InsertSignature(context.Context, store.Signature) error
	ListComments(context.Context, string) ([]store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	InsertComment(context.Context, store.Comment) error
	DeleteComment(context.Context, string) (bool, error)
	ListReactions(context.Context, string) ([]store.Reaction, error)
	InsertReaction(context.Context, store.Reaction) error
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	ReplaceAttachments(context.Context, string, []store.Attachment) error
	ListUpcomingMeetings(context.Context) ([]store.Meeting, error)
	ListArchivedMeetings(context.Context) ([]store.Meeting, error)
	GetMeeting(context.Context, string) (store.Meeting, error)
	InsertMeeting(context.Context, store.Meeting) error
	UpdateMeeting(context.Context, string, string, time.Time, time.Time) (bool, error)
	SetMeetingArchived(context.Context, string, bool, time.Time) (bool, error)
	DeleteMeeting(context.Context, string) (bool, error)
	ListMeetingPoints(context.Context, string) ([]store.MeetingPoint, error)
	GetMeetingPoint(context.Context, string) (store.MeetingPoint, error)
	InsertMeetingPoint(context.Context, store.MeetingPoint) error
	UpdateMeetingPoint(context.Context, string, store.MeetingPointPatch, time.Time) (bool, error)
	DeleteMeetingPoint(context.Context, string) (bool, error)
	Ping(context.Context) error
}

// SessionStore holds refresh sessions and access-token revocations,
// backed by Redis or by Postgres when Redis is not configured.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, store.Principal, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Principal, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

// BlobStore is the object storage used for uploaded attachments.
type BlobStore interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
	URL(objectName string) string
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	search   *search.Service
	blobs    BlobStore
	exporter *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, searchSvc *search.Service, blobs BlobStore) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   searchSvc,
		blobs:    blobs,
	}
	s.exporter = export.NewService(minutesSource{store: s.store})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- sessions ---

func (s *Service) Login(ctx context.Context, name, password string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	var role string
	switch {
	case auth.CheckPassword(s.cfg.AdminPassword, password):
		role = RoleAdmin
	case auth.CheckPassword(s.cfg.StaffPassword, password):
		role = RoleStaff
	default:
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Wrong password", nil)
	}

	return s.issueSession(ctx, store.Principal{Name: userName, Role: role})
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	principal, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, principal)
}

func (s *Service) issueSession(ctx context.Context, principal store.Principal) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Name: principal.Name,
		Role: principal.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), principal, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		Name:         principal.Name,
		Role:         principal.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		Name:      claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- posts ---

// ListLogs runs the auto-archive sweep, then returns the active posts
// newest first. The sweep is a precondition of this read so a client
// never observes an overdue post in the active list.
func (s *Service) ListLogs(ctx context.Context) ([]map[string]any, error) {
	now := time.Now()
	if _, err := s.store.ArchiveLogsBefore(ctx, retention.Cutoff(now), now); err != nil {
		return nil, err
	}

	logs, err := s.store.ListActiveLogs(ctx)
	if err != nil {
		return nil, err
	}
	return s.logPayloads(ctx, logs)
}

func (s *Service) ListArchivedLogs(ctx context.Context) ([]map[string]any, error) {
	logs, err := s.store.ListArchivedLogs(ctx)
	if err != nil {
		return nil, err
	}
	return s.logPayloads(ctx, logs)
}

func (s *Service) GetLog(ctx context.Context, logID string) (map[string]any, error) {
	item, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	return s.logPayload(ctx, item)
}

func (s *Service) CreateLog(ctx context.Context, input CreateLogInput) (map[string]any, error) {
	author := strings.TrimSpace(input.Author)
	if author == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "author is required", nil)
	}
	if stripMarkup(input.Message) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message must not be empty", nil)
	}

	item := store.Log{
		ID:        util.NewID("log"),
		Title:     strings.TrimSpace(input.Title),
		Message:   input.Message,
		Author:    author,
		ImageURL:  strings.TrimSpace(input.ImageURL),
		Version:   s.cfg.AppVersion,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertLog(ctx, item); err != nil {
		return nil, err
	}
	if len(input.Attachments) > 0 {
		if err := s.store.ReplaceAttachments(ctx, item.ID, attachmentRows(item.ID, input.Attachments)); err != nil {
			return nil, err
		}
	}

	s.indexLog(item)
	return s.logPayload(ctx, item)
}

// EditLog replaces the content fields only; lifecycle state is never
// touched by an edit.
func (s *Service) EditLog(ctx context.Context, logID string, input EditLogInput) (map[string]any, error) {
	if stripMarkup(input.Message) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message must not be empty", nil)
	}

	ok, err := s.store.UpdateLogContent(ctx, logID, strings.TrimSpace(input.Title), input.Message, strings.TrimSpace(input.ImageURL))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	if input.Attachments != nil {
		if err := s.store.ReplaceAttachments(ctx, logID, attachmentRows(logID, input.Attachments)); err != nil {
			return nil, err
		}
	}

	item, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	s.indexLog(item)
	return s.logPayload(ctx, item)
}

// DeleteLog removes the post permanently. Children go via FK cascade;
// uploaded blobs are deleted best-effort after the row is gone.
func (s *Service) DeleteLog(ctx context.Context, logID string) error {
	attachments, err := s.store.ListAttachments(ctx, logID)
	if err != nil {
		return err
	}

	ok, err := s.store.DeleteLog(ctx, logID)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}

	if s.blobs != nil {
		for _, a := range attachments {
			_ = s.blobs.Delete(ctx, a.Filename)
		}
	}
	if s.search != nil {
		s.search.DeleteLog(logID)
	}
	return nil
}

// TogglePin flips the pinned flag. Unpinning stamps unpinnedAt and
// reports whether the post is past the retention window, so the caller
// can offer immediate archival; pinning clears unpinnedAt.
func (s *Service) TogglePin(ctx context.Context, logID string) (map[string]any, error) {
	item, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if item.Archived {
		return nil, domainError(http.StatusConflict, "CONFLICT", "Archived posts cannot be pinned; unarchive first", nil)
	}

	now := time.Now()
	pinned := !item.Pinned
	var unpinnedAt *time.Time
	if !pinned {
		unpinnedAt = &now
	}

	ok, err := s.store.SetLogPinned(ctx, logID, pinned, unpinnedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}

	item.Pinned = pinned
	item.UnpinnedAt = unpinnedAt
	payload, err := s.logPayload(ctx, item)
	if err != nil {
		return nil, err
	}
	if !pinned {
		payload["_unpinningOldPost"] = retention.IsOld(item.CreatedAt, now)
	}
	return payload, nil
}

func (s *Service) ArchiveLog(ctx context.Context, logID string) (map[string]any, error) {
	now := time.Now()
	ok, err := s.store.ArchiveLog(ctx, logID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}

	item, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	s.indexLog(item)
	return s.logPayload(ctx, item)
}

// UnarchiveLog restores a post to the active list and restarts its
// retention countdown from now.
func (s *Service) UnarchiveLog(ctx context.Context, logID string) (map[string]any, error) {
	now := time.Now()
	ok, err := s.store.UnarchiveLog(ctx, logID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sql.ErrNoRows
	}

	item, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	s.indexLog(item)
	return s.logPayload(ctx, item)
}

func (s *Service) SignAsRead(ctx context.Context, logID, name string) (map[string]any, error) {
	signerName := strings.TrimSpace(name)
	if signerName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if _, err := s.store.GetLog(ctx, logID); err != nil {
		return nil, err
	}

	item := store.Signature{
		ID:        util.NewID("sig"),
		LogID:     logID,
		Name:      signerName,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertSignature(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domainError(http.StatusConflict, "ALREADY_SIGNED", "This name has already signed the post", nil)
		}
		return nil, err
	}

	return signaturePayload(item), nil
}

// AddComment appends a comment. A reply's parent must be an existing
// top-level comment on the same post; deeper nesting is rejected.
func (s *Service) AddComment(ctx context.Context, logID string, input CommentInput) (map[string]any, error) {
	author := strings.TrimSpace(input.Author)
	if author == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "author is required", nil)
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message is required", nil)
	}
	if _, err := s.store.GetLog(ctx, logID); err != nil {
		return nil, err
	}

	if input.ParentID != nil {
		parent, err := s.store.GetComment(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.LogID != logID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent comment belongs to a different post", nil)
		}
		if parent.ParentID != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "replies to replies are not supported", nil)
		}
	}

	item := store.Comment{
		ID:        util.NewID("cmt"),
		LogID:     logID,
		ParentID:  input.ParentID,
		Author:    author,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertComment(ctx, item); err != nil {
		return nil, err
	}

	payload := commentPayload(item)
	payload["replies"] = []map[string]any{}
	return payload, nil
}

func (s *Service) DeleteComment(ctx context.Context, commentID string) error {
	ok, err := s.store.DeleteComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) AddReaction(ctx context.Context, logID, emoji string) ([]map[string]any, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "emoji is required", nil)
	}
	if _, err := s.store.GetLog(ctx, logID); err != nil {
		return nil, err
	}

	if err := s.store.InsertReaction(ctx, store.Reaction{
		ID:        util.NewID("rct"),
		LogID:     logID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	reactions, err := s.store.ListReactions(ctx, logID)
	if err != nil {
		return nil, err
	}
	return aggregateReactions(reactions), nil
}

// --- search ---

func (s *Service) Search(ctx context.Context, q string, includeArchived bool, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}
	}
	return s.search.Search(search.Query{
		Text:            q,
		IncludeArchived: includeArchived,
		Limit:           limit,
		Offset:          offset,
	})
}

func (s *Service) indexLog(item store.Log) {
	if s.search == nil {
		return
	}
	s.search.IndexLog(search.LogRecord{
		ID:       item.ID,
		Title:    item.Title,
		Message:  stripMarkup(item.Message),
		Author:   item.Author,
		Archived: item.Archived,
	})
}

// --- uploads ---

func (s *Service) UploadAttachment(ctx context.Context, originalName, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage is not configured", nil)
	}

	objectName := util.NewID("att") + strings.ToLower(path.Ext(originalName))
	url, err := s.blobs.Upload(ctx, objectName, r, size, contentType)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"filename":     objectName,
		"originalName": originalName,
		"mimeType":     contentType,
		"size":         size,
		"url":          url,
	}, nil
}

func (s *Service) DeleteUpload(ctx context.Context, objectName string) error {
	if s.blobs == nil {
		return domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage is not configured", nil)
	}
	return s.blobs.Delete(ctx, objectName)
}

// --- payload assembly ---

func (s *Service) logPayloads(ctx context.Context, logs []store.Log) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(logs))
	for _, item := range logs {
		payload, err := s.logPayload(ctx, item)
		if err != nil {
			return nil, err
		}
		items = append(items, payload)
	}
	return items, nil
}

func (s *Service) logPayload(ctx context.Context, item store.Log) (map[string]any, error) {
	signatures, err := s.store.ListSignatures(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	reactions, err := s.store.ListReactions(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	signatureItems := make([]map[string]any, 0, len(signatures))
	for _, sig := range signatures {
		signatureItems = append(signatureItems, signaturePayload(sig))
	}
	attachmentItems := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		attachmentItems = append(attachmentItems, map[string]any{
			"id":           a.ID,
			"filename":     a.Filename,
			"originalName": a.OriginalName,
			"mimeType":     a.MimeType,
			"size":         a.Size,
			"url":          a.URL,
		})
	}

	payload := map[string]any{
		"id":          item.ID,
		"title":       item.Title,
		"message":     item.Message,
		"author":      item.Author,
		"imageUrl":    item.ImageURL,
		"version":     item.Version,
		"pinned":      item.Pinned,
		"unpinnedAt":  item.UnpinnedAt,
		"archived":    item.Archived,
		"archivedAt":  item.ArchivedAt,
		"createdAt":   item.CreatedAt,
		"signatures":  signatureItems,
		"comments":    commentTree(comments),
		"reactions":   aggregateReactions(reactions),
		"attachments": attachmentItems,
	}
	return payload, nil
}

func signaturePayload(item store.Signature) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"logId":     item.LogID,
		"name":      item.Name,
		"createdAt": item.CreatedAt,
	}
}

func commentPayload(item store.Comment) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"logId":     item.LogID,
		"parentId":  item.ParentID,
		"author":    item.Author,
		"message":   item.Message,
		"createdAt": item.CreatedAt,
	}
}

// commentTree arranges a flat, createdAt-ordered comment list into the
// two-level tree: top-level comments in order, each with its replies.
func commentTree(comments []store.Comment) []map[string]any {
	tree := make([]map[string]any, 0)
	byID := make(map[string]map[string]any, len(comments))

	for _, item := range comments {
		if item.ParentID != nil {
			continue
		}
		payload := commentPayload(item)
		payload["replies"] = []map[string]any{}
		byID[item.ID] = payload
		tree = append(tree, payload)
	}
	for _, item := range comments {
		if item.ParentID == nil {
			continue
		}
		parent, ok := byID[*item.ParentID]
		if !ok {
			continue
		}
		parent["replies"] = append(parent["replies"].([]map[string]any), commentPayload(item))
	}
	return tree
}

// aggregateReactions groups raw reaction rows by emoji, preserving the
// insertion order of each emoji's first occurrence.
func aggregateReactions(reactions []store.Reaction) []map[string]any {
	order := make([]string, 0)
	counts := make(map[string]int)
	for _, r := range reactions {
		if _, seen := counts[r.Emoji]; !seen {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}

	items := make([]map[string]any, 0, len(order))
	for _, emoji := range order {
		items = append(items, map[string]any{
			"emoji": emoji,
			"count": counts[emoji],
		})
	}
	return items
}

func attachmentRows(logID string, inputs []AttachmentInput) []store.Attachment {
	now := time.Now()
	rows := make([]store.Attachment, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, store.Attachment{
			ID:           util.NewID("att"),
			LogID:        logID,
			Filename:     in.Filename,
			OriginalName: in.OriginalName,
			MimeType:     in.MimeType,
			Size:         in.Size,
			URL:          in.URL,
			CreatedAt:    now,
		})
	}
	return rows
}

// stripMarkup removes HTML tags and collapses whitespace so that a
// message consisting only of markup counts as blank.
func stripMarkup(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
