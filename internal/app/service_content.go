package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"teamhub/api/internal/rbac"
	"teamhub/api/internal/schedule"
	"teamhub/api/internal/search"
	"teamhub/api/internal/store"
)

// --- files ---

// broadcastProject fans an event out to everyone connected to the
// project's chat room. Board and file events ride the chat socket;
// there is no separate event channel.
func (s *Service) broadcastProject(projectID int64, payload map[string]any) {
	if err := s.chatRooms.BroadcastJSON(projectID, payload, nil); err != nil {
		log.Printf("broadcast to project %d: %v", projectID, err)
	}
}

// UploadFile stores a new version of a file and announces it to the
// project room. Re-uploading an existing filename in the same project
// extends its version chain.
func (s *Service) UploadFile(ctx context.Context, session Session, projectID int64, filename string, r io.Reader) (store.FileMetadata, store.FileVersion, error) {
	meta, version, err := s.storeFileVersion(ctx, session, projectID, filename, r)
	if err != nil {
		return store.FileMetadata{}, store.FileVersion{}, err
	}
	s.broadcastProject(projectID, map[string]any{
		"type":   "FILE_UPLOADED",
		"userId": session.UserID,
		"data": map[string]any{
			"file":    fileResponse(meta),
			"version": versionResponse(version),
		},
	})
	return meta, version, nil
}

// storeFileVersion is the upload path without the announcement; the
// batch endpoint calls it per part and sends one batch envelope.
func (s *Service) storeFileVersion(ctx context.Context, session Session, projectID int64, filename string, r io.Reader) (store.FileMetadata, store.FileVersion, error) {
	project, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionWrite)
	if err != nil {
		return store.FileMetadata{}, store.FileVersion{}, err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return store.FileMetadata{}, store.FileVersion{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid filename", nil)
	}

	meta, version, err := s.files.Store(ctx, projectID, filename, session.UserID, r)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return store.FileMetadata{}, store.FileVersion{}, domainError(http.StatusConflict, "VERSION_CONFLICT", "Concurrent upload, please retry", nil)
		}
		return store.FileMetadata{}, store.FileVersion{}, err
	}

	if s.search != nil {
		s.search.IndexFile(search.FileRecord{
			ID:        strconv.FormatInt(meta.ID, 10),
			Filename:  meta.Filename,
			ProjectID: meta.ProjectID,
		})
	}
	s.logActivity(ctx, session.UserID, &project.WorkspaceID, "file.uploaded", fmt.Sprintf("%s v%d", filename, version.Version))
	return meta, version, nil
}

// UpdateProfileImage stores an avatar through the blob backend and
// points the caller's profile at its public path.
func (s *Service) UpdateProfileImage(ctx context.Context, session Session, filename, contentType string, r io.Reader) (store.User, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return store.User{}, domainError(http.StatusBadRequest, "INVALID_IMAGE", "Only image uploads are accepted", nil)
	}
	name, err := s.files.SaveBlob(ctx, filename, r)
	if err != nil {
		return store.User{}, err
	}
	if err := s.store.UpdateUserProfileImage(ctx, session.UserID, "/static/"+name); err != nil {
		return store.User{}, err
	}
	return s.store.GetUserByID(ctx, session.UserID)
}

func (s *Service) ListFiles(ctx context.Context, session Session, projectID int64) ([]store.FileMetadata, map[int64]store.FileVersion, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, nil, err
	}
	return s.store.ListProjectFiles(ctx, projectID)
}

func (s *Service) FileHistory(ctx context.Context, session Session, fileID int64) ([]store.FileVersion, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, file.ProjectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.files.History(ctx, fileID)
}

// DownloadFile returns the blob of a version (0 means latest) plus the
// metadata needed for response headers.
func (s *Service) DownloadFile(ctx context.Context, session Session, fileID int64, version int) (io.ReadCloser, store.FileMetadata, store.FileVersion, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, store.FileMetadata{}, store.FileVersion{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, file.ProjectID, rbac.ActionRead); err != nil {
		return nil, store.FileMetadata{}, store.FileVersion{}, err
	}

	var rc io.ReadCloser
	var v store.FileVersion
	if version == 0 {
		rc, v, err = s.files.OpenLatest(ctx, fileID)
	} else {
		rc, v, err = s.files.Open(ctx, fileID, version)
	}
	if err != nil {
		return nil, store.FileMetadata{}, store.FileVersion{}, err
	}
	return rc, file, v, nil
}

// DeleteFile removes a file and its whole version chain. Allowed to
// the owner or a workspace admin.
func (s *Service) DeleteFile(ctx context.Context, session Session, fileID int64) error {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	project, member, err := s.requireProjectMember(ctx, session, file.ProjectID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if file.OwnerID != session.UserID && rbac.Normalize(member.Role) != rbac.RoleAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner or an admin can delete a file", nil)
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteFile(strconv.FormatInt(fileID, 10))
	}
	s.logActivity(ctx, session.UserID, &project.WorkspaceID, "file.deleted", file.Filename)
	s.broadcastProject(file.ProjectID, map[string]any{
		"type":   "FILE_DELETED",
		"userId": session.UserID,
		"data":   map[string]any{"id": fileID},
	})
	return nil
}

// --- chat ---

func (s *Service) ChatHistory(ctx context.Context, session Session, projectID, afterID int64, limit int) ([]store.ChatMessage, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListChatMessages(ctx, projectID, afterID, limit)
}

// --- posts ---

func (s *Service) CreatePost(ctx context.Context, session Session, projectID int64, title, content string) (store.Post, error) {
	project, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionWrite)
	if err != nil {
		return store.Post{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	post, err := s.store.InsertPost(ctx, projectID, session.UserID, title, content)
	if err != nil {
		return store.Post{}, err
	}
	s.indexPost(post)
	s.logActivity(ctx, session.UserID, &project.WorkspaceID, "post.created", title)
	return post, nil
}

func (s *Service) GetPost(ctx context.Context, session Session, postID int64) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, post.ProjectID, rbac.ActionRead); err != nil {
		return store.Post{}, err
	}
	return post, nil
}

func (s *Service) ListPosts(ctx context.Context, session Session, projectID int64) ([]store.Post, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListPosts(ctx, projectID)
}

// UpdatePost is restricted to the author.
func (s *Service) UpdatePost(ctx context.Context, session Session, postID int64, title, content string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, post.ProjectID, rbac.ActionWrite); err != nil {
		return store.Post{}, err
	}
	if post.UserID != session.UserID {
		return store.Post{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the author can edit a post", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	updated, err := s.store.UpdatePost(ctx, postID, title, content)
	if err != nil {
		return store.Post{}, err
	}
	s.indexPost(updated)
	return updated, nil
}

// DeletePost allows the author or a workspace admin.
func (s *Service) DeletePost(ctx context.Context, session Session, postID int64) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	_, member, err := s.requireProjectMember(ctx, session, post.ProjectID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if post.UserID != session.UserID && rbac.Normalize(member.Role) != rbac.RoleAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author or an admin can delete a post", nil)
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePost(strconv.FormatInt(postID, 10))
	}
	return nil
}

func (s *Service) CreatePostComment(ctx context.Context, session Session, postID int64, content string) (store.PostComment, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.PostComment{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, post.ProjectID, rbac.ActionWrite); err != nil {
		return store.PostComment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return store.PostComment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	return s.store.InsertPostComment(ctx, postID, session.UserID, content)
}

func (s *Service) ListPostComments(ctx context.Context, session Session, postID int64) ([]store.PostComment, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, post.ProjectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListPostComments(ctx, postID)
}

func (s *Service) DeletePostComment(ctx context.Context, session Session, commentID int64) error {
	comment, err := s.store.GetPostComment(ctx, commentID)
	if err != nil {
		return err
	}
	post, err := s.store.GetPost(ctx, comment.PostID)
	if err != nil {
		return err
	}
	_, member, err := s.requireProjectMember(ctx, session, post.ProjectID, rbac.ActionRead)
	if err != nil {
		return err
	}
	if comment.UserID != session.UserID && rbac.Normalize(member.Role) != rbac.RoleAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author or an admin can delete a comment", nil)
	}
	return s.store.DeletePostComment(ctx, commentID)
}

// --- schedules ---

func (s *Service) CreateSchedule(ctx context.Context, session Session, dayOfWeek int, startTime, endTime, description string) (store.Schedule, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return store.Schedule{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dayOfWeek must be 0-6", nil)
	}
	if !validClock(startTime) || !validClock(endTime) {
		return store.Schedule{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "times must be HH:MM", nil)
	}
	if endTime <= startTime {
		return store.Schedule{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "endTime must be after startTime", nil)
	}
	return s.store.InsertSchedule(ctx, store.Schedule{
		UserID:      session.UserID,
		DayOfWeek:   dayOfWeek,
		StartTime:   startTime,
		EndTime:     endTime,
		Description: description,
	})
}

func (s *Service) MySchedules(ctx context.Context, session Session) ([]store.Schedule, error) {
	return s.store.ListSchedulesForUser(ctx, session.UserID)
}

// DeleteSchedule is restricted to the owner.
func (s *Service) DeleteSchedule(ctx context.Context, session Session, scheduleID int64) error {
	sch, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sch.UserID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner can delete a schedule", nil)
	}
	return s.store.DeleteSchedule(ctx, scheduleID)
}

// TeamFreeSlots merges the busy blocks of everyone in the project's
// workspace and returns the shared free windows.
func (s *Service) TeamFreeSlots(ctx context.Context, session Session, projectID int64) ([]schedule.Slot, error) {
	project, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.freeSlotsForWorkspace(ctx, project.WorkspaceID)
}

// WorkspaceFreeSlots is the same computation keyed by workspace.
func (s *Service) WorkspaceFreeSlots(ctx context.Context, session Session, workspaceID int64) ([]schedule.Slot, error) {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.freeSlotsForWorkspace(ctx, workspaceID)
}

func (s *Service) freeSlotsForWorkspace(ctx context.Context, workspaceID int64) ([]schedule.Slot, error) {
	memberIDs, err := s.store.ListWorkspaceMemberIDs(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	schedules, err := s.store.ListSchedulesForUsers(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	return schedule.FreeSlots(schedules), nil
}

// --- search ---

// Search runs a full-text query scoped to one project the caller can read.
func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if q.FilterProjectID == 0 {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "projectId is required", nil)
	}
	if _, _, err := s.requireProjectMember(ctx, session, q.FilterProjectID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

func (s *Service) indexPost(post store.Post) {
	if s.search == nil {
		return
	}
	s.search.IndexPost(search.PostRecord{
		ID:        strconv.FormatInt(post.ID, 10),
		Title:     post.Title,
		Content:   post.Content,
		ProjectID: post.ProjectID,
	})
}

func validClock(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	h, err := strconv.Atoi(value[:2])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(value[3:])
	if err != nil || m < 0 || m > 59 {
		return false
	}
	return true
}
