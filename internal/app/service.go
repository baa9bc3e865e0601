package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"teamhub/api/internal/auth"
	"teamhub/api/internal/authpw"
	"teamhub/api/internal/config"
	"teamhub/api/internal/email"
	"teamhub/api/internal/filestore"
	"teamhub/api/internal/rbac"
	"teamhub/api/internal/realtime"
	"teamhub/api/internal/search"
	"teamhub/api/internal/store"
)

type Session struct {
	Token    string
	UserID   int64
	UserName string
	Email    string
}

// sessionStore resolves opaque tokens to user ids.
type sessionStore interface {
	Save(ctx context.Context, token string, userID int64) error
	Lookup(ctx context.Context, token string) (int64, error)
	Revoke(ctx context.Context, token string) error
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpdateUserName(ctx context.Context, userID int64, name string) error
	UpdateUserProfileImage(ctx context.Context, userID int64, imageURL string) error
	TouchUserActivity(ctx context.Context, userID int64) error

	InsertActivity(ctx context.Context, entry store.ActivityLog) error
	ListActivity(ctx context.Context, workspaceID int64, limit int) ([]store.ActivityLog, error)

	CreateWorkspace(ctx context.Context, name, description string, ownerID int64) (store.Workspace, error)
	GetWorkspace(ctx context.Context, workspaceID int64) (store.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID int64) ([]store.Workspace, error)
	GetWorkspaceMember(ctx context.Context, workspaceID, userID int64) (store.WorkspaceMember, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID int64) ([]store.WorkspaceMember, error)
	AddWorkspaceMember(ctx context.Context, workspaceID, userID int64, role string) error
	ListWorkspaceMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error)

	CreateProject(ctx context.Context, workspaceID int64, name, description string) (store.Project, error)
	GetProject(ctx context.Context, projectID int64) (store.Project, error)
	DeleteProject(ctx context.Context, projectID int64) error
	ListProjects(ctx context.Context, workspaceID int64) ([]store.Project, error)

	InsertColumn(ctx context.Context, projectID int64, title string, sortOrder int) (store.BoardColumn, error)
	GetColumn(ctx context.Context, columnID int64) (store.BoardColumn, error)
	UpdateColumn(ctx context.Context, columnID int64, title *string, sortOrder *int) (store.BoardColumn, error)
	DeleteColumnPreservingCards(ctx context.Context, columnID int64) (int, error)
	ListColumns(ctx context.Context, projectID int64) ([]store.BoardColumn, error)

	InsertCard(ctx context.Context, card store.Card, assigneeIDs []int64) (store.Card, error)
	GetCard(ctx context.Context, cardID int64) (store.Card, error)
	UpdateCard(ctx context.Context, card store.Card) (store.Card, error)
	DeleteCard(ctx context.Context, cardID int64) error
	ListCards(ctx context.Context, projectID int64) ([]store.Card, error)
	SetCardAssignees(ctx context.Context, cardID int64, userIDs []int64) error
	ListCardAssignees(ctx context.Context, cardID int64) ([]store.User, error)

	InsertDependency(ctx context.Context, fromCardID, toCardID int64) (store.CardDependency, error)
	DeleteDependency(ctx context.Context, dependencyID int64) error
	ListDependencies(ctx context.Context, projectID int64) ([]store.CardDependency, error)

	InsertCardComment(ctx context.Context, cardID, userID int64, content string) (store.CardComment, error)
	GetCardComment(ctx context.Context, commentID int64) (store.CardComment, error)
	DeleteCardComment(ctx context.Context, commentID int64) error
	ListCardComments(ctx context.Context, cardID int64) ([]store.CardComment, error)

	AttachFileToCard(ctx context.Context, cardID, fileID int64) error
	DetachFileFromCard(ctx context.Context, cardID, fileID int64) (bool, error)
	ListCardFiles(ctx context.Context, cardID int64) ([]store.FileMetadata, error)

	GetFile(ctx context.Context, fileID int64) (store.FileMetadata, error)
	ListProjectFiles(ctx context.Context, projectID int64) ([]store.FileMetadata, map[int64]store.FileVersion, error)

	InsertChatMessage(ctx context.Context, projectID, userID int64, content string) (store.ChatMessage, error)
	ListChatMessages(ctx context.Context, projectID, afterID int64, limit int) ([]store.ChatMessage, error)

	InsertPost(ctx context.Context, projectID, userID int64, title, content string) (store.Post, error)
	GetPost(ctx context.Context, postID int64) (store.Post, error)
	UpdatePost(ctx context.Context, postID int64, title, content string) (store.Post, error)
	DeletePost(ctx context.Context, postID int64) error
	ListPosts(ctx context.Context, projectID int64) ([]store.Post, error)
	InsertPostComment(ctx context.Context, postID, userID int64, content string) (store.PostComment, error)
	GetPostComment(ctx context.Context, commentID int64) (store.PostComment, error)
	DeletePostComment(ctx context.Context, commentID int64) error
	ListPostComments(ctx context.Context, postID int64) ([]store.PostComment, error)

	InsertSchedule(ctx context.Context, sch store.Schedule) (store.Schedule, error)
	GetSchedule(ctx context.Context, scheduleID int64) (store.Schedule, error)
	DeleteSchedule(ctx context.Context, scheduleID int64) error
	ListSchedulesForUser(ctx context.Context, userID int64) ([]store.Schedule, error)
	ListSchedulesForUsers(ctx context.Context, userIDs []int64) ([]store.Schedule, error)
}

// Service holds the application's business logic.
type Service struct {
	store        dataStore
	sessions     sessionStore
	authpw       *authpw.Service
	email        *email.Service
	files        *filestore.Manager
	search       *search.Service
	chatRooms    *realtime.Registry
	voiceRooms   *realtime.Registry
	inviteSecret []byte
	baseURL      string
}

func NewService(cfg config.Config, data dataStore, sessions sessionStore, authSvc *authpw.Service, emailSvc *email.Service, files *filestore.Manager, searchSvc *search.Service) *Service {
	return &Service{
		store:        data,
		sessions:     sessions,
		authpw:       authSvc,
		email:        emailSvc,
		files:        files,
		search:       searchSvc,
		chatRooms:    realtime.NewRegistry(),
		voiceRooms:   realtime.NewRegistry(),
		inviteSecret: []byte(cfg.InviteSecret),
		baseURL:      cfg.BaseURL,
	}
}

func (s *Service) AuthPasswordService() *authpw.Service { return s.authpw }

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// ChatRooms exposes the chat connection registry.
func (s *Service) ChatRooms() *realtime.Registry { return s.chatRooms }

// VoiceRooms exposes the voice connection registry.
func (s *Service) VoiceRooms() *realtime.Registry { return s.voiceRooms }

// Shutdown closes all realtime connections.
func (s *Service) Shutdown() {
	s.chatRooms.CloseAll()
	s.voiceRooms.CloseAll()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// newSessionToken mints an opaque 128-bit bearer secret. Tokens carry
// no claims; everything lives server-side in the session store.
func newSessionToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "sess_" + hex.EncodeToString(buf)
}

// CreateSession issues an opaque token for a signed-in user.
func (s *Service) CreateSession(ctx context.Context, userID int64) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	token := newSessionToken()
	if err := s.sessions.Save(ctx, token, userID); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return Session{Token: token, UserID: user.ID, UserName: user.Name, Email: user.Email}, nil
}

// SessionFromToken resolves a token and refreshes the user's
// last-active timestamp.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	userID, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	_ = s.store.TouchUserActivity(ctx, userID)
	return Session{Token: token, UserID: user.ID, UserName: user.Name, Email: user.Email}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, token)
}

// Me returns the caller's profile.
func (s *Service) Me(ctx context.Context, session Session) (store.User, error) {
	return s.store.GetUserByID(ctx, session.UserID)
}

// UpdateProfile changes the caller's display name and/or profile image.
func (s *Service) UpdateProfile(ctx context.Context, session Session, name, profileImage *string) (store.User, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name cannot be empty", nil)
		}
		if err := s.store.UpdateUserName(ctx, session.UserID, trimmed); err != nil {
			return store.User{}, err
		}
	}
	if profileImage != nil {
		if err := s.store.UpdateUserProfileImage(ctx, session.UserID, *profileImage); err != nil {
			return store.User{}, err
		}
	}
	return s.store.GetUserByID(ctx, session.UserID)
}

// --- workspaces ---

func (s *Service) CreateWorkspace(ctx context.Context, session Session, name, description string) (store.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Workspace{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	ws, err := s.store.CreateWorkspace(ctx, name, description, session.UserID)
	if err != nil {
		return store.Workspace{}, err
	}
	s.logActivity(ctx, session.UserID, &ws.ID, "workspace.created", name)
	return ws, nil
}

func (s *Service) ListWorkspaces(ctx context.Context, session Session) ([]store.Workspace, error) {
	return s.store.ListWorkspacesForUser(ctx, session.UserID)
}

func (s *Service) GetWorkspace(ctx context.Context, session Session, workspaceID int64) (store.Workspace, error) {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionRead); err != nil {
		return store.Workspace{}, err
	}
	return s.store.GetWorkspace(ctx, workspaceID)
}

func (s *Service) ListMembers(ctx context.Context, session Session, workspaceID int64) ([]store.WorkspaceMember, error) {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListWorkspaceMembers(ctx, workspaceID)
}

// AddMember adds an existing user directly. Admin only.
func (s *Service) AddMember(ctx context.Context, session Session, workspaceID int64, userEmail, role string) error {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionManageMembers); err != nil {
		return err
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(userEmail)))
	if err != nil {
		return domainError(http.StatusNotFound, "USER_NOT_FOUND", "No account with that email", nil)
	}
	if err := s.store.AddWorkspaceMember(ctx, workspaceID, user.ID, string(rbac.Normalize(role))); err != nil {
		return err
	}
	s.logActivity(ctx, session.UserID, &workspaceID, "member.added", user.Email)
	return nil
}

// InviteMember issues a signed invite token and emails it when SMTP is
// configured. The token is returned so the dev flow works without mail.
func (s *Service) InviteMember(ctx context.Context, session Session, workspaceID int64, inviteEmail, role string) (string, error) {
	member, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionInvite)
	if err != nil {
		return "", err
	}
	inviteEmail = strings.ToLower(strings.TrimSpace(inviteEmail))
	if inviteEmail == "" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}
	role = string(rbac.Normalize(role))
	// Only admins can hand out the admin role.
	if role == string(rbac.RoleAdmin) && rbac.Normalize(member.Role) != rbac.RoleAdmin {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Only admins can invite admins", nil)
	}

	token, err := auth.IssueInvite(s.inviteSecret, auth.InviteClaims{
		WorkspaceID: workspaceID,
		Role:        role,
		InviterID:   session.UserID,
		Email:       inviteEmail,
		Exp:         time.Now().Add(7 * 24 * time.Hour).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("issue invite: %w", err)
	}

	if s.SMTPConfigured() {
		ws, err := s.store.GetWorkspace(ctx, workspaceID)
		if err == nil {
			acceptURL := fmt.Sprintf("%s/invites/accept?token=%s", strings.TrimRight(s.baseURL, "/"), token)
			if err := s.email.SendInviteEmail(inviteEmail, session.UserName, ws.Name, acceptURL); err != nil {
				return "", fmt.Errorf("send invite email: %w", err)
			}
		}
	}

	s.logActivity(ctx, session.UserID, &workspaceID, "member.invited", inviteEmail)
	return token, nil
}

// sendVerificationCode delivers a verification code by mail without
// blocking the request. Failures are logged; the code stays valid and
// the user can ask for a resend.
func (s *Service) sendVerificationCode(to, userName, code string) {
	if !s.SMTPConfigured() {
		return
	}
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, code); err != nil {
			log.Printf("send verification email to %s: %v", to, err)
		}
	}()
}

// AcceptInvite redeems an invite token for the calling user. The
// invited email must match the caller's account.
func (s *Service) AcceptInvite(ctx context.Context, session Session, token string) (store.Workspace, error) {
	claims, err := auth.ParseInvite(s.inviteSecret, token)
	if err != nil {
		return store.Workspace{}, err
	}
	if claims.Email != "" && !strings.EqualFold(claims.Email, session.Email) {
		return store.Workspace{}, domainError(http.StatusForbidden, "INVITE_MISMATCH", "This invitation was issued to a different email", nil)
	}
	if err := s.store.AddWorkspaceMember(ctx, claims.WorkspaceID, session.UserID, string(rbac.Normalize(claims.Role))); err != nil {
		return store.Workspace{}, err
	}
	s.logActivity(ctx, session.UserID, &claims.WorkspaceID, "member.joined", session.Email)
	return s.store.GetWorkspace(ctx, claims.WorkspaceID)
}

// InviteDetails is what an invite token reveals before redemption.
type InviteDetails struct {
	WorkspaceID   int64
	WorkspaceName string
	InviterName   string
	Email         string
	Role          string
	ExpiresAt     time.Time
}

// InspectInvite validates a token and describes the invitation so a
// landing page can render it. No session required.
func (s *Service) InspectInvite(ctx context.Context, token string) (InviteDetails, error) {
	claims, err := auth.ParseInvite(s.inviteSecret, token)
	if err != nil {
		return InviteDetails{}, err
	}
	ws, err := s.store.GetWorkspace(ctx, claims.WorkspaceID)
	if err != nil {
		return InviteDetails{}, err
	}
	details := InviteDetails{
		WorkspaceID:   ws.ID,
		WorkspaceName: ws.Name,
		Email:         claims.Email,
		Role:          string(rbac.Normalize(claims.Role)),
		ExpiresAt:     time.Unix(claims.Exp, 0),
	}
	if inviter, err := s.store.GetUserByID(ctx, claims.InviterID); err == nil {
		details.InviterName = inviter.Name
	}
	return details, nil
}

func (s *Service) WorkspaceActivity(ctx context.Context, session Session, workspaceID int64, limit int) ([]store.ActivityLog, error) {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListActivity(ctx, workspaceID, limit)
}

// --- projects ---

func (s *Service) CreateProject(ctx context.Context, session Session, workspaceID int64, name, description string) (store.Project, error) {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionWrite); err != nil {
		return store.Project{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Project{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	project, err := s.store.CreateProject(ctx, workspaceID, name, description)
	if err != nil {
		return store.Project{}, err
	}
	s.logActivity(ctx, session.UserID, &workspaceID, "project.created", name)
	return project, nil
}

func (s *Service) ListProjects(ctx context.Context, session Session, workspaceID int64) ([]store.Project, error) {
	if _, err := s.requireMember(ctx, workspaceID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListProjects(ctx, workspaceID)
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID int64) (store.Project, error) {
	project, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead)
	return project, err
}

// DeleteProject takes the whole board, its files, posts and chat with
// it. Admin only.
func (s *Service) DeleteProject(ctx context.Context, session Session, projectID int64) error {
	project, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionDeleteProject)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.logActivity(ctx, session.UserID, &project.WorkspaceID, "project.deleted", project.Name)
	return nil
}

// --- access checks ---

// requireMember verifies the user belongs to the workspace and may
// perform the action.
func (s *Service) requireMember(ctx context.Context, workspaceID, userID int64, action rbac.Action) (store.WorkspaceMember, error) {
	member, err := s.store.GetWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return store.WorkspaceMember{}, domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this workspace", nil)
	}
	if !rbac.Can(rbac.Normalize(member.Role), action) {
		return store.WorkspaceMember{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return member, nil
}

// requireProjectMember resolves the project and checks membership of
// its workspace.
func (s *Service) requireProjectMember(ctx context.Context, session Session, projectID int64, action rbac.Action) (store.Project, store.WorkspaceMember, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, store.WorkspaceMember{}, err
	}
	member, err := s.requireMember(ctx, project.WorkspaceID, session.UserID, action)
	if err != nil {
		return store.Project{}, store.WorkspaceMember{}, err
	}
	return project, member, nil
}

func (s *Service) logActivity(ctx context.Context, userID int64, workspaceID *int64, actionType, content string) {
	entry := store.ActivityLog{
		UserID:      userID,
		WorkspaceID: workspaceID,
		ActionType:  actionType,
		Content:     content,
	}
	if err := s.store.InsertActivity(ctx, entry); err != nil {
		// Activity is advisory; a failed write must not fail the request.
		return
	}
}
