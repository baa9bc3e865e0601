package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamhub/api/internal/auth"
	"teamhub/api/internal/authpw"
	"teamhub/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		s.handleAuthSignUp(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleAuthSignIn(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email":
		s.handleAuthVerifyEmail(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/resend-code":
		s.handleAuthResendCode(w, r)
		return
	}

	// Invite inspection is public: the recipient may not have an
	// account yet, and the landing page needs to describe the invite.
	if r.Method == http.MethodGet && r.URL.Path == "/api/invites/inspect" {
		s.handleInviteInspect(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userId": session.UserID, "userName": session.UserName})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		_ = s.service.Logout(r.Context(), sessionToken(r))
		clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Websocket endpoints carry the token in the query string because
	// browsers cannot set headers on websocket upgrades.
	if parts := splitPath(r.URL.Path); len(parts) == 3 && parts[0] == "ws" {
		projectID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_PATH", "Invalid project id", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		switch parts[1] {
		case "chat":
			s.handleChatSocket(w, r, session, projectID)
		case "voice":
			s.handleVoiceSocket(w, r, session, projectID)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	// Everything below requires a session.
	session, err := s.service.SessionFromToken(r.Context(), sessionToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	parts = parts[1:]

	switch parts[0] {
	case "users":
		s.routeUsers(w, r, session, parts)
	case "workspaces":
		s.routeWorkspaces(w, r, session, parts)
	case "invites":
		s.routeInvites(w, r, session, parts)
	case "projects":
		s.routeProjects(w, r, session, parts)
	case "columns":
		s.routeColumns(w, r, session, parts)
	case "cards":
		s.routeCards(w, r, session, parts)
	case "card-comments":
		s.routeCardComments(w, r, session, parts)
	case "files":
		s.routeFiles(w, r, session, parts)
	case "posts":
		s.routePosts(w, r, session, parts)
	case "post-comments":
		s.routePostComments(w, r, session, parts)
	case "schedules":
		s.routeSchedules(w, r, session, parts)
	case "search":
		s.routeSearch(w, r, session, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// --- auth handlers ---

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignUp(r.Context(), authpw.SignUpRequest{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email for the verification code",
	}
	if s.service.SMTPConfigured() {
		s.service.sendVerificationCode(body.Email, body.Name, resp.VerificationCode)
	} else {
		// Dev bypass when mail is not configured.
		response["devVerificationCode"] = resp.VerificationCode
	}

	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	setSessionCookie(w, session.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": session.Token,
		"userId":      session.UserID,
		"userName":    session.UserName,
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Email, body.Code); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFY_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthResendCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	code, err := s.service.AuthPasswordService().ResendCode(r.Context(), body.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "RESEND_FAILED", err.Error(), nil)
		return
	}
	response := map[string]any{"ok": true}
	if s.service.SMTPConfigured() {
		s.service.sendVerificationCode(body.Email, "", code)
	} else {
		response["devVerificationCode"] = code
	}
	writeJSON(w, http.StatusOK, response)
}

// --- users ---

func (s *HTTPServer) routeUsers(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 && parts[1] == "me" {
		switch r.Method {
		case http.MethodGet:
			user, err := s.service.Me(r.Context(), session)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, userResponse(user))
			return
		case http.MethodPut:
			var body struct {
				Name         *string `json:"name"`
				ProfileImage *string `json:"profileImage"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			user, err := s.service.UpdateProfile(r.Context(), session, body.Name, body.ProfileImage)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, userResponse(user))
			return
		}
	}
	if len(parts) == 3 && parts[1] == "me" && parts[2] == "profile-image" && r.Method == http.MethodPut {
		s.handleProfileImageUpload(w, r, session)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProfileImageUpload(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected multipart form with a file field", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Missing file field", nil)
		return
	}
	defer file.Close()

	user, err := s.service.UpdateProfileImage(r.Context(), session, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(user))
}

// --- workspaces ---

func (s *HTTPServer) routeWorkspaces(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			ws, err := s.service.CreateWorkspace(ctx, session, body.Name, body.Description)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, workspaceResponse(ws))
			return
		case http.MethodGet:
			items, err := s.service.ListWorkspaces(ctx, session)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"workspaces": workspaceResponses(items)})
			return
		}
	}

	workspaceID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		ws, err := s.service.GetWorkspace(ctx, session, workspaceID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workspaceResponse(ws))
		return
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "members":
			switch r.Method {
			case http.MethodGet:
				members, err := s.service.ListMembers(ctx, session, workspaceID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"members": memberResponses(members)})
				return
			case http.MethodPost:
				var body struct {
					Email string `json:"email"`
					Role  string `json:"role"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				if err := s.service.AddMember(ctx, session, workspaceID, body.Email, body.Role); err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
				return
			}
		case "invites":
			if r.Method == http.MethodPost {
				var body struct {
					Email string `json:"email"`
					Role  string `json:"role"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				token, err := s.service.InviteMember(ctx, session, workspaceID, body.Email, body.Role)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				response := map[string]any{"ok": true}
				if !s.service.SMTPConfigured() {
					response["inviteToken"] = token
				}
				writeJSON(w, http.StatusCreated, response)
				return
			}
		case "activity":
			if r.Method == http.MethodGet {
				limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
				items, err := s.service.WorkspaceActivity(ctx, session, workspaceID, limit)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"activity": activityResponses(items)})
				return
			}
		case "free-time":
			if r.Method == http.MethodGet {
				slots, err := s.service.WorkspaceFreeSlots(ctx, session, workspaceID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
				return
			}
		case "projects":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				project, err := s.service.CreateProject(ctx, session, workspaceID, body.Name, body.Description)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, projectResponse(project))
				return
			case http.MethodGet:
				items, err := s.service.ListProjects(ctx, session, workspaceID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"projects": projectResponses(items)})
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleInviteInspect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", "Missing token parameter", nil)
		return
	}
	details, err := s.service.InspectInvite(r.Context(), token)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workspaceId":   details.WorkspaceID,
		"workspaceName": details.WorkspaceName,
		"inviterName":   details.InviterName,
		"email":         details.Email,
		"role":          details.Role,
		"expiresAt":     details.ExpiresAt,
	})
}

func (s *HTTPServer) routeInvites(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 && parts[1] == "accept" && r.Method == http.MethodPost {
		var body struct {
			Token string `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ws, err := s.service.AcceptInvite(r.Context(), session, body.Token)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workspaceResponse(ws))
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// --- search ---

func (s *HTTPServer) routeSearch(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 1 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	query := r.URL.Query()
	projectID, _ := strconv.ParseInt(query.Get("projectId"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	resp, err := s.service.Search(r.Context(), session, search.Query{
		Text:            query.Get("q"),
		FilterType:      search.ResultType(query.Get("type")),
		FilterProjectID: projectID,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- middleware and helpers ---

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		status := writer.status
		if writer.hijacked {
			// The socket took over the connection; the recorded
			// status is the pre-upgrade default.
			status = http.StatusSwitchingProtocols
		}
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.hijacked = true
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// sessionCookieName is the HttpOnly cookie set on sign-in. Browser
// clients authenticate with it; API clients may send the same token
// as a bearer header instead.
const sessionCookieName = "session_token"

func sessionToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(w http.ResponseWriter, parts []string, index int) (int64, bool) {
	if index >= len(parts) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(parts[index], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid id in path", nil)
		return 0, false
	}
	return id, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
