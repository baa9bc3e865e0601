package app

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"teamhub/api/internal/store"
)

// maxUploadBytes caps a single file upload at 100 MiB.
const maxUploadBytes = 100 << 20

func (s *HTTPServer) routeProjects(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	projectID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(ctx, session, projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projectResponse(project))
			return
		case http.MethodDelete:
			if err := s.service.DeleteProject(ctx, session, projectID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "columns":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					Title     string `json:"title"`
					SortOrder int    `json:"sortOrder"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				column, err := s.service.CreateColumn(ctx, session, projectID, body.Title, body.SortOrder)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, columnResponse(column))
				return
			case http.MethodGet:
				columns, err := s.service.ListColumns(ctx, session, projectID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"columns": columnResponses(columns)})
				return
			}
		case "cards":
			switch r.Method {
			case http.MethodPost:
				var input CardInput
				if err := decodeBody(r, &input); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				card, err := s.service.CreateCard(ctx, session, projectID, input)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, cardResponse(card))
				return
			case http.MethodGet:
				cards, err := s.service.ListCards(ctx, session, projectID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"cards": cardResponses(cards)})
				return
			}
		case "dependencies":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					FromCardID int64 `json:"fromCardId"`
					ToCardID   int64 `json:"toCardId"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				dep, err := s.service.CreateDependency(ctx, session, body.FromCardID, body.ToCardID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, dependencyResponse(dep))
				return
			case http.MethodGet:
				deps, err := s.service.ListDependencies(ctx, session, projectID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"dependencies": dependencyResponses(deps)})
				return
			}
		case "files":
			switch r.Method {
			case http.MethodPost:
				s.handleFileUpload(w, r, session, projectID)
				return
			case http.MethodGet:
				files, latest, err := s.service.ListFiles(ctx, session, projectID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				items := make([]map[string]any, 0, len(files))
				for _, f := range files {
					item := fileResponse(f)
					if v, ok := latest[f.ID]; ok {
						item["latestVersion"] = v.Version
						item["fileSize"] = v.FileSize
					}
					items = append(items, item)
				}
				writeJSON(w, http.StatusOK, map[string]any{"files": items})
				return
			}
		case "posts":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					Title   string `json:"title"`
					Content string `json:"content"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				post, err := s.service.CreatePost(ctx, session, projectID, body.Title, body.Content)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, postResponse(post))
				return
			case http.MethodGet:
				posts, err := s.service.ListPosts(ctx, session, projectID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"posts": postResponses(posts)})
				return
			}
		case "free-slots":
			if r.Method == http.MethodGet {
				slots, err := s.service.TeamFreeSlots(ctx, session, projectID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
				return
			}
		case "board":
			if r.Method == http.MethodGet {
				s.handleBoardSnapshot(w, r, session, projectID)
				return
			}
		}
	}

	if len(parts) == 4 && parts[2] == "files" && parts[3] == "batch" && r.Method == http.MethodPost {
		s.handleFileBatchUpload(w, r, session, projectID)
		return
	}

	if len(parts) == 4 && parts[2] == "dependencies" && r.Method == http.MethodDelete {
		depID, ok := parseID(w, parts, 3)
		if !ok {
			return
		}
		if err := s.service.DeleteDependency(ctx, session, projectID, depID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[2] == "chat" && parts[3] == "messages" && r.Method == http.MethodGet {
		afterID, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		messages, err := s.service.ChatHistory(ctx, session, projectID, afterID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": chatMessageResponses(messages)})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleBoardSnapshot returns every column with its cards in sort
// order plus the backlog (cards without a column).
func (s *HTTPServer) handleBoardSnapshot(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	ctx := r.Context()

	columns, err := s.service.ListColumns(ctx, session, projectID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	cards, err := s.service.ListCards(ctx, session, projectID)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	byColumn := make(map[int64][]store.Card)
	var backlog []store.Card
	for _, card := range cards {
		if card.ColumnID == nil {
			backlog = append(backlog, card)
			continue
		}
		byColumn[*card.ColumnID] = append(byColumn[*card.ColumnID], card)
	}

	items := make([]map[string]any, 0, len(columns))
	for _, column := range columns {
		inColumn := byColumn[column.ID]
		sort.SliceStable(inColumn, func(i, j int) bool {
			return inColumn[i].SortOrder < inColumn[j].SortOrder
		})
		item := columnResponse(column)
		item["cards"] = cardResponses(inColumn)
		items = append(items, item)
	}
	sort.SliceStable(backlog, func(i, j int) bool {
		return backlog[i].SortOrder < backlog[j].SortOrder
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"columns": items,
		"backlog": cardResponses(backlog),
	})
}

func (s *HTTPServer) handleFileUpload(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected multipart form with a file field", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Missing file field", nil)
		return
	}
	defer file.Close()

	meta, version, err := s.service.UploadFile(r.Context(), session, projectID, header.Filename, file)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"file":    fileResponse(meta),
		"version": versionResponse(version),
	})
}

// handleFileBatchUpload stores every part of the "files" field.
// A bad part does not abort the batch; it lands in "failed" and the
// rest are stored normally.
func (s *HTTPServer) handleFileBatchUpload(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected multipart form with a files field", nil)
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Missing files field", nil)
		return
	}

	uploaded := make([]map[string]any, 0, len(headers))
	failed := make([]map[string]any, 0)
	for _, header := range headers {
		part, err := header.Open()
		if err != nil {
			failed = append(failed, map[string]any{"filename": header.Filename, "error": "unreadable part"})
			continue
		}
		meta, version, err := s.service.storeFileVersion(r.Context(), session, projectID, header.Filename, part)
		part.Close()
		if err != nil {
			failed = append(failed, map[string]any{"filename": header.Filename, "error": err.Error()})
			continue
		}
		uploaded = append(uploaded, map[string]any{
			"file":    fileResponse(meta),
			"version": versionResponse(version),
		})
	}
	if len(uploaded) > 0 {
		s.service.broadcastProject(projectID, map[string]any{
			"type":   "FILES_BATCH_UPLOADED",
			"userId": session.UserID,
			"data":   uploaded,
		})
	}

	status := http.StatusCreated
	if len(uploaded) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"uploaded": uploaded,
		"failed":   failed,
	})
}

func (s *HTTPServer) routeColumns(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	columnID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var body struct {
			Title     *string `json:"title"`
			SortOrder *int    `json:"sortOrder"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		column, err := s.service.UpdateColumn(r.Context(), session, columnID, body.Title, body.SortOrder)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, columnResponse(column))
	case http.MethodDelete:
		detached, err := s.service.DeleteColumn(r.Context(), session, columnID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "detachedCards": detached})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) routeCards(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	cardID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			card, assignees, err := s.service.GetCard(ctx, session, cardID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"card": cardResponse(card), "assignees": userResponses(assignees)})
			return
		case http.MethodPut:
			var input CardInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			card, err := s.service.UpdateCard(ctx, session, cardID, input)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, cardResponse(card))
			return
		case http.MethodDelete:
			if err := s.service.DeleteCard(ctx, session, cardID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "assignees":
			if r.Method == http.MethodPut {
				var body struct {
					UserIDs []int64 `json:"userIds"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				assignees, err := s.service.SetAssignees(ctx, session, cardID, body.UserIDs)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"assignees": userResponses(assignees)})
				return
			}
		case "comments":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					Content string `json:"content"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				comment, err := s.service.CreateCardComment(ctx, session, cardID, body.Content)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, cardCommentResponse(comment))
				return
			case http.MethodGet:
				comments, err := s.service.ListCardComments(ctx, session, cardID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"comments": cardCommentResponses(comments)})
				return
			}
		case "files":
			switch r.Method {
			case http.MethodPost:
				var body struct {
					FileID int64 `json:"fileId"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				if err := s.service.AttachFile(ctx, session, cardID, body.FileID); err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
				return
			case http.MethodGet:
				files, err := s.service.ListCardFiles(ctx, session, cardID)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"files": fileResponses(files)})
				return
			}
		}
	}

	if len(parts) == 4 && parts[2] == "files" && r.Method == http.MethodDelete {
		fileID, ok := parseID(w, parts, 3)
		if !ok {
			return
		}
		if err := s.service.DetachFile(ctx, session, cardID, fileID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeCardComments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	commentID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}
	if len(parts) == 2 && r.Method == http.MethodDelete {
		if err := s.service.DeleteCardComment(r.Context(), session, commentID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeFiles(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	fileID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			version, _ := strconv.Atoi(r.URL.Query().Get("version"))
			reader, meta, fileVersion, err := s.service.DownloadFile(ctx, session, fileID, version)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			defer reader.Close()

			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Filename))
			w.Header().Set("X-File-Version", strconv.Itoa(fileVersion.Version))
			if fileVersion.FileSize > 0 {
				w.Header().Set("Content-Length", strconv.FormatInt(fileVersion.FileSize, 10))
			}
			_, _ = io.Copy(w, reader)
			return
		case http.MethodDelete:
			if err := s.service.DeleteFile(ctx, session, fileID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 3 && parts[2] == "versions" && r.Method == http.MethodGet {
		versions, err := s.service.FileHistory(ctx, session, fileID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versionResponses(versions)})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routePosts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	postID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			post, err := s.service.GetPost(ctx, session, postID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, postResponse(post))
			return
		case http.MethodPut:
			var body struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			post, err := s.service.UpdatePost(ctx, session, postID, body.Title, body.Content)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, postResponse(post))
			return
		case http.MethodDelete:
			if err := s.service.DeletePost(ctx, session, postID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if len(parts) == 3 && parts[2] == "comments" {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			comment, err := s.service.CreatePostComment(ctx, session, postID, body.Content)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, postCommentResponse(comment))
			return
		case http.MethodGet:
			comments, err := s.service.ListPostComments(ctx, session, postID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"comments": postCommentResponses(comments)})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routePostComments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	commentID, ok := parseID(w, parts, 1)
	if !ok {
		return
	}
	if len(parts) == 2 && r.Method == http.MethodDelete {
		if err := s.service.DeletePostComment(r.Context(), session, commentID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeSchedules(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				DayOfWeek   int    `json:"dayOfWeek"`
				StartTime   string `json:"startTime"`
				EndTime     string `json:"endTime"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateSchedule(ctx, session, body.DayOfWeek, body.StartTime, body.EndTime, body.Description)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, scheduleResponse(item))
			return
		case http.MethodGet:
			items, err := s.service.MySchedules(ctx, session)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"schedules": scheduleResponses(items)})
			return
		}
	}

	if len(parts) == 2 && r.Method == http.MethodDelete {
		scheduleID, ok := parseID(w, parts, 1)
		if !ok {
			return
		}
		if err := s.service.DeleteSchedule(ctx, session, scheduleID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
