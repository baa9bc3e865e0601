package app

import (
	"time"

	"teamhub/api/internal/store"
)

// Store models carry no JSON tags. Responses are shaped here so the
// wire format stays camelCase regardless of the Go field names.

func userResponse(user store.User) map[string]any {
	return map[string]any{
		"id":           user.ID,
		"email":        user.Email,
		"name":         user.Name,
		"profileImage": user.ProfileImage,
		"createdAt":    user.CreatedAt,
	}
}

func userResponses(users []store.User) []map[string]any {
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, userResponse(u))
	}
	return items
}

func workspaceResponse(ws store.Workspace) map[string]any {
	return map[string]any{
		"id":          ws.ID,
		"name":        ws.Name,
		"description": ws.Description,
		"ownerId":     ws.OwnerID,
		"createdAt":   ws.CreatedAt,
	}
}

func workspaceResponses(items []store.Workspace) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, ws := range items {
		out = append(out, workspaceResponse(ws))
	}
	return out
}

func memberResponse(m store.WorkspaceMember) map[string]any {
	return map[string]any{
		"workspaceId": m.WorkspaceID,
		"userId":      m.UserID,
		"role":        m.Role,
		"joinedAt":    m.JoinedAt,
		"name":        m.Name,
		"email":       m.Email,
	}
}

func memberResponses(items []store.WorkspaceMember) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, m := range items {
		out = append(out, memberResponse(m))
	}
	return out
}

func projectResponse(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"workspaceId": p.WorkspaceID,
		"name":        p.Name,
		"description": p.Description,
		"createdAt":   p.CreatedAt,
	}
}

func projectResponses(items []store.Project) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func columnResponse(c store.BoardColumn) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"projectId": c.ProjectID,
		"title":     c.Title,
		"sortOrder": c.SortOrder,
	}
}

func columnResponses(items []store.BoardColumn) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, columnResponse(c))
	}
	return out
}

func cardResponse(c store.Card) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"projectId": c.ProjectID,
		"columnId":  c.ColumnID,
		"title":     c.Title,
		"content":   c.Content,
		"sortOrder": c.SortOrder,
		"x":         c.X,
		"y":         c.Y,
		"startDate": dateOrNil(c.StartDate),
		"dueDate":   dateOrNil(c.DueDate),
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

func cardResponses(items []store.Card) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, cardResponse(c))
	}
	return out
}

func dependencyResponse(d store.CardDependency) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"fromCardId": d.FromCardID,
		"toCardId":   d.ToCardID,
	}
}

func dependencyResponses(items []store.CardDependency) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, d := range items {
		out = append(out, dependencyResponse(d))
	}
	return out
}

func cardCommentResponse(c store.CardComment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"cardId":    c.CardID,
		"userId":    c.UserID,
		"content":   c.Content,
		"createdAt": c.CreatedAt,
	}
}

func cardCommentResponses(items []store.CardComment) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, cardCommentResponse(c))
	}
	return out
}

func fileResponse(f store.FileMetadata) map[string]any {
	return map[string]any{
		"id":        f.ID,
		"projectId": f.ProjectID,
		"filename":  f.Filename,
		"ownerId":   f.OwnerID,
		"createdAt": f.CreatedAt,
		"updatedAt": f.UpdatedAt,
	}
}

func fileResponses(items []store.FileMetadata) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, f := range items {
		out = append(out, fileResponse(f))
	}
	return out
}

func versionResponse(v store.FileVersion) map[string]any {
	return map[string]any{
		"id":         v.ID,
		"fileId":     v.FileID,
		"version":    v.Version,
		"fileSize":   v.FileSize,
		"uploaderId": v.UploaderID,
		"createdAt":  v.CreatedAt,
	}
}

func versionResponses(items []store.FileVersion) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, v := range items {
		out = append(out, versionResponse(v))
	}
	return out
}

func chatMessageResponse(m store.ChatMessage) map[string]any {
	return map[string]any{
		"id":               m.ID,
		"projectId":        m.ProjectID,
		"userId":           m.UserID,
		"content":          m.Content,
		"createdAt":        m.CreatedAt,
		"userName":         m.UserName,
		"userProfileImage": m.UserProfileImage,
	}
}

func chatMessageResponses(items []store.ChatMessage) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, m := range items {
		out = append(out, chatMessageResponse(m))
	}
	return out
}

func postResponse(p store.Post) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"projectId": p.ProjectID,
		"userId":    p.UserID,
		"title":     p.Title,
		"content":   p.Content,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	}
}

func postResponses(items []store.Post) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, postResponse(p))
	}
	return out
}

func postCommentResponse(c store.PostComment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"postId":    c.PostID,
		"userId":    c.UserID,
		"content":   c.Content,
		"createdAt": c.CreatedAt,
	}
}

func postCommentResponses(items []store.PostComment) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, postCommentResponse(c))
	}
	return out
}

func scheduleResponse(sch store.Schedule) map[string]any {
	return map[string]any{
		"id":          sch.ID,
		"userId":      sch.UserID,
		"dayOfWeek":   sch.DayOfWeek,
		"startTime":   sch.StartTime,
		"endTime":     sch.EndTime,
		"description": sch.Description,
	}
}

func scheduleResponses(items []store.Schedule) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, sch := range items {
		out = append(out, scheduleResponse(sch))
	}
	return out
}

func activityResponse(a store.ActivityLog) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"workspaceId": a.WorkspaceID,
		"userId":      a.UserID,
		"actionType":  a.ActionType,
		"content":     a.Content,
		"createdAt":   a.CreatedAt,
	}
}

func activityResponses(items []store.ActivityLog) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, a := range items {
		out = append(out, activityResponse(a))
	}
	return out
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}
