package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamhub/api/internal/rbac"
	"teamhub/api/internal/search"
	"teamhub/api/internal/store"
)

// --- board columns ---

func (s *Service) CreateColumn(ctx context.Context, session Session, projectID int64, title string, sortOrder int) (store.BoardColumn, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionWrite); err != nil {
		return store.BoardColumn{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.BoardColumn{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	return s.store.InsertColumn(ctx, projectID, title, sortOrder)
}

func (s *Service) ListColumns(ctx context.Context, session Session, projectID int64) ([]store.BoardColumn, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListColumns(ctx, projectID)
}

func (s *Service) UpdateColumn(ctx context.Context, session Session, columnID int64, title *string, sortOrder *int) (store.BoardColumn, error) {
	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return store.BoardColumn{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, column.ProjectID, rbac.ActionWrite); err != nil {
		return store.BoardColumn{}, err
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		return store.BoardColumn{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be empty", nil)
	}
	return s.store.UpdateColumn(ctx, columnID, title, sortOrder)
}

// DeleteColumn removes a column; its cards drop into the backlog
// instead of being deleted with it.
func (s *Service) DeleteColumn(ctx context.Context, session Session, columnID int64) (int, error) {
	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return 0, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, column.ProjectID, rbac.ActionWrite); err != nil {
		return 0, err
	}
	return s.store.DeleteColumnPreservingCards(ctx, columnID)
}

// --- cards ---

type CardInput struct {
	ColumnID  *int64     `json:"columnId"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	SortOrder int        `json:"sortOrder"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	StartDate *time.Time `json:"startDate"`
	DueDate   *time.Time `json:"dueDate"`
	Assignees []int64    `json:"assignees"`
}

func (s *Service) CreateCard(ctx context.Context, session Session, projectID int64, input CardInput) (store.Card, error) {
	project, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionWrite)
	if err != nil {
		return store.Card{}, err
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.ColumnID != nil {
		if err := s.checkColumnInProject(ctx, *input.ColumnID, projectID); err != nil {
			return store.Card{}, err
		}
	}
	if input.StartDate != nil && input.DueDate != nil && input.DueDate.Before(*input.StartDate) {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate precedes startDate", nil)
	}

	card, err := s.store.InsertCard(ctx, store.Card{
		ProjectID: projectID,
		ColumnID:  input.ColumnID,
		Title:     input.Title,
		Content:   input.Content,
		SortOrder: input.SortOrder,
		X:         input.X,
		Y:         input.Y,
		StartDate: input.StartDate,
		DueDate:   input.DueDate,
	}, input.Assignees)
	if err != nil {
		return store.Card{}, err
	}

	s.indexCard(card)
	s.logActivity(ctx, session.UserID, &project.WorkspaceID, "card.created", card.Title)
	return card, nil
}

func (s *Service) GetCard(ctx context.Context, session Session, cardID int64) (store.Card, []store.User, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, nil, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionRead); err != nil {
		return store.Card{}, nil, err
	}
	assignees, err := s.store.ListCardAssignees(ctx, cardID)
	if err != nil {
		return store.Card{}, nil, err
	}
	return card, assignees, nil
}

func (s *Service) ListCards(ctx context.Context, session Session, projectID int64) ([]store.Card, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListCards(ctx, projectID)
}

func (s *Service) UpdateCard(ctx context.Context, session Session, cardID int64, input CardInput) (store.Card, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionWrite); err != nil {
		return store.Card{}, err
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.ColumnID != nil {
		if err := s.checkColumnInProject(ctx, *input.ColumnID, card.ProjectID); err != nil {
			return store.Card{}, err
		}
	}
	if input.StartDate != nil && input.DueDate != nil && input.DueDate.Before(*input.StartDate) {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate precedes startDate", nil)
	}

	card.ColumnID = input.ColumnID
	card.Title = input.Title
	card.Content = input.Content
	card.SortOrder = input.SortOrder
	card.X = input.X
	card.Y = input.Y
	card.StartDate = input.StartDate
	card.DueDate = input.DueDate

	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return store.Card{}, err
	}
	if input.Assignees != nil {
		if err := s.store.SetCardAssignees(ctx, cardID, input.Assignees); err != nil {
			return store.Card{}, err
		}
	}
	s.indexCard(updated)
	return updated, nil
}

func (s *Service) DeleteCard(ctx context.Context, session Session, cardID int64) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	project, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCard(strconv.FormatInt(cardID, 10))
	}
	s.logActivity(ctx, session.UserID, &project.WorkspaceID, "card.deleted", card.Title)
	return nil
}

func (s *Service) SetAssignees(ctx context.Context, session Session, cardID int64, userIDs []int64) ([]store.User, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if err := s.store.SetCardAssignees(ctx, cardID, userIDs); err != nil {
		return nil, err
	}
	return s.store.ListCardAssignees(ctx, cardID)
}

// --- card dependencies ---

func (s *Service) CreateDependency(ctx context.Context, session Session, fromCardID, toCardID int64) (store.CardDependency, error) {
	if fromCardID == toCardID {
		return store.CardDependency{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a card cannot depend on itself", nil)
	}
	from, err := s.store.GetCard(ctx, fromCardID)
	if err != nil {
		return store.CardDependency{}, err
	}
	to, err := s.store.GetCard(ctx, toCardID)
	if err != nil {
		return store.CardDependency{}, err
	}
	if from.ProjectID != to.ProjectID {
		return store.CardDependency{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cards belong to different projects", nil)
	}
	if _, _, err := s.requireProjectMember(ctx, session, from.ProjectID, rbac.ActionWrite); err != nil {
		return store.CardDependency{}, err
	}
	return s.store.InsertDependency(ctx, fromCardID, toCardID)
}

func (s *Service) ListDependencies(ctx context.Context, session Session, projectID int64) ([]store.CardDependency, error) {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListDependencies(ctx, projectID)
}

func (s *Service) DeleteDependency(ctx context.Context, session Session, projectID, dependencyID int64) error {
	if _, _, err := s.requireProjectMember(ctx, session, projectID, rbac.ActionWrite); err != nil {
		return err
	}
	return s.store.DeleteDependency(ctx, dependencyID)
}

// --- card comments ---

func (s *Service) CreateCardComment(ctx context.Context, session Session, cardID int64, content string) (store.CardComment, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return store.CardComment{}, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionWrite); err != nil {
		return store.CardComment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return store.CardComment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	return s.store.InsertCardComment(ctx, cardID, session.UserID, content)
}

func (s *Service) ListCardComments(ctx context.Context, session Session, cardID int64) ([]store.CardComment, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListCardComments(ctx, cardID)
}

// DeleteCardComment allows the author or a workspace admin.
func (s *Service) DeleteCardComment(ctx context.Context, session Session, commentID int64) error {
	comment, err := s.store.GetCardComment(ctx, commentID)
	if err != nil {
		return err
	}
	card, err := s.store.GetCard(ctx, comment.CardID)
	if err != nil {
		return err
	}
	_, member, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionRead)
	if err != nil {
		return err
	}
	if comment.UserID != session.UserID && rbac.Normalize(member.Role) != rbac.RoleAdmin {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author or an admin can delete a comment", nil)
	}
	return s.store.DeleteCardComment(ctx, commentID)
}

// --- card file links ---

func (s *Service) AttachFile(ctx context.Context, session Session, cardID, fileID int64) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionWrite); err != nil {
		return err
	}
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.ProjectID != card.ProjectID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file belongs to a different project", nil)
	}
	return s.store.AttachFileToCard(ctx, cardID, fileID)
}

func (s *Service) DetachFile(ctx context.Context, session Session, cardID, fileID int64) error {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionWrite); err != nil {
		return err
	}
	removed, err := s.store.DetachFileFromCard(ctx, cardID, fileID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "File is not attached to this card", nil)
	}
	return nil
}

func (s *Service) ListCardFiles(ctx context.Context, session Session, cardID int64) ([]store.FileMetadata, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.requireProjectMember(ctx, session, card.ProjectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListCardFiles(ctx, cardID)
}

func (s *Service) checkColumnInProject(ctx context.Context, columnID, projectID int64) error {
	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "column does not exist", nil)
	}
	if column.ProjectID != projectID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "column belongs to a different project", nil)
	}
	return nil
}

func (s *Service) indexCard(card store.Card) {
	if s.search == nil {
		return
	}
	s.search.IndexCard(search.CardRecord{
		ID:        strconv.FormatInt(card.ID, 10),
		Title:     card.Title,
		Content:   card.Content,
		ProjectID: card.ProjectID,
	})
}
