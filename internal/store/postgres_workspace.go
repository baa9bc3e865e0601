package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) CreateWorkspace(ctx context.Context, name, description string, ownerID int64) (Workspace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workspace{}, fmt.Errorf("begin create workspace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var item Workspace
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, COALESCE(description, ''), owner_id, created_at
	`, name, nullIfEmpty(description), ownerID).Scan(&item.ID, &item.Name, &item.Description, &item.OwnerID, &item.CreatedAt)
	if err != nil {
		return Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, 'admin')
	`, item.ID, ownerID); err != nil {
		return Workspace{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Workspace{}, fmt.Errorf("commit create workspace: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID int64) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), owner_id, created_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.Name, &item.Description, &item.OwnerID, &item.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID int64) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, COALESCE(w.description, ''), w.owner_id, w.created_at
		FROM workspaces w
		JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE wm.user_id=$1
		ORDER BY w.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.OwnerID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetWorkspaceMember(ctx context.Context, workspaceID, userID int64) (WorkspaceMember, error) {
	var item WorkspaceMember
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID).Scan(&item.WorkspaceID, &item.UserID, &item.Role, &item.JoinedAt)
	if err != nil {
		return WorkspaceMember{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListWorkspaceMembers(ctx context.Context, workspaceID int64) ([]WorkspaceMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wm.workspace_id, wm.user_id, wm.role, wm.joined_at, u.name, u.email
		FROM workspace_members wm
		JOIN users u ON u.id = wm.user_id
		WHERE wm.workspace_id=$1
		ORDER BY wm.joined_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace members: %w", err)
	}
	defer rows.Close()

	items := make([]WorkspaceMember, 0)
	for rows.Next() {
		var item WorkspaceMember
		if err := rows.Scan(&item.WorkspaceID, &item.UserID, &item.Role, &item.JoinedAt, &item.Name, &item.Email); err != nil {
			return nil, fmt.Errorf("scan workspace member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddWorkspaceMember(ctx context.Context, workspaceID, userID int64, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID, userID, role)
	if err != nil {
		return fmt.Errorf("add workspace member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWorkspaceMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM workspace_members WHERE workspace_id=$1
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, workspaceID int64, name, description string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (workspace_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, workspace_id, name, COALESCE(description, ''), created_at
	`, workspaceID, name, nullIfEmpty(description)).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, COALESCE(description, ''), created_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

// DeleteProject relies on the FK cascades to take the board, files,
// posts and chat history with it.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, workspaceID int64) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, COALESCE(description, ''), created_at
		FROM projects
		WHERE workspace_id=$1
		ORDER BY created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
