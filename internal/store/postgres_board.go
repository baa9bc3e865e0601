package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertColumn(ctx context.Context, projectID int64, title string, sortOrder int) (BoardColumn, error) {
	var item BoardColumn
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO board_columns (project_id, title, sort_order)
		VALUES ($1, $2, $3)
		RETURNING id, project_id, title, sort_order, created_at
	`, projectID, title, sortOrder).Scan(&item.ID, &item.ProjectID, &item.Title, &item.SortOrder, &item.CreatedAt)
	if err != nil {
		return BoardColumn{}, fmt.Errorf("insert column: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetColumn(ctx context.Context, columnID int64) (BoardColumn, error) {
	var item BoardColumn
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, sort_order, created_at
		FROM board_columns
		WHERE id=$1
	`, columnID).Scan(&item.ID, &item.ProjectID, &item.Title, &item.SortOrder, &item.CreatedAt)
	if err != nil {
		return BoardColumn{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateColumn(ctx context.Context, columnID int64, title *string, sortOrder *int) (BoardColumn, error) {
	current, err := s.GetColumn(ctx, columnID)
	if err != nil {
		return BoardColumn{}, err
	}
	if title != nil {
		current.Title = *title
	}
	if sortOrder != nil {
		current.SortOrder = *sortOrder
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE board_columns SET title=$2, sort_order=$3 WHERE id=$1
	`, columnID, current.Title, current.SortOrder)
	if err != nil {
		return BoardColumn{}, fmt.Errorf("update column: %w", err)
	}
	return current, nil
}

// DeleteColumnPreservingCards detaches the column's cards into the backlog
// before removing the column, and reports how many cards were detached.
func (s *PostgresStore) DeleteColumnPreservingCards(ctx context.Context, columnID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete column: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `UPDATE cards SET column_id=NULL WHERE column_id=$1`, columnID)
	if err != nil {
		return 0, fmt.Errorf("detach cards: %w", err)
	}
	detached, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach cards rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM board_columns WHERE id=$1`, columnID); err != nil {
		return 0, fmt.Errorf("delete column: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete column: %w", err)
	}
	return int(detached), nil
}

func (s *PostgresStore) ListColumns(ctx context.Context, projectID int64) ([]BoardColumn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, sort_order, created_at
		FROM board_columns
		WHERE project_id=$1
		ORDER BY sort_order ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	items := make([]BoardColumn, 0)
	for rows.Next() {
		var item BoardColumn
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.SortOrder, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return items, nil
}

const cardColumns = `id, project_id, column_id, title, COALESCE(content, ''), sort_order, x, y, start_date, due_date, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (Card, error) {
	var item Card
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.ColumnID,
		&item.Title,
		&item.Content,
		&item.SortOrder,
		&item.X,
		&item.Y,
		&item.StartDate,
		&item.DueDate,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertCard(ctx context.Context, card Card, assigneeIDs []int64) (Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Card{}, fmt.Errorf("begin insert card: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := scanCard(tx.QueryRowContext(ctx, `
		INSERT INTO cards (project_id, column_id, title, content, sort_order, x, y, start_date, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+cardColumns+`
	`, card.ProjectID, card.ColumnID, card.Title, nullIfEmpty(card.Content), card.SortOrder, card.X, card.Y, card.StartDate, card.DueDate))
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}

	for _, userID := range assigneeIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_assignees (card_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (card_id, user_id) DO NOTHING
		`, inserted.ID, userID); err != nil {
			return Card{}, fmt.Errorf("insert card assignee: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Card{}, fmt.Errorf("commit insert card: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID int64) (Card, error) {
	item, err := scanCard(s.db.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE id=$1
	`, cardID))
	if err != nil {
		return Card{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateCard(ctx context.Context, card Card) (Card, error) {
	updated, err := scanCard(s.db.QueryRowContext(ctx, `
		UPDATE cards
		SET column_id=$2, title=$3, content=$4, sort_order=$5, x=$6, y=$7, start_date=$8, due_date=$9, updated_at=NOW()
		WHERE id=$1
		RETURNING `+cardColumns+`
	`, card.ID, card.ColumnID, card.Title, nullIfEmpty(card.Content), card.SortOrder, card.X, card.Y, card.StartDate, card.DueDate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Card{}, sql.ErrNoRows
		}
		return Card{}, fmt.Errorf("update card: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteCard(ctx context.Context, cardID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete card: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Association rows first, then the card.
	for _, stmt := range []string{
		`DELETE FROM card_assignees WHERE card_id=$1`,
		`DELETE FROM card_dependencies WHERE from_card_id=$1 OR to_card_id=$1`,
		`DELETE FROM card_comments WHERE card_id=$1`,
		`DELETE FROM card_file_links WHERE card_id=$1`,
		`DELETE FROM cards WHERE id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, cardID); err != nil {
			return fmt.Errorf("delete card: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete card: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCards(ctx context.Context, projectID int64) ([]Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE project_id=$1 ORDER BY id ASC
	`, projectID)
}

func (s *PostgresStore) ListCardsByColumn(ctx context.Context, columnID int64) ([]Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE column_id=$1 ORDER BY sort_order ASC, id ASC
	`, columnID)
}

func (s *PostgresStore) queryCards(ctx context.Context, query string, arg any) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]Card, 0)
	for rows.Next() {
		item, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetCardAssignees(ctx context.Context, cardID int64, userIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set assignees: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_assignees WHERE card_id=$1`, cardID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_assignees (card_id, user_id) VALUES ($1, $2)
		`, cardID, userID); err != nil {
			return fmt.Errorf("insert assignee: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set assignees: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCardAssignees(ctx context.Context, cardID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, u.password_hash, COALESCE(u.profile_image, ''), u.is_email_verified, u.last_active_at, u.created_at
		FROM card_assignees ca
		JOIN users u ON u.id = ca.user_id
		WHERE ca.card_id=$1
		ORDER BY u.id ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card assignees: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.Email, &item.Name, &item.PasswordHash, &item.ProfileImage, &item.IsEmailVerified, &item.LastActiveAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card assignee: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card assignees: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDependency(ctx context.Context, fromCardID, toCardID int64) (CardDependency, error) {
	var item CardDependency
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO card_dependencies (from_card_id, to_card_id)
		VALUES ($1, $2)
		RETURNING id, from_card_id, to_card_id
	`, fromCardID, toCardID).Scan(&item.ID, &item.FromCardID, &item.ToCardID)
	if err != nil {
		return CardDependency{}, fmt.Errorf("insert dependency: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteDependency(ctx context.Context, dependencyID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM card_dependencies WHERE id=$1`, dependencyID)
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dependency rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListDependencies(ctx context.Context, projectID int64) ([]CardDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cd.id, cd.from_card_id, cd.to_card_id
		FROM card_dependencies cd
		JOIN cards c ON c.id = cd.from_card_id
		WHERE c.project_id=$1
		ORDER BY cd.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	items := make([]CardDependency, 0)
	for rows.Next() {
		var item CardDependency
		if err := rows.Scan(&item.ID, &item.FromCardID, &item.ToCardID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCardComment(ctx context.Context, cardID, userID int64, content string) (CardComment, error) {
	var item CardComment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO card_comments (card_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, card_id, user_id, content, created_at
	`, cardID, userID, content).Scan(&item.ID, &item.CardID, &item.UserID, &item.Content, &item.CreatedAt)
	if err != nil {
		return CardComment{}, fmt.Errorf("insert card comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetCardComment(ctx context.Context, commentID int64) (CardComment, error) {
	var item CardComment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, card_id, user_id, content, created_at FROM card_comments WHERE id=$1
	`, commentID).Scan(&item.ID, &item.CardID, &item.UserID, &item.Content, &item.CreatedAt)
	if err != nil {
		return CardComment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteCardComment(ctx context.Context, commentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM card_comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete card comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCardComments(ctx context.Context, cardID int64) ([]CardComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, user_id, content, created_at
		FROM card_comments
		WHERE card_id=$1
		ORDER BY created_at ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card comments: %w", err)
	}
	defer rows.Close()

	items := make([]CardComment, 0)
	for rows.Next() {
		var item CardComment
		if err := rows.Scan(&item.ID, &item.CardID, &item.UserID, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card comments: %w", err)
	}
	return items, nil
}

// AttachFileToCard links a file to a card; attaching twice is a no-op.
func (s *PostgresStore) AttachFileToCard(ctx context.Context, cardID, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_file_links (card_id, file_id)
		VALUES ($1, $2)
		ON CONFLICT (card_id, file_id) DO NOTHING
	`, cardID, fileID)
	if err != nil {
		return fmt.Errorf("attach file to card: %w", err)
	}
	return nil
}

func (s *PostgresStore) DetachFileFromCard(ctx context.Context, cardID, fileID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM card_file_links WHERE card_id=$1 AND file_id=$2
	`, cardID, fileID)
	if err != nil {
		return false, fmt.Errorf("detach file from card: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("detach file rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListCardFiles(ctx context.Context, cardID int64) ([]FileMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.project_id, f.filename, f.owner_id, f.created_at, f.updated_at
		FROM card_file_links cfl
		JOIN files f ON f.id = cfl.file_id
		WHERE cfl.card_id=$1
		ORDER BY f.id ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card files: %w", err)
	}
	defer rows.Close()

	items := make([]FileMetadata, 0)
	for rows.Next() {
		var item FileMetadata
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Filename, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card file: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card files: %w", err)
	}
	return items, nil
}
