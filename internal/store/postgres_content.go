package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) InsertChatMessage(ctx context.Context, projectID, userID int64, content string) (ChatMessage, error) {
	var item ChatMessage
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (project_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, project_id, user_id, content, created_at
	`, projectID, userID, content).Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Content, &item.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT name, COALESCE(profile_image, '') FROM users WHERE id=$1
	`, userID).Scan(&item.UserName, &item.UserProfileImage)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("resolve chat author: %w", err)
	}
	return item, nil
}

// ListChatMessages returns up to limit messages with id greater than
// afterID, oldest first. A limit of 0 means the default page size.
func (s *PostgresStore) ListChatMessages(ctx context.Context, projectID, afterID int64, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.project_id, m.user_id, m.content, m.created_at, u.name, COALESCE(u.profile_image, '')
		FROM chat_messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id=$1 AND m.id > $2
		ORDER BY m.id ASC
		LIMIT $3
	`, projectID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	items := make([]ChatMessage, 0)
	for rows.Next() {
		var item ChatMessage
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Content, &item.CreatedAt, &item.UserName, &item.UserProfileImage); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, projectID, userID int64, title, content string) (Post, error) {
	var item Post
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (project_id, user_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, user_id, title, COALESCE(content, ''), created_at, updated_at
	`, projectID, userID, title, nullIfEmpty(content)).Scan(
		&item.ID, &item.ProjectID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID int64) (Post, error) {
	var item Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, title, COALESCE(content, ''), created_at, updated_at
		FROM posts
		WHERE id=$1
	`, postID).Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, postID int64, title, content string) (Post, error) {
	var item Post
	err := s.db.QueryRowContext(ctx, `
		UPDATE posts SET title=$2, content=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING id, project_id, user_id, title, COALESCE(content, ''), created_at, updated_at
	`, postID, title, nullIfEmpty(content)).Scan(
		&item.ID, &item.ProjectID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_comments WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete post: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPosts(ctx context.Context, projectID int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, user_id, title, COALESCE(content, ''), created_at, updated_at
		FROM posts
		WHERE project_id=$1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		var item Post
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertPostComment(ctx context.Context, postID, userID int64, content string) (PostComment, error) {
	var item PostComment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO post_comments (post_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, post_id, user_id, content, created_at
	`, postID, userID, content).Scan(&item.ID, &item.PostID, &item.UserID, &item.Content, &item.CreatedAt)
	if err != nil {
		return PostComment{}, fmt.Errorf("insert post comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetPostComment(ctx context.Context, commentID int64) (PostComment, error) {
	var item PostComment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, user_id, content, created_at FROM post_comments WHERE id=$1
	`, commentID).Scan(&item.ID, &item.PostID, &item.UserID, &item.Content, &item.CreatedAt)
	if err != nil {
		return PostComment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeletePostComment(ctx context.Context, commentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM post_comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete post comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPostComments(ctx context.Context, postID int64) ([]PostComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, user_id, content, created_at
		FROM post_comments
		WHERE post_id=$1
		ORDER BY created_at ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post comments: %w", err)
	}
	defer rows.Close()

	items := make([]PostComment, 0)
	for rows.Next() {
		var item PostComment
		if err := rows.Scan(&item.ID, &item.PostID, &item.UserID, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertSchedule(ctx context.Context, sch Schedule) (Schedule, error) {
	var item Schedule
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO schedules (user_id, day_of_week, start_time, end_time, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, day_of_week, start_time, end_time, COALESCE(description, ''), created_at
	`, sch.UserID, sch.DayOfWeek, sch.StartTime, sch.EndTime, nullIfEmpty(sch.Description)).Scan(
		&item.ID, &item.UserID, &item.DayOfWeek, &item.StartTime, &item.EndTime, &item.Description, &item.CreatedAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("insert schedule: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetSchedule(ctx context.Context, scheduleID int64) (Schedule, error) {
	var item Schedule
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, day_of_week, start_time, end_time, COALESCE(description, ''), created_at
		FROM schedules
		WHERE id=$1
	`, scheduleID).Scan(&item.ID, &item.UserID, &item.DayOfWeek, &item.StartTime, &item.EndTime, &item.Description, &item.CreatedAt)
	if err != nil {
		return Schedule{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id=$1`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListSchedulesForUser(ctx context.Context, userID int64) ([]Schedule, error) {
	return s.querySchedules(ctx, `
		SELECT id, user_id, day_of_week, start_time, end_time, COALESCE(description, ''), created_at
		FROM schedules
		WHERE user_id=$1
		ORDER BY day_of_week ASC, start_time ASC
	`, userID)
}

// ListSchedulesForUsers loads the weekly schedules of every user in the
// set, for free-slot computation across a group.
func (s *PostgresStore) ListSchedulesForUsers(ctx context.Context, userIDs []int64) ([]Schedule, error) {
	items := make([]Schedule, 0)
	for _, id := range userIDs {
		batch, err := s.ListSchedulesForUser(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (s *PostgresStore) querySchedules(ctx context.Context, query string, arg any) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	items := make([]Schedule, 0)
	for rows.Next() {
		var item Schedule
		if err := rows.Scan(&item.ID, &item.UserID, &item.DayOfWeek, &item.StartTime, &item.EndTime, &item.Description, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return items, nil
}
