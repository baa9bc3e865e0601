package store

import "time"

type User struct {
	ID              int64
	Email           string
	Name            string
	PasswordHash    string
	ProfileImage    string
	IsEmailVerified bool
	LastActiveAt    time.Time
	CreatedAt       time.Time
}

type EmailVerification struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

type Workspace struct {
	ID          int64
	Name        string
	Description string
	OwnerID     int64
	CreatedAt   time.Time
}

type WorkspaceMember struct {
	WorkspaceID int64
	UserID      int64
	Role        string
	JoinedAt    time.Time
	// Joined fields for API responses
	Name  string
	Email string
}

type Project struct {
	ID          int64
	WorkspaceID int64
	Name        string
	Description string
	CreatedAt   time.Time
}

type BoardColumn struct {
	ID        int64
	ProjectID int64
	Title     string
	SortOrder int
	CreatedAt time.Time
}

type Card struct {
	ID       int64
	ProjectID int64
	// nil when the card sits in the backlog (no column)
	ColumnID  *int64
	Title     string
	Content   string
	SortOrder int
	X         float64
	Y         float64
	StartDate *time.Time
	DueDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CardDependency struct {
	ID         int64
	FromCardID int64
	ToCardID   int64
}

type CardComment struct {
	ID        int64
	CardID    int64
	UserID    int64
	Content   string
	CreatedAt time.Time
}

type FileMetadata struct {
	ID        int64
	ProjectID int64
	Filename  string
	OwnerID   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FileVersion struct {
	ID         int64
	FileID     int64
	Version    int
	SavedPath  string
	FileSize   int64
	UploaderID int64
	CreatedAt  time.Time
}

type ChatMessage struct {
	ID        int64
	ProjectID int64
	UserID    int64
	Content   string
	CreatedAt time.Time
	// Joined fields for outbound envelopes
	UserName         string
	UserProfileImage string
}

type Post struct {
	ID        int64
	ProjectID int64
	UserID    int64
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PostComment struct {
	ID        int64
	PostID    int64
	UserID    int64
	Content   string
	CreatedAt time.Time
}

type Schedule struct {
	ID          int64
	UserID      int64
	DayOfWeek   int
	StartTime   string // "HH:MM"
	EndTime     string // "HH:MM"
	Description string
	CreatedAt   time.Time
}

type ActivityLog struct {
	ID          int64
	UserID      int64
	WorkspaceID *int64
	ActionType  string
	Content     string
	CreatedAt   time.Time
}
