package auth

import (
	"database/sql"
	"fmt"
	"time"
)

// User is a panel admin account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore persists panel accounts and refresh token hashes.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CountUsers returns the number of panel accounts.
func (s *UserStore) CountUsers() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CreateUser inserts a panel account and returns it.
func (s *UserStore) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec(`
		INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(id)
}

// GetUserByUsername returns an account by username, or nil.
func (s *UserStore) GetUserByUsername(username string) (*User, error) {
	return s.getUser(`SELECT id, username, password_hash, is_active, created_at FROM users WHERE username = ?`, username)
}

// GetUserByID returns an account by id, or nil.
func (s *UserStore) GetUserByID(id int64) (*User, error) {
	return s.getUser(`SELECT id, username, password_hash, is_active, created_at FROM users WHERE id = ?`, id)
}

func (s *UserStore) getUser(query string, arg interface{}) (*User, error) {
	var user User
	err := s.db.QueryRow(query, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsActive, &user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// StoreRefreshToken records a refresh token hash for a user.
func (s *UserStore) StoreRefreshToken(tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, userID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken deletes a refresh token hash and returns its user id.
// Expired or unknown tokens return (0, false, nil).
func (s *UserStore) ConsumeRefreshToken(tokenHash string) (int64, bool, error) {
	var (
		userID    int64
		expiresAt time.Time
	)
	err := s.db.QueryRow(`
		SELECT user_id, expires_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load refresh token: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE token_hash = ?`, tokenHash); err != nil {
		return 0, false, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	if time.Now().UTC().After(expiresAt) {
		return 0, false, nil
	}
	return userID, true, nil
}

// RevokeUserTokens deletes every refresh token for a user.
func (s *UserStore) RevokeUserTokens(userID int64) error {
	if _, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}
