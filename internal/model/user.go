package model

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	FirstName    string    `db:"first_name" json:"firstName"`
	LastName     string    `db:"last_name" json:"lastName"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	FirstName    string
	LastName     string
}

// SplitDisplayName splits "Ada Lovelace King" into ("Ada", "Lovelace King").
func SplitDisplayName(displayName string) (first, last string) {
	name := strings.TrimSpace(displayName)
	first, last, _ = strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

type AuthSession struct {
	ID        string    `db:"id" json:"id"`
	TokenHash string    `db:"token_hash" json:"-"`
	UserID    string    `db:"user_id" json:"userId"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateAuthSessionParams struct {
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
}
