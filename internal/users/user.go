package users

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
)

const (
	minUsernameLength = 4
	maxUsernameLength = 31
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// User is a registered account. Rows are never updated or deleted.
type User struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string `gorm:"column:username;size:31;not null;uniqueIndex"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Credentials is a validated username and password pair.
type Credentials struct {
	username string
	password string
}

// NewCredentials trims the username and checks both fields against the account rules.
func NewCredentials(username, password string) (Credentials, error) {
	trimmed := strings.TrimSpace(username)
	length := utf8.RuneCountInString(trimmed)
	if length < minUsernameLength || length > maxUsernameLength {
		return Credentials{}, apperr.New(apperr.KindValidation, opCredentials, "invalid_username",
			fmt.Errorf("username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return Credentials{}, apperr.New(apperr.KindValidation, opCredentials, "invalid_password",
			fmt.Errorf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return Credentials{}, apperr.New(apperr.KindValidation, opCredentials, "invalid_password",
			fmt.Errorf("password must be at most %d bytes", maxPasswordBytes))
	}
	return Credentials{username: trimmed, password: password}, nil
}

// Username returns the normalized username.
func (c Credentials) Username() string {
	return c.username
}
