package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hepavision/fibrostage/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(id int64) (models.User, error)
	RegisterUser(fullName, email, password string) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
}

// UserService provides business logic for account management.
type UserService struct {
	db *sql.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// NormalizeEmail lower-cases and trims an email so lookups and the
// uniqueness constraint behave case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(id int64) (models.User, error) {
	var user models.User
	row := s.db.QueryRow("SELECT id, full_name, email, created_at FROM users WHERE id = ?", id)
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) GetUserByEmail(email string) (models.User, error) {
	var user models.User
	row := s.db.QueryRow("SELECT id, full_name, email, password_hash, created_at FROM users WHERE email = ?", NormalizeEmail(email))
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// RegisterUser creates a new user, hashing their password. A duplicate
// email returns ErrEmailTaken and leaves the table untouched.
func (s *UserService) RegisterUser(fullName, email, password string) (models.User, error) {
	email = NormalizeEmail(email)

	if _, err := s.GetUserByEmail(email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if err != ErrNotFound {
		return models.User{}, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO users(full_name, email, password_hash, created_at) VALUES(?, ?, ?, ?)")
	if err != nil {
		return models.User{}, err
	}
	defer stmt.Close()

	res, err := stmt.Exec(user.FullName, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		// A concurrent registration can still hit the UNIQUE constraint.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return models.User{}, err
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// AuthenticateUser verifies a user's credentials. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) AuthenticateUser(email, password string) (models.User, error) {
	user, err := s.GetUserByEmail(email)
	if err != nil {
		if err == ErrNotFound {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}
