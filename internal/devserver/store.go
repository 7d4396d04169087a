package devserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = errors.New("email already taken")
)

// Roles known to the backend.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
)

// User is a stored account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserInput holds the fields for a new user.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UpdateUserInput holds a partial update. A nil Password keeps the current one.
type UpdateUserInput struct {
	Name     string
	Email    string
	Password *string
}

// Store is an in-memory user table. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[string]*User
	cost  int
}

// NewStore creates an empty store hashing passwords with bcrypt at cost.
// A cost of 0 uses bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{users: make(map[string]*User), cost: cost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *Store) Create(_ context.Context, in CreateUserInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = RoleTeacher
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(in.Email, "") {
		return nil, ErrEmailTaken
	}
	u := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	out := *u
	return &out, nil
}

// GetByID retrieves a user by id.
func (s *Store) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (s *Store) GetByEmail(_ context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// ListByRole returns users with role, oldest first.
func (s *Store) ListByRole(_ context.Context, role string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update changes name and email, and the password when in.Password is set.
func (s *Store) Update(_ context.Context, id string, in UpdateUserInput) (*User, error) {
	var hash []byte
	if in.Password != nil {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(*in.Password), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.emailTakenLocked(in.Email, id) {
		return nil, ErrEmailTaken
	}
	u.Name = strings.TrimSpace(in.Name)
	u.Email = normalizeEmail(in.Email)
	if hash != nil {
		u.PasswordHash = string(hash)
	}
	out := *u
	return &out, nil
}

// Delete removes a user.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// EmailTaken reports whether a user other than exceptID has email.
func (s *Store) EmailTaken(email, exceptID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emailTakenLocked(email, exceptID)
}

func (s *Store) emailTakenLocked(email, exceptID string) bool {
	email = normalizeEmail(email)
	for id, u := range s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

// CheckPassword compares a plaintext password against the user's hash.
func CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
