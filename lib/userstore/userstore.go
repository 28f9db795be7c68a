// Package userstore is a flat-file JSON directory of dashboard users.
// It is small enough that a single file with atomic rewrites beats a
// database table, and the file doubles as the operator's escape hatch
// when a password gets lost.
package userstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Roles, strongest first.
const (
	RoleSuperAdmin = "SUPERADMIN"
	RoleAdmin      = "ADMIN"
	RoleUser       = "USER"
)

// adminPosition is the jobs-title value the legacy system uses for
// administrators; users synced with it get ADMIN.
const adminPosition = "Administrador"

var (
	ErrNotFound    = errors.New("user not found")
	ErrBadPassword = errors.New("invalid credentials")
	ErrExists      = errors.New("user already exists")
	ErrForbidden   = errors.New("operation not permitted for role")
)

// User is one directory entry. PasswordPlain is retained alongside the
// hash so a SUPERADMIN can reveal credentials for operators locked out
// of the legacy system; RevealPassword is the only reader.
type User struct {
	Username           string     `json:"username"`
	Name               string     `json:"name"`
	Position           string     `json:"position"`
	PasswordHash       string     `json:"password_hash"`
	PasswordPlain      string     `json:"password_plain"`
	MustChangePassword bool       `json:"must_change_password"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Public is the wire shape of a user, with credentials stripped.
type Public struct {
	Username           string     `json:"username"`
	Name               string     `json:"name"`
	Position           string     `json:"position"`
	Role               string     `json:"role"`
	MustChangePassword bool       `json:"must_change_password"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
}

// Store reads and writes the user file. All mutating operations
// rewrite the whole file atomically.
type Store struct {
	mu         sync.Mutex
	path       string
	superadmin string
}

func New(path, superAdminUsername string) *Store {
	return &Store{path: path, superadmin: userKey(superAdminUsername)}
}

func userKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func hashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func (s *Store) load() (map[string]User, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}
	var users map[string]User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("parse user file %s: %w", s.path, err)
	}
	return users, nil
}

func (s *Store) save(users map[string]User) error {
	raw, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write user file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace user file: %w", err)
	}
	return nil
}

// Role resolves a user's role. The configured superadmin username wins
// over anything the legacy system says about the position.
func (s *Store) Role(u User) string {
	switch {
	case userKey(u.Username) == s.superadmin:
		return RoleSuperAdmin
	case strings.EqualFold(strings.TrimSpace(u.Position), adminPosition):
		return RoleAdmin
	default:
		return RoleUser
	}
}

func (s *Store) public(u User) Public {
	return Public{
		Username:           u.Username,
		Name:               u.Name,
		Position:           u.Position,
		Role:               s.Role(u),
		MustChangePassword: u.MustChangePassword,
		LastLogin:          u.LastLogin,
	}
}

// Verify checks credentials without touching the record; used for
// per-request authorization where stamping a login would be noise.
func (s *Store) Verify(username, password string) (Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return Public{}, err
	}
	u, ok := users[userKey(username)]
	if !ok || u.PasswordHash != hashPassword(password) {
		return Public{}, ErrBadPassword
	}
	return s.public(u), nil
}

// Authenticate checks credentials and stamps the last login on
// success.
func (s *Store) Authenticate(username, password string) (Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return Public{}, err
	}
	u, ok := users[userKey(username)]
	if !ok {
		return Public{}, ErrBadPassword
	}
	if u.PasswordHash != hashPassword(password) {
		return Public{}, ErrBadPassword
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	users[userKey(username)] = u
	if err := s.save(users); err != nil {
		return Public{}, err
	}
	return s.public(u), nil
}

func (s *Store) Create(username, name, position, password string, mustChange bool) (Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(username)
	if key == "" {
		return Public{}, fmt.Errorf("username is empty")
	}
	users, err := s.load()
	if err != nil {
		return Public{}, err
	}
	if _, ok := users[key]; ok {
		return Public{}, fmt.Errorf("%w: %s", ErrExists, username)
	}
	u := User{
		Username:           strings.TrimSpace(username),
		Name:               name,
		Position:           position,
		PasswordHash:       hashPassword(password),
		PasswordPlain:      password,
		MustChangePassword: mustChange,
		CreatedAt:          time.Now().UTC(),
	}
	users[key] = u
	if err := s.save(users); err != nil {
		return Public{}, err
	}
	return s.public(u), nil
}

// Update changes profile fields only. Password changes go through
// ChangePassword or SetPasswordAdmin.
func (s *Store) Update(username, name, position string) (Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return Public{}, err
	}
	key := userKey(username)
	u, ok := users[key]
	if !ok {
		return Public{}, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if name != "" {
		u.Name = name
	}
	if position != "" {
		u.Position = position
	}
	users[key] = u
	if err := s.save(users); err != nil {
		return Public{}, err
	}
	return s.public(u), nil
}

func (s *Store) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}
	key := userKey(username)
	if _, ok := users[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	delete(users, key)
	return s.save(users)
}

func (s *Store) Get(username string) (Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return Public{}, err
	}
	u, ok := users[userKey(username)]
	if !ok {
		return Public{}, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	return s.public(u), nil
}

func (s *Store) ListAll() ([]Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Public, 0, len(users))
	for _, u := range users {
		out = append(out, s.public(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// ChangePassword is the self-service path; it verifies the current
// password and clears the must-change flag.
func (s *Store) ChangePassword(username, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}
	key := userKey(username)
	u, ok := users[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if u.PasswordHash != hashPassword(current) {
		return ErrBadPassword
	}
	u.PasswordHash = hashPassword(next)
	u.PasswordPlain = next
	u.MustChangePassword = false
	users[key] = u
	return s.save(users)
}

// SetPasswordAdmin resets a password without knowing the current one
// and forces the user to change it at next login.
func (s *Store) SetPasswordAdmin(username, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}
	key := userKey(username)
	u, ok := users[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	u.PasswordHash = hashPassword(next)
	u.PasswordPlain = next
	u.MustChangePassword = true
	users[key] = u
	return s.save(users)
}

// RevealPassword returns the stored plaintext. Only a SUPERADMIN
// caller may use it; everyone else gets ErrForbidden regardless of
// whether the target exists.
func (s *Store) RevealPassword(callerRole, username string) (string, error) {
	if callerRole != RoleSuperAdmin {
		return "", ErrForbidden
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return "", err
	}
	u, ok := users[userKey(username)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	return u.PasswordPlain, nil
}

// Upsert merges a user scraped from the legacy system. Existing local
// credentials are kept; only profile fields coming from the scrape are
// refreshed. Returns whether the entry was created.
func (s *Store) Upsert(username, name, position, initialPassword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return false, err
	}
	key := userKey(username)
	if key == "" {
		return false, fmt.Errorf("username is empty")
	}
	if u, ok := users[key]; ok {
		if name != "" {
			u.Name = name
		}
		if position != "" {
			u.Position = position
		}
		users[key] = u
		return false, s.save(users)
	}
	users[key] = User{
		Username:           strings.TrimSpace(username),
		Name:               name,
		Position:           position,
		PasswordHash:       hashPassword(initialPassword),
		PasswordPlain:      initialPassword,
		MustChangePassword: true,
		CreatedAt:          time.Now().UTC(),
	}
	return true, s.save(users)
}
