package app

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"wildwatch/internal/usertoken"
	"wildwatch/pkg/auth"
	"wildwatch/pkg/domain"
	"wildwatch/pkg/store"
)

// Config holds the collaborators of the core application.
type Config struct {
	Store     store.Store
	Tokens    *usertoken.Service
	Analyzer  Analyzer
	Publisher ArtifactPublisher
}

// App wires identity, token and record logic on top of the store.
type App struct {
	store     store.Store
	tokens    *usertoken.Service
	analyzer  Analyzer
	publisher ArtifactPublisher
	now       func() time.Time
}

// New constructs the application. Analyzer and Publisher may be nil, in
// which case Upload reports ErrPipelineUnavailable.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token service is required")
	}
	return &App{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		analyzer:  cfg.Analyzer,
		publisher: cfg.Publisher,
		now:       time.Now,
	}, nil
}

// Register creates an identity with a bcrypt hash and issues a token.
// An empty role means user.
func (a *App) Register(email, password string, role domain.UserRole) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if !validEmail(email) {
		return domain.User{}, "", ErrInvalidEmail
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return domain.User{}, "", ErrInvalidRole
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrDuplicateIdentity
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := a.createUser(email, passwordHash, role)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Authenticate checks credentials and issues a token.
func (a *App) Authenticate(email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		// Same bcrypt cost as a real mismatch.
		auth.BurnCheck(password)
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// VerifyToken validates a bearer token.
func (a *App) VerifyToken(token string) (usertoken.Claims, error) {
	return a.tokens.Verify(token)
}

// JWKS returns the public token verification keys.
func (a *App) JWKS() []usertoken.JWK {
	return a.tokens.JWKS()
}

// Profile is the public view of the caller's identity.
type Profile struct {
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName"`
	Role        domain.UserRole `json:"role"`
}

// Profile returns the caller's identity. The display name falls back to the
// local part of the email.
func (a *App) Profile(userID string) (Profile, error) {
	user, err := a.userByID(userID)
	if err != nil {
		return Profile{}, err
	}
	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(user.Email, "@")
	}
	return Profile{Email: user.Email, DisplayName: name, Role: user.Role}, nil
}

// UpdateAccount changes the caller's email and optionally the password.
// The current password is always required.
func (a *App) UpdateAccount(userID, email, currentPassword, newPassword string) (domain.User, error) {
	if currentPassword == "" {
		return domain.User{}, ErrCurrentPasswordRequired
	}
	user, err := a.userByID(userID)
	if err != nil {
		return domain.User{}, err
	}
	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return domain.User{}, ErrCurrentPasswordMismatch
	}
	if email = normalizeEmail(email); email != "" && email != user.Email {
		if !validEmail(email) {
			return domain.User{}, ErrInvalidEmail
		}
		if err := a.ensureEmailFree(email, user.ID); err != nil {
			return domain.User{}, err
		}
		user.Email = email
	}
	if newPassword != "" {
		if err := auth.ValidatePassword(newPassword); err != nil {
			return domain.User{}, err
		}
		hash, err := auth.HashPassword(newPassword)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	return a.saveUser(user)
}

// ListUsers returns every identity.
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// UserUpdate lists the fields an admin may change; nil means unchanged.
type UserUpdate struct {
	Email       *string
	DisplayName *string
	Role        *domain.UserRole
}

// AdminUpdateUser applies an admin edit. Admins cannot change their own role.
func (a *App) AdminUpdateUser(actorID, userID string, upd UserUpdate) (domain.User, error) {
	target, err := a.userByID(userID)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return domain.User{}, ErrInvalidRole
		}
		if target.ID == actorID && *upd.Role != target.Role {
			return domain.User{}, ErrForbiddenSelfChange
		}
		target.Role = *upd.Role
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if !validEmail(email) {
			return domain.User{}, ErrInvalidEmail
		}
		if email != target.Email {
			if err := a.ensureEmailFree(email, target.ID); err != nil {
				return domain.User{}, err
			}
			target.Email = email
		}
	}
	if upd.DisplayName != nil {
		target.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	return a.saveUser(target)
}

// DeleteUser removes an identity. Admins cannot delete themselves.
func (a *App) DeleteUser(actorID, userID string) error {
	if userID == actorID {
		return ErrCannotDeleteSelf
	}
	ok, err := a.store.DeleteUser(userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// Seed account emails.
const (
	SeedAdminEmail = "admin@example.com"
	SeedUserEmail  = "user@example.com"
)

// SeedUsers creates the default admin and user accounts when missing.
// It reports how many accounts were created.
func (a *App) SeedUsers(adminPassword, userPassword string) (int, error) {
	seeds := []struct {
		email    string
		password string
		role     domain.UserRole
	}{
		{SeedAdminEmail, adminPassword, domain.RoleAdmin},
		{SeedUserEmail, userPassword, domain.RoleUser},
	}
	created := 0
	for _, s := range seeds {
		exists, err := a.store.HasUserEmail(s.email)
		if err != nil {
			return created, fmt.Errorf("check seed %s: %w", s.email, err)
		}
		if exists {
			continue
		}
		if s.password == "" {
			return created, fmt.Errorf("seed %s: password required", s.email)
		}
		hash, err := auth.HashPassword(s.password)
		if err != nil {
			return created, fmt.Errorf("hash seed password: %w", err)
		}
		if _, err := a.createUser(s.email, hash, s.role); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (a *App) userByID(userID string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return user, nil
}

func (a *App) ensureEmailFree(email, ownerID string) error {
	existing, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if ok && existing.ID != ownerID {
		return ErrDuplicateIdentity
	}
	return nil
}

func (a *App) saveUser(user domain.User) (domain.User, error) {
	user.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrDuplicateIdentity
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (a *App) createUser(email, passwordHash string, role domain.UserRole) (domain.User, error) {
	now := a.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrDuplicateIdentity
		}
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
