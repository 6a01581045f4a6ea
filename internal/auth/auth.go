package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roominfo/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	loginFailedMessage = "Login failed"
)

var (
	ErrUserExists = errors.New("user already exists")
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

type UserCredentials struct {
	models.User
	PasswordHash string `json:"passwordHash"`
}

type credentialStore interface {
	GetCredentialsByName(userName string) (UserCredentials, error)
	UpsertCredentials(credentials UserCredentials) error
}

// loginAttempts counts consecutive failed logins to throttle brute force attacks.
type loginAttempts struct {
	Failed      int64
	LastAttempt int64
}

type Config struct {
	TokenExpiry time.Duration `json:"tokenExpiry"`
	HashCost    int           `json:"hashCost"`
}

type AuthService struct {
	Config
	store      credentialStore
	attempts   *geche.Locker[string, loginAttempts]
	liveTokens geche.Geche[string, string]
	now        func() time.Time
}

func (c *Config) Validate() error {
	if c.TokenExpiry < 0 {
		return errors.New("token expiry must not be negative")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	if c.HashCost == 0 {
		c.HashCost = bcrypt.DefaultCost
	}
	if c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("hash cost %d out of range", c.HashCost)
	}
	return nil
}

func NewAuthService(ctx context.Context, config Config, store credentialStore) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:     config,
		store:      store,
		attempts:   geche.NewLocker[string, loginAttempts](geche.NewMapCache[string, loginAttempts]()),
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}, nil
}

// AddUser creates an active user with a random password and returns the password.
func (as *AuthService) AddUser(userName, name string) (models.User, string, error) {
	if _, err := as.store.GetCredentialsByName(userName); err == nil {
		return models.User{}, "", ErrUserExists
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, "", err
	}

	password, err := randomString(12)
	if err != nil {
		return models.User{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), as.HashCost)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	if name == "" {
		name = userName
	}
	creds := UserCredentials{
		User: models.User{
			ID:       uuid.NewString(),
			UserName: userName,
			Name:     name,
			Roles:    []string{"user"},
			Status:   models.UserStatusActive,
		},
		PasswordHash: string(hash),
	}
	if err := as.store.UpsertCredentials(creds); err != nil {
		return models.User{}, "", err
	}

	return creds.User, password, nil
}

func (as *AuthService) Login(req LoginRequest) (LoginResponse, string) {
	now := as.now()
	tx := as.attempts.Lock()
	defer tx.Unlock()

	attempts, _ := tx.Get(req.Username)
	if attempts.Failed > 3 {
		nextAttempt := attempts.LastAttempt + 30*(attempts.Failed*attempts.Failed)
		if now.Unix() < nextAttempt {
			return LoginResponse{
				Success: false,
				Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", nextAttempt-now.Unix()),
			}, ""
		}
	}

	user, err := as.store.GetCredentialsByName(req.Username)
	if err != nil || user.Status != models.UserStatusActive {
		return LoginResponse{
			Success: false,
			Message: loginFailedMessage,
		}, ""
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		tx.Set(req.Username, loginAttempts{Failed: attempts.Failed + 1, LastAttempt: now.Unix()})
		return LoginResponse{
			Success: false,
			Message: loginFailedMessage,
		}, ""
	}

	token, err := randomString(16)
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return LoginResponse{
			Success: false,
			Message: "internal error",
		}, ""
	}

	as.liveTokens.Set(token, user.ID)
	tx.Set(req.Username, loginAttempts{LastAttempt: now.Unix()})

	return LoginResponse{
		Success:     true,
		Token:       token,
		TokenExpiry: now.Unix() + int64(as.TokenExpiry.Seconds()),
	}, user.ID
}

func (as *AuthService) Logoff(token string) error {
	return as.liveTokens.Del(token)
}

func (as *AuthService) GetUserID(token string) (string, error) {
	return as.liveTokens.Get(token)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
