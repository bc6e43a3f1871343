package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/chaosroom/internal/dependencies/clock"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password too short")
)

// Provisioner creates the player record the first time an identity signs in
type Provisioner interface {
	EnsurePlayer(ctx context.Context, id model.PlayerID, email, displayName string, role model.Role) (*model.PlayerRecord, bool, error)
}

// Session represents an authenticated session
type Session struct {
	Token     string
	PlayerID  model.PlayerID
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Service handles credentials and session management. It only proves who the
// caller is; what they may do is decided by the role on their player record.
type Service struct {
	storage     storage.Store
	provisioner Provisioner
	clock       clock.Clock
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	cfg Config
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration   time.Duration
	MinPasswordLength int
	BcryptCost        int
	// SuperAdminEmails are granted superadmin when their record is first created
	SuperAdminEmails []string
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration:   24 * time.Hour,
		MinPasswordLength: 6,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// New creates a new AuthService
func New(storage storage.Store, provisioner Provisioner, clock clock.Clock, logger *slog.Logger, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = def.SessionDuration
	}
	if cfg.MinPasswordLength == 0 {
		cfg.MinPasswordLength = def.MinPasswordLength
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	return &Service{
		storage:     storage,
		provisioner: provisioner,
		clock:       clock,
		logger:      logger.With(slog.String("component", "auth")),
		sessions:    make(map[string]*Session),
		cfg:         cfg,
	}
}

// Register creates credentials and the player record, then signs in.
// wantsManager files a staff request that a superadmin must approve.
func (s *Service) Register(ctx context.Context, email, password, displayName string, wantsManager bool) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < s.cfg.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	// Check if email exists
	_, err = s.storage.GetCredentialByEmail(ctx, email)
	if err == nil {
		return nil, model.ErrEmailExists
	}
	if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	cred := &model.Credential{
		PlayerID:     model.PlayerID(uuid.NewString()),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	// SaveCredential is the uniqueness check that wins a concurrent registration race
	if err := s.storage.SaveCredential(ctx, cred); err != nil {
		return nil, err
	}

	role := s.initialRole(email, wantsManager)
	if _, _, err := s.provisioner.EnsurePlayer(ctx, cred.PlayerID, email, displayName, role); err != nil {
		return nil, err
	}

	s.logger.Info("player registered",
		slog.String("player_id", string(cred.PlayerID)),
		slog.String("role", string(role)),
	)
	return s.createSession(cred), nil
}

// Login authenticates by email and password and creates a session
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.storage.GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// The record may be missing if registration failed after saving credentials
	if _, _, err := s.provisioner.EnsurePlayer(ctx, cred.PlayerID, cred.Email, "", s.initialRole(cred.Email, false)); err != nil {
		return nil, err
	}

	return s.createSession(cred), nil
}

// ValidateSession checks if a session token is valid and returns the session
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidSession
	}

	if s.clock.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrInvalidSession
	}

	return session, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CleanExpiredSessions removes expired sessions and reports how many were dropped
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *Service) initialRole(email string, wantsManager bool) model.Role {
	for _, admin := range s.cfg.SuperAdminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return model.RoleSuperAdmin
		}
	}
	if wantsManager {
		return model.RolePendingManager
	}
	return model.RoleParticipant
}

// createSession creates a new session for a credential
func (s *Service) createSession(cred *model.Credential) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:     s.generateToken("sess_"),
		PlayerID:  cred.PlayerID,
		Email:     cred.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// generateToken generates a random token with a prefix
func (s *Service) generateToken(prefix string) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return prefix + base64.RawURLEncoding.EncodeToString(b)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
