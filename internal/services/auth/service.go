// Package auth implements passwordless login: single-use magic links
// delivered by email, exchanged for signed JWT sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/permitsync/permitsync/internal/models"
)

// Claims is the JWT payload for an authenticated session.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Mailer delivers the magic link to the user.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// SessionStorage persists issued sessions. GetByToken returns (nil, nil)
// for a token with no session.
type SessionStorage interface {
	Create(ctx context.Context, session *models.AuthSession) error
	GetByToken(ctx context.Context, token string) (*models.AuthSession, error)
	Delete(ctx context.Context, token string) error
}

// Service issues and verifies magic links and mints session tokens.
type Service struct {
	tokens       TokenStore
	sessions     SessionStorage
	mailer       Mailer
	logger       *slog.Logger
	secret       []byte
	baseURL      string
	magicLinkTTL time.Duration
	sessionTTL   time.Duration
}

func NewService(tokens TokenStore, sessions SessionStorage, mailer Mailer, logger *slog.Logger,
	secret, baseURL string, magicLinkTTL, sessionTTL time.Duration) *Service {
	return &Service{
		tokens:       tokens,
		sessions:     sessions,
		mailer:       mailer,
		logger:       logger,
		secret:       []byte(secret),
		baseURL:      baseURL,
		magicLinkTTL: magicLinkTTL,
		sessionTTL:   sessionTTL,
	}
}

// RequestMagicLink generates a single-use token for email and mails the link.
// Only the token's digest is stored, so a store dump cannot be replayed.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	if err := s.tokens.Save(ctx, digest(token), email, s.magicLinkTTL); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", s.baseURL, token)
	if err := s.mailer.SendMagicLink(ctx, email, link); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}

	s.logger.Info("magic link issued", "email", email, "ttl", s.magicLinkTTL)
	return nil
}

// VerifyMagicLink consumes token and, if valid, mints a JWT session. The
// token is burned even if session persistence later fails.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (string, *models.AuthSession, error) {
	email, err := s.tokens.Consume(ctx, digest(token))
	if err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionTTL)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}

	session := &models.AuthSession{
		UserEmail: email,
		Token:     signed,
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("persist session: %w", err)
	}

	s.logger.Info("session created", "email", email, "expires_at", expiresAt)
	return signed, session, nil
}

// Logout revokes the session holding token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// ErrSessionRevoked means the JWT verified but its session was logged out.
var ErrSessionRevoked = errors.New("session revoked")

// Authenticate validates a session JWT and confirms the session has not
// been revoked. Logout takes effect immediately, not at JWT expiry.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if session == nil {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

// ParseToken validates a session JWT and returns its claims.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
