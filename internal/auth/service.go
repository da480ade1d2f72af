// Package auth implements the invite gate and session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/invites"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
	"github.com/Squirrel-Richard/myanus-platform/internal/repository"
)

// TokenTTL is how long a session token stays valid.
const TokenTTL = 24 * time.Hour

// DevSecret signs tokens when no secret is configured. Anyone who knows it
// can mint tokens, so it is only fit for local development.
const DevSecret = "supersecretmvp"

var (
	// ErrStoreUnavailable is returned when no account store is configured.
	ErrStoreUnavailable = errors.New("account store not configured")
	ErrInvalidToken     = errors.New("invalid token")
)

// ProfileReader finds existing profiles.
type ProfileReader interface {
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
}

// Redeemer creates a profile by consuming an invite.
type Redeemer interface {
	Redeem(ctx context.Context, code, email, displayName string) (*models.Profile, error)
}

// JoinResult is the outcome of the invite gate. Created is false when an
// existing profile was welcomed back.
type JoinResult struct {
	Profile *models.Profile
	Token   string
	Created bool
}

type Service interface {
	Join(ctx context.Context, code, email, fullName string) (*JoinResult, error)
	IssueToken(profileID uuid.UUID) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type service struct {
	profiles ProfileReader
	redeemer Redeemer
	secret   []byte
	now      func() time.Time
}

// NewService builds the gate. A nil profiles or redeemer means no store is
// configured and Join fails with ErrStoreUnavailable.
func NewService(profiles ProfileReader, redeemer Redeemer, secret string) *service {
	if secret == "" {
		secret = DevSecret
	}
	return &service{profiles: profiles, redeemer: redeemer, secret: []byte(secret), now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

// Join welcomes back an existing email without consuming an invite, and
// otherwise redeems the code for a new profile.
func (s *service) Join(ctx context.Context, code, email, fullName string) (*JoinResult, error) {
	code = strings.TrimSpace(code)
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	if code == "" || email == "" || fullName == "" {
		return nil, invites.ErrMissingFields
	}
	if s.profiles == nil || s.redeemer == nil {
		return nil, ErrStoreUnavailable
	}

	existing, err := s.profiles.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.result(existing, false)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	profile, err := s.redeemer.Redeem(ctx, code, email, fullName)
	if errors.Is(err, invites.ErrEmailTaken) {
		// a concurrent join created the profile first
		if existing, lerr := s.profiles.GetByEmail(ctx, email); lerr == nil {
			return s.result(existing, false)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.result(profile, true)
}

func (s *service) result(p *models.Profile, created bool) (*JoinResult, error) {
	tok, err := s.IssueToken(p.ID)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Profile: p, Token: tok, Created: created}, nil
}

func (s *service) IssueToken(profileID uuid.UUID) (string, error) {
	now := s.now()
	c := jwt.RegisteredClaims{
		Subject:   profileID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	var c jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, err
	}
	if !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
