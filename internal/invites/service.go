// Package invites implements the invite ledger: validating and redeeming
// invite codes that gate account creation.
package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Squirrel-Richard/myanus-platform/internal/database"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
	"github.com/Squirrel-Richard/myanus-platform/internal/repository"
)

var (
	// ErrInvalidInvite is returned when the code does not exist or has no uses left.
	ErrInvalidInvite = errors.New("invalid or expired invite code")
	// ErrMissingFields is returned when code, email or display name is blank.
	ErrMissingFields = errors.New("invite code, email and full name are required")
	// ErrEmailTaken is returned when a profile with the email already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidMaxUses is returned when seeding an invite with max uses < 1.
	ErrInvalidMaxUses = errors.New("max uses must be at least 1")
)

// InviteStore is the persistence the ledger needs. ConsumeTx must be a single
// conditional update guarded by current_uses < max_uses.
type InviteStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, inv *models.Invite) error
	ConsumeTx(ctx context.Context, tx pgx.Tx, code string) (*models.Invite, error)
	MarkUsedByTx(ctx context.Context, tx pgx.Tx, code string, profileID uuid.UUID) error
	ListByCreator(ctx context.Context, profileID uuid.UUID) ([]*models.Invite, error)
}

// ProfileCreator inserts the profile created by a redemption.
type ProfileCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error
}

type Service struct {
	invites  InviteStore
	profiles ProfileCreator
	timeout  time.Duration
}

// NewService builds the ledger. timeout bounds the whole redemption
// transaction, from Begin to Commit.
func NewService(invites InviteStore, profiles ProfileCreator, timeout time.Duration) *Service {
	return &Service{invites: invites, profiles: profiles, timeout: timeout}
}

// Redeem consumes one use of code and creates a profile with the starting
// balance. The counter increment, profile insert and used_by update commit
// or roll back together.
func (s *Service) Redeem(ctx context.Context, code, email, displayName string) (*models.Profile, error) {
	code = strings.TrimSpace(code)
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	if code == "" || email == "" || displayName == "" {
		return nil, ErrMissingFields
	}

	ctx, cancel := database.WithStoreTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.invites.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin redemption: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.invites.ConsumeTx(ctx, tx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidInvite
		}
		return nil, fmt.Errorf("consume invite: %w", err)
	}

	profile := &models.Profile{
		Email:          email,
		FullName:       displayName,
		Credits:        models.StartingCredits,
		InviteCodeUsed: code,
	}
	if err := s.profiles.CreateTx(ctx, tx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if err := s.invites.MarkUsedByTx(ctx, tx, code, profile.ID); err != nil {
		return nil, fmt.Errorf("mark invite used: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit redemption: %w", err)
	}
	return profile, nil
}

// ListByCreator returns the invites a profile has handed out.
func (s *Service) ListByCreator(ctx context.Context, profileID uuid.UUID) ([]*models.Invite, error) {
	return s.invites.ListByCreator(ctx, profileID)
}

// Seed creates a founder invite that no profile owns.
func (s *Service) Seed(ctx context.Context, code string, maxUses int) (*models.Invite, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingFields
	}
	if maxUses < 1 {
		return nil, ErrInvalidMaxUses
	}
	inv := &models.Invite{Code: code, MaxUses: maxUses}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("seed invite: %w", err)
	}
	return inv, nil
}
