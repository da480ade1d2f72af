// Package chat owns the interactive conversation: per-thread sessions and the
// credit-gated turn submission that forwards history to the model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/ledger"
	"github.com/Squirrel-Richard/myanus-platform/internal/llm"
	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
)

// TurnCost is the flat price of one chat turn.
const TurnCost = 1

// DefaultModel is selected for new sessions.
const DefaultModel = "gpt-4o-mini"

// AllowedModels are the models a session may switch to.
var AllowedModels = []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo"}

// SystemPrompt frames every conversation.
const SystemPrompt = `You are an autonomous AI agent that gets real work done.
When asked to build something, produce complete, working code rather than outlines.
When asked to research, give concrete findings and sources.
Be direct, be thorough and finish the task.`

var (
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownModel        = errors.New("unknown model")
	ErrTurnInProgress      = errors.New("a turn is already in progress for this thread")
	// ErrModelUnavailable wraps any failure of the model call.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Model completes a conversation.
type Model interface {
	Complete(ctx context.Context, model string, turns []models.Turn) (string, error)
}

type configurable interface {
	Configured() bool
}

// Reply is the outcome of a turn. Credits is the balance after the turn, nil
// when credits are disabled or the balance could not be read.
type Reply struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Credits *int   `json:"credits,omitempty"`
	Turns   int    `json:"turns"`
	Warning string `json:"warning,omitempty"`
}

type Service struct {
	store   *Store
	ledger  ledger.Service
	model   Model
	metrics *metrics.Recorder
	logger  *slog.Logger
}

func NewService(store *Store, l ledger.Service, model Model, rec *metrics.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ledger: l, model: model, metrics: rec, logger: logger}
}

// Submit runs one turn. The credit is taken before the model is called and
// returned if the call fails, so concurrent turns can never spend more than
// the balance.
func (s *Service) Submit(ctx context.Context, profile *models.Profile, threadID, prompt string) (*Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if c, ok := s.model.(configurable); ok && !c.Configured() {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, llm.ErrNotConfigured)
	}
	if s.ledger.Enabled() && profile.Credits < TurnCost {
		s.metrics.ChatTurn("insufficient_credits")
		return nil, ErrInsufficientCredits
	}

	sess, err := s.store.Get(profile.ID, threadID)
	if err != nil {
		return nil, err
	}
	if !sess.turnMu.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer sess.turnMu.Unlock()

	reply := &Reply{Model: sess.Model()}

	charged, err := s.ledger.Deduct(ctx, profile.ID, TurnCost, models.CreditActionChat)
	switch {
	case err != nil:
		s.metrics.CreditDeduction("error")
		s.logger.Warn("credit deduction failed, turn proceeds uncharged", "profile_id", profile.ID, "error", err)
		reply.Warning = "credits could not be updated"
	case !charged:
		s.metrics.CreditDeduction("insufficient")
		s.metrics.ChatTurn("insufficient_credits")
		return nil, ErrInsufficientCredits
	default:
		s.metrics.CreditDeduction("ok")
	}

	userTurn := models.Turn{Role: models.RoleUser, Content: prompt}
	history := sess.Turns()
	msgs := make([]models.Turn, 0, len(history)+2)
	msgs = append(msgs, models.Turn{Role: models.RoleSystem, Content: SystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, userTurn)

	content, err := s.model.Complete(ctx, reply.Model, msgs)
	if err != nil {
		s.metrics.ChatTurn("model_error")
		if charged && s.ledger.Enabled() {
			if rerr := s.ledger.Refund(context.WithoutCancel(ctx), profile.ID, TurnCost, models.CreditActionRefund); rerr != nil {
				s.logger.Error("refund after model failure", "profile_id", profile.ID, "error", rerr)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	reply.Content = content
	reply.Turns = sess.append(userTurn, models.Turn{Role: models.RoleAssistant, Content: content})
	s.metrics.ChatTurn("ok")

	if s.ledger.Enabled() {
		if bal, err := s.ledger.Balance(ctx, profile.ID); err == nil {
			reply.Credits = &bal
		} else {
			s.logger.Warn("read balance after turn", "profile_id", profile.ID, "error", err)
		}
	}
	return reply, nil
}

// History returns the turns of a thread in submission order.
func (s *Service) History(profileID uuid.UUID, threadID string) []models.Turn {
	sess, ok := s.store.Lookup(profileID, threadID)
	if !ok {
		return []models.Turn{}
	}
	return sess.Turns()
}

// SetModel selects the model used for subsequent turns of a thread.
func (s *Service) SetModel(profileID uuid.UUID, threadID, model string) error {
	if !slices.Contains(AllowedModels, model) {
		return ErrUnknownModel
	}
	sess, err := s.store.Get(profileID, threadID)
	if err != nil {
		return err
	}
	sess.setModel(model)
	return nil
}

// DefaultModel is the model new threads start with.
func (s *Service) DefaultModel() string { return s.store.DefaultModel() }

func (s *Service) Model(profileID uuid.UUID, threadID string) string {
	sess, ok := s.store.Lookup(profileID, threadID)
	if !ok {
		return s.store.DefaultModel()
	}
	return sess.Model()
}

func (s *Service) Clear(profileID uuid.UUID, threadID string) {
	s.store.Clear(profileID, threadID)
}

// ClearAll drops every session of the profile.
func (s *Service) ClearAll(profileID uuid.UUID) int {
	return s.store.ClearAll(profileID)
}

func (s *Service) Threads(profileID uuid.UUID) []string {
	return s.store.Threads(profileID)
}
