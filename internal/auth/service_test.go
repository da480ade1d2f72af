package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Squirrel-Richard/myanus-platform/internal/invites"
	"github.com/Squirrel-Richard/myanus-platform/internal/models"
	"github.com/Squirrel-Richard/myanus-platform/internal/repository"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// memAccounts is both the profile reader and the redeemer: one code with a
// fixed number of uses.
type memAccounts struct {
	mu        sync.Mutex
	byEmail   map[string]*models.Profile
	code      string
	usesLeft  int
	lookupErr error
	// hideOnce makes the first lookup miss, simulating a concurrent join.
	hideOnce bool
}

func newMemAccounts(code string, uses int) *memAccounts {
	return &memAccounts{byEmail: map[string]*models.Profile{}, code: code, usesLeft: uses}
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if m.hideOnce {
		m.hideOnce = false
		return nil, repository.ErrNotFound
	}
	p, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *memAccounts) Redeem(_ context.Context, code, email, name string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code != m.code || m.usesLeft == 0 {
		return nil, invites.ErrInvalidInvite
	}
	if _, ok := m.byEmail[email]; ok {
		return nil, invites.ErrEmailTaken
	}
	m.usesLeft--
	p := &models.Profile{ID: uuid.New(), Email: email, FullName: name, Credits: models.StartingCredits, InviteCodeUsed: code}
	m.byEmail[email] = p
	return p, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestJoin_NewThenWelcomeBack(t *testing.T) {
	acc := newMemAccounts("ABC-1", 1)
	svc := NewService(acc, acc, "test-secret")
	ctx := context.Background()

	res, err := svc.Join(ctx, "ABC-1", "New@Example.com ", "New User")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !res.Created || res.Profile.Credits != 1000 || res.Profile.Email != "new@example.com" {
		t.Fatalf("unexpected result: %+v %+v", res, res.Profile)
	}

	// the code is exhausted, but an existing email does not need it
	again, err := svc.Join(ctx, "ABC-1", "new@example.com", "New User")
	if err != nil {
		t.Fatalf("welcome back: %v", err)
	}
	if again.Created || again.Profile.ID != res.Profile.ID {
		t.Errorf("expected the existing profile, got %+v", again)
	}
	if acc.usesLeft != 0 {
		t.Errorf("welcome back must not consume an invite")
	}

	if _, err := svc.Join(ctx, "ABC-1", "other@example.com", "Other"); !errors.Is(err, invites.ErrInvalidInvite) {
		t.Errorf("exhausted code: expected ErrInvalidInvite, got %v", err)
	}
}

func TestJoin_MissingFields(t *testing.T) {
	acc := newMemAccounts("X", 1)
	svc := NewService(acc, acc, "s")

	cases := [][3]string{{"", "a@x.com", "A"}, {"X", " ", "A"}, {"X", "a@x.com", ""}}
	for _, c := range cases {
		if _, err := svc.Join(context.Background(), c[0], c[1], c[2]); !errors.Is(err, invites.ErrMissingFields) {
			t.Errorf("%q: expected ErrMissingFields, got %v", c, err)
		}
	}
	if acc.usesLeft != 1 {
		t.Error("validation failures must not consume the invite")
	}
}

func TestJoin_NoStore(t *testing.T) {
	svc := NewService(nil, nil, "s")
	if _, err := svc.Join(context.Background(), "X", "a@x.com", "A"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestJoin_LookupFailureSurfaces(t *testing.T) {
	acc := newMemAccounts("X", 1)
	acc.lookupErr = errors.New("timeout")
	svc := NewService(acc, acc, "s")

	if _, err := svc.Join(context.Background(), "X", "a@x.com", "A"); err == nil {
		t.Fatal("expected error")
	}
	if acc.usesLeft != 1 {
		t.Error("a failed lookup must not consume the invite")
	}
}

func TestJoin_ConcurrentJoinSameEmail(t *testing.T) {
	acc := newMemAccounts("X", 5)
	svc := NewService(acc, acc, "s")
	existing, err := acc.Redeem(context.Background(), "X", "a@x.com", "A")
	if err != nil {
		t.Fatal(err)
	}
	acc.hideOnce = true

	res, err := svc.Join(context.Background(), "X", "a@x.com", "A")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Created || res.Profile.ID != existing.ID {
		t.Errorf("expected welcome back for the racing profile, got %+v", res)
	}
}

func TestToken_RoundTrip(t *testing.T) {
	svc := NewService(nil, nil, "secret")
	id := uuid.New()

	tok, err := svc.IssueToken(id)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	got, err := svc.ValidateToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got != id {
		t.Errorf("subject: got %s, want %s", got, id)
	}
}

func TestToken_Rejects(t *testing.T) {
	svc := NewService(nil, nil, "secret")
	id := uuid.New()

	other := NewService(nil, nil, "different")
	forged, _ := other.IssueToken(id)
	if _, err := svc.ValidateToken(context.Background(), forged); err == nil {
		t.Error("token signed with another secret must be rejected")
	}

	expired := NewService(nil, nil, "secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * TokenTTL) }
	old, _ := expired.IssueToken(id)
	if _, err := svc.ValidateToken(context.Background(), old); err == nil {
		t.Error("expired token must be rejected")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: id.String()})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := svc.ValidateToken(context.Background(), unsigned); err == nil {
		t.Error("unsigned token must be rejected")
	}

	if _, err := svc.ValidateToken(context.Background(), "garbage"); err == nil {
		t.Error("garbage must be rejected")
	}
}

func TestToken_DevSecretOnlyWhenUnset(t *testing.T) {
	dev := NewService(nil, nil, "")
	prod := NewService(nil, nil, "operator-secret")
	id := uuid.New()

	tok, err := dev.IssueToken(id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewService(nil, nil, DevSecret).ValidateToken(context.Background(), tok); err != nil {
		t.Errorf("unset secret should sign with DevSecret: %v", err)
	}
	if _, err := prod.ValidateToken(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("a configured secret must reject dev-signed tokens, got %v", err)
	}
}
