package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"

	"github.com/MvRens/ha-enever/internal/storage"
)

// Service issues and validates API tokens and enforces role permissions.
type Service struct {
	storage  storage.Storage
	enforcer *casbin.Enforcer
}

func NewService(s storage.Storage) (*Service, error) {
	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	// Admin can do everything
	e.AddPolicy("admin", "*", "*")
	// Viewer can read prices and status
	e.AddPolicy("viewer", "prices", "read")
	e.AddPolicy("viewer", "status", "read")

	return &Service{storage: s, enforcer: e}, nil
}

// CreateToken issues a token with the given role. The raw token is returned
// exactly once; only its hash is stored.
func (s *Service) CreateToken(ctx context.Context, name, role string) (*storage.Token, string, error) {
	if role != "admin" && role != "viewer" {
		return nil, "", errors.New("unknown role: " + role)
	}

	rawToken := uuid.New().String() + uuid.New().String()

	t := storage.Token{
		ID:        uuid.New().String(),
		Name:      name,
		TokenHash: hashToken(rawToken),
		Role:      role,
		CreatedAt: time.Now(),
	}

	if err := s.storage.CreateToken(ctx, t); err != nil {
		return nil, "", err
	}

	return &t, rawToken, nil
}

// ValidateToken resolves a raw token to its stored record.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*storage.Token, error) {
	t, err := s.storage.GetTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("invalid token")
	}

	// Update last used
	go s.storage.UpdateTokenLastUsed(context.Background(), t.ID)

	return t, nil
}

// ListTokens returns all issued tokens.
func (s *Service) ListTokens(ctx context.Context) ([]storage.Token, error) {
	return s.storage.ListTokens(ctx)
}

// RevokeToken deletes a token by ID.
func (s *Service) RevokeToken(ctx context.Context, id string) error {
	return s.storage.DeleteToken(ctx, id)
}

// Enforce checks whether a role may perform act on obj.
func (s *Service) Enforce(role, obj, act string) (bool, error) {
	return s.enforcer.Enforce(role, obj, act)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
