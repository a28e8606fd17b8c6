package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modalku/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users, nil)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	stored, err := users.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "admin123", stored[0].Password)
	assert.True(t, strings.HasPrefix(stored[0].Password, "$2"))
	assert.Equal(t, 1, users.updates)
}

func TestCreateOperatorStoresPasswordHash(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users, nil)

	created, err := manager.CreateOperator(context.Background(), OperatorCreateRequest{Username: " Budi ", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, "budi", created.Username)
	assert.Equal(t, RoleOperator, created.Role)

	saved, ok := users.users["budi"]
	require.True(t, ok)
	assert.NotEqual(t, "pass1234", saved.Password)
	assert.True(t, isPasswordHash(saved.Password))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "BUDI", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, resp.Role)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	hash, err := hashPassword("operator123")
	require.NoError(t, err)
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"retired": {Username: "retired", Password: hash, Role: RoleOperator, Active: false},
	}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users, nil)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "operator123"})
	assert.ErrorIs(t, err, ErrInactiveAccount)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseTokenRoundTripsActor(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore(), nil)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: RoleAdmin}, actor)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore(), nil)
	other := NewAuthManager(context.Background(), "other-secret", time.Hour, legacyAdminStore(), nil)

	foreign, err := other.sign("admin", RoleAdmin, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = manager.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := manager.sign("admin", RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{
		Subject: "admin",
		Issuer:  "modalku",
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = manager.ParseToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
