package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/service"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded(nil)
	return NewAuthManager(testSecret, time.Hour, repo), repo
}

func TestLoginIssuesTokenCarryingActor(t *testing.T) {
	auth, _ := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: memory.SeedCashierEmail, Password: "kasir123"})
	require.NoError(t, err)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{
		ID:         "kasir",
		Email:      memory.SeedCashierEmail,
		Name:       "Demo Cashier",
		Role:       domain.RoleEmployee,
		BusinessID: memory.SeedBusinessID,
		BranchID:   memory.SeedMainBranchID,
	}, actor)
}

func TestLoginRejectsUnknownAndWrongPassword(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Email: "nobody@kedai.test", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(context.Background(), domain.LoginRequest{Email: memory.SeedOwnerEmail, Password: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth, repo := newTestAuth(t)
	hash, err := hashPassword("sleepy1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(context.Background(), domain.UserAccount{
		ID: "sleepy", Email: "sleepy@kedai.test", PasswordHash: hash, Role: domain.RoleEmployee,
		BusinessID: memory.SeedBusinessID, BranchID: memory.SeedMainBranchID, Active: false,
	}))

	_, err = auth.Login(context.Background(), domain.LoginRequest{Email: "sleepy@kedai.test", Password: "sleepy1"})
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestParseTokenRejectsForgedAndExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: memory.SeedOwnerEmail, Password: "owner123"})
	require.NoError(t, err)

	other := NewAuthManager("another-secret-that-is-long-enough", time.Hour, nil)
	_, err = other.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "owner", Issuer: tokenIssuer},
		Role:             domain.RoleOwner,
		BusinessID:       memory.SeedBusinessID,
	})
	raw, err := unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegisterValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.RegisterRequest
	}{
		{"missing business", domain.RegisterRequest{Email: "a@kedai.test", Password: "secret1", ConfirmPassword: "secret1"}},
		{"bad email", domain.RegisterRequest{BusinessName: "X", Email: "not-an-email", Password: "secret1", ConfirmPassword: "secret1"}},
		{"short password", domain.RegisterRequest{BusinessName: "X", Email: "a@kedai.test", Password: "123", ConfirmPassword: "123"}},
		{"mismatch", domain.RegisterRequest{BusinessName: "X", Email: "a@kedai.test", Password: "secret1", ConfirmPassword: "secret9"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Register(ctx, tc.req)
			assert.ErrorIs(t, err, store.ErrValidation)
		})
	}

	_, err := auth.Register(ctx, domain.RegisterRequest{BusinessName: "Dup", Email: memory.SeedCashierEmail, Password: "secret1", ConfirmPassword: "secret1"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestRegisterDerivesOwnerFromEmail(t *testing.T) {
	auth, repo := newTestAuth(t)

	resp, err := auth.Register(context.Background(), domain.RegisterRequest{
		BusinessName: "Toko Maju", Email: "John.Doe+x@Mail.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "john_doe_x", resp.ActorID)

	business, err := repo.GetBusiness(context.Background(), resp.BusinessID)
	require.NoError(t, err)
	assert.Equal(t, "Toko Maju", business.Name)
	assert.Equal(t, "john_doe_x", business.OwnerID)

	user, err := repo.GetUserByEmail(context.Background(), "john.doe+x@mail.com")
	require.NoError(t, err)
	assert.Equal(t, "john.doe+x", user.DisplayName)
	assert.True(t, isPasswordHash(user.PasswordHash))
}

func TestCreateEmployeeRequiresOwner(t *testing.T) {
	auth, _ := newTestAuth(t)
	cashier := domain.Actor{ID: "kasir", Role: domain.RoleEmployee, BusinessID: memory.SeedBusinessID, BranchID: memory.SeedMainBranchID}

	_, err := auth.CreateEmployee(context.Background(), cashier, domain.EmployeeCreateRequest{Email: "x@kedai.test", Password: "secret1"})

	assert.True(t, errors.Is(err, service.ErrForbidden))
}

func TestPasswordHashHelpers(t *testing.T) {
	hash, err := hashPassword("rahasia")
	require.NoError(t, err)
	assert.True(t, isPasswordHash(hash))
	assert.True(t, verifyPassword(hash, "rahasia"))
	assert.False(t, verifyPassword(hash, "salah"))
	assert.False(t, verifyPassword("rahasia", "rahasia"))
}
