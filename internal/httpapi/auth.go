package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/service"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

const tokenIssuer = "kedaipos"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	now      func() time.Time
}

// UserStore is the slice of the repository that accounts need.
type UserStore interface {
	CreateBusiness(ctx context.Context, business domain.Business, mainBranch domain.Branch, owner domain.UserAccount) error
	ListBranches(ctx context.Context, businessID string) ([]domain.Branch, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role       string `json:"role"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	BusinessID string `json:"businessId"`
	BranchID   string `json:"branchId"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      time.Now,
	}
}

// Register creates a business with its main branch and owner account, then
// logs the owner in.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.LoginResponse, error) {
	businessName := strings.TrimSpace(req.BusinessName)
	if businessName == "" {
		return domain.LoginResponse{}, fmt.Errorf("%w: business name is required", store.ErrValidation)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if err := checkPassword(req.Password); err != nil {
		return domain.LoginResponse{}, err
	}
	if req.Password != req.ConfirmPassword {
		return domain.LoginResponse{}, fmt.Errorf("%w: passwords do not match", store.ErrValidation)
	}
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := a.now().UTC()
	ownerID := domain.ActorIDFromEmail(email)
	business := domain.Business{ID: xid.New("biz"), Name: businessName, OwnerID: ownerID, CreatedAt: now}
	branch := domain.Branch{ID: xid.New("br"), BusinessID: business.ID, Name: "Main", Active: true, CreatedAt: now}
	owner := domain.UserAccount{
		ID:           ownerID,
		Email:        email,
		DisplayName:  displayName(req.DisplayName, email),
		PasswordHash: passwordHash,
		Role:         domain.RoleOwner,
		BusinessID:   business.ID,
		BranchID:     branch.ID,
		Active:       true,
		CreatedAt:    now,
	}
	if err := a.users.CreateBusiness(ctx, business, branch, owner); err != nil {
		return domain.LoginResponse{}, err
	}
	return a.issue(owner)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, ErrAccountInactive
	}
	return a.issue(*user)
}

// CreateEmployee adds a cashier account pinned to one branch of the owner's
// business.
func (a *AuthManager) CreateEmployee(ctx context.Context, owner domain.Actor, req domain.EmployeeCreateRequest) (domain.UserAccount, error) {
	if owner.Role != domain.RoleOwner {
		return domain.UserAccount{}, fmt.Errorf("%w: owner role required", service.ErrForbidden)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.UserAccount{}, err
	}
	if err := checkPassword(req.Password); err != nil {
		return domain.UserAccount{}, err
	}

	branchID := strings.TrimSpace(req.BranchID)
	if branchID == "" {
		branchID = owner.BranchID
	}
	branches, err := a.users.ListBranches(ctx, owner.BusinessID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	known := false
	for _, b := range branches {
		if b.ID == branchID {
			known = true
			break
		}
	}
	if !known {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown branch %q", store.ErrValidation, branchID)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		ID:           domain.ActorIDFromEmail(email),
		Email:        email,
		DisplayName:  displayName(req.DisplayName, email),
		PasswordHash: passwordHash,
		Role:         domain.RoleEmployee,
		BusinessID:   owner.BusinessID,
		BranchID:     branchID,
		Active:       true,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}
	return user, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.BusinessID == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{
		ID:         sub,
		Email:      claims.Email,
		Name:       claims.Name,
		Role:       claims.Role,
		BusinessID: claims.BusinessID,
		BranchID:   claims.BranchID,
	}, nil
}

func (a *AuthManager) issue(user domain.UserAccount) (domain.LoginResponse, error) {
	now := a.now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role:       user.Role,
		Email:      user.Email,
		Name:       user.DisplayName,
		BusinessID: user.BusinessID,
		BranchID:   user.BranchID,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		ActorID:     user.ID,
		Role:        user.Role,
		BusinessID:  user.BusinessID,
		BranchID:    user.BranchID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: a valid email is required", store.ErrValidation)
	}
	return email, nil
}

func checkPassword(password string) error {
	if strings.TrimSpace(password) == "" || len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	return nil
}

func displayName(name string, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return email[:strings.IndexByte(email, '@')]
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
