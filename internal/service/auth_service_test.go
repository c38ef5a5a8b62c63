package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
)

type mockStaffRepo struct {
	users     map[string]*models.StaffUser
	createErr error
	auditLogs []*models.AuditLog
}

func (m *mockStaffRepo) FindByEmail(ctx context.Context, email string) (*models.StaffUser, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, errors.New("not found")
	}
	return user, nil
}

func (m *mockStaffRepo) CreateIfAbsent(ctx context.Context, user *models.StaffUser) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if m.users == nil {
		m.users = make(map[string]*models.StaffUser)
	}
	if _, ok := m.users[user.Email]; ok {
		return false, nil
	}
	user.ID = "staff-1"
	m.users[user.Email] = user
	return true, nil
}

func (m *mockStaffRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func claimsFor(userID string, role models.UserRole, issuer string, exp time.Time) models.JWTClaims {
	return models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(&mockStaffRepo{}, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "identity"})
	future := time.Now().Add(time.Hour)

	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, "secret", claimsFor("u1", models.RoleCollector, "identity", future)))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleCollector, claims.Role)

	tests := []struct {
		name  string
		token string
		want  *appErrors.Error
	}{
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, "other", claimsFor("u1", models.RoleAdmin, "identity", future)), appErrors.ErrUnauthorized},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS384, "secret", claimsFor("u1", models.RoleAdmin, "identity", future)), appErrors.ErrUnauthorized},
		{"expired", signToken(t, jwt.SigningMethodHS256, "secret", claimsFor("u1", models.RoleAdmin, "identity", time.Now().Add(-time.Minute))), appErrors.ErrUnauthorized},
		{"wrong issuer", signToken(t, jwt.SigningMethodHS256, "secret", claimsFor("u1", models.RoleAdmin, "someone-else", future)), appErrors.ErrUnauthorized},
		{"missing user", signToken(t, jwt.SigningMethodHS256, "secret", claimsFor("", models.RoleAdmin, "identity", future)), appErrors.ErrUnauthorized},
		{"unknown role", signToken(t, jwt.SigningMethodHS256, "secret", claimsFor("u1", "STUDENT", "identity", future)), appErrors.ErrForbidden},
		{"garbage", "not-a-token", appErrors.ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tc.token)
			require.Error(t, err)
			assert.Equal(t, tc.want.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestAuthServiceBootstrapAdminIsIdempotent(t *testing.T) {
	repo := &mockStaffRepo{}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret"})
	req := BootstrapAdminRequest{Email: " Admin@Institute.Local ", FullName: "Administrator", Password: "s3cret-pass"}

	user, created, err := svc.BootstrapAdmin(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "admin@institute.local", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionBootstrap, repo.auditLogs[0].Action)

	req.Password = "another-pass"
	again, created, err := svc.BootstrapAdmin(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(again.PasswordHash), []byte("s3cret-pass")))
	assert.Len(t, repo.auditLogs, 1)
}

func TestAuthServiceBootstrapAdminValidation(t *testing.T) {
	svc := NewAuthService(&mockStaffRepo{}, validator.New(), zap.NewNop(), AuthConfig{})

	_, _, err := svc.BootstrapAdmin(context.Background(), BootstrapAdminRequest{Email: "admin@institute.local", FullName: "Admin", Password: "short"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	repo := &mockStaffRepo{createErr: errors.New("db down")}
	svc = NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{})
	_, _, err = svc.BootstrapAdmin(context.Background(), BootstrapAdminRequest{Email: "admin@institute.local", FullName: "Admin", Password: "long-enough"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
