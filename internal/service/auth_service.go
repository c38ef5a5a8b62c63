package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
)

type staffRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.StaffUser, error)
	CreateIfAbsent(ctx context.Context, user *models.StaffUser) (bool, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines how tokens from the identity service are verified.
type AuthConfig struct {
	AccessTokenSecret string
	Issuer            string
}

// BootstrapAdminRequest describes the administrator provisioned at deployment.
type BootstrapAdminRequest struct {
	Email    string `validate:"required,email"`
	FullName string `validate:"required"`
	Password string `validate:"required,min=8"`
}

// AuthService verifies access tokens and provisions the initial administrator.
type AuthService struct {
	repo      staffRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo staffRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config}
}

// ValidateToken parses an HS256 access token and checks its role.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role not permitted")
	}
	return claims, nil
}

// BootstrapAdmin creates the administrator account once. Later calls leave the stored account untouched.
func (s *AuthService) BootstrapAdmin(ctx context.Context, req BootstrapAdminRequest) (*models.StaffUser, bool, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bootstrap payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.StaffUser{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	created, err := s.repo.CreateIfAbsent(ctx, user)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to create administrator")
	}
	if !created {
		existing, err := s.repo.FindByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, appErrors.Clone(appErrors.ErrInternal, "administrator vanished during bootstrap")
			}
			return nil, false, appErrors.Internal(err, "failed to load administrator")
		}
		s.logger.Info("administrator already provisioned", zap.String("email", req.Email))
		return existing, false, nil
	}

	resourceID := user.ID
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &resourceID,
		Action:     models.AuditActionBootstrap,
		Resource:   "staff_users",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to audit bootstrap", zap.Error(err))
	}
	s.logger.Info("administrator provisioned", zap.String("email", req.Email), zap.String("user_id", user.ID))
	return user, true, nil
}
