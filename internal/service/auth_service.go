package service

import (
	"context"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// AuthService registers end users and issues API tokens to admins.
type AuthService struct {
	users         repository.UserRepository
	admins        repository.AdminRepository
	tokenMgr      *auth.TokenManager
	defaultRegion string
	logger        *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo      repository.UserRepository
	AdminRepo     repository.AdminRepository
	TokenManager  *auth.TokenManager
	DefaultRegion string
	Logger        *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:         deps.UserRepo,
		admins:        deps.AdminRepo,
		tokenMgr:      deps.TokenManager,
		defaultRegion: deps.DefaultRegion,
		logger:        logger,
	}
}

// RegisterUser records a user from a shared contact. Repeated registration
// only refreshes the display name.
func (s *AuthService) RegisterUser(ctx context.Context, userID int64, displayName, phone string) (*domain.User, error) {
	if userID <= 0 {
		return nil, apperrors.NewValidationError("user id must be positive", nil)
	}
	user := &domain.User{
		UserID:       userID,
		DisplayName:  strings.TrimSpace(displayName),
		ContactPhone: NormalizePhone(phone, s.defaultRegion),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, mapStoreErr(err, "user", nil)
	}
	s.logger.Debug("user registered", zap.Int64("user_id", userID))
	return user, nil
}

// GetUser fetches a registered user.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err, "user", map[string]any{"user_id": userID})
	}
	return user, nil
}

// IssueToken signs an API token for an existing admin.
func (s *AuthService) IssueToken(ctx context.Context, adminID int64) (string, time.Time, error) {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return "", time.Time{}, mapStoreErr(err, "admin", map[string]any{"admin_id": adminID})
	}
	token, expiresAt, err := s.tokenMgr.GenerateToken(admin.AdminID, admin.Role)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, expiresAt, nil
}

// TokenManager exposes the signer for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// NormalizePhone formats a phone number as E.164. Numbers that cannot be
// parsed are returned trimmed but otherwise unchanged.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	candidates := []string{raw}
	if !strings.HasPrefix(raw, "+") {
		// chat platforms deliver the international form without the plus
		candidates = append(candidates, "+"+raw)
	}
	for _, candidate := range candidates {
		num, err := phonenumbers.Parse(candidate, region)
		if err == nil && phonenumbers.IsValidNumber(num) {
			return phonenumbers.Format(num, phonenumbers.E164)
		}
	}
	return raw
}
