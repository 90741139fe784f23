package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// AdminService manages the staff roster.
type AdminService struct {
	admins repository.AdminRepository
	roles  *RoleResolver
	logger *zap.Logger
}

// AdminDependencies encapsulates collaborators for admin management.
type AdminDependencies struct {
	AdminRepo repository.AdminRepository
	Roles     *RoleResolver
	Logger    *zap.Logger
}

// NewAdminService constructs the service.
func NewAdminService(deps AdminDependencies) *AdminService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{admins: deps.AdminRepo, roles: deps.Roles, logger: logger}
}

// AddAdmin registers a new STAFF admin. Only owners may call it.
func (s *AdminService) AddAdmin(ctx context.Context, actorID, adminID int64, displayName string) (*domain.Admin, error) {
	if err := s.roles.RequireOwner(ctx, actorID); err != nil {
		return nil, err
	}
	if adminID <= 0 {
		return nil, apperrors.NewValidationError("admin id must be positive", map[string]any{"admin_id": adminID})
	}
	admin := &domain.Admin{
		AdminID:     adminID,
		DisplayName: strings.TrimSpace(displayName),
		Role:        domain.AdminRoleStaff,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("admin already exists", map[string]any{"admin_id": adminID})
		}
		return nil, mapStoreErr(err, "admin", nil)
	}
	s.logger.Info("admin added", zap.Int64("admin_id", adminID), zap.Int64("actor_id", actorID))
	return admin, nil
}

// ListAdmins returns every admin, oldest first.
func (s *AdminService) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "admin", nil)
	}
	return admins, nil
}

// GetAdmin fetches a single admin.
func (s *AdminService) GetAdmin(ctx context.Context, adminID int64) (*domain.Admin, error) {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, mapStoreErr(err, "admin", map[string]any{"admin_id": adminID})
	}
	return admin, nil
}

// BootstrapOwners makes sure every seed identity exists as an OWNER. Already
// present admins are left untouched.
func (s *AdminService) BootstrapOwners(ctx context.Context, ownerIDs []int64) error {
	for _, id := range ownerIDs {
		owner := &domain.Admin{AdminID: id, DisplayName: "owner", Role: domain.AdminRoleOwner}
		err := s.admins.Create(ctx, owner)
		switch {
		case err == nil:
			s.logger.Info("owner bootstrapped", zap.Int64("admin_id", id))
		case errors.Is(err, repository.ErrDuplicate):
		default:
			return mapStoreErr(err, "admin", map[string]any{"admin_id": id})
		}
	}
	return nil
}
