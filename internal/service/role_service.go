package service

import (
	"context"
	"errors"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// RoleResolver maps an external identity to its privilege tier.
type RoleResolver struct {
	users  repository.UserRepository
	admins repository.AdminRepository
}

// NewRoleResolver constructs the resolver.
func NewRoleResolver(users repository.UserRepository, admins repository.AdminRepository) *RoleResolver {
	return &RoleResolver{users: users, admins: admins}
}

// ResolveRole returns OWNER or STAFF for admins, USER for registered users and
// GUEST otherwise. Admin records take precedence over user records.
func (r *RoleResolver) ResolveRole(ctx context.Context, identity int64) (domain.Role, error) {
	admin, err := r.admins.GetByID(ctx, identity)
	switch {
	case err == nil:
		if admin.IsOwner() {
			return domain.RoleOwner, nil
		}
		return domain.RoleStaff, nil
	case !errors.Is(err, repository.ErrNotFound):
		return domain.RoleGuest, mapStoreErr(err, "admin", nil)
	}

	if _, err := r.users.GetByID(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RoleGuest, nil
		}
		return domain.RoleGuest, mapStoreErr(err, "user", nil)
	}
	return domain.RoleUser, nil
}

// RequireStaff fails with PERMISSION_DENIED unless identity is an admin.
func (r *RoleResolver) RequireStaff(ctx context.Context, identity int64) (domain.Role, error) {
	role, err := r.ResolveRole(ctx, identity)
	if err != nil {
		return role, err
	}
	if !role.IsStaff() {
		return role, apperrors.NewPermissionDenied("admin role required")
	}
	return role, nil
}

// RequireOwner fails with PERMISSION_DENIED unless identity is an owner.
func (r *RoleResolver) RequireOwner(ctx context.Context, identity int64) error {
	role, err := r.ResolveRole(ctx, identity)
	if err != nil {
		return err
	}
	if !role.IsOwner() {
		return apperrors.NewPermissionDenied("owner role required")
	}
	return nil
}
